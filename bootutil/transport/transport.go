// Package transport fetches the bytes a pburl.URL refers to, for the
// two cases petitboot ever needs a network roundtrip rather than a
// mounted-device read: downloading a PXE configuration (spec §4.H) and,
// in principle, a remote kexec payload (spec §2 row D).
//
// Grounded on other_examples' bg-ap-factory tool
// (20114d9f_..._factory.go.go retrieveImagesTFTP/retrieveImagesHTTP),
// which fetches install images over the same tftp/http pair using
// github.com/pin/tftp and net/http the way this package does.
package transport

import (
	"bytes"
	"fmt"
	"io"
	"net/http"
	"os"
	"time"

	"github.com/pin/tftp/v3"

	"github.com/open-power/petitboot/bootutil/pburl"
)

// Fetch retrieves the content at u. file URLs are read from the local
// filesystem directly (used by tests and by PXE configs served from a
// local mirror); http/https use a plain GET; tftp uses the standard
// RFC1350 octet mode.
func Fetch(u *pburl.URL) ([]byte, error) {
	switch u.Scheme {
	case pburl.SchemeFile:
		data, err := os.ReadFile(u.Path)
		if err != nil {
			return nil, fmt.Errorf("transport: %w", err)
		}
		return data, nil

	case pburl.SchemeHTTP, pburl.SchemeHTTPS:
		return fetchHTTP(u)

	case pburl.SchemeTFTP:
		return fetchTFTP(u)

	default:
		return nil, fmt.Errorf("transport: unsupported scheme %q for remote fetch", u.Scheme)
	}
}

func fetchHTTP(u *pburl.URL) ([]byte, error) {
	client := &http.Client{Timeout: 30 * time.Second}
	resp, err := client.Get(u.String())
	if err != nil {
		return nil, fmt.Errorf("transport: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("transport: %s: HTTP %d", u.String(), resp.StatusCode)
	}
	return io.ReadAll(resp.Body)
}

func fetchTFTP(u *pburl.URL) ([]byte, error) {
	host := u.Host
	if u.Port != "" {
		host = u.Host + ":" + u.Port
	} else {
		host = u.Host + ":69"
	}
	client, err := tftp.NewClient(host)
	if err != nil {
		return nil, fmt.Errorf("transport: %w", err)
	}
	wt, err := client.Receive(u.Path, "octet")
	if err != nil {
		return nil, fmt.Errorf("transport: %w", err)
	}
	var buf bytes.Buffer
	if _, err := wt.WriteTo(&buf); err != nil {
		return nil, fmt.Errorf("transport: %w", err)
	}
	return buf.Bytes(), nil
}
