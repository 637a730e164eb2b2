// Package pburl implements the URL model of spec §4.D: a parsed URL with
// scheme restricted to the set petitboot's resource resolver understands,
// a dir/file split, and base+relative joining rules that differ from
// RFC 3986 (joining is always against the base's directory, never the
// current working document).
package pburl

import (
	"fmt"
	"net/url"
	"strings"
)

// Scheme enumerates the schemes petitboot resources may reference
// (spec §2 row D).
type Scheme string

const (
	SchemeFile    Scheme = "file"
	SchemeHTTP    Scheme = "http"
	SchemeHTTPS   Scheme = "https"
	SchemeTFTP    Scheme = "tftp"
	SchemeNFS     Scheme = "nfs"
	SchemeSFTP    Scheme = "sftp"
	SchemeUnknown Scheme = ""
)

func parseScheme(s string) Scheme {
	switch strings.ToLower(s) {
	case "file":
		return SchemeFile
	case "http":
		return SchemeHTTP
	case "https":
		return SchemeHTTPS
	case "tftp":
		return SchemeTFTP
	case "nfs":
		return SchemeNFS
	case "sftp":
		return SchemeSFTP
	default:
		return SchemeUnknown
	}
}

// URL is petitboot's URL model. Dir is the path up to and including the
// last '/'; File is everything after it.
type URL struct {
	Scheme Scheme
	Host   string
	Port   string
	Path   string
	Dir    string
	File   string
}

// Parse accepts "scheme://host[:port]/path" or a bare path, which is
// treated as file-local (spec §4.D).
func Parse(raw string) (*URL, error) {
	if raw == "" {
		return nil, fmt.Errorf("pburl: empty URL")
	}
	if !strings.Contains(raw, "://") {
		return fromPath(SchemeFile, "", "", raw), nil
	}

	u, err := url.Parse(raw)
	if err != nil {
		return nil, fmt.Errorf("pburl: %q: %w", raw, err)
	}
	scheme := parseScheme(u.Scheme)
	if scheme == SchemeUnknown {
		return nil, fmt.Errorf("pburl: unsupported scheme %q in %q", u.Scheme, raw)
	}
	return fromPath(scheme, u.Hostname(), u.Port(), u.Path), nil
}

func fromPath(scheme Scheme, host, port, path string) *URL {
	dir, file := splitDirFile(path)
	return &URL{
		Scheme: scheme,
		Host:   host,
		Port:   port,
		Path:   path,
		Dir:    dir,
		File:   file,
	}
}

func splitDirFile(path string) (dir, file string) {
	idx := strings.LastIndexByte(path, '/')
	if idx < 0 {
		return "", path
	}
	return path[:idx+1], path[idx+1:]
}

// String renders the URL back to canonical form; Parse(u.String()) is the
// identity on canonical inputs (spec §8 round-trip law).
func (u *URL) String() string {
	if u.Scheme == SchemeFile && u.Host == "" {
		return u.Path
	}
	hostport := u.Host
	if u.Port != "" {
		hostport = u.Host + ":" + u.Port
	}
	return fmt.Sprintf("%s://%s%s", u.Scheme, hostport, u.Path)
}

// Join resolves rel against base per spec §4.D:
//   - rel starting with "/" replaces base's path entirely (same host).
//   - rel containing "://" is already absolute.
//   - otherwise rel is appended to base's Dir.
func Join(base *URL, rel string) (*URL, error) {
	if strings.Contains(rel, "://") {
		return Parse(rel)
	}
	if strings.HasPrefix(rel, "/") {
		return fromPath(base.Scheme, base.Host, base.Port, rel), nil
	}
	return fromPath(base.Scheme, base.Host, base.Port, base.Dir+rel), nil
}
