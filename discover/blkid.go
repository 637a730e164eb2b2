package discover

import (
	"bufio"
	"context"
	"strings"

	"github.com/open-power/petitboot/procsup"
)

// blkidProbeFieldMap translates blkid -o export's own key names to the
// udev property names the rest of the driver expects (udev's blkid
// builtin uses the same ID_FS_* names that blkid itself calls
// TYPE/UUID/LABEL/PARTUUID).
var blkidProbeFieldMap = map[string]string{
	"TYPE":     "ID_FS_TYPE",
	"UUID":     "ID_FS_UUID",
	"LABEL":    "ID_FS_LABEL",
	"PARTUUID": "ID_FS_PARTUUID",
}

// blkidProbe is the default BlkidProbe: shells out to "blkid -o export",
// standing in for the filesystem-identification step udevd's blkid
// builtin normally performs before petitboot ever sees the ADD event.
func blkidProbe(ctx context.Context, devnode string) (map[string]string, error) {
	p, err := procsup.RunSimple(ctx, "blkid", "-o", "export", devnode)
	if err != nil {
		return nil, err
	}
	out := make(map[string]string)
	scanner := bufio.NewScanner(strings.NewReader(string(p.Stdout)))
	for scanner.Scan() {
		k, v, ok := strings.Cut(scanner.Text(), "=")
		if !ok {
			continue
		}
		if mapped, known := blkidProbeFieldMap[k]; known {
			out[mapped] = v
		}
	}
	return out, nil
}
