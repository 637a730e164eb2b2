package platform

import (
	"bufio"
	"context"
	"os"
	"path/filepath"
	"strings"

	"github.com/open-power/petitboot/dirs"
	"github.com/open-power/petitboot/logging"
	"github.com/open-power/petitboot/procsup"
)

// deviceTreeSysinfo reads /proc/device-tree/model and
// /proc/device-tree/system-id when present (SUPPLEMENTED FEATURES item 2,
// grounded on original_source/discover/dt.c and the arm64 platform bits),
// returning zero values for either that's absent or unreadable rather
// than failing: device-tree identity is best-effort, not every platform
// has one.
func deviceTreeSysinfo() (platform, systemID string) {
	platform = readDTString(filepath.Join(dirs.DeviceTreeDir, "model"))
	systemID = readDTString(filepath.Join(dirs.DeviceTreeDir, "system-id"))
	return
}

func readDTString(path string) string {
	data, err := os.ReadFile(path)
	if err != nil {
		return ""
	}
	// device-tree string properties are NUL-terminated.
	return strings.TrimRight(string(data), "\x00\n")
}

// GetBMCMAC shells out to "ipmitool lan print" and extracts the BMC's MAC
// address (SUPPLEMENTED FEATURES item 1, grounded on
// original_source/discover/ipmi.c; the original talks to /dev/ipmi0
// directly via IPMICTL_SEND_COMMAND, but SPEC_FULL documents the decision
// to shell out instead since petitboot's own subprocess machinery
// (procsup) already exists and a raw ioctl binding would be the only
// caller). Returns "" with a nil error when ipmitool is absent or the
// output can't be parsed: BMC sysinfo is best-effort, never a hard
// dependency (the original degrades the same way when no BMC exists).
func GetBMCMAC(ctx context.Context) (string, error) {
	p, err := procsup.RunSimple(ctx, "ipmitool", "lan", "print")
	if err != nil || p.ExitStatus != 0 {
		logging.Debugf("platform: ipmitool unavailable: %v", err)
		return "", nil
	}
	scanner := bufio.NewScanner(strings.NewReader(string(p.Stdout)))
	for scanner.Scan() {
		line := scanner.Text()
		key, val, ok := strings.Cut(line, ":")
		if !ok {
			continue
		}
		if strings.TrimSpace(key) == "MAC Address" {
			return strings.TrimSpace(val), nil
		}
	}
	return "", nil
}

// CommonSysinfo populates the device-tree and BMC portions of Sysinfo
// shared by every concrete Backend, so each backend only needs to add its
// own platform-specific fields (currently none do, but the split mirrors
// the original's per-platform storage.c files each calling into the
// same dt.c/ipmi.c helpers).
func CommonSysinfo(ctx context.Context) Sysinfo {
	platform, systemID := deviceTreeSysinfo()
	mac, err := GetBMCMAC(ctx)
	if err != nil {
		logging.Debugf("platform: sysinfo: %v", err)
	}
	return Sysinfo{Platform: platform, SystemID: systemID, BMCMAC: mac}
}
