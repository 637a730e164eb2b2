// Package udevmon implements the startup enumeration and hotplug monitor
// of spec §4.I: a pure-Go reimplementation of libudev's device listing and
// netlink uevent stream, since the teacher avoids new cgo dependencies
// (its own osutil/udev/netlink package, evidenced by
// cmd/snap-bootstrap/triggerwatch importing
// github.com/snapcore/snapd/osutil/udev/netlink, is not present in the
// retrieved pack). The enumerate/monitor method shape is grounded on
// other_examples' lxd go-udev usage
// (8dd3f4c1_canonical-lxd__lxd-device-unix_hotplug.go.go: Enumerate +
// device Properties()), adapted to read straight from sysfs and the
// kernel's own uevent multicast group instead of binding libudev.
package udevmon

import (
	"bufio"
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"golang.org/x/sys/unix"

	"github.com/open-power/petitboot/logging"
)

// Event mirrors the fields petitboot's discovery driver reads off a udev
// device: action, subsystem, sysfs identity, and the property bag
// (ID_FS_TYPE, ID_CDROM, DM_NAME, ID_NET_NAME_MAC, ...).
type Event struct {
	Action     string // "add", "remove", "change"
	Subsystem  string
	Sysname    string
	Devpath    string
	Properties map[string]string
}

// Property is a convenience accessor; ok is false when the key is absent,
// distinguishing "absent" from "present and empty" per spec §4.I step 3.
func (e Event) Property(key string) (string, bool) {
	v, ok := e.Properties[key]
	return v, ok
}

// MonitorBufSize matches spec §4.I's 128 MiB receive buffer (systemd's
// own default, adopted so we don't drop events under a monitor-quiet
// enumeration burst).
const MonitorBufSize = 128 * 1024 * 1024

// sysClassDirs are the sysfs class directories Enumerate walks, matching
// udev_enumerate_add_match_subsystem(enumerate, "block"/"net") plus the
// is-initialized filter (approximated here by requiring a populated
// uevent file, which sysfs only publishes once a device is fully bound).
var sysClassDirs = map[string]string{
	"block": "/sys/class/block",
	"net":   "/sys/class/net",
}

// Enumerate performs the startup scan of spec §4.I: every already-present
// block and net device, synthesized as an "add" Event.
func Enumerate() ([]Event, error) {
	var events []Event
	for subsystem, dir := range sysClassDirs {
		entries, err := os.ReadDir(dir)
		if err != nil {
			if os.IsNotExist(err) {
				continue
			}
			return nil, fmt.Errorf("udevmon: enumerate %s: %w", dir, err)
		}
		for _, ent := range entries {
			devpath := filepath.Join(dir, ent.Name())
			props, err := readUevent(devpath)
			if err != nil {
				logging.Debugf("udevmon: %s: %v", devpath, err)
				continue
			}
			props["SUBSYSTEM"] = subsystem
			resolved, err := filepath.EvalSymlinks(devpath)
			if err != nil {
				resolved = devpath
			}
			events = append(events, Event{
				Action:     "add",
				Subsystem:  subsystem,
				Sysname:    ent.Name(),
				Devpath:    resolved,
				Properties: props,
			})
		}
	}
	return events, nil
}

// readUevent reads the KEY=VALUE lines of devpath's sysfs uevent file.
func readUevent(devpath string) (map[string]string, error) {
	f, err := os.Open(filepath.Join(devpath, "uevent"))
	if err != nil {
		return nil, err
	}
	defer f.Close()

	props := make(map[string]string)
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		line := scanner.Text()
		k, v, ok := strings.Cut(line, "=")
		if !ok {
			continue
		}
		props[k] = v
	}
	return props, scanner.Err()
}

// Monitor is a netlink socket joined to the kernel's uevent multicast
// group. Events arrive in the plain kernel format
// ("<action>@<devpath>\0ACTION=...\0DEVPATH=...\0...\0"); the udevd-added
// "libudev" framing (its own multicast group) is never seen since Monitor
// only joins the kernel group.
type Monitor struct {
	fd int
}

// NewMonitor opens and binds the netlink socket. Call Close when done.
func NewMonitor() (*Monitor, error) {
	fd, err := unix.Socket(unix.AF_NETLINK, unix.SOCK_RAW, unix.NETLINK_KOBJECT_UEVENT)
	if err != nil {
		return nil, fmt.Errorf("udevmon: socket: %w", err)
	}
	if err := unix.SetsockoptInt(fd, unix.SOL_SOCKET, unix.SO_RCVBUFFORCE, MonitorBufSize); err != nil {
		// Non-fatal: SO_RCVBUFFORCE requires CAP_NET_ADMIN; fall back to
		// whatever the kernel default gives us.
		logging.Debugf("udevmon: SO_RCVBUFFORCE failed, using default buffer: %v", err)
	}
	sa := &unix.SockaddrNetlink{Family: unix.AF_NETLINK, Groups: 1}
	if err := unix.Bind(fd, sa); err != nil {
		unix.Close(fd)
		return nil, fmt.Errorf("udevmon: bind: %w", err)
	}
	return &Monitor{fd: fd}, nil
}

// Fd returns the underlying socket, for registration with a waitset.
func (m *Monitor) Fd() int { return m.fd }

// Close releases the socket.
func (m *Monitor) Close() error {
	return unix.Close(m.fd)
}

// Read drains one pending datagram and parses it into an Event. Returns
// (Event{}, false, nil) for a datagram that doesn't parse as a device
// uevent (e.g. truncated or foreign traffic).
func (m *Monitor) Read() (Event, bool, error) {
	buf := make([]byte, 64*1024)
	n, _, err := unix.Recvfrom(m.fd, buf, 0)
	if err != nil {
		return Event{}, false, fmt.Errorf("udevmon: recvfrom: %w", err)
	}
	return parseUevent(buf[:n])
}

// parseUevent decodes the kernel's NUL-separated uevent wire format.
func parseUevent(data []byte) (Event, bool, error) {
	parts := bytes.Split(data, []byte{0})
	if len(parts) == 0 {
		return Event{}, false, nil
	}
	// First token is "<action>@<devpath>"; ignored in favour of the
	// explicit ACTION=/DEVPATH= properties that follow, which are
	// authoritative.
	props := make(map[string]string)
	for _, p := range parts[1:] {
		if len(p) == 0 {
			continue
		}
		k, v, ok := strings.Cut(string(p), "=")
		if !ok {
			continue
		}
		props[k] = v
	}
	action := props["ACTION"]
	if action == "" {
		return Event{}, false, nil
	}
	devpath := props["DEVPATH"]
	sysname := ""
	if idx := strings.LastIndexByte(devpath, '/'); idx >= 0 {
		sysname = devpath[idx+1:]
	}
	return Event{
		Action:     action,
		Subsystem:  props["SUBSYSTEM"],
		Sysname:    sysname,
		Devpath:    devpath,
		Properties: props,
	}, true, nil
}
