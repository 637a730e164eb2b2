// Package discover implements the discovery driver of spec §4.I: the
// glue between udevmon's enumerate/monitor events and the
// device/resource/parser packages, performing classification, mounting,
// parsing, IPC publication, and teardown for each observed block or
// network device.
//
// Grounded on original_source/discover/udev.c (udev_handle_block_add,
// udev_handle_dev_change, udev_handle_cdrom_events) for the classification
// and event-dispatch rules, and devices/udev-helper.c's iterate_parsers
// for the mount -> parser-chain -> publish sequence; the LVM/dm/multipath
// skip rules are ported line-for-line from udev.c's comments.
package discover

import (
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/open-power/petitboot/device"
	"github.com/open-power/petitboot/dirs"
	"github.com/open-power/petitboot/discover/udevmon"
	"github.com/open-power/petitboot/logging"
	"github.com/open-power/petitboot/parser"
	"github.com/open-power/petitboot/procsup"
	"github.com/open-power/petitboot/resource"
)

// ignoredFSTypes mirrors udev.c's ignored_types array: a device with one
// of these filesystem types is skipped outright (spec §4.I step 3).
var ignoredFSTypes = []string{"linux_raid_member", "swap"}

// MountFunc and UmountFunc are the subprocess calls the driver makes;
// overridden in tests to avoid touching the real filesystem, the same
// substitution pattern procsup.Runner itself uses.
type MountFunc func(ctx context.Context, devnode, mountpoint string) error
type UmountFunc func(ctx context.Context, devnode string) error

// BlkidProbe reads the filesystem-identification properties (ID_FS_TYPE,
// ID_FS_UUID, ID_FS_LABEL) a real udevd would have already attached via
// its built-in blkid database. Pure sysfs/netlink enumeration (package
// udevmon) cannot produce these itself, so the driver probes for them
// with an injectable function, defaulting to shelling out to blkid.
type BlkidProbe func(ctx context.Context, devnode string) (map[string]string, error)

// Driver owns the registry, parser chain, and subprocess wiring that
// turns udevmon Events into published BootOptions.
type Driver struct {
	Registry *device.Registry
	Chain    *parser.Chain

	Mount  MountFunc
	Umount UmountFunc
	Probe  BlkidProbe
	Tray   TrayController

	// OnDeviceAdded/OnDeviceRemoved/OnOptionPublished/OnOptionUnpublished
	// are the IPC publication hooks (spec §4.J ADD_DEVICE/ADD_OPTION/
	// REMOVE_DEVICE/REMOVE_OPTION); nil hooks are simply not called.
	OnDeviceAdded       func(*device.Device)
	OnDeviceRemoved     func(*device.Device)
	OnOptionPublished   func(*device.BootOption)
	OnOptionUnpublished func(*device.BootOption)

	// OnNetworkReady is invoked when a net device satisfies spec §4.I's
	// readiness check; it is the sole hook into network configuration,
	// which spec.md's Non-goals explicitly exclude from this package.
	OnNetworkReady func(ifindex int, iface string, mac string)
}

// New creates a Driver wired to production Mount/Umount/Probe/Tray
// implementations. reg and chain must already be populated (chain via
// Chain.Register for each parser package).
func New(reg *device.Registry, chain *parser.Chain) *Driver {
	d := &Driver{
		Registry: reg,
		Chain:    chain,
		Mount:    procsup.MountReadOnly,
		Umount:   procsup.Umount,
		Probe:    blkidProbe,
		Tray:     IoctlTrayController{},
	}
	reg.OnAdd(func(*device.Device) { d.reResolveAll() })
	reg.OnRemove(func(*device.Device) { d.reResolveAll() })
	return d
}

// HandleEvent dispatches a single udevmon Event per spec §4.I's
// add/remove/change rules.
func (d *Driver) HandleEvent(ctx context.Context, ev udevmon.Event) {
	if ev.Subsystem == "net" {
		switch ev.Action {
		case "add", "change":
			d.handleNetReady(ev)
		}
		return
	}
	if ev.Subsystem != "block" {
		logging.Debugf("discover: SKIP %s: unknown subsystem %s", ev.Sysname, ev.Subsystem)
		return
	}
	switch ev.Action {
	case "add":
		d.handleBlockAdd(ctx, ev)
	case "remove":
		d.handleRemove(ev)
	case "change":
		d.handleChange(ctx, ev)
	}
}

func (d *Driver) handleChange(ctx context.Context, ev udevmon.Event) {
	_, cdrom := ev.Property("ID_CDROM")
	existing, found := d.Registry.LookupByID(ev.Sysname)

	if cdrom {
		devnode := devnodePath(ev)
		if _, ok := ev.Property("DISK_EJECT_REQUEST"); ok {
			logging.Debugf("discover: eject request for %s", ev.Sysname)
			wasMounted := found && existing.IsMounted()
			if found {
				d.handleRemove(ev)
			}
			if wasMounted {
				d.Tray.Eject(devnode)
			}
			return
		}
		if _, ok := ev.Property("DISK_MEDIA_CHANGE"); ok {
			switch {
			case found && d.Tray.MediaPresent(devnode):
				applyTrayState(d.Tray, existing, devnode)
			case found:
				d.handleRemove(ev)
			case d.Tray.MediaPresent(devnode):
				d.handleBlockAdd(ctx, ev)
			}
			return
		}
	}

	if !found {
		d.handleBlockAdd(ctx, ev)
	}
}

func (d *Driver) handleBlockAdd(ctx context.Context, ev udevmon.Event) {
	name := ev.Sysname
	devtype, _ := ev.Property("DEVTYPE")
	if devtype != "disk" && devtype != "partition" {
		logging.Debugf("discover: SKIP %s: invalid type %s", name, devtype)
		return
	}

	devpath := ev.Devpath
	if strings.Contains(devpath, "virtual/block/loop") {
		logging.Debugf("discover: SKIP %s: ignored (path=%s)", name, devpath)
		return
	}

	node := devnodePath(ev)

	if _, cdrom := ev.Property("ID_CDROM"); cdrom {
		d.Tray.Init(node)
		if !d.Tray.MediaPresent(node) {
			logging.Debugf("discover: SKIP %s: no media present", name)
			return
		}
	}

	if dmName, hasDM := ev.Property("DM_NAME"); hasDM {
		if _, isLV := ev.Property("DM_LV_NAME"); !isLV {
			logging.Debugf("discover: SKIP dm-device %s", dmName)
			return
		}
	}

	props := ev.Properties
	fsType, hasFSType := ev.Property("ID_FS_TYPE")
	if !hasFSType && d.Probe != nil {
		probed, err := d.Probe(ctx, node)
		if err == nil {
			merged := make(map[string]string, len(props)+len(probed))
			for k, v := range props {
				merged[k] = v
			}
			for k, v := range probed {
				if _, exists := merged[k]; !exists {
					merged[k] = v
				}
			}
			props = merged
			fsType, hasFSType = probed["ID_FS_TYPE"]
		}
	}
	if !hasFSType {
		logging.Debugf("discover: SKIP %s: no ID_FS_TYPE property", name)
		return
	}
	for _, ignored := range ignoredFSTypes {
		if strings.HasPrefix(fsType, ignored) {
			logging.Debugf("discover: SKIP %s: ignore %q filesystem", name, fsType)
			return
		}
	}

	if strings.HasPrefix(fsType, "LVM2_member") {
		d.activateLVM(ctx)
		return
	}

	uuid := props["ID_FS_UUID"]
	if uuid != "" {
		if existing, ok := d.Registry.LookupByUUID(uuid); ok {
			logging.Debugf("discover: SKIP %s UUID [%s] already present (as %s)", name, uuid, existing.ID())
			return
		}
	}

	if dmName, hasDM := props["DM_NAME"]; hasDM && dmName != "" {
		if link := mapperDevlink(props["DEVLINKS"]); link != "" {
			node = link
		}
	}

	class := device.ClassDisk
	if _, cdrom := props["ID_CDROM"]; cdrom {
		class = device.ClassOptical
	} else if _, usb := props["ID_USB_DRIVER"]; usb {
		class = device.ClassUSB
	}

	dev := device.New(name, class, nil)
	dev.SetUUID(uuid)
	dev.SetLabel(props["ID_FS_LABEL"])
	for k, v := range props {
		dev.SetProperty(k, v)
	}
	if class == device.ClassOptical {
		applyTrayState(d.Tray, dev, node)
	}

	mountpoint, err := d.newMountDir()
	if err != nil {
		logging.Debugf("discover: %s: mountdir: %v", name, err)
		return
	}
	if err := d.Mount(ctx, node, mountpoint); err != nil {
		logging.Debugf("discover: %s: mount %s on %s: %v", name, node, mountpoint, err)
		os.Remove(mountpoint)
		return
	}
	dev.SetMountPoint(mountpoint)

	if !d.Registry.Add(dev) {
		// Lost a race against a concurrent add with the same UUID
		// (spec §4.E multipath dedup).
		d.Umount(ctx, node)
		os.Remove(mountpoint)
		return
	}
	if d.OnDeviceAdded != nil {
		d.OnDeviceAdded(dev)
	}

	pctx := parser.NewContext(dev, d.Registry)
	_, result, err := d.Chain.IterateParsers(pctx)
	if err != nil {
		logging.Debugf("discover: %s: parse error: %v", name, err)
	}
	if result == parser.Found {
		d.resolveOptions(dev)
		for _, opt := range dev.Publish() {
			if d.OnOptionPublished != nil {
				d.OnOptionPublished(opt)
			}
		}
	}
}

// resolveOptions resolves every not-yet-resolved resource a device's
// options reference, against the current registry. Called once right
// after a parser commits new options, and again from reResolveAll
// whenever the registry's device set changes.
func (d *Driver) resolveOptions(dev *device.Device) {
	rr := d.Registry.AsResourceRegistry()
	for _, opt := range dev.Options() {
		resolveResource(opt.BootImage, rr, dev)
		resolveResource(opt.Initrd, rr, dev)
		resolveResource(opt.DTB, rr, dev)
	}
}

func resolveResource(r *resource.Resource, rr resource.Registry, dev *device.Device) {
	if r != nil && !r.Resolved() {
		r.Resolve(rr, dev)
	}
}

// unresolveReferencesTo reverts every resolved resource, on any device in
// the registry, that currently targets id (spec §4.F: "whenever a Device
// is removed, every resolved resource whose target was that device
// reverts to unresolved"). Must run while id is still looked-up-able, so
// it is called from removeDevice ahead of the registry removal itself;
// the Unpublished() pass that follows reResolveAll then reports the
// retraction over IPC.
func (d *Driver) unresolveReferencesTo(id string) {
	rr := d.Registry.AsResourceRegistry()
	d.Registry.ForEach(func(dev *device.Device) {
		for _, opt := range dev.Options() {
			unresolveIfTargeting(opt.BootImage, rr, id)
			unresolveIfTargeting(opt.Initrd, rr, id)
			unresolveIfTargeting(opt.DTB, rr, id)
		}
	})
}

// unresolveIfTargeting calls Unresolve() on r if it is resolved and
// TargetDeviceID(rr) currently reports it as targeting id (spec §8
// "R.resolved => R.target-device in registry").
func unresolveIfTargeting(r *resource.Resource, rr resource.Registry, id string) {
	if r == nil || !r.Resolved() {
		return
	}
	if targetID, ok := r.TargetDeviceID(rr); ok && targetID == id {
		r.Unresolve()
	}
}

func (d *Driver) handleRemove(ev udevmon.Event) {
	dev, ok := d.Registry.LookupByID(ev.Sysname)
	if !ok {
		return
	}
	d.removeDevice(dev)
}

func (d *Driver) removeDevice(dev *device.Device) {
	d.unresolveReferencesTo(dev.ID())

	for _, opt := range dev.UnpublishAll() {
		if d.OnOptionUnpublished != nil {
			d.OnOptionUnpublished(opt)
		}
	}
	if dev.IsMounted() {
		devnode, _ := dev.Property("DEVNAME")
		if devnode != "" {
			d.Umount(context.Background(), devnodeFromProp(devnode))
		}
		os.Remove(dev.MountPoint())
	}
	d.Registry.Remove(dev.ID())
	if d.OnDeviceRemoved != nil {
		d.OnDeviceRemoved(dev)
	}
	dev.Free()
}

func (d *Driver) handleNetReady(ev udevmon.Event) {
	ifindexStr, hasIdx := ev.Property("IFINDEX")
	iface, hasIface := ev.Property("INTERFACE")
	macName, hasMAC := ev.Property("ID_NET_NAME_MAC")
	if !hasIdx || !hasIface || !hasMAC {
		logging.Debugf("discover: %s: interface missing properties", ev.Sysname)
		return
	}
	if len(macName) < 15 {
		logging.Debugf("discover: %s: unexpected MAC format: %s", ev.Sysname, macName)
		return
	}
	mac, err := parseIDNetNameMAC(macName)
	if err != nil {
		logging.Debugf("discover: %s: %v", ev.Sysname, err)
		return
	}
	var ifindex int
	fmt.Sscanf(ifindexStr, "%d", &ifindex)
	if d.OnNetworkReady != nil {
		d.OnNetworkReady(ifindex, iface, mac)
	}
}

// parseIDNetNameMAC converts udev's "enxMACADDR" naming-policy identifier
// into a conventional colon-separated MAC.
func parseIDNetNameMAC(name string) (string, error) {
	const prefix = "enx"
	if !strings.HasPrefix(name, prefix) {
		return "", fmt.Errorf("ID_NET_NAME_MAC missing %q prefix: %s", prefix, name)
	}
	hexPart := name[len(prefix):]
	var out []string
	for i := 0; i+2 <= len(hexPart); i += 2 {
		out = append(out, hexPart[i:i+2])
	}
	return strings.Join(out, ":"), nil
}

func (d *Driver) activateLVM(ctx context.Context) {
	if _, err := procsup.RunSimple(ctx, "vgscan", "-qq"); err != nil {
		logging.Debugf("discover: vgscan: %v", err)
	}
	if _, err := procsup.RunSimple(ctx, "vgchange", "-ay", "-qq"); err != nil {
		logging.Debugf("discover: vgchange: %v", err)
	}
}

// reResolveAll re-resolves every unresolved resource across every
// registered device's options (spec §4.F), publishing/unpublishing as
// resolution state changes. Called after every registry Add/Remove.
func (d *Driver) reResolveAll() {
	d.Registry.ForEach(func(dev *device.Device) {
		d.resolveOptions(dev)
		for _, opt := range dev.Unpublished() {
			if d.OnOptionUnpublished != nil {
				d.OnOptionUnpublished(opt)
			}
		}
		for _, opt := range dev.Publish() {
			if d.OnOptionPublished != nil {
				d.OnOptionPublished(opt)
			}
		}
	})
}

// newMountDir creates a fresh "mnt-XXXXXX"-style temporary directory
// under dirs.PetitbootMountDir (spec §6).
func (d *Driver) newMountDir() (string, error) {
	if err := os.MkdirAll(dirs.PetitbootMountDir, 0755); err != nil {
		return "", err
	}
	return os.MkdirTemp(dirs.PetitbootMountDir, "mnt-")
}

// devnodePath renders a udevmon Event's DEVNAME into a /dev path.
func devnodePath(ev udevmon.Event) string {
	name, _ := ev.Property("DEVNAME")
	if name == "" {
		name = ev.Sysname
	}
	return devnodeFromProp(name)
}

func devnodeFromProp(name string) string {
	if strings.HasPrefix(name, "/") {
		return name
	}
	return "/dev/" + name
}

// mapperDevlink picks the "/dev/mapper/..." entry out of a space-separated
// DEVLINKS property, preferring the stable name over the opaque dm-N node
// (udev.c's devlinks/strtok_r loop).
func mapperDevlink(devlinks string) string {
	for _, link := range strings.Fields(devlinks) {
		if strings.HasPrefix(link, "/dev/mapper/") {
			return link
		}
	}
	return ""
}
