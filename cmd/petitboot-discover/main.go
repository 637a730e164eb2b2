// Command petitboot-discover is the standalone discovery helper of spec
// §6's "CLI surface (discovery helper)": given the udev-style environment
// variables of a single hotplug event, it runs that one event through the
// discover package and reports the resulting devices/boot options,
// without needing the long-running petitbootd daemon. It is useful both
// for exercising a single event by hand and as the target of a udev RUN+=
// rule on systems that prefer per-event invocation to petitbootd's own
// built-in netlink monitor.
//
// Grounded on original_source/devices/udev-helper.c's main(): same
// ACTION=add|remove|fake dispatch and "missing environment" exit-status
// contract, adapted to call into the discover package in-process instead
// of pushing wire frames to a separately-running daemon.
package main

import (
	"context"
	"fmt"
	"os"

	"github.com/jessevdk/go-flags"

	"github.com/open-power/petitboot/device"
	"github.com/open-power/petitboot/discover"
	"github.com/open-power/petitboot/discover/udevmon"
	"github.com/open-power/petitboot/logging"
	"github.com/open-power/petitboot/parser"
	"github.com/open-power/petitboot/parser/grub2"
	"github.com/open-power/petitboot/parser/kboot"
	"github.com/open-power/petitboot/parser/native"
	"github.com/open-power/petitboot/parser/pxe"
	"github.com/open-power/petitboot/parser/syslinux"
	"github.com/open-power/petitboot/parser/yaboot"
)

type options struct {
	Debug bool `long:"debug" description:"enable debug logging"`
}

// envVars are the udev-supplied properties spec §6 documents this helper
// as consuming.
var envVars = []string{
	"DEVNAME", "ID_BUS", "ID_CDROM", "ID_FS_TYPE", "ID_FS_UUID",
	"ID_FS_LABEL", "DM_NAME", "DM_LV_NAME",
	"IFINDEX", "INTERFACE", "ID_NET_NAME_MAC",
}

func eventFromEnviron() (udevmon.Event, error) {
	props := make(map[string]string)
	for _, k := range envVars {
		if v, ok := os.LookupEnv(k); ok {
			props[k] = v
		}
	}

	subsystem := "block"
	sysname := props["DEVNAME"]
	if _, hasIface := props["INTERFACE"]; hasIface {
		subsystem = "net"
		sysname = props["INTERFACE"]
	}
	if sysname == "" {
		return udevmon.Event{}, fmt.Errorf("missing environment: DEVNAME or INTERFACE")
	}

	return udevmon.Event{
		Action:     os.Getenv("ACTION"),
		Subsystem:  subsystem,
		Sysname:    sysname,
		Devpath:    sysname,
		Properties: props,
	}, nil
}

func newParserChain() *parser.Chain {
	chain := parser.NewChain()
	chain.Register(native.New())
	chain.Register(kboot.New())
	chain.Register(yaboot.New())
	chain.Register(grub2.New())
	chain.Register(syslinux.New())
	chain.Register(pxe.New())
	return chain
}

// report logs every device/option the driver produces for this one
// event, standing in for the original's add_device/add_boot_option wire
// writes now that there's no separately-running daemon to push them to.
func report(drv *discover.Driver) {
	drv.OnDeviceAdded = func(dev *device.Device) {
		logging.Noticef("device added: id=%s class=%s", dev.ID(), dev.Class())
	}
	drv.OnDeviceRemoved = func(dev *device.Device) {
		logging.Noticef("device removed: id=%s", dev.ID())
	}
	drv.OnOptionPublished = func(opt *device.BootOption) {
		logging.Noticef("boot option added: id=%s name=%s", opt.ID, opt.Name)
	}
	drv.OnOptionUnpublished = func(opt *device.BootOption) {
		logging.Noticef("boot option removed: id=%s", opt.ID)
	}
}

// runFake reproduces the original's ACTION=fake demo mode: two synthetic
// devices with boot options, reported the same way a real discovery
// would be, for exercising a UI without real hardware.
func runFake() {
	reg := device.NewRegistry()
	d0 := device.New("fakeDisk0", device.ClassDisk, nil)
	d0.AddOption(&device.BootOption{ID: "fakeBoot0", Name: "Fake boot option 0"})
	d0.AddOption(&device.BootOption{ID: "fakeBoot1", Name: "Fake boot option 1"})
	reg.Add(d0)

	d1 := device.New("fakeDisk1", device.ClassDisk, nil)
	d1.AddOption(&device.BootOption{ID: "fakeBoot3", Name: "Fake boot option 3"})
	reg.Add(d1)

	reg.ForEach(func(dev *device.Device) {
		logging.Noticef("device added: id=%s class=%s", dev.ID(), dev.Class())
		for _, opt := range dev.Options() {
			logging.Noticef("boot option added: id=%s name=%s", opt.ID, opt.Name)
		}
	})
}

func main() {
	var opts options
	if _, err := flags.Parse(&opts); err != nil {
		os.Exit(1)
	}
	logging.MockDebug(opts.Debug)

	action := os.Getenv("ACTION")
	if action == "" {
		fmt.Fprintln(os.Stderr, "petitboot-discover: missing environment (ACTION)")
		os.Exit(1)
	}

	if action == "fake" {
		runFake()
		os.Exit(0)
	}

	ev, err := eventFromEnviron()
	if err != nil {
		fmt.Fprintln(os.Stderr, "petitboot-discover:", err)
		os.Exit(1)
	}

	reg := device.NewRegistry()
	chain := newParserChain()
	drv := discover.New(reg, chain)
	report(drv)

	drv.HandleEvent(context.Background(), ev)
}
