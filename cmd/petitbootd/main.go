// Command petitbootd is the long-running discovery daemon of spec §1/§5:
// it enumerates and monitors block/net devices via udevmon, drives them
// through the discover package, and publishes the resulting devices and
// boot options over the IPC socket for a UI to consume.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/jessevdk/go-flags"
	"golang.org/x/sys/unix"

	"github.com/open-power/petitboot/device"
	"github.com/open-power/petitboot/dirs"
	"github.com/open-power/petitboot/discover"
	"github.com/open-power/petitboot/discover/udevmon"
	"github.com/open-power/petitboot/ipc"
	"github.com/open-power/petitboot/logging"
	"github.com/open-power/petitboot/parser"
	"github.com/open-power/petitboot/parser/grub2"
	"github.com/open-power/petitboot/parser/kboot"
	"github.com/open-power/petitboot/parser/native"
	"github.com/open-power/petitboot/parser/pxe"
	"github.com/open-power/petitboot/parser/syslinux"
	"github.com/open-power/petitboot/parser/yaboot"
	"github.com/open-power/petitboot/platform"
	"github.com/open-power/petitboot/platform/efivars"
	"github.com/open-power/petitboot/platform/nvram"
	"github.com/open-power/petitboot/resource"
	"github.com/open-power/petitboot/waitset"
)

type options struct {
	Socket          string `long:"socket" description:"IPC socket path" default:""`
	PlatformBackend string `long:"platform" description:"platform config backend (nvram, efivars, none)" default:"nvram"`
	NvramPartition  string `long:"nvram-partition" description:"nvram partition holding petitboot's config" default:"common"`
	Debug           bool   `long:"debug" description:"enable debug logging"`
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

func loadPlatformBackend(opts options) platform.Backend {
	switch opts.PlatformBackend {
	case "efivars":
		return efivars.New()
	case "none":
		return nil
	default:
		return nvram.New()
	}
}

// deviceMessage renders a device.Device into the IPC ADD_DEVICE payload
// (spec §4.J), reading the display fields iterate_parsers's SetDeviceInfo
// stashed as properties.
func deviceMessage(dev *device.Device) ipc.DeviceMessage {
	name, _ := dev.Property("_display_name")
	desc, _ := dev.Property("_display_description")
	icon, _ := dev.Property("_display_icon")
	if name == "" {
		name = dev.ID()
	}
	return ipc.DeviceMessage{ID: dev.ID(), Name: name, Description: desc, Icon: icon}
}

// optionMessage renders a device.BootOption into the IPC ADD_OPTION
// payload, rendering each resolved resource as a local path or URL.
func optionMessage(opt *device.BootOption) ipc.OptionMessage {
	return ipc.OptionMessage{
		ID:          opt.ID,
		Name:        opt.Name,
		Description: opt.Description,
		Icon:        opt.Icon,
		BootImage:   resourceString(opt.BootImage),
		Initrd:      resourceString(opt.Initrd),
		Args:        opt.Args,
	}
}

// resourceString renders a resolved resource as the local path or URL
// string the kexec argv builder expects (spec §6 kexec invocation); a nil
// or unresolved resource renders as "" and is simply omitted there.
func resourceString(r *resource.Resource) string {
	if r == nil || !r.Resolved() {
		return ""
	}
	if u := r.URL(); u != nil {
		return u.String()
	}
	return r.LocalPath()
}

func main() {
	var opts options
	if _, err := flags.Parse(&opts); err != nil {
		os.Exit(1)
	}
	logging.MockDebug(opts.Debug)

	socketPath := opts.Socket
	if socketPath == "" {
		socketPath = dirs.PetitbootIPCSocket
	}

	srv, err := ipc.Listen(socketPath)
	if err != nil {
		logging.Noticef("petitbootd: listen %s: %v", socketPath, err)
		os.Exit(1)
	}
	defer srv.Close()

	backend := loadPlatformBackend(opts)
	if backend != nil {
		cfg, err := backend.LoadConfig(context.Background(), opts.NvramPartition)
		if err != nil {
			logging.Noticef("petitbootd: load config: %v", err)
		} else {
			logging.Noticef("petitbootd: loaded config: auto-boot=%v timeout=%ds", cfg.AutoBoot, cfg.TimeoutSec)
		}
	}

	reg := device.NewRegistry()
	chain := newParserChain()
	drv := discover.New(reg, chain)
	drv.OnDeviceAdded = func(dev *device.Device) { srv.AddDevice(deviceMessage(dev)) }
	drv.OnDeviceRemoved = func(dev *device.Device) { srv.RemoveDevice(dev.ID()) }
	drv.OnOptionPublished = func(opt *device.BootOption) { srv.AddOption(optionMessage(opt)) }
	drv.OnOptionUnpublished = func(opt *device.BootOption) { srv.RemoveOption(opt.ID) }

	ws, err := waitset.New()
	if err != nil {
		logging.Noticef("petitbootd: waitset: %v", err)
		os.Exit(1)
	}
	defer ws.Close()

	mon, err := udevmon.NewMonitor()
	if err != nil {
		logging.Noticef("petitbootd: udev monitor: %v", err)
		os.Exit(1)
	}
	defer mon.Close()

	ctx := context.Background()

	initial, err := udevmon.Enumerate()
	if err != nil {
		logging.Noticef("petitbootd: enumerate: %v", err)
	}
	for _, ev := range initial {
		drv.HandleEvent(ctx, ev)
	}

	ws.Add(mon.Fd(), unix.POLLIN, func(int16) bool {
		ev, ok, err := mon.Read()
		if err != nil {
			logging.Debugf("petitbootd: monitor read: %v", err)
			return false
		}
		if !ok {
			return false
		}
		drv.HandleEvent(ctx, ev)
		return false
	})

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigCh
		logging.Noticef("petitbootd: shutting down")
		ws.Stop()
	}()

	if err := ws.Run(); err != nil {
		logging.Noticef("petitbootd: %v", err)
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
