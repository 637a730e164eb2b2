package grub2_test

import (
	"os"
	"path/filepath"
	"testing"

	. "gopkg.in/check.v1"

	"github.com/open-power/petitboot/device"
	"github.com/open-power/petitboot/parser"
	"github.com/open-power/petitboot/parser/grub2"
)

func Test(t *testing.T) { TestingT(t) }

type grub2Suite struct{}

var _ = Suite(&grub2Suite{})

func writeConf(c *C, mount, relpath, content string) {
	full := filepath.Join(mount, relpath)
	c.Assert(os.MkdirAll(filepath.Dir(full), 0755), IsNil)
	c.Assert(os.WriteFile(full, []byte(content), 0644), IsNil)
}

func newCtx(c *C, mount string) (*parser.Context, *device.Device, *device.Registry) {
	reg := device.NewRegistry()
	dev := device.New("dev1", device.ClassDisk, nil)
	dev.SetMountPoint(mount)
	reg.Add(dev)
	return parser.NewContext(dev, reg), dev, reg
}

// TestBasicMenuentry checks a single menuentry with linux/initrd yields
// one resolved BootOption.
func (s *grub2Suite) TestBasicMenuentry(c *C) {
	mount := c.MkDir()
	writeConf(c, mount, "boot/grub/grub.cfg", `
menuentry 'Linux' {
	linux /vmlinuz root=/dev/sda1 console=hvc0
	initrd /initrd.img
}
`)

	ctx, dev, reg := newCtx(c, mount)
	res, err := grub2.New().Parse(ctx)
	c.Assert(err, IsNil)
	c.Check(res, Equals, parser.Found)
	ctx.Commit()

	opts := dev.Options()
	c.Assert(opts, HasLen, 1)
	o := opts[0]
	c.Check(o.Name, Equals, "Linux")
	c.Check(o.Args, Equals, "root=/dev/sda1 console=hvc0")
	c.Assert(o.BootImage, NotNil)
	c.Assert(o.Initrd, NotNil)

	c.Check(o.BootImage.Resolve(reg.AsResourceRegistry(), dev), Equals, true)
	c.Check(o.BootImage.LocalPath(), Equals, filepath.Join(mount, "vmlinuz"))
}

// TestDefaultByNumericIndex checks `set default=N` selects the Nth entry.
func (s *grub2Suite) TestDefaultByNumericIndex(c *C) {
	mount := c.MkDir()
	writeConf(c, mount, "boot/grub/grub.cfg", `
set default=1
menuentry 'one' {
	linux /one/vmlinuz
}
menuentry 'two' {
	linux /two/vmlinuz
}
`)

	ctx, dev, _ := newCtx(c, mount)
	_, err := grub2.New().Parse(ctx)
	c.Assert(err, IsNil)
	ctx.Commit()

	opts := dev.Options()
	c.Assert(opts, HasLen, 2)
	c.Check(opts[0].IsDefault, Equals, false)
	c.Check(opts[1].IsDefault, Equals, true)
}

// TestDefaultByID checks `set default=` matching a menuentry's --id
// selects that entry over its position.
func (s *grub2Suite) TestDefaultByID(c *C) {
	mount := c.MkDir()
	writeConf(c, mount, "boot/grub/grub.cfg", `
set default=rescue
menuentry 'one' --id=rescue {
	linux /one/vmlinuz
}
menuentry 'two' {
	linux /two/vmlinuz
}
`)

	ctx, dev, _ := newCtx(c, mount)
	_, err := grub2.New().Parse(ctx)
	c.Assert(err, IsNil)
	ctx.Commit()

	opts := dev.Options()
	c.Assert(opts, HasLen, 2)
	c.Check(opts[0].IsDefault, Equals, true)
	c.Check(opts[1].IsDefault, Equals, false)
}

// TestCrossDeviceSearchProducesUnresolvedThenResolves reproduces spec.md's
// grub2 cross-device scenario: a config referencing
// `search --set=root --fs-uuid 48c1b787-...` must produce an unresolved
// boot image resource; once a device with a matching UUID is registered,
// resolving the resource against the registry must succeed and point at
// that device's mount.
func (s *grub2Suite) TestCrossDeviceSearchProducesUnresolvedThenResolves(c *C) {
	const uuid = "48c1b787-0000-0000-0000-000000000001"
	mount := c.MkDir()
	writeConf(c, mount, "boot/grub/grub.cfg", `
search --set=root --fs-uuid `+uuid+`
menuentry 'Linux' {
	linux ($root)/vmlinuz root=/dev/sda1
	initrd ($root)/initrd.img
}
`)

	ctx, dev, reg := newCtx(c, mount)
	res, err := grub2.New().Parse(ctx)
	c.Assert(err, IsNil)
	c.Check(res, Equals, parser.Found)
	ctx.Commit()

	opts := dev.Options()
	c.Assert(opts, HasLen, 1)
	opt := opts[0]
	c.Assert(opt.BootImage, NotNil)
	c.Check(opt.BootImage.Resolved(), Equals, false)
	c.Check(opt.Resolved(), Equals, false)

	// No matching device yet: resolution attempt fails.
	c.Check(opt.BootImage.Resolve(reg.AsResourceRegistry(), nil), Equals, false)

	// Hot-plug an external device carrying the matching UUID.
	ext := device.New("dev2", device.ClassUSB, nil)
	ext.SetUUID(uuid)
	extMount := c.MkDir()
	ext.SetMountPoint(extMount)
	reg.Add(ext)

	c.Check(opt.BootImage.Resolve(reg.AsResourceRegistry(), nil), Equals, true)
	c.Check(opt.Initrd.Resolve(reg.AsResourceRegistry(), nil), Equals, true)
	c.Check(opt.BootImage.LocalPath(), Equals, filepath.Join(extMount, "vmlinuz"))
	c.Check(opt.Initrd.LocalPath(), Equals, filepath.Join(extMount, "initrd.img"))
	c.Check(opt.Resolved(), Equals, true)
}

// TestSourceDepthCap checks a self-recursive `source` does not loop
// forever: it stops once maxSourceDepth is exceeded instead of finding
// any entries from the runaway recursion, while the top-level file's own
// entry still comes through.
func (s *grub2Suite) TestSourceDepthCap(c *C) {
	mount := c.MkDir()
	writeConf(c, mount, "boot/grub/grub.cfg", `
menuentry 'top' {
	linux /vmlinuz
}
source /boot/grub/recurse.cfg
`)
	writeConf(c, mount, "boot/grub/recurse.cfg", `
source /boot/grub/recurse.cfg
`)

	ctx, dev, _ := newCtx(c, mount)
	res, err := grub2.New().Parse(ctx)
	c.Assert(err, IsNil)
	c.Check(res, Equals, parser.Found)
	ctx.Commit()

	c.Assert(dev.Options(), HasLen, 1)
	c.Check(dev.Options()[0].Name, Equals, "top")
}

// TestNoConfigIsNotApplicable checks an absent grub.cfg yields
// NotApplicable so later parsers in the chain get a turn.
func (s *grub2Suite) TestNoConfigIsNotApplicable(c *C) {
	mount := c.MkDir()
	ctx, _, _ := newCtx(c, mount)
	res, err := grub2.New().Parse(ctx)
	c.Assert(err, IsNil)
	c.Check(res, Equals, parser.NotApplicable)
}
