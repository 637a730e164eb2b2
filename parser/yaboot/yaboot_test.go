package yaboot_test

import (
	"os"
	"path/filepath"
	"testing"

	. "gopkg.in/check.v1"

	"github.com/open-power/petitboot/device"
	"github.com/open-power/petitboot/parser"
	"github.com/open-power/petitboot/parser/yaboot"
)

func Test(t *testing.T) { TestingT(t) }

type yabootSuite struct{}

var _ = Suite(&yabootSuite{})

func writeConf(c *C, mount, content string) {
	c.Assert(os.MkdirAll(filepath.Join(mount, "etc"), 0755), IsNil)
	c.Assert(os.WriteFile(filepath.Join(mount, "etc", "yaboot.conf"), []byte(content), 0644), IsNil)
}

func newCtx(c *C, mount string) (*parser.Context, *device.Device) {
	reg := device.NewRegistry()
	dev := device.New("dev1", device.ClassDisk, nil)
	dev.SetMountPoint(mount)
	reg.Add(dev)
	return parser.NewContext(dev, reg), dev
}

// TestDefaultSelection reproduces spec.md's yaboot end-to-end scenario:
// a config naming "default=linux.2" among two images selects that one.
func (s *yabootSuite) TestDefaultSelection(c *C) {
	mount := c.MkDir()
	writeConf(c, mount, `
root=/dev/sda2
default=linux.2
image=/vmlinux.1
	label=linux.1
	append="console=hvc0"
image=/vmlinux.2
	label=linux.2
	append="console=hvc0 debug"
`)

	ctx, dev := newCtx(c, mount)
	res, err := yaboot.New().Parse(ctx)
	c.Assert(err, IsNil)
	c.Check(res, Equals, parser.Found)
	ctx.Commit()

	opts := dev.Options()
	c.Assert(opts, HasLen, 2)
	c.Check(opts[0].Name, Equals, "linux.1")
	c.Check(opts[0].IsDefault, Equals, false)
	c.Check(opts[0].Args, Equals, "root=/dev/sda2 console=hvc0")
	c.Check(opts[1].Name, Equals, "linux.2")
	c.Check(opts[1].IsDefault, Equals, true)
	c.Check(opts[1].Args, Equals, "root=/dev/sda2 console=hvc0 debug")
}

// TestLabelDefaultsToImageBasename checks that an image stanza without
// an explicit label derives one from the image path.
func (s *yabootSuite) TestLabelDefaultsToImageBasename(c *C) {
	mount := c.MkDir()
	writeConf(c, mount, "image=/boot/vmlinux\n\troot=/dev/sda1\n")

	ctx, dev := newCtx(c, mount)
	_, err := yaboot.New().Parse(ctx)
	c.Assert(err, IsNil)
	ctx.Commit()

	c.Assert(dev.Options(), HasLen, 1)
	c.Check(dev.Options()[0].Name, Equals, "vmlinux")
	c.Check(dev.Options()[0].IsDefault, Equals, true)
}

// TestLiteralOverridesComposedArgs checks that a "literal" field bypasses
// the usual root/append composition entirely.
func (s *yabootSuite) TestLiteralOverridesComposedArgs(c *C) {
	mount := c.MkDir()
	writeConf(c, mount, `image=/vmlinux
	root=/dev/sda1
	literal="console=hvc0 custom"
`)

	ctx, dev := newCtx(c, mount)
	_, err := yaboot.New().Parse(ctx)
	c.Assert(err, IsNil)
	ctx.Commit()

	c.Check(dev.Options()[0].Args, Equals, "console=hvc0 custom")
}

// TestNoConfigIsNotApplicable checks a device without yaboot.conf yields
// NotApplicable.
func (s *yabootSuite) TestNoConfigIsNotApplicable(c *C) {
	mount := c.MkDir()
	ctx, _ := newCtx(c, mount)
	res, err := yaboot.New().Parse(ctx)
	c.Assert(err, IsNil)
	c.Check(res, Equals, parser.NotApplicable)
}
