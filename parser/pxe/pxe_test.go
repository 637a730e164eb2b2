package pxe_test

import (
	"net/http"
	"net/http/httptest"
	"testing"

	. "gopkg.in/check.v1"

	"github.com/open-power/petitboot/device"
	"github.com/open-power/petitboot/parser"
	"github.com/open-power/petitboot/parser/pxe"
)

func Test(t *testing.T) { TestingT(t) }

type pxeSuite struct{}

var _ = Suite(&pxeSuite{})

// httpConf serves content at the given path under a test HTTP server and
// returns an event's pxeconffile value pointing at it.
func httpConf(c *C, path, content string) (*httptest.Server, string) {
	mux := http.NewServeMux()
	mux.HandleFunc(path, func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(content))
	})
	srv := httptest.NewServer(mux)
	return srv, srv.URL + path
}

// TestRelativeResolution reproduces spec.md's PXE scenario verbatim: a
// pxeconffile event plus a conf body with bare kernel/initrd directives
// under a single LABEL resolve relative to the conf file's own
// directory.
func (s *pxeSuite) TestRelativeResolution(c *C) {
	srv, confURL := httpConf(c, "/dir/conf.text", "label linux\nkernel vmlinux\ninitrd initrd\n")
	defer srv.Close()

	reg := device.NewRegistry()
	dev := device.New("net0", device.ClassNetwork, nil)
	reg.Add(dev)
	ctx := parser.NewContext(dev, reg)
	ctx.NetEvent = &parser.NetEvent{PXEConfFile: confURL}

	res, err := pxe.New().Parse(ctx)
	c.Assert(err, IsNil)
	c.Check(res, Equals, parser.Found)
	ctx.Commit()

	opts := dev.Options()
	c.Assert(opts, HasLen, 1)
	o := opts[0]
	c.Check(o.Name, Equals, "linux")
	c.Assert(o.BootImage, NotNil)
	c.Assert(o.Initrd, NotNil)
	c.Check(o.BootImage.URL().String(), Equals, srv.URL+"/dir/vmlinux")
	c.Check(o.Initrd.URL().String(), Equals, srv.URL+"/dir/initrd")
}

// TestIPXEScriptWithName reproduces original_source's
// test-pxe-ipxe-named.c.
func (s *pxeSuite) TestIPXEScriptWithName(c *C) {
	srv, confURL := httpConf(c, "/dir1/conf",
		"#!ipxe\nkernel vmlinux --name test-option append kernel args\ninitrd initrd\n")
	defer srv.Close()

	reg := device.NewRegistry()
	dev := device.New("net0", device.ClassNetwork, nil)
	reg.Add(dev)
	ctx := parser.NewContext(dev, reg)
	ctx.NetEvent = &parser.NetEvent{BootfileURL: confURL}

	res, err := pxe.New().Parse(ctx)
	c.Assert(err, IsNil)
	c.Check(res, Equals, parser.Found)
	ctx.Commit()

	opts := dev.Options()
	c.Assert(opts, HasLen, 1)
	o := opts[0]
	c.Check(o.Name, Equals, "test-option")
	c.Check(o.Args, Equals, "append kernel args")
	c.Check(o.BootImage.URL().String(), Equals, srv.URL+"/dir1/vmlinux")
	c.Check(o.Initrd.URL().String(), Equals, srv.URL+"/dir1/initrd")
}

// TestIPAppendBootif reproduces original_source's test-pxe-ipappend.c:
// IPAPPEND 2 appends BOOTIF derived from the event's MAC.
func (s *pxeSuite) TestIPAppendBootif(c *C) {
	srv, confURL := httpConf(c, "/dir/conf.txt",
		"default linux\n\nlabel linux\nkernel ./pxe/de-ad-de-ad-be-ef.vmlinuz\nappend command line\nipappend 2\n")
	defer srv.Close()

	reg := device.NewRegistry()
	dev := device.New("net0", device.ClassNetwork, nil)
	reg.Add(dev)
	ctx := parser.NewContext(dev, reg)
	ctx.NetEvent = &parser.NetEvent{PXEConfFile: confURL, MAC: "01:02:03:04:05:06"}

	_, err := pxe.New().Parse(ctx)
	c.Assert(err, IsNil)
	ctx.Commit()

	opts := dev.Options()
	c.Assert(opts, HasLen, 1)
	c.Check(opts[0].Name, Equals, "linux")
	c.Check(opts[0].Args, Equals, "command line BOOTIF=01-01-02-03-04-05-06")
	c.Check(opts[0].IsDefault, Equals, true)
}

// TestMacDerivedFilename checks pxepathprefix + MAC enumeration when no
// explicit pxeconffile/bootfile_url is given.
func (s *pxeSuite) TestMacDerivedFilename(c *C) {
	srv, _ := httpConf(c, "/pxelinux.cfg/01-aa-bb-cc-dd-ee-ff",
		"label linux\nkernel vmlinux\n")
	defer srv.Close()

	reg := device.NewRegistry()
	dev := device.New("net0", device.ClassNetwork, nil)
	reg.Add(dev)
	ctx := parser.NewContext(dev, reg)
	ctx.NetEvent = &parser.NetEvent{
		PXEPathPrefix: srv.URL + "/pxelinux.cfg/",
		MAC:           "AA:BB:CC:DD:EE:FF",
	}

	res, err := pxe.New().Parse(ctx)
	c.Assert(err, IsNil)
	c.Check(res, Equals, parser.Found)
	ctx.Commit()

	c.Assert(dev.Options(), HasLen, 1)
	c.Check(dev.Options()[0].Name, Equals, "linux")
}

// TestLocalDeviceContextIsNotApplicable reproduces test-pxe-local.c: the
// PXE parser must not activate on a plain mounted-device context, even
// one holding valid config content for another parser.
func (s *pxeSuite) TestLocalDeviceContextIsNotApplicable(c *C) {
	reg := device.NewRegistry()
	dev := device.New("dev1", device.ClassDisk, nil)
	reg.Add(dev)
	ctx := parser.NewContext(dev, reg)

	res, err := pxe.New().Parse(ctx)
	c.Assert(err, IsNil)
	c.Check(res, Equals, parser.NotApplicable)
	c.Check(dev.Options(), HasLen, 0)
}

// TestEmptyConfigIsEmpty reproduces test-pxe-empty.c.
func (s *pxeSuite) TestEmptyConfigIsEmpty(c *C) {
	srv, confURL := httpConf(c, "/dir/conf.txt", "")
	defer srv.Close()

	reg := device.NewRegistry()
	dev := device.New("net0", device.ClassNetwork, nil)
	reg.Add(dev)
	ctx := parser.NewContext(dev, reg)
	ctx.NetEvent = &parser.NetEvent{PXEConfFile: confURL}

	res, err := pxe.New().Parse(ctx)
	c.Assert(err, IsNil)
	c.Check(res, Equals, parser.Empty)
}
