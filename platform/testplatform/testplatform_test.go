package testplatform

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	. "gopkg.in/check.v1"

	"github.com/open-power/petitboot/platform"
)

func Test(t *testing.T) { TestingT(t) }

type testplatformSuite struct{}

var _ = Suite(&testplatformSuite{})

func (s *testplatformSuite) TestDefaultsBeforeFixtureLoaded(c *C) {
	b := New()
	cfg, err := b.LoadConfig(context.Background(), "")
	c.Assert(err, IsNil)
	c.Check(cfg, DeepEquals, platform.DefaultConfig)
}

func (s *testplatformSuite) TestLoadFixture(c *C) {
	path := filepath.Join(c.MkDir(), "fixture.yaml")
	err := os.WriteFile(path, []byte(`
auto-boot: false
timeout-sec: 15
safe-mode: true
network: "aa:bb:cc:dd:ee:ff,dhcp"
boot-order: ["uuid-1", "uuid-2"]
platform: "Test System"
system-id: "abc123"
bmc-mac: "11:22:33:44:55:66"
`), 0644)
	c.Assert(err, IsNil)

	b := New()
	c.Assert(b.LoadFixture(path), IsNil)

	cfg, err := b.LoadConfig(context.Background(), "")
	c.Assert(err, IsNil)
	c.Check(cfg.AutoBoot, Equals, false)
	c.Check(cfg.TimeoutSec, Equals, 15)
	c.Check(cfg.SafeMode, Equals, true)
	c.Check(cfg.Network, Equals, "aa:bb:cc:dd:ee:ff,dhcp")
	c.Check(cfg.BootOrder, DeepEquals, []string{"uuid-1", "uuid-2"})

	info, err := b.GetSysinfo(context.Background())
	c.Assert(err, IsNil)
	c.Check(info.Platform, Equals, "Test System")
	c.Check(info.BMCMAC, Equals, "11:22:33:44:55:66")
}

func (s *testplatformSuite) TestSaveConfigRecordsHistory(c *C) {
	b := New()
	first := platform.Config{AutoBoot: true, TimeoutSec: 5}
	second := platform.Config{AutoBoot: false, TimeoutSec: 0}

	c.Assert(b.SaveConfig(context.Background(), "", first), IsNil)
	c.Assert(b.SaveConfig(context.Background(), "", second), IsNil)

	c.Assert(b.Saved(), HasLen, 2)
	c.Check(b.Saved()[0], DeepEquals, first)
	c.Check(b.Saved()[1], DeepEquals, second)

	cfg, err := b.LoadConfig(context.Background(), "")
	c.Assert(err, IsNil)
	c.Check(cfg, DeepEquals, second)
}
