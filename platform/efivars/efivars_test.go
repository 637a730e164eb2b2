package efivars

import (
	"context"
	"os"
	"testing"

	. "gopkg.in/check.v1"

	"github.com/open-power/petitboot/dirs"
	"github.com/open-power/petitboot/platform"
)

func Test(t *testing.T) { TestingT(t) }

type efivarsSuite struct{}

var _ = Suite(&efivarsSuite{})

func (s *efivarsSuite) SetUpTest(c *C) {
	dirs.SetRootDir(c.MkDir())
	os.MkdirAll(dirs.EFIVarsDir, 0755)
}

func (s *efivarsSuite) TearDownTest(c *C) {
	dirs.SetRootDir("")
}

func (s *efivarsSuite) TestLoadConfigMissingVariableReturnsDefault(c *C) {
	b := New()
	cfg, err := b.LoadConfig(context.Background(), "")
	c.Assert(err, IsNil)
	c.Check(cfg.AutoBoot, Equals, platform.DefaultConfig.AutoBoot)
	c.Check(cfg.TimeoutSec, Equals, platform.DefaultConfig.TimeoutSec)
}

func (s *efivarsSuite) TestSaveThenLoadRoundTrips(c *C) {
	b := New()
	cfg, err := b.LoadConfig(context.Background(), "")
	c.Assert(err, IsNil)

	cfg.AutoBoot = false
	cfg.TimeoutSec = 30
	cfg.Network = "aa:bb:cc:dd:ee:ff,dhcp"
	cfg.BootOrder = []string{"uuid-1", "uuid-2"}

	c.Assert(b.SaveConfig(context.Background(), "", cfg), IsNil)

	got, err := b.LoadConfig(context.Background(), "")
	c.Assert(err, IsNil)
	c.Check(got.AutoBoot, Equals, false)
	c.Check(got.TimeoutSec, Equals, 30)
	c.Check(got.Network, Equals, "aa:bb:cc:dd:ee:ff,dhcp")
	c.Check(got.BootOrder, DeepEquals, []string{"uuid-1", "uuid-2"})
}

func (s *efivarsSuite) TestSaveOverwritesExistingVariable(c *C) {
	b := New()
	cfg, _ := b.LoadConfig(context.Background(), "")
	cfg.TimeoutSec = 5
	c.Assert(b.SaveConfig(context.Background(), "", cfg), IsNil)

	cfg.TimeoutSec = 99
	c.Assert(b.SaveConfig(context.Background(), "", cfg), IsNil)

	got, err := b.LoadConfig(context.Background(), "")
	c.Assert(err, IsNil)
	c.Check(got.TimeoutSec, Equals, 99)
}
