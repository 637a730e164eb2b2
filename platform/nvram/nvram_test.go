package nvram_test

import (
	"context"
	"os/exec"
	"strings"
	"testing"

	. "gopkg.in/check.v1"

	"github.com/open-power/petitboot/dirs"
	"github.com/open-power/petitboot/platform/nvram"
	"github.com/open-power/petitboot/procsup"
)

func Test(t *testing.T) { TestingT(t) }

type nvramSuite struct {
	updateCalls []string
	origRunner  func(ctx context.Context, argv []string) *exec.Cmd
}

var _ = Suite(&nvramSuite{})

const fakePrintConfig = "common partition\n------------------\n" +
	"auto-boot?=true\n" +
	"petitboot,network=\n" +
	"unknown-param=ignored\n"

func (s *nvramSuite) SetUpTest(c *C) {
	s.updateCalls = nil
	s.origRunner = procsup.Runner
	procsup.Runner = func(ctx context.Context, argv []string) *exec.Cmd {
		if len(argv) >= 2 && argv[1] == "--print-config" {
			return exec.CommandContext(ctx, "printf", "%s", fakePrintConfig)
		}
		if len(argv) >= 2 && argv[1] == "--update-config" {
			s.updateCalls = append(s.updateCalls, strings.Join(argv, " "))
			return exec.CommandContext(ctx, "true")
		}
		return exec.CommandContext(ctx, "false")
	}
}

func (s *nvramSuite) TearDownTest(c *C) {
	procsup.Runner = s.origRunner
}

func (s *nvramSuite) TestLoadConfigParsesKnownParams(c *C) {
	b := nvram.New()
	cfg, err := b.LoadConfig(context.Background(), "common")
	c.Assert(err, IsNil)
	c.Check(cfg.AutoBoot, Equals, true)
	c.Check(cfg.Network, Equals, "")
}

func (s *nvramSuite) TestLoadConfigAutoBootFalse(c *C) {
	procsup.Runner = func(ctx context.Context, argv []string) *exec.Cmd {
		return exec.CommandContext(ctx, "printf", "%s",
			"common partition\n------------------\nauto-boot?=false\n")
	}
	b := nvram.New()
	cfg, err := b.LoadConfig(context.Background(), "common")
	c.Assert(err, IsNil)
	c.Check(cfg.AutoBoot, Equals, false)
}

func (s *nvramSuite) TestSaveConfigOnlyWritesChangedParams(c *C) {
	b := nvram.New()
	cfg, err := b.LoadConfig(context.Background(), "common")
	c.Assert(err, IsNil)

	cfg.Network = "aa:bb:cc:dd:ee:ff,dhcp"

	err = b.SaveConfig(context.Background(), "common", cfg)
	c.Assert(err, IsNil)

	c.Assert(s.updateCalls, HasLen, 1)
	c.Check(s.updateCalls[0], Equals,
		dirs.NvramCmd+" --update-config petitboot,network=aa:bb:cc:dd:ee:ff,dhcp --partition common")
}

func (s *nvramSuite) TestSaveConfigNoChangesWritesNothing(c *C) {
	b := nvram.New()
	cfg, err := b.LoadConfig(context.Background(), "common")
	c.Assert(err, IsNil)

	err = b.SaveConfig(context.Background(), "common", cfg)
	c.Assert(err, IsNil)
	c.Check(s.updateCalls, HasLen, 0)
}
