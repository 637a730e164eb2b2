package bootenv_test

import (
	"os"
	"path/filepath"
	"testing"

	. "gopkg.in/check.v1"

	"github.com/open-power/petitboot/bootenv"
)

func Test(t *testing.T) { TestingT(t) }

type bootenvSuite struct{}

var _ = Suite(&bootenvSuite{})

func (s *bootenvSuite) TestSaveEnvCreatesDefaultSizedBlock(c *C) {
	path := filepath.Join(c.MkDir(), "grubenv")

	err := bootenv.SaveEnv(path, map[string]string{"saved_entry": "0"})
	c.Assert(err, IsNil)

	info, err := os.Stat(path)
	c.Assert(err, IsNil)
	c.Check(info.Size(), Equals, int64(bootenv.DefaultSize))

	vars, err := bootenv.ReadEnv(path)
	c.Assert(err, IsNil)
	c.Check(vars["saved_entry"], Equals, "0")
}

func (s *bootenvSuite) TestSaveEnvPreservesExactSizeOnUpdate(c *C) {
	path := filepath.Join(c.MkDir(), "grubenv")
	c.Assert(bootenv.SaveEnv(path, map[string]string{"a": "1", "b": "2"}), IsNil)

	before, err := os.Stat(path)
	c.Assert(err, IsNil)

	c.Assert(bootenv.SaveEnv(path, map[string]string{"a": "99"}), IsNil)

	after, err := os.Stat(path)
	c.Assert(err, IsNil)
	c.Check(after.Size(), Equals, before.Size())

	vars, err := bootenv.ReadEnv(path)
	c.Assert(err, IsNil)
	c.Check(vars["a"], Equals, "99")
	c.Check(vars["b"], Equals, "2")
}

func (s *bootenvSuite) TestSignatureLineIsExact(c *C) {
	c.Check(bootenv.Signature, Equals, "# GRUB Environment Block\n")
}

func (s *bootenvSuite) TestReadEnvRejectsMissingSignature(c *C) {
	path := filepath.Join(c.MkDir(), "bad")
	c.Assert(os.WriteFile(path, []byte("not-an-env-block\n"), 0644), IsNil)

	_, err := bootenv.ReadEnv(path)
	c.Assert(err, NotNil)
}

func (s *bootenvSuite) TestSaveEnvErrorsWhenContentDoesNotFit(c *C) {
	path := filepath.Join(c.MkDir(), "grubenv")
	c.Assert(bootenv.SaveEnv(path, map[string]string{"k": "v"}), IsNil)

	big := make(map[string]string)
	for i := 0; i < 200; i++ {
		big[string(rune('a'+i%26))+string(rune(i))] = "some-fairly-long-value-padding-things-out"
	}
	err := bootenv.SaveEnv(path, big)
	c.Assert(err, NotNil)
}
