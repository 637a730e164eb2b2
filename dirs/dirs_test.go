package dirs_test

import (
	"path/filepath"
	"testing"

	. "gopkg.in/check.v1"

	"github.com/open-power/petitboot/dirs"
)

func Test(t *testing.T) { TestingT(t) }

type dirsSuite struct{}

var _ = Suite(&dirsSuite{})

func (s *dirsSuite) TearDownTest(c *C) {
	dirs.SetRootDir("")
}

func (s *dirsSuite) TestSetRootDirUpdatesDerivedPaths(c *C) {
	root := c.MkDir()
	dirs.SetRootDir(root)

	c.Check(dirs.PetitbootMountDir, Equals, filepath.Join(root, "var/tmp/petitboot"))
	c.Check(dirs.PetitbootIPCSocket, Equals, filepath.Join(root, "var/tmp/petitboot-dev"))
	c.Check(dirs.EFIVarsDir, Equals, filepath.Join(root, "sys/firmware/efi/efivars"))
}

func (s *dirsSuite) TestSetRootDirEmptyRestoresSlash(c *C) {
	dirs.SetRootDir(c.MkDir())
	dirs.SetRootDir("")
	c.Check(dirs.GlobalRootDir, Equals, "/")
}
