package pburl_test

import (
	"testing"

	. "gopkg.in/check.v1"

	"github.com/open-power/petitboot/bootutil/pburl"
)

func Test(t *testing.T) { TestingT(t) }

type urlSuite struct{}

var _ = Suite(&urlSuite{})

func (s *urlSuite) TestParsePathOnlyIsFileLocal(c *C) {
	u, err := pburl.Parse("/boot/vmlinuz")
	c.Assert(err, IsNil)
	c.Check(u.Scheme, Equals, pburl.SchemeFile)
	c.Check(u.Dir, Equals, "/boot/")
	c.Check(u.File, Equals, "vmlinuz")
}

func (s *urlSuite) TestParseSchemeHostPort(c *C) {
	u, err := pburl.Parse("tftp://host:69/dir/conf.text")
	c.Assert(err, IsNil)
	c.Check(u.Scheme, Equals, pburl.SchemeTFTP)
	c.Check(u.Host, Equals, "host")
	c.Check(u.Port, Equals, "69")
	c.Check(u.Dir, Equals, "/dir/")
	c.Check(u.File, Equals, "conf.text")
}

func (s *urlSuite) TestParseRejectsUnsupportedScheme(c *C) {
	_, err := pburl.Parse("gopher://host/x")
	c.Assert(err, NotNil)
}

func (s *urlSuite) TestJoinRelativeAppendsToBaseDir(c *C) {
	base, err := pburl.Parse("tftp://host/dir/conf.text")
	c.Assert(err, IsNil)

	joined, err := pburl.Join(base, "vmlinux")
	c.Assert(err, IsNil)
	c.Check(joined.String(), Equals, "tftp://host/dir/vmlinux")
}

func (s *urlSuite) TestJoinAbsolutePathReplacesBasePath(c *C) {
	base, err := pburl.Parse("tftp://host/dir/conf.text")
	c.Assert(err, IsNil)

	joined, err := pburl.Join(base, "/other/initrd")
	c.Assert(err, IsNil)
	c.Check(joined.String(), Equals, "tftp://host/other/initrd")
}

func (s *urlSuite) TestJoinFullyQualifiedIsAbsolute(c *C) {
	base, err := pburl.Parse("tftp://host/dir/conf.text")
	c.Assert(err, IsNil)

	joined, err := pburl.Join(base, "http://other/x")
	c.Assert(err, IsNil)
	c.Check(joined.String(), Equals, "http://other/x")
}

func (s *urlSuite) TestRoundTripIsIdentityOnCanonicalInput(c *C) {
	raw := "http://host:8080/a/b/c"
	u, err := pburl.Parse(raw)
	c.Assert(err, IsNil)
	c.Check(u.String(), Equals, raw)
}
