package arena_test

import (
	"testing"

	. "gopkg.in/check.v1"

	"github.com/open-power/petitboot/arena"
)

func Test(t *testing.T) { TestingT(t) }

type arenaSuite struct{}

var _ = Suite(&arenaSuite{})

func (s *arenaSuite) TestFreeRunsDestructorsChildFirst(c *C) {
	var order []string

	root := arena.New()
	root.Alloc("parent", func() { order = append(order, "parent") })
	child := root.NewChild()
	child.Alloc("child", func() { order = append(order, "child") })

	root.Free()

	c.Assert(order, DeepEquals, []string{"child", "parent"})
}

func (s *arenaSuite) TestFreeIsIdempotent(c *C) {
	calls := 0
	root := arena.New()
	root.Alloc("x", func() { calls++ })

	root.Free()
	root.Free()

	c.Assert(calls, Equals, 1)
}

func (s *arenaSuite) TestReparentTransfersOwnership(c *C) {
	calls := 0
	a1 := arena.New()
	a2 := arena.New()

	h := a1.Alloc("x", func() { calls++ })
	h.Reparent(a2)

	a1.Free()
	c.Assert(calls, Equals, 0, Commentf("reparented handle must survive its old owner's free"))

	a2.Free()
	c.Assert(calls, Equals, 1)
}

func (s *arenaSuite) TestLinkKeepsAllocationAliveUntilLastRelease(c *C) {
	calls := 0
	a := arena.New()
	h := a.Alloc("x", func() { calls++ })
	h2 := h.Link()

	h.Release()
	c.Assert(calls, Equals, 0)

	h2.Release()
	c.Assert(calls, Equals, 1)
}

func (s *arenaSuite) TestReparentToNilThenFreeParentFreesOnce(c *C) {
	calls := 0
	root := arena.New()
	h := root.Alloc("x", func() { calls++ })
	h.Reparent(nil)
	root.Free()
	c.Assert(calls, Equals, 0)
	h.Release()
	c.Assert(calls, Equals, 1)
}
