package parser_test

import (
	"testing"

	. "gopkg.in/check.v1"

	"github.com/open-power/petitboot/device"
	"github.com/open-power/petitboot/parser"
)

func Test(t *testing.T) { TestingT(t) }

type parserSuite struct{}

var _ = Suite(&parserSuite{})

type stubParser struct {
	name     string
	priority int
	result   parser.Result
	called   *[]string
}

func (p *stubParser) Name() string     { return p.name }
func (p *stubParser) Priority() int    { return p.priority }
func (p *stubParser) Parse(ctx *parser.Context) (parser.Result, error) {
	*p.called = append(*p.called, p.name)
	if p.result == parser.Found {
		ctx.AddBootOption(&device.BootOption{Name: p.name})
	}
	return p.result, nil
}

func (s *parserSuite) TestHigherPriorityParserWinsAndStopsChain(c *C) {
	var called []string
	chain := parser.NewChain()
	chain.Register(&stubParser{name: "low", priority: 10, result: parser.Found, called: &called})
	chain.Register(&stubParser{name: "high", priority: 90, result: parser.Found, called: &called})
	chain.Register(&stubParser{name: "mid", priority: 50, result: parser.NotApplicable, called: &called})

	dev := device.New("d1", device.ClassDisk, nil)
	reg := device.NewRegistry()
	ctx := parser.NewContext(dev, reg)

	name, res, err := chain.IterateParsers(ctx)
	c.Assert(err, IsNil)
	c.Check(name, Equals, "high")
	c.Check(res, Equals, parser.Found)
	c.Check(called, DeepEquals, []string{"high"})
	c.Check(dev.Options(), HasLen, 1)
}

func (s *parserSuite) TestNotApplicableFallsThrough(c *C) {
	var called []string
	chain := parser.NewChain()
	chain.Register(&stubParser{name: "a", priority: 90, result: parser.NotApplicable, called: &called})
	chain.Register(&stubParser{name: "b", priority: 50, result: parser.Empty, called: &called})

	dev := device.New("d1", device.ClassDisk, nil)
	reg := device.NewRegistry()
	ctx := parser.NewContext(dev, reg)

	name, res, err := chain.IterateParsers(ctx)
	c.Assert(err, IsNil)
	c.Check(name, Equals, "b")
	c.Check(res, Equals, parser.Empty)
	c.Check(called, DeepEquals, []string{"a", "b"})
}

func (s *parserSuite) TestAbandonedContextDiscardsOptions(c *C) {
	dev := device.New("d1", device.ClassDisk, nil)
	reg := device.NewRegistry()
	ctx := parser.NewContext(dev, reg)
	ctx.Abandon()
	ctx.AddBootOption(&device.BootOption{Name: "x"})
	ctx.Commit()

	c.Check(dev.Options(), HasLen, 0)
}
