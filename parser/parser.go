// Package parser implements the parser framework of spec §4.G: a
// priority-ordered chain of config parsers sharing a DiscoverContext and
// a file-request API that resolves through the device registry.
package parser

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/open-power/petitboot/arena"
	"github.com/open-power/petitboot/bootutil/pburl"
	"github.com/open-power/petitboot/device"
)

// Result is the tri-state parser outcome of spec §3 ParseResult.
type Result int

const (
	NotApplicable Result = iota
	Empty
	Found
)

// NetEvent carries the user-action fields relevant to the PXE parser
// (spec §3 Event, §4.H PXE).
type NetEvent struct {
	PXEConfFile   string
	BootfileURL   string
	PXEPathPrefix string
	MAC           string
	ClientIP      string
}

// Parser is spec §3's Parser entity: a name, a priority, and a parse
// function, registered into a descending-priority table at startup.
type Parser interface {
	Name() string
	Priority() int
	Parse(ctx *Context) (Result, error)
}

// Context is spec §3's DiscoverContext: per-device, per-parse scratch.
type Context struct {
	Device    *device.Device
	Registry  *device.Registry
	NetEvent  *NetEvent
	SourceURL *pburl.URL // set when parsing a downloaded (PXE) config

	arena     *arena.Arena
	abandoned bool
	found     []*device.BootOption
}

// NewContext creates a per-parse context with its own arena, child of the
// device's arena (spec §4.C).
func NewContext(dev *device.Device, reg *device.Registry) *Context {
	var a *arena.Arena
	if dev != nil {
		a = dev.Arena().NewChild()
	} else {
		a = arena.New()
	}
	return &Context{Device: dev, Registry: reg, arena: a}
}

// Arena returns the per-parse scratch arena.
func (ctx *Context) Arena() *arena.Arena { return ctx.arena }

// Abandon marks the in-flight parse as abandoned (spec §5 cancellation):
// it completes, but AddBootOption becomes a no-op and Commit attaches
// nothing to the Device.
func (ctx *Context) Abandon() { ctx.abandoned = true }

// Abandoned reports whether Abandon was called.
func (ctx *Context) Abandoned() bool { return ctx.abandoned }

// AddBootOption attaches opt to the context's Device (spec §4.G
// add_boot_option). A no-op if the context has been abandoned.
func (ctx *Context) AddBootOption(opt *device.BootOption) {
	if ctx.abandoned {
		return
	}
	ctx.found = append(ctx.found, opt)
}

// Commit attaches every option accumulated via AddBootOption to the
// Device, called once a parser returns Found. It neither resolves nor
// publishes them. A no-op if abandoned.
func (ctx *Context) Commit() {
	if ctx.abandoned || ctx.Device == nil {
		return
	}
	for _, opt := range ctx.found {
		ctx.Device.AddOption(opt)
	}
}

// SetDeviceInfo replaces the Device's display name/description/icon
// (spec §4.G set_device_info).
func (ctx *Context) SetDeviceInfo(name, description, icon string) {
	if ctx.abandoned || ctx.Device == nil {
		return
	}
	ctx.Device.SetProperty("_display_name", name)
	ctx.Device.SetProperty("_display_description", description)
	ctx.Device.SetProperty("_display_icon", icon)
}

// RequestFile resolves relpath through the registry and reads it (spec
// §4.G request_file). Path handling:
//   - absolute relpath: taken as in-device, relative to ctx.Device's mount.
//   - "device:path" form: the leading token is a UUID, LABEL, or legacy
//     device name; the matching device is used (mounting is the caller's
//     responsibility during discovery; here we only require it already be
//     mounted, since request_file is called mid-parse on an already-mounted
//     device per spec §4.I).
//   - otherwise: relative to ctx.Device's mount.
func (ctx *Context) RequestFile(relpath string) ([]byte, error) {
	devID, path, hasDevSpec := splitDevSpec(relpath)
	target := ctx.Device
	if hasDevSpec {
		d, ok := ctx.Registry.LookupByUUID(devID)
		if !ok {
			d, ok = ctx.Registry.LookupByLabel(devID)
		}
		if !ok {
			d, ok = ctx.Registry.LookupByPartName(devID)
		}
		if !ok {
			return nil, fmt.Errorf("parser: no device matching %q", devID)
		}
		target = d
	}
	if target == nil || !target.IsMounted() {
		return nil, fmt.Errorf("parser: device not mounted")
	}
	full := filepath.Join(target.MountPoint(), path)
	f, err := os.Open(full)
	if err != nil {
		return nil, fmt.Errorf("parser: %w", err)
	}
	defer f.Close()
	return io.ReadAll(f)
}

// ListDir lists the names of entries under relpath on ctx.Device's
// mount (spec §4.H grub2 blscfg, which must enumerate
// /loader/entries/*.conf without a full glob facility).
func (ctx *Context) ListDir(relpath string) ([]string, error) {
	if ctx.Device == nil || !ctx.Device.IsMounted() {
		return nil, fmt.Errorf("parser: device not mounted")
	}
	full := filepath.Join(ctx.Device.MountPoint(), relpath)
	entries, err := os.ReadDir(full)
	if err != nil {
		return nil, fmt.Errorf("parser: %w", err)
	}
	names := make([]string, 0, len(entries))
	for _, e := range entries {
		names = append(names, e.Name())
	}
	return names, nil
}

// splitDevSpec recognizes the "device:path" form: any path that does not
// start with '/' and has a ':' after its first byte is split at that ':'.
// A path starting with '/' is never treated as a devspec.
func splitDevSpec(relpath string) (devID, path string, ok bool) {
	idx := strings.IndexByte(relpath, ':')
	if idx <= 0 || strings.HasPrefix(relpath, "/") {
		return "", relpath, false
	}
	return relpath[:idx], relpath[idx+1:], true
}

// Chain is the priority-ordered parser table of spec §4.G.
type Chain struct {
	parsers []Parser
}

// NewChain creates an empty chain.
func NewChain() *Chain { return &Chain{} }

// Register adds p to the chain and re-sorts by descending priority,
// ties broken by registration order (spec §3 invariant 3: strictly
// decreasing priority, stable order).
func (c *Chain) Register(p Parser) {
	c.parsers = append(c.parsers, p)
	sort.SliceStable(c.parsers, func(i, j int) bool {
		return c.parsers[i].Priority() > c.parsers[j].Priority()
	})
}

// Parsers returns the registered parsers in priority order.
func (c *Chain) Parsers() []Parser {
	out := make([]Parser, len(c.parsers))
	copy(out, c.parsers)
	return out
}

// IterateParsers runs each registered parser against ctx until one
// returns Empty or Found, in strictly decreasing priority order (spec §3
// invariant 3, §8 invariant 1). On Found, ctx's accumulated options are
// committed to the Device. Returns the terminating parser's name (empty
// if every parser returned NotApplicable) and its result.
func (c *Chain) IterateParsers(ctx *Context) (parserName string, result Result, err error) {
	for _, p := range c.parsers {
		res, perr := p.Parse(ctx)
		if perr != nil {
			// A non-fatal parser error degrades to not-applicable
			// (spec §7 propagation policy): move on to the next parser.
			continue
		}
		if res == NotApplicable {
			continue
		}
		if res == Found {
			ctx.Commit()
		}
		return p.Name(), res, nil
	}
	return "", NotApplicable, nil
}
