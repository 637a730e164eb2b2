// Package syslinux implements spec §4.H's syslinux/isolinux parser:
// whitespace-tokenized directive lines (DEFAULT, LABEL, KERNEL/LINUX,
// INITRD, APPEND, IPAPPEND, INCLUDE, PROMPT, TIMEOUT, SERIAL, IMPLICIT,
// ALLOWOPTIONS), searched under the conventional isolinux/syslinux
// directory layout.
//
// Grounded on other_examples' u-root syslinux parser
// (e0b544e0_..._syslinux.go): the scope/curEntry state machine, the
// label-order bookkeeping, and the per-directory/per-name search order
// in probeIsolinuxFiles are carried over nearly unchanged, adapted from
// u-root's boot.LinuxImage/curl.Schemes model to device.BootOption/
// resource.Resource and petitboot's RequestFile. The cmdline composition
// rule (global append concatenated with, not overridden by, each label's
// own append) and the "a LABEL-less top-of-file KERNEL never becomes a
// boot option" rule are grounded on
// original_source/test/parser/test-syslinux-global-append.c and
// test-syslinux-explicit.c, whose expected check_args() output rules out
// u-root's override semantics.
package syslinux

import (
	"strconv"
	"strings"

	"github.com/open-power/petitboot/device"
	"github.com/open-power/petitboot/dirs"
	"github.com/open-power/petitboot/parser"
	"github.com/open-power/petitboot/resource"
)

// Priority sits between grub2 and yaboot: syslinux/isolinux configs are
// common on x86 optical/USB media, tried after yaboot but before grub2
// (spec §4.H leaves exact ordering to the registering code).
const Priority = 70

// Parser implements parser.Parser for isolinux.cfg/syslinux.cfg.
type Parser struct{}

func New() *Parser { return &Parser{} }

func (*Parser) Name() string  { return "syslinux" }
func (*Parser) Priority() int { return Priority }

func (p *Parser) Parse(ctx *parser.Context) (parser.Result, error) {
	c := newConfig()
	found := false
	for _, candidate := range dirs.SyslinuxConfigPaths {
		if c.appendFile(ctx, candidate, 0) {
			found = true
			break
		}
	}
	if !found {
		return parser.NotApplicable, nil
	}
	if len(c.labelOrder) == 0 {
		return parser.Empty, nil
	}

	defaultLabel := c.defaultEntry
	if defaultLabel == "" {
		defaultLabel = c.labelOrder[0]
	}
	for _, label := range dedup(c.labelOrder) {
		opt, ok := c.entries[label]
		if !ok {
			continue
		}
		opt.IsDefault = label == defaultLabel
		ctx.AddBootOption(opt)
	}
	return parser.Found, nil
}

type scope uint8

const (
	scopeGlobal scope = iota
	scopeEntry
)

type config struct {
	entries    map[string]*device.BootOption
	labelOrder []string

	defaultEntry string

	globalAppend string
	sawTopKernel bool
	scope        scope
	curEntry     string
}

func newConfig() *config {
	return &config{entries: make(map[string]*device.BootOption)}
}

const maxIncludeDepth = 10

// appendFile loads relpath and appends its directives; returns false if
// the file could not be read (not an error: most candidate paths won't
// exist).
func (c *config) appendFile(ctx *parser.Context, relpath string, depth int) bool {
	if depth > maxIncludeDepth {
		return false
	}
	data, err := ctx.RequestFile(relpath)
	if err != nil {
		return false
	}
	c.append(ctx, string(data), depth)
	return true
}

func (c *config) append(ctx *parser.Context, data string, depth int) {
	for _, line := range strings.Split(data, "\n") {
		fields := strings.Fields(line)
		if len(fields) == 0 {
			continue
		}
		directive := strings.ToUpper(fields[0])
		var arg string
		if len(fields) > 1 {
			arg = strings.Join(fields[1:], " ")
		}

		switch directive {
		case "DEFAULT":
			c.defaultEntry = arg

		case "INCLUDE":
			if arg != "" {
				c.appendFile(ctx, arg, depth+1)
			}

		case "LABEL":
			c.scope = scopeEntry
			c.curEntry = arg
			c.entries[arg] = &device.BootOption{
				Name: arg,
				Args: c.globalAppend,
			}
			c.labelOrder = append(c.labelOrder, arg)

		case "KERNEL", "LINUX":
			if c.scope == scopeGlobal {
				c.sawTopKernel = true
				continue
			}
			if opt, ok := c.entries[c.curEntry]; ok {
				opt.BootImage = resource.NewLocal("", arg)
			}

		case "INITRD":
			if opt, ok := c.entries[c.curEntry]; ok {
				opt.Initrd = resource.NewLocal("", arg)
			}

		case "APPEND":
			switch c.scope {
			case scopeGlobal:
				if !c.sawTopKernel {
					c.globalAppend = arg
				}
			case scopeEntry:
				if opt, ok := c.entries[c.curEntry]; ok {
					if arg == "-" {
						opt.Args = ""
					} else {
						opt.Args = strings.TrimRight(opt.Args+" "+arg, " ")
					}
				}
			}

		case "IPAPPEND":
			if opt, ok := c.entries[c.curEntry]; ok {
				n, _ := strconv.Atoi(arg)
				opt.Args = applyIPAppend(opt.Args, n, macFromCtx(ctx))
			}

		case "MENU":
			if len(fields) >= 2 && strings.EqualFold(fields[1], "LABEL") {
				if opt, ok := c.entries[c.curEntry]; ok && len(fields) > 2 {
					opt.Description = strings.Join(fields[2:], " ")
				}
			}

		case "PROMPT", "TIMEOUT", "SERIAL", "IMPLICIT", "ALLOWOPTIONS", "NERFDEFAULT":
			// interactive/menu-cosmetic directives; not relevant to
			// non-interactive boot-option extraction.
		}
	}
}

// applyIPAppend implements the IPAPPEND bitmask: bit 0 (1) appends
// "ip=dhcp", bit 1 (2) appends "BOOTIF=01-<mac with '-' separators>".
func applyIPAppend(args string, mask int, mac string) string {
	if mask&1 != 0 {
		args = strings.TrimRight(args+" ip=dhcp", " ")
	}
	if mask&2 != 0 && mac != "" {
		args = strings.TrimRight(args+" BOOTIF=01-"+strings.ReplaceAll(mac, ":", "-"), " ")
	}
	return args
}

func macFromCtx(ctx *parser.Context) string {
	if ctx.NetEvent != nil {
		return ctx.NetEvent.MAC
	}
	if ctx.Device != nil {
		if v, ok := ctx.Device.Property("ID_NET_NAME_MAC"); ok {
			return v
		}
	}
	return ""
}

func dedup(list []string) []string {
	seen := make(map[string]bool, len(list))
	var out []string
	for _, s := range list {
		if seen[s] {
			continue
		}
		seen[s] = true
		out = append(out, s)
	}
	return out
}
