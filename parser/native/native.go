// Package native implements spec §4.H's native parser: a line-oriented
// "key=value" file at /petitboot.conf or /boot/petitboot.conf, with
// device-scope keys (name, description, icon) followed by one or more
// option scopes introduced by a blank line or a "[label]" line.
//
// Grounded on original_source/devices/native-parser.c: set_boot_option_parameter
// and set_device_parameter recognize the same key sets encoded here as
// optionFields/deviceFields, dispatched on whether a boot_option is
// currently open. The key=value split and block-scoping rule follow
// spec.md's own worked example (scenario 1: "name=linux" alongside
// image=/initrd=/args= in a single unseparated block, parsed as one
// option rather than a device block).
package native

import (
	"bufio"
	"strings"

	"github.com/open-power/petitboot/device"
	"github.com/open-power/petitboot/dirs"
	"github.com/open-power/petitboot/parser"
	"github.com/open-power/petitboot/resource"
)

// Priority places native above every other parser: an explicit petitboot
// config always wins when present (spec §4.H ordering is left to the
// registering code; native is the most specific format so it is tried
// first).
const Priority = 100

// Parser implements parser.Parser for native petitboot.conf files.
type Parser struct{}

// New creates a native config Parser.
func New() *Parser { return &Parser{} }

func (*Parser) Name() string  { return "native" }
func (*Parser) Priority() int { return Priority }

type optionFields struct {
	name, description, icon, image, initrd, args, dtb string
	isDefault                                          bool
}

type deviceFields struct {
	name, description, icon string
}

func (p *Parser) Parse(ctx *parser.Context) (parser.Result, error) {
	var data []byte
	var err error
	for _, path := range dirs.NativeConfigPaths {
		data, err = ctx.RequestFile(path)
		if err == nil {
			break
		}
	}
	if err != nil {
		return parser.NotApplicable, nil
	}

	devInfo, opts := parseNative(string(data))

	if devInfo.name != "" || devInfo.description != "" || devInfo.icon != "" {
		ctx.SetDeviceInfo(devInfo.name, devInfo.description, devInfo.icon)
	}

	if len(opts) == 0 {
		return parser.Empty, nil
	}

	haveDefault := false
	for _, o := range opts {
		if o.isDefault {
			haveDefault = true
		}
	}

	for i, o := range opts {
		bo := &device.BootOption{
			Name:        o.name,
			Description: o.description,
			Icon:        o.icon,
			Args:        o.args,
			IsDefault:   o.isDefault || (!haveDefault && i == 0),
		}
		if o.image != "" {
			bo.BootImage = resource.NewLocal("", o.image)
		}
		if o.initrd != "" {
			bo.Initrd = resource.NewLocal("", o.initrd)
		}
		if o.dtb != "" {
			bo.DTB = resource.NewLocal("", o.dtb)
		}
		ctx.AddBootOption(bo)
	}
	return parser.Found, nil
}

// parseNative scans the native petitboot.conf grammar: the file is split
// into blocks by a blank line or a "[label]" line, each block holding
// key=value pairs. A leading block is device scope only when it is
// followed by at least one further block AND none of its keys are
// option-only (image, initrd, args, dtb) — otherwise every block,
// including the first, is an option (spec scenario 1 has a single,
// unseparated block mixing name= with image=/initrd=/args=, which is
// exactly this case: one option, no device block at all).
func parseNative(data string) (deviceFields, []optionFields) {
	blocks := splitBlocks(data)

	var dev deviceFields
	start := 0
	if len(blocks) > 1 && isDeviceOnlyBlock(blocks[0]) {
		dev = blockToDeviceFields(blocks[0])
		start = 1
	}

	var opts []optionFields
	for _, b := range blocks[start:] {
		o := blockToOptionFields(b)
		if o.name != "" || o.image != "" {
			opts = append(opts, o)
		}
	}
	return dev, opts
}

// splitBlocks groups the file's key=value lines into blocks separated by
// a blank line or a "[label]" line; a "[label]" also seeds the block's
// name field.
func splitBlocks(data string) [][]kv {
	var blocks [][]kv
	var cur []kv
	haveCur := false

	flush := func() {
		if haveCur {
			blocks = append(blocks, cur)
		}
		cur = nil
		haveCur = false
	}

	sc := bufio.NewScanner(strings.NewReader(data))
	for sc.Scan() {
		trimmed := strings.TrimSpace(sc.Text())

		if trimmed == "" {
			flush()
			continue
		}
		if strings.HasPrefix(trimmed, "#") {
			continue
		}
		if strings.HasPrefix(trimmed, "[") && strings.HasSuffix(trimmed, "]") {
			flush()
			cur = append(cur, kv{key: "name", value: strings.TrimSuffix(strings.TrimPrefix(trimmed, "["), "]")})
			haveCur = true
			continue
		}

		key, value, ok := splitKV(trimmed)
		if !ok {
			continue
		}
		cur = append(cur, kv{key: key, value: value})
		haveCur = true
	}
	flush()
	return blocks
}

type kv struct{ key, value string }

func isDeviceOnlyBlock(b []kv) bool {
	for _, e := range b {
		switch e.key {
		case "name", "description", "icon":
		default:
			return false
		}
	}
	return true
}

func blockToDeviceFields(b []kv) deviceFields {
	var dev deviceFields
	for _, e := range b {
		switch e.key {
		case "name":
			dev.name = e.value
		case "description":
			dev.description = e.value
		case "icon":
			dev.icon = e.value
		}
	}
	return dev
}

func blockToOptionFields(b []kv) optionFields {
	var o optionFields
	for _, e := range b {
		applyOptionKey(&o, e.key, e.value)
	}
	return o
}

func applyOptionKey(o *optionFields, key, value string) {
	switch key {
	case "name":
		o.name = value
	case "description":
		o.description = value
	case "image":
		o.image = value
	case "icon":
		o.icon = value
	case "initrd":
		o.initrd = value
	case "args":
		o.args = value
	case "dtb":
		o.dtb = value
	case "default":
		o.isDefault = true
	}
}

func splitKV(line string) (key, value string, ok bool) {
	idx := strings.IndexByte(line, '=')
	if idx < 0 {
		return "", "", false
	}
	return strings.TrimSpace(line[:idx]), strings.TrimSpace(line[idx+1:]), true
}
