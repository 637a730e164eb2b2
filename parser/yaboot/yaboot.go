// Package yaboot implements spec §4.H's yaboot parser: a token-oriented
// (not strictly line-oriented) config at /etc/yaboot.conf or
// /yaboot.conf, with a global preamble followed by one or more "image="
// stanzas that inherit unset fields from the preamble.
//
// Grounded directly on original_source/devices/yaboot-cfg.c (cfg_get_token/
// cfg_next/cfg_set: whitespace/"="-separated item[=value] tokens, quoted
// values, '#' comments, and "image" starting a fresh per-stanza table
// that falls back to the global one) and
// original_source/devices/yaboot-parser.c (make_params' fixed
// root/read-only/read-write/ramdisk/initrd-size/novideo/append cmdline
// composition order, and default-image selection via the "default"
// global key naming a label or alias, falling back to the first image).
//
// A "partition" key is stored like any other key but has no effect:
// unlike the original, this parser neither mounts another partition nor
// redirects any path to one. Image and initrd paths always resolve
// against the device the config was read from.
package yaboot

import (
	"strings"

	"github.com/open-power/petitboot/device"
	"github.com/open-power/petitboot/dirs"
	"github.com/open-power/petitboot/parser"
	"github.com/open-power/petitboot/resource"
)

// Priority sits just below native (spec §4.H leaves exact ordering to
// the registering code; yaboot.conf is PowerPC's traditional bootloader
// format, tried after any petitboot-native config).
const Priority = 80

// Parser implements parser.Parser for yaboot.conf.
type Parser struct{}

// New creates a yaboot Parser.
func New() *Parser { return &Parser{} }

func (*Parser) Name() string  { return "yaboot" }
func (*Parser) Priority() int { return Priority }

// table is a single cf_options/cf_image-style field set: string values
// and boolean flags, both case-insensitively keyed.
type table map[string]string

func newTable() table { return make(table) }

func (t table) get(key string) (string, bool) {
	v, ok := t[strings.ToLower(key)]
	return v, ok
}

func (t table) set(key, value string) {
	t[strings.ToLower(key)] = value
}

func (p *Parser) Parse(ctx *parser.Context) (parser.Result, error) {
	var data []byte
	var err error
	for _, path := range dirs.YabootConfigPaths {
		data, err = ctx.RequestFile(path)
		if err == nil {
			break
		}
	}
	if err != nil {
		return parser.NotApplicable, nil
	}

	global, images := parseConfig(string(data))
	if len(images) == 0 {
		return parser.Empty, nil
	}

	if msg, ok := global.get("init-message"); ok {
		if idx := strings.IndexAny(msg, "\n\r"); idx >= 0 {
			msg = msg[:idx]
		}
		ctx.SetDeviceInfo("", msg, "")
	}

	defaultLabel := resolveDefault(global, images)

	for _, img := range images {
		label := imageLabel(img)
		isDefault := label == defaultLabel
		if alias, ok := img.get("alias"); ok && alias == defaultLabel {
			isDefault = true
		}
		opt := &device.BootOption{
			Name:      label,
			IsDefault: isDefault,
		}
		if imagePath, ok := img.get("image"); ok {
			opt.BootImage = resource.NewLocal("", imagePath)
		}
		if initrd, ok := lookup(img, global, "initrd"); ok {
			opt.Initrd = resource.NewLocal("", initrd)
		}
		opt.Args = makeParams(img, global)
		ctx.AddBootOption(opt)
	}
	return parser.Found, nil
}

// lookup reads key from img, falling back to global if unset there
// (cfg_get_strg's per-image-then-global fallback).
func lookup(img, global table, key string) (string, bool) {
	if v, ok := img.get(key); ok {
		return v, true
	}
	return global.get(key)
}

func flagSet(img, global table, key string) bool {
	_, ok := lookup(img, global, key)
	return ok
}

// imageLabel is the explicit "label" field, or the basename of "image"
// if unset (cfg_next_image / cfg_get_default's label derivation).
func imageLabel(img table) string {
	if l, ok := img.get("label"); ok {
		return l
	}
	path, _ := img.get("image")
	if idx := strings.LastIndexByte(path, '/'); idx >= 0 {
		return path[idx+1:]
	}
	return path
}

// resolveDefault picks the default image's label: the global "default"
// key (matched against each image's label or alias), or the first image
// if unset.
func resolveDefault(global table, images []table) string {
	if d, ok := global.get("default"); ok {
		for _, img := range images {
			label := imageLabel(img)
			if label == d {
				return label
			}
			if alias, ok := img.get("alias"); ok && alias == d {
				return label
			}
		}
	}
	return imageLabel(images[0])
}

// makeParams composes the kernel cmdline exactly as make_params does:
// "literal" overrides everything, else root=/ro|rw/ramdisk=/ramdisk_size=/
// video=ofonly/append are emitted in that fixed order.
func makeParams(img, global table) string {
	if lit, ok := lookup(img, global, "literal"); ok {
		return lit
	}

	var parts []string
	if root, ok := lookup(img, global, "root"); ok {
		parts = append(parts, "root="+root)
	}
	if flagSet(img, global, "read-only") {
		parts = append(parts, "ro")
	}
	if flagSet(img, global, "read-write") {
		parts = append(parts, "rw")
	}
	if rd, ok := lookup(img, global, "ramdisk"); ok {
		parts = append(parts, "ramdisk="+rd)
	}
	if sz, ok := lookup(img, global, "initrd-size"); ok {
		parts = append(parts, "ramdisk_size="+sz)
	}
	if flagSet(img, global, "novideo") {
		parts = append(parts, "video=ofonly")
	}
	if app, ok := lookup(img, global, "append"); ok {
		parts = append(parts, app)
	}
	return strings.Join(parts, " ")
}

// parseConfig tokenizes data per cfg_get_token/cfg_next/cfg_set: the
// global table collects every item up to the first "image" key, after
// which each "image" key starts a fresh per-stanza table.
func parseConfig(data string) (global table, images []table) {
	global = newTable()
	cur := global

	tokens := tokenize(data)
	i := 0
	for i < len(tokens) {
		item := tokens[i]
		i++
		var value string
		hasValue := false
		if i < len(tokens) && tokens[i] == "=" {
			i++
			if i < len(tokens) {
				value = tokens[i]
				i++
				hasValue = true
			}
		}

		key := strings.ToLower(item)
		if key == "image" && hasValue {
			img := newTable()
			img.set("image", value)
			images = append(images, img)
			cur = img
			continue
		}
		if hasValue {
			cur.set(key, value)
		} else {
			cur.set(key, "")
		}
	}
	return global, images
}

// tokenize splits data into whitespace-separated tokens, a standalone
// "=" token, '#'-to-end-of-line comments dropped, and double-quoted
// strings (with \" \\ and \n escapes) kept as single tokens.
func tokenize(data string) []string {
	var toks []string
	r := []rune(data)
	n := len(r)
	i := 0
	for i < n {
		c := r[i]
		switch {
		case c == ' ' || c == '\t' || c == '\n' || c == '\r':
			i++
		case c == '#':
			for i < n && r[i] != '\n' {
				i++
			}
		case c == '=':
			toks = append(toks, "=")
			i++
		case c == '"':
			i++
			var b strings.Builder
			for i < n && r[i] != '"' {
				if r[i] == '\\' && i+1 < n {
					i++
					switch r[i] {
					case 'n':
						b.WriteRune('\n')
					default:
						b.WriteRune(r[i])
					}
				} else {
					b.WriteRune(r[i])
				}
				i++
			}
			i++ // closing quote
			toks = append(toks, b.String())
		default:
			start := i
			for i < n && r[i] != ' ' && r[i] != '\t' && r[i] != '\n' && r[i] != '\r' &&
				r[i] != '#' && r[i] != '=' && r[i] != '"' {
				i++
			}
			toks = append(toks, string(r[start:i]))
		}
	}
	return toks
}
