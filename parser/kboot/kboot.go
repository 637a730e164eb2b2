// Package kboot implements spec §4.H's kboot parser: a `key=value` file
// at /etc/kboot.conf where each top-level line is one boot option named
// by its key, and the value is a shell-quoted kernel image path followed
// by space-separated kernel-args tokens.
//
// Grounded directly on original_source/devices/kboot-parser.c:
// parse_buf splits the file into name=value pairs on newline boundaries
// (get_param_pair), skipping the ignored top-level names message/
// timeout/default; parse_option then re-splits the value on spaces,
// pulling out initrd= and root= specially and reassembling the cmdline
// with initrd prepended first, then root (or a synthetic
// root=/dev/ram0 when an initrd is present but no root was given).
package kboot

import (
	"strings"

	"github.com/open-power/petitboot/device"
	"github.com/open-power/petitboot/dirs"
	"github.com/open-power/petitboot/parser"
	"github.com/open-power/petitboot/resource"
)

// Priority places kboot below native (spec §4.H ordering leaves exact
// priority to the registering code; kboot.conf is a more specific
// petitboot-authored format than the generic bootloader configs).
const Priority = 90

// Parser implements parser.Parser for /etc/kboot.conf.
type Parser struct{}

// New creates a kboot Parser.
func New() *Parser { return &Parser{} }

func (*Parser) Name() string  { return "kboot" }
func (*Parser) Priority() int { return Priority }

var ignoredTopLevel = map[string]bool{
	"message": true,
	"timeout": true,
	"default": true,
}

func (p *Parser) Parse(ctx *parser.Context) (parser.Result, error) {
	data, err := ctx.RequestFile(dirs.KbootConfigPath)
	if err != nil {
		return parser.NotApplicable, nil
	}

	found := false
	for _, line := range strings.Split(string(data), "\n") {
		name, value, ok := splitPair(line)
		if !ok || name == "" || ignoredTopLevel[name] {
			continue
		}

		opt, ok := parseOption(name, value)
		if !ok {
			continue
		}
		found = true
		ctx.AddBootOption(opt)
	}

	if !found {
		return parser.Empty, nil
	}
	return parser.Found, nil
}

// splitPair splits "name=value", trimming surrounding whitespace from
// both sides (get_param_pair). A line with no '=' at all is not a valid
// top-level entry.
func splitPair(line string) (name, value string, ok bool) {
	idx := strings.IndexByte(line, '=')
	if idx < 0 {
		return "", "", false
	}
	return strings.TrimSpace(line[:idx]), strings.TrimSpace(line[idx+1:]), true
}

// parseOption builds a BootOption from a kboot.conf value string: an
// optionally quoted kernel image path, then zero or more space-separated
// "key" or "key=value" tokens.
func parseOption(name, value string) (*device.BootOption, bool) {
	value = unquote(value)
	if value == "" {
		return nil, false
	}

	fields := strings.Fields(value)
	if len(fields) == 0 {
		return nil, false
	}

	image := fields[0]
	opt := &device.BootOption{
		Name:      name,
		BootImage: resource.NewLocal("", image),
	}

	if len(fields) == 1 {
		opt.Description = image
		return opt, true
	}

	var initrd, root string
	var cmdline []string
	for _, tok := range fields[1:] {
		k, v, hasEq := strings.Cut(tok, "=")
		switch {
		case hasEq && k == "initrd":
			initrd = v
		case hasEq && k == "root":
			root = v
		default:
			cmdline = append(cmdline, tok)
		}
	}

	if initrd != "" {
		opt.Initrd = resource.NewLocal("", initrd)
		cmdline = append([]string{"initrd=" + initrd}, cmdline...)
	}
	if root != "" {
		cmdline = append([]string{"root=" + root}, cmdline...)
	} else if initrd != "" {
		cmdline = append([]string{"root=/dev/ram0"}, cmdline...)
	}

	opt.Args = strings.Join(cmdline, " ")
	opt.Description = image + " " + opt.Args
	return opt, true
}

// unquote strips a single layer of matching leading/trailing quote
// characters, and any further leading/trailing quote runs, mirroring
// the original's "while (*config == '\"' ...)" loop on both ends.
func unquote(s string) string {
	for len(s) > 0 && (s[0] == '"' || s[0] == '\'') {
		s = s[1:]
	}
	for len(s) > 0 && (s[len(s)-1] == '"' || s[len(s)-1] == '\'') {
		s = s[:len(s)-1]
	}
	return s
}
