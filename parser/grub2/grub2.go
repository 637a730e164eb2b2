// Package grub2 implements spec §4.H's grub2 parser: a subset of grub's
// scripting language sufficient to extract menu entries without
// actually performing a boot. Grounded on spec §9's explicit redesign
// hint ("the source implements a partial shell with setjmp/longjmp;
// model as a small AST plus tree-walking interpreter in a target
// language with structured control flow") — there is no original_source
// grub C implementation in the retrieved pack to port line-by-line, so
// this package is built directly from spec §4.H/§6/§8's description of
// the supported subset.
//
// Unlike a real boot, every menuentry body is executed eagerly at parse
// time (there is no interactive selection here) so that its linux/
// initrd/search commands can populate that entry's BootOption.
package grub2

import (
	"fmt"
	"path"
	"regexp"
	"strings"

	"github.com/open-power/petitboot/bootenv"
	"github.com/open-power/petitboot/device"
	"github.com/open-power/petitboot/dirs"
	"github.com/open-power/petitboot/parser"
	"github.com/open-power/petitboot/resource"
)

// Priority sits below syslinux: grub2 configs are the most expressive
// format and are tried after the simpler ones find nothing (spec §4.H
// leaves exact ordering to the registering code).
const Priority = 60

// maxSourceDepth caps recursive `source` commands (spec §4.H invariant).
const maxSourceDepth = 10

// Parser implements parser.Parser for grub.cfg.
type Parser struct{}

func New() *Parser { return &Parser{} }

func (*Parser) Name() string  { return "grub2" }
func (*Parser) Priority() int { return Priority }

func (p *Parser) Parse(ctx *parser.Context) (parser.Result, error) {
	var data []byte
	var cfgPath string
	var err error
	for _, candidate := range dirs.GrubConfigPaths {
		data, err = ctx.RequestFile(candidate)
		if err == nil {
			cfgPath = candidate
			break
		}
	}
	if err != nil {
		return parser.NotApplicable, nil
	}

	stmts, perr := parseScript(string(data))
	if perr != nil {
		return parser.NotApplicable, fmt.Errorf("grub2: %w", perr)
	}

	ex := &executor{
		ctx:    ctx,
		vars:   map[string]string{"prefix": path.Dir(cfgPath)},
		depth:  0,
		parsed: 0,
	}
	ex.run(stmts)

	if len(ex.entries) == 0 {
		return parser.Empty, nil
	}

	def := ex.resolveDefault()
	for i, e := range ex.entries {
		e.opt.IsDefault = i == def
		ctx.AddBootOption(e.opt)
	}
	return parser.Found, nil
}

type entry struct {
	id    string
	label string
	opt   *device.BootOption
}

type executor struct {
	ctx     *parser.Context
	vars    map[string]string
	funcs   map[string]stmt
	entries []*entry
	depth   int
	parsed  int
	current *device.BootOption // set only while executing a menuentry's block
}

// devpathRe recognizes grub device-path strings: "(selector)/path". A
// selector beginning "uuid:" or "label:" is explicit (as synthesized by
// our search --set); otherwise a hyphenated-hex string is treated as a
// UUID and anything else as a LABEL/device name, approximating grub's
// own (hd0,gpt1)-style designators loosely enough to resolve the cases
// spec §4.H actually exercises.
var devpathRe = regexp.MustCompile(`^\(([^)]*)\)(/.*)$`)
var uuidLikeRe = regexp.MustCompile(`^[0-9a-fA-F]{8}-[0-9a-fA-F-]+$`)

func resolveDevpath(s string) (*resource.Resource, bool) {
	m := devpathRe.FindStringSubmatch(s)
	if m == nil {
		return nil, false
	}
	sel, relpath := m[1], m[2]
	switch {
	case strings.HasPrefix(sel, "uuid:"):
		return resource.NewDevspec(resource.SelectorUUID, strings.TrimPrefix(sel, "uuid:"), relpath), true
	case strings.HasPrefix(sel, "label:"):
		return resource.NewDevspec(resource.SelectorLabel, strings.TrimPrefix(sel, "label:"), relpath), true
	case uuidLikeRe.MatchString(sel):
		return resource.NewDevspec(resource.SelectorUUID, sel, relpath), true
	case sel == "":
		return resource.NewLocal("", relpath), true
	default:
		return resource.NewDevspec(resource.SelectorLabel, sel, relpath), true
	}
}

func (ex *executor) expand(word string) string {
	var b strings.Builder
	r := []rune(word)
	n := len(r)
	for i := 0; i < n; i++ {
		if r[i] == '$' && i+1 < n {
			if r[i+1] == '{' {
				end := strings.IndexByte(string(r[i+2:]), '}')
				if end >= 0 {
					name := string(r[i+2 : i+2+end])
					b.WriteString(ex.vars[name])
					i += 2 + end
					continue
				}
			} else if isIdentStart(r[i+1]) {
				j := i + 1
				for j < n && isIdentPart(r[j]) {
					j++
				}
				b.WriteString(ex.vars[string(r[i+1:j])])
				i = j - 1
				continue
			}
		}
		b.WriteRune(r[i])
	}
	return b.String()
}

func isIdentStart(r rune) bool {
	return r == '_' || (r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z')
}
func isIdentPart(r rune) bool {
	return isIdentStart(r) || (r >= '0' && r <= '9')
}

func (ex *executor) run(stmts []stmt) {
	if ex.funcs == nil {
		ex.funcs = map[string]stmt{}
	}
	for _, st := range stmts {
		ex.execStmt(st)
	}
}

func (ex *executor) execStmt(st stmt) {
	switch st.kind {
	case "assign":
		ex.vars[st.name] = ex.expand(st.raw)

	case "func":
		ex.funcs[st.name] = st

	case "if":
		if ex.evalCond(st.cond) {
			ex.run(st.block)
		} else {
			ex.run(st.elseBlock)
		}

	case "for":
		for _, v := range st.forList {
			ex.vars[st.name] = ex.expand(v)
			ex.run(st.block)
		}

	case "while":
		guard := 0
		for ex.evalCond(st.cond) && guard < 10000 {
			ex.run(st.block)
			guard++
		}

	case "cmd":
		ex.execCmd(st)
	}
}

func (ex *executor) expandAll(words []string) []string {
	out := make([]string, len(words))
	for i, w := range words {
		out[i] = ex.expand(w)
	}
	return out
}

func (ex *executor) execCmd(st stmt) {
	args := ex.expandAll(st.args)
	switch st.name {
	case "set":
		for _, a := range args {
			if k, v, ok := strings.Cut(a, "="); ok {
				ex.vars[k] = v
			}
		}

	case "menuentry":
		title := ""
		if len(args) > 0 {
			title = args[0]
		}
		id := title
		for _, a := range args[1:] {
			if v, ok := strings.CutPrefix(a, "--id="); ok {
				id = v
			}
		}
		sub := &executor{ctx: ex.ctx, vars: cloneVars(ex.vars), funcs: ex.funcs, depth: ex.depth}
		opt := &device.BootOption{Name: title}
		sub.current = opt
		sub.run(st.block)
		if opt.BootImage != nil {
			ex.entries = append(ex.entries, &entry{id: id, label: title, opt: opt})
		}

	case "submenu":
		ex.run(st.block)

	case "linux", "linuxefi":
		if len(args) == 0 {
			return
		}
		ex.setImage(args[0])
		if ex.current != nil {
			ex.current.Args = strings.Join(args[1:], " ")
		}

	case "initrd", "initrdefi":
		if len(args) == 0 {
			return
		}
		ex.setInitrd(args[0])

	case "search":
		ex.execSearch(args)

	case "load_env":
		ex.execLoadEnv()

	case "save_env":
		ex.execSaveEnv(args)

	case "blscfg":
		ex.execBlscfg()

	case "source":
		if len(args) > 0 {
			ex.execSource(args[0])
		}

	case "true", "false", "echo", "export", "insmod":
		// no-ops for boot-option extraction purposes.
	}
}

func cloneVars(v map[string]string) map[string]string {
	out := make(map[string]string, len(v))
	for k, val := range v {
		out[k] = val
	}
	return out
}

func (ex *executor) setImage(s string) {
	if ex.current == nil {
		return
	}
	if r, ok := resolveDevpath(s); ok {
		ex.current.BootImage = r
		return
	}
	ex.current.BootImage = resource.NewLocal("", s)
}

func (ex *executor) setInitrd(s string) {
	if ex.current == nil {
		return
	}
	if r, ok := resolveDevpath(s); ok {
		ex.current.Initrd = r
		return
	}
	ex.current.Initrd = resource.NewLocal("", s)
}

// execSearch implements `search [--set[=var]] [--fs-uuid|--label]
// VALUE`: sets $var (default "root") to a synthetic device-path
// selector literal, so a later `linux ($root)/vmlinuz` resolves it
// through resolveDevpath.
func (ex *executor) execSearch(args []string) {
	setVar := "root"
	kind := "uuid"
	var value string
	for _, a := range args {
		switch {
		case a == "--no-floppy":
		case a == "--fs-uuid":
			kind = "uuid"
		case a == "--label":
			kind = "label"
		case a == "--set":
			setVar = "root"
		case strings.HasPrefix(a, "--set="):
			setVar = strings.TrimPrefix(a, "--set=")
		case strings.HasPrefix(a, "--"):
			// ignore other flags
		default:
			value = a
		}
	}
	if value == "" {
		return
	}
	ex.vars[setVar] = fmt.Sprintf("(%s:%s)", kind, value)
}

func (ex *executor) grubenvPath() string {
	prefix := ex.vars["prefix"]
	mount := ""
	if ex.ctx.Device != nil {
		mount = ex.ctx.Device.MountPoint()
	}
	return path.Join(mount, prefix, "grubenv")
}

func (ex *executor) execLoadEnv() {
	vars, err := bootenv.ReadEnv(ex.grubenvPath())
	if err != nil {
		return
	}
	for k, v := range vars {
		ex.vars[k] = v
	}
}

func (ex *executor) execSaveEnv(names []string) {
	out := make(map[string]string, len(names))
	for _, n := range names {
		if v, ok := ex.vars[n]; ok {
			out[n] = v
		}
	}
	_ = bootenv.SaveEnv(ex.grubenvPath(), out)
}

// execBlscfg parses every /loader/entries/*.conf file as a BootOption
// (spec §4.H), using the systemd-boot-style "title"/"linux"/"initrd"/
// "options" keys.
func (ex *executor) execBlscfg() {
	names, err := ex.ctx.ListDir("/loader/entries")
	if err != nil {
		return
	}
	for _, name := range names {
		if !strings.HasSuffix(name, ".conf") {
			continue
		}
		data, err := ex.ctx.RequestFile(path.Join("/loader/entries", name))
		if err != nil {
			continue
		}
		opt := &device.BootOption{Name: strings.TrimSuffix(name, ".conf")}
		var args []string
		for _, line := range strings.Split(string(data), "\n") {
			key, value, ok := strings.Cut(strings.TrimSpace(line), " ")
			if !ok {
				continue
			}
			value = strings.TrimSpace(value)
			switch key {
			case "title":
				opt.Name = value
			case "linux":
				opt.BootImage = resource.NewLocal("", value)
			case "initrd":
				opt.Initrd = resource.NewLocal("", value)
			case "options":
				args = append(args, value)
			}
		}
		opt.Args = strings.Join(args, " ")
		if opt.BootImage != nil {
			ex.entries = append(ex.entries, &entry{id: opt.Name, label: opt.Name, opt: opt})
		}
	}
}

func (ex *executor) execSource(relpath string) {
	if ex.depth+1 > maxSourceDepth {
		return
	}
	data, err := ex.ctx.RequestFile(ex.expand(relpath))
	if err != nil {
		return
	}
	stmts, err := parseScript(string(data))
	if err != nil {
		return
	}
	child := &executor{ctx: ex.ctx, vars: ex.vars, funcs: ex.funcs, depth: ex.depth + 1, current: ex.current}
	child.run(stmts)
	ex.entries = append(ex.entries, child.entries...)
}

// resolveDefault implements spec §4.H's default-selection order: entry
// id, then label, then numeric index, then saved_entry from the env.
func (ex *executor) resolveDefault() int {
	candidates := []string{ex.vars["default"]}
	if vars, err := bootenv.ReadEnv(ex.grubenvPath()); err == nil {
		candidates = append(candidates, vars["saved_entry"])
	}
	for _, want := range candidates {
		if want == "" {
			continue
		}
		for i, e := range ex.entries {
			if e.id == want || e.label == want {
				return i
			}
		}
		if idx, ok := parseIndex(want); ok && idx >= 0 && idx < len(ex.entries) {
			return idx
		}
	}
	return 0
}

// evalCond evaluates an if/while condition. Only the test/[ builtin is
// understood (spec §4.H's listed minimum set); any other command name
// is treated as succeeding, since this package never executes real
// processes and has no exit status to observe.
func (ex *executor) evalCond(raw []string) bool {
	words := ex.expandAll(raw)
	if len(words) == 0 {
		return false
	}
	if words[0] == "test" {
		return evalTest(ex, words[1:])
	}
	if words[0] == "[" {
		if words[len(words)-1] != "]" {
			return false
		}
		return evalTest(ex, words[1:len(words)-1])
	}
	if words[0] == "true" {
		return true
	}
	if words[0] == "false" {
		return false
	}
	return true
}

// evalTest implements the test/[ subset spec §4.H names: -f, -s, -d,
// -n, -z, =, -a, -o, and a single leading !.
func evalTest(ex *executor, args []string) bool {
	if len(args) == 0 {
		return false
	}
	if args[0] == "!" {
		return !evalTest(ex, args[1:])
	}
	// split on -a / -o at the top level (left-to-right, no precedence,
	// matching grub's own simple left-associative test evaluator).
	for i, a := range args {
		if a == "-a" {
			return evalTest(ex, args[:i]) && evalTest(ex, args[i+1:])
		}
		if a == "-o" {
			return evalTest(ex, args[:i]) || evalTest(ex, args[i+1:])
		}
	}
	switch {
	case len(args) == 2 && args[0] == "-f":
		_, err := ex.ctx.RequestFile(args[1])
		return err == nil
	case len(args) == 2 && args[0] == "-d":
		_, err := ex.ctx.ListDir(args[1])
		return err == nil
	case len(args) == 2 && args[0] == "-s":
		data, err := ex.ctx.RequestFile(args[1])
		return err == nil && len(data) > 0
	case len(args) == 2 && args[0] == "-n":
		return args[1] != ""
	case len(args) == 2 && args[0] == "-z":
		return args[1] == ""
	case len(args) == 3 && args[1] == "=":
		return args[0] == args[2]
	case len(args) == 3 && args[1] == "!=":
		return args[0] != args[2]
	case len(args) == 1:
		return args[0] != ""
	}
	return false
}

func parseIndex(s string) (int, bool) {
	n := 0
	if s == "" {
		return 0, false
	}
	for _, r := range s {
		if r < '0' || r > '9' {
			return 0, false
		}
		n = n*10 + int(r-'0')
	}
	return n, true
}
