// Package paramlist implements the NVRAM/flash parameter list of
// original_source/lib/param_list/param_list.c: an ordered set of named
// parameters with a "known params" whitelist and a modified flag per
// entry, used by the platform backends (package platform) to track which
// persisted config values have changed and need writing back.
package paramlist

// CommonKnownParams mirrors common_known_params() in param_list.c: the
// parameter names every platform backend recognizes regardless of its
// specific NVRAM/EFI layout.
var CommonKnownParams = []string{
	"auto-boot?",
	"petitboot,network",
	"petitboot,timeout",
	"petitboot,bootdevs",
	"petitboot,language",
	"petitboot,debug?",
	"petitboot,write?",
	"petitboot,snapshots?",
	"petitboot,console",
	"petitboot,http_proxy",
	"petitboot,https_proxy",
}

// Param is a single name/value pair with a dirty flag.
type Param struct {
	Name     string
	Value    string
	Modified bool
}

// List is an ordered parameter list, preserving insertion order the way
// the original's intrusive linked list does.
type List struct {
	known  map[string]bool
	params []*Param
	index  map[string]int
}

// New creates a List whose IsKnown whitelist is knownParams (pass
// CommonKnownParams for the default set, extended with any
// platform-specific names).
func New(knownParams []string) *List {
	l := &List{
		known: make(map[string]bool, len(knownParams)),
		index: make(map[string]int),
	}
	for _, k := range knownParams {
		l.known[k] = true
	}
	return l
}

// IsKnown reports whether name is in the whitelist.
func (l *List) IsKnown(name string) bool {
	return l.known[name]
}

// Get returns the current value of name, if set.
func (l *List) Get(name string) (string, bool) {
	if i, ok := l.index[name]; ok {
		return l.params[i].Value, true
	}
	return "", false
}

// Set creates or updates name=value. modifiedOnCreate mirrors the
// original's parameter of the same name: a freshly-created entry is
// marked modified only when the caller says a new entry counts as a
// change (e.g. loading from NVRAM creates unmodified entries; a user
// edit creates modified ones). Setting an entry to its current value is
// a no-op, matching the original.
func (l *List) Set(name, value string, modifiedOnCreate bool) {
	if i, ok := l.index[name]; ok {
		p := l.params[i]
		if p.Value == value {
			return
		}
		p.Value = value
		p.Modified = true
		return
	}
	l.index[name] = len(l.params)
	l.params = append(l.params, &Param{Name: name, Value: value, Modified: modifiedOnCreate})
}

// SetNonEmpty sets name=value only if value is non-empty or name already
// has a value, matching param_list_set_non_empty's guard against
// creating empty entries.
func (l *List) SetNonEmpty(name, value string, modifiedOnCreate bool) {
	if _, ok := l.Get(name); !ok && value == "" {
		return
	}
	l.Set(name, value, modifiedOnCreate)
}

// All returns every parameter in insertion order.
func (l *List) All() []*Param {
	out := make([]*Param, len(l.params))
	copy(out, l.params)
	return out
}

// Modified returns every parameter whose Modified flag is set, the set a
// backend must write back to persistent storage.
func (l *List) Modified() []*Param {
	var out []*Param
	for _, p := range l.params {
		if p.Modified {
			out = append(out, p)
		}
	}
	return out
}

// ClearModified resets every entry's Modified flag, called after a
// successful save.
func (l *List) ClearModified() {
	for _, p := range l.params {
		p.Modified = false
	}
}
