// Package resource implements the lazy resource references of spec §4.F:
// a Resource is either a concrete local path, an absolute URL, or an
// unresolved device selector (UUID/LABEL/partition-name/current-root/any)
// plus an in-device path, resolved against a device registry as devices
// come and go.
package resource

import (
	"fmt"
	"path/filepath"

	"github.com/open-power/petitboot/bootutil/pburl"
)

// SelectorKind enumerates the devspec selector forms of spec §4.F.
type SelectorKind int

const (
	SelectorUUID SelectorKind = iota
	SelectorLabel
	SelectorPartName
	SelectorCurrentRoot
	SelectorAny
)

// Device is the minimal view of a discovered device that resolution
// needs. device.Device satisfies this; the interface exists so this
// package does not import package device (which holds Resources),
// avoiding an import cycle.
type Device interface {
	ID() string
	MountPoint() string
	IsMounted() bool
}

// Registry is the minimal view of the device registry that resolution
// needs (device.Registry provides one through AsResourceRegistry).
type Registry interface {
	LookupByID(id string) (Device, bool)
	LookupByUUID(uuid string) (Device, bool)
	LookupByLabel(label string) (Device, bool)
	LookupByPartName(name string) (Device, bool)
	// AnyWithFile returns the first device (in registry order) whose
	// mount point contains relpath, used for the "any" selector.
	AnyWithFile(relpath string) (Device, bool)
}

// form tags which union member is populated.
type form int

const (
	formLocal form = iota
	formURL
	formDevspec
)

// Resource is the tagged union of spec §4.F. Construct with one of
// NewLocal, NewURL, or NewDevspec; never build the zero value directly.
type Resource struct {
	form form

	// formLocal
	deviceID string // empty means "current device" at construction time
	relPath  string

	// formURL
	url *pburl.URL

	// formDevspec
	selector     SelectorKind
	selectorVal  string
	devspecPath  string

	resolved   bool
	localPath  string
	resolvedURL *pburl.URL
}

// NewLocal creates a resource referencing relPath on deviceID (or, if
// deviceID is "", the device that is resolving it, i.e. "current device").
func NewLocal(deviceID, relPath string) *Resource {
	return &Resource{form: formLocal, deviceID: deviceID, relPath: relPath}
}

// NewURL creates an already-resolved absolute-URL resource.
func NewURL(u *pburl.URL) *Resource {
	return &Resource{form: formURL, url: u, resolved: true, resolvedURL: u}
}

// NewDevspec creates an unresolved devspec resource: selector + in-device
// path, e.g. grub's "(UUID-or-label)/path" or syslinux INCLUDE prefixes.
func NewDevspec(kind SelectorKind, val, path string) *Resource {
	return &Resource{form: formDevspec, selector: kind, selectorVal: val, devspecPath: path}
}

// Resolved reports whether the resource currently has a concrete target
// (spec §3 invariant 2).
func (r *Resource) Resolved() bool {
	return r.resolved
}

// LocalPath returns the resolved local filesystem path, or "" if this
// resource resolved to a URL or is unresolved.
func (r *Resource) LocalPath() string {
	return r.localPath
}

// URL returns the resolved URL, or nil if this resource resolved to a
// local path or is unresolved.
func (r *Resource) URL() *pburl.URL {
	return r.resolvedURL
}

// Resolve attempts to locate the referenced device and compute a concrete
// local path or URL. Resolution is idempotent (spec §4.F, §8 law
// resolve(resolve(r)) = resolve(r)): calling it again is a no-op once
// resolved, except for formLocal with an empty deviceID (resolved against
// "current"), which is re-checked every time since "current" may change
// device between calls (the discovery driver only ever resolves such a
// resource against its own device, so in practice this never flips).
func (r *Resource) Resolve(reg Registry, current Device) bool {
	switch r.form {
	case formURL:
		return true // always resolved at construction

	case formLocal:
		dev := current
		if r.deviceID != "" {
			d, ok := reg.LookupByID(r.deviceID)
			if !ok {
				r.resolved = false
				return false
			}
			dev = d
		}
		if dev == nil || !dev.IsMounted() {
			r.resolved = false
			return false
		}
		r.localPath = filepath.Join(dev.MountPoint(), r.relPath)
		r.resolved = true
		return true

	case formDevspec:
		var dev Device
		var ok bool
		switch r.selector {
		case SelectorUUID:
			dev, ok = reg.LookupByUUID(r.selectorVal)
		case SelectorLabel:
			dev, ok = reg.LookupByLabel(r.selectorVal)
		case SelectorPartName:
			dev, ok = reg.LookupByPartName(r.selectorVal)
		case SelectorCurrentRoot:
			dev, ok = current, current != nil
		case SelectorAny:
			dev, ok = reg.AnyWithFile(r.devspecPath)
		}
		if !ok || dev == nil || !dev.IsMounted() {
			r.resolved = false
			r.localPath = ""
			return false
		}
		r.localPath = filepath.Join(dev.MountPoint(), r.devspecPath)
		r.resolved = true
		return true
	}
	return false
}

// Unresolve reverts a resolved local resource back to unresolved; called
// when its target device disappears (spec §4.F).
func (r *Resource) Unresolve() {
	r.resolved = false
	r.localPath = ""
}

// TargetDeviceID returns the device id this resource currently resolves
// against, if it is a local or devspec resource and is resolved.
func (r *Resource) TargetDeviceID(reg Registry) (string, bool) {
	if !r.resolved || r.form == formURL {
		return "", false
	}
	switch r.form {
	case formLocal:
		if r.deviceID != "" {
			return r.deviceID, true
		}
	case formDevspec:
		switch r.selector {
		case SelectorUUID:
			if d, ok := reg.LookupByUUID(r.selectorVal); ok {
				return d.ID(), true
			}
		case SelectorLabel:
			if d, ok := reg.LookupByLabel(r.selectorVal); ok {
				return d.ID(), true
			}
		case SelectorPartName:
			if d, ok := reg.LookupByPartName(r.selectorVal); ok {
				return d.ID(), true
			}
		}
	}
	return "", false
}

// String is used for diagnostics.
func (r *Resource) String() string {
	switch r.form {
	case formURL:
		return r.url.String()
	case formLocal:
		if r.deviceID == "" {
			return fmt.Sprintf("current:%s", r.relPath)
		}
		return fmt.Sprintf("%s:%s", r.deviceID, r.relPath)
	case formDevspec:
		return fmt.Sprintf("(%d=%s)%s", r.selector, r.selectorVal, r.devspecPath)
	}
	return "<invalid resource>"
}
