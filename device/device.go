// Package device implements the Device entity and registry of spec §4.E:
// a set of discovered devices keyed by a stable id, indexed by UUID,
// LABEL, and MAC, with insertion-order iteration and lifecycle events
// that drive resource re-resolution (spec §4.F).
package device

import (
	"sync"

	"github.com/open-power/petitboot/arena"
	"github.com/open-power/petitboot/resource"
)

// Class classifies a discovered device (spec §3 Device.classification).
type Class string

const (
	ClassDisk    Class = "disk"
	ClassUSB     Class = "usb"
	ClassOptical Class = "optical"
	ClassNetwork Class = "network"
	ClassUnknown Class = "unknown"
)

// TrayState is the CD-ROM tray state machine of spec §9 / SPEC_FULL item 3,
// grounded on original_source/discover/cdrom.c.
type TrayState int

const (
	TrayOpen TrayState = iota
	TrayClosedNoDisc
	TrayClosedWithDisc
	TrayLocked
)

// BootOption is spec §3's BootOption entity: immutable once published,
// owned by exactly one Device (invariant 1).
type BootOption struct {
	ID          string
	Name        string
	Description string
	Icon        string
	BootImage   *resource.Resource
	Initrd      *resource.Resource // nil if absent
	DTB         *resource.Resource // nil if absent
	Args        string
	IsDefault   bool

	owner     *Device
	published bool
}

// Owner returns the Device this option belongs to.
func (o *BootOption) Owner() *Device { return o.owner }

// Published reports whether this option has been published to IPC
// clients and not yet removed.
func (o *BootOption) Published() bool { return o.published }

// Resolved reports whether every resource this option references is
// currently resolved (spec §4.F: an option with any unresolved resource
// is un-published).
func (o *BootOption) Resolved() bool {
	if o.BootImage != nil && !o.BootImage.Resolved() {
		return false
	}
	if o.Initrd != nil && !o.Initrd.Resolved() {
		return false
	}
	if o.DTB != nil && !o.DTB.Resolved() {
		return false
	}
	return true
}

// resources returns every non-nil resource this option owns, for bulk
// resolution bookkeeping.
func (o *BootOption) resources() []*resource.Resource {
	var rs []*resource.Resource
	if o.BootImage != nil {
		rs = append(rs, o.BootImage)
	}
	if o.Initrd != nil {
		rs = append(rs, o.Initrd)
	}
	if o.DTB != nil {
		rs = append(rs, o.DTB)
	}
	return rs
}

// Device is spec §3's Device entity: a persistent discovery artifact
// owning a list of BootOptions, freed as a unit (invariant 5, via its
// Arena).
type Device struct {
	mu sync.RWMutex

	id         string
	uuid       string
	label      string
	mac        string
	class      Class
	mountPoint string
	properties map[string]string
	tray       TrayState

	options []*BootOption
	arena   *arena.Arena
}

// New creates a Device. parentArena, if non-nil, becomes the parent of
// the Device's own arena (spec §4.C); freeing the Device's arena frees
// every option and resource it owns.
func New(id string, class Class, parentArena *arena.Arena) *Device {
	var a *arena.Arena
	if parentArena != nil {
		a = parentArena.NewChild()
	} else {
		a = arena.New()
	}
	return &Device{
		id:         id,
		class:      class,
		properties: make(map[string]string),
		arena:      a,
	}
}

func (d *Device) ID() string { d.mu.RLock(); defer d.mu.RUnlock(); return d.id }

func (d *Device) UUID() string { d.mu.RLock(); defer d.mu.RUnlock(); return d.uuid }

func (d *Device) SetUUID(u string) { d.mu.Lock(); defer d.mu.Unlock(); d.uuid = u }

func (d *Device) Label() string { d.mu.RLock(); defer d.mu.RUnlock(); return d.label }

func (d *Device) SetLabel(l string) { d.mu.Lock(); defer d.mu.Unlock(); d.label = l }

func (d *Device) MAC() string { d.mu.RLock(); defer d.mu.RUnlock(); return d.mac }

func (d *Device) SetMAC(m string) { d.mu.Lock(); defer d.mu.Unlock(); d.mac = m }

func (d *Device) Class() Class { d.mu.RLock(); defer d.mu.RUnlock(); return d.class }

func (d *Device) MountPoint() string { d.mu.RLock(); defer d.mu.RUnlock(); return d.mountPoint }

func (d *Device) SetMountPoint(p string) { d.mu.Lock(); defer d.mu.Unlock(); d.mountPoint = p }

func (d *Device) IsMounted() bool { d.mu.RLock(); defer d.mu.RUnlock(); return d.mountPoint != "" }

func (d *Device) TrayState() TrayState { d.mu.RLock(); defer d.mu.RUnlock(); return d.tray }

func (d *Device) SetTrayState(t TrayState) { d.mu.Lock(); defer d.mu.Unlock(); d.tray = t }

func (d *Device) Arena() *arena.Arena { return d.arena }

// SetProperty records a udev (or synthetic) property, spec §3
// Device.property map.
func (d *Device) SetProperty(key, value string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.properties[key] = value
}

// Property reads a previously recorded property.
func (d *Device) Property(key string) (string, bool) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	v, ok := d.properties[key]
	return v, ok
}

// AddOption attaches opt to d (spec §4.G add_boot_option): the option is
// owned by d from this point on and is freed with it.
func (d *Device) AddOption(opt *BootOption) {
	d.mu.Lock()
	defer d.mu.Unlock()
	opt.owner = d
	d.options = append(d.options, opt)
	d.arena.Alloc(opt, nil)
}

// Options returns the device's options in the order they were added
// (parser emission order, spec §5).
func (d *Device) Options() []*BootOption {
	d.mu.RLock()
	defer d.mu.RUnlock()
	out := make([]*BootOption, len(d.options))
	copy(out, d.options)
	return out
}

// Publish marks every currently-resolved option published and returns the
// ones that transitioned from unpublished to published (for IPC
// ADD_OPTION emission).
func (d *Device) Publish() []*BootOption {
	d.mu.Lock()
	defer d.mu.Unlock()
	var newly []*BootOption
	for _, o := range d.options {
		if !o.published && o.Resolved() {
			o.published = true
			newly = append(newly, o)
		} else if o.published && !o.Resolved() {
			o.published = false
		}
	}
	return newly
}

// Unpublished returns options that were published but whose resources
// have since become unresolved (for IPC REMOVE_OPTION emission), clearing
// their published flag.
func (d *Device) Unpublished() []*BootOption {
	d.mu.Lock()
	defer d.mu.Unlock()
	var gone []*BootOption
	for _, o := range d.options {
		if o.published && !o.Resolved() {
			o.published = false
			gone = append(gone, o)
		}
	}
	return gone
}

// UnpublishAll force-clears the published flag on every option regardless
// of resolution state, returning the ones that had been published. Used
// when the owning Device itself is being removed (spec §4.I REMOVE),
// where every option must generate a REMOVE_OPTION regardless of whether
// its resources happen to still resolve at that instant.
func (d *Device) UnpublishAll() []*BootOption {
	d.mu.Lock()
	defer d.mu.Unlock()
	var gone []*BootOption
	for _, o := range d.options {
		if o.published {
			o.published = false
			gone = append(gone, o)
		}
	}
	return gone
}

// Free releases the device's arena, freeing every option and resource it
// owns (spec §3 invariant 1/5).
func (d *Device) Free() {
	d.arena.Free()
}
