package device

import (
	"sync"

	"github.com/open-power/petitboot/resource"
)

// Registry is spec §4.E's device registry: a set of Devices indexed by
// id, UUID, LABEL, and MAC, with insertion-order iteration. Its lookups
// return *Device, so it does not itself satisfy resource.Registry;
// AsResourceRegistry provides that view for resolving resources.
type Registry struct {
	mu    sync.RWMutex
	order []string
	byID  map[string]*Device
	byU   map[string]*Device
	byL   map[string]*Device
	byMAC map[string]*Device

	onAdd    []func(*Device)
	onRemove []func(*Device)
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{
		byID:  make(map[string]*Device),
		byU:   make(map[string]*Device),
		byL:   make(map[string]*Device),
		byMAC: make(map[string]*Device),
	}
}

// OnAdd registers a callback fired synchronously after a device is added.
func (r *Registry) OnAdd(f func(*Device)) { r.onAdd = append(r.onAdd, f) }

// OnRemove registers a callback fired synchronously after a device is
// removed.
func (r *Registry) OnRemove(f func(*Device)) { r.onRemove = append(r.onRemove, f) }

// Add inserts d, emitting device-added. If a device with the same UUID
// is already registered, d is rejected as a duplicate (spec §4.E
// invariant: multipath dedup) and Add returns false.
func (r *Registry) Add(d *Device) bool {
	r.mu.Lock()
	if d.UUID() != "" {
		if _, exists := r.byU[d.UUID()]; exists {
			r.mu.Unlock()
			return false
		}
	}
	r.byID[d.ID()] = d
	if d.UUID() != "" {
		r.byU[d.UUID()] = d
	}
	if d.Label() != "" {
		r.byL[d.Label()] = d
	}
	if d.MAC() != "" {
		r.byMAC[d.MAC()] = d
	}
	r.order = append(r.order, d.ID())
	hooks := append([]func(*Device){}, r.onAdd...)
	r.mu.Unlock()

	for _, h := range hooks {
		h(d)
	}
	return true
}

// Remove removes the device with the given id, emitting device-removed,
// which triggers re-check of every unresolved resource (performed by the
// caller of OnRemove, typically the discovery driver).
func (r *Registry) Remove(id string) (*Device, bool) {
	r.mu.Lock()
	d, ok := r.byID[id]
	if !ok {
		r.mu.Unlock()
		return nil, false
	}
	delete(r.byID, id)
	if d.UUID() != "" {
		delete(r.byU, d.UUID())
	}
	if d.Label() != "" {
		delete(r.byL, d.Label())
	}
	if d.MAC() != "" {
		delete(r.byMAC, d.MAC())
	}
	for i, oid := range r.order {
		if oid == id {
			r.order = append(r.order[:i], r.order[i+1:]...)
			break
		}
	}
	hooks := append([]func(*Device){}, r.onRemove...)
	r.mu.Unlock()

	for _, h := range hooks {
		h(d)
	}
	return d, true
}

func (r *Registry) LookupByID(id string) (*Device, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	d, ok := r.byID[id]
	return d, ok
}

func (r *Registry) LookupByUUID(uuid string) (*Device, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	d, ok := r.byU[uuid]
	return d, ok
}

func (r *Registry) LookupByLabel(label string) (*Device, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	d, ok := r.byL[label]
	return d, ok
}

func (r *Registry) LookupByMAC(mac string) (*Device, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	d, ok := r.byMAC[mac]
	return d, ok
}

// LookupByPartName looks a device up by its udev-reported partition name
// property (legacy device-name devspecs, spec §4.G request_file).
func (r *Registry) LookupByPartName(name string) (*Device, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, id := range r.order {
		d := r.byID[id]
		if v, ok := d.Property("ID_FS_PARTNAME"); ok && v == name {
			return d, true
		}
		if v, ok := d.Property("DEVNAME"); ok && v == name {
			return d, true
		}
	}
	return nil, false
}

// AnyWithFile returns the first mounted device, in insertion order, whose
// mount point contains relpath (the "any" selector, via
// AsResourceRegistry).
func (r *Registry) AnyWithFile(relpath string) (*Device, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, id := range r.order {
		d := r.byID[id]
		if d.IsMounted() && fileExists(d.MountPoint(), relpath) {
			return d, true
		}
	}
	return nil, false
}

// ForEach iterates devices in insertion order (spec §4.E for_each).
func (r *Registry) ForEach(f func(*Device)) {
	r.mu.RLock()
	ids := append([]string{}, r.order...)
	r.mu.RUnlock()
	for _, id := range ids {
		if d, ok := r.LookupByID(id); ok {
			f(d)
		}
	}
}

// --- resource.Registry adapter (Device -> resource.Device boxing) ---

type resourceRegistryAdapter struct{ r *Registry }

// AsResourceRegistry returns a view of r usable as resource.Registry.
func (r *Registry) AsResourceRegistry() resource.Registry {
	return resourceRegistryAdapter{r}
}

func (a resourceRegistryAdapter) LookupByID(id string) (resource.Device, bool) {
	return boxLookup(a.r.LookupByID(id))
}
func (a resourceRegistryAdapter) LookupByUUID(uuid string) (resource.Device, bool) {
	return boxLookup(a.r.LookupByUUID(uuid))
}
func (a resourceRegistryAdapter) LookupByLabel(label string) (resource.Device, bool) {
	return boxLookup(a.r.LookupByLabel(label))
}
func (a resourceRegistryAdapter) LookupByPartName(name string) (resource.Device, bool) {
	return boxLookup(a.r.LookupByPartName(name))
}
func (a resourceRegistryAdapter) AnyWithFile(relpath string) (resource.Device, bool) {
	return boxLookup(a.r.AnyWithFile(relpath))
}

func boxLookup(d *Device, ok bool) (resource.Device, bool) {
	if !ok {
		return nil, false
	}
	return d, ok
}
