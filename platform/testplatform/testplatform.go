// Package testplatform implements platform.Backend over an in-memory (or
// YAML-fixture-loaded) store, standing in for real NVRAM/EFI hardware in
// tests that exercise the daemon's config load/save path without a real
// platform underneath (spec §4.K: "it is legal for the backend to be a
// no-op").
package testplatform

import (
	"context"
	"os"

	"gopkg.in/yaml.v2"

	"github.com/open-power/petitboot/platform"
)

// fixture is the YAML shape a test loads from disk via LoadFixture,
// mirroring platform.Config field-for-field.
type fixture struct {
	AutoBoot   bool     `yaml:"auto-boot"`
	TimeoutSec int      `yaml:"timeout-sec"`
	SafeMode   bool     `yaml:"safe-mode"`
	Network    string   `yaml:"network"`
	BootOrder  []string `yaml:"boot-order"`

	Platform string `yaml:"platform"`
	SystemID string `yaml:"system-id"`
	BMCMAC   string `yaml:"bmc-mac"`
}

// Backend is a platform.Backend over a value held entirely in memory,
// with no subprocess or filesystem access: Config starts at
// platform.DefaultConfig and Sysinfo at the zero value until
// LoadFixture or SaveConfig populates them.
type Backend struct {
	cfg     platform.Config
	sysinfo platform.Sysinfo
	saved   []platform.Config // every SaveConfig call, oldest first, for test assertions
}

// New creates a Backend seeded with platform.DefaultConfig and an empty
// Sysinfo.
func New() *Backend {
	return &Backend{cfg: platform.DefaultConfig}
}

// LoadFixture reads a YAML file at path and replaces the backend's
// current Config/Sysinfo with its contents, the same "load a fixture
// into a test double" idiom the teacher's own table-driven YAML tests use
// (gadget_test.go, asserts/ifacedecls_test.go).
func (b *Backend) LoadFixture(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	var f fixture
	if err := yaml.Unmarshal(data, &f); err != nil {
		return err
	}
	b.cfg = platform.Config{
		AutoBoot:   f.AutoBoot,
		TimeoutSec: f.TimeoutSec,
		SafeMode:   f.SafeMode,
		Network:    f.Network,
		BootOrder:  f.BootOrder,
	}
	b.sysinfo = platform.Sysinfo{Platform: f.Platform, SystemID: f.SystemID, BMCMAC: f.BMCMAC}
	return nil
}

// LoadConfig returns the backend's current in-memory Config. target is
// accepted for interface conformance but ignored: there is only ever one
// config in this backend.
func (b *Backend) LoadConfig(ctx context.Context, target string) (platform.Config, error) {
	return b.cfg, nil
}

// SaveConfig replaces the in-memory Config and records the call, so tests
// can assert on what the daemon attempted to persist.
func (b *Backend) SaveConfig(ctx context.Context, target string, cfg platform.Config) error {
	b.cfg = cfg
	b.saved = append(b.saved, cfg)
	return nil
}

// GetSysinfo returns the backend's current in-memory Sysinfo.
func (b *Backend) GetSysinfo(ctx context.Context) (platform.Sysinfo, error) {
	return b.sysinfo, nil
}

// SetSysinfo lets a test fix a Sysinfo value directly without a fixture
// file.
func (b *Backend) SetSysinfo(s platform.Sysinfo) {
	b.sysinfo = s
}

// Saved returns every Config passed to SaveConfig so far, oldest first.
func (b *Backend) Saved() []platform.Config {
	out := make([]platform.Config, len(b.saved))
	copy(out, b.saved)
	return out
}
