// Package platform implements spec §4.K's Platform interface: an opaque
// load/save of persisted user configuration plus a read-only sysinfo
// query, backed concretely by NVRAM (package nvram), EFI variables
// (package efivars), or a YAML test fixture (package testplatform). The
// core treats a Backend as an opaque source/sink; a no-op backend is
// legal (spec §4.K).
package platform

import "context"

// Config is the persisted user-preference blob of
// SUPPLEMENTED FEATURES item 4 (grounded on
// original_source/lib/pb-config/pb-config.c's struct config): the subset
// of petitboot's own settings the daemon loads at startup and can update
// in response to a `sync` user action, as distinct from the discovered
// Device/BootOption state itself.
type Config struct {
	// AutoBoot mirrors the "auto-boot?" NVRAM parameter: true unless the
	// backend holds the literal string "false" (pb-config.c's
	// populate_config: "!val || strcmp(val, \"false\")").
	AutoBoot bool
	// TimeoutSec is how long the UI waits before booting the default
	// option, 0 meaning boot immediately.
	TimeoutSec int
	// SafeMode disables auto-boot for one session after an unclean
	// shutdown, matching the original's safe_mode flag.
	SafeMode bool
	// Network carries the raw "petitboot,network" parameter value
	// unparsed: a space-separated list of
	// "mac,method[,addr[,gw]]"/"dns,server..." tokens. The core never
	// interprets this itself (spec.md Non-goals exclude network
	// configuration); it is stored and returned verbatim so a network
	// collaborator downstream can use it.
	Network string
	// BootOrder is an ordered list of device selectors (UUID, label, or
	// device-type name), mirroring autoboot_opts.
	BootOrder []string
}

// Sysinfo is the read-only platform-identity snapshot of spec §4.K,
// extended per SUPPLEMENTED FEATURES items 1/2 with BMC MAC and
// device-tree identity.
type Sysinfo struct {
	Platform string // /proc/device-tree/model, when present
	SystemID string // /proc/device-tree/system-id, when present
	BMCMAC   string // colon-separated MAC from ipmitool, "" if unavailable
}

// Backend is the concrete storage a platform.Config round-trips through.
// LoadConfig/SaveConfig/GetSysinfo are the three verbs spec §4.K names;
// "target" identifies the partition/variable/fixture the backend reads
// from or writes to (e.g. NVRAM's "common" partition).
type Backend interface {
	LoadConfig(ctx context.Context, target string) (Config, error)
	SaveConfig(ctx context.Context, target string, cfg Config) error
	GetSysinfo(ctx context.Context) (Sysinfo, error)
}

// DefaultConfig is what LoadConfig should effectively return when no
// persisted value exists yet for a parameter (pb-config.c's defaults:
// auto-boot enabled, no timeout override, not in safe mode).
var DefaultConfig = Config{AutoBoot: true, TimeoutSec: 10}
