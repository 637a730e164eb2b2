// Package nvram implements platform.Backend over the "nvram" command-line
// tool's "common" partition, grounded on
// original_source/lib/pb-config/storage-powerpc-nvram.c.
package nvram

import (
	"bufio"
	"context"
	"fmt"
	"strings"

	"github.com/open-power/petitboot/dirs"
	"github.com/open-power/petitboot/paramlist"
	"github.com/open-power/petitboot/platform"
	"github.com/open-power/petitboot/procsup"
)

// Backend talks to the "nvram" binary (dirs.NvramCmd), parsing
// "--print-config" output and writing changed parameters back with
// "--update-config", matching the original's parse_nvram/param_list
// round trip.
type Backend struct{}

// New creates an NVRAM Backend.
func New() *Backend { return &Backend{} }

// LoadConfig runs "nvram --print-config --partition <target>", keeping
// only the whitelisted parameter names (paramlist.CommonKnownParams),
// exactly as storage-powerpc-nvram.c's param_is_known filter does, and
// maps them onto a platform.Config.
func (b *Backend) LoadConfig(ctx context.Context, target string) (platform.Config, error) {
	list, err := readParams(ctx, target)
	if err != nil {
		return platform.Config{}, err
	}
	cfg := platform.DefaultConfig
	if val, ok := list.Get("auto-boot?"); ok {
		cfg.AutoBoot = val != "false"
	}
	if val, ok := list.Get("petitboot,network"); ok {
		cfg.Network = val
	}
	return cfg, nil
}

// SaveConfig writes only the parameters whose value differs from what's
// currently stored (param_list's dirty-flag, same-value-is-a-no-op
// semantics), one "nvram --update-config name=value" call per changed
// entry.
func (b *Backend) SaveConfig(ctx context.Context, target string, cfg platform.Config) error {
	list, err := readParams(ctx, target)
	if err != nil {
		return err
	}
	autoboot := "true"
	if !cfg.AutoBoot {
		autoboot = "false"
	}
	list.Set("auto-boot?", autoboot, false)
	list.SetNonEmpty("petitboot,network", cfg.Network, false)

	for _, p := range list.Modified() {
		proc, err := procsup.RunSimple(ctx, dirs.NvramCmd, "--update-config",
			fmt.Sprintf("%s=%s", p.Name, p.Value), "--partition", target)
		if err != nil {
			return fmt.Errorf("nvram: update-config %s: %w", p.Name, err)
		}
		if proc.ExitStatus != 0 {
			return fmt.Errorf("nvram: update-config %s: exit status %d", p.Name, proc.ExitStatus)
		}
	}
	list.ClearModified()
	return nil
}

// GetSysinfo delegates to platform.CommonSysinfo: NVRAM carries no
// platform-identity fields of its own beyond what device-tree/IPMI
// already provide.
func (b *Backend) GetSysinfo(ctx context.Context) (platform.Sysinfo, error) {
	return platform.CommonSysinfo(ctx), nil
}

// readParams runs "nvram --print-config --partition target" and parses
// its output into a paramlist.List, discarding the two header lines
// ("<partition> partition" / "------------------") the real tool emits
// before its key=value body, per parse_nvram_params.
func readParams(ctx context.Context, target string) (*paramlist.List, error) {
	proc, err := procsup.RunSimple(ctx, dirs.NvramCmd, "--print-config", "--partition", target)
	if err != nil {
		return nil, fmt.Errorf("nvram: print-config: %w", err)
	}
	if proc.ExitStatus != 0 {
		return nil, fmt.Errorf("nvram: print-config: exit status %d", proc.ExitStatus)
	}

	list := paramlist.New(paramlist.CommonKnownParams)
	scanner := bufio.NewScanner(strings.NewReader(string(proc.Stdout)))
	headerLines := 0
	for scanner.Scan() {
		line := scanner.Text()
		if headerLines < 2 {
			headerLines++
			continue
		}
		name, value, ok := strings.Cut(line, "=")
		if !ok || name == "" {
			continue
		}
		if !list.IsKnown(name) {
			continue
		}
		list.Set(name, value, false)
	}
	return list, nil
}
