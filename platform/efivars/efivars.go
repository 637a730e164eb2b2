// Package efivars implements platform.Backend over a UEFI variable
// exposed through efivarfs, grounded on
// original_source/lib/efi/efivar.c's efi_get_variable/efi_set_variable.
package efivars

import (
	"bufio"
	"context"
	"encoding/binary"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"golang.org/x/sys/unix"

	"github.com/open-power/petitboot/dirs"
	"github.com/open-power/petitboot/logging"
	"github.com/open-power/petitboot/paramlist"
	"github.com/open-power/petitboot/platform"
)

// variableName and guid identify the single efivarfs file this backend
// round-trips, following efivarfs's "<Name>-<GUID>" naming convention
// (efi_open: "%s%s-%s", path, name, guidstr).
const (
	variableName = "PetitbootConfig"
	variableGUID = "6773c3d2-0b10-4b5f-8c1a-9c9d9e9b2d4e"

	// defaultAttributes matches the original's typical non-volatile,
	// boot-service, runtime-accessible variable (EFI_VARIABLE_NON_VOLATILE
	// | _BOOTSERVICE_ACCESS | _RUNTIME_ACCESS), used only when creating
	// the variable for the first time.
	defaultAttributes = 0x1 | 0x2 | 0x4

	// fsImmutableFL is linux/fs.h's FS_IMMUTABLE_FL, not exposed by
	// golang.org/x/sys/unix.
	fsImmutableFL = 0x00000010
)

// Backend reads and writes the PetitbootConfig efivarfs variable.
type Backend struct{}

// New creates an efivarfs Backend.
func New() *Backend { return &Backend{} }

func variablePath() string {
	return filepath.Join(dirs.EFIVarsDir, variableName+"-"+variableGUID)
}

// LoadConfig reads the variable's data (past its 4-byte attributes
// header, per efi_get_variable) and decodes it as a paramlist-style
// key=value-per-line blob. A missing variable is not an error: it means
// no config has ever been saved, so platform.DefaultConfig applies.
func (b *Backend) LoadConfig(ctx context.Context, target string) (platform.Config, error) {
	_, data, err := readVariable()
	if os.IsNotExist(err) {
		return platform.DefaultConfig, nil
	}
	if err != nil {
		return platform.Config{}, err
	}
	return decodeConfig(data), nil
}

// SaveConfig encodes cfg the same way LoadConfig expects and writes it
// back, clearing the immutable flag and recreating the file first
// (efi_set_variable: "efi_del_variable(...); ... O_CREAT|O_WRONLY").
func (b *Backend) SaveConfig(ctx context.Context, target string, cfg platform.Config) error {
	return writeVariable(defaultAttributes, encodeConfig(cfg))
}

// GetSysinfo delegates to platform.CommonSysinfo: efivarfs carries no
// platform-identity fields beyond device-tree/IPMI.
func (b *Backend) GetSysinfo(ctx context.Context) (platform.Sysinfo, error) {
	return platform.CommonSysinfo(ctx), nil
}

func readVariable() (attributes uint32, data []byte, err error) {
	raw, err := os.ReadFile(variablePath())
	if err != nil {
		return 0, nil, err
	}
	if len(raw) < 4 {
		return 0, nil, fmt.Errorf("efivars: %s: truncated variable (%d bytes)", variableName, len(raw))
	}
	attributes = binary.LittleEndian.Uint32(raw[:4])
	return attributes, raw[4:], nil
}

// writeVariable deletes any existing file (clearing FS_IMMUTABLE_FL
// first, ignoring ENOTTY the way efi_del_variable does for filesystems
// that don't support the ioctl) then recreates it with a fresh
// attributes header plus data.
func writeVariable(attributes uint32, data []byte) error {
	deleteVariable()

	if err := os.MkdirAll(dirs.EFIVarsDir, 0755); err != nil {
		return err
	}
	f, err := os.OpenFile(variablePath(), os.O_CREATE|os.O_WRONLY, 0644)
	if err != nil {
		return fmt.Errorf("efivars: create %s: %w", variableName, err)
	}
	defer f.Close()

	buf := make([]byte, 4+len(data))
	binary.LittleEndian.PutUint32(buf[:4], attributes)
	copy(buf[4:], data)
	if _, err := f.Write(buf); err != nil {
		return fmt.Errorf("efivars: write %s: %w", variableName, err)
	}
	return nil
}

func deleteVariable() {
	path := variablePath()
	fd, err := unix.Open(path, unix.O_RDONLY, 0)
	if err == nil {
		if flags, err := unix.IoctlGetInt(fd, unix.FS_IOC_GETFLAGS); err == nil {
			unix.IoctlSetInt(fd, unix.FS_IOC_SETFLAGS, flags&^fsImmutableFL)
		}
		unix.Close(fd)
	}
	if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
		logging.Debugf("efivars: remove %s: %v", path, err)
	}
}

// decodeConfig parses the same key=value-per-line shape readParams uses
// for NVRAM, reusing paramlist purely as a whitelist filter (there's no
// NVRAM-partition header to skip here).
func decodeConfig(data []byte) platform.Config {
	list := paramlist.New(append(append([]string{}, paramlist.CommonKnownParams...), "petitboot,bootdevs"))
	scanner := bufio.NewScanner(strings.NewReader(string(data)))
	for scanner.Scan() {
		name, value, ok := strings.Cut(scanner.Text(), "=")
		if !ok || !list.IsKnown(name) {
			continue
		}
		list.Set(name, value, false)
	}

	cfg := platform.DefaultConfig
	if val, ok := list.Get("auto-boot?"); ok {
		cfg.AutoBoot = val != "false"
	}
	if val, ok := list.Get("petitboot,timeout"); ok {
		if n, err := strconv.Atoi(val); err == nil {
			cfg.TimeoutSec = n
		}
	}
	if val, ok := list.Get("petitboot,network"); ok {
		cfg.Network = val
	}
	if val, ok := list.Get("petitboot,bootdevs"); ok && val != "" {
		cfg.BootOrder = strings.Split(val, " ")
	}
	return cfg
}

func encodeConfig(cfg platform.Config) []byte {
	var b strings.Builder
	autoboot := "true"
	if !cfg.AutoBoot {
		autoboot = "false"
	}
	fmt.Fprintf(&b, "auto-boot?=%s\n", autoboot)
	fmt.Fprintf(&b, "petitboot,timeout=%d\n", cfg.TimeoutSec)
	if cfg.Network != "" {
		fmt.Fprintf(&b, "petitboot,network=%s\n", cfg.Network)
	}
	if len(cfg.BootOrder) > 0 {
		fmt.Fprintf(&b, "petitboot,bootdevs=%s\n", strings.Join(cfg.BootOrder, " "))
	}
	return []byte(b.String())
}
