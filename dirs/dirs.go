// Package dirs centralises every filesystem path petitboot touches, so
// that tests can redirect the whole tree under a scratch directory with
// a single call to SetRootDir.
package dirs

import "path/filepath"

// GlobalRootDir is prefixed onto every path below. Production code never
// changes it; tests call SetRootDir to point the tree at a throwaway
// directory.
var GlobalRootDir = "/"

// SetRootDir points the whole package at root, recomputing every derived
// path. Passing "" or "/" restores the real root.
func SetRootDir(root string) {
	if root == "" {
		root = "/"
	}
	GlobalRootDir = root
	updatePaths()
}

var (
	// PetitbootRunDir holds mount points and other runtime scratch state.
	PetitbootRunDir string
	// PetitbootMountDir is the parent of every per-device mount point,
	// each created with the template "mnt-XXXXXX" (spec §6).
	PetitbootMountDir string
	// PetitbootIPCSocket is the default discovery<->UI Unix socket path
	// (spec §6).
	PetitbootIPCSocket string
	// EFIVarsDir is where EFI variables are exposed by the kernel.
	EFIVarsDir string
	// DeviceTreeDir is the optional /proc/device-tree mount point.
	DeviceTreeDir string
	// MountCmd and UmountCmd are the binaries invoked to (un)mount
	// discovered devices (spec §6).
	MountCmd  string
	UmountCmd string
	// KexecCmd is the binary invoked to boot a selected option (spec §6).
	KexecCmd string
	// NvramCmd is the binary used by the NVRAM platform backend.
	NvramCmd string
)

func init() {
	updatePaths()
}

func updatePaths() {
	PetitbootRunDir = filepath.Join(GlobalRootDir, "var/tmp/petitboot")
	PetitbootMountDir = PetitbootRunDir
	PetitbootIPCSocket = filepath.Join(GlobalRootDir, "var/tmp/petitboot-dev")
	EFIVarsDir = filepath.Join(GlobalRootDir, "sys/firmware/efi/efivars")
	DeviceTreeDir = filepath.Join(GlobalRootDir, "proc/device-tree")
	MountCmd = "/bin/mount"
	UmountCmd = "/bin/umount"
	KexecCmd = "/sbin/kexec"
	NvramCmd = "/sbin/nvram"
}

// GrubSearchPrefixes are the conventional locations a grub2 configuration
// may be found under on a mounted device (spec §6).
var GrubSearchPrefixes = []string{
	"/grub/",
	"/grub2/",
	"/boot/grub/",
	"/boot/grub2/",
	"/efi/boot/",
	"/efi/Microsoft/Boot/",
}

// GrubConfigPaths is GrubSearchPrefixes with the "grub.cfg" filename
// appended, in search order (spec §4.H/§6).
var GrubConfigPaths = grubConfigPaths()

func grubConfigPaths() []string {
	out := make([]string, len(GrubSearchPrefixes))
	for i, prefix := range GrubSearchPrefixes {
		out[i] = filepath.Join(prefix, "grub.cfg")
	}
	return out
}

// SyslinuxConfigPaths are the isolinux/syslinux config search paths, in
// probe order (spec §4.H; order taken from the syslinux wiki's own
// documented search order).
var SyslinuxConfigPaths = syslinuxConfigPaths()

func syslinuxConfigPaths() []string {
	dirs := []string{"boot/isolinux", "isolinux", "boot/syslinux", "syslinux", ""}
	confs := []string{"isolinux.cfg", "syslinux.cfg"}
	var out []string
	for _, d := range dirs {
		for _, conf := range confs {
			if d == "" {
				out = append(out, "/"+conf)
			} else {
				out = append(out, filepath.Join("/", d, conf))
			}
		}
	}
	return out
}

// NativeConfigPaths are the native petitboot.conf search paths (spec §4.H).
var NativeConfigPaths = []string{
	"/petitboot.conf",
	"/boot/petitboot.conf",
}

// KbootConfigPath is the kboot.conf search path (spec §4.H).
const KbootConfigPath = "/etc/kboot.conf"

// YabootConfigPaths are the yaboot.conf search paths (spec §4.H).
var YabootConfigPaths = []string{
	"/etc/yaboot.conf",
	"/yaboot.conf",
}
