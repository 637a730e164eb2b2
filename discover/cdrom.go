package discover

import (
	"fmt"

	"golang.org/x/sys/unix"

	"github.com/open-power/petitboot/device"
	"github.com/open-power/petitboot/logging"
)

// Linux CDROM ioctl numbers (linux/cdrom.h), reproduced here since they
// aren't exposed by golang.org/x/sys/unix.
const (
	cdromDriveStatus    = 0x5326
	cdromLockdoor       = 0x5329
	cdromEject          = 0x5309
	cdromClearOptions   = 0x5321
	cdoLock             = 0x8
	cdoAutoClose        = 0x1
	cdsDiscOK           = 4
	cdslCurrent         = 0x7fffffff
)

// TrayController is the CD-ROM hardware surface (spec SPEC_FULL item 3),
// grounded on original_source/discover/cdrom.c's cdrom_init/
// cdrom_media_present/cdrom_eject. Abstracted behind an interface so the
// discovery driver's tray bookkeeping is testable without a real drive.
type TrayController interface {
	Init(devpath string)
	MediaPresent(devpath string) bool
	Eject(devpath string)
}

// IoctlTrayController is the production TrayController, issuing the same
// three ioctls as the original: CDROM_CLEAR_OPTIONS at init (disabling
// autoclose and the door lock so mount() can't surprise-close the tray),
// CDROM_DRIVE_STATUS to probe media, and CDROM_LOCKDOOR(0)+CDROMEJECT to
// eject.
type IoctlTrayController struct{}

func (IoctlTrayController) open(devpath string) (int, error) {
	fd, err := unix.Open(devpath, unix.O_RDONLY|unix.O_NONBLOCK, 0)
	if err != nil {
		return -1, fmt.Errorf("cdrom: open %s: %w", devpath, err)
	}
	return fd, nil
}

// ioctlArg issues ioctl(fd, req, arg) with arg passed directly (not as a
// pointer), as the CDROM ioctls expect, returning the syscall's own
// result value (used by CDROM_DRIVE_STATUS, which reports status as its
// return code rather than writing through a pointer).
func ioctlArg(fd int, req uint, arg int) (int, error) {
	r1, _, errno := unix.Syscall(unix.SYS_IOCTL, uintptr(fd), uintptr(req), uintptr(arg))
	if errno != 0 {
		return 0, errno
	}
	return int(r1), nil
}

func (t IoctlTrayController) Init(devpath string) {
	fd, err := t.open(devpath)
	if err != nil {
		logging.Debugf("cdrom: %v", err)
		return
	}
	defer unix.Close(fd)
	if _, err := ioctlArg(fd, cdromClearOptions, cdoLock|cdoAutoClose); err != nil {
		logging.Debugf("cdrom: CLEAR CDO_LOCK|CDO_AUTO_CLOSE failed: %v", err)
	}
}

func (t IoctlTrayController) MediaPresent(devpath string) bool {
	fd, err := t.open(devpath)
	if err != nil {
		logging.Debugf("cdrom: %v", err)
		return false
	}
	defer unix.Close(fd)
	status, err := ioctlArg(fd, cdromDriveStatus, cdslCurrent)
	if err != nil {
		return false
	}
	return status == cdsDiscOK
}

func (t IoctlTrayController) Eject(devpath string) {
	fd, err := t.open(devpath)
	if err != nil {
		logging.Debugf("cdrom: %v", err)
		return
	}
	defer unix.Close(fd)
	if _, err := ioctlArg(fd, cdromLockdoor, 0); err != nil {
		logging.Debugf("cdrom: CDROM_LOCKDOOR(unlock) failed: %v", err)
	}
	if _, err := ioctlArg(fd, cdromEject, 0); err != nil {
		logging.Debugf("cdrom: CDROM_EJECT failed: %v", err)
	}
}

// applyTrayState refreshes dev's TrayState from the controller's current
// read of media presence, classifying into the four explicit states of
// SPEC_FULL item 3. Lock state is sticky: a device already in TrayLocked
// is left unchanged here, matching the original's door-lock being
// independent of media presence. Nothing in this package sets or clears
// TrayLocked.
func applyTrayState(tc TrayController, dev *device.Device, devpath string) {
	if dev.TrayState() == device.TrayLocked {
		return
	}
	if tc.MediaPresent(devpath) {
		dev.SetTrayState(device.TrayClosedWithDisc)
	} else {
		dev.SetTrayState(device.TrayClosedNoDisc)
	}
}
