package procsup

import (
	"context"
	"fmt"

	"gopkg.in/retry.v1"

	"github.com/open-power/petitboot/dirs"
	"github.com/open-power/petitboot/logging"
)

// MountRetryStrategy bounds the retries applied to a failing mount/umount,
// recovering from the race where a just-unmounted device is still
// settling (grounded in original_source/discover/udev.c's mount-retry
// loop): at most 3 attempts in total, with no delay between them. Exposed
// as a var so tests can replace it.
var MountRetryStrategy = retry.LimitCount(3, retry.Exponential{
	Initial: 0, // zero delay between attempts
})

// MountReadOnly invokes "mount <dev> <dir> -o ro" per spec §6, retrying on
// transient failure.
func MountReadOnly(ctx context.Context, dev, mountpoint string) error {
	var lastErr error
	for a := retry.StartWithCancel(MountRetryStrategy, nil, ctx.Done()); a.Next(ctx.Done()); {
		p, err := RunSimple(ctx, dirs.MountCmd, dev, mountpoint, "-o", "ro")
		if err != nil {
			lastErr = err
			continue
		}
		if p.ExitStatus == 0 {
			return nil
		}
		lastErr = fmt.Errorf("mount %s on %s: exit status %d: %s", dev, mountpoint, p.ExitStatus, p.Stdout)
		logging.Debugf("procsup: %v, retrying", lastErr)
	}
	return lastErr
}

// Umount invokes "umount <dev>" per spec §6, retrying on transient busy
// failures (e.g. a parser still has a file descriptor open).
func Umount(ctx context.Context, dev string) error {
	var lastErr error
	for a := retry.StartWithCancel(MountRetryStrategy, nil, ctx.Done()); a.Next(ctx.Done()); {
		p, err := RunSimple(ctx, dirs.UmountCmd, dev)
		if err != nil {
			lastErr = err
			continue
		}
		if p.ExitStatus == 0 {
			return nil
		}
		lastErr = fmt.Errorf("umount %s: exit status %d: %s", dev, p.ExitStatus, p.Stdout)
		logging.Debugf("procsup: %v, retrying", lastErr)
	}
	return lastErr
}
