package device

import (
	"os"
	"path/filepath"
)

func fileExists(mountPoint, relpath string) bool {
	_, err := os.Stat(filepath.Join(mountPoint, relpath))
	return err == nil
}
