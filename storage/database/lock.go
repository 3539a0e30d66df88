// Adapted for Vision Node: the teacher relied on goleveldb's own directory
// flock for single-writer safety and never needed an explicit lock file for
// the badger backend (badger.Open already fails if a second process holds
// its own internal lock). Store.Open needs ONE lock file that works the same
// way regardless of which backend is selected, so this adds a small
// sidecar VISION_LOCK file checked up front (named apart from the LOCK file
// goleveldb and badger each flock in the same directory), surfaced as
// ErrStorageLocked (spec
// §4.1 "acquires an exclusive lock on its storage path at startup").

package database

import (
	"os"
	"path/filepath"

	"golang.org/x/sys/unix"
)

type pathLock struct {
	f *os.File
}

func acquirePathLock(dir string) (*pathLock, error) {
	if err := ensureDir(dir); err != nil {
		return nil, err
	}
	f, err := os.OpenFile(filepath.Join(dir, "VISION_LOCK"), os.O_CREATE|os.O_RDWR, 0644)
	if err != nil {
		return nil, err
	}
	if err := unix.Flock(int(f.Fd()), unix.LOCK_EX|unix.LOCK_NB); err != nil {
		f.Close()
		return nil, ErrStorageLocked
	}
	return &pathLock{f: f}, nil
}

func (l *pathLock) release() error {
	if l == nil || l.f == nil {
		return nil
	}
	unix.Flock(int(l.f.Fd()), unix.LOCK_UN)
	return l.f.Close()
}

func ensureDir(dir string) error {
	if fi, err := os.Stat(dir); err == nil {
		if !fi.IsDir() {
			return os.ErrExist
		}
		return nil
	}
	return os.MkdirAll(dir, 0755)
}
