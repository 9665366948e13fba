package metering

import (
	"os"

	"golang.org/x/sys/unix"
)

// lockedFile is an open file held under an advisory exclusive lock,
// released by Close. Every durable state machine in this package (ledger
// append, daily-spend read-modify-write, rate-limit state) serializes
// through exactly this primitive, grounded on the
// Python originals' uniform use of fcntl.flock(LOCK_EX).
type lockedFile struct {
	f *os.File
}

// lockExclusive opens path (creating it if necessary) and blocks until an
// exclusive advisory lock is held.
func lockExclusive(path string) (*lockedFile, error) {
	f, err := os.OpenFile(path, os.O_RDWR|os.O_CREATE, 0o600)
	if err != nil {
		return nil, err
	}
	if err := unix.Flock(int(f.Fd()), unix.LOCK_EX); err != nil {
		f.Close()
		return nil, err
	}
	return &lockedFile{f: f}, nil
}

// tryLockExclusive attempts a non-blocking exclusive lock. ok is false
// (with a nil error) when the file is already held by another process.
func tryLockExclusive(path string) (lf *lockedFile, ok bool, err error) {
	f, err := os.OpenFile(path, os.O_RDWR|os.O_CREATE, 0o600)
	if err != nil {
		return nil, false, err
	}
	if err := unix.Flock(int(f.Fd()), unix.LOCK_EX|unix.LOCK_NB); err != nil {
		f.Close()
		if err == unix.EWOULDBLOCK {
			return nil, false, nil
		}
		return nil, false, err
	}
	return &lockedFile{f: f}, true, nil
}

func (l *lockedFile) File() *os.File { return l.f }

// Close releases the advisory lock and closes the file.
func (l *lockedFile) Close() error {
	unix.Flock(int(l.f.Fd()), unix.LOCK_UN)
	return l.f.Close()
}
