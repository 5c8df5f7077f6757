//go:build unix

package testsupport

import (
	"testing"

	"golang.org/x/sys/unix"
)

// LimitFileSize caps the size of any file this process writes to limit bytes
// until the returned restore func runs. Writes past the cap fail with EFBIG.
// The test is skipped when the limit cannot be changed.
func LimitFileSize(t testing.TB, limit uint64) (restore func()) {
	t.Helper()

	var orig unix.Rlimit
	if err := unix.Getrlimit(unix.RLIMIT_FSIZE, &orig); err != nil {
		t.Skipf("getrlimit: %v", err)
	}
	capped := unix.Rlimit{Cur: limit, Max: orig.Max}
	if err := unix.Setrlimit(unix.RLIMIT_FSIZE, &capped); err != nil {
		t.Skipf("setrlimit: %v", err)
	}
	restored := false
	restore = func() {
		if restored {
			return
		}
		restored = true
		if err := unix.Setrlimit(unix.RLIMIT_FSIZE, &orig); err != nil {
			t.Errorf("restore file size limit: %v", err)
		}
	}
	t.Cleanup(restore)
	return restore
}
