//go:build !unix

package testsupport

import "testing"

// LimitFileSize is unsupported on this platform and skips the test.
func LimitFileSize(t testing.TB, limit uint64) func() {
	t.Helper()
	t.Skip("file size limits need RLIMIT_FSIZE")
	return func() {}
}
