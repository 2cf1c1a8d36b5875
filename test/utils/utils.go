// Package utils holds small test-only helpers shared across this
// module's test packages.
package utils

import (
	"math/rand"
	"os"
	"testing"

	"xhash/pkg/concurrency"
	"xhash/pkg/hash"

	"github.com/google/uuid"
)

// Salt mods values by this amount to prevent hardcoding test
// assertions against the exact numbers a test generates.
// + 1 is necessary because rand.Int31n(_) can return 0.
var Salt int32 = rand.Int31n(1000) + 1

// EnsureCleanup registers f to run when t's test (and all its
// subtests) finish, regardless of how they exit.
func EnsureCleanup(t *testing.T, f func()) {
	t.Cleanup(f)
}

// GetTempDbFile creates a random file in the OS's temp directory to
// back a test's buffer pool, returning its name. The file is removed
// when the test completes.
func GetTempDbFile(t *testing.T) string {
	tmpfile, err := os.CreateTemp("", "*.db")
	if err != nil {
		t.Fatal(err)
	}
	_ = tmpfile.Close()

	EnsureCleanup(t, func() {
		_ = os.Remove(tmpfile.Name())
	})
	return tmpfile.Name()
}

// Tx returns a fresh, distinct Transaction for tests that need one to
// pass through the index API; the index itself never interprets it.
func Tx() *concurrency.Transaction {
	return concurrency.NewTransaction(uuid.New())
}

// InsertEntry tries to insert (key, val) into table, erroring the
// test if the operation fails or reports a spurious duplicate/
// saturation.
func InsertEntry(t *testing.T, table *hash.ExtendibleHashTable[int32, int32], key, val int32) {
	t.Helper()
	ok, err := table.Insert(Tx(), key, val)
	if err != nil {
		t.Fatalf("Failed to insert (%d, %d) into the table: %s", key, val, err)
	}
	if !ok {
		t.Errorf("Insert(%d, %d) unexpectedly returned false", key, val)
	}
}

// CheckFindEntry verifies that (key, expectedVal) is present among
// table.GetValue(key)'s results.
func CheckFindEntry(t *testing.T, table *hash.ExtendibleHashTable[int32, int32], key, expectedVal int32) {
	t.Helper()
	values, err := table.GetValue(Tx(), key)
	if err != nil {
		t.Errorf("Failed to find inserted entry (%d, %d): %s", key, expectedVal, err)
		return
	}
	for _, v := range values {
		if v == expectedVal {
			return
		}
	}
	t.Errorf("Expected key %d to map to value %d, got %v", key, expectedVal, values)
}
