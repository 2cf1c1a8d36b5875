package hash_test

import (
	"math/rand"
	"testing"

	"xhash/pkg/buffer"
	"xhash/pkg/hash"
	"xhash/pkg/storage/page"
	"xhash/test/utils"
)

// Mod vals by this value to prevent hardcoding tests.
var hashSalt = utils.Salt

// setupHash creates a buffer pool backed by a fresh temp file and an
// empty ExtendibleHashTable over it.
func setupHash(t *testing.T) (*buffer.BufferPool, *hash.ExtendibleHashTable[int32, int32]) {
	t.Parallel()
	dbName := utils.GetTempDbFile(t)
	pool, err := buffer.New(dbName)
	if err != nil {
		t.Fatal("Failed to create buffer pool:", err)
	}
	table, err := hash.New[int32, int32](t.Name(), pool, hash.Int32Codec{}, hash.Int32Codec{}, hash.IntComparator, hash.Int32Hasher)
	if err != nil {
		t.Fatal("Failed to create hash table:", err)
	}
	return pool, table
}

// closeAndReopen closes pool, then reopens the same backing file,
// which should trigger writing/reading its data from disk.
func closeAndReopen(t *testing.T, pool *buffer.BufferPool, table *hash.ExtendibleHashTable[int32, int32]) (*buffer.BufferPool, *hash.ExtendibleHashTable[int32, int32]) {
	fileName := pool.GetFileName()
	if err := pool.Close(); err != nil {
		t.Fatal("Failed to close buffer pool:", err)
	}
	reopenedPool, err := buffer.New(fileName)
	if err != nil {
		t.Fatal("Failed to reopen buffer pool:", err)
	}
	reopenedTable, err := hash.New[int32, int32](t.Name(), reopenedPool, hash.Int32Codec{}, hash.Int32Codec{}, hash.IntComparator, hash.Int32Hasher)
	if err != nil {
		t.Fatal("Failed to reopen hash table:", err)
	}
	return reopenedPool, reopenedTable
}

// keysHashingTo searches sequential int32 keys (skipping those in
// exclude) for count keys whose Int32Hasher output shares the low
// depth bits of target, so a split can be engineered without needing a
// custom small bucket capacity: any number of colliding keys can be
// manufactured by scanning for them.
func keysHashingTo(target uint32, depth uint32, count int, exclude map[int32]bool) []int32 {
	mask := uint32(1)<<depth - 1
	keys := make([]int32, 0, count)
	for k := int32(0); len(keys) < count; k++ {
		if exclude[k] {
			continue
		}
		if hash.Int32Hasher(k)&mask == target {
			keys = append(keys, k)
		}
	}
	return keys
}

func TestHashInsert(t *testing.T) {
	t.Run("Empty", testHashEmpty)
	t.Run("FillWithoutSplit", testFillWithoutSplit)
	t.Run("TriggerSplit", testTriggerSplit)
	t.Run("RepeatedSplits", testRepeatedSplits)
	t.Run("DuplicateRejection", testDuplicateRejection)
	t.Run("Ascending", testInsertAscending)
	t.Run("Random", testInsertRandom)
}

// A fresh table has global depth 0 and answers every query/removal in
// the negative.
func testHashEmpty(t *testing.T) {
	pool, table := setupHash(t)
	defer pool.Close()

	depth, err := table.GetGlobalDepth()
	if err != nil || depth != 0 {
		t.Fatalf("expected global depth 0 on a fresh table, got %d (err %v)", depth, err)
	}
	values, err := table.GetValue(utils.Tx(), 42)
	if err != nil {
		t.Fatal(err)
	}
	if len(values) != 0 {
		t.Fatalf("expected no values for key 42, got %v", values)
	}
	ok, err := table.Remove(utils.Tx(), 42, 100)
	if err != nil {
		t.Fatal(err)
	}
	if ok {
		t.Fatal("Remove on an empty table unexpectedly returned true")
	}
}

// A handful of inserts at global depth 0 all land in the same bucket
// and are all findable.
func testFillWithoutSplit(t *testing.T) {
	pool, table := setupHash(t)
	defer pool.Close()

	for i := int32(1); i <= 4; i++ {
		utils.InsertEntry(t, table, i, i*10)
	}
	depth, err := table.GetGlobalDepth()
	if err != nil {
		t.Fatal(err)
	}
	if depth != 0 {
		t.Fatalf("expected global depth to remain 0, got %d", depth)
	}
	for i := int32(1); i <= 4; i++ {
		utils.CheckFindEntry(t, table, i, i*10)
	}
	if err := table.VerifyIntegrity(); err != nil {
		t.Fatal(err)
	}
}

// Filling the lone bucket past capacity forces a split; the union of
// contents survives and global depth grows to 1.
func testTriggerSplit(t *testing.T) {
	pool, table := setupHash(t)
	defer pool.Close()

	capacity := page.ComputeBucketCapacity(4, 4)
	toFind := make(map[int32]int32)
	for i := int32(0); i <= capacity; i++ {
		val := i * hashSalt
		utils.InsertEntry(t, table, i, val)
		toFind[i] = val
	}
	depth, err := table.GetGlobalDepth()
	if err != nil {
		t.Fatal(err)
	}
	if depth < 1 {
		t.Fatalf("expected global depth to grow past 0 after overflowing one bucket, got %d", depth)
	}
	for k, v := range toFind {
		utils.CheckFindEntry(t, table, k, v)
	}
	if err := table.VerifyIntegrity(); err != nil {
		t.Fatal(err)
	}
}

// Repeated, engineered collisions at a fixed directory slot drive
// global depth up through several splits.
func testRepeatedSplits(t *testing.T) {
	pool, table := setupHash(t)
	defer pool.Close()

	const targetDepth = uint32(4)
	seen := make(map[int32]bool)
	toFind := make(map[int32]int32)

	for {
		depth, err := table.GetGlobalDepth()
		if err != nil {
			t.Fatal(err)
		}
		if depth >= targetDepth {
			break
		}
		// Slot 0 at the current depth always exists; keep colliding
		// keys into it until the table is forced to split further.
		keys := keysHashingTo(0, depth, 1, seen)
		key := keys[0]
		seen[key] = true
		val := key % hashSalt
		utils.InsertEntry(t, table, key, val)
		toFind[key] = val
	}

	for k, v := range toFind {
		utils.CheckFindEntry(t, table, k, v)
	}
	if err := table.VerifyIntegrity(); err != nil {
		t.Fatal(err)
	}
}

// A duplicate (key, value) pair is rejected, a second value for the
// same key is accepted, and both are visible.
func testDuplicateRejection(t *testing.T) {
	pool, table := setupHash(t)
	defer pool.Close()

	ok, err := table.Insert(utils.Tx(), 7, 70)
	if err != nil || !ok {
		t.Fatalf("first Insert(7, 70) = %v, %v; want true, nil", ok, err)
	}
	ok, err = table.Insert(utils.Tx(), 7, 70)
	if err != nil || ok {
		t.Fatalf("duplicate Insert(7, 70) = %v, %v; want false, nil", ok, err)
	}
	ok, err = table.Insert(utils.Tx(), 7, 71)
	if err != nil || !ok {
		t.Fatalf("Insert(7, 71) = %v, %v; want true, nil", ok, err)
	}
	values, err := table.GetValue(utils.Tx(), 7)
	if err != nil {
		t.Fatal(err)
	}
	want := map[int32]bool{70: true, 71: true}
	if len(values) != 2 || !want[values[0]] || !want[values[1]] {
		t.Fatalf("GetValue(7) = %v, want {70, 71} in some order", values)
	}
}

type insertTestData struct {
	numInserts  int32
	writeToDisk bool
}

func stageInsertAscending(testData insertTestData) func(t *testing.T) {
	return func(t *testing.T) {
		pool, table := setupHash(t)
		secondSalt := rand.Int31n(1000)

		for i := int32(0); i < testData.numInserts; i++ {
			utils.InsertEntry(t, table, i, (i*secondSalt)%hashSalt)
		}
		if t.Failed() {
			t.FailNow()
		}
		if testData.writeToDisk {
			pool, table = closeAndReopen(t, pool, table)
		}
		defer pool.Close()

		for i := int32(0); i < testData.numInserts; i++ {
			utils.CheckFindEntry(t, table, i, (i*secondSalt)%hashSalt)
		}
		if err := table.VerifyIntegrity(); err != nil {
			t.Fatal(err)
		}
	}
}

func testInsertAscending(t *testing.T) {
	tests := map[string]insertTestData{
		"TenNoWrite":        {10, false},
		"TenWithWrite":      {10, true},
		"ThousandNoWrite":   {1000, false},
		"ThousandWithWrite": {1000, true},
	}
	for name, testData := range tests {
		t.Run(name, stageInsertAscending(testData))
	}
}

func stageInsertRandom(testData insertTestData) func(t *testing.T) {
	return func(t *testing.T) {
		pool, table := setupHash(t)
		entries, answerKey := utils.GenerateRandomKeyValuePairs(testData.numInserts)
		for _, entry := range entries {
			utils.InsertEntry(t, table, entry.Key, entry.Val)
		}
		if t.Failed() {
			t.FailNow()
		}
		if testData.writeToDisk {
			pool, table = closeAndReopen(t, pool, table)
		}
		defer pool.Close()

		for k, v := range answerKey {
			utils.CheckFindEntry(t, table, k, v)
		}
		if err := table.VerifyIntegrity(); err != nil {
			t.Fatal(err)
		}
	}
}

func testInsertRandom(t *testing.T) {
	tests := map[string]insertTestData{
		"ThousandNoWrite":   {1000, false},
		"ThousandWithWrite": {1000, true},
	}
	for name, testData := range tests {
		t.Run(name, stageInsertRandom(testData))
	}
}
