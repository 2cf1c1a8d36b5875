package hash_test

import (
	"testing"

	"xhash/pkg/buffer"
	"xhash/pkg/hash"
	"xhash/pkg/rid"
	"xhash/test/utils"
)

// Exercises the (GenericKey[N], RID) instantiation named alongside
// (int32, int32) as a required template instantiation: a fixed-width
// byte-buffer key compared by content, paired with a page/slot value.
func TestGenericKeyRIDTable(t *testing.T) {
	pool, err := buffer.New(utils.GetTempDbFile(t))
	if err != nil {
		t.Fatal(err)
	}
	defer pool.Close()

	const width = int32(16)
	table, err := hash.New[hash.GenericKey, rid.RID](
		t.Name(), pool,
		hash.GenericKeyCodec{Width: width}, hash.RIDCodec{},
		hash.GenericKeyComparator, hash.GenericKeyHasher,
	)
	if err != nil {
		t.Fatal(err)
	}

	keyFor := func(s string) hash.GenericKey {
		return hash.NewGenericKey([]byte(s), width)
	}

	entries := []struct {
		key hash.GenericKey
		val rid.RID
	}{
		{keyFor("alice"), rid.RID{PageID: 1, SlotID: 0}},
		{keyFor("bob"), rid.RID{PageID: 1, SlotID: 1}},
		{keyFor("carol"), rid.RID{PageID: 2, SlotID: 0}},
	}

	for _, e := range entries {
		ok, err := table.Insert(utils.Tx(), e.key, e.val)
		if err != nil {
			t.Fatal(err)
		}
		if !ok {
			t.Fatalf("Insert(%v, %v) unexpectedly returned false", e.key, e.val)
		}
	}

	for _, e := range entries {
		values, err := table.GetValue(utils.Tx(), e.key)
		if err != nil {
			t.Fatal(err)
		}
		found := false
		for _, v := range values {
			if v == e.val {
				found = true
			}
		}
		if !found {
			t.Fatalf("expected %v among %v", e.val, values)
		}
	}

	// A key of different content but equal width must not collide.
	values, err := table.GetValue(utils.Tx(), keyFor("dave"))
	if err != nil {
		t.Fatal(err)
	}
	if len(values) != 0 {
		t.Fatalf("expected no entries for an unseen key, got %v", values)
	}

	ok, err := table.Remove(utils.Tx(), keyFor("bob"), rid.RID{PageID: 1, SlotID: 1})
	if err != nil {
		t.Fatal(err)
	}
	if !ok {
		t.Fatal("Remove(bob) unexpectedly returned false")
	}
	if err := table.VerifyIntegrity(); err != nil {
		t.Fatal(err)
	}
}
