// Package rid defines the record identifier value type used as the
// value half of a (GenericKey[N], RID) hash table instantiation.
package rid

import "fmt"

// RID identifies a tuple's slot within a table's heap page.
// It is the classic (page id, slot id) pair: opaque to the hash index,
// which only ever copies it into and out of bucket slots.
type RID struct {
	PageID int32
	SlotID int32
}

// New constructs an RID from a page id and slot id.
func New(pageID int32, slotID int32) RID {
	return RID{PageID: pageID, SlotID: slotID}
}

// String returns a human-readable representation of the RID.
func (r RID) String() string {
	return fmt.Sprintf("(%d, %d)", r.PageID, r.SlotID)
}
