// Package list implements a generic doubly-linked list, used internally
// by the LRU replacer to track frames in O(1).
package list

// List is a doubly-linked list over values of type T.
type List[T any] struct {
	head *Link[T]
	tail *Link[T]
}

// Create a new list.
func NewList[T any]() *List[T] {
	nlist := List[T]{nil, nil}
	return &nlist
}

// Get a pointer to the head of the list.
func (list *List[T]) PeekHead() *Link[T] {
	return list.head
}

// Get a pointer to the tail of the list.
func (list *List[T]) PeekTail() *Link[T] {
	return list.tail
}

// Add an element to the start of the list. Returns the added link.
func (list *List[T]) PushHead(value T) *Link[T] {
	newlink := &Link[T]{list, nil, list.head, value}
	if list.head != nil {
		list.head.prev = newlink
	}
	list.head = newlink
	if list.tail == nil {
		list.tail = newlink
	}
	return newlink
}

// Add an element to the end of the list. Returns the added link.
func (list *List[T]) PushTail(value T) *Link[T] {
	newlink := &Link[T]{list, list.tail, nil, value}
	if list.tail != nil {
		list.tail.next = newlink
	}
	list.tail = newlink
	if list.head == nil {
		list.head = newlink
	}
	return newlink
}

// Find an element in a list given a boolean function, f, that evaluates to true on the desired element.
func (list *List[T]) Find(f func(*Link[T]) bool) *Link[T] {
	cur := list.head
	for cur != nil {
		if f(cur) {
			return cur
		}
		cur = cur.next
	}
	return nil
}

// Apply a function to every element in the list.
// Note: Map may be used to mutate the links in the list,
// so it snapshots the traversal order before calling f.
func (list *List[T]) Map(f func(*Link[T])) {
	cur := list.head
	for cur != nil {
		next := cur.next
		f(cur)
		cur = next
	}
}

// Link is a single node of a List.
type Link[T any] struct {
	list  *List[T]
	prev  *Link[T]
	next  *Link[T]
	value T
}

// Get the list that this link is a part of.
func (link *Link[T]) GetList() *List[T] {
	return link.list
}

// Get the link's value.
func (link *Link[T]) GetValue() T {
	return link.value
}

// Set the link's value.
func (link *Link[T]) SetValue(value T) {
	link.value = value
}

// Get the link's prev.
func (link *Link[T]) GetPrev() *Link[T] {
	return link.prev
}

// Get the link's next.
func (link *Link[T]) GetNext() *Link[T] {
	return link.next
}

// Remove the link that calls PopSelf() from its list.
/*
Cases to consider:
- If PopSelf() is called by the only link in a list
- If PopSelf() is called by the tail link in a list
- If PopSelf() is called by the head link in a list
- If PopSelf() is called by a link in the middle of a list
*/
func (link *Link[T]) PopSelf() {
	if link.prev == nil && link.next == nil {
		link.list.head = nil
		link.list.tail = nil
		link.list = nil
	} else if link.prev == nil {
		link.next.prev = nil
		link.list.head = link.next
		link.list = nil
		link.next = nil
	} else if link.next == nil {
		link.prev.next = nil
		link.list.tail = link.prev
		link.list = nil
		link.prev = nil
	} else {
		prevlink := link.prev
		prevlink.next = link.next
		link.prev.next = link.next
		link.next.prev = prevlink
		link.list = nil
		link.next = nil
		link.prev = nil
	}
}
