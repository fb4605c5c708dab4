package queue

import "cmp"

// Compare orders patients by urgency: priority ascending, then age
// descending, then id ascending. A negative result means a is served first.
// Records with distinct ids never compare equal.
func Compare(a, b Patient) int {
	if c := cmp.Compare(a.Priority, b.Priority); c != 0 {
		return c
	}
	if c := cmp.Compare(b.Age, a.Age); c != 0 {
		return c
	}
	return cmp.Compare(a.ID, b.ID)
}

// Less reports whether a is more urgent than b.
func Less(a, b Patient) bool {
	return Compare(a, b) < 0
}
