package queue

import (
	"errors"
	"math/rand"
	"slices"
	"testing"
)

func TestWaitingList_Admit_AssignsSequentialIDs(t *testing.T) {
	w := NewWaitingList()
	a := w.Admit("A", 40, PriorityMedium)
	b := w.Admit("B", 70, PriorityHigh)

	if a.ID != 1 || b.ID != 2 {
		t.Errorf("expected ids 1 and 2, got %d and %d", a.ID, b.ID)
	}
	if w.NextID() != 3 {
		t.Errorf("expected next id 3, got %d", w.NextID())
	}
	if w.Size() != 2 {
		t.Errorf("expected size 2, got %d", w.Size())
	}
	if !slices.Equal(w.Patients(), []Patient{a, b}) {
		t.Errorf("expected admission order, got %+v", w.Patients())
	}
}

func TestWaitingList_ServeNext_Scenario(t *testing.T) {
	w := NewWaitingList()
	a := w.Admit("A", 40, PriorityMedium)
	b := w.Admit("B", 70, PriorityHigh)
	c := w.Admit("C", 70, PriorityMedium)

	for _, want := range []Patient{b, c, a} {
		got, ok := w.ServeNext()
		if !ok || got != want {
			t.Fatalf("expected %+v, got %+v (ok=%v)", want, got, ok)
		}
	}

	got, ok := w.ServeNext()
	if ok || got.ID != NoPatientID {
		t.Errorf("expected empty result, got %+v (ok=%v)", got, ok)
	}
}

func TestWaitingList_ServeNext_EqualPriorityAndAgeFollowsID(t *testing.T) {
	w := NewWaitingList()
	for _, name := range []string{"first", "second", "third"} {
		w.Admit(name, 55, PriorityLow)
	}

	for _, want := range []int{1, 2, 3} {
		got, ok := w.ServeNext()
		if !ok || got.ID != want {
			t.Fatalf("expected id %d, got %d (ok=%v)", want, got.ID, ok)
		}
	}
}

func TestWaitingList_ServeNext_EmptyIsIdempotent(t *testing.T) {
	w := NewWaitingList()
	for i := 0; i < 3; i++ {
		got, ok := w.ServeNext()
		if ok || got.ID != NoPatientID {
			t.Errorf("call %d: expected empty result, got %+v", i, got)
		}
		if w.Size() != 0 || !w.IsEmpty() {
			t.Errorf("call %d: expected empty list", i)
		}
	}
	if w.NextID() != 1 {
		t.Errorf("expected next id untouched, got %d", w.NextID())
	}
}

func TestWaitingList_Restore_AdvancesCounter(t *testing.T) {
	w := NewWaitingList()
	if err := w.Restore(Patient{ID: 5, Name: "R", Age: 30, Priority: PriorityLow}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if p := w.Admit("New", 30, PriorityLow); p.ID != 6 {
		t.Errorf("expected id 6, got %d", p.ID)
	}
}

func TestWaitingList_Restore_LowerIDKeepsCounter(t *testing.T) {
	w := NewWaitingList()
	w.Admit("A", 30, PriorityLow)
	w.Admit("B", 30, PriorityLow)
	w.Admit("C", 30, PriorityLow)
	w.ServeNext()

	if err := w.Restore(Patient{ID: 1, Name: "A", Age: 30, Priority: PriorityLow}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if w.NextID() != 4 {
		t.Errorf("expected next id 4, got %d", w.NextID())
	}
}

func TestWaitingList_Restore_RejectsDuplicate(t *testing.T) {
	w := NewWaitingList()
	if err := w.Restore(Patient{ID: 7, Name: "X", Age: 20, Priority: PriorityHigh}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	err := w.Restore(Patient{ID: 7, Name: "Y", Age: 80, Priority: PriorityLow})
	if !errors.Is(err, ErrDuplicateID) {
		t.Errorf("expected ErrDuplicateID, got %v", err)
	}
	if w.Size() != 1 || w.Patients()[0].Name != "X" {
		t.Errorf("duplicate must leave the list unchanged, got %+v", w.Patients())
	}
}

func TestWaitingList_Load_StopsAtDuplicate(t *testing.T) {
	w := NewWaitingList()
	err := w.Load([]Patient{
		{ID: 3, Name: "a", Age: 1, Priority: PriorityHigh},
		{ID: 9, Name: "b", Age: 1, Priority: PriorityHigh},
		{ID: 3, Name: "c", Age: 1, Priority: PriorityHigh},
	})
	if !errors.Is(err, ErrDuplicateID) {
		t.Errorf("expected ErrDuplicateID, got %v", err)
	}
	if w.Size() != 2 || w.NextID() != 10 {
		t.Errorf("expected 2 loaded and next id 10, got %d and %d", w.Size(), w.NextID())
	}
}

func TestWaitingList_Observe(t *testing.T) {
	w := NewWaitingList()
	w.Observe(41)
	if w.NextID() != 42 {
		t.Errorf("expected next id 42, got %d", w.NextID())
	}
	w.Observe(10)
	if w.NextID() != 42 {
		t.Errorf("a lower id must not lower the counter, got %d", w.NextID())
	}
	if !w.IsEmpty() {
		t.Error("observe must not admit anyone")
	}
}

func TestWaitingList_Clear_PreservesCounter(t *testing.T) {
	w := NewWaitingList()
	seen := map[int]bool{}
	for i := 0; i < 4; i++ {
		seen[w.Admit("p", 30+i, PriorityMedium).ID] = true
	}

	w.Clear()
	if !w.IsEmpty() {
		t.Fatal("expected empty list after clear")
	}

	p := w.Admit("after", 30, PriorityMedium)
	if seen[p.ID] || p.ID != 5 {
		t.Errorf("expected fresh id 5 after clear, got %d", p.ID)
	}

	// a cleared id can be restored again
	if err := w.Restore(Patient{ID: 2, Name: "back", Age: 30, Priority: PriorityMedium}); err != nil {
		t.Errorf("unexpected error: %v", err)
	}
}

func TestWaitingList_Remove(t *testing.T) {
	w := NewWaitingList()
	a := w.Admit("A", 30, PriorityLow)
	b := w.Admit("B", 30, PriorityLow)

	got, ok := w.Remove(a.ID)
	if !ok || got != a {
		t.Fatalf("expected A removed, got %+v (ok=%v)", got, ok)
	}
	if !slices.Equal(w.Patients(), []Patient{b}) {
		t.Errorf("expected only B left, got %+v", w.Patients())
	}

	if _, ok := w.Remove(a.ID); ok {
		t.Error("second remove should report absent")
	}
}

func TestWaitingList_Peek(t *testing.T) {
	w := NewWaitingList()
	if _, ok := w.Peek(); ok {
		t.Error("expected nothing to peek on an empty list")
	}

	w.Admit("low", 90, PriorityLow)
	high := w.Admit("high", 20, PriorityHigh)

	got, ok := w.Peek()
	if !ok || got != high {
		t.Errorf("expected high next, got %+v (ok=%v)", got, ok)
	}
	if w.Size() != 2 {
		t.Errorf("peek must not remove, size %d", w.Size())
	}
}

func TestWaitingList_Sorted_DoesNotReorder(t *testing.T) {
	w := NewWaitingList()
	a := w.Admit("A", 40, PriorityMedium)
	b := w.Admit("B", 70, PriorityHigh)

	if !slices.Equal(w.Sorted(), []Patient{b, a}) {
		t.Errorf("expected B, A sorted, got %+v", w.Sorted())
	}
	if !slices.Equal(w.Patients(), []Patient{a, b}) {
		t.Errorf("sorted snapshot changed storage order: %+v", w.Patients())
	}

	w.SortInPlace()
	if !slices.Equal(w.Patients(), []Patient{b, a}) {
		t.Errorf("expected B, A after SortInPlace, got %+v", w.Patients())
	}
}

func randomList(r *rand.Rand, n int) *WaitingList {
	w := NewWaitingList()
	for i := 0; i < n; i++ {
		// narrow ranges force priority and age ties
		age := 1 + r.Intn(4)*50
		prio := Priority(1 + r.Intn(3))
		if r.Intn(4) == 0 {
			w.Observe(w.NextID() + r.Intn(5))
			_ = w.Restore(Patient{ID: w.NextID(), Name: "restored", Age: age, Priority: prio})
			continue
		}
		w.Admit("admitted", age, prio)
	}
	return w
}

// The head of a sorted copy is what ServeNext picks, and sorting then walking
// front to back matches repeated ServeNext calls.
func TestWaitingList_SortMatchesServeNext(t *testing.T) {
	r := rand.New(rand.NewSource(20261019))
	for round := 0; round < 200; round++ {
		w := randomList(r, 1+r.Intn(25))
		sorted := w.Sorted()

		if peek, ok := w.Peek(); !ok || peek != sorted[0] {
			t.Fatalf("round %d: peek %+v does not match sorted head %+v", round, peek, sorted[0])
		}

		var served []Patient
		for !w.IsEmpty() {
			p, ok := w.ServeNext()
			if !ok {
				t.Fatalf("round %d: non-empty list served nothing", round)
			}
			served = append(served, p)
		}
		if !slices.Equal(sorted, served) {
			t.Errorf("round %d: serve order %+v differs from sorted %+v", round, served, sorted)
		}
	}
}

func TestWaitingList_IDMonotonic(t *testing.T) {
	r := rand.New(rand.NewSource(7))
	w := NewWaitingList()
	maxSeen := 0
	for i := 0; i < 500; i++ {
		switch r.Intn(5) {
		case 0:
			id := 1 + r.Intn(1000)
			if err := w.Restore(Patient{ID: id, Name: "r", Age: 30, Priority: PriorityLow}); err == nil && id > maxSeen {
				maxSeen = id
			}
		case 1:
			w.ServeNext()
		case 2:
			if r.Intn(10) == 0 {
				w.Clear()
			}
		default:
			p := w.Admit("a", 30, PriorityLow)
			if p.ID <= maxSeen {
				t.Fatalf("step %d: id %d not above %d", i, p.ID, maxSeen)
			}
			maxSeen = p.ID
		}
		if w.NextID() <= maxSeen {
			t.Fatalf("step %d: next id %d not above %d", i, w.NextID(), maxSeen)
		}
	}
}
