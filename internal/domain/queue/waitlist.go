package queue

import (
	"errors"
	"fmt"
	"slices"
)

// ErrDuplicateID is returned by Restore when the id is already resident.
var ErrDuplicateID = errors.New("patient id already in waiting list")

// WaitingList holds the patients currently waiting and assigns ids to new
// admissions. It is not safe for concurrent use; Service serializes access.
type WaitingList struct {
	patients []Patient
	ids      map[int]struct{}
	nextID   int
}

func NewWaitingList() *WaitingList {
	return &WaitingList{
		ids:    make(map[int]struct{}),
		nextID: 1,
	}
}

// Admit appends a new patient under the next id.
func (w *WaitingList) Admit(name string, age int, priority Priority) Patient {
	p := Patient{ID: w.nextID, Name: name, Age: age, Priority: priority}
	w.nextID++
	w.push(p)
	return p
}

// Restore inserts a patient that already carries a persisted id and moves the
// counter past it.
func (w *WaitingList) Restore(p Patient) error {
	if _, ok := w.ids[p.ID]; ok {
		return fmt.Errorf("restore patient %d: %w", p.ID, ErrDuplicateID)
	}
	w.push(p)
	w.Observe(p.ID)
	return nil
}

// Load restores every record in ps, stopping at the first duplicate.
func (w *WaitingList) Load(ps []Patient) error {
	for _, p := range ps {
		if err := w.Restore(p); err != nil {
			return err
		}
	}
	return nil
}

// Observe advances the counter past id without inserting anything.
func (w *WaitingList) Observe(id int) {
	if id >= w.nextID {
		w.nextID = id + 1
	}
}

// ServeNext removes and returns the most urgent patient. On an empty list it
// returns a patient with NoPatientID and false.
func (w *WaitingList) ServeNext() (Patient, bool) {
	i := w.best()
	if i < 0 {
		return Patient{ID: NoPatientID}, false
	}
	return w.removeAt(i), true
}

// Peek returns the patient ServeNext would return, without removing it.
func (w *WaitingList) Peek() (Patient, bool) {
	i := w.best()
	if i < 0 {
		return Patient{ID: NoPatientID}, false
	}
	return w.patients[i], true
}

// Remove takes the patient with the given id out of the list.
func (w *WaitingList) Remove(id int) (Patient, bool) {
	if _, ok := w.ids[id]; !ok {
		return Patient{ID: NoPatientID}, false
	}
	i := slices.IndexFunc(w.patients, func(p Patient) bool { return p.ID == id })
	return w.removeAt(i), true
}

// SortInPlace reorders the resident patients into serving order.
func (w *WaitingList) SortInPlace() {
	slices.SortFunc(w.patients, Compare)
}

// Clear drops every resident patient. The id counter keeps its value.
func (w *WaitingList) Clear() {
	w.patients = nil
	clear(w.ids)
}

func (w *WaitingList) IsEmpty() bool { return len(w.patients) == 0 }
func (w *WaitingList) Size() int     { return len(w.patients) }
func (w *WaitingList) NextID() int   { return w.nextID }

// Patients returns a copy of the resident patients in storage order.
func (w *WaitingList) Patients() []Patient {
	return slices.Clone(w.patients)
}

// Sorted returns the resident patients in serving order without reordering
// the list itself.
func (w *WaitingList) Sorted() []Patient {
	out := slices.Clone(w.patients)
	slices.SortFunc(out, Compare)
	return out
}

func (w *WaitingList) push(p Patient) {
	w.patients = append(w.patients, p)
	w.ids[p.ID] = struct{}{}
}

// best is a linear scan keeping the index of the most urgent patient so far.
func (w *WaitingList) best() int {
	if len(w.patients) == 0 {
		return -1
	}
	bi := 0
	for i := 1; i < len(w.patients); i++ {
		if Less(w.patients[i], w.patients[bi]) {
			bi = i
		}
	}
	return bi
}

func (w *WaitingList) removeAt(i int) Patient {
	p := w.patients[i]
	w.patients = slices.Delete(w.patients, i, i+1)
	delete(w.ids, p.ID)
	return p
}
