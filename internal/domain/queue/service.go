package queue

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

// Service keeps a WaitingList and its PatientRepository in step. Every
// operation holds mu, so the list sees one caller at a time.
type Service struct {
	mu    sync.Mutex
	list  *WaitingList
	repo  PatientRepository
	pub   Publisher
	log   zerolog.Logger
	clock func() time.Time
}

func NewService(repo PatientRepository, logger zerolog.Logger) *Service {
	return &Service{
		list:  NewWaitingList(),
		repo:  repo,
		log:   logger.With().Str("component", "queue").Logger(),
		clock: time.Now,
	}
}

// Export is a full dump of the patients table.
type Export struct {
	Patients      []*Record `json:"patients"`
	Timestamp     time.Time `json:"timestamp"`
	TotalPatients int       `json:"total_patients"`
	QueuedCount   int       `json:"queued_count"`
	ServedCount   int       `json:"served_count"`
}

// Load restores the queued patients from the repository and moves the id
// counter past every id the repository has stored, served rows included.
func (s *Service) Load(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	queued, err := s.repo.ListQueued(ctx)
	if err != nil {
		return fmt.Errorf("load queue: %w", err)
	}
	maxID, err := s.repo.MaxID(ctx)
	if err != nil {
		return fmt.Errorf("load queue: %w", err)
	}

	list := NewWaitingList()
	if err := list.Load(queued); err != nil {
		return fmt.Errorf("load queue: %w", err)
	}
	list.Observe(maxID)
	s.list = list

	s.log.Info().Int("queue_size", list.Size()).Int("next_id", list.NextID()).Msg("queue loaded")
	return nil
}

// AdmitPatient validates the arguments, admits the patient and persists it.
// A failed insert removes the patient from the list again; the id it was
// given is not reused.
func (s *Service) AdmitPatient(ctx context.Context, name string, age int, priority Priority) (Patient, error) {
	if err := Validate(name, age, priority); err != nil {
		return Patient{}, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	p := s.list.Admit(name, age, priority)
	stored := p
	if err := s.repo.Insert(ctx, &stored); err != nil {
		s.list.Remove(p.ID)
		s.log.Error().Err(err).Int("patient_id", p.ID).Msg("admit rolled back")
		return Patient{}, fmt.Errorf("admit patient: %w", err)
	}

	if stored.ID != p.ID {
		s.list.Remove(p.ID)
		if err := s.list.Restore(stored); err != nil {
			if derr := s.repo.Delete(ctx, stored.ID); derr != nil {
				s.log.Error().Err(derr).Int("patient_id", stored.ID).Msg("delete orphaned row")
			}
			return Patient{}, fmt.Errorf("admit patient: reconcile id %d: %w", stored.ID, err)
		}
		s.log.Warn().Int("assigned_id", p.ID).Int("stored_id", stored.ID).Msg("patient id reconciled with store")
		p = stored
	}

	s.log.Info().
		Int("patient_id", p.ID).
		Stringer("priority", p.Priority).
		Int("queue_size", s.list.Size()).
		Msg("patient admitted")
	s.publish(ctx, Change{Type: ChangeAdmitted, Patient: &p})
	return p, nil
}

// ServeNext removes the most urgent patient and marks it served. ok is false
// when nobody is waiting. If the store cannot be updated the patient goes
// back into the list, unless the store no longer holds it as queued: then the
// store wins, the patient stays out and ErrNoLongerQueued is returned.
func (s *Service) ServeNext(ctx context.Context) (Patient, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	p, ok := s.list.ServeNext()
	if !ok {
		return p, false, nil
	}
	if err := s.repo.MarkServed(ctx, p.ID, s.clock().UTC()); err != nil {
		if errors.Is(err, ErrNotFound) {
			s.log.Warn().Int("patient_id", p.ID).Int("queue_size", s.list.Size()).Msg("patient no longer queued in store, dropped")
			return Patient{}, false, fmt.Errorf("serve patient %d: %w", p.ID, ErrNoLongerQueued)
		}
		if rerr := s.list.Restore(p); rerr != nil {
			s.log.Error().Err(rerr).Int("patient_id", p.ID).Msg("restore after failed serve")
		}
		s.log.Error().Err(err).Int("patient_id", p.ID).Msg("serve rolled back")
		return Patient{}, false, fmt.Errorf("serve patient %d: %w", p.ID, err)
	}

	s.log.Info().
		Int("patient_id", p.ID).
		Stringer("priority", p.Priority).
		Int("queue_size", s.list.Size()).
		Msg("patient served")
	s.publish(ctx, Change{Type: ChangeServed, Patient: &p})
	return p, true, nil
}

// Sort reorders the list into serving order and returns it.
func (s *Service) Sort(ctx context.Context) []Patient {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.list.SortInPlace()
	s.publish(ctx, Change{Type: ChangeSorted})
	return s.list.Patients()
}

// Display returns the waiting patients in their current storage order.
func (s *Service) Display() []Patient {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.list.Patients()
}

// Queue returns the waiting patients in serving order.
func (s *Service) Queue() []Patient {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.list.Sorted()
}

// Clear deletes the queued rows and then empties the list. The list is only
// touched once the store has succeeded.
func (s *Service) Clear(ctx context.Context) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	n, err := s.repo.ClearQueued(ctx)
	if err != nil {
		return 0, fmt.Errorf("clear queue: %w", err)
	}
	dropped := s.list.Size()
	s.list.Clear()
	s.log.Info().Int64("rows", n).Int("dropped", dropped).Msg("queue cleared")
	s.publish(ctx, Change{Type: ChangeCleared, Cleared: n})
	return n, nil
}

func (s *Service) RemoveServed(ctx context.Context, id int) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	found, err := s.repo.DeleteServed(ctx, id)
	if err != nil {
		return false, err
	}
	if found {
		s.log.Info().Int("patient_id", id).Msg("served patient removed")
		s.publish(ctx, Change{Type: ChangeServedRemoved, Patient: &Patient{ID: id}})
	}
	return found, nil
}

func (s *Service) Served(ctx context.Context, limit, offset int) ([]*Record, int, error) {
	return s.repo.ListServed(ctx, limit, offset)
}

func (s *Service) Export(ctx context.Context) (*Export, error) {
	rows, err := s.repo.ListAll(ctx)
	if err != nil {
		return nil, fmt.Errorf("export: %w", err)
	}
	if rows == nil {
		rows = []*Record{}
	}
	out := &Export{
		Patients:      rows,
		Timestamp:     s.clock().UTC(),
		TotalPatients: len(rows),
	}
	for _, r := range rows {
		switch r.Status {
		case StatusQueued:
			out.QueuedCount++
		case StatusServed:
			out.ServedCount++
		}
	}
	return out, nil
}

// Status reports the waiting count and the patient ServeNext would pick,
// without changing the list.
func (s *Service) Status() QueueStatus {
	s.mu.Lock()
	defer s.mu.Unlock()

	st := QueueStatus{Waiting: s.list.Size()}
	if p, ok := s.list.Peek(); ok {
		st.Next = &p
	}
	return st
}

// FindPatients looks up stored patients, queued or served, whose name
// contains name. At most MaxFindResults rows come back.
func (s *Service) FindPatients(ctx context.Context, name string) ([]*Record, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, &ValidationError{Field: "name", Reason: "name cannot be empty"}
	}
	rows, err := s.repo.FindByName(ctx, name, MaxFindResults)
	if err != nil {
		return nil, fmt.Errorf("find patients: %w", err)
	}
	if rows == nil {
		rows = []*Record{}
	}
	return rows, nil
}

func (s *Service) Size() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.list.Size()
}

func (s *Service) NextID() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.list.NextID()
}
