package queue

import "context"

// Change types.
const (
	ChangeAdmitted      = "patient.admitted"
	ChangeServed        = "patient.served"
	ChangeSorted        = "queue.sorted"
	ChangeCleared       = "queue.cleared"
	ChangeServedRemoved = "served.removed"
)

// Change describes one change to the waiting list that has reached the
// store.
type Change struct {
	Type    string    `json:"type"`
	Patient *Patient  `json:"patient,omitempty"`
	Cleared int64     `json:"cleared,omitempty"`
	Queue   []Patient `json:"queue"` // serving order after the change
}

// Publisher is told about every Change. It is called with the service lock
// held and must not block.
type Publisher interface {
	Publish(ctx context.Context, ch Change) error
}

// SetPublisher installs p. A nil p disables publishing.
func (s *Service) SetPublisher(p Publisher) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.pub = p
}

func (s *Service) publish(ctx context.Context, ch Change) {
	if s.pub == nil {
		return
	}
	if ch.Queue == nil {
		ch.Queue = nonNil(s.list.Sorted())
	}
	if err := s.pub.Publish(ctx, ch); err != nil {
		s.log.Warn().Err(err).Str("change", ch.Type).Msg("publish change")
	}
}
