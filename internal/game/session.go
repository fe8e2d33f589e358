package game

import (
	"sync"
	"time"

	"github.com/google/uuid"
)

// Status is the lifecycle state of a session.
type Status int

// Session states. Only Active is non-terminal.
const (
	StatusActive Status = iota
	StatusWon
	StatusExpired
	StatusCancelled
)

func (s Status) String() string {
	switch s {
	case StatusActive:
		return "active"
	case StatusWon:
		return "won"
	case StatusExpired:
		return "expired"
	case StatusCancelled:
		return "cancelled"
	default:
		return "unknown"
	}
}

// Session is the state shared by every timed game session. All state
// transitions go through Finish, which is the single check-and-set point.
type Session struct {
	ID        uuid.UUID
	ChatID    int64
	Kind      Kind
	StartedAt time.Time
	Deadline  time.Time

	mu           sync.Mutex
	status       Status
	timer        *time.Timer
	participants map[int64]int
}

// NewSession creates an active session that ends at startedAt+ttl.
func NewSession(chatID int64, kind Kind, startedAt time.Time, ttl time.Duration) *Session {
	return &Session{
		ID:           uuid.New(),
		ChatID:       chatID,
		Kind:         kind,
		StartedAt:    startedAt,
		Deadline:     startedAt.Add(ttl),
		status:       StatusActive,
		participants: make(map[int64]int),
	}
}

// Base returns the session itself. Game-specific session types embed
// *Session and satisfy Sessioner through it.
func (s *Session) Base() *Session {
	return s
}

// Status returns the current state.
func (s *Session) Status() Status {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.status
}

// Active reports whether the session still accepts moves.
func (s *Session) Active() bool {
	return s.Status() == StatusActive
}

// Finish moves an active session into the terminal state to and stops its
// timer. It returns false when the session had already left Active, in
// which case nothing changes.
func (s *Session) Finish(to Status) bool {
	if to == StatusActive {
		return false
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.status != StatusActive {
		return false
	}
	s.status = to
	if s.timer != nil {
		s.timer.Stop()
		s.timer = nil
	}
	return true
}

// Arm schedules fn after d. The timer is stopped by the winning Finish.
// Arming a finished session does nothing.
func (s *Session) Arm(d time.Duration, fn func()) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.status != StatusActive {
		return
	}
	if s.timer != nil {
		s.timer.Stop()
	}
	s.timer = time.AfterFunc(d, fn)
}

// RecordAttempt counts one move by userID and returns the user's total.
// It returns false when the session is no longer active.
func (s *Session) RecordAttempt(userID int64) (int, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.status != StatusActive {
		return 0, false
	}
	s.participants[userID]++
	return s.participants[userID], true
}

// Participants returns a copy of the per-user attempt counters.
func (s *Session) Participants() map[int64]int {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make(map[int64]int, len(s.participants))
	for id, n := range s.participants {
		out[id] = n
	}
	return out
}

// TotalAttempts sums the attempts of all participants.
func (s *Session) TotalAttempts() int {
	s.mu.Lock()
	defer s.mu.Unlock()

	total := 0
	for _, n := range s.participants {
		total += n
	}
	return total
}

// Remaining returns the time left until the deadline, never negative.
func (s *Session) Remaining(now time.Time) time.Duration {
	return max(s.Deadline.Sub(now), 0)
}
