package registration

import (
	"errors"
	"time"

	"github.com/google/uuid"
)

// Status mirrors the fixed small-int mapping the store persists:
// Pending=0, Confirmed=1, Waitlisted=2, Cancelled=3, Attended=4, NoShow=5.
type Status int

const (
	StatusPending Status = iota
	StatusConfirmed
	StatusWaitlisted
	StatusCancelled
	StatusAttended
	StatusNoShow
)

func (s Status) String() string {
	switch s {
	case StatusPending:
		return "pending"
	case StatusConfirmed:
		return "confirmed"
	case StatusWaitlisted:
		return "waitlisted"
	case StatusCancelled:
		return "cancelled"
	case StatusAttended:
		return "attended"
	case StatusNoShow:
		return "no_show"
	default:
		return "unknown"
	}
}

func (s Status) MarshalJSON() ([]byte, error) {
	return []byte(`"` + s.String() + `"`), nil
}

type Registration struct {
	ID              string    `json:"id"`
	EventID         string    `json:"eventId"`
	UserID          string    `json:"userId"`
	Status          Status    `json:"status"`
	PositionInQueue *int      `json:"positionInQueue,omitempty"`
	Notes           string    `json:"notes,omitempty"`
	RegisteredAt    time.Time `json:"registeredAt"`
	UpdatedAt       time.Time `json:"updatedAt"`
}

var (
	ErrAlreadyRegistered = errors.New("registration already exists")
	ErrEventFull         = errors.New("event is full")
	ErrNotFound          = errors.New("registration not found")
	ErrNotAuthorized     = errors.New("not authorized to act on this registration")
	ErrInvalidState      = errors.New("registration is not in a state that allows this transition")
	ErrDuplicateRequest  = errors.New("duplicate request")
)

// CreateRegistrationRequest is the command input to Register.
type CreateRegistrationRequest struct {
	EventID string `json:"-"`
	UserID  string `json:"-"`
	Notes   string `json:"notes,omitempty" binding:"max=2000"`
	IdemKey string `json:"-"`
}

// New builds a Registration. Status/PositionInQueue are assigned by the
// store under the per-event advisory lock (see internal/repo/postgres),
// never here - a bare domain constructor cannot know current occupancy.
func New(req CreateRegistrationRequest, status Status, position *int) Registration {
	now := time.Now().UTC()
	return Registration{
		ID:              uuid.NewString(),
		EventID:         req.EventID,
		UserID:          req.UserID,
		Status:          status,
		PositionInQueue: position,
		Notes:           req.Notes,
		RegisteredAt:    now,
		UpdatedAt:       now,
	}
}

// IsTerminal reports whether no further state transition is possible
// through the normal Register/Cancel/Confirm lifecycle.
func (r Registration) IsTerminal() bool {
	return r.Status == StatusCancelled || r.Status == StatusAttended || r.Status == StatusNoShow
}
