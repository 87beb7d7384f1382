package event

import (
	"time"

	"github.com/google/uuid"
)



func NewFromCreateRequest(req CreateEventRequest) Event {
	now := time.Now().UTC()

	return Event{
		ID:             uuid.NewString(),
		Title:          req.Title,
		Description:    req.Description,
		City:           req.City,
		Location:       req.Location,
		Timezone:       req.Timezone,
		StartAt:        req.StartAt,
		EndAt:          req.EndAt,
		Capacity:       req.Capacity,
		OrganizerID:    req.OrganizerID,
		IsPublished:    false,
		IsWaitlistOpen: true,
		CreatedAt:      now,
		UpdatedAt:      now,
	}
}