package handlers

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/geocoder89/eventhub/internal/config"
	"github.com/geocoder89/eventhub/internal/domain/event"
	"github.com/geocoder89/eventhub/internal/domain/registration"
	"github.com/geocoder89/eventhub/internal/http/middlewares"
	"github.com/geocoder89/eventhub/internal/utils"
	"github.com/gin-gonic/gin"
)

// RegistrationReader is the read-only slice of RegistrationRepo the
// handler queries directly; writes all flow through RegistrationService
// so every state change also drives the event dispatcher.
type RegistrationReader interface {
	ListByEventCursor(
		ctx context.Context,
		eventID string,
		limit int,
		afterRegisteredAt time.Time,
		afterID string,
	) (items []registration.Registration, nextCursor *string, hasMore bool, err error)
	ListWaitlisted(ctx context.Context, eventID string) ([]registration.Registration, error)
	CountForEvent(ctx context.Context, eventID string) (int, error)
	GetByID(ctx context.Context, eventID, registrationID string) (registration.Registration, error)
}

// RegistrationService is the command surface this handler drives; it
// is the internal/service/registration.Service interface, narrowed so
// the handler stays testable against a fake.
type RegistrationService interface {
	Register(ctx context.Context, req registration.CreateRegistrationRequest) (registration.Registration, error)
	Cancel(ctx context.Context, eventID, registrationID, requesterID string, isAdmin bool) (registration.Registration, error)
	Confirm(ctx context.Context, eventID, registrationID string) (registration.Registration, error)
	MarkAttendance(ctx context.Context, eventID, registrationID string, attended bool) (registration.Registration, error)
}

type RegistrationHandler struct {
	reader  RegistrationReader
	service RegistrationService
}

func NewRegistrationHandler(reader RegistrationReader, service RegistrationService) *RegistrationHandler {
	return &RegistrationHandler{reader: reader, service: service}
}

func (h *RegistrationHandler) Register(ctx *gin.Context) {
	eventID := ctx.Param("id")

	if !utils.IsUUID(eventID) {
		RespondBadRequest(ctx, "invalid_id", "event id must be a valid UUID")
		return
	}

	var req registration.CreateRegistrationRequest

	if !BindJSON(ctx, &req) {
		return
	}

	// force URL param as the source of truth
	req.EventID = eventID

	userID, ok := middlewares.UserIDFromContext(ctx)
	if !ok || userID == "" {
		RespondUnAuthorized(ctx, "unauthorized", "Missing identity")
		return
	}
	req.UserID = userID
	req.IdemKey = ctx.GetHeader("Idempotency-Key")

	cctx, cancel := config.WithTimeout(2 * time.Second)
	defer cancel()

	reg, err := h.service.Register(cctx, req)
	if err != nil {
		switch {
		case errors.Is(err, registration.ErrAlreadyRegistered):
			RespondConflict(ctx, "already_registered", "you are already registered for this event.")
		case errors.Is(err, registration.ErrDuplicateRequest):
			RespondConflict(ctx, "duplicate_request", "a registration request with this idempotency key is already in flight.")
		case errors.Is(err, event.ErrNotFound):
			RespondNotFound(ctx, "Event not found")
		case errors.Is(err, event.ErrNotPublished):
			RespondConflict(ctx, "event_not_published", "this event is not open for registration.")
		case errors.Is(err, event.ErrAlreadyStarted):
			RespondConflict(ctx, "event_started", "this event has already started.")
		case errors.Is(err, event.ErrWaitlistClosed):
			RespondConflict(ctx, "waitlist_closed", "this event is full and its waitlist is closed.")
		default:
			RespondInternal(ctx, "Could not register for event")
			fmt.Println(err)
		}
		return
	}

	ctx.JSON(http.StatusCreated, reg)
}

func (h *RegistrationHandler) ListForEvent(ctx *gin.Context) {
	eventID := ctx.Param("id")

	if !utils.IsUUID(eventID) {
		RespondBadRequest(ctx, "invalid_id", "id must be a valid UUID")
		return
	}

	limit := parseIntDefault(ctx.Query("limit"), 20)
	if limit < 1 || limit > 100 {
		RespondBadRequest(ctx, "invalid_query", "limit must be between 1 and 100")
		return
	}

	includeTotal := ctx.Query("includeTotal") == "true"
	cursor := ctx.Query("cursor")

	afterRegisteredAt := time.Unix(0, 0).UTC()
	afterID := "00000000-0000-0000-0000-000000000000"

	if cursor != "" {
		cur, err := utils.DecodeRegistrationCursor(cursor)
		if err != nil {
			RespondBadRequest(ctx, "invalid_query", "cursor is invalid")
			return
		}
		afterRegisteredAt = cur.CreatedAt
		afterID = cur.ID
	}

	cctx, cancel := config.WithTimeout(2 * time.Second)
	defer cancel()

	items, next, hasMore, err := h.reader.ListByEventCursor(cctx, eventID, limit, afterRegisteredAt, afterID)
	if err != nil {
		RespondInternal(ctx, "Could not list registrations")
		return
	}

	var total any = nil
	if includeTotal {
		t, err := h.reader.CountForEvent(cctx, eventID)
		if err != nil {
			RespondInternal(ctx, "Could not count registrations")
			return
		}
		total = t
	}

	resp := gin.H{
		"limit":      limit,
		"count":      len(items),
		"items":      items,
		"hasMore":    hasMore,
		"nextCursor": next,
		"total":      total,
	}

	RespondJSONWithETag(ctx, http.StatusOK, resp)
}

// ListWaitlist returns the waitlist for an event in FIFO position
// order, distinct from the full registrations listing.
func (h *RegistrationHandler) ListWaitlist(ctx *gin.Context) {
	eventID := ctx.Param("id")
	if !utils.IsUUID(eventID) {
		RespondBadRequest(ctx, "invalid_id", "id must be a valid UUID")
		return
	}

	cctx, cancel := config.WithTimeout(2 * time.Second)
	defer cancel()

	items, err := h.reader.ListWaitlisted(cctx, eventID)
	if err != nil {
		RespondInternal(ctx, "Could not list waitlist")
		return
	}

	RespondJSONWithETag(ctx, http.StatusOK, gin.H{
		"count": len(items),
		"items": items,
	})
}

func (h *RegistrationHandler) Cancel(ctx *gin.Context) {
	eventID := ctx.Param("id")
	regID := ctx.Param("registrationId")

	if !utils.IsUUID(eventID) {
		RespondBadRequest(ctx, "invalid_id", "event id must be a valid UUID")
		return
	}
	if !utils.IsUUID(regID) {
		RespondBadRequest(ctx, "invalid_id", "registration id must be a valid UUID")
		return
	}

	userID, ok := middlewares.UserIDFromContext(ctx)
	if !ok || userID == "" {
		RespondUnAuthorized(ctx, "unauthorized", "Missing identity")
		return
	}
	role, _ := middlewares.RoleFromContext(ctx)

	cctx, cancel := config.WithTimeout(2 * time.Second)
	defer cancel()

	_, err := h.service.Cancel(cctx, eventID, regID, userID, role == "admin")
	if err != nil {
		switch {
		case errors.Is(err, registration.ErrNotFound):
			RespondNotFound(ctx, "Registration not found")
		case errors.Is(err, registration.ErrNotAuthorized):
			RespondForbidden(ctx, "forbidden", "you can only cancel your own registration")
		case errors.Is(err, registration.ErrInvalidState):
			RespondConflict(ctx, "invalid_state", "this registration can no longer be cancelled")
		default:
			RespondInternal(ctx, "Could not cancel registration")
			fmt.Println(err)
		}
		return
	}

	ctx.Status(http.StatusNoContent)
}

// Confirm force-promotes a specific Pending/Waitlisted registration,
// out of FIFO order, to Confirmed. Admin-only route.
func (h *RegistrationHandler) Confirm(ctx *gin.Context) {
	eventID := ctx.Param("id")
	regID := ctx.Param("registrationId")

	if !utils.IsUUID(eventID) || !utils.IsUUID(regID) {
		RespondBadRequest(ctx, "invalid_id", "ids must be valid UUIDs")
		return
	}

	cctx, cancel := config.WithTimeout(2 * time.Second)
	defer cancel()

	reg, err := h.service.Confirm(cctx, eventID, regID)
	if err != nil {
		switch {
		case errors.Is(err, registration.ErrNotFound):
			RespondNotFound(ctx, "Registration not found")
		case errors.Is(err, registration.ErrInvalidState):
			RespondConflict(ctx, "invalid_state", "this registration cannot be confirmed from its current state")
		default:
			RespondInternal(ctx, "Could not confirm registration")
			fmt.Println(err)
		}
		return
	}

	ctx.JSON(http.StatusOK, reg)
}

// MarkAttendance records whether a confirmed registrant checked in.
// Organizer/admin-only route.
func (h *RegistrationHandler) MarkAttendance(ctx *gin.Context) {
	eventID := ctx.Param("id")
	regID := ctx.Param("registrationId")

	if !utils.IsUUID(eventID) || !utils.IsUUID(regID) {
		RespondBadRequest(ctx, "invalid_id", "ids must be valid UUIDs")
		return
	}

	var body struct {
		Attended bool `json:"attended"`
	}
	if !BindJSON(ctx, &body) {
		return
	}

	cctx, cancel := config.WithTimeout(2 * time.Second)
	defer cancel()

	reg, err := h.service.MarkAttendance(cctx, eventID, regID, body.Attended)
	if err != nil {
		switch {
		case errors.Is(err, registration.ErrNotFound):
			RespondNotFound(ctx, "Registration not found")
		case errors.Is(err, registration.ErrInvalidState):
			RespondConflict(ctx, "invalid_state", "attendance can only be recorded for confirmed registrations")
		default:
			RespondInternal(ctx, "Could not record attendance")
			fmt.Println(err)
		}
		return
	}

	ctx.JSON(http.StatusOK, reg)
}
