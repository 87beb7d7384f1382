package handlers

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/geocoder89/eventhub/internal/config"
	"github.com/geocoder89/eventhub/internal/domain/registration"
	"github.com/geocoder89/eventhub/internal/domain/user"
	"github.com/geocoder89/eventhub/internal/http/middlewares"
	"github.com/geocoder89/eventhub/internal/utils"
	"github.com/gin-gonic/gin"
)

// UsersStore is the slice of UsersRepo the DSAR handler needs.
type UsersStore interface {
	GetByID(ctx context.Context, id string) (user.User, error)
	Erase(ctx context.Context, id string) error
}

// UserRegistrationsReader looks up every registration a user holds,
// for the export side of the DSAR request.
type UserRegistrationsReader interface {
	ListByUser(ctx context.Context, userID string) ([]registration.Registration, error)
}

type UsersHandler struct {
	users UsersStore
	regs  UserRegistrationsReader
}

func NewUsersHandler(users UsersStore, regs UserRegistrationsReader) *UsersHandler {
	return &UsersHandler{users: users, regs: regs}
}

type dsarExport struct {
	User          user.User                    `json:"user"`
	Registrations []registration.Registration  `json:"registrations"`
	ExportedAt    time.Time                    `json:"exportedAt"`
}

// Export returns a self-contained JSON document of everything held
// about one user: profile plus every registration they have ever
// made. Callable by the user themselves or by an Admin.
func (h *UsersHandler) Export(ctx *gin.Context) {
	id := ctx.Param("id")
	if !utils.IsUUID(id) {
		RespondBadRequest(ctx, "invalid_id", "id must be a valid UUID")
		return
	}

	requesterID, ok := middlewares.UserIDFromContext(ctx)
	if !ok || requesterID == "" {
		RespondUnAuthorized(ctx, "unauthorized", "Missing identity")
		return
	}
	role, _ := middlewares.RoleFromContext(ctx)
	if role != "admin" && requesterID != id {
		RespondForbidden(ctx, "forbidden", "you can only export your own data")
		return
	}

	cctx, cancel := config.WithTimeout(2 * time.Second)
	defer cancel()

	u, err := h.users.GetByID(cctx, id)
	if err != nil {
		if errors.Is(err, user.ErrNotFound) {
			RespondNotFound(ctx, "User not found")
			return
		}
		RespondInternal(ctx, "Could not export user data")
		return
	}

	regs, err := h.regs.ListByUser(cctx, id)
	if err != nil {
		RespondInternal(ctx, "Could not export user data")
		return
	}

	ctx.JSON(http.StatusOK, dsarExport{
		User:          u,
		Registrations: regs,
		ExportedAt:    time.Now().UTC(),
	})
}

// Erase anonymizes a user's PII in place, keeping the row and its
// registrations intact so waitlist history stays consistent. Admin-only.
func (h *UsersHandler) Erase(ctx *gin.Context) {
	id := ctx.Param("id")
	if !utils.IsUUID(id) {
		RespondBadRequest(ctx, "invalid_id", "id must be a valid UUID")
		return
	}

	cctx, cancel := config.WithTimeout(2 * time.Second)
	defer cancel()

	if err := h.users.Erase(cctx, id); err != nil {
		if errors.Is(err, user.ErrNotFound) {
			RespondNotFound(ctx, "User not found")
			return
		}
		RespondInternal(ctx, "Could not erase user")
		return
	}

	ctx.Status(http.StatusNoContent)
}
