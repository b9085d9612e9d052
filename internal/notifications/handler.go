package notifications

import (
	"context"
	"errors"
	"fmt"

	"github.com/angelmondragon/shopfeed-backend/pkg/db/models"
	"github.com/angelmondragon/shopfeed-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/shopfeed-backend/pkg/errors"
	"github.com/angelmondragon/shopfeed-backend/pkg/logger"
	"github.com/angelmondragon/shopfeed-backend/pkg/mailer"
)

type userLookup interface {
	FindByID(ctx context.Context, id int64) (*models.User, error)
}

// Handler renders notify tasks into email.
type Handler struct {
	users  userLookup
	mailer mailer.Mailer
	logg   *logger.Logger
}

// NewHandler builds the notify task handler.
func NewHandler(users userLookup, m mailer.Mailer, logg *logger.Logger) (*Handler, error) {
	if users == nil {
		return nil, errors.New("users repository required")
	}
	if m == nil {
		return nil, errors.New("mailer required")
	}
	if logg == nil {
		return nil, errors.New("logger required")
	}
	return &Handler{users: users, mailer: m, logg: logg}, nil
}

// Handle implements tasks.Handler.
func (h *Handler) Handle(ctx context.Context, task *models.Task) (any, error) {
	var payload Payload
	if err := task.Payload.Decode(&payload); err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "decode notify payload")
	}
	if !payload.Kind.IsValid() {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, fmt.Sprintf("unknown notification kind %q", payload.Kind))
	}

	user, err := h.users.FindByID(ctx, payload.RecipientID)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load recipient")
	}
	if user == nil {
		return nil, pkgerrors.New(pkgerrors.CodeNotFound, "recipient not found")
	}

	var data templateData
	if err := payload.Data.Decode(&data); err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "decode notification data")
	}
	subject, body := render(payload.Kind, user, data)

	msg := mailer.Message{To: []string{user.Email}, Subject: subject, Body: body}
	if err := h.mailer.Send(ctx, msg); err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "send email")
	}

	h.logg.Info(h.logg.WithFields(ctx, map[string]any{
		"notification_kind": payload.Kind,
		"recipient_id":      user.ID,
	}), "notification.sent")
	return map[string]any{"kind": payload.Kind, "recipient": user.Email}, nil
}

type templateData struct {
	Token   string           `json:"token"`
	OrderID int64            `json:"order_id"`
	State   enums.OrderState `json:"state"`
}

func render(kind enums.NotificationKind, user *models.User, data templateData) (string, string) {
	switch kind {
	case enums.NotificationKindRegistrationConfirm:
		return fmt.Sprintf("Email confirmation for %s", user.Email), data.Token
	case enums.NotificationKindPasswordReset:
		return fmt.Sprintf("Password reset for %s", user.Email), data.Token
	case enums.NotificationKindOrderPlaced:
		return "Order status update", fmt.Sprintf("Your order #%d has been placed", data.OrderID)
	case enums.NotificationKindOrderStateChanged:
		return "Order status update", fmt.Sprintf("Your order #%d is now %s", data.OrderID, data.State)
	}
	return "Notification", ""
}
