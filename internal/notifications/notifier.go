// Package notifications turns domain events into email delivered by the task worker.
package notifications

import (
	"context"
	"errors"

	dbtypes "github.com/angelmondragon/shopfeed-backend/pkg/db/types"
	"github.com/angelmondragon/shopfeed-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/shopfeed-backend/pkg/errors"
	"github.com/google/uuid"
)

// Payload is the body of a notify task.
type Payload struct {
	Kind        enums.NotificationKind `json:"kind"`
	RecipientID int64                  `json:"recipient_id"`
	Data        dbtypes.JSONDocument   `json:"data,omitempty"`
}

type submitter interface {
	Submit(ctx context.Context, kind enums.TaskKind, submittedBy *int64, payload any) (uuid.UUID, error)
}

// Notifier enqueues notify tasks. Callers invoke it after their transaction
// commits so a rolled back change never sends mail.
type Notifier struct {
	tasks submitter
}

// NewNotifier returns a notifier that submits through the task gateway.
func NewNotifier(tasks submitter) (*Notifier, error) {
	if tasks == nil {
		return nil, errors.New("task gateway required")
	}
	return &Notifier{tasks: tasks}, nil
}

// Notify schedules a notification of kind for the recipient user.
func (n *Notifier) Notify(ctx context.Context, kind enums.NotificationKind, recipientID int64, data any) error {
	if !kind.IsValid() {
		return pkgerrors.New(pkgerrors.CodeValidation, "unknown notification kind")
	}
	if recipientID <= 0 {
		return pkgerrors.New(pkgerrors.CodeValidation, "recipient is required")
	}
	doc, err := dbtypes.NewJSONDocument(data)
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "encode notification data")
	}
	// system tasks carry no submitter so they never show up in /results
	_, err = n.tasks.Submit(ctx, enums.TaskKindNotify, nil, Payload{Kind: kind, RecipientID: recipientID, Data: doc})
	return err
}
