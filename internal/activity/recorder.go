// Package activity records user actions into activity_logs.  Recording is
// best effort: failures are logged and never reach the caller.
package activity

import (
	"context"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/Aeroer-Live/Note.Lab/internal/model"
)

// Action names.
const (
	UserRegister       = "user_register"
	UserLogin          = "user_login"
	UserLogout         = "user_logout"
	PasswordReset      = "password_reset"
	PasswordChanged    = "password_changed"
	ProfileUpdated     = "profile_updated"
	NoteCreated        = "note_created"
	NoteUpdated        = "note_updated"
	NoteDeleted        = "note_deleted"
	NotesBulkUpdated   = "notes_bulk_updated"
	CategoryCreated    = "category_created"
	CategoryUpdated    = "category_updated"
	CategoryDeleted    = "category_deleted"
	CategoriesAssigned = "categories_assigned"
)

// Writer persists one activity row.
type Writer interface {
	Insert(ctx context.Context, a model.ActivityLog) error
}

// Entry is what callers know about an action.
type Entry struct {
	UserID       string
	Action       string
	ResourceType string
	ResourceID   string
	Metadata     map[string]any
	IPAddress    string
	UserAgent    string
}

type Recorder struct {
	w   Writer
	log *zap.Logger
}

func NewRecorder(w Writer, log *zap.Logger) *Recorder {
	if log == nil {
		log = zap.NewNop()
	}
	return &Recorder{w: w, log: log}
}

// Record stores e.  A nil Recorder discards entries.
func (r *Recorder) Record(ctx context.Context, e Entry) {
	if r == nil || r.w == nil {
		return
	}
	err := r.w.Insert(ctx, model.ActivityLog{
		ID:           uuid.NewString(),
		UserID:       e.UserID,
		Action:       e.Action,
		ResourceType: e.ResourceType,
		ResourceID:   e.ResourceID,
		Metadata:     e.Metadata,
		IPAddress:    e.IPAddress,
		UserAgent:    e.UserAgent,
		CreatedAt:    time.Now().UTC(),
	})
	if err != nil {
		r.log.Warn("activity log failed", zap.String("action", e.Action), zap.String("user_id", e.UserID), zap.Error(err))
	}
}
