package repository

import (
	"context"
	"database/sql"
	"encoding/json"

	"github.com/pkg/errors"

	"github.com/Aeroer-Live/Note.Lab/internal/model"
)

type ActivityRepo struct{ DB *sql.DB }

func NewActivityRepo(db *sql.DB) *ActivityRepo { return &ActivityRepo{DB: db} }

// Insert stores one activity record.
func (r *ActivityRepo) Insert(ctx context.Context, a model.ActivityLog) error {
	var meta []byte
	if len(a.Metadata) > 0 {
		b, err := json.Marshal(a.Metadata)
		if err != nil {
			return errors.Wrap(err, "marshal activity metadata")
		}
		meta = b
	}
	const q = `INSERT INTO activity_logs
		(id, user_id, action, resource_type, resource_id, metadata, ip_address, user_agent, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`
	_, err := r.DB.ExecContext(ctx, q, a.ID, nullIfEmpty(a.UserID), a.Action, nullIfEmpty(a.ResourceType),
		nullIfEmpty(a.ResourceID), meta, nullIfEmpty(a.IPAddress), nullIfEmpty(a.UserAgent), a.CreatedAt)
	return errors.Wrap(err, "insert activity")
}
