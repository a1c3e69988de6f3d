package repository

import (
	"context"
	"database/sql"
	"time"

	"github.com/pkg/errors"

	"github.com/Aeroer-Live/Note.Lab/internal/model"
)

type CategoryRepo struct{ DB *sql.DB }

func NewCategoryRepo(db *sql.DB) *CategoryRepo { return &CategoryRepo{DB: db} }

const categorySelect = `SELECT c.id, c.user_id, c.name, c.color, c.icon, c.sort_order, c.created_at, c.updated_at,
		COUNT(n.id) AS note_count
	FROM note_categories c
	LEFT JOIN note_category_assignments a ON a.category_id = c.id
	LEFT JOIN notes n ON n.id = a.note_id AND n.deleted_at IS NULL`

// List returns the caller's categories with live note counts.
func (r *CategoryRepo) List(ctx context.Context, userID string) ([]model.Category, error) {
	q := categorySelect + ` WHERE c.user_id = ? GROUP BY c.id ORDER BY c.sort_order ASC, c.name ASC`
	rows, err := r.DB.QueryContext(ctx, q, userID)
	if err != nil {
		return nil, errors.Wrap(err, "list categories")
	}
	defer rows.Close()
	return scanCategories(rows)
}

// Get returns one category owned by userID.
func (r *CategoryRepo) Get(ctx context.Context, userID, id string) (model.Category, error) {
	q := categorySelect + ` WHERE c.id = ? AND c.user_id = ? GROUP BY c.id`
	rows, err := r.DB.QueryContext(ctx, q, id, userID)
	if err != nil {
		return model.Category{}, errors.Wrap(err, "select category")
	}
	defer rows.Close()
	cats, err := scanCategories(rows)
	if err != nil {
		return model.Category{}, err
	}
	if len(cats) == 0 {
		return model.Category{}, ErrNotFound
	}
	return cats[0], nil
}

// Create inserts c; a name already used by the same user is ErrDuplicateName.
func (r *CategoryRepo) Create(ctx context.Context, c model.Category) error {
	const q = `INSERT INTO note_categories (id, user_id, name, color, icon, sort_order, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`
	_, err := r.DB.ExecContext(ctx, q, c.ID, c.UserID, c.Name, c.Color, nullIfEmpty(c.Icon), c.SortOrder, c.CreatedAt, c.UpdatedAt)
	if err != nil {
		if isDuplicate(err) {
			return ErrDuplicateName
		}
		return errors.Wrap(err, "insert category")
	}
	return nil
}

// Update applies p and returns the updated category.
func (r *CategoryRepo) Update(ctx context.Context, userID, id string, p model.CategoryPatch) (model.Category, error) {
	var sortOrder sql.NullInt64
	if p.SortOrder != nil {
		sortOrder = sql.NullInt64{Int64: int64(*p.SortOrder), Valid: true}
	}
	const q = `UPDATE note_categories SET
			name = COALESCE(?, name),
			color = COALESCE(?, color),
			icon = COALESCE(?, icon),
			sort_order = COALESCE(?, sort_order),
			updated_at = ?
		WHERE id = ? AND user_id = ?`
	res, err := r.DB.ExecContext(ctx, q, nullString(p.Name), nullString(p.Color), nullString(p.Icon), sortOrder,
		time.Now().UTC(), id, userID)
	if err != nil {
		if isDuplicate(err) {
			return model.Category{}, ErrDuplicateName
		}
		return model.Category{}, errors.Wrap(err, "update category")
	}
	if err := expectOne(res); err != nil {
		return model.Category{}, err
	}
	return r.Get(ctx, userID, id)
}

// Delete removes an empty category.  A category still assigned to live notes
// is ErrConflict.
func (r *CategoryRepo) Delete(ctx context.Context, userID, id string) error {
	if _, err := r.Get(ctx, userID, id); err != nil {
		return err
	}
	var n int
	const countQ = `SELECT COUNT(*) FROM note_category_assignments a
		JOIN notes n ON n.id = a.note_id AND n.deleted_at IS NULL
		WHERE a.category_id = ?`
	if err := r.DB.QueryRowContext(ctx, countQ, id).Scan(&n); err != nil {
		return errors.Wrap(err, "count category notes")
	}
	if n > 0 {
		return ErrConflict
	}
	res, err := r.DB.ExecContext(ctx, "DELETE FROM note_categories WHERE id = ? AND user_id = ?", id, userID)
	if err != nil {
		return errors.Wrap(err, "delete category")
	}
	return expectOne(res)
}

// OwnedCount returns how many of ids belong to userID.
func (r *CategoryRepo) OwnedCount(ctx context.Context, userID string, ids []string) (int, error) {
	if len(ids) == 0 {
		return 0, nil
	}
	args := []any{userID}
	for _, id := range ids {
		args = append(args, id)
	}
	var n int
	q := "SELECT COUNT(*) FROM note_categories WHERE user_id = ? AND id IN (" + placeholders(len(ids)) + ")"
	if err := r.DB.QueryRowContext(ctx, q, args...).Scan(&n); err != nil {
		return 0, errors.Wrap(err, "count categories")
	}
	return n, nil
}

// Assign replaces the category set of a note in one transaction.
func (r *CategoryRepo) Assign(ctx context.Context, noteID string, categoryIDs []string) (err error) {
	tx, err := r.DB.BeginTx(ctx, nil)
	if err != nil {
		return errors.Wrap(err, "begin assign")
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	if _, err = tx.ExecContext(ctx, "DELETE FROM note_category_assignments WHERE note_id = ?", noteID); err != nil {
		return errors.Wrap(err, "clear assignments")
	}
	now := time.Now().UTC()
	for _, cid := range categoryIDs {
		if _, err = tx.ExecContext(ctx,
			"INSERT INTO note_category_assignments (note_id, category_id, created_at) VALUES (?, ?, ?)",
			noteID, cid, now); err != nil {
			return errors.Wrap(err, "insert assignment")
		}
	}
	if err = tx.Commit(); err != nil {
		return errors.Wrap(err, "commit assign")
	}
	return nil
}

// ForNote lists the categories assigned to a note owned by userID.
func (r *CategoryRepo) ForNote(ctx context.Context, userID, noteID string) ([]model.Category, error) {
	const q = `SELECT c.id, c.user_id, c.name, c.color, c.icon, c.sort_order, c.created_at, c.updated_at, 0
		FROM note_categories c
		JOIN note_category_assignments a ON a.category_id = c.id
		WHERE a.note_id = ? AND c.user_id = ?
		ORDER BY c.sort_order ASC, c.name ASC`
	rows, err := r.DB.QueryContext(ctx, q, noteID, userID)
	if err != nil {
		return nil, errors.Wrap(err, "note categories")
	}
	defer rows.Close()
	return scanCategories(rows)
}

func scanCategories(rows *sql.Rows) ([]model.Category, error) {
	out := []model.Category{}
	for rows.Next() {
		var (
			c    model.Category
			icon sql.NullString
		)
		if err := rows.Scan(&c.ID, &c.UserID, &c.Name, &c.Color, &icon, &c.SortOrder, &c.CreatedAt, &c.UpdatedAt, &c.NoteCount); err != nil {
			return nil, errors.Wrap(err, "scan category")
		}
		c.Icon = icon.String
		out = append(out, c)
	}
	return out, errors.Wrap(rows.Err(), "iterate categories")
}
