package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"strings"
	"time"

	"github.com/pkg/errors"

	"github.com/Aeroer-Live/Note.Lab/internal/model"
)

type NoteRepo struct{ DB *sql.DB }

func NewNoteRepo(db *sql.DB) *NoteRepo { return &NoteRepo{DB: db} }

// SortColumns whitelists the columns a listing may be ordered by.
var SortColumns = map[string]string{
	"created_at": "n.created_at",
	"updated_at": "n.updated_at",
	"title":      "n.title",
	"starred":    "n.starred",
}

const noteSelect = `SELECT n.id, n.user_id, n.title, n.content, n.type, n.starred, n.tags, n.metadata,
		n.created_at, n.updated_at, JSON_ARRAYAGG(c.name) AS categories
	FROM notes n
	LEFT JOIN note_category_assignments a ON a.note_id = n.id
	LEFT JOIN note_categories c ON c.id = a.category_id`

// Create inserts a note.
func (r *NoteRepo) Create(ctx context.Context, n model.Note) error {
	tags, err := json.Marshal(nonNilTags(n.Tags))
	if err != nil {
		return errors.Wrap(err, "marshal tags")
	}
	const q = `INSERT INTO notes (id, user_id, title, content, type, starred, tags, metadata, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`
	_, err = r.DB.ExecContext(ctx, q, n.ID, n.UserID, n.Title, n.Content, n.Type, n.Starred, string(tags),
		rawOrNull(n.Metadata), n.CreatedAt, n.UpdatedAt)
	return errors.Wrap(err, "insert note")
}

// Get returns a live note owned by userID.
func (r *NoteRepo) Get(ctx context.Context, userID, id string) (model.Note, error) {
	q := noteSelect + ` WHERE n.id = ? AND n.user_id = ? AND n.deleted_at IS NULL GROUP BY n.id`
	rows, err := r.DB.QueryContext(ctx, q, id, userID)
	if err != nil {
		return model.Note{}, errors.Wrap(err, "select note")
	}
	defer rows.Close()
	notes, err := scanNotes(rows)
	if err != nil {
		return model.Note{}, err
	}
	if len(notes) == 0 {
		return model.Note{}, ErrNotFound
	}
	return notes[0], nil
}

// Exists reports whether a live note owned by userID exists.
func (r *NoteRepo) Exists(ctx context.Context, userID, id string) (bool, error) {
	var one int
	err := r.DB.QueryRowContext(ctx,
		"SELECT 1 FROM notes WHERE id = ? AND user_id = ? AND deleted_at IS NULL", id, userID).Scan(&one)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, errors.Wrap(err, "check note")
	}
	return true, nil
}

// List returns one page of notes matching f and the total match count.
func (r *NoteRepo) List(ctx context.Context, f model.NoteFilter) ([]model.Note, int, error) {
	where, args := noteWhere(f)

	var total int
	if err := r.DB.QueryRowContext(ctx, "SELECT COUNT(*) FROM notes n WHERE "+where, args...).Scan(&total); err != nil {
		return nil, 0, errors.Wrap(err, "count notes")
	}

	col, ok := SortColumns[f.Sort]
	if !ok {
		col = SortColumns["updated_at"]
	}
	dir := "ASC"
	if f.Desc {
		dir = "DESC"
	}
	q := noteSelect + " WHERE " + where + " GROUP BY n.id ORDER BY " + col + " " + dir + ", n.id LIMIT ? OFFSET ?"
	rows, err := r.DB.QueryContext(ctx, q, append(args, f.Limit, f.Offset)...)
	if err != nil {
		return nil, 0, errors.Wrap(err, "list notes")
	}
	defer rows.Close()
	notes, err := scanNotes(rows)
	if err != nil {
		return nil, 0, err
	}
	return notes, total, nil
}

func noteWhere(f model.NoteFilter) (string, []any) {
	clauses := []string{"n.user_id = ?", "n.deleted_at IS NULL"}
	args := []any{f.UserID}
	if f.Search != "" {
		like := "%" + EscapeLike(f.Search) + "%"
		clauses = append(clauses, "(n.title LIKE ? OR n.content LIKE ?)")
		args = append(args, like, like)
	}
	if f.Starred != nil {
		clauses = append(clauses, "n.starred = ?")
		args = append(args, *f.Starred)
	}
	if f.Type != "" {
		clauses = append(clauses, "n.type = ?")
		args = append(args, f.Type)
	}
	if f.CategoryID != "" {
		clauses = append(clauses, "EXISTS (SELECT 1 FROM note_category_assignments x WHERE x.note_id = n.id AND x.category_id = ?)")
		args = append(args, f.CategoryID)
	}
	for _, tag := range f.Tags {
		clauses = append(clauses, "JSON_CONTAINS(n.tags, JSON_QUOTE(?))")
		args = append(args, tag)
	}
	return strings.Join(clauses, " AND "), args
}

// Search runs a full-text query and falls back to LIKE matching when the
// full-text index cannot serve it.
func (r *NoteRepo) Search(ctx context.Context, userID, query string, limit int) ([]model.Note, error) {
	if expr := booleanQuery(query); expr != "" {
		q := noteSelect + ` WHERE n.user_id = ? AND n.deleted_at IS NULL
			AND MATCH(n.title, n.content) AGAINST (? IN BOOLEAN MODE)
			GROUP BY n.id
			ORDER BY MATCH(n.title, n.content) AGAINST (? IN BOOLEAN MODE) DESC, n.updated_at DESC
			LIMIT ?`
		rows, err := r.DB.QueryContext(ctx, q, userID, expr, expr, limit)
		if err == nil {
			defer rows.Close()
			return scanNotes(rows)
		}
	}
	notes, _, err := r.List(ctx, model.NoteFilter{UserID: userID, Search: query, Sort: "updated_at", Desc: true, Limit: limit})
	return notes, err
}

// booleanQuery turns free text into a prefix-matching boolean-mode expression.
func booleanQuery(s string) string {
	words := strings.FieldsFunc(s, func(r rune) bool {
		return strings.ContainsRune(" \t\n+-<>()~*\"@", r)
	})
	for i, w := range words {
		words[i] = w + "*"
	}
	return strings.Join(words, " ")
}

// Update applies p to a live note owned by userID and returns the result.
func (r *NoteRepo) Update(ctx context.Context, userID, id string, p model.NotePatch) (model.Note, error) {
	var tags sql.NullString
	if p.Tags != nil {
		b, err := json.Marshal(nonNilTags(*p.Tags))
		if err != nil {
			return model.Note{}, errors.Wrap(err, "marshal tags")
		}
		tags = sql.NullString{String: string(b), Valid: true}
	}
	var meta sql.NullString
	if p.Metadata != nil {
		meta = sql.NullString{String: string(*p.Metadata), Valid: true}
	}
	var starred sql.NullBool
	if p.Starred != nil {
		starred = sql.NullBool{Bool: *p.Starred, Valid: true}
	}
	const q = `UPDATE notes SET
			title = COALESCE(?, title),
			content = COALESCE(?, content),
			type = COALESCE(?, type),
			starred = COALESCE(?, starred),
			tags = COALESCE(?, tags),
			metadata = COALESCE(?, metadata),
			updated_at = ?
		WHERE id = ? AND user_id = ? AND deleted_at IS NULL`
	res, err := r.DB.ExecContext(ctx, q, nullString(p.Title), nullString(p.Content), nullString(p.Type), starred,
		tags, meta, time.Now().UTC(), id, userID)
	if err != nil {
		return model.Note{}, errors.Wrap(err, "update note")
	}
	if err := expectOne(res); err != nil {
		return model.Note{}, err
	}
	return r.Get(ctx, userID, id)
}

// SoftDelete marks a note deleted; it disappears from every read.
func (r *NoteRepo) SoftDelete(ctx context.Context, userID, id string) error {
	now := time.Now().UTC()
	res, err := r.DB.ExecContext(ctx,
		"UPDATE notes SET deleted_at = ?, updated_at = ? WHERE id = ? AND user_id = ? AND deleted_at IS NULL",
		now, now, id, userID)
	if err != nil {
		return errors.Wrap(err, "delete note")
	}
	return expectOne(res)
}

// BulkUpdate sets starred and/or tags on the caller's notes among ids and
// returns the number of notes touched.
func (r *NoteRepo) BulkUpdate(ctx context.Context, userID string, ids []string, starred *bool, tags *[]string) (int64, error) {
	if len(ids) == 0 {
		return 0, nil
	}
	var st sql.NullBool
	if starred != nil {
		st = sql.NullBool{Bool: *starred, Valid: true}
	}
	var tg sql.NullString
	if tags != nil {
		b, err := json.Marshal(nonNilTags(*tags))
		if err != nil {
			return 0, errors.Wrap(err, "marshal tags")
		}
		tg = sql.NullString{String: string(b), Valid: true}
	}
	args := []any{st, tg, time.Now().UTC(), userID}
	for _, id := range ids {
		args = append(args, id)
	}
	q := `UPDATE notes SET starred = COALESCE(?, starred), tags = COALESCE(?, tags), updated_at = ?
		WHERE user_id = ? AND deleted_at IS NULL AND id IN (` + placeholders(len(ids)) + `)`
	res, err := r.DB.ExecContext(ctx, q, args...)
	if err != nil {
		return 0, errors.Wrap(err, "bulk update notes")
	}
	n, err := res.RowsAffected()
	return n, errors.Wrap(err, "rows affected")
}

// Stats aggregates the caller's live notes.
func (r *NoteRepo) Stats(ctx context.Context, userID string) (model.NoteStats, error) {
	const q = `SELECT COUNT(*),
			COALESCE(SUM(type = 'standard'), 0),
			COALESCE(SUM(type = 'plan'), 0),
			COALESCE(SUM(type = 'code'), 0),
			COALESCE(SUM(type = 'credentials'), 0),
			COALESCE(SUM(starred = 1), 0),
			COALESCE(SUM(CHAR_LENGTH(content)), 0),
			MAX(updated_at)
		FROM notes WHERE user_id = ? AND deleted_at IS NULL`
	var (
		s    model.NoteStats
		last sql.NullTime
	)
	err := r.DB.QueryRowContext(ctx, q, userID).Scan(&s.TotalNotes, &s.StandardNotes, &s.PlanNotes, &s.CodeNotes,
		&s.CredentialNotes, &s.StarredNotes, &s.TotalCharacters, &last)
	if err != nil {
		return model.NoteStats{}, errors.Wrap(err, "note stats")
	}
	if last.Valid {
		t := last.Time
		s.LastUpdated = &t
	}

	const tagsQ = `SELECT jt.tag, COUNT(*) AS cnt
		FROM notes n, JSON_TABLE(n.tags, '$[*]' COLUMNS (tag VARCHAR(50) PATH '$')) AS jt
		WHERE n.user_id = ? AND n.deleted_at IS NULL
		GROUP BY jt.tag ORDER BY cnt DESC, jt.tag LIMIT 10`
	rows, err := r.DB.QueryContext(ctx, tagsQ, userID)
	if err != nil {
		return model.NoteStats{}, errors.Wrap(err, "top tags")
	}
	defer rows.Close()
	s.TopTags = []model.TagCount{}
	for rows.Next() {
		var tc model.TagCount
		if err := rows.Scan(&tc.Tag, &tc.Count); err != nil {
			return model.NoteStats{}, errors.Wrap(err, "scan tag")
		}
		s.TopTags = append(s.TopTags, tc)
	}
	return s, errors.Wrap(rows.Err(), "iterate tags")
}

func scanNotes(rows *sql.Rows) ([]model.Note, error) {
	out := []model.Note{}
	for rows.Next() {
		var (
			n                      model.Note
			tags, meta, categories []byte
		)
		if err := rows.Scan(&n.ID, &n.UserID, &n.Title, &n.Content, &n.Type, &n.Starred, &tags, &meta,
			&n.CreatedAt, &n.UpdatedAt, &categories); err != nil {
			return nil, errors.Wrap(err, "scan note")
		}
		n.Tags = []string{}
		if len(tags) > 0 {
			if err := json.Unmarshal(tags, &n.Tags); err != nil {
				return nil, errors.Wrap(err, "decode tags")
			}
		}
		if len(meta) > 0 {
			n.Metadata = json.RawMessage(meta)
		}
		names, err := decodeCategoryNames(categories)
		if err != nil {
			return nil, err
		}
		n.Categories = names
		out = append(out, n)
	}
	return out, errors.Wrap(rows.Err(), "iterate notes")
}

// decodeCategoryNames reads a JSON_ARRAYAGG result; a note without
// categories aggregates to [null].
func decodeCategoryNames(b []byte) ([]string, error) {
	if len(b) == 0 {
		return []string{}, nil
	}
	var raw []*string
	if err := json.Unmarshal(b, &raw); err != nil {
		return nil, errors.Wrap(err, "decode categories")
	}
	names := make([]string, 0, len(raw))
	for _, s := range raw {
		if s != nil {
			names = append(names, *s)
		}
	}
	return names, nil
}

// EscapeLike escapes LIKE wildcards so user input matches literally.
func EscapeLike(s string) string {
	return strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`).Replace(s)
}

func placeholders(n int) string {
	return strings.TrimSuffix(strings.Repeat("?, ", n), ", ")
}

func nonNilTags(tags []string) []string {
	if tags == nil {
		return []string{}
	}
	return tags
}

func rawOrNull(m json.RawMessage) sql.NullString {
	if len(m) == 0 {
		return sql.NullString{}
	}
	return sql.NullString{String: string(m), Valid: true}
}
