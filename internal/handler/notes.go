package handler

import (
	"context"
	"encoding/json"
	"errors"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
	"go.uber.org/zap"

	"github.com/Aeroer-Live/Note.Lab/internal/activity"
	"github.com/Aeroer-Live/Note.Lab/internal/apperr"
	"github.com/Aeroer-Live/Note.Lab/internal/model"
	"github.com/Aeroer-Live/Note.Lab/internal/repository"
	"github.com/Aeroer-Live/Note.Lab/internal/response"
	"github.com/Aeroer-Live/Note.Lab/internal/utils"
)

// Limits applied to note input.
const (
	maxTitleLen     = 200
	maxTags         = 10
	maxTagLen       = 50
	defaultPageSize = 50
	maxPageSize     = 100
	defaultSearch   = 20
	maxSearch       = 50
)

// NoteStore is the note persistence used by NotesHandler.
type NoteStore interface {
	Create(ctx context.Context, n model.Note) error
	Get(ctx context.Context, userID, id string) (model.Note, error)
	Exists(ctx context.Context, userID, id string) (bool, error)
	List(ctx context.Context, f model.NoteFilter) ([]model.Note, int, error)
	Search(ctx context.Context, userID, query string, limit int) ([]model.Note, error)
	Update(ctx context.Context, userID, id string, p model.NotePatch) (model.Note, error)
	SoftDelete(ctx context.Context, userID, id string) error
	BulkUpdate(ctx context.Context, userID string, ids []string, starred *bool, tags *[]string) (int64, error)
	Stats(ctx context.Context, userID string) (model.NoteStats, error)
}

// CacheInvalidator drops a user's cached responses after a write.
type CacheInvalidator interface {
	Invalidate(ctx context.Context, userID string) error
}

type NotesHandler struct {
	Notes    NoteStore
	Activity *activity.Recorder
	Cache    CacheInvalidator
	Log      *zap.Logger
}

func NewNotesHandler(notes NoteStore, rec *activity.Recorder, cache CacheInvalidator, log *zap.Logger) *NotesHandler {
	if log == nil {
		log = zap.NewNop()
	}
	return &NotesHandler{Notes: notes, Activity: rec, Cache: cache, Log: log}
}

// ----- DTOs -----

type createNoteReq struct {
	Title    string          `json:"title" validate:"required"`
	Content  string          `json:"content"`
	Type     string          `json:"type"`
	Starred  bool            `json:"starred"`
	Tags     []string        `json:"tags"`
	Metadata json.RawMessage `json:"metadata"`
}

type updateNoteReq struct {
	Title    *string          `json:"title"`
	Content  *string          `json:"content"`
	Type     *string          `json:"type"`
	Starred  *bool            `json:"starred"`
	Tags     *[]string        `json:"tags"`
	Metadata *json.RawMessage `json:"metadata"`
}

type bulkUpdateReq struct {
	NoteIDs []string `json:"noteIds" validate:"required,min=1,max=100,dive,uuid"`
	Updates struct {
		Starred *bool     `json:"starred"`
		Tags    *[]string `json:"tags"`
	} `json:"updates"`
}

type pagination struct {
	Limit   int  `json:"limit"`
	Offset  int  `json:"offset"`
	Total   int  `json:"total"`
	HasMore bool `json:"hasMore"`
}

type noteListResp struct {
	Notes      []model.Note `json:"notes"`
	Pagination pagination   `json:"pagination"`
}

// ----- helpers -----

// noteID reads and validates the :id path parameter.
func noteID(c echo.Context) (string, error) {
	id := c.Param("id")
	if _, err := uuid.Parse(id); err != nil {
		return "", apperr.Validation("INVALID_ID", "Invalid note ID")
	}
	return id, nil
}

var errNoteNotFound = apperr.NotFound("NOTE_NOT_FOUND", "Note not found")

func noteErr(err error) error {
	if errors.Is(err, repository.ErrNotFound) {
		return errNoteNotFound
	}
	return apperr.From(err)
}

// cleanTags trims, drops empties and caps count and length.
func cleanTags(in []string) []string {
	out := make([]string, 0, len(in))
	for _, t := range in {
		if t = utils.Truncate(t, maxTagLen); t != "" {
			out = append(out, t)
		}
		if len(out) == maxTags {
			break
		}
	}
	return out
}

func validType(t string) error {
	if !model.ValidNoteType(t) {
		return apperr.Validation("INVALID_TYPE", "Type must be one of: standard, plan, code, credentials")
	}
	return nil
}

func withPreview(notes []model.Note) []model.Note {
	for i := range notes {
		notes[i].Preview = utils.Preview(notes[i].Content, utils.PreviewLength)
	}
	return notes
}

func (h *NotesHandler) afterWrite(ctx context.Context, uid string, e activity.Entry) {
	if h.Cache != nil {
		if err := h.Cache.Invalidate(ctx, uid); err != nil {
			h.Log.Warn("cache invalidate failed", zap.String("user_id", uid), zap.Error(err))
		}
	}
	e.UserID = uid
	h.Activity.Record(ctx, e)
}

func queryInt(c echo.Context, name string, def, min, max int) int {
	n, err := strconv.Atoi(c.QueryParam(name))
	if err != nil || n < min {
		return def
	}
	if n > max {
		return max
	}
	return n
}

// ----- endpoints -----

// List returns a page of the caller's notes.
// Query: limit, offset, search, starred, tags (comma separated), type,
// category, sort (created_at|updated_at|title|starred), order (asc|desc).
func (h *NotesHandler) List(c echo.Context) error {
	uid, err := mustUser(c)
	if err != nil {
		return err
	}
	f := model.NoteFilter{
		UserID:     uid,
		Search:     utils.Truncate(c.QueryParam("search"), 100),
		Type:       c.QueryParam("type"),
		CategoryID: c.QueryParam("category"),
		Sort:       c.QueryParam("sort"),
		Desc:       !strings.EqualFold(c.QueryParam("order"), "asc"),
		Limit:      queryInt(c, "limit", defaultPageSize, 1, maxPageSize),
		Offset:     queryInt(c, "offset", 0, 0, 1<<31-1),
	}
	if f.Type != "" {
		if err := validType(f.Type); err != nil {
			return err
		}
	}
	if _, ok := repository.SortColumns[f.Sort]; !ok {
		f.Sort = "updated_at"
	}
	if s := c.QueryParam("starred"); s != "" {
		b := s == "true" || s == "1"
		f.Starred = &b
	}
	if t := c.QueryParam("tags"); t != "" {
		f.Tags = cleanTags(strings.Split(t, ","))
	}

	ctx, cancel := reqCtx(c)
	defer cancel()
	notes, total, err := h.Notes.List(ctx, f)
	if err != nil {
		return apperr.Internal(err)
	}
	return response.OK(c, noteListResp{
		Notes: withPreview(notes),
		Pagination: pagination{
			Limit:   f.Limit,
			Offset:  f.Offset,
			Total:   total,
			HasMore: f.Offset+len(notes) < total,
		},
	})
}

func (h *NotesHandler) Create(c echo.Context) error {
	uid, err := mustUser(c)
	if err != nil {
		return err
	}
	var req createNoteReq
	if err := bindValid(c, &req); err != nil {
		return err
	}
	title := utils.Truncate(req.Title, maxTitleLen)
	if title == "" {
		return apperr.Validation("MISSING_FIELDS", "title is required")
	}
	if req.Type == "" {
		req.Type = model.NoteTypeStandard
	}
	if err := validType(req.Type); err != nil {
		return err
	}
	if len(req.Metadata) > 0 && !json.Valid(req.Metadata) {
		return apperr.Validation("INVALID_METADATA", "metadata must be valid JSON")
	}

	now := time.Now().UTC()
	n := model.Note{
		ID:        uuid.NewString(),
		UserID:    uid,
		Title:     title,
		Content:   utils.SanitizeHTML(req.Content),
		Type:      req.Type,
		Starred:   req.Starred,
		Tags:      cleanTags(req.Tags),
		Metadata:  req.Metadata,
		CreatedAt: now,
		UpdatedAt: now,
	}
	ctx, cancel := reqCtx(c)
	defer cancel()
	if err := h.Notes.Create(ctx, n); err != nil {
		return apperr.Internal(err)
	}
	h.afterWrite(ctx, uid, activity.Entry{Action: activity.NoteCreated, ResourceType: "note", ResourceID: n.ID,
		Metadata: map[string]any{"type": n.Type, "starred": n.Starred, "tagCount": len(n.Tags)},
		IPAddress: c.RealIP(), UserAgent: c.Request().UserAgent()})

	n.Preview = utils.Preview(n.Content, utils.PreviewLength)
	return response.Created(c, echo.Map{"note": n})
}

func (h *NotesHandler) Get(c echo.Context) error {
	uid, err := mustUser(c)
	if err != nil {
		return err
	}
	id, err := noteID(c)
	if err != nil {
		return err
	}
	ctx, cancel := reqCtx(c)
	defer cancel()
	n, err := h.Notes.Get(ctx, uid, id)
	if err != nil {
		return noteErr(err)
	}
	n.Preview = utils.Preview(n.Content, utils.PreviewLength)
	return response.OK(c, echo.Map{"note": n})
}

// Update applies a partial update; absent fields keep their values.
func (h *NotesHandler) Update(c echo.Context) error {
	uid, err := mustUser(c)
	if err != nil {
		return err
	}
	id, err := noteID(c)
	if err != nil {
		return err
	}
	var req updateNoteReq
	if err := c.Bind(&req); err != nil {
		return apperr.Validation("INVALID_JSON", "Invalid request body").With(err)
	}

	p := model.NotePatch{Starred: req.Starred, Metadata: req.Metadata}
	if req.Title != nil {
		t := utils.Truncate(*req.Title, maxTitleLen)
		if t == "" {
			return apperr.Validation("INVALID_TITLE", "title must not be empty")
		}
		p.Title = &t
	}
	if req.Content != nil {
		s := utils.SanitizeHTML(*req.Content)
		p.Content = &s
	}
	if req.Type != nil {
		if err := validType(*req.Type); err != nil {
			return err
		}
		p.Type = req.Type
	}
	if req.Tags != nil {
		tags := cleanTags(*req.Tags)
		p.Tags = &tags
	}
	if p.Metadata != nil && !json.Valid(*p.Metadata) {
		return apperr.Validation("INVALID_METADATA", "metadata must be valid JSON")
	}
	if p.Empty() {
		return apperr.ErrNoUpdates
	}

	ctx, cancel := reqCtx(c)
	defer cancel()
	n, err := h.Notes.Update(ctx, uid, id, p)
	if err != nil {
		return noteErr(err)
	}
	h.afterWrite(ctx, uid, activity.Entry{Action: activity.NoteUpdated, ResourceType: "note", ResourceID: id,
		IPAddress: c.RealIP(), UserAgent: c.Request().UserAgent()})
	n.Preview = utils.Preview(n.Content, utils.PreviewLength)
	return response.OK(c, echo.Map{"note": n})
}

// Delete soft-deletes the note.
func (h *NotesHandler) Delete(c echo.Context) error {
	uid, err := mustUser(c)
	if err != nil {
		return err
	}
	id, err := noteID(c)
	if err != nil {
		return err
	}
	ctx, cancel := reqCtx(c)
	defer cancel()
	if err := h.Notes.SoftDelete(ctx, uid, id); err != nil {
		return noteErr(err)
	}
	h.afterWrite(ctx, uid, activity.Entry{Action: activity.NoteDeleted, ResourceType: "note", ResourceID: id,
		IPAddress: c.RealIP(), UserAgent: c.Request().UserAgent()})
	return response.OK(c, echo.Map{"message": "Note deleted successfully", "id": id})
}

// Search runs a full-text search over title and content.
func (h *NotesHandler) Search(c echo.Context) error {
	uid, err := mustUser(c)
	if err != nil {
		return err
	}
	q := utils.Truncate(c.QueryParam("q"), 100)
	if q == "" {
		return apperr.Validation("MISSING_QUERY", "Search query is required")
	}
	limit := queryInt(c, "limit", defaultSearch, 1, maxSearch)

	ctx, cancel := reqCtx(c)
	defer cancel()
	notes, err := h.Notes.Search(ctx, uid, q, limit)
	if err != nil {
		return apperr.Internal(err)
	}
	return response.OK(c, echo.Map{"notes": withPreview(notes), "query": q, "count": len(notes)})
}

// BulkUpdate sets starred and/or tags on several notes at once.
func (h *NotesHandler) BulkUpdate(c echo.Context) error {
	uid, err := mustUser(c)
	if err != nil {
		return err
	}
	var req bulkUpdateReq
	if err := bindValid(c, &req); err != nil {
		return err
	}
	if req.Updates.Starred == nil && req.Updates.Tags == nil {
		return apperr.ErrNoUpdates
	}
	var tags *[]string
	if req.Updates.Tags != nil {
		t := cleanTags(*req.Updates.Tags)
		tags = &t
	}

	ctx, cancel := reqCtx(c)
	defer cancel()
	n, err := h.Notes.BulkUpdate(ctx, uid, req.NoteIDs, req.Updates.Starred, tags)
	if err != nil {
		return apperr.Internal(err)
	}
	h.afterWrite(ctx, uid, activity.Entry{Action: activity.NotesBulkUpdated, ResourceType: "note",
		Metadata: map[string]any{"noteCount": len(req.NoteIDs), "updated": n},
		IPAddress: c.RealIP(), UserAgent: c.Request().UserAgent()})
	return response.OK(c, echo.Map{"updated": n})
}

func (h *NotesHandler) Stats(c echo.Context) error {
	uid, err := mustUser(c)
	if err != nil {
		return err
	}
	ctx, cancel := reqCtx(c)
	defer cancel()
	s, err := h.Notes.Stats(ctx, uid)
	if err != nil {
		return apperr.Internal(err)
	}
	return response.OK(c, echo.Map{"stats": s})
}
