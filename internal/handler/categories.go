package handler

import (
	"context"
	"errors"
	"regexp"
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

const (
	maxCategoryName = 100
	maxIconLen      = 10
)

var colorRe = regexp.MustCompile(`^#[0-9A-Fa-f]{6}$`)

// CategoryStore is the category persistence used by CategoriesHandler.
type CategoryStore interface {
	List(ctx context.Context, userID string) ([]model.Category, error)
	Create(ctx context.Context, c model.Category) error
	Update(ctx context.Context, userID, id string, p model.CategoryPatch) (model.Category, error)
	Delete(ctx context.Context, userID, id string) error
	OwnedCount(ctx context.Context, userID string, ids []string) (int, error)
	Assign(ctx context.Context, noteID string, categoryIDs []string) error
	ForNote(ctx context.Context, userID, noteID string) ([]model.Category, error)
}

// NoteChecker answers whether a note belongs to a user.
type NoteChecker interface {
	Exists(ctx context.Context, userID, id string) (bool, error)
}

type CategoriesHandler struct {
	Categories CategoryStore
	Notes      NoteChecker
	Activity   *activity.Recorder
	Cache      CacheInvalidator
	Log        *zap.Logger
}

func NewCategoriesHandler(cats CategoryStore, notes NoteChecker, rec *activity.Recorder, cache CacheInvalidator, log *zap.Logger) *CategoriesHandler {
	if log == nil {
		log = zap.NewNop()
	}
	return &CategoriesHandler{Categories: cats, Notes: notes, Activity: rec, Cache: cache, Log: log}
}

type createCategoryReq struct {
	Name      string `json:"name" validate:"required"`
	Color     string `json:"color"`
	Icon      string `json:"icon"`
	SortOrder int    `json:"sortOrder"`
}

type updateCategoryReq struct {
	Name      *string `json:"name"`
	Color     *string `json:"color"`
	Icon      *string `json:"icon"`
	SortOrder *int    `json:"sortOrder"`
}

type assignReq struct {
	NoteID      string   `json:"noteId" validate:"required,uuid"`
	CategoryIDs []string `json:"categoryIds" validate:"max=50,dive,uuid"`
}

var (
	errCategoryNotFound = apperr.NotFound("CATEGORY_NOT_FOUND", "Category not found")
	errDuplicateName    = apperr.Conflict("DUPLICATE_NAME", "Category with this name already exists")
)

func categoryErr(err error) error {
	switch {
	case errors.Is(err, repository.ErrNotFound):
		return errCategoryNotFound
	case errors.Is(err, repository.ErrDuplicateName):
		return errDuplicateName
	case errors.Is(err, repository.ErrConflict):
		return apperr.Validation("CATEGORY_HAS_NOTES", "Cannot delete category that has notes assigned to it")
	}
	return apperr.From(err)
}

func categoryID(c echo.Context) (string, error) {
	id := c.Param("id")
	if _, err := uuid.Parse(id); err != nil {
		return "", apperr.Validation("INVALID_ID", "Invalid category ID")
	}
	return id, nil
}

// color returns s when it is a #RRGGBB value, the default otherwise.
func color(s string) string {
	if colorRe.MatchString(s) {
		return s
	}
	return model.DefaultCategoryColor
}

func (h *CategoriesHandler) afterWrite(ctx context.Context, c echo.Context, uid string, e activity.Entry) {
	if h.Cache != nil {
		if err := h.Cache.Invalidate(ctx, uid); err != nil {
			h.Log.Warn("cache invalidate failed", zap.String("user_id", uid), zap.Error(err))
		}
	}
	e.UserID = uid
	e.IPAddress = c.RealIP()
	e.UserAgent = c.Request().UserAgent()
	h.Activity.Record(ctx, e)
}

// List returns the caller's categories with live note counts.
func (h *CategoriesHandler) List(c echo.Context) error {
	uid, err := mustUser(c)
	if err != nil {
		return err
	}
	ctx, cancel := reqCtx(c)
	defer cancel()
	cats, err := h.Categories.List(ctx, uid)
	if err != nil {
		return apperr.Internal(err)
	}
	if cats == nil {
		cats = []model.Category{}
	}
	return response.OK(c, echo.Map{"categories": cats})
}

func (h *CategoriesHandler) Create(c echo.Context) error {
	uid, err := mustUser(c)
	if err != nil {
		return err
	}
	var req createCategoryReq
	if err := bindValid(c, &req); err != nil {
		return err
	}
	name := utils.Truncate(req.Name, maxCategoryName)
	if name == "" {
		return apperr.Validation("MISSING_FIELDS", "name is required")
	}
	now := time.Now().UTC()
	cat := model.Category{
		ID:        uuid.NewString(),
		UserID:    uid,
		Name:      name,
		Color:     color(req.Color),
		Icon:      utils.Truncate(req.Icon, maxIconLen),
		SortOrder: req.SortOrder,
		CreatedAt: now,
		UpdatedAt: now,
	}

	ctx, cancel := reqCtx(c)
	defer cancel()
	if err := h.Categories.Create(ctx, cat); err != nil {
		return categoryErr(err)
	}
	h.afterWrite(ctx, c, uid, activity.Entry{Action: activity.CategoryCreated, ResourceType: "category", ResourceID: cat.ID,
		Metadata: map[string]any{"name": cat.Name}})
	return response.Created(c, echo.Map{"category": cat})
}

func (h *CategoriesHandler) Update(c echo.Context) error {
	uid, err := mustUser(c)
	if err != nil {
		return err
	}
	id, err := categoryID(c)
	if err != nil {
		return err
	}
	var req updateCategoryReq
	if err := c.Bind(&req); err != nil {
		return apperr.Validation("INVALID_JSON", "Invalid request body").With(err)
	}

	p := model.CategoryPatch{SortOrder: req.SortOrder}
	if req.Name != nil {
		n := utils.Truncate(*req.Name, maxCategoryName)
		if n == "" {
			return apperr.Validation("INVALID_NAME", "name must not be empty")
		}
		p.Name = &n
	}
	if req.Color != nil {
		col := color(*req.Color)
		p.Color = &col
	}
	if req.Icon != nil {
		icon := utils.Truncate(*req.Icon, maxIconLen)
		p.Icon = &icon
	}
	if p.Empty() {
		return apperr.ErrNoUpdates
	}

	ctx, cancel := reqCtx(c)
	defer cancel()
	cat, err := h.Categories.Update(ctx, uid, id, p)
	if err != nil {
		return categoryErr(err)
	}
	h.afterWrite(ctx, c, uid, activity.Entry{Action: activity.CategoryUpdated, ResourceType: "category", ResourceID: id})
	return response.OK(c, echo.Map{"category": cat})
}

// Delete refuses while live notes are still assigned to the category.
func (h *CategoriesHandler) Delete(c echo.Context) error {
	uid, err := mustUser(c)
	if err != nil {
		return err
	}
	id, err := categoryID(c)
	if err != nil {
		return err
	}
	ctx, cancel := reqCtx(c)
	defer cancel()
	if err := h.Categories.Delete(ctx, uid, id); err != nil {
		return categoryErr(err)
	}
	h.afterWrite(ctx, c, uid, activity.Entry{Action: activity.CategoryDeleted, ResourceType: "category", ResourceID: id})
	return response.OK(c, echo.Map{"message": "Category deleted successfully", "id": id})
}

// Assign replaces the categories of a note.  Both the note and every
// category must belong to the caller.
func (h *CategoriesHandler) Assign(c echo.Context) error {
	uid, err := mustUser(c)
	if err != nil {
		return err
	}
	var req assignReq
	if err := bindValid(c, &req); err != nil {
		return err
	}
	ids := dedupe(req.CategoryIDs)

	ctx, cancel := reqCtx(c)
	defer cancel()
	ok, err := h.Notes.Exists(ctx, uid, req.NoteID)
	if err != nil {
		return apperr.Internal(err)
	}
	if !ok {
		return errNoteNotFound
	}
	if len(ids) > 0 {
		n, err := h.Categories.OwnedCount(ctx, uid, ids)
		if err != nil {
			return apperr.Internal(err)
		}
		if n != len(ids) {
			return apperr.Validation("INVALID_CATEGORIES", "One or more categories not found")
		}
	}
	if err := h.Categories.Assign(ctx, req.NoteID, ids); err != nil {
		return apperr.Internal(err)
	}
	h.afterWrite(ctx, c, uid, activity.Entry{Action: activity.CategoriesAssigned, ResourceType: "note", ResourceID: req.NoteID,
		Metadata: map[string]any{"categoryIds": ids}})
	return response.OK(c, echo.Map{"message": "Categories assigned successfully", "noteId": req.NoteID, "categoryIds": ids})
}

// ForNote lists the categories assigned to the note in :id.
func (h *CategoriesHandler) ForNote(c echo.Context) error {
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
	ok, err := h.Notes.Exists(ctx, uid, id)
	if err != nil {
		return apperr.Internal(err)
	}
	if !ok {
		return errNoteNotFound
	}
	cats, err := h.Categories.ForNote(ctx, uid, id)
	if err != nil {
		return apperr.Internal(err)
	}
	if cats == nil {
		cats = []model.Category{}
	}
	return response.OK(c, echo.Map{"categories": cats})
}

func dedupe(ids []string) []string {
	seen := make(map[string]struct{}, len(ids))
	out := make([]string, 0, len(ids))
	for _, id := range ids {
		if _, dup := seen[id]; dup {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	return out
}
