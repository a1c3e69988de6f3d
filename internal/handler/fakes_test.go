package handler

import (
	"context"
	"sort"
	"strings"
	"sync"

	"github.com/Aeroer-Live/Note.Lab/internal/model"
	"github.com/Aeroer-Live/Note.Lab/internal/repository"
)

// memNotes is an in-memory NoteStore keyed by note id.
type memNotes struct {
	mu         sync.Mutex
	rows       map[string]model.Note
	deleted    map[string]bool
	lastFilter model.NoteFilter
	lastLimit  int
	err        error
}

func newMemNotes() *memNotes {
	return &memNotes{rows: map[string]model.Note{}, deleted: map[string]bool{}}
}

func (m *memNotes) live(userID, id string) (model.Note, bool) {
	n, ok := m.rows[id]
	if !ok || n.UserID != userID || m.deleted[id] {
		return model.Note{}, false
	}
	return n, true
}

func (m *memNotes) Create(_ context.Context, n model.Note) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return m.err
	}
	m.rows[n.ID] = n
	return nil
}

func (m *memNotes) Get(_ context.Context, userID, id string) (model.Note, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	n, ok := m.live(userID, id)
	if !ok {
		return model.Note{}, repository.ErrNotFound
	}
	return n, nil
}

func (m *memNotes) Exists(_ context.Context, userID, id string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.live(userID, id)
	return ok, nil
}

func (m *memNotes) List(_ context.Context, f model.NoteFilter) ([]model.Note, int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.lastFilter = f
	if m.err != nil {
		return nil, 0, m.err
	}
	var all []model.Note
	for id := range m.rows {
		if n, ok := m.live(f.UserID, id); ok {
			all = append(all, n)
		}
	}
	sort.Slice(all, func(i, j int) bool { return all[i].Title < all[j].Title })
	total := len(all)
	if f.Offset >= total {
		return []model.Note{}, total, nil
	}
	end := f.Offset + f.Limit
	if end > total {
		end = total
	}
	return all[f.Offset:end], total, nil
}

func (m *memNotes) Search(_ context.Context, userID, query string, limit int) ([]model.Note, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.lastLimit = limit
	out := []model.Note{}
	for id := range m.rows {
		n, ok := m.live(userID, id)
		if ok && strings.Contains(strings.ToLower(n.Title+" "+n.Content), strings.ToLower(query)) {
			out = append(out, n)
		}
	}
	return out, nil
}

func (m *memNotes) Update(_ context.Context, userID, id string, p model.NotePatch) (model.Note, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	n, ok := m.live(userID, id)
	if !ok {
		return model.Note{}, repository.ErrNotFound
	}
	if p.Title != nil {
		n.Title = *p.Title
	}
	if p.Content != nil {
		n.Content = *p.Content
	}
	if p.Type != nil {
		n.Type = *p.Type
	}
	if p.Starred != nil {
		n.Starred = *p.Starred
	}
	if p.Tags != nil {
		n.Tags = *p.Tags
	}
	if p.Metadata != nil {
		n.Metadata = *p.Metadata
	}
	m.rows[id] = n
	return n, nil
}

func (m *memNotes) SoftDelete(_ context.Context, userID, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.live(userID, id); !ok {
		return repository.ErrNotFound
	}
	m.deleted[id] = true
	return nil
}

func (m *memNotes) BulkUpdate(_ context.Context, userID string, ids []string, starred *bool, tags *[]string) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var n int64
	for _, id := range ids {
		note, ok := m.live(userID, id)
		if !ok {
			continue
		}
		if starred != nil {
			note.Starred = *starred
		}
		if tags != nil {
			note.Tags = *tags
		}
		m.rows[id] = note
		n++
	}
	return n, nil
}

func (m *memNotes) Stats(_ context.Context, userID string) (model.NoteStats, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s := model.NoteStats{TopTags: []model.TagCount{}}
	for id := range m.rows {
		n, ok := m.live(userID, id)
		if !ok {
			continue
		}
		s.TotalNotes++
		if n.Starred {
			s.StarredNotes++
		}
	}
	return s, nil
}

func (m *memNotes) get(id string) model.Note {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.rows[id]
}

// memCategories is an in-memory CategoryStore.
type memCategories struct {
	mu       sync.Mutex
	rows     map[string]model.Category
	assigned map[string][]string // note id -> category ids
}

func newMemCategories() *memCategories {
	return &memCategories{rows: map[string]model.Category{}, assigned: map[string][]string{}}
}

func (m *memCategories) nameTaken(userID, name, except string) bool {
	for id, c := range m.rows {
		if id != except && c.UserID == userID && c.Name == name {
			return true
		}
	}
	return false
}

func (m *memCategories) List(_ context.Context, userID string) ([]model.Category, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []model.Category
	for _, c := range m.rows {
		if c.UserID == userID {
			out = append(out, c)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

func (m *memCategories) Create(_ context.Context, c model.Category) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.nameTaken(c.UserID, c.Name, "") {
		return repository.ErrDuplicateName
	}
	m.rows[c.ID] = c
	return nil
}

func (m *memCategories) Update(_ context.Context, userID, id string, p model.CategoryPatch) (model.Category, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	c, ok := m.rows[id]
	if !ok || c.UserID != userID {
		return model.Category{}, repository.ErrNotFound
	}
	if p.Name != nil {
		if m.nameTaken(userID, *p.Name, id) {
			return model.Category{}, repository.ErrDuplicateName
		}
		c.Name = *p.Name
	}
	if p.Color != nil {
		c.Color = *p.Color
	}
	if p.Icon != nil {
		c.Icon = *p.Icon
	}
	if p.SortOrder != nil {
		c.SortOrder = *p.SortOrder
	}
	m.rows[id] = c
	return c, nil
}

func (m *memCategories) Delete(_ context.Context, userID, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	c, ok := m.rows[id]
	if !ok || c.UserID != userID {
		return repository.ErrNotFound
	}
	for _, ids := range m.assigned {
		for _, cid := range ids {
			if cid == id {
				return repository.ErrConflict
			}
		}
	}
	delete(m.rows, id)
	return nil
}

func (m *memCategories) OwnedCount(_ context.Context, userID string, ids []string) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := 0
	for _, id := range ids {
		if c, ok := m.rows[id]; ok && c.UserID == userID {
			n++
		}
	}
	return n, nil
}

func (m *memCategories) Assign(_ context.Context, noteID string, categoryIDs []string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.assigned[noteID] = append([]string(nil), categoryIDs...)
	return nil
}

func (m *memCategories) ForNote(_ context.Context, userID, noteID string) ([]model.Category, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []model.Category
	for _, id := range m.assigned[noteID] {
		if c, ok := m.rows[id]; ok && c.UserID == userID {
			out = append(out, c)
		}
	}
	return out, nil
}

// countingCache records invalidations per user.
type countingCache struct {
	mu    sync.Mutex
	calls map[string]int
}

func (c *countingCache) Invalidate(_ context.Context, userID string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.calls == nil {
		c.calls = map[string]int{}
	}
	c.calls[userID]++
	return nil
}

func (c *countingCache) count(userID string) int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.calls[userID]
}

type memActivity struct {
	mu      sync.Mutex
	actions []string
}

func (m *memActivity) Insert(_ context.Context, a model.ActivityLog) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.actions = append(m.actions, a.Action)
	return nil
}

func (m *memActivity) list() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]string(nil), m.actions...)
}
