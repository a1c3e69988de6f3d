package router

import (
	"context"
	"sync"
	"time"

	"github.com/Aeroer-Live/Note.Lab/internal/handler"
	"github.com/Aeroer-Live/Note.Lab/internal/model"
	"github.com/Aeroer-Live/Note.Lab/internal/queue"
	"github.com/Aeroer-Live/Note.Lab/internal/repository"
)

type memUsers struct {
	mu   sync.Mutex
	byID map[string]model.User
}

func (m *memUsers) find(match func(model.User) bool) (model.User, error) {
	for _, u := range m.byID {
		if match(u) {
			return u, nil
		}
	}
	return model.User{}, repository.ErrNotFound
}

func (m *memUsers) Create(_ context.Context, u model.User) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, err := m.find(func(x model.User) bool { return x.Email == u.Email }); err == nil {
		return repository.ErrEmailExists
	}
	m.byID[u.ID] = u
	return nil
}

func (m *memUsers) EmailExists(_ context.Context, email string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, err := m.find(func(x model.User) bool { return x.Email == email })
	return err == nil, nil
}

func (m *memUsers) GetByEmail(_ context.Context, email string) (model.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.find(func(x model.User) bool { return x.Email == email })
}

func (m *memUsers) GetByID(_ context.Context, id string) (model.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.find(func(x model.User) bool { return x.ID == id })
}

func (m *memUsers) UpdatePassword(_ context.Context, id, hash string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	u, ok := m.byID[id]
	if !ok {
		return repository.ErrNotFound
	}
	u.PasswordHash = hash
	m.byID[id] = u
	return nil
}

func (m *memUsers) UpdateProfile(_ context.Context, id string, name *string) (model.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	u, ok := m.byID[id]
	if !ok {
		return model.User{}, repository.ErrNotFound
	}
	if name != nil {
		u.Name = *name
	}
	m.byID[id] = u
	return u, nil
}

func (m *memUsers) TouchLogin(context.Context, string) error { return nil }

type memSessions struct {
	mu   sync.Mutex
	rows map[string]model.Session
}

func (m *memSessions) Create(_ context.Context, s model.Session) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	s.IsActive = true
	m.rows[s.ID] = s
	return nil
}

func (m *memSessions) Validate(_ context.Context, hash string) (model.Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, s := range m.rows {
		if s.TokenHash == hash && s.IsActive && time.Now().Before(s.ExpiresAt) {
			return s, nil
		}
	}
	return model.Session{}, repository.ErrNotFound
}

func (m *memSessions) Invalidate(_ context.Context, userID, sessionID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.rows[sessionID]
	if !ok || s.UserID != userID {
		return repository.ErrNotFound
	}
	s.IsActive = false
	m.rows[sessionID] = s
	return nil
}

func (m *memSessions) InvalidateAll(_ context.Context, userID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for id, s := range m.rows {
		if s.UserID == userID {
			s.IsActive = false
			m.rows[id] = s
		}
	}
	return nil
}

// outbox records notifications instead of publishing them.
type outbox struct {
	mu     sync.Mutex
	events []queue.EmailEvent
}

func (o *outbox) Send(_ context.Context, ev queue.EmailEvent) error {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.events = append(o.events, ev)
	return nil
}

func (o *outbox) last() queue.EmailEvent {
	o.mu.Lock()
	defer o.mu.Unlock()
	if len(o.events) == 0 {
		return queue.EmailEvent{}
	}
	return o.events[len(o.events)-1]
}

// statsNotes implements the slice of handler.NoteStore the routing tests
// reach; any other call panics through the nil embedded interface.
type statsNotes struct {
	handler.NoteStore
	mu    sync.Mutex
	stats int
}

func (s *statsNotes) Stats(context.Context, string) (model.NoteStats, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.stats++
	return model.NoteStats{TotalNotes: s.stats, TopTags: []model.TagCount{}}, nil
}

func (s *statsNotes) BulkUpdate(_ context.Context, _ string, ids []string, _ *bool, _ *[]string) (int64, error) {
	return int64(len(ids)), nil
}

func (s *statsNotes) calls() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.stats
}
