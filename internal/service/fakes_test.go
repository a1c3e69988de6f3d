package service

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/Aeroer-Live/Note.Lab/internal/model"
	"github.com/Aeroer-Live/Note.Lab/internal/queue"
	"github.com/Aeroer-Live/Note.Lab/internal/repository"
)

// --- in-memory stores ---

type memUsers struct {
	mu       sync.Mutex
	byID     map[string]model.User
	existErr error
	// raceOnCreate makes Create report a duplicate as if another request won.
	raceOnCreate bool
}

func newMemUsers() *memUsers { return &memUsers{byID: map[string]model.User{}} }

func (m *memUsers) Create(_ context.Context, u model.User) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.raceOnCreate {
		return repository.ErrEmailExists
	}
	for _, x := range m.byID {
		if x.Email == u.Email {
			return repository.ErrEmailExists
		}
	}
	m.byID[u.ID] = u
	return nil
}

func (m *memUsers) EmailExists(_ context.Context, email string) (bool, error) {
	if m.existErr != nil {
		return false, m.existErr
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, x := range m.byID {
		if x.Email == email {
			return true, nil
		}
	}
	return false, nil
}

func (m *memUsers) GetByEmail(_ context.Context, email string) (model.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, x := range m.byID {
		if x.Email == email {
			return x, nil
		}
	}
	return model.User{}, repository.ErrNotFound
}

func (m *memUsers) GetByID(_ context.Context, id string) (model.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	u, ok := m.byID[id]
	if !ok {
		return model.User{}, repository.ErrNotFound
	}
	return u, nil
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

func (m *memUsers) TouchLogin(_ context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	u, ok := m.byID[id]
	if !ok {
		return repository.ErrNotFound
	}
	now := time.Now().UTC()
	u.LastLoginAt = &now
	m.byID[id] = u
	return nil
}

type memSessions struct {
	mu   sync.Mutex
	rows map[string]model.Session // by id
}

func newMemSessions() *memSessions { return &memSessions{rows: map[string]model.Session{}} }

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
	for id, s := range m.rows {
		if s.TokenHash == hash && s.IsActive && time.Now().Before(s.ExpiresAt) {
			s.LastUsedAt = time.Now().UTC()
			m.rows[id] = s
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

func (m *memSessions) active(userID string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := 0
	for _, s := range m.rows {
		if s.UserID == userID && s.IsActive {
			n++
		}
	}
	return n
}

// --- collaborators ---

type recordingNotifier struct {
	mu     sync.Mutex
	events []queue.EmailEvent
	err    error
}

func (n *recordingNotifier) Send(_ context.Context, ev queue.EmailEvent) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.events = append(n.events, ev)
	return n.err
}

func (n *recordingNotifier) last() queue.EmailEvent {
	n.mu.Lock()
	defer n.mu.Unlock()
	if len(n.events) == 0 {
		return queue.EmailEvent{}
	}
	return n.events[len(n.events)-1]
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

var errBoom = errors.New("boom")
