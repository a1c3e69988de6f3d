package activity

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"

	"github.com/Aeroer-Live/Note.Lab/internal/model"
)

type fakeWriter struct {
	got []model.ActivityLog
	err error
}

func (f *fakeWriter) Insert(_ context.Context, a model.ActivityLog) error {
	f.got = append(f.got, a)
	return f.err
}

func TestRecorder_Record(t *testing.T) {
	w := &fakeWriter{}
	r := NewRecorder(w, zap.NewNop())

	r.Record(context.Background(), Entry{UserID: "u1", Action: NoteCreated, ResourceType: "note", ResourceID: "n1"})

	if assert.Len(t, w.got, 1) {
		assert.Equal(t, NoteCreated, w.got[0].Action)
		assert.NotEmpty(t, w.got[0].ID)
		assert.False(t, w.got[0].CreatedAt.IsZero())
	}
}

func TestRecorder_FailureIsLoggedNotReturned(t *testing.T) {
	core, logs := observer.New(zap.WarnLevel)
	r := NewRecorder(&fakeWriter{err: errors.New("table missing")}, zap.New(core))

	r.Record(context.Background(), Entry{UserID: "u1", Action: UserLogin})

	assert.Equal(t, 1, logs.FilterMessage("activity log failed").Len())
}

func TestRecorder_Nil(t *testing.T) {
	var r *Recorder
	assert.NotPanics(t, func() { r.Record(context.Background(), Entry{Action: UserLogin}) })
}
