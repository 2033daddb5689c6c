package service

import (
	"context"
	"encoding/base64"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"autocare/internal/config"
	"autocare/internal/models"
	"autocare/internal/queue"
	"autocare/internal/repository"
	"autocare/internal/security"
)

var pngBytes = append([]byte{0x89, 'P', 'N', 'G', '\r', '\n', 0x1a, '\n'}, []byte("rest of the image")...)

type diagFixture struct {
	svc   *DiagnosticsService
	store *memDiagnostics
	media *memMedia
	queue *memQueue
}

func newDiagFixture() diagFixture {
	f := diagFixture{store: &memDiagnostics{}, media: &memMedia{}, queue: &memQueue{}}
	cfg := &config.AppConfig{
		Security:    config.SecurityConfig{SignatureSecret: "sig"},
		Diagnostics: config.DiagnosticsConfig{MaxMediaSize: 1024},
	}
	vehicles := &memVehicles{rows: []models.Vehicle{{ID: 1, OwnerID: "u1"}}}
	f.svc = NewDiagnosticsService(f.store, vehicles, f.media, f.queue, cfg, zerolog.Nop())
	f.svc.now = func() time.Time { return time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC) }
	return f
}

func TestSubmit_Text(t *testing.T) {
	f := newDiagFixture()
	text := "  brakes squeal  "

	d, err := f.svc.Submit(context.Background(), ana, models.DiagnosticRequest{ChatID: "c1", Input: models.DiagnosticInput{Text: &text}})
	require.NoError(t, err)
	assert.Equal(t, models.DiagnosticDone, d.Status)
	require.Len(t, d.Result, 2)
	assert.Equal(t, 85, d.Result[0].Confidence)
	require.NotNil(t, d.Input.Text)
	assert.Equal(t, "brakes squeal", *d.Input.Text)
	assert.Empty(t, f.queue.tasks)
}

func TestSubmit_EmptyText(t *testing.T) {
	f := newDiagFixture()
	blank := " "

	_, err := f.svc.Submit(context.Background(), ana, models.DiagnosticRequest{Input: models.DiagnosticInput{Text: &blank}})
	assert.ErrorIs(t, err, ErrEmptyInput)
	_, err = f.svc.Submit(context.Background(), ana, models.DiagnosticRequest{})
	assert.ErrorIs(t, err, ErrEmptyInput)
}

func TestSubmit_Media(t *testing.T) {
	f := newDiagFixture()

	d, err := f.svc.Submit(context.Background(), ana, models.DiagnosticRequest{
		Input: models.DiagnosticInput{
			MediaBase64: base64.StdEncoding.EncodeToString(pngBytes),
			MediaType:   "image",
			MIME:        "image/png",
			Name:        "upload_1.png",
		},
	})
	require.NoError(t, err)
	assert.Equal(t, models.DiagnosticPending, d.Status)
	assert.Empty(t, d.Result)
	assert.Equal(t, "image/png", d.Input.MIME)
	assert.Equal(t, "upload_1.png", d.Input.Name)
	assert.Empty(t, d.Input.MediaBase64)
	assert.True(t, strings.HasPrefix(d.Input.ObjectKey, "u1/2026/03/01/"))
	assert.True(t, security.VerifyResource("sig", d.Signature, d.ID, d.Input.ObjectKey))

	assert.Equal(t, pngBytes, f.media.objects[d.Input.ObjectKey])
	assert.Equal(t, "image/png", f.media.types[d.Input.ObjectKey])
	require.Len(t, f.queue.tasks, 1)
	assert.Equal(t, queue.DiagnoseTask(d.ID), f.queue.tasks[0])
}

func TestSubmit_MediaRejections(t *testing.T) {
	big := make([]byte, 2048)
	copy(big, pngBytes)

	tests := []struct {
		name string
		in   models.DiagnosticInput
		want error
	}{
		{name: "mime mismatch", in: models.DiagnosticInput{MediaBase64: base64.StdEncoding.EncodeToString(pngBytes), MIME: "image/jpeg"}, want: ErrMIMEMismatch},
		{name: "kind mismatch", in: models.DiagnosticInput{MediaBase64: base64.StdEncoding.EncodeToString(pngBytes), MediaType: "video"}, want: ErrMIMEMismatch},
		{name: "too large", in: models.DiagnosticInput{MediaBase64: base64.StdEncoding.EncodeToString(big)}, want: ErrMediaTooLarge},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newDiagFixture()
			_, err := f.svc.Submit(context.Background(), ana, models.DiagnosticRequest{Input: tt.in})
			assert.ErrorIs(t, err, tt.want)
			assert.Empty(t, f.media.objects)
			assert.Empty(t, f.queue.tasks)
		})
	}

	f := newDiagFixture()
	_, err := f.svc.Submit(context.Background(), ana, models.DiagnosticRequest{Input: models.DiagnosticInput{MediaBase64: "!!!"}})
	var verr *ValidationError
	assert.ErrorAs(t, err, &verr)
}

func TestSubmit_EnqueueFailureStillSaves(t *testing.T) {
	f := newDiagFixture()
	f.queue.err = errors.New("redis down")

	d, err := f.svc.Submit(context.Background(), ana, models.DiagnosticRequest{
		Input: models.DiagnosticInput{MediaBase64: "data:image/png;base64," + base64.StdEncoding.EncodeToString(pngBytes)},
	})
	require.NoError(t, err)
	_, ok := f.store.rows[d.ID]
	assert.True(t, ok)
}

func TestSubmit_ForeignVehicle(t *testing.T) {
	f := newDiagFixture()
	text := "noise"
	vehicle := int64(9)

	_, err := f.svc.Submit(context.Background(), ana, models.DiagnosticRequest{VehicleID: &vehicle, Input: models.DiagnosticInput{Text: &text}})
	assert.ErrorIs(t, err, ErrUnknownVehicle)
}

func TestGet_OwnerOnly(t *testing.T) {
	f := newDiagFixture()
	text := "noise"
	d, err := f.svc.Submit(context.Background(), ana, models.DiagnosticRequest{Input: models.DiagnosticInput{Text: &text}})
	require.NoError(t, err)

	got, err := f.svc.Get(context.Background(), ana, d.ID)
	require.NoError(t, err)
	assert.Equal(t, d.ID, got.ID)

	_, err = f.svc.Get(context.Background(), models.User{ID: "u2"}, d.ID)
	assert.ErrorIs(t, err, repository.ErrDiagnosticNotFound)
}
