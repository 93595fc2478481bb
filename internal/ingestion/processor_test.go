package ingestion

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/greasemonkey/backend/internal/storage/models"
)

type fakeWriter struct {
	docs []*models.Document
	err  error
}

func (f *fakeWriter) InsertDocument(_ context.Context, doc *models.Document) error {
	if f.err != nil {
		return f.err
	}
	f.docs = append(f.docs, doc)
	return nil
}

type fakeInvalidator struct {
	users []string
}

func (f *fakeInvalidator) InvalidateUser(_ context.Context, userID string) error {
	f.users = append(f.users, userID)
	return nil
}

func TestProcessDocument_PlainText(t *testing.T) {
	db := &fakeWriter{}
	cache := &fakeInvalidator{}
	p := NewProcessor(db, cache, 1024)

	doc, err := p.ProcessDocument(context.Background(), Request{
		UserID:      "u1",
		Content:     "Honda Civic Service Notes\nBrake fluid: DOT 3.",
		VehicleYear: 2015,
	})
	require.NoError(t, err)

	assert.NotEmpty(t, doc.ID)
	assert.Equal(t, "Honda Civic Service Notes", doc.Title)
	assert.Equal(t, "Honda", doc.VehicleMake)
	assert.Equal(t, 2015, doc.VehicleYear)
	require.Len(t, db.docs, 1)
	assert.Equal(t, []string{"u1"}, cache.users)
}

func TestProcessDocument_HTML(t *testing.T) {
	db := &fakeWriter{}
	p := NewProcessor(db, nil, 0)

	html := `<html><head><title>Oil Change Procedure</title><script>track()</script></head>
<body><nav>Home</nav><p>Drain the oil.</p><p>Replace the filter.</p></body></html>`

	doc, err := p.ProcessDocument(context.Background(), Request{UserID: "u1", VehicleMake: "Toyota", Content: html})
	require.NoError(t, err)

	assert.Equal(t, "Oil Change Procedure", doc.Title)
	assert.Equal(t, "Toyota", doc.VehicleMake)
	assert.Contains(t, doc.ExtractedText, "Drain the oil.")
	assert.NotContains(t, doc.ExtractedText, "track()")
	assert.NotContains(t, doc.ExtractedText, "<p>")
}

func TestProcessDocument_Rejects(t *testing.T) {
	p := NewProcessor(&fakeWriter{}, nil, 10)

	_, err := p.ProcessDocument(context.Background(), Request{UserID: "u1", Content: strings.Repeat("x", 11)})
	assert.ErrorIs(t, err, ErrDocumentTooLarge)

	_, err = p.ProcessDocument(context.Background(), Request{UserID: "u1", Content: "   "})
	assert.ErrorIs(t, err, ErrEmptyDocument)
}

func TestProcessDocument_StoreError(t *testing.T) {
	boom := errors.New("disk full")
	p := NewProcessor(&fakeWriter{err: boom}, nil, 0)

	_, err := p.ProcessDocument(context.Background(), Request{UserID: "u1", Title: "t", Content: "text"})
	assert.ErrorIs(t, err, boom)
}

func TestInferVehicleMake(t *testing.T) {
	assert.Equal(t, "Chevrolet", inferVehicleMake("2012 Chevy Silverado towing guide"))
	assert.Equal(t, "Mercedes-Benz", inferVehicleMake("Mercedes-Benz C300"))
	assert.Empty(t, inferVehicleMake("generic torque chart"))
}
