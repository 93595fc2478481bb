package sqlite

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/greasemonkey/backend/internal/storage/models"
)

func newTestClient(t *testing.T) *Client {
	t.Helper()
	c, err := NewClient(filepath.Join(t.TempDir(), "greasemonkey.db"))
	require.NoError(t, err)
	require.NoError(t, c.InitSchema())
	t.Cleanup(func() { c.Close() })
	return c
}

func TestDocuments_InsertGetList(t *testing.T) {
	c := newTestClient(t)
	ctx := context.Background()
	now := time.Now()

	docs := []*models.Document{
		{ID: "doc-1", UserID: "u1", Title: "Civic manual", VehicleMake: "Honda", VehicleModel: "Civic", VehicleYear: 2015,
			ExtractedText: "Brake fluid: DOT 3.", CreatedAt: now, UpdatedAt: now},
		{ID: "doc-2", UserID: "u1", Title: "Notes", ExtractedText: "", CreatedAt: now.Add(time.Second), UpdatedAt: now},
		{ID: "doc-3", UserID: "u2", Title: "Other user", ExtractedText: "x", CreatedAt: now, UpdatedAt: now},
	}
	for _, d := range docs {
		require.NoError(t, c.InsertDocument(ctx, d))
	}

	got, err := c.GetDocument(ctx, "doc-1")
	require.NoError(t, err)
	assert.Equal(t, "Honda", got.VehicleMake)
	assert.Equal(t, 2015, got.VehicleYear)
	assert.Equal(t, now.UnixMilli(), got.CreatedAt.UnixMilli())

	list, err := c.ListDocuments(ctx, "u1")
	require.NoError(t, err)
	require.Len(t, list, 2)
	assert.Equal(t, "doc-1", list[0].ID)
	assert.Equal(t, "doc-2", list[1].ID)
	assert.Empty(t, list[1].VehicleMake)

	empty, err := c.ListDocuments(ctx, "nobody")
	require.NoError(t, err)
	assert.NotNil(t, empty)
	assert.Empty(t, empty)
}

func TestDocuments_UpsertAndDelete(t *testing.T) {
	c := newTestClient(t)
	ctx := context.Background()
	now := time.Now()

	doc := &models.Document{ID: "doc-1", UserID: "u1", Title: "v1", ExtractedText: "a", CreatedAt: now, UpdatedAt: now}
	require.NoError(t, c.InsertDocument(ctx, doc))

	doc.Title = "v2"
	require.NoError(t, c.InsertDocument(ctx, doc))

	got, err := c.GetDocument(ctx, "doc-1")
	require.NoError(t, err)
	assert.Equal(t, "v2", got.Title)

	assert.ErrorIs(t, c.DeleteDocument(ctx, "u2", "doc-1"), ErrNotFound)
	require.NoError(t, c.DeleteDocument(ctx, "u1", "doc-1"))

	_, err = c.GetDocument(ctx, "doc-1")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestAnswerHistory(t *testing.T) {
	c := newTestClient(t)
	ctx := context.Background()
	base := time.Now()

	first := &models.AnswerRecord{
		ID: "a1", UserID: "u1", QueryText: "brake fluid?", VehicleMake: "Honda", VehicleModel: "Civic", VehicleYear: 2015,
		Answer: "DOT 3", Confidence: 0.9, ConsistencyScore: 0.95,
		AccuracyIndicators: []string{"cited_documents", "consistent_responses"},
		UsedDocuments:      true, SampleCount: 3, LatencyMS: 1200, CreatedAt: base,
		Sources: []models.AnswerSource{
			{DocumentID: "doc-1", Title: "Civic manual", RelevanceScore: 0.8},
			{DocumentID: "doc-2", Title: "Notes", RelevanceScore: 0.3},
		},
	}
	second := &models.AnswerRecord{
		ID: "a2", UserID: "u1", QueryText: "oil?", Answer: "5W-30", Confidence: 0.6, ConsistencyScore: 0.5,
		AccuracyIndicators: []string{}, SampleCount: 2, CreatedAt: base.Add(time.Minute),
	}
	require.NoError(t, c.InsertAnswerRecord(ctx, first))
	require.NoError(t, c.InsertAnswerRecord(ctx, second))

	history, err := c.GetAnswerHistory(ctx, "u1", 10)
	require.NoError(t, err)
	require.Len(t, history, 2)

	assert.Equal(t, "a2", history[0].ID, "newest first")
	assert.False(t, history[0].UsedDocuments)
	assert.Empty(t, history[0].Sources)

	got := history[1]
	assert.Equal(t, "u1", got.UserID)
	assert.Equal(t, 2015, got.VehicleYear)
	assert.True(t, got.UsedDocuments)
	assert.Equal(t, []string{"cited_documents", "consistent_responses"}, got.AccuracyIndicators)
	require.Len(t, got.Sources, 2)
	assert.Equal(t, "doc-1", got.Sources[0].DocumentID)
	assert.Equal(t, "a1", got.Sources[0].AnswerID)

	limited, err := c.GetAnswerHistory(ctx, "u1", 1)
	require.NoError(t, err)
	require.Len(t, limited, 1)
	assert.Equal(t, "a2", limited[0].ID)
}

func TestStoreFeedback(t *testing.T) {
	c := newTestClient(t)
	ctx := context.Background()

	require.NoError(t, c.InsertAnswerRecord(ctx, &models.AnswerRecord{
		ID: "a1", UserID: "u1", QueryText: "q", Answer: "a", CreatedAt: time.Now(),
	}))

	require.NoError(t, c.StoreFeedback(ctx, &models.Feedback{AnswerID: "a1", Helpful: true, Comment: "spot on"}))
	assert.Error(t, c.StoreFeedback(ctx, &models.Feedback{AnswerID: "missing"}), "foreign key enforced")
}
