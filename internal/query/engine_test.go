package query

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/greasemonkey/backend/internal/evaluation"
	"github.com/greasemonkey/backend/internal/generation"
	"github.com/greasemonkey/backend/internal/relevance"
	"github.com/greasemonkey/backend/internal/storage/models"
)

type fakeDocs struct {
	docs []models.Document
	err  error
}

func (f *fakeDocs) ListDocuments(_ context.Context, _ string) ([]models.Document, error) {
	return f.docs, f.err
}

type fakeAnswers struct {
	records  []*models.AnswerRecord
	feedback []*models.Feedback
}

func (f *fakeAnswers) InsertAnswerRecord(_ context.Context, r *models.AnswerRecord) error {
	f.records = append(f.records, r)
	return nil
}

func (f *fakeAnswers) GetAnswerHistory(_ context.Context, _ string, limit int) ([]models.AnswerRecord, error) {
	out := []models.AnswerRecord{}
	for i := len(f.records) - 1; i >= 0 && len(out) < limit; i-- {
		out = append(out, *f.records[i])
	}
	return out, nil
}

func (f *fakeAnswers) StoreFeedback(_ context.Context, fb *models.Feedback) error {
	f.feedback = append(f.feedback, fb)
	return nil
}

type memoryCache struct {
	entries map[string][]byte
}

func (m *memoryCache) GetAnswer(_ context.Context, key string, answer interface{}) (bool, error) {
	data, ok := m.entries[key]
	if !ok {
		return false, nil
	}
	return true, json.Unmarshal(data, answer)
}

func (m *memoryCache) SetAnswer(_ context.Context, key string, answer interface{}) error {
	data, err := json.Marshal(answer)
	if err != nil {
		return err
	}
	m.entries[key] = data
	return nil
}

type fakeSampler struct {
	candidates []generation.Candidate
	err        error
	requests   []generation.Request
}

func (f *fakeSampler) Sample(_ context.Context, req generation.Request) ([]generation.Candidate, error) {
	f.requests = append(f.requests, req)
	return f.candidates, f.err
}

func newRanker(t *testing.T) *relevance.Engine {
	t.Helper()
	opts := relevance.DefaultOptions()
	opts.Extractor = nil
	r, err := relevance.NewEngine(nil, opts)
	require.NoError(t, err)
	return r
}

func storedDocs() []models.Document {
	return []models.Document{
		{ID: "d1", UserID: "u1", Title: "Civic brake service", VehicleMake: "Honda", VehicleModel: "Civic", VehicleYear: 2015,
			ExtractedText: "Use DOT 3 brake fluid. Bleed the brakes starting at the rear right wheel. Check the brake pads for wear."},
		{ID: "d2", UserID: "u1", Title: "Radio presets",
			ExtractedText: "Hold a preset button for two seconds to store a station."},
	}
}

func citedCandidates() []generation.Candidate {
	return []generation.Candidate{
		{Text: "Use DOT 3.", Confidence: 0.4, Temperature: 0.3},
		{Text: "According to the manual, use DOT 3 brake fluid.", Confidence: 0.9, CitedSources: true, Temperature: 0.7},
		{Text: "DOT 3 works.", Confidence: 0.4, Temperature: 0.3},
	}
}

func TestAsk_EndToEnd(t *testing.T) {
	answers := &fakeAnswers{}
	sampler := &fakeSampler{candidates: citedCandidates()}
	e := NewEngine(&fakeDocs{docs: storedDocs()}, answers, nil, newRanker(t), sampler, 3)

	vehicle := &relevance.VehicleContext{Make: "Honda", Model: "Civic", Year: 2015}
	resp, err := e.Ask(context.Background(), AskRequest{UserID: "u1", Query: "which brake fluid for my brakes?", Vehicle: vehicle})
	require.NoError(t, err)

	assert.NotEmpty(t, resp.ID)
	assert.Equal(t, "According to the manual, use DOT 3 brake fluid.", resp.Answer)
	assert.Equal(t, 0.9, resp.Confidence)
	assert.True(t, resp.UsedDocuments)
	assert.Equal(t, 3, resp.SampleCount)
	require.NotEmpty(t, resp.Sources)
	assert.Equal(t, "d1", resp.Sources[0].DocumentID)

	require.Len(t, sampler.requests, 1)
	assert.Contains(t, sampler.requests[0].Context, "[Source 1: Civic brake service]")
	assert.Equal(t, vehicle, sampler.requests[0].Vehicle)

	require.Len(t, answers.records, 1)
	rec := answers.records[0]
	assert.Equal(t, resp.ID, rec.ID)
	assert.Equal(t, "u1", rec.UserID)
	assert.Equal(t, "Honda", rec.VehicleMake)
	assert.Equal(t, 2015, rec.VehicleYear)
	assert.Len(t, rec.Sources, len(resp.Sources))
}

func TestAsk_NoDocumentsUsesGeneralKnowledge(t *testing.T) {
	sampler := &fakeSampler{candidates: []generation.Candidate{{Text: "Most cars use DOT 3.", Confidence: 0.6}}}
	e := NewEngine(&fakeDocs{}, nil, nil, newRanker(t), sampler, 0)

	resp, err := e.Ask(context.Background(), AskRequest{UserID: "u1", Query: "brake fluid?"})
	require.NoError(t, err)

	assert.Empty(t, sampler.requests[0].Context)
	assert.False(t, resp.UsedDocuments)
	assert.Empty(t, resp.Sources)
	assert.NotNil(t, resp.Sources)
}

func TestAsk_CacheHitSkipsGeneration(t *testing.T) {
	sampler := &fakeSampler{candidates: citedCandidates()}
	cache := &memoryCache{entries: map[string][]byte{}}
	answers := &fakeAnswers{}
	e := NewEngine(&fakeDocs{docs: storedDocs()}, answers, cache, newRanker(t), sampler, 3)

	req := AskRequest{UserID: "u1", Query: "brake fluid type"}
	first, err := e.Ask(context.Background(), req)
	require.NoError(t, err)
	assert.False(t, first.Cached)

	second, err := e.Ask(context.Background(), req)
	require.NoError(t, err)
	assert.True(t, second.Cached)
	assert.Equal(t, first.Answer, second.Answer)
	assert.Equal(t, first.ID, second.ID)
	assert.Len(t, sampler.requests, 1)
	assert.Len(t, answers.records, 1)
}

func TestAsk_Errors(t *testing.T) {
	t.Run("empty query", func(t *testing.T) {
		e := NewEngine(&fakeDocs{}, nil, nil, newRanker(t), &fakeSampler{}, 0)
		_, err := e.Ask(context.Background(), AskRequest{UserID: "u1", Query: "   "})
		assert.ErrorIs(t, err, ErrEmptyQuery)
	})

	t.Run("store failure", func(t *testing.T) {
		boom := errors.New("db locked")
		e := NewEngine(&fakeDocs{err: boom}, nil, nil, newRanker(t), &fakeSampler{}, 0)
		_, err := e.Ask(context.Background(), AskRequest{UserID: "u1", Query: "q"})
		assert.ErrorIs(t, err, boom)
	})

	t.Run("all samples failed", func(t *testing.T) {
		sampler := &fakeSampler{err: generation.ErrNoCandidates}
		answers := &fakeAnswers{}
		e := NewEngine(&fakeDocs{}, answers, nil, newRanker(t), sampler, 0)
		_, err := e.Ask(context.Background(), AskRequest{UserID: "u1", Query: "q"})
		assert.ErrorIs(t, err, generation.ErrNoCandidates)
		assert.Empty(t, answers.records, "nothing persisted for a failed answer")
	})
}

func TestGetEvaluatedAnswer(t *testing.T) {
	e := NewEngine(&fakeDocs{}, nil, nil, newRanker(t), &fakeSampler{candidates: citedCandidates()}, 0)

	got, err := e.GetEvaluatedAnswer(context.Background(), "brake fluid?", "Brake fluid: DOT 3.", nil)
	require.NoError(t, err)
	assert.Equal(t, 0.9, got.Confidence)
	assert.Contains(t, got.AccuracyIndicators, evaluation.IndicatorCitedDocuments)

	got, err = e.GetEvaluatedAnswer(context.Background(), "brake fluid?", "", nil)
	require.NoError(t, err)
	assert.False(t, got.UsedDocuments)
}

func TestSearchDocuments_Empty(t *testing.T) {
	e := NewEngine(&fakeDocs{}, nil, nil, newRanker(t), &fakeSampler{}, 0)
	assert.Empty(t, e.SearchDocuments(context.Background(), "brakes", nil, nil))
	assert.Empty(t, e.SearchDocuments(context.Background(), "", nil, []relevance.Document{{ID: "a", FullText: "brakes"}}))
}

func TestHistoryAndFeedback(t *testing.T) {
	answers := &fakeAnswers{}
	e := NewEngine(&fakeDocs{docs: storedDocs()}, answers, nil, newRanker(t), &fakeSampler{candidates: citedCandidates()}, 0)

	resp, err := e.Ask(context.Background(), AskRequest{UserID: "u1", Query: "brake fluid"})
	require.NoError(t, err)

	history, err := e.GetAnswerHistory(context.Background(), "u1", 10)
	require.NoError(t, err)
	require.Len(t, history, 1)
	assert.Equal(t, resp.ID, history[0].ID)

	require.NoError(t, e.RecordFeedback(context.Background(), &models.Feedback{AnswerID: resp.ID, Helpful: true}))
	assert.Len(t, answers.feedback, 1)

	bare := NewEngine(&fakeDocs{}, nil, nil, newRanker(t), &fakeSampler{}, 0)
	empty, err := bare.GetAnswerHistory(context.Background(), "u1", 10)
	require.NoError(t, err)
	assert.Empty(t, empty)
	assert.Error(t, bare.RecordFeedback(context.Background(), &models.Feedback{AnswerID: "x"}))
}

func TestAssembleContext(t *testing.T) {
	assert.Empty(t, AssembleContext(nil))

	got := AssembleContext([]relevance.SearchResult{
		{Document: relevance.Document{Title: "A"}, Excerpt: "first"},
		{Document: relevance.Document{Title: "B"}, Excerpt: "second"},
	})
	assert.Equal(t, "[Source 1: A]\nfirst\n\n[Source 2: B]\nsecond", got)
}
