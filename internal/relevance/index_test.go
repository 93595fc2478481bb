package relevance

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestIndex_Score(t *testing.T) {
	ix := NewIndex([]string{
		"Replace the brake pads and check brake fluid.",
		"Engine oil capacity with filter.",
		"Brake rotor runout specification.",
	})

	assert.Equal(t, 3, ix.Len())
	assert.Equal(t, 2, ix.TermFrequency("brake", 0))
	assert.Equal(t, 2, ix.DocumentFrequency("brake"))

	assert.InDelta(t, 2*math.Log(3.0/2.0), ix.Score("brake", 0), 1e-9)
	assert.InDelta(t, math.Log(3.0), ix.Score("oil", 1), 1e-9)
}

func TestIndex_AbsentTermScoresZero(t *testing.T) {
	ix := NewIndex([]string{"brake pads", "engine oil"})

	assert.Zero(t, ix.Score("oil", 0), "term missing from this document")
	assert.Zero(t, ix.Score("transmission", 1), "term missing from every document")
	assert.Zero(t, ix.Score("oil", 7), "document out of range")
	assert.Zero(t, ix.Score("oil", -1))
}

func TestIndex_SingleDocumentScoresZero(t *testing.T) {
	ix := NewIndex([]string{"brake brake brake"})
	assert.Zero(t, ix.Score("brake", 0))
}

func TestIndex_ScoresNeverNegative(t *testing.T) {
	texts := []string{
		"coolant leak at the water pump",
		"coolant reservoir cap",
		"water pump bolt torque",
		"",
	}
	ix := NewIndex(texts)
	for doc := range texts {
		for _, term := range []string{"coolant", "water", "pump", "torqu", "cap", "missing"} {
			assert.GreaterOrEqual(t, ix.Score(term, doc), 0.0)
		}
	}
}

func TestIndex_AddDocumentReturnsIndex(t *testing.T) {
	ix := NewIndex(nil)
	assert.Equal(t, 0, ix.AddDocument("first"))
	assert.Equal(t, 1, ix.AddDocument("second"))
	assert.Equal(t, 2, ix.Len())
}
