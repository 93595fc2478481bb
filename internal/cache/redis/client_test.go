package redis

import (
	"context"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAnswerKey(t *testing.T) {
	a := AnswerKey("u1", "brake fluid?", "2015 Honda Civic", "ctx")
	assert.True(t, strings.HasPrefix(a, "answer:u1:"))
	assert.Equal(t, a, AnswerKey("u1", "brake fluid?", "2015 Honda Civic", "ctx"))
	assert.NotEqual(t, a, AnswerKey("u1", "brake fluid?", "2016 Honda Civic", "ctx"))
	assert.NotEqual(t, a, AnswerKey("u2", "brake fluid?", "2015 Honda Civic", "ctx"))
}

// Runs against a real server when GREASEMONKEY_TEST_REDIS_HOST is set.
func TestClient_RoundTrip(t *testing.T) {
	host := os.Getenv("GREASEMONKEY_TEST_REDIS_HOST")
	if host == "" {
		t.Skip("GREASEMONKEY_TEST_REDIS_HOST not set")
	}

	c, err := NewClient(host, 6379, "", 15, time.Minute)
	require.NoError(t, err)
	defer c.Close()

	ctx := context.Background()
	key := AnswerKey("test-user", "q", "", "")

	type payload struct{ Answer string }
	require.NoError(t, c.SetAnswer(ctx, key, payload{Answer: "DOT 3"}))

	var got payload
	found, err := c.GetAnswer(ctx, key, &got)
	require.NoError(t, err)
	assert.True(t, found)
	assert.Equal(t, "DOT 3", got.Answer)

	require.NoError(t, c.InvalidateUser(ctx, "test-user"))
	found, err = c.GetAnswer(ctx, key, &got)
	require.NoError(t, err)
	assert.False(t, found)
}
