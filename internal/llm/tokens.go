package llm

import (
	"unicode/utf8"

	"github.com/pkoukk/tiktoken-go"
	"go.uber.org/zap"

	"github.com/greasemonkey/backend/pkg/logger"
)

const defaultEncoding = "cl100k_base"

// TokenCounter measures text in model tokens.
type TokenCounter interface {
	Count(text string) int
}

type TiktokenCounter struct {
	enc *tiktoken.Tiktoken
}

func NewTiktokenCounter(encoding string) (*TiktokenCounter, error) {
	if encoding == "" {
		encoding = defaultEncoding
	}
	enc, err := tiktoken.GetEncoding(encoding)
	if err != nil {
		return nil, err
	}
	return &TiktokenCounter{enc: enc}, nil
}

func (c *TiktokenCounter) Count(text string) int {
	return len(c.enc.Encode(text, nil, nil))
}

// EstimateCounter approximates four characters per token.
type EstimateCounter struct{}

func (EstimateCounter) Count(text string) int {
	n := utf8.RuneCountInString(text)
	return (n + 3) / 4
}

// NewTokenCounter returns a cl100k_base counter, or the estimator when the
// encoding can't be loaded (it is fetched on first use).
func NewTokenCounter() TokenCounter {
	c, err := NewTiktokenCounter(defaultEncoding)
	if err != nil {
		logger.Warn("Tiktoken encoding unavailable, estimating tokens from length", zap.Error(err))
		return EstimateCounter{}
	}
	return c
}
