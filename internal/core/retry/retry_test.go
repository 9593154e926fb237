package retry

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func fastOptions(shouldRetry func(error, int) bool) Options {
	return Options{
		Retries:     2,
		BaseDelay:   time.Millisecond,
		MaxDelay:    2 * time.Millisecond,
		Factor:      2,
		ShouldRetry: shouldRetry,
	}
}

func TestDoSucceedsOnThirdAttempt(t *testing.T) {
	attempts := 0
	out, err := Do(context.Background(), func(attempt int) (string, error) {
		attempts++
		assert.Equal(t, attempts, attempt)
		if attempt < 3 {
			return "", errors.New("connection reset by peer")
		}
		return "ok", nil
	}, fastOptions(func(err error, _ int) bool { return IsRetryable(err) }))

	require.NoError(t, err)
	assert.Equal(t, "ok", out)
	assert.Equal(t, 3, attempts)
}

func TestDoStopsWhenClassifierRejects(t *testing.T) {
	attempts := 0
	_, err := Do(context.Background(), func(int) (string, error) {
		attempts++
		return "", errors.New("a valid URL is required for crawling")
	}, fastOptions(func(err error, _ int) bool { return !IsValidationMessage(err) }))

	require.Error(t, err)
	assert.Equal(t, 1, attempts)
}

func TestDoExhaustsRetriesAndReturnsLastError(t *testing.T) {
	attempts := 0
	_, err := Do(context.Background(), func(int) (int, error) {
		attempts++
		return 0, errors.New("request timed out")
	}, fastOptions(nil))

	require.Error(t, err)
	assert.Equal(t, 3, attempts)
	assert.Contains(t, err.Error(), "timed out")
}

func TestDoHonorsContextDuringBackoff(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := Do(ctx, func(int) (int, error) {
		return 0, errors.New("network unreachable")
	}, Options{Retries: 2, BaseDelay: time.Minute})

	require.ErrorIs(t, err, context.Canceled)
}

func TestIsCancellation(t *testing.T) {
	assert.True(t, IsCancellation(NewCancelled()))
	assert.True(t, IsCancellation(errors.New("ingestion cancelled by user")))
	assert.False(t, IsCancellation(errors.New("status 503")))
	assert.False(t, IsCancellation(nil))
}

func TestIsRetryable(t *testing.T) {
	assert.True(t, IsRetryable(errors.New("request timed out")))
	assert.True(t, IsRetryable(errors.New("upstream returned 429")))
	assert.True(t, IsRetryable(errors.New("crawl fetch failed with status 503")))
	assert.True(t, IsRetryable(errors.New("socket hang up")))

	assert.False(t, IsRetryable(NewCancelled()))
	assert.False(t, IsRetryable(errors.New("crawl fetch failed with status 404")))
	assert.False(t, IsRetryable(errors.New("robots fetch skipped")), "mentioning a fetch is not enough")
	assert.False(t, IsRetryable(errors.New("embedding dimension 1536 unexpected")))
	assert.False(t, IsRetryable(nil))
}

func TestServerStatusPatternBoundaries(t *testing.T) {
	// 5xx must stand alone, not appear inside a longer number.
	assert.True(t, IsRetryable(errors.New("got 500")))
	assert.True(t, IsRetryable(errors.New("err=502;")))
	assert.False(t, IsRetryable(errors.New("processed 15003 rows")))
}

func TestIsValidationMessage(t *testing.T) {
	assert.True(t, IsValidationMessage(errors.New("a document title is required")))
	assert.True(t, IsValidationMessage(errors.New("unsupported file extension: exe")))
	assert.True(t, IsValidationMessage(errors.New("a valid URL is required for crawling")))
	assert.False(t, IsValidationMessage(errors.New("request timed out")))
}
