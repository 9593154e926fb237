package ratelimit

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestConsumeWithinLimit(t *testing.T) {
	l := NewVisitorLimiterWith(3, time.Hour, nil)

	for i := 0; i < 3; i++ {
		ok, retryAfter := l.Consume("org-1", "visitor-1")
		assert.True(t, ok)
		assert.Zero(t, retryAfter)
	}
}

func TestConsumeBlocksAtLimit(t *testing.T) {
	l := NewVisitorLimiterWith(2, time.Hour, nil)

	l.Consume("org-1", "visitor-1")
	l.Consume("org-1", "visitor-1")

	ok, retryAfter := l.Consume("org-1", "visitor-1")
	assert.False(t, ok)
	assert.Greater(t, retryAfter, time.Duration(0))
	assert.LessOrEqual(t, retryAfter, time.Hour)
}

func TestConsumeIsolatesVisitorsAndOrgs(t *testing.T) {
	l := NewVisitorLimiterWith(1, time.Hour, nil)

	ok, _ := l.Consume("org-1", "visitor-1")
	assert.True(t, ok)
	ok, _ = l.Consume("org-1", "visitor-2")
	assert.True(t, ok)
	ok, _ = l.Consume("org-2", "visitor-1")
	assert.True(t, ok)

	ok, _ = l.Consume("org-1", "visitor-1")
	assert.False(t, ok)
}

func TestConsumeResetsAfterWindow(t *testing.T) {
	now := time.Now()
	l := NewVisitorLimiterWith(1, time.Hour, func() time.Time { return now })

	ok, _ := l.Consume("org-1", "visitor-1")
	assert.True(t, ok)
	ok, _ = l.Consume("org-1", "visitor-1")
	assert.False(t, ok)

	now = now.Add(time.Hour + time.Second)
	ok, retryAfter := l.Consume("org-1", "visitor-1")
	assert.True(t, ok)
	assert.Zero(t, retryAfter)
}
