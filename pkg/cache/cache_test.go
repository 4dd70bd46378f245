package cache

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestGetReturnsUnexpiredValue(t *testing.T) {
	c := New()
	c.Put("key", "value", time.Minute)

	got, ok := c.Get("key")
	assert.True(t, ok)
	assert.Equal(t, "value", got)
}

func TestGetAfterExpiry(t *testing.T) {
	c := New()

	base := time.Now()
	c.now = func() time.Time { return base }

	c.Put("key", "value", 30*time.Second)

	c.now = func() time.Time { return base.Add(29 * time.Second) }
	_, ok := c.Get("key")
	assert.True(t, ok)

	c.now = func() time.Time { return base.Add(31 * time.Second) }
	_, ok = c.Get("key")
	assert.False(t, ok)
}

func TestInvalidate(t *testing.T) {
	c := New()
	c.Put("key", "value", time.Minute)
	c.Invalidate("key")

	_, ok := c.Get("key")
	assert.False(t, ok)
}

func TestGetMissingKey(t *testing.T) {
	c := New()

	_, ok := c.Get("absent")
	assert.False(t, ok)
}
