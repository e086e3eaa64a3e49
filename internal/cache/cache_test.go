package cache

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestCache_SetGet(t *testing.T) {
	c := New(time.Minute)

	c.Set("key", "value")

	got, ok := c.Get("key")
	assert.True(t, ok)
	assert.Equal(t, "value", got)
}

func TestCache_GetMissing(t *testing.T) {
	c := New(time.Minute)

	_, ok := c.Get("missing")
	assert.False(t, ok)
}

func TestCache_Expiry(t *testing.T) {
	c := New(10 * time.Millisecond)

	c.Set("key", "value")
	time.Sleep(20 * time.Millisecond)

	_, ok := c.Get("key")
	assert.False(t, ok)
}

func TestCache_SetPrunesExpired(t *testing.T) {
	c := New(10 * time.Millisecond)

	c.Set("old", "value")
	time.Sleep(20 * time.Millisecond)
	c.Set("new", "value")

	assert.Equal(t, 1, c.Len())
}

func TestCache_Delete(t *testing.T) {
	c := New(time.Minute)

	c.Set("key", "value")
	c.Delete("key")

	_, ok := c.Get("key")
	assert.False(t, ok)
}

func TestCache_Clear(t *testing.T) {
	c := New(time.Minute)

	c.Set("a", 1)
	c.Set("b", 2)
	c.Clear()

	assert.Equal(t, 0, c.Len())
}

func TestCache_ZeroTTLUsesDefault(t *testing.T) {
	c := New(0)

	c.Set("key", "value")
	_, ok := c.Get("key")
	assert.True(t, ok)
}

func TestKeyBuilders(t *testing.T) {
	date := time.Date(2026, 8, 20, 0, 0, 0, 0, time.UTC)

	assert.Equal(t, "hourly:c-100:2026-08-20", HourlyKey("c-100", date))
	assert.Equal(t, "monthly:c-100:2026-01:2026-08", MonthlyKey("c-100", "2026-01", "2026-08"))
	assert.Equal(t, "summary:c-100", SummaryKey("c-100"))
}
