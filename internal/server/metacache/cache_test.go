package metacache

import (
	"testing"
	"time"

	"github.com/dmitrijs2005/tgfilestream/internal/server/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCache_SetGetDelete(t *testing.T) {
	c := New(time.Minute)

	_, ok := c.Get(1)
	assert.False(t, ok)

	c.Set(1, &models.FileInfo{MessageID: 1, Name: "a.bin", Size: 10})
	got, ok := c.Get(1)
	require.True(t, ok)
	assert.Equal(t, "a.bin", got.Name)

	c.Delete(1)
	_, ok = c.Get(1)
	assert.False(t, ok)
}

func TestCache_ReturnsCopies(t *testing.T) {
	c := New(time.Minute)
	info := &models.FileInfo{MessageID: 2, Name: "orig"}
	c.Set(2, info)

	info.Name = "changed by caller"
	got, _ := c.Get(2)
	assert.Equal(t, "orig", got.Name)

	got.Name = "changed again"
	again, _ := c.Get(2)
	assert.Equal(t, "orig", again.Name)
}

func TestCache_Expires(t *testing.T) {
	c := New(20 * time.Millisecond)
	c.Set(3, &models.FileInfo{MessageID: 3})

	assert.Eventually(t, func() bool {
		_, ok := c.Get(3)
		return !ok
	}, time.Second, 10*time.Millisecond)
}

func TestCache_IgnoresNil(t *testing.T) {
	c := New(time.Minute)
	c.Set(4, nil)
	_, ok := c.Get(4)
	assert.False(t, ok)
}
