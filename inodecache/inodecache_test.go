package inodecache

import (
	"testing"

	"github.com/stvp/assert"
)

func TestIgetNotFound(t *testing.T) {
	c := New()
	_, err := c.Iget(7)
	_, ok := err.(ErrNotFound)
	assert.True(t, ok)
}

func TestCreateAndIget(t *testing.T) {
	c := New()
	n := c.Create(7)
	assert.Equal(t, n.Ino, uint32(7))

	got, err := c.Iget(7)
	assert.Nil(t, err)
	assert.Equal(t, got, n)
}

func TestIputDropsOnToDrop(t *testing.T) {
	c := New()
	n := c.Create(7)
	n.MarkToDrop()
	c.Iput(n) // release the Create ref
	_, ok := c.Lookup(7)
	assert.True(t, !ok)
}

func TestIputKeepsWithoutToDrop(t *testing.T) {
	c := New()
	n := c.Create(7)
	c.Iput(n)
	_, ok := c.Lookup(7)
	assert.True(t, ok)
}

func TestIgetRetryBounded(t *testing.T) {
	c := New()
	c.SetMaxRetries(2)
	_, err := c.IgetRetry(9)
	_, ok := err.(ErrNotFound)
	assert.True(t, ok)
}
