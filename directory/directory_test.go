package directory

import (
	"testing"

	"github.com/stvp/assert"
)

func TestAddFindDeleteEntry(t *testing.T) {
	d := NewDir(5, false, false)
	_, ok := d.FindEntry("foo")
	assert.True(t, !ok)

	d.AddDentry("foo", 50, 0644)
	e, ok := d.FindEntry("foo")
	assert.True(t, ok)
	assert.Equal(t, e.Ino, uint32(50))

	d.DeleteEntry("foo")
	_, ok = d.FindEntry("foo")
	assert.True(t, !ok)
}

func TestBuildRecoveredNamePlain(t *testing.T) {
	d := NewDir(5, false, false)
	rn := BuildRecoveredName(d, "foo", 0, false)
	assert.Equal(t, rn.Name, "foo")
	assert.Equal(t, rn.Hash, fnvHash("foo"))
}

func TestBuildRecoveredNameCasefolded(t *testing.T) {
	d := NewDir(5, true, false)
	rn := BuildRecoveredName(d, "FOO", 0, false)
	assert.Equal(t, rn.Hash, fnvHash("foo"))
	// still matched case-sensitively
	assert.Equal(t, rn.Name, "FOO")
}

func TestBuildRecoveredNameEncryptedCasefolded(t *testing.T) {
	d := NewDir(5, true, true)
	rn := BuildRecoveredName(d, "bar", 0xabcd, true)
	assert.Equal(t, rn.Hash, uint32(0xabcd))
}
