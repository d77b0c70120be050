package write

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNewFileIDIsUniqueULID(t *testing.T) {
	a := newFileID()
	b := newFileID()
	assert.NotEqual(t, a, b)
	assert.Len(t, a, 26) // ulid canonical string length
}
