package prolink

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSupportsExtendedMetadata(t *testing.T) {
	assert.True(t, SupportsExtendedMetadata("5.2.1"))
	assert.True(t, SupportsExtendedMetadata("5.0.0"))
	assert.False(t, SupportsExtendedMetadata("4.9.9"))
	assert.False(t, SupportsExtendedMetadata("not-a-version"))
}
