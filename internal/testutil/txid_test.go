package testutil

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestFixedTxIDGenerator_ReturnsSameID(t *testing.T) {
	gen := NewFixedTxIDGenerator("tx-123")

	assert.Equal(t, "tx-123", gen.Generate())
	assert.Equal(t, "tx-123", gen.Generate())
}

func TestFixedTxIDGenerator_EmptyIDDefault(t *testing.T) {
	gen := NewFixedTxIDGenerator("")
	assert.Equal(t, "test-tx-default", gen.Generate())
}
