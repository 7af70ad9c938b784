package domain

import (
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	dErrors "custodia/pkg/domain-errors"
)

func TestParseUserID(t *testing.T) {
	t.Run("valid uuid parses", func(t *testing.T) {
		raw := uuid.New()
		id, err := ParseUserID(raw.String())
		require.NoError(t, err)
		assert.Equal(t, raw.String(), id.String())
		assert.False(t, id.IsNil())
	})

	t.Run("empty string rejected", func(t *testing.T) {
		_, err := ParseUserID("")
		require.Error(t, err)
		assert.True(t, dErrors.HasCode(err, dErrors.CodeInvalidInput))
	})

	t.Run("malformed uuid rejected", func(t *testing.T) {
		_, err := ParseUserID("not-a-uuid")
		require.Error(t, err)
		assert.True(t, dErrors.HasCode(err, dErrors.CodeInvalidInput))
	})

	t.Run("nil uuid parses but reports IsNil", func(t *testing.T) {
		id, err := ParseUserID(uuid.Nil.String())
		require.NoError(t, err)
		assert.True(t, id.IsNil())
	})
}

func TestParseGrievanceID(t *testing.T) {
	raw := uuid.New()
	id, err := ParseGrievanceID(raw.String())
	require.NoError(t, err)
	assert.Equal(t, raw.String(), id.String())

	_, err = ParseGrievanceID("bogus")
	assert.Error(t, err)
}
