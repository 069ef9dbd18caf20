package domain

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestChannelForIsOrderIndependent(t *testing.T) {
	assert.Equal(t, "call-5-7", ChannelFor(5, 7))
	assert.Equal(t, "call-5-7", ChannelFor(7, 5))
	assert.Equal(t, "call-3-3", ChannelFor(3, 3))
}

func TestParseUserID(t *testing.T) {
	id, err := ParseUserID("42")
	require.NoError(t, err)
	assert.Equal(t, UserID(42), id)

	_, err = ParseUserID("")
	assert.Error(t, err)

	_, err = ParseUserID("bob")
	assert.Error(t, err)
}
