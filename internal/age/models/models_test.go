package models

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewHandle_Unique(t *testing.T) {
	seen := make(map[string]bool)
	for range 1000 {
		handle, err := NewHandle()
		require.NoError(t, err)
		assert.Len(t, handle, 22) // 16 bytes, unpadded base64url
		assert.False(t, seen[handle], "handle collision: %s", handle)
		seen[handle] = true
	}
}

func TestStatusTerminal(t *testing.T) {
	assert.True(t, StatusDone.Terminal())
	assert.True(t, StatusCancelled.Terminal())
	assert.True(t, StatusTimeout.Terminal())
	assert.False(t, StatusInitialized.Terminal())
	assert.False(t, StatusPairing.Terminal())
	assert.False(t, StatusConnected.Terminal())
}

func TestNewDisclosureRequest(t *testing.T) {
	req := NewDisclosureRequest("pbdf.gemeente.personalData.over18")
	assert.Equal(t, DisclosureContext, req.Context)
	require.Len(t, req.Disclose, 1)
	require.Len(t, req.Disclose[0], 1)
	assert.Equal(t, []string{"pbdf.gemeente.personalData.over18"}, req.Disclose[0][0])
}

func TestDisclosureResult_Attribute(t *testing.T) {
	res := &DisclosureResult{
		Disclosed: [][]DisclosedAttribute{{
			{ID: "pbdf.gemeente.personalData.over18", RawValue: "yes"},
		}},
	}

	value, ok := res.Attribute("pbdf.gemeente.personalData.over18")
	assert.True(t, ok)
	assert.Equal(t, "yes", value)

	_, ok = res.Attribute("pbdf.gemeente.personalData.over65")
	assert.False(t, ok)
}

func TestDisclosureResult_Attribute_EmptyValue(t *testing.T) {
	res := &DisclosureResult{
		Disclosed: [][]DisclosedAttribute{{
			{ID: "pbdf.gemeente.personalData.over18", RawValue: ""},
		}},
	}

	_, ok := res.Attribute("pbdf.gemeente.personalData.over18")
	assert.False(t, ok)
}
