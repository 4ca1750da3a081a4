package ir

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestConfigHash_IgnoresKeyOrderAndWhitespace(t *testing.T) {
	a := []byte(`{"bundles":[{"id":"b1","priority":2}],"smartOffers":[]}`)
	b := []byte("{\n  \"smartOffers\": [],\n  \"bundles\": [ {\"priority\": 2, \"id\": \"b1\"} ]\n}")

	ha, err := ConfigHash(a)
	require.NoError(t, err)
	hb, err := ConfigHash(b)
	require.NoError(t, err)

	assert.Equal(t, ha, hb)
	assert.Len(t, ha, 64)
}

func TestConfigHash_NFCNormalization(t *testing.T) {
	// "é" precomposed vs "e" + combining acute accent.
	composed := []byte("{\"title\":\"caf\u00e9\"}")
	decomposed := []byte("{\"title\":\"cafe\u0301\"}")

	h1, err := ConfigHash(composed)
	require.NoError(t, err)
	h2, err := ConfigHash(decomposed)
	require.NoError(t, err)

	assert.Equal(t, h1, h2)
}

func TestConfigHash_ContentChangesHash(t *testing.T) {
	h1, err := ConfigHash([]byte(`{"priority":1}`))
	require.NoError(t, err)
	h2, err := ConfigHash([]byte(`{"priority":2}`))
	require.NoError(t, err)

	assert.NotEqual(t, h1, h2)
}

func TestConfigHash_InvalidJSON(t *testing.T) {
	_, err := ConfigHash([]byte(`{not json`))
	assert.Error(t, err)
}
