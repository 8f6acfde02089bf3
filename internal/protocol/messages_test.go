// ABOUTME: Tests for feed message decoding
// ABOUTME: Checks type dispatch and payload errors
package protocol

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDecodeLevels(t *testing.T) {
	data, err := json.Marshal(Message{Type: TypeLevels, Payload: Levels{Seq: 3, Title: "mic", Levels: []float32{-12, -60}}})
	require.NoError(t, err)

	var got Levels
	require.NoError(t, Decode(data, TypeLevels, &got))
	assert.Equal(t, uint64(3), got.Seq)
	assert.Equal(t, "mic", got.Title)
	assert.Equal(t, []float32{-12, -60}, got.Levels)
}

func TestDecodeWrongType(t *testing.T) {
	data := []byte(`{"type":"server/hello","payload":{}}`)
	var got Levels
	assert.ErrorContains(t, Decode(data, TypeLevels, &got), "expected levels")
}

func TestDecodeMalformed(t *testing.T) {
	var got Levels
	assert.Error(t, Decode([]byte(`not json`), TypeLevels, &got))
	assert.Error(t, Decode([]byte(`{"type":"levels","payload":{"levels":"loud"}}`), TypeLevels, &got))
}

func TestSilenceRoundTrips(t *testing.T) {
	// Silence is the most negative float32 and must survive JSON unchanged
	silence := float32(-3.4028234663852886e+38)
	data, err := json.Marshal(Message{Type: TypeLevels, Payload: Levels{Levels: []float32{silence}}})
	require.NoError(t, err)

	var got Levels
	require.NoError(t, Decode(data, TypeLevels, &got))
	assert.Equal(t, silence, got.Levels[0])
}
