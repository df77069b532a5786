package journal

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEncodeDecodePreservesFold(t *testing.T) {
	msgs := happyPath()

	decoded := make([]Message, 0, len(msgs))
	for _, m := range msgs {
		body, err := Encode(m)
		require.NoError(t, err)
		back, err := Decode(m.Type(), body)
		require.NoError(t, err)
		assert.Equal(t, Head(m).Seq, Head(back).Seq)
		decoded = append(decoded, back)
	}

	assert.Equal(t, foldAll(t, msgs), foldAll(t, decoded))
}

func TestDecodeUnknownType(t *testing.T) {
	_, err := Decode("future-exploded", []byte(`{}`))
	assert.ErrorContains(t, err, "unknown message type")
}
