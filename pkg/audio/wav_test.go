package audio

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNewWavBuffer(t *testing.T) {
	pcm := []byte{0x01, 0x02, 0x03, 0x04}
	sampleRate := 44100
	wav := NewWavBuffer(pcm, sampleRate)

	assert.True(t, bytes.HasPrefix(wav, []byte("RIFF")))
	assert.True(t, bytes.Contains(wav, []byte("WAVE")))
	assert.Len(t, wav, 44+len(pcm))
}
