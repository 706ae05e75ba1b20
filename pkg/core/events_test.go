package core

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewInputEventOptions(t *testing.T) {
	e := NewInputEvent(UserSpeech, HIGH, "ciao", WithSource("voice"), WithMetadata(map[string]any{"lang": "it"}))

	require.True(t, e.IsInput(), "expected an input event")
	assert.False(t, e.IsOutput())
	assert.Equal(t, UserSpeech, e.InputType)
	assert.Equal(t, "voice", e.Source)
	assert.Equal(t, "it", e.MetaString("lang"))
}

func TestNewOutputEventDirection(t *testing.T) {
	e := NewOutputEvent(Speak, CRITICAL, "addio")
	require.True(t, e.IsOutput(), "expected an output event")
	assert.False(t, e.IsInput())
	assert.Equal(t, Speak, e.OutputType)
}

func TestMetaAccessorsOnMissingKeys(t *testing.T) {
	e := NewInputEvent(SensorTemperature, NORMAL, 21.5)
	assert.Empty(t, e.MetaString("humidity"), "expected empty string for missing metadata key")
	assert.False(t, e.MetaBool("flag"), "expected false for missing metadata key")
	assert.Zero(t, e.MetaFloat("value"), "expected 0 for missing metadata key")
}

func TestParseAdapterCommandRoundTrip(t *testing.T) {
	for _, name := range AdapterCommandNames() {
		cmd, ok := ParseAdapterCommand(name)
		require.Truef(t, ok, "ParseAdapterCommand(%q) failed to parse a name from AdapterCommandNames", name)
		assert.Equalf(t, name, string(cmd), "round-trip mismatch")
	}

	_, ok := ParseAdapterCommand("not_a_real_command")
	assert.False(t, ok, "expected unknown command name to fail parsing")
}

func TestParsePriority(t *testing.T) {
	p, ok := ParsePriority("HIGH")
	require.True(t, ok)
	assert.Equal(t, HIGH, p)

	_, ok = ParsePriority("URGENT")
	assert.False(t, ok, "expected unknown priority name to fail parsing")
}
