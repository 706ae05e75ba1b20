package orchestrator

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestMessage(t *testing.T) {
	msg := Message{Role: "user", Content: "Hello"}
	assert.Equal(t, "user", msg.Role)
}

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()
	assert.Equal(t, 44100, cfg.SampleRate)
	assert.Equal(t, 20, cfg.MaxContextMessages)
}

func TestNewConversationSession(t *testing.T) {
	session := NewConversationSession("user_123")
	assert.Equal(t, "user_123", session.ID)
	assert.Empty(t, session.Context)
}

func TestAddMessage(t *testing.T) {
	session := NewConversationSession("user_456")
	session.AddMessage("user", "Hello")
	assert.Len(t, session.Context, 1)
	assert.Equal(t, "Hello", session.LastUser)
}

func TestClearContext(t *testing.T) {
	session := NewConversationSession("user_789")
	session.AddMessage("user", "Test")
	session.ClearContext()
	assert.Empty(t, session.Context)
}
