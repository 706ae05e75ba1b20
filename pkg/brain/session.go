// Package brain implements the decision layer: a per-event handler
// dispatcher that turns one InputKind event into the output events and
// adapter commands it implies, plus the two timer-driven side effects
// (archivist distillation, delayed light-off) checked after every
// event.
//
// Grounded on original_source/core/brain.py's BuddyBrain.
package brain

import (
	"sync"
	"time"

	"github.com/lokutor-ai/lokutor-orchestrator/pkg/orchestrator"
)

// Session holds the Brain's per-process conversational and timer
// state. Mirrors BuddyBrain.__init__'s instance fields: chat history
// lives in the teacher's ConversationSession, everything else is
// brain-specific timer bookkeeping.
type Session struct {
	mu sync.Mutex

	chat         *orchestrator.ConversationSession
	systemPrompt string

	lastArchivistTS time.Time
	presenceLostTS  *time.Time

	archivistInterval time.Duration
	lightOffTimeout   time.Duration
}

// NewSession creates a Session with chat history seeded from
// systemPrompt and the given timer intervals. archivistInterval and
// lightOffTimeout come straight from the brain.archivist_interval and
// brain.light_off_timeout config keys.
func NewSession(systemPrompt string, archivistInterval, lightOffTimeout time.Duration) *Session {
	return &Session{
		chat:              orchestrator.NewConversationSession("buddy"),
		systemPrompt:      systemPrompt,
		lastArchivistTS:   time.Now(),
		archivistInterval: archivistInterval,
		lightOffTimeout:   lightOffTimeout,
	}
}

// Reset re-initializes chat history, grounded on
// core/brain.py:reset_session. Timer state is untouched: a chat reset
// is conversational, not a restart of the archivist/light-off clocks.
func (s *Session) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.chat.ClearContext()
}

// AddMessage appends to chat history. It takes no Session lock:
// ConversationSession is independently synchronized.
func (s *Session) AddMessage(role, content string) {
	s.chat.AddMessage(role, content)
}

// MessagesForLLM returns the system prompt followed by a defensive
// copy of chat history, ready to hand to an LLMProvider.Complete call.
func (s *Session) MessagesForLLM() []orchestrator.Message {
	history := s.chat.GetContextCopy()
	messages := make([]orchestrator.Message, 0, len(history)+1)
	if s.systemPrompt != "" {
		messages = append(messages, orchestrator.Message{Role: "system", Content: s.systemPrompt})
	}
	messages = append(messages, history...)
	return messages
}

// markArchivistNow resets the archivist clock to the given instant.
func (s *Session) markArchivistNow(now time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.lastArchivistTS = now
}

// archivistDue reports whether the archivist interval has elapsed as
// of now, per spec: now - last_archivist_ts >= archivist_interval.
func (s *Session) archivistDue(now time.Time) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return now.Sub(s.lastArchivistTS) >= s.archivistInterval
}

// setPresenceLost records the instant presence was lost, only if no
// timer is already running (Null -> t transition).
func (s *Session) setPresenceLost(now time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.presenceLostTS == nil {
		t := now
		s.presenceLostTS = &t
	}
}

// cancelPresenceLost clears a running light-off timer (t -> Null),
// reporting whether one was actually running.
func (s *Session) cancelPresenceLost() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.presenceLostTS == nil {
		return false
	}
	s.presenceLostTS = nil
	return true
}

// lightOffDue reports whether a running light-off timer has expired as
// of now, and clears it if so (t -> Null via timeout).
func (s *Session) lightOffDue(now time.Time) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.presenceLostTS == nil {
		return false
	}
	if now.Sub(*s.presenceLostTS) >= s.lightOffTimeout {
		s.presenceLostTS = nil
		return true
	}
	return false
}
