package core

import (
	"time"

	"github.com/google/uuid"
)

// Direction tags which half of the tagged union an Event carries:
// InputType is populated for Direction == Input, OutputType for
// Direction == Output. Never both.
type Direction int

const (
	Input Direction = iota
	Output
)

// InputKind enumerates every event an input adapter (or the interrupt
// worker) may place on the input queue.
type InputKind string

const (
	UserSpeech        InputKind = "user_speech"
	Wakeword          InputKind = "wakeword"
	ConversationEnd   InputKind = "conversation_end"
	Interrupt         InputKind = "interrupt"
	SensorPresence    InputKind = "sensor_presence"
	SensorMovement    InputKind = "sensor_movement"
	SensorTemperature InputKind = "sensor_temperature"
	DirectOutput      InputKind = "direct_output"
	AdapterCommandKind InputKind = "adapter_command"
	TriggerArchivist  InputKind = "trigger_archivist"
	ChatSessionReset  InputKind = "chat_session_reset"
	LightOnInput      InputKind = "light_on"
	LightOffInput     InputKind = "light_off"
	Shutdown          InputKind = "shutdown"
	Restart           InputKind = "restart"
)

// OutputKind enumerates every event an output adapter may subscribe to
// via the Router.
type OutputKind string

const (
	Speak         OutputKind = "speak"
	LedControl    OutputKind = "led_control"
	SaveHistory   OutputKind = "save_history"
	SaveMemory    OutputKind = "save_memory"
	DistillMemory OutputKind = "distill_memory"
	LightOnOutput OutputKind = "light_on"
	LightOffOutput OutputKind = "light_off"
)

// Event is the single immutable currency exchanged between every
// component in the core. Exactly one of InputType/OutputType is
// meaningful, selected by Direction.
type Event struct {
	ID         string
	Priority   Priority
	Direction  Direction
	InputType  InputKind
	OutputType OutputKind
	Content    any
	Timestamp  time.Time
	Source     string
	Metadata   map[string]any
}

// NewInputEvent constructs an Event of kind Input. Options mutate the
// event before it is returned. Every event gets a random ID so it can
// be traced end-to-end across the input queue, the router, and an
// adapter's own internal queue.
func NewInputEvent(kind InputKind, priority Priority, content any, opts ...EventOption) Event {
	e := Event{
		ID:        uuid.NewString(),
		Priority:  priority,
		Direction: Input,
		InputType: kind,
		Content:   content,
		Timestamp: time.Now(),
	}
	for _, opt := range opts {
		opt(&e)
	}
	return e
}

// NewOutputEvent constructs an Event of kind Output.
func NewOutputEvent(kind OutputKind, priority Priority, content any, opts ...EventOption) Event {
	e := Event{
		ID:         uuid.NewString(),
		Priority:   priority,
		Direction:  Output,
		OutputType: kind,
		Content:    content,
		Timestamp:  time.Now(),
	}
	for _, opt := range opts {
		opt(&e)
	}
	return e
}

// EventOption mutates an Event at construction time.
type EventOption func(*Event)

func WithSource(source string) EventOption {
	return func(e *Event) { e.Source = source }
}

func WithMetadata(metadata map[string]any) EventOption {
	return func(e *Event) { e.Metadata = metadata }
}

// IsInput reports whether this event belongs to the input algebra.
func (e Event) IsInput() bool { return e.Direction == Input }

// IsOutput reports whether this event belongs to the output algebra.
func (e Event) IsOutput() bool { return e.Direction == Output }

// MetaString returns a string metadata value, or "" if absent/wrong type.
func (e Event) MetaString(key string) string {
	if e.Metadata == nil {
		return ""
	}
	v, ok := e.Metadata[key].(string)
	if !ok {
		return ""
	}
	return v
}

// MetaBool returns a bool metadata value, or false if absent/wrong type.
func (e Event) MetaBool(key string) bool {
	if e.Metadata == nil {
		return false
	}
	v, _ := e.Metadata[key].(bool)
	return v
}

// MetaFloat returns a float64 metadata value, or 0 if absent/wrong type.
func (e Event) MetaFloat(key string) float64 {
	if e.Metadata == nil {
		return 0
	}
	switch v := e.Metadata[key].(type) {
	case float64:
		return v
	case int:
		return float64(v)
	default:
		return 0
	}
}
