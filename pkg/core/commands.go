package core

// AdapterCommand is a semantic, advisory instruction the Brain or the
// AdapterManager's derivation rules can broadcast to every adapter.
// Each adapter decides for itself whether a command applies.
type AdapterCommand string

const (
	WakewordListenStart AdapterCommand = "wakeword_listen_start"
	WakewordListenStop  AdapterCommand = "wakeword_listen_stop"

	VoiceOutputStop   AdapterCommand = "voice_output_stop"
	VoiceOutputResume AdapterCommand = "voice_output_resume"

	VoiceInputStart AdapterCommand = "voice_input_start"
	VoiceInputStop  AdapterCommand = "voice_input_stop"

	SensorPause  AdapterCommand = "sensor_pause"
	SensorResume AdapterCommand = "sensor_resume"

	LedListening AdapterCommand = "led_listening"
	LedThinking  AdapterCommand = "led_thinking"
	LedSpeaking  AdapterCommand = "led_speaking"
	LedIdle      AdapterCommand = "led_idle"
)

// allCommands lists every known AdapterCommand, used to parse a string
// name (from an ADAPTER_COMMAND event's content) and to report valid
// values on failure.
var allCommands = []AdapterCommand{
	WakewordListenStart, WakewordListenStop,
	VoiceOutputStop, VoiceOutputResume,
	VoiceInputStart, VoiceInputStop,
	SensorPause, SensorResume,
	LedListening, LedThinking, LedSpeaking, LedIdle,
}

// ParseAdapterCommand resolves a string into its AdapterCommand, or
// false if the name is not one of the enumerated values.
func ParseAdapterCommand(name string) (AdapterCommand, bool) {
	for _, c := range allCommands {
		if string(c) == name {
			return c, true
		}
	}
	return "", false
}

// AdapterCommandNames returns every valid command name, for error
// messages that enumerate the available values.
func AdapterCommandNames() []string {
	names := make([]string, len(allCommands))
	for i, c := range allCommands {
		names[i] = string(c)
	}
	return names
}
