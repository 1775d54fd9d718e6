package volcproto

// BuildStartConnection builds the connection-open frame.
func BuildStartConnection() ([]byte, error) {
	return Encode(Message{
		Type:          MsgFullClientRequest,
		Flag:          FlagWithEvent,
		Serialization: SerializationJSON,
		Event:         EventStartConnection,
		Payload:       []byte("{}"),
	})
}

// BuildStartSession builds the session-open frame carrying the TTS
// request config as payload (e.g. voice, format, sample rate).
func BuildStartSession(sessionID string, payload []byte) ([]byte, error) {
	return Encode(Message{
		Type:          MsgFullClientRequest,
		Flag:          FlagWithEvent,
		Serialization: SerializationJSON,
		Event:         EventStartSession,
		SessionID:     sessionID,
		Payload:       payload,
	})
}

// BuildTaskRequest builds a synthesis-text-chunk frame within a session.
func BuildTaskRequest(sessionID string, payload []byte) ([]byte, error) {
	return Encode(Message{
		Type:          MsgFullClientRequest,
		Flag:          FlagWithEvent,
		Serialization: SerializationJSON,
		Event:         EventTaskRequest,
		SessionID:     sessionID,
		Payload:       payload,
	})
}

// BuildFinishSession builds the session-close frame.
func BuildFinishSession(sessionID string) ([]byte, error) {
	return Encode(Message{
		Type:          MsgFullClientRequest,
		Flag:          FlagWithEvent,
		Serialization: SerializationJSON,
		Event:         EventFinishSession,
		SessionID:     sessionID,
		Payload:       []byte("{}"),
	})
}

// BuildFinishConnection builds the connection-close frame.
func BuildFinishConnection() ([]byte, error) {
	return Encode(Message{
		Type:          MsgFullClientRequest,
		Flag:          FlagWithEvent,
		Serialization: SerializationJSON,
		Event:         EventFinishConnection,
		Payload:       []byte("{}"),
	})
}
