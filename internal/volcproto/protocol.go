// Package volcproto implements the Volcengine/Doubao bidirectional TTS
// binary wire protocol: a fixed 4-byte header followed by an optional
// event int32, optional length-prefixed session/connect ids, an
// optional sequence/error int, and a length-prefixed payload.
//
// Byte-exact port of original_source/core/volc_tts_protocol.py.
package volcproto

import (
	"bytes"
	"encoding/binary"
	"fmt"
)

// MessageType is the high nibble of header byte 2.
type MessageType byte

const (
	MsgFullClientRequest MessageType = 0x1
	MsgFullServerResponse MessageType = 0x9
	MsgAudioOnlyServer    MessageType = 0xB
	MsgError              MessageType = 0xF
)

// MessageFlag is the low nibble of header byte 2.
type MessageFlag byte

const (
	FlagNoSeq      MessageFlag = 0x0
	FlagPositiveSeq MessageFlag = 0x1
	FlagLastNoSeq   MessageFlag = 0x2
	FlagNegativeSeq MessageFlag = 0x3
	FlagWithEvent   MessageFlag = 0x4
)

// EventType is the optional big-endian int32 following the header when
// FlagWithEvent is set.
type EventType int32

const (
	EventStartConnection   EventType = 1
	EventFinishConnection  EventType = 2
	EventConnectionStarted EventType = 50
	EventConnectionFailed  EventType = 51
	EventConnectionFinished EventType = 52
	EventStartSession  EventType = 100
	EventFinishSession EventType = 102
	EventSessionStarted EventType = 150
	EventSessionFinished EventType = 152
	EventSessionFailed   EventType = 153
	EventTaskRequest     EventType = 200
)

// Serialization is the high nibble of header byte 3.
type Serialization byte

const (
	SerializationRaw  Serialization = 0x0
	SerializationJSON Serialization = 0x1
)

// Compression is the low nibble of header byte 3.
type Compression byte

const (
	CompressionNone Compression = 0x0
)

const (
	protocolVersion = 0x1
	headerSizeUnits = 0x1 // header_size field value; header is headerSizeUnits*4 bytes
)

// connectionLifecycleEvents are the events for which no session_id is
// appended, even under FlagWithEvent.
var connectionLifecycleEvents = map[EventType]bool{
	EventStartConnection:    true,
	EventFinishConnection:   true,
	EventConnectionStarted:  true,
	EventConnectionFailed:   true,
	EventConnectionFinished: true,
}

// connectIDEvents are the only events for which a connect_id is appended.
var connectIDEvents = map[EventType]bool{
	EventConnectionStarted:  true,
	EventConnectionFailed:   true,
	EventConnectionFinished: true,
}

// Message is a decoded/pre-encode frame of the protocol.
type Message struct {
	Type          MessageType
	Flag          MessageFlag
	Serialization Serialization
	Compression   Compression

	HasEvent bool
	Event    EventType

	SessionID string
	ConnectID string

	// Sequence is used when Flag is PositiveSeq/NegativeSeq for
	// FullClientRequest/FullServerResponse/AudioOnlyServer frames.
	Sequence int32
	// ErrorCode is used instead of Sequence for Error frames.
	ErrorCode uint32

	Payload []byte
}

// Encode serializes m into its binary wire form.
func Encode(m Message) ([]byte, error) {
	var buf bytes.Buffer

	buf.WriteByte(byte(protocolVersion<<4 | headerSizeUnits))
	buf.WriteByte(byte(byte(m.Type)<<4 | byte(m.Flag)))
	buf.WriteByte(byte(byte(m.Serialization)<<4 | byte(m.Compression)))
	buf.WriteByte(0) // reserved padding byte, header is 4 bytes total

	if m.Flag == FlagWithEvent {
		if err := binary.Write(&buf, binary.BigEndian, int32(m.Event)); err != nil {
			return nil, err
		}
		if !connectionLifecycleEvents[m.Event] {
			if err := writeLengthPrefixedString(&buf, m.SessionID); err != nil {
				return nil, err
			}
		}
		if connectIDEvents[m.Event] {
			if err := writeLengthPrefixedString(&buf, m.ConnectID); err != nil {
				return nil, err
			}
		}
	}

	switch m.Type {
	case MsgFullClientRequest, MsgFullServerResponse, MsgAudioOnlyServer:
		if m.Flag == FlagPositiveSeq || m.Flag == FlagNegativeSeq {
			if err := binary.Write(&buf, binary.BigEndian, m.Sequence); err != nil {
				return nil, err
			}
		}
	case MsgError:
		if err := binary.Write(&buf, binary.BigEndian, m.ErrorCode); err != nil {
			return nil, err
		}
	}

	if err := binary.Write(&buf, binary.BigEndian, uint32(len(m.Payload))); err != nil {
		return nil, err
	}
	buf.Write(m.Payload)

	return buf.Bytes(), nil
}

// Decode parses a full binary frame. It returns an error if trailing
// bytes remain after the declared payload length.
func Decode(data []byte) (Message, error) {
	var m Message
	if len(data) < 4 {
		return m, fmt.Errorf("volcproto: frame too short for header: %d bytes", len(data))
	}

	headerSize := int(data[0] & 0x0F)
	if headerSize < 1 {
		headerSize = 1
	}
	headerBytes := headerSize * 4
	if len(data) < headerBytes {
		return m, fmt.Errorf("volcproto: frame shorter than declared header size")
	}

	m.Type = MessageType(data[1] >> 4)
	m.Flag = MessageFlag(data[1] & 0x0F)
	m.Serialization = Serialization(data[2] >> 4)
	m.Compression = Compression(data[2] & 0x0F)

	r := bytes.NewReader(data[headerBytes:])

	if m.Flag == FlagWithEvent {
		var ev int32
		if err := binary.Read(r, binary.BigEndian, &ev); err != nil {
			return m, fmt.Errorf("volcproto: reading event: %w", err)
		}
		m.Event = EventType(ev)
		m.HasEvent = true

		if !connectionLifecycleEvents[m.Event] {
			sid, err := readLengthPrefixedString(r)
			if err != nil {
				return m, fmt.Errorf("volcproto: reading session_id: %w", err)
			}
			m.SessionID = sid
		}
		if connectIDEvents[m.Event] {
			cid, err := readLengthPrefixedString(r)
			if err != nil {
				return m, fmt.Errorf("volcproto: reading connect_id: %w", err)
			}
			m.ConnectID = cid
		}
	}

	switch m.Type {
	case MsgFullClientRequest, MsgFullServerResponse, MsgAudioOnlyServer:
		if m.Flag == FlagPositiveSeq || m.Flag == FlagNegativeSeq {
			if err := binary.Read(r, binary.BigEndian, &m.Sequence); err != nil {
				return m, fmt.Errorf("volcproto: reading sequence: %w", err)
			}
		}
	case MsgError:
		if err := binary.Read(r, binary.BigEndian, &m.ErrorCode); err != nil {
			return m, fmt.Errorf("volcproto: reading error code: %w", err)
		}
	}

	var payloadLen uint32
	if err := binary.Read(r, binary.BigEndian, &payloadLen); err != nil {
		return m, fmt.Errorf("volcproto: reading payload length: %w", err)
	}

	payload := make([]byte, payloadLen)
	if _, err := r.Read(payload); err != nil && payloadLen > 0 {
		return m, fmt.Errorf("volcproto: reading payload: %w", err)
	}
	m.Payload = payload

	if r.Len() != 0 {
		return m, fmt.Errorf("volcproto: %d unexpected trailing bytes", r.Len())
	}

	return m, nil
}

func writeLengthPrefixedString(buf *bytes.Buffer, s string) error {
	if err := binary.Write(buf, binary.BigEndian, uint32(len(s))); err != nil {
		return err
	}
	_, err := buf.WriteString(s)
	return err
}

func readLengthPrefixedString(r *bytes.Reader) (string, error) {
	var n uint32
	if err := binary.Read(r, binary.BigEndian, &n); err != nil {
		return "", err
	}
	b := make([]byte, n)
	if n > 0 {
		if _, err := r.Read(b); err != nil {
			return "", err
		}
	}
	return string(b), nil
}
