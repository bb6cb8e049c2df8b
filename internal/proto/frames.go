// Package proto implements the byte-level sub-protocol carried inside
// WebSocket frames between the server and its containers.
//
// Every frame starts with a one byte opcode. PING, PONG, ACK and
// CONTROL_SIGNAL are the opcode alone. MESSAGE and RECEIPT carry a body:
//
//	MESSAGE  [0x0D][len uint32 BE][payload]
//	RECEIPT  [0x0E][id len uint8][ts len uint8 = 8][id][ts int64 BE, unix millis]
//
// PING and PONG travel inside WebSocket ping/pong control frames, all other
// frames inside binary frames.
package proto

import (
	"errors"
	"fmt"
)

type Opcode byte

const (
	OpPing          Opcode = 0x09
	OpPong          Opcode = 0x0A
	OpAck           Opcode = 0x0B
	OpControlSignal Opcode = 0x0C
	OpMessage       Opcode = 0x0D
	OpReceipt       Opcode = 0x0E
)

func (o Opcode) String() string {
	switch o {
	case OpPing:
		return "ping"
	case OpPong:
		return "pong"
	case OpAck:
		return "ack"
	case OpControlSignal:
		return "control_signal"
	case OpMessage:
		return "message"
	case OpReceipt:
		return "receipt"
	default:
		return fmt.Sprintf("opcode(0x%02x)", byte(o))
	}
}

// timestampLen is the fixed length marker written into every RECEIPT.
const timestampLen = 8

// MaxIDLen is the longest receipt id the one byte length field can carry.
const MaxIDLen = 255

var (
	ErrUnexpectedOpcode = errors.New("proto: unexpected opcode")
	ErrIDTooLong        = errors.New("proto: receipt id longer than 255 bytes")
	ErrTimestampLen     = errors.New("proto: unsupported receipt timestamp length")
)

// WireType is the WebSocket frame class a frame travels in.
type WireType uint8

const (
	WireBinary WireType = iota + 1
	WireText
	WirePing
	WirePong
	WireClose
)

func (t WireType) String() string {
	switch t {
	case WireBinary:
		return "binary"
	case WireText:
		return "text"
	case WirePing:
		return "ping"
	case WirePong:
		return "pong"
	case WireClose:
		return "close"
	default:
		return "unknown"
	}
}

// Raw is one WebSocket frame as handed over by the transport.
type Raw struct {
	Type WireType
	Data []byte
}

// Kind is the inbound frame variant the registry dispatches on.
type Kind uint8

const (
	KindData Kind = iota
	KindClose
	KindPing
	KindAck
	KindPong
)

func (k Kind) String() string {
	switch k {
	case KindData:
		return "data"
	case KindClose:
		return "close"
	case KindPing:
		return "ping"
	case KindAck:
		return "ack"
	case KindPong:
		return "pong"
	default:
		return "unknown"
	}
}

// Frame is a classified inbound frame. Data is only set for KindData.
type Frame struct {
	Kind Kind
	Data []byte
}

// Classify decodes the variant of an inbound frame. Checks run in the fixed
// order close, ping, ack, pong; everything that matches none of them,
// including malformed control payloads, is Data.
func Classify(raw Raw) Frame {
	switch {
	case raw.Type == WireClose:
		return Frame{Kind: KindClose}
	case raw.Type == WirePing && isSingle(raw.Data, OpPing):
		return Frame{Kind: KindPing}
	case raw.Type == WireBinary && isSingle(raw.Data, OpAck):
		return Frame{Kind: KindAck}
	case raw.Type == WirePong && isSingle(raw.Data, OpPong):
		return Frame{Kind: KindPong}
	}
	return Frame{Kind: KindData, Data: raw.Data}
}

func isSingle(b []byte, op Opcode) bool {
	return len(b) == 1 && Opcode(b[0]) == op
}

func Ping() Raw          { return Raw{Type: WirePing, Data: []byte{byte(OpPing)}} }
func Pong() Raw          { return Raw{Type: WirePong, Data: []byte{byte(OpPong)}} }
func Ack() Raw           { return Raw{Type: WireBinary, Data: []byte{byte(OpAck)}} }
func ControlSignal() Raw { return Raw{Type: WireBinary, Data: []byte{byte(OpControlSignal)}} }
func Close() Raw         { return Raw{Type: WireClose} }

// Message wraps payload in a MESSAGE binary frame.
func Message(payload []byte) Raw {
	return Raw{Type: WireBinary, Data: EncodeMessage(payload)}
}

// EncodeMessage returns opcode, 4 byte big-endian length and payload.
func EncodeMessage(payload []byte) []byte {
	w := NewWriter(5 + len(payload))
	w.Uint8(byte(OpMessage))
	w.Bytes32(payload)
	return w.Bytes()
}

// DecodeMessage returns the payload of a MESSAGE frame. Bytes after the
// declared payload are ignored. The result aliases b.
func DecodeMessage(b []byte) ([]byte, error) {
	r := NewReader(b)
	if err := expect(r, OpMessage); err != nil {
		return nil, err
	}
	payload, err := r.Bytes32()
	if err != nil {
		return nil, fmt.Errorf("message payload: %w", err)
	}
	return payload, nil
}

// Receipt confirms that the server stored a message under ID at Timestamp
// (unix milliseconds).
type Receipt struct {
	ID        string
	Timestamp int64
}

// ReceiptFrame wraps r in a RECEIPT binary frame.
func ReceiptFrame(r Receipt) (Raw, error) {
	b, err := EncodeReceipt(r)
	if err != nil {
		return Raw{}, err
	}
	return Raw{Type: WireBinary, Data: b}, nil
}

func EncodeReceipt(r Receipt) ([]byte, error) {
	if len(r.ID) > MaxIDLen {
		return nil, ErrIDTooLong
	}
	w := NewWriter(3 + len(r.ID) + timestampLen)
	w.Uint8(byte(OpReceipt))
	w.Uint8(uint8(len(r.ID)))
	w.Uint8(timestampLen)
	w.Raw([]byte(r.ID))
	w.Int64(r.Timestamp)
	return w.Bytes(), nil
}

func DecodeReceipt(b []byte) (Receipt, error) {
	r := NewReader(b)
	if err := expect(r, OpReceipt); err != nil {
		return Receipt{}, err
	}
	idLen, err := r.Uint8()
	if err != nil {
		return Receipt{}, err
	}
	tsLen, err := r.Uint8()
	if err != nil {
		return Receipt{}, err
	}
	if tsLen != timestampLen {
		return Receipt{}, fmt.Errorf("%w: %d", ErrTimestampLen, tsLen)
	}
	id, err := r.Raw(int(idLen))
	if err != nil {
		return Receipt{}, fmt.Errorf("receipt id: %w", err)
	}
	ts, err := r.Int64()
	if err != nil {
		return Receipt{}, fmt.Errorf("receipt timestamp: %w", err)
	}
	return Receipt{ID: string(id), Timestamp: ts}, nil
}

// PeekOpcode returns the first byte of a binary frame.
func PeekOpcode(b []byte) (Opcode, bool) {
	if len(b) == 0 {
		return 0, false
	}
	return Opcode(b[0]), true
}

func expect(r *Reader, want Opcode) error {
	op, err := r.Uint8()
	if err != nil {
		return err
	}
	if Opcode(op) != want {
		return fmt.Errorf("%w: got %s, want %s", ErrUnexpectedOpcode, Opcode(op), want)
	}
	return nil
}
