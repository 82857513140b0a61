package tcp

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"net"
	"time"
)

// wire layout of one record (fixed size, no delimiters):
//
//	offset 0: version (1 byte)
//	offset 1: type    (1 byte)
//	offset 2: length  (2 bytes, little-endian)
//	offset 4: payload (1000 bytes, only the first length bytes are meaningful)
//
// little-endian matches the x86 struct layout used by the original lab clients
const (
	HeaderSize      = 4
	PayloadCapacity = 1000
	RecordSize      = HeaderSize + PayloadCapacity // 1004 bytes
)

// protocol constants understood by the relay
const (
	ProtocolVersion uint8 = 102
	TypeBroadcast   uint8 = 77
	TypeReverseEcho uint8 = 201
)

var (
	ErrMalformedMessage = errors.New("malformed message")
	ErrPayloadTooLarge  = fmt.Errorf("%w: payload exceeds %d bytes", ErrMalformedMessage, PayloadCapacity)
	ErrNoData           = errors.New("no data yet")
	ErrPeerDisconnected = errors.New("peer disconnected")
	ErrTransport        = errors.New("transport error")
)

// Message is one fixed-size wire record
type Message struct {
	Version uint8
	Type    uint8
	Length  uint16
	Payload [PayloadCapacity]byte
}

// NewMessage builds a record from a payload, refusing payloads that do not fit
func NewMessage(version, msgType uint8, payload []byte) (*Message, error) {
	if len(payload) > PayloadCapacity {
		return nil, ErrPayloadTooLarge
	}
	m := &Message{
		Version: version,
		Type:    msgType,
		Length:  uint16(len(payload)),
	}
	copy(m.Payload[:], payload)
	return m, nil
}

// Valid reports whether the length field fits the payload capacity
func (m *Message) Valid() bool {
	return int(m.Length) <= PayloadCapacity
}

// Body returns the meaningful payload bytes (nil if the record is malformed)
func (m *Message) Body() []byte {
	if !m.Valid() {
		return nil
	}
	return m.Payload[:m.Length]
}

// Text returns the meaningful payload as a string
func (m *Message) Text() string {
	return string(m.Body())
}

// Reverse reverses the meaningful bytes in place; padding is left untouched
func (m *Message) Reverse() {
	body := m.Body()
	for i, j := 0, len(body)-1; i < j; i, j = i+1, j-1 {
		body[i], body[j] = body[j], body[i]
	}
}

// MarshalBinary encodes the record into exactly RecordSize bytes
func (m *Message) MarshalBinary() ([]byte, error) {
	if !m.Valid() {
		return nil, ErrPayloadTooLarge
	}
	buf := make([]byte, RecordSize)
	buf[0] = m.Version
	buf[1] = m.Type
	binary.LittleEndian.PutUint16(buf[2:4], m.Length)
	copy(buf[HeaderSize:], m.Payload[:])
	return buf, nil
}

// UnmarshalBinary decodes exactly one record. A record whose length field
// exceeds the capacity is rejected, never truncated.
func (m *Message) UnmarshalBinary(data []byte) error {
	if len(data) != RecordSize {
		return fmt.Errorf("%w: record is %d bytes, want %d", ErrMalformedMessage, len(data), RecordSize)
	}
	length := binary.LittleEndian.Uint16(data[2:4])
	if int(length) > PayloadCapacity {
		return fmt.Errorf("%w: length field %d", ErrPayloadTooLarge, length)
	}
	m.Version = data[0]
	m.Type = data[1]
	m.Length = length
	copy(m.Payload[:], data[HeaderSize:])
	return nil
}

// WriteMessage sends the whole record, retrying short writes until every
// byte is out or the writer reports a hard failure
func WriteMessage(w io.Writer, m *Message) error {
	buf, err := m.MarshalBinary()
	if err != nil {
		return err
	}
	_, err = writeFull(w, buf)
	return err
}

// writeFull returns how many bytes made it out so callers can tell a clean
// failure from one that left half a record on the stream
func writeFull(w io.Writer, buf []byte) (int, error) {
	sent := 0
	for sent < len(buf) {
		n, err := w.Write(buf[sent:])
		sent += n
		if err != nil {
			return sent, fmt.Errorf("%w: %v", ErrTransport, err)
		}
		if n == 0 {
			return sent, fmt.Errorf("%w: %v", ErrTransport, io.ErrShortWrite)
		}
	}
	return sent, nil
}

// RecordReader reads records from a connection in bounded poll windows.
// Bytes of a partially received record survive across polls.
type RecordReader struct {
	conn net.Conn
	buf  [RecordSize]byte
	n    int
}

func NewRecordReader(conn net.Conn) *RecordReader {
	return &RecordReader{conn: conn}
}

// Poll waits at most timeout for the rest of one record. It returns a
// complete record, ErrNoData when the window expired first, or a terminal
// ErrPeerDisconnected / ErrTransport error. ErrMalformedMessage means a full
// record arrived but was rejected; the stream is still aligned.
func (r *RecordReader) Poll(timeout time.Duration) (*Message, error) {
	if err := r.conn.SetReadDeadline(time.Now().Add(timeout)); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrTransport, err)
	}

	for r.n < RecordSize {
		n, err := r.conn.Read(r.buf[r.n:])
		r.n += n
		if err == nil {
			continue
		}
		var netErr net.Error
		if errors.As(err, &netErr) && netErr.Timeout() {
			return nil, ErrNoData
		}
		if errors.Is(err, io.EOF) {
			return nil, ErrPeerDisconnected
		}
		return nil, fmt.Errorf("%w: %v", ErrTransport, err)
	}

	r.n = 0
	var m Message
	if err := m.UnmarshalBinary(r.buf[:]); err != nil {
		return nil, err
	}
	return &m, nil
}
