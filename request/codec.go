package request

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"io"
	"math"
	"time"
)

// Durable record format: 8-byte big-endian magic, 4-byte version, the
// request identity, then the scheduling fields in fixed order with no
// padding. Strings are a uint16 byte length followed by UTF-8 bytes.
const (
	// Magic is the 8-byte constant opening every durable record.
	Magic uint64 = 0xebf0b4f4fa9f6721
	// Version is the current record format version.
	Version uint32 = 1
)

// FormatError reports malformed or mismatched data during record
// deserialization. It is always fatal to that single record's
// resumption and never corrupts sibling records.
type FormatError struct {
	Reason string
	Err    error
}

// Error implements error.
func (e *FormatError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("request: bad record format: %s: %v", e.Reason, e.Err)
	}
	return "request: bad record format: " + e.Reason
}

// Unwrap returns the underlying cause, if any.
func (e *FormatError) Unwrap() error { return e.Err }

func formatErr(reason string) error { return &FormatError{Reason: reason} }

func formatErrf(reason string, err error) error {
	return &FormatError{Reason: reason, Err: err}
}

// ── Binary primitives ───────────────────────────────

type encoder struct {
	buf bytes.Buffer
	err error
}

func newEncoder() *encoder { return &encoder{} }

func (e *encoder) bytes() ([]byte, error) {
	if e.err != nil {
		return nil, e.err
	}
	return e.buf.Bytes(), nil
}

func (e *encoder) writeUint64(v uint64) {
	var b [8]byte
	binary.BigEndian.PutUint64(b[:], v)
	e.buf.Write(b[:])
}

func (e *encoder) writeUint32(v uint32) {
	var b [4]byte
	binary.BigEndian.PutUint32(b[:], v)
	e.buf.Write(b[:])
}

func (e *encoder) writeInt64(v int64) { e.writeUint64(uint64(v)) }
func (e *encoder) writeInt32(v int32) { e.writeUint32(uint32(v)) }
func (e *encoder) writeUint8(v uint8) { e.buf.WriteByte(v) }

func (e *encoder) writeInt16(v int16) {
	var b [2]byte
	binary.BigEndian.PutUint16(b[:], uint16(v))
	e.buf.Write(b[:])
}

func (e *encoder) writeBool(v bool) {
	if v {
		e.buf.WriteByte(1)
	} else {
		e.buf.WriteByte(0)
	}
}

func (e *encoder) writeString(s string) {
	if len(s) > math.MaxUint16 {
		if e.err == nil {
			e.err = fmt.Errorf("request: string field of %d bytes exceeds format limit", len(s))
		}
		return
	}
	var b [2]byte
	binary.BigEndian.PutUint16(b[:], uint16(len(s)))
	e.buf.Write(b[:])
	e.buf.WriteString(s)
}

type decoder struct {
	r *bytes.Reader
}

func newDecoder(blob []byte) *decoder { return &decoder{r: bytes.NewReader(blob)} }

func (d *decoder) read(b []byte) error {
	if _, err := io.ReadFull(d.r, b); err != nil {
		return formatErrf("truncated record", err)
	}
	return nil
}

func (d *decoder) readUint64() (uint64, error) {
	var b [8]byte
	if err := d.read(b[:]); err != nil {
		return 0, err
	}
	return binary.BigEndian.Uint64(b[:]), nil
}

func (d *decoder) readUint32() (uint32, error) {
	var b [4]byte
	if err := d.read(b[:]); err != nil {
		return 0, err
	}
	return binary.BigEndian.Uint32(b[:]), nil
}

func (d *decoder) readInt64() (int64, error) {
	v, err := d.readUint64()
	return int64(v), err
}

func (d *decoder) readInt32() (int32, error) {
	v, err := d.readUint32()
	return int32(v), err
}

func (d *decoder) readInt16() (int16, error) {
	var b [2]byte
	if err := d.read(b[:]); err != nil {
		return 0, err
	}
	return int16(binary.BigEndian.Uint16(b[:])), nil
}

func (d *decoder) readUint8() (uint8, error) {
	var b [1]byte
	if err := d.read(b[:]); err != nil {
		return 0, err
	}
	return b[0], nil
}

func (d *decoder) readBool() (bool, error) {
	b, err := d.readUint8()
	if err != nil {
		return false, err
	}
	switch b {
	case 0:
		return false, nil
	case 1:
		return true, nil
	default:
		return false, formatErr(fmt.Sprintf("bad boolean byte 0x%02x", b))
	}
}

func (d *decoder) readString() (string, error) {
	var b [2]byte
	if err := d.read(b[:]); err != nil {
		return "", err
	}
	n := int(binary.BigEndian.Uint16(b[:]))
	if n == 0 {
		return "", nil
	}
	s := make([]byte, n)
	if err := d.read(s); err != nil {
		return "", formatErr("truncated string field")
	}
	return string(s), nil
}

// ── Identity codec ──────────────────────────────────

func (id Identity) writeTo(e *encoder) {
	e.writeBool(id.Shared)
	if !id.Shared {
		e.writeString(id.ClientName)
	}
	e.writeString(id.Identifier)
	e.writeUint8(uint8(id.Kind))
}

func readIdentity(d *decoder) (Identity, error) {
	var id Identity
	var err error
	if id.Shared, err = d.readBool(); err != nil {
		return id, err
	}
	if !id.Shared {
		if id.ClientName, err = d.readString(); err != nil {
			return id, err
		}
	}
	if id.Identifier, err = d.readString(); err != nil {
		return id, err
	}
	k, err := d.readUint8()
	if err != nil {
		return id, err
	}
	id.Kind = Kind(k)
	if !id.Kind.valid() {
		return id, formatErr(fmt.Sprintf("unknown request kind %d", k))
	}
	return id, nil
}

// ── Record header codec ─────────────────────────────

// Header is the fixed-schema portion of a durable record, shared by all
// request kinds. Kind-specific detail follows it in the byte stream.
type Header struct {
	Identity      Identity
	Realtime      bool
	Verbosity     int32
	StartupTime   time.Time
	PriorityClass PriorityClass
	ClientToken   *string
	Finished      bool
}

func (h Header) writeTo(e *encoder) {
	e.writeUint64(Magic)
	e.writeUint32(Version)
	h.Identity.writeTo(e)
	e.writeBool(h.Realtime)
	e.writeInt32(h.Verbosity)
	e.writeInt64(h.StartupTime.UnixMilli())
	e.writeInt16(int16(h.PriorityClass))
	if h.ClientToken == nil {
		e.writeBool(false)
	} else {
		e.writeBool(true)
		e.writeString(*h.ClientToken)
	}
	e.writeBool(h.Finished)
}

// decodeHeader reads and validates the common header, requiring the
// embedded identity to equal want. Validation is strict and fail-fast:
// bad magic or version, an identity that differs from want, or an
// out-of-range priority class all yield a *FormatError, because a
// corrupted durable record must never silently produce a request with
// invalid scheduling parameters.
func decodeHeader(d *decoder, want Identity) (Header, error) {
	var h Header

	magic, err := d.readUint64()
	if err != nil {
		return h, err
	}
	if magic != Magic {
		return h, formatErr(fmt.Sprintf("bad magic 0x%016x", magic))
	}
	version, err := d.readUint32()
	if err != nil {
		return h, err
	}
	if version != Version {
		return h, formatErr(fmt.Sprintf("unsupported version %d", version))
	}

	id, err := readIdentity(d)
	if err != nil {
		return h, err
	}
	if !id.Equal(want) {
		return h, formatErr(fmt.Sprintf("identity mismatch: stored %s, expected %s", id, want))
	}
	h.Identity = id

	if h.Realtime, err = d.readBool(); err != nil {
		return h, err
	}
	if h.Verbosity, err = d.readInt32(); err != nil {
		return h, err
	}
	startMilli, err := d.readInt64()
	if err != nil {
		return h, err
	}
	h.StartupTime = time.UnixMilli(startMilli)

	prio, err := d.readInt16()
	if err != nil {
		return h, err
	}
	h.PriorityClass = PriorityClass(prio)
	if !h.PriorityClass.Valid() {
		return h, formatErr(fmt.Sprintf("priority class %d out of range", prio))
	}

	hasToken, err := d.readBool()
	if err != nil {
		return h, err
	}
	if hasToken {
		tok, tokErr := d.readString()
		if tokErr != nil {
			return h, tokErr
		}
		h.ClientToken = &tok
	}

	if h.Finished, err = d.readBool(); err != nil {
		return h, err
	}
	return h, nil
}

// DecodeHeader reads and validates the common header of an encoded
// record, discarding any kind-specific detail that follows. Tools use
// it to inspect durable records without reconstructing them.
func DecodeHeader(blob []byte, want Identity) (Header, error) {
	return decodeHeader(newDecoder(blob), want)
}
