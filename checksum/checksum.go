// Package checksum frames durable blobs with an integrity check. Every
// record written to the record store is wrapped by a Checker so that a
// corrupted blob is detected before deserialization is attempted.
package checksum

import (
	"encoding/binary"
	"errors"
	"hash/crc32"
)

var (
	// ErrMismatch means the stored checksum does not match the payload.
	ErrMismatch = errors.New("checksum: mismatch")
	// ErrTruncated means the blob is too short to carry a checksum.
	ErrTruncated = errors.New("checksum: blob truncated")
)

// Checker appends and verifies a fixed-length checksum trailer.
type Checker interface {
	// Length returns the trailer length in bytes.
	Length() int

	// Append returns data with the checksum trailer appended.
	Append(data []byte) []byte

	// Verify strips and checks the trailer, returning the payload.
	Verify(framed []byte) ([]byte, error)

	// Name identifies the algorithm (e.g. "crc32").
	Name() string
}

// CRC32 is a Checker using the IEEE CRC-32 polynomial with a big-endian
// 4-byte trailer.
type CRC32 struct{}

// NewCRC32 returns a CRC-32 checker.
func NewCRC32() CRC32 { return CRC32{} }

// Length implements Checker.
func (CRC32) Length() int { return 4 }

// Name implements Checker.
func (CRC32) Name() string { return "crc32" }

// Append implements Checker.
func (CRC32) Append(data []byte) []byte {
	out := make([]byte, len(data)+4)
	copy(out, data)
	binary.BigEndian.PutUint32(out[len(data):], crc32.ChecksumIEEE(data))
	return out
}

// Verify implements Checker.
func (CRC32) Verify(framed []byte) ([]byte, error) {
	if len(framed) < 4 {
		return nil, ErrTruncated
	}
	payload := framed[:len(framed)-4]
	want := binary.BigEndian.Uint32(framed[len(framed)-4:])
	if crc32.ChecksumIEEE(payload) != want {
		return nil, ErrMismatch
	}
	return payload, nil
}
