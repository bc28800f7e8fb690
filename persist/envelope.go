package persist

import (
	"fmt"

	"github.com/vmihailenco/msgpack/v5"

	"github.com/warrennet/warren/checksum"
	"github.com/warrennet/warren/request"
)

// envelope is the store-level wrapper around one encoded record. It
// carries the identity redundantly so the resume path can hand the
// codec an expected identity to cross-check against the payload —
// a mismatch means the store and its index desynchronized.
type envelope struct {
	Shared     bool   `msgpack:"shared"`
	ClientName string `msgpack:"client_name,omitempty"`
	Identifier string `msgpack:"identifier"`
	Kind       uint8  `msgpack:"kind"`
	Payload    []byte `msgpack:"payload"`
}

func (e envelope) identity() request.Identity {
	return request.Identity{
		Shared:     e.Shared,
		ClientName: e.ClientName,
		Identifier: e.Identifier,
		Kind:       request.Kind(e.Kind),
	}
}

// sealRecord wraps encoded record bytes in an envelope and checksum
// frame ready for the store.
func sealRecord(id request.Identity, payload []byte, checker checksum.Checker) ([]byte, error) {
	env := envelope{
		Shared:     id.Shared,
		ClientName: id.ClientName,
		Identifier: id.Identifier,
		Kind:       uint8(id.Kind),
		Payload:    payload,
	}
	packed, err := msgpack.Marshal(env)
	if err != nil {
		return nil, fmt.Errorf("persist: seal %s: %w", id, err)
	}
	return checker.Append(packed), nil
}

// OpenRecord verifies and unwraps a stored blob, returning the expected
// identity and the raw record payload. Inspection tools use it to read
// store contents offline.
func OpenRecord(blob []byte, checker checksum.Checker) (request.Identity, []byte, error) {
	packed, err := checker.Verify(blob)
	if err != nil {
		return request.Identity{}, nil, err
	}
	var env envelope
	if err := msgpack.Unmarshal(packed, &env); err != nil {
		return request.Identity{}, nil, fmt.Errorf("persist: bad envelope: %w", err)
	}
	id := env.identity()
	if err := id.Validate(); err != nil {
		return request.Identity{}, nil, fmt.Errorf("persist: bad envelope identity: %w", err)
	}
	return id, env.Payload, nil
}
