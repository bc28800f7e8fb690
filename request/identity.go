package request

import (
	"fmt"
	"net/url"
	"strings"
)

// Kind identifies the operation a request performs.
type Kind uint8

const (
	// KindGet fetches content-addressed data.
	KindGet Kind = iota
	// KindPut inserts content-addressed data.
	KindPut
)

// String returns the lowercase kind name.
func (k Kind) String() string {
	switch k {
	case KindGet:
		return "get"
	case KindPut:
		return "put"
	default:
		return fmt.Sprintf("kind(%d)", uint8(k))
	}
}

func (k Kind) valid() bool { return k == KindGet || k == KindPut }

// ParseKind parses a kind name produced by Kind.String.
func ParseKind(s string) (Kind, error) {
	switch strings.ToLower(s) {
	case "get":
		return KindGet, nil
	case "put":
		return KindPut, nil
	default:
		return 0, fmt.Errorf("request: unknown kind %q", s)
	}
}

// Identity uniquely names a request within a queue. It is the join key
// between the in-memory record and its durable representation, and is
// immutable once assigned.
type Identity struct {
	// Shared reports whether the request lives on the implicit shared
	// queue rather than a named client's queue.
	Shared bool

	// ClientName is the owning client's name. Empty iff Shared.
	ClientName string

	// Identifier is unique within the owning queue.
	Identifier string

	// Kind is the request's operation kind.
	Kind Kind
}

// Equal reports whether two identities match on all four fields.
func (id Identity) Equal(other Identity) bool {
	return id.Shared == other.Shared &&
		id.ClientName == other.ClientName &&
		id.Identifier == other.Identifier &&
		id.Kind == other.Kind
}

// Validate checks the shared-queue naming invariant.
func (id Identity) Validate() error {
	if id.Shared && id.ClientName != "" {
		return fmt.Errorf("request: shared-queue identity must not carry a client name (got %q)", id.ClientName)
	}
	if !id.Shared && id.ClientName == "" {
		return fmt.Errorf("request: client-queue identity requires a client name")
	}
	if id.Identifier == "" {
		return fmt.Errorf("request: identity requires an identifier")
	}
	if !id.Kind.valid() {
		return fmt.Errorf("request: identity has unknown kind %d", id.Kind)
	}
	return nil
}

// Key renders a stable store key for the identity. Client names and
// identifiers are escaped so the key segments stay unambiguous.
func (id Identity) Key() string {
	queue := "shared"
	if !id.Shared {
		queue = "client:" + url.PathEscape(id.ClientName)
	}
	return queue + "/" + url.PathEscape(id.Identifier) + "/" + id.Kind.String()
}

// String implements fmt.Stringer.
func (id Identity) String() string {
	if id.Shared {
		return fmt.Sprintf("%s %q (shared)", id.Kind, id.Identifier)
	}
	return fmt.Sprintf("%s %q (client %q)", id.Kind, id.Identifier, id.ClientName)
}
