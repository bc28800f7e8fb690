package request

import (
	"fmt"
	"strings"
)

// Tier is a request's durability class.
type Tier uint8

const (
	// TierConnection requests die when their originating session ends
	// and are never serialized.
	TierConnection Tier = iota
	// TierReboot requests survive session loss but not process restart.
	TierReboot
	// TierForever requests are written to durable storage and resumed
	// after a process restart.
	TierForever
)

// String returns the wire name of the tier.
func (t Tier) String() string {
	switch t {
	case TierConnection:
		return "connection"
	case TierReboot:
		return "reboot"
	case TierForever:
		return "forever"
	default:
		return fmt.Sprintf("tier(%d)", uint8(t))
	}
}

// Persistent reports whether the request outlives its session.
func (t Tier) Persistent() bool { return t != TierConnection }

func (t Tier) valid() bool { return t <= TierForever }

// ParseTier parses a tier name. An empty string means TierConnection.
func ParseTier(s string) (Tier, error) {
	switch strings.ToLower(s) {
	case "", "connection":
		return TierConnection, nil
	case "reboot":
		return TierReboot, nil
	case "forever":
		return TierForever, nil
	default:
		return 0, fmt.Errorf("request: unknown durability tier %q", s)
	}
}
