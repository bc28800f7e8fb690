package request_test

import (
	"testing"

	"github.com/warrennet/warren/request"
)

func TestParseTier(t *testing.T) {
	tests := []struct {
		in      string
		want    request.Tier
		wantErr bool
	}{
		{"connection", request.TierConnection, false},
		{"", request.TierConnection, false},
		{"reboot", request.TierReboot, false},
		{"forever", request.TierForever, false},
		{"FOREVER", request.TierForever, false},
		{"eternal", 0, true},
	}
	for _, tt := range tests {
		got, err := request.ParseTier(tt.in)
		if tt.wantErr {
			if err == nil {
				t.Errorf("ParseTier(%q): expected error", tt.in)
			}
			continue
		}
		if err != nil {
			t.Errorf("ParseTier(%q): %v", tt.in, err)
			continue
		}
		if got != tt.want {
			t.Errorf("ParseTier(%q) = %v, want %v", tt.in, got, tt.want)
		}
	}
}

func TestTier_RoundTripsThroughString(t *testing.T) {
	for _, tier := range []request.Tier{request.TierConnection, request.TierReboot, request.TierForever} {
		got, err := request.ParseTier(tier.String())
		if err != nil {
			t.Errorf("ParseTier(%q): %v", tier.String(), err)
			continue
		}
		if got != tier {
			t.Errorf("round trip %v = %v", tier, got)
		}
	}
}

func TestTier_Persistent(t *testing.T) {
	if request.TierConnection.Persistent() {
		t.Error("connection tier reported persistent")
	}
	if !request.TierReboot.Persistent() {
		t.Error("reboot tier reported non-persistent")
	}
	if !request.TierForever.Persistent() {
		t.Error("forever tier reported non-persistent")
	}
}
