package domain

import (
	"errors"
	"testing"
)

func TestEdgeKind_String(t *testing.T) {
	tests := []struct {
		kind EdgeKind
		want string
	}{
		{EdgeRising, "rising"},
		{EdgeFalling, "falling"},
		{EdgeKind(0), "unknown"},
	}

	for _, tt := range tests {
		if got := tt.kind.String(); got != tt.want {
			t.Errorf("EdgeKind(%d).String() = %s, want %s", tt.kind, got, tt.want)
		}
	}
}

func TestLevel_String(t *testing.T) {
	if High.String() != "HIGH" || Low.String() != "LOW" {
		t.Errorf("got %s/%s, want HIGH/LOW", High, Low)
	}
}

func TestDispatchOutcome_String(t *testing.T) {
	tests := []struct {
		name    string
		outcome DispatchOutcome
		want    string
	}{
		{"delivered", DeliveredOutcome(200), "delivered{200}"},
		{"rejected", RejectedOutcome(503), "rejected{503}"},
		{"timeout", TransportFailureOutcome(ReasonTimeout, errors.New("deadline")), "transport_failure{timeout}"},
		{"zero value", DispatchOutcome{}, "none"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.outcome.String(); got != tt.want {
				t.Errorf("String() = %s, want %s", got, tt.want)
			}
		})
	}
}
