package wsconn

import "testing"

func TestState_String(t *testing.T) {
	tests := []struct {
		state State
		want  string
	}{
		{StateIdle, "idle"},
		{StateConnecting, "connecting"},
		{StateOpen, "open"},
		{StateClosing, "closing"},
		{StateRetryWait, "retry_wait"},
		{StateTerminated, "terminated"},
		{State(99), "unknown"},
	}

	for _, tt := range tests {
		got := tt.state.String()
		if got != tt.want {
			t.Errorf("State(%d).String() = %q, want %q", tt.state, got, tt.want)
		}
	}
}

func TestState_CanTransitionTo(t *testing.T) {
	tests := []struct {
		from, to State
		want     bool
	}{
		{StateIdle, StateConnecting, true},
		{StateIdle, StateOpen, false},
		{StateConnecting, StateOpen, true},
		{StateConnecting, StateClosing, true},
		{StateConnecting, StateRetryWait, false},
		{StateOpen, StateClosing, true},
		{StateOpen, StateIdle, true},
		{StateOpen, StateRetryWait, false},
		{StateClosing, StateRetryWait, true},
		{StateClosing, StateTerminated, true},
		{StateClosing, StateOpen, false},
		{StateRetryWait, StateConnecting, true},
		{StateRetryWait, StateIdle, true},
		{StateRetryWait, StateOpen, false},
		{StateTerminated, StateConnecting, true},
		{StateTerminated, StateIdle, true},
		{StateTerminated, StateRetryWait, false},
	}

	for _, tt := range tests {
		got := tt.from.CanTransitionTo(tt.to)
		if got != tt.want {
			t.Errorf("%v -> %v = %v, want %v", tt.from, tt.to, got, tt.want)
		}
	}
}
