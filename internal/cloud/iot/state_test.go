package iot

import "testing"

func TestTransition(t *testing.T) {
	tests := []struct {
		name string
		from State
		ev   EventType
		want State
	}{
		{"attempt from disconnected", StateDisconnected, EventAttemptingConnect, StateConnecting},
		{"attempt while connected is ignored", StateConnected, EventAttemptingConnect, StateConnected},
		{"success while connecting", StateConnecting, EventConnectionSuccess, StateConnected},
		{"success without attempt is ignored", StateDisconnected, EventConnectionSuccess, StateDisconnected},
		{"failure while connecting", StateConnecting, EventConnectionFailure, StateDisconnected},
		{"failure while connected", StateConnected, EventConnectionFailure, StateDisconnected},
		{"loss while connected", StateConnected, EventDisconnection, StateDisconnected},
		{"stop requested while connected", StateConnected, eventStopRequested, StateDisconnecting},
		{"stop requested while connecting", StateConnecting, eventStopRequested, StateDisconnecting},
		{"stop requested while disconnected", StateDisconnected, eventStopRequested, StateDisconnected},
		{"disconnection while disconnecting", StateDisconnecting, EventDisconnection, StateDisconnected},
		{"stopped while disconnecting", StateDisconnecting, EventStopped, StateDisconnected},
		{"message keeps state", StateConnected, EventMessage, StateConnected},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := transition(tt.from, tt.ev); got != tt.want {
				t.Errorf("transition(%v, %v) = %v, want %v", tt.from, tt.ev, got, tt.want)
			}
		})
	}
}

func TestLostConnection(t *testing.T) {
	if !lostConnection(StateConnected, EventDisconnection) {
		t.Error("disconnection of a connected session should count as lost")
	}
	if lostConnection(StateDisconnecting, EventDisconnection) {
		t.Error("requested disconnect should not count as lost")
	}
	if lostConnection(StateConnecting, EventConnectionFailure) {
		t.Error("failed handshake is reported by Connect, not as a loss")
	}
}
