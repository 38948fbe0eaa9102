package corepin

import "testing"

func TestPinUnpin_CoreZero(t *testing.T) {
	if err := Pin(0); err != nil {
		t.Fatalf("Pin(0): %v", err)
	}
	Unpin()
}
