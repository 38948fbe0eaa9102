package apphooks

import "testing"

func TestParseMAC_RoundTrip(t *testing.T) {
	m, status := ParseMAC("AA:BB:CC:DD:EE:FF")
	if !status.OK() {
		t.Fatalf("unexpected status: %v", status)
	}
	if got := m.String(); got != "AA:BB:CC:DD:EE:FF" {
		t.Fatalf("String() = %q, want AA:BB:CC:DD:EE:FF", got)
	}
}

func TestParseMAC_RejectsMalformed(t *testing.T) {
	cases := []string{"", "AA:BB:CC:DD:EE", "AA:BB:CC:DD:EE:FF:00", "ZZ:BB:CC:DD:EE:FF"}
	for _, c := range cases {
		if _, status := ParseMAC(c); status.OK() {
			t.Fatalf("ParseMAC(%q) unexpectedly succeeded", c)
		}
	}
}
