package apphooks

import (
	"fmt"
	"strconv"
	"strings"
)

// MAC is a 6-byte Ethernet hardware address, shared by configuration
// parsing, the port initializer, and the header generator so none of
// them need their own address type.
type MAC [6]byte

// String renders m as "XX:XX:XX:XX:XX:XX".
func (m MAC) String() string {
	return fmt.Sprintf("%02X:%02X:%02X:%02X:%02X:%02X", m[0], m[1], m[2], m[3], m[4], m[5])
}

// ParseMAC parses s in "XX:XX:XX:XX:XX:XX" form. It returns
// StatusInvalidValue for anything else, including short forms, extra
// separators, or non-hex octets.
func ParseMAC(s string) (MAC, Status) {
	var m MAC
	parts := strings.Split(s, ":")
	if len(parts) != 6 {
		return m, StatusInvalidValue
	}
	for i, part := range parts {
		v, err := strconv.ParseUint(part, 16, 8)
		if err != nil {
			return m, StatusInvalidValue
		}
		m[i] = byte(v)
	}
	return m, StatusOK
}
