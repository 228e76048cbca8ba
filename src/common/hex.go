package common

import (
	"encoding/hex"
	"fmt"
	"strings"
)

// EncodeToString returns the UPPERCASE string representation of hexBytes with
// the 0X prefix
func EncodeToString(hexBytes []byte) string {
	return fmt.Sprintf("0X%X", hexBytes)
}

// DecodeFromString converts a hex string with 0X prefix to a byte slice
func DecodeFromString(hexString string) ([]byte, error) {
	if len(hexString) < 2 {
		return nil, fmt.Errorf("hex string too short: %q", hexString)
	}
	return hex.DecodeString(hexString[2:])
}

// CleanseHex standardises a hex string to the 0X-prefixed uppercase form
// produced by EncodeToString. Inputs with or without prefix are accepted.
func CleanseHex(s string) string {
	upper := strings.ToUpper(strings.TrimSpace(s))
	return "0X" + strings.TrimPrefix(upper, "0X")
}
