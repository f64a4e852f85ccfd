package models

import "strings"

// NormalizeMAC canonicalizes a MAC address to uppercase colon-separated
// six-octet form. It accepts colon-, dash-, or dot-separated input as well
// as bare 12-digit hex, and is idempotent. Every registry, persona, and
// alert lookup keys on this canonical form, so callers must normalize
// before any comparison or write.
func NormalizeMAC(mac string) string {
	cleaned := strings.ToUpper(mac)
	cleaned = strings.ReplaceAll(cleaned, "-", ":")
	cleaned = strings.ReplaceAll(cleaned, ".", "")
	if !strings.Contains(cleaned, ":") && len(cleaned) == 12 {
		var b strings.Builder
		b.Grow(17)
		for i := 0; i < 12; i += 2 {
			if i > 0 {
				b.WriteByte(':')
			}
			b.WriteString(cleaned[i : i+2])
		}
		return b.String()
	}
	return cleaned
}

// IsLocallyAdministered reports whether the MAC has its U/L bit set
// (bit 0x02 of the first octet). Set means the address is locally
// administered, typically a software-randomized MAC.
func IsLocallyAdministered(mac string) bool {
	normalized := NormalizeMAC(mac)
	first, _, ok := strings.Cut(normalized, ":")
	if !ok || len(first) != 2 {
		return false
	}
	return hexOctet(first)&0x02 != 0
}

// hexOctet parses a two-character hex byte. Invalid input yields 0, which
// reads as "not locally administered" rather than an error.
func hexOctet(s string) byte {
	var v byte
	for i := 0; i < 2; i++ {
		c := s[i]
		v <<= 4
		switch {
		case c >= '0' && c <= '9':
			v |= c - '0'
		case c >= 'A' && c <= 'F':
			v |= c - 'A' + 10
		case c >= 'a' && c <= 'f':
			v |= c - 'a' + 10
		default:
			return 0
		}
	}
	return v
}
