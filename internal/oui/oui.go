// Package oui resolves MAC address prefixes to manufacturer names.
package oui

import (
	"strings"
	"sync"

	"hearthwatch/pkg/models"
)

// builtinPrefixes maps the first three octets of a MAC to a vendor name.
// This is a deliberately small table covering common household equipment;
// unknown prefixes resolve to the empty string and the device simply
// carries no vendor.
var builtinPrefixes = map[string]string{
	"00:03:7F": "Atheros Communications",
	"00:0C:29": "VMware",
	"00:11:32": "Synology",
	"00:17:88": "Philips Lighting",
	"00:1A:11": "Google",
	"00:50:56": "VMware",
	"08:00:27": "PCS Systemtechnik (VirtualBox)",
	"18:B4:30": "Nest Labs",
	"24:0A:C4": "Espressif",
	"28:6C:07": "XIAOMI Electronics",
	"30:AE:A4": "Espressif",
	"3C:22:FB": "Apple",
	"40:B4:CD": "Amazon Technologies",
	"44:65:0D": "Amazon Technologies",
	"48:D6:D5": "Google",
	"5C:CF:7F": "Espressif",
	"64:16:66": "Nest Labs",
	"68:C6:3A": "Espressif",
	"74:C2:46": "Amazon Technologies",
	"78:4F:43": "Apple",
	"7C:D9:5C": "Google",
	"88:71:E5": "Amazon Technologies",
	"94:9F:3E": "Sonos",
	"A0:20:A6": "Espressif",
	"A4:77:33": "Google",
	"AC:63:BE": "Amazon Technologies",
	"B0:BE:76": "TP-Link",
	"B4:E6:2D": "Espressif",
	"B8:27:EB": "Raspberry Pi Foundation",
	"CC:50:E3": "Espressif",
	"D8:3A:DD": "Raspberry Pi Trading",
	"DC:A6:32": "Raspberry Pi Trading",
	"E0:63:DA": "Ubiquiti Networks",
	"E4:5F:01": "Raspberry Pi Trading",
	"EC:FA:BC": "Espressif",
	"F0:9F:C2": "Ubiquiti Networks",
	"F4:F5:D8": "Google",
	"FC:EC:DA": "Ubiquiti Networks",
}

// Table resolves vendors from MAC prefixes, caching per-MAC results so
// repeated sightings of the same device cost one map probe.
type Table struct {
	mu       sync.RWMutex
	prefixes map[string]string
	cache    map[string]string // normalized MAC -> vendor ("" = unknown)
}

// NewTable creates a Table seeded with the built-in prefix database.
func NewTable() *Table {
	prefixes := make(map[string]string, len(builtinPrefixes))
	for k, v := range builtinPrefixes {
		prefixes[k] = v
	}
	return &Table{
		prefixes: prefixes,
		cache:    make(map[string]string),
	}
}

// Lookup returns the manufacturer for the given MAC, or the empty string
// when the prefix is unknown or the input is malformed. It never fails.
func (t *Table) Lookup(mac string) string {
	normalized := models.NormalizeMAC(mac)

	t.mu.RLock()
	vendor, hit := t.cache[normalized]
	t.mu.RUnlock()
	if hit {
		return vendor
	}

	t.mu.Lock()
	defer t.mu.Unlock()
	if len(normalized) >= 8 {
		vendor = t.prefixes[normalized[:8]]
	}
	t.cache[normalized] = vendor
	return vendor
}

// Add registers an extra prefix ("AA:BB:CC") to vendor mapping, extending
// the built-in table from configuration or tests.
func (t *Table) Add(prefix, vendor string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.prefixes[strings.ToUpper(prefix)] = vendor
	t.cache = make(map[string]string)
}
