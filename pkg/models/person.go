package models

import "time"

// Person groups one or more devices under a single human identity.
type Person struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	CreatedAt time.Time `json:"created_at"`
}

// PersonDevice links a device to its owning person. The MAC side is
// unique: a device belongs to at most one person at a time.
type PersonDevice struct {
	PersonID   string `json:"person_id"`
	MACAddress string `json:"mac_address"`
}
