package entity

import "time"

// Participant is one member of the fixed household roster.
// Handle is the opaque address the transport layer delivers to; the core
// never interprets it.
type Participant struct {
	ID       int64  `json:"id"`
	Handle   string `json:"handle"`
	Name     string `json:"name"`
	Active   bool   `json:"active"`
	JoinedAt time.Time `json:"joined_at"`
}
