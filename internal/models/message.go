package models

// Message is a one-way chat message handed to the transport core.
type Message struct {
	ID        string  `json:"id"`   // ULID
	From      Address `json:"from"` // Includes the sending resource
	To        Address `json:"to"`   // Bare address
	Body      string  `json:"body"`
	Timestamp int64   `json:"ts"` // Unix ms
}
