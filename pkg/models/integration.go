package models

import "time"

// Integration is a per-user named credential bound to an integration type.
// Config holds the encrypted configuration blob and is never serialized.
type Integration struct {
	ID        string    `json:"id"`
	Owner     string    `json:"owner"`
	Name      string    `json:"name"`
	Type      string    `json:"type"`
	Config    []byte    `json:"-"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}
