package model

// RemoteAccount is an account as reported by a platform's API.
type RemoteAccount struct {
	ID     string // Platform-internal identifier.
	Handle string
	Name   string
}
