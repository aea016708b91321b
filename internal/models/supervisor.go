package models

// Supervisor may change configuration and clear the ledger.
type Supervisor struct {
	ID           int    `json:"id"`
	Username     string `json:"username"`
	PasswordHash string `json:"-"`
}
