package models

// User is an operator account for the local HTTP API. It has nothing to do
// with the MEATER cloud account.
type User struct {
	ID           int    `json:"id"`
	Username     string `json:"username"`
	PasswordHash string `json:"-"` // don’t expose hash
}
