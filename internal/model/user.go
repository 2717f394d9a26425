package model

import "time"

// User is the owning account of documents, clients and projects. Company
// fields feed the rendered document header.
type User struct {
	ID           int64
	Email        string
	PasswordHash string
	CompanyName  string
	Address      string
	// Logo holds raw PNG bytes for the document header, empty when the
	// user never uploaded one.
	Logo []byte

	CreatedAt time.Time
	UpdatedAt time.Time
}
