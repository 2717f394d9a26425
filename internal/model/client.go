package model

import "time"

// Client is a billable counterparty of an owner.
type Client struct {
	ID      int64
	OwnerID int64
	Name    string
	Email   string
	Address string

	CreatedAt time.Time
	UpdatedAt time.Time
}

// Category is a billable line-item category. Names are matched
// case-insensitively when resolving, so "Design" and "design" are one
// category.
type Category struct {
	ID      int64
	OwnerID int64
	Name    string
}
