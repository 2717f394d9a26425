package model

import "time"

// MilestoneStatus tracks whether the batch generator has attempted a
// milestone. The transition pending -> created happens exactly once.
type MilestoneStatus string

const (
	MilestonePending MilestoneStatus = "pending"
	MilestoneCreated MilestoneStatus = "created"
)

// Milestone is a scheduled, amount-bearing invoice trigger. It belongs to a
// payment term of an agreement; ProjectID and ServiceType are denormalized
// from the agreement when loading due milestones.
type Milestone struct {
	ID            int64
	PaymentTermID int64
	ProjectID     int64
	OwnerID       int64
	ServiceType   string
	Currency      string
	Date          time.Time
	Amount        float64
	Description   string
	Status        MilestoneStatus

	CreatedAt time.Time
	UpdatedAt time.Time
}
