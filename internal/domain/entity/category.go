package entity

import "time"

// Category is one row of the fixed display taxonomy. The set of valid names is
// closed; rows are seeded by migration and never created dynamically.
type Category struct {
	ID          int64
	Name        string
	DisplayName string
	Color       string
}

// CategoryMapping is an operator-managed override mapping a raw AI label to a
// fixed category. Matched case-insensitively before the built-in keyword table.
type CategoryMapping struct {
	ID                  int64
	AICategory          string
	FixedCategory       string
	ConfidenceThreshold float64
	IsActive            bool
	UsageCount          int64
	LastUsed            *time.Time
	CreatedAt           time.Time
}
