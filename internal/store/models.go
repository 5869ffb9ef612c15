package store

import "time"

type User struct {
	ID                    string
	Email                 string
	DisplayName           string
	PasswordHash          string
	IsEmailVerified       bool
	VerificationToken     string
	VerificationExpiresAt *time.Time
	CreatedAt             time.Time
}

// Norm is a trackable daily practice owned by one user. Default norms
// are seeded on first use and can be deactivated but never deleted.
type Norm struct {
	ID           string
	UserID       string
	Name         string
	IsActive     bool
	IsDefault    bool
	DisplayOrder int
	CreatedAt    time.Time
}

// Completion records that a norm was done on a calendar day. The norm
// is referenced by name, matching the checklist row shown to the user
// at completion time; there is at most one row per (user, name, day).
type Completion struct {
	UserID        string
	NormName      string
	CompletedDate time.Time
	CreatedAt     time.Time
}
