package models

import (
	"time"

	"github.com/google/uuid"
)

// Review status constants shared by submissions.
const (
	StatusPending  = "pending"
	StatusApproved = "approved"
	StatusRejected = "rejected"
)

// Submission proposes promoting a client keyword to a server keyword.
type Submission struct {
	ID              uuid.UUID  `json:"id"`
	KeywordText     string     `json:"keyword_text"`
	Area            *string    `json:"area"`
	OriginKeywordID uuid.UUID  `json:"origin_keyword_id"`
	TriggerCount    int        `json:"trigger_count"`
	SubmittedBy     string     `json:"submitted_by"`
	Status          string     `json:"status"`
	ReviewedBy      *string    `json:"reviewed_by"`
	ReviewNotes     string     `json:"review_notes"`
	SubmittedAt     time.Time  `json:"submitted_at"`
	ReviewedAt      *time.Time `json:"reviewed_at"`
}

// IsPending returns true if the submission awaits review.
func (s *Submission) IsPending() bool {
	return s.Status == StatusPending
}

// IsApproved returns true if the submission was approved.
func (s *Submission) IsApproved() bool {
	return s.Status == StatusApproved
}
