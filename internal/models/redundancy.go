package models

import (
	"time"

	"github.com/google/uuid"
)

// Redundancy pair status constants.
const (
	PairDetected = "detected"
	PairMerged   = "merged"
	PairKeptBoth = "kept_both"
)

// RedundancyPair records two keywords found to be near duplicates.
// KeywordIDA is always the lexically smaller id so the unordered pair has
// a single representation.
type RedundancyPair struct {
	KeywordIDA  uuid.UUID  `json:"keyword_id_a"`
	KeywordIDB  uuid.UUID  `json:"keyword_id_b"`
	Similarity  float64    `json:"similarity"`
	Status      string     `json:"status"`
	DetectedAt  time.Time  `json:"detected_at"`
	ProcessedAt *time.Time `json:"processed_at"`
}

// NewRedundancyPair orders the ids canonically.
func NewRedundancyPair(a, b uuid.UUID, similarity float64) RedundancyPair {
	a, b = OrderPair(a, b)
	return RedundancyPair{
		KeywordIDA: a,
		KeywordIDB: b,
		Similarity: similarity,
		Status:     PairDetected,
	}
}

// OrderPair returns the two ids in canonical order.
func OrderPair(a, b uuid.UUID) (uuid.UUID, uuid.UUID) {
	if b.String() < a.String() {
		return b, a
	}
	return a, b
}
