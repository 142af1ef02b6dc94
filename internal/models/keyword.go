package models

import (
	"strings"
	"time"

	"github.com/google/uuid"
)

// Keyword kind constants.
const (
	KindGlobal = "global"
	KindLocal  = "local"
	KindCustom = "custom"
)

// Keyword source constants. Server keywords are curated centrally, client
// keywords are learned locally from operator traffic.
const (
	SourceServer  = "server"
	SourceClient  = "client"
	SourceLearned = "learned"
)

// Weights derived from source. Lower weight wins resolution.
const (
	WeightServer = 1
	WeightClient = 2
)

// DefaultTriggerThreshold is the hit count at which a client keyword is
// submitted for review when no threshold was configured.
const DefaultTriggerThreshold = 3

// Priority is the business priority of a keyword. The ordinal value is used
// for ordering: a higher ordinal is more important.
type Priority int

const (
	PriorityLow Priority = iota
	PriorityNormal
	PriorityHigh
	PriorityUrgent
)

var priorityNames = map[Priority]string{
	PriorityLow:    "low",
	PriorityNormal: "normal",
	PriorityHigh:   "high",
	PriorityUrgent: "urgent",
}

// String returns the lowercase priority name.
func (p Priority) String() string {
	if name, ok := priorityNames[p]; ok {
		return name
	}
	return "normal"
}

// ParsePriority parses a priority name. Unknown names yield PriorityNormal and false.
func ParsePriority(s string) (Priority, bool) {
	for p, name := range priorityNames {
		if strings.EqualFold(name, s) {
			return p, true
		}
	}
	return PriorityNormal, false
}

// MarshalText implements encoding.TextMarshaler.
func (p Priority) MarshalText() ([]byte, error) {
	return []byte(p.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (p *Priority) UnmarshalText(b []byte) error {
	parsed, _ := ParsePriority(string(b))
	*p = parsed
	return nil
}

// Keyword is a significant term scanned for in inbound messages.
type Keyword struct {
	ID               uuid.UUID `json:"id"`
	Text             string    `json:"text"`
	Description      string    `json:"description"`
	Kind             string    `json:"kind"`
	Priority         Priority  `json:"priority"`
	Area             *string   `json:"area"`
	Active           bool      `json:"active"`
	Source           string    `json:"source"`
	Weight           int       `json:"weight"`
	HitCount         int       `json:"hit_count"`
	TriggerThreshold int       `json:"trigger_threshold"`
	CreatedAt        time.Time `json:"created_at"`
	UpdatedAt        time.Time `json:"updated_at"`
}

// WeightForSource returns the resolution weight for a keyword source.
func WeightForSource(source string) int {
	if source == SourceServer {
		return WeightServer
	}
	return WeightClient
}

// IsServer returns true if the keyword is centrally curated.
func (k *Keyword) IsServer() bool {
	return k.Source == SourceServer
}

// ThresholdReached returns true if the hit count has met the trigger threshold.
func (k *Keyword) ThresholdReached() bool {
	threshold := k.TriggerThreshold
	if threshold <= 0 {
		threshold = DefaultTriggerThreshold
	}
	return k.HitCount >= threshold
}

// AreaKey returns the area as a plain string, "" for unscoped keywords.
func (k *Keyword) AreaKey() string {
	return AreaKey(k.Area)
}

// AreaKey flattens a nullable area into a map key.
func AreaKey(area *string) string {
	if area == nil {
		return ""
	}
	return *area
}

// AreaPtr converts "" to nil and anything else to a pointer.
func AreaPtr(area string) *string {
	if area == "" {
		return nil
	}
	return &area
}

// SameArea reports whether two nullable areas are equal.
func SameArea(a, b *string) bool {
	return AreaKey(a) == AreaKey(b)
}

// KeywordTriggerLog records the context of a single client keyword trigger.
type KeywordTriggerLog struct {
	ID          uuid.UUID `json:"id"`
	KeywordID   uuid.UUID `json:"keyword_id"`
	Area        *string   `json:"area"`
	UserID      string    `json:"user_id"`
	Context     string    `json:"context"`
	TriggeredAt time.Time `json:"triggered_at"`
}
