package prefs

import (
	"errors"
	"time"
)

// ErrInvalidSignal rejects malformed preference signals before any state
// is touched.
var ErrInvalidSignal = errors.New("invalid preference signal")

// SignalKind selects which part of the profile a signal feeds.
type SignalKind string

const (
	SignalPreference   SignalKind = "preference"
	SignalExpertise    SignalKind = "expertise"
	SignalSatisfaction SignalKind = "satisfaction"
)

// Signal is one observed hint about a user. Strength is in (0, 1];
// Contradicts marks evidence against the currently held value.
type Signal struct {
	Kind        SignalKind `json:"kind"`
	Key         string     `json:"key"`
	Value       string     `json:"value"`
	Strength    float64    `json:"strength"`
	Contradicts bool       `json:"contradicts,omitempty"`
}

// Preference is one learned signal with its confidence state.
type Preference struct {
	UserID        string    `json:"user_id"`
	Key           string    `json:"key"`
	Value         string    `json:"value"`
	Confidence    float64   `json:"confidence"`
	EvidenceCount int       `json:"evidence_count"`
	UpdatedAt     time.Time `json:"updated_at"`
}

// Profile aggregates everything learned about one user. Preferences are
// durable; expertise and the satisfaction window live in-process only.
type Profile struct {
	UserID       string
	Preferences  map[string]*Preference
	Expertise    map[string]float64
	Satisfaction []float64
}

// satisfactionWindow bounds the rolling satisfaction history.
const satisfactionWindow = 20

// Hints is the personalization summary handed to the generation pipeline.
// This subsystem never acts on it.
type Hints struct {
	PreferredDomains  []string          `json:"preferred_domains"`
	ComplexityLevel   string            `json:"complexity_level"`
	FormatPreferences map[string]string `json:"format_preferences"`
	SatisfactionTrend float64           `json:"satisfaction_trend"`
}
