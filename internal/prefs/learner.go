package prefs

import (
	"context"
	"fmt"
	"log"
	"math"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/dgraph-io/ristretto"

	"github.com/antoniostano/mnemo/internal/observability"
)

// confidenceGain scales how far one corroborating signal moves confidence
// toward 1. The bounded update keeps confidence in [0, 1] by construction.
const confidenceGain = 0.5

// confidenceFloor is the lowest decay can push confidence; a preference is
// never hard-deleted and can recover quickly once corroborated again.
const confidenceFloor = 0.05

// Durable is the optional persistence behind the learner. Errors from it
// are absorbed: preference learning keeps working in-process.
type Durable interface {
	Upsert(ctx context.Context, p Preference) error
	Load(ctx context.Context, userID string) ([]Preference, error)
	Close() error
}

// Learner owns all per-user preference and expertise state.
type Learner struct {
	minEvidence     int
	retentionWindow time.Duration

	mu       sync.RWMutex
	profiles map[string]*Profile
	loaded   map[string]bool

	durable Durable
	cache   *ristretto.Cache
	sink    observability.EventSink
	metrics *observability.Metrics

	now func() time.Time
}

func NewLearner(minEvidence int, retentionWindow time.Duration, durable Durable, sink observability.EventSink, metrics *observability.Metrics) (*Learner, error) {
	if minEvidence <= 0 {
		minEvidence = 3
	}
	if sink == nil {
		sink = observability.NoopSink{}
	}
	// Hints are recomputed cheaply on miss; the cache only has to absorb
	// the per-generation-call read amplification.
	cache, err := ristretto.NewCache(&ristretto.Config{
		NumCounters: 10_000,
		MaxCost:     1 << 20,
		BufferItems: 64,
	})
	if err != nil {
		return nil, fmt.Errorf("init hint cache: %w", err)
	}
	return &Learner{
		minEvidence:     minEvidence,
		retentionWindow: retentionWindow,
		profiles:        make(map[string]*Profile),
		loaded:          make(map[string]bool),
		durable:         durable,
		cache:           cache,
		sink:            sink,
		metrics:         metrics,
		now:             time.Now,
	}, nil
}

// RecordSignal validates and applies one signal. Malformed signals are
// rejected with ErrInvalidSignal before any state changes.
func (l *Learner) RecordSignal(ctx context.Context, userID string, sig Signal) error {
	if userID == "" {
		return fmt.Errorf("%w: empty user id", ErrInvalidSignal)
	}
	if strings.TrimSpace(sig.Key) == "" {
		return fmt.Errorf("%w: empty key", ErrInvalidSignal)
	}
	if sig.Strength <= 0 || sig.Strength > 1 {
		return fmt.Errorf("%w: strength %v outside (0, 1]", ErrInvalidSignal, sig.Strength)
	}
	kind := sig.Kind
	if kind == "" {
		kind = SignalPreference
	}
	switch kind {
	case SignalPreference, SignalExpertise, SignalSatisfaction:
	default:
		return fmt.Errorf("%w: unknown kind %q", ErrInvalidSignal, sig.Kind)
	}
	if kind == SignalPreference && strings.TrimSpace(sig.Value) == "" && !sig.Contradicts {
		return fmt.Errorf("%w: empty value", ErrInvalidSignal)
	}

	l.ensureLoaded(ctx, userID)

	l.mu.Lock()
	profile := l.profile(userID)
	var updated *Preference
	switch kind {
	case SignalPreference:
		updated = l.applyPreference(profile, sig)
	case SignalExpertise:
		old := profile.Expertise[sig.Key]
		profile.Expertise[sig.Key] = clamp(old+sig.Strength*(1-old)*confidenceGain, 0, 1)
	case SignalSatisfaction:
		profile.Satisfaction = append(profile.Satisfaction, sig.Strength)
		if len(profile.Satisfaction) > satisfactionWindow {
			profile.Satisfaction = profile.Satisfaction[len(profile.Satisfaction)-satisfactionWindow:]
		}
	}
	l.mu.Unlock()

	l.cache.Del(userID)
	if l.metrics != nil {
		l.metrics.PreferenceSignals.Inc()
	}

	if updated != nil && l.durable != nil {
		if err := l.durable.Upsert(ctx, *updated); err != nil {
			// Absorbed: in-process state is already updated.
			log.Printf("preference upsert failed for %s/%s: %v", userID, updated.Key, err)
			l.sink.Emit("degraded_storage", map[string]string{"error": err.Error()})
		}
	}
	return nil
}

// applyPreference performs the bounded confidence update. Corroboration
// moves confidence toward 1 and never down; contradiction moves it down and
// never up; a changed value is treated as contradiction until the held
// value's confidence collapses, at which point the new value takes over.
// Contradicting a key with no held value is a no-op: there is nothing to
// lower, and evidence against nothing must not build a preference.
func (l *Learner) applyPreference(profile *Profile, sig Signal) *Preference {
	now := l.now().UTC()
	p, ok := profile.Preferences[sig.Key]
	if sig.Contradicts && (!ok || p.Value == "") {
		return nil
	}
	if !ok {
		p = &Preference{UserID: profile.UserID, Key: sig.Key}
		profile.Preferences[sig.Key] = p
	}

	contradicts := sig.Contradicts || (p.Value != "" && sig.Value != "" && sig.Value != p.Value)
	switch {
	case p.Value == "":
		p.Value = sig.Value
		p.Confidence = clamp(sig.Strength*confidenceGain, 0, 1)
	case contradicts:
		p.Confidence = clamp(p.Confidence-sig.Strength*confidenceGain*p.Confidence, 0, 1)
		if sig.Value != "" && p.Confidence < 0.15 {
			p.Value = sig.Value
			p.Confidence = clamp(sig.Strength*confidenceGain, 0, 1)
			p.EvidenceCount = 0
		}
	default:
		p.Confidence = clamp(p.Confidence+sig.Strength*(1-p.Confidence)*confidenceGain, 0, 1)
	}
	p.EvidenceCount++
	p.UpdatedAt = now

	out := *p
	return &out
}

// GetPreferences returns preferences with confidence at or above the given
// threshold. Preferences below the evidence threshold are advisory-only and
// are withheld regardless of confidence.
func (l *Learner) GetPreferences(ctx context.Context, userID string, minConfidence float64) ([]Preference, error) {
	l.ensureLoaded(ctx, userID)

	l.mu.RLock()
	defer l.mu.RUnlock()
	profile, ok := l.profiles[userID]
	if !ok {
		return nil, nil
	}

	out := make([]Preference, 0, len(profile.Preferences))
	for _, p := range profile.Preferences {
		if p.EvidenceCount < l.minEvidence {
			continue
		}
		if p.Confidence < minConfidence {
			continue
		}
		out = append(out, *p)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Key < out[j].Key })
	return out, nil
}

// DecayConfidence reduces confidence for preferences not corroborated
// within the retention window. It never raises confidence.
func (l *Learner) DecayConfidence(now time.Time) {
	l.mu.Lock()
	var touched []string
	for userID, profile := range l.profiles {
		for _, p := range profile.Preferences {
			idle := now.Sub(p.UpdatedAt)
			if idle <= l.retentionWindow {
				continue
			}
			decayed := p.Confidence * math.Exp2(-idle.Hours()/l.retentionWindow.Hours())
			if decayed < confidenceFloor {
				decayed = confidenceFloor
			}
			if decayed < p.Confidence {
				p.Confidence = decayed
				touched = append(touched, userID)
			}
		}
	}
	l.mu.Unlock()

	for _, userID := range touched {
		l.cache.Del(userID)
	}
}

// GetPersonalizedContext assembles the hint set for a user. The base hints
// are cached per user and invalidated on any write; the query only reorders
// preferred domains, never changes state.
func (l *Learner) GetPersonalizedContext(ctx context.Context, userID, query string) (Hints, error) {
	var hints Hints
	if cached, ok := l.cache.Get(userID); ok {
		hints = cached.(Hints)
	} else {
		l.ensureLoaded(ctx, userID)
		hints = l.buildHints(userID)
		l.cache.Set(userID, hints, 1)
	}

	if query != "" && len(hints.PreferredDomains) > 1 {
		hints.PreferredDomains = reorderByQuery(hints.PreferredDomains, query)
	}
	return hints, nil
}

func (l *Learner) buildHints(userID string) Hints {
	l.mu.RLock()
	defer l.mu.RUnlock()

	hints := Hints{
		ComplexityLevel:   "intermediate",
		FormatPreferences: map[string]string{},
	}
	profile, ok := l.profiles[userID]
	if !ok {
		return hints
	}

	type domain struct {
		name  string
		level float64
	}
	domains := make([]domain, 0, len(profile.Expertise))
	best := 0.0
	for name, level := range profile.Expertise {
		domains = append(domains, domain{name, level})
		if level > best {
			best = level
		}
	}
	sort.Slice(domains, func(i, j int) bool {
		if domains[i].level != domains[j].level {
			return domains[i].level > domains[j].level
		}
		return domains[i].name < domains[j].name
	})
	for _, d := range domains {
		hints.PreferredDomains = append(hints.PreferredDomains, d.name)
	}

	switch {
	case best >= 0.66:
		hints.ComplexityLevel = "advanced"
	case best >= 0.33:
		hints.ComplexityLevel = "intermediate"
	default:
		hints.ComplexityLevel = "basic"
	}

	for _, p := range profile.Preferences {
		if p.EvidenceCount < l.minEvidence || p.Confidence < confidenceFloor*2 {
			continue
		}
		hints.FormatPreferences[p.Key] = p.Value
	}

	if n := len(profile.Satisfaction); n > 0 {
		sum := 0.0
		for _, s := range profile.Satisfaction {
			sum += s
		}
		hints.SatisfactionTrend = sum / float64(n)
	}
	return hints
}

// ensureLoaded lazily pulls a user's durable preferences into the profile
// map once per process lifetime. Load failures are absorbed.
func (l *Learner) ensureLoaded(ctx context.Context, userID string) {
	if l.durable == nil {
		return
	}
	l.mu.RLock()
	done := l.loaded[userID]
	l.mu.RUnlock()
	if done {
		return
	}

	persisted, err := l.durable.Load(ctx, userID)
	if err != nil {
		log.Printf("preference load failed for %s: %v", userID, err)
		l.sink.Emit("degraded_storage", map[string]string{"error": err.Error()})
		return
	}

	l.mu.Lock()
	defer l.mu.Unlock()
	if l.loaded[userID] {
		return
	}
	profile := l.profile(userID)
	for _, p := range persisted {
		if _, exists := profile.Preferences[p.Key]; exists {
			continue
		}
		cp := p
		profile.Preferences[p.Key] = &cp
	}
	l.loaded[userID] = true
}

// profile returns the user's profile, creating it if needed. Callers hold mu.
func (l *Learner) profile(userID string) *Profile {
	p, ok := l.profiles[userID]
	if !ok {
		p = &Profile{
			UserID:      userID,
			Preferences: make(map[string]*Preference),
			Expertise:   make(map[string]float64),
		}
		l.profiles[userID] = p
	}
	return p
}

func (l *Learner) Close() error {
	l.cache.Close()
	if l.durable != nil {
		return l.durable.Close()
	}
	return nil
}

func reorderByQuery(domains []string, query string) []string {
	q := strings.ToLower(query)
	out := make([]string, 0, len(domains))
	var rest []string
	for _, d := range domains {
		if strings.Contains(q, strings.ToLower(d)) {
			out = append(out, d)
		} else {
			rest = append(rest, d)
		}
	}
	return append(out, rest...)
}

func clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
