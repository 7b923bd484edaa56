// Package trust implements the report trust scoring engine.
//
// The engine is pure: it maps a vote onto a new trust state without touching
// storage. Duplicate-vote detection and atomic persistence of the resulting
// state belong to the store layer.
package trust

import (
	"fmt"

	"github.com/civicwatch/vigil/internal/models"
)

// VoteKind is the closed set of vote actions a user can take on a report.
type VoteKind string

const (
	VoteConfirm VoteKind = "confirm"
	VoteDispute VoteKind = "dispute"
)

// Valid reports whether k is a known vote kind.
func (k VoteKind) Valid() bool {
	return k == VoteConfirm || k == VoteDispute
}

// Score bounds.
const (
	MinScore = 0
	MaxScore = 100
)

// Config holds the tunable scoring constants. The defaults are the documented
// contract; Validate enforces the ordering that keeps level derivation
// monotone under tuning.
type Config struct {
	ConfirmDelta              int `yaml:"confirm_delta"`
	DisputeDelta              int `yaml:"dispute_delta"`
	PendingThreshold          int `yaml:"pending_threshold"`
	VerifiedThreshold         int `yaml:"verified_threshold"`
	ConfirmedThreshold        int `yaml:"confirmed_threshold"`
	ConfirmedMinConfirmations int `yaml:"confirmed_min_confirmations"`
	ReviewDisputeCount        int `yaml:"review_dispute_count"`
}

// DefaultConfig returns the documented scoring contract.
func DefaultConfig() Config {
	return Config{
		ConfirmDelta:              5,
		DisputeDelta:              10,
		PendingThreshold:          40,
		VerifiedThreshold:         70,
		ConfirmedThreshold:        85,
		ConfirmedMinConfirmations: 5,
		ReviewDisputeCount:        3,
	}
}

// Validate checks that the scoring constants preserve the engine's invariants.
func (c Config) Validate() error {
	if c.ConfirmDelta <= 0 {
		return fmt.Errorf("confirm_delta must be positive, got %d", c.ConfirmDelta)
	}
	if c.DisputeDelta <= 0 {
		return fmt.Errorf("dispute_delta must be positive, got %d", c.DisputeDelta)
	}
	if !(c.PendingThreshold < c.VerifiedThreshold && c.VerifiedThreshold < c.ConfirmedThreshold) {
		return fmt.Errorf("level thresholds must be strictly ascending, got %d/%d/%d",
			c.PendingThreshold, c.VerifiedThreshold, c.ConfirmedThreshold)
	}
	if c.PendingThreshold <= MinScore || c.ConfirmedThreshold > MaxScore {
		return fmt.Errorf("level thresholds must lie within (%d,%d]", MinScore, MaxScore)
	}
	if c.ConfirmedMinConfirmations < 0 {
		return fmt.Errorf("confirmed_min_confirmations must be non-negative, got %d", c.ConfirmedMinConfirmations)
	}
	if c.ReviewDisputeCount < 1 {
		return fmt.Errorf("review_dispute_count must be at least 1, got %d", c.ReviewDisputeCount)
	}
	return nil
}

// State is the trust-owned portion of a report.
type State struct {
	TrustScore        int
	ConfirmationCount int
	DisputeCount      int
	Level             models.VerificationLevel
}

// StateOf extracts the trust state from a report.
func StateOf(r *models.Report) State {
	return State{
		TrustScore:        r.TrustScore,
		ConfirmationCount: r.ConfirmationCount,
		DisputeCount:      r.DisputeCount,
		Level:             r.VerificationLevel,
	}
}

// Engine computes trust scores and verification levels from vote events.
type Engine struct {
	cfg Config
}

// NewEngine creates a scoring engine with the given constants.
func NewEngine(cfg Config) *Engine {
	return &Engine{cfg: cfg}
}

// Apply computes the trust state after one vote of the given kind. The kind
// set is closed; an unknown kind is a programming error.
func (e *Engine) Apply(kind VoteKind, s State) State {
	switch kind {
	case VoteConfirm:
		s.ConfirmationCount++
		s.TrustScore = clamp(s.TrustScore+e.cfg.ConfirmDelta, MinScore, MaxScore)
	case VoteDispute:
		s.DisputeCount++
		s.TrustScore = clamp(s.TrustScore-e.cfg.DisputeDelta, MinScore, MaxScore)
	default:
		panic(fmt.Sprintf("trust: unknown vote kind %q", kind))
	}
	s.Level = e.Level(s.TrustScore, s.ConfirmationCount)
	return s
}

// Level derives the verification level from a trust score and confirmation
// count. Pure and deterministic; the four-way partition is total and
// non-overlapping.
func (e *Engine) Level(trustScore, confirmationCount int) models.VerificationLevel {
	switch {
	case trustScore >= e.cfg.ConfirmedThreshold && confirmationCount >= e.cfg.ConfirmedMinConfirmations:
		return models.LevelConfirmed
	case trustScore >= e.cfg.VerifiedThreshold:
		return models.LevelVerified
	case trustScore >= e.cfg.PendingThreshold:
		return models.LevelPending
	default:
		return models.LevelUnverified
	}
}

// FlagForReview reports whether a heavily disputed state should move the
// report from Active to UnderReview. Disputed reports are only ever flagged,
// never auto-closed.
func (e *Engine) FlagForReview(s State) bool {
	return s.TrustScore == MinScore && s.DisputeCount >= e.cfg.ReviewDisputeCount
}

func clamp(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
