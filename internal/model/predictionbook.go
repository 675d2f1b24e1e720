package model

import (
	"time"

	"github.com/google/uuid"
)

// Verdict is the outcome recorded when a logged claim is resolved.
type Verdict string

const (
	VerdictCorrect   Verdict = "correct"
	VerdictIncorrect Verdict = "incorrect"
	VerdictPartial   Verdict = "partial"
	VerdictUnknown   Verdict = "unknown"
)

// EpistemicStatus classifies the epistemic basis of a claim.
type EpistemicStatus string

const (
	StatusVerified     EpistemicStatus = "VERIFIED"
	StatusTrainingData EpistemicStatus = "TRAINING_DATA"
	StatusInference    EpistemicStatus = "INFERENCE"
	StatusSpeculation  EpistemicStatus = "SPECULATION"
	StatusUncertain    EpistemicStatus = "UNCERTAIN"
)

// CalibrationVerdict is the human-facing label attached to a domain's (or the
// overall) calibration aggregate.
type CalibrationVerdict string

const (
	CalibrationWellCalibrated         CalibrationVerdict = "WELL_CALIBRATED"
	CalibrationOverconfident          CalibrationVerdict = "OVERCONFIDENT"
	CalibrationSeverelyOverconfident  CalibrationVerdict = "SEVERELY_OVERCONFIDENT"
	CalibrationUnderconfident         CalibrationVerdict = "UNDERCONFIDENT"
	CalibrationHighConfidenceFailures CalibrationVerdict = "HIGH_CONFIDENCE_FAILURES"
)

// Claim is a single row in the prediction book: a claim made with some
// felt confidence, later resolved against what actually happened.
type Claim struct {
	ID         uuid.UUID `json:"id"`
	SourceUser string    `json:"source_user"`
	Domain     string    `json:"domain"`
	Statement  string    `json:"statement"`

	FeltConfidence     float64         `json:"felt_confidence"`
	AdjustedConfidence float64         `json:"adjusted_confidence"`
	EpistemicStatus    EpistemicStatus `json:"epistemic_status"`
	HasVerified        bool            `json:"has_verified"`

	LoggedAt time.Time `json:"logged_at"`

	ResolvedAt *time.Time `json:"resolved_at,omitempty"`
	Verdict    Verdict    `json:"verdict,omitempty"`
	// CalibrationError is |felt_confidence - actual| where actual is 1.0 for
	// correct, 0.0 for incorrect, 0.5 for partial. Computed on resolution.
	CalibrationError *float64 `json:"calibration_error,omitempty"`
	CorrectionSource string   `json:"correction_source,omitempty"`
	CorrectionDetail string   `json:"correction_detail,omitempty"`
}

// CheckResult is the outcome of a pre-claim epistemic check.
type CheckResult struct {
	Proceed               bool            `json:"proceed"`
	Action                string          `json:"action"` // PROCEED | VERIFY_FIRST
	AdjustedConfidence    float64         `json:"adjusted_confidence"`
	RecommendedStatus     EpistemicStatus `json:"recommended_status"`
	Reasons               []string        `json:"reasons,omitempty"`
	SuggestedHedges       []string        `json:"suggested_hedges,omitempty"`
	CalibrationDataPoints int             `json:"calibration_data_points"`
}

// CalibrationSnapshot is the derived, stale-tolerant per-domain calibration
// read model.
type CalibrationSnapshot struct {
	Domain              string             `json:"domain"`
	ComputedAt          time.Time          `json:"computed_at"`
	TotalClaims         int                `json:"total_claims"`
	VerifiedClaims      int                `json:"verified_claims"`
	CorrectClaims       int                `json:"correct_claims"`
	AccuracyRatio       float64            `json:"accuracy_ratio"`
	AvgFeltConfidence   float64            `json:"avg_felt_confidence"`
	AvgCalibrationError float64            `json:"avg_calibration_error"`
	OverconfidenceRatio float64            `json:"overconfidence_ratio"`
	Verdict             CalibrationVerdict `json:"verdict,omitempty"`
	// Curve buckets felt confidence into bands of width 0.2 and reports
	// observed accuracy per band, for a reliability-diagram style view.
	Curve []CalibrationBucket `json:"curve,omitempty"`
}

// CalibrationBucket is one point on the bucketed calibration curve.
type CalibrationBucket struct {
	ConfidenceLow     float64 `json:"confidence_low"`
	ConfidenceHigh    float64 `json:"confidence_high"`
	Count             int     `json:"count"`
	FeltConfidenceAvg float64 `json:"felt_confidence_avg"`
	ObservedAccuracy  float64 `json:"observed_accuracy"`
	Gap               float64 `json:"gap"`
}

// CalibrationOverall is the cross-domain summary that accompanies a
// CalibrationReport, always computed over every domain regardless of which
// domain (if any) the caller asked to filter by.
type CalibrationOverall struct {
	TotalResolved  int                `json:"total_resolved"`
	Unresolved     int                `json:"unresolved"`
	Accuracy       float64            `json:"accuracy"`
	AvgConfidence  float64            `json:"avg_confidence"`
	CalibrationGap float64            `json:"calibration_gap"`
	Verdict        CalibrationVerdict `json:"verdict"`
}

// CalibrationDomainRank pairs a domain with its overconfidence ratio, used
// for the worst_domains ranking.
type CalibrationDomainRank struct {
	Domain              string  `json:"domain"`
	OverconfidenceRatio float64 `json:"overconfidence_ratio"`
}

// CalibrationReport is the full response to a get_calibration call.
type CalibrationReport struct {
	Overall          CalibrationOverall             `json:"overall"`
	ByDomain         map[string]CalibrationSnapshot  `json:"by_domain"`
	WorstDomains     []CalibrationDomainRank         `json:"worst_domains"`
	Message          string                          `json:"message,omitempty"`
	UnresolvedClaims int                             `json:"unresolved_claims,omitempty"`
}
