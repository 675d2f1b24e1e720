// Package epistemic implements the pre-claim confidence gate and the
// calibration feedback loop: log a claim, resolve it against what actually
// happened, and derive per-domain calibration snapshots from the
// accumulated history.
//
// The constructor and instrumentation shape follow this codebase's
// service-layer convention of injecting a logger and OTEL histograms at
// construction time.
package epistemic

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/metric"

	"github.com/pltm/engine/internal/clock"
	"github.com/pltm/engine/internal/model"
	"github.com/pltm/engine/internal/storage"
	"github.com/pltm/engine/internal/telemetry"
)

// defaultHighRiskDomains lists domains that mandate verification by default.
// Overridable via config (epistemic.high_risk_domains).
var defaultHighRiskDomains = []string{
	"time_sensitive", "current_events", "dates", "statistics",
	"technical_specs", "legal", "medical", "financial",
}

// overconfidentPhrases signal overconfidence when they appear in a claim's
// surface text without prior verification.
var overconfidentPhrases = []string{
	"is true", "is correct", "is accurate", "is definitely",
	"will definitely", "it's certain", "the answer is",
	"without doubt", "clearly", "obviously", "undeniably",
	"proven", "established fact", "well-known that",
}

// hedgePhrases are suggested when a claim should be verified before assertion.
var hedgePhrases = []string{
	"based on my training data (which could be outdated)",
	"to verify this, I should check",
	"my confidence may be miscalibrated",
	"let me verify before stating definitively",
}

// minCalibrationDataPoints is the number of resolved claims a domain needs
// before its cached accuracy_ratio/overconfidence_ratio are trusted over the
// baseline defaults.
const minCalibrationDataPoints = 3

// baselineAccuracyRatio and baselineOverconfidence are assumed for a domain
// with too little calibration history to trust.
const (
	baselineAccuracyRatio = 0.6
	baselineOverconfidence = 0.3
)

// Monitor is the epistemic gate: pre-claim checks, claim logging/resolution,
// and calibration snapshot computation.
type Monitor struct {
	db              *storage.DB
	clock           clock.Clock
	logger          *slog.Logger
	highRiskDomains map[string]bool
	checkDuration   metric.Float64Histogram
	snapshotCache   *SnapshotCache
}

// New constructs a Monitor. highRiskDomains overrides the built-in default
// list when non-empty. snapshotCache may be nil, in which case calibration
// snapshots are only persisted to Postgres; reads go through Postgres either
// way.
func New(db *storage.DB, clk clock.Clock, logger *slog.Logger, highRiskDomains []string, snapshotCache *SnapshotCache) *Monitor {
	if len(highRiskDomains) == 0 {
		highRiskDomains = defaultHighRiskDomains
	}
	set := make(map[string]bool, len(highRiskDomains))
	for _, d := range highRiskDomains {
		set[strings.ToLower(d)] = true
	}

	meter := telemetry.Meter("pltm/epistemic")
	checkDuration, _ := meter.Float64Histogram(
		"pltm.epistemic.check_duration",
		metric.WithDescription("Duration of pre-claim epistemic checks"),
		metric.WithUnit("ms"),
	)

	return &Monitor{db: db, clock: clk, logger: logger, highRiskDomains: set, checkDuration: checkDuration, snapshotCache: snapshotCache}
}

// CheckBeforeClaiming implements the pre-claim confidence check: look up the
// domain's calibration cache, discount felt confidence by its historical
// accuracy ratio, collect verification reasons, and recommend an epistemic
// label. Call this before asserting any factual claim.
func (m *Monitor) CheckBeforeClaiming(ctx context.Context, req model.CheckBeforeClaimingRequest) (model.CheckResult, error) {
	start := m.clock.Now()
	defer func() {
		if m.checkDuration != nil {
			m.checkDuration.Record(ctx, float64(m.clock.Now().Sub(start).Milliseconds()))
		}
	}()

	domain := strings.ToLower(req.Domain)

	accuracyRatio := baselineAccuracyRatio
	historicalOverconfidence := baselineOverconfidence
	dataPoints := 0
	if cached, err := m.db.GetCalibrationSnapshot(ctx, domain); err == nil && cached.TotalClaims >= minCalibrationDataPoints {
		accuracyRatio = cached.AccuracyRatio
		historicalOverconfidence = cached.OverconfidenceRatio
		dataPoints = cached.TotalClaims
	}

	adjustedConfidence := req.Confidence * accuracyRatio

	var reasons []string
	if m.highRiskDomains[domain] {
		reasons = append(reasons, fmt.Sprintf("HIGH_RISK domain: %s", req.Domain))
	}
	if !req.HasVerified && req.Confidence > 0.8 {
		reasons = append(reasons, "High confidence WITHOUT verification — classic overconfidence pattern")
	}
	if adjustedConfidence < 0.5 {
		reasons = append(reasons, fmt.Sprintf("Adjusted confidence (%.2f) below threshold after calibration correction", adjustedConfidence))
	}
	if req.EpistemicStatus == model.StatusTrainingData {
		reasons = append(reasons, "Claim from training data — could be outdated")
	}
	if historicalOverconfidence > 0.4 && dataPoints >= 5 {
		reasons = append(reasons, fmt.Sprintf("Historical overconfidence rate: %.0f%% in this domain", historicalOverconfidence*100))
	}
	if matched := matchedOverconfidentPhrases(req.Statement); len(matched) > 0 && !req.HasVerified {
		reasons = append(reasons, fmt.Sprintf("Overconfident language detected: %v", matched))
	}

	shouldVerify := len(reasons) > 0 && !req.HasVerified

	var recommendedStatus model.EpistemicStatus
	switch {
	case req.HasVerified:
		recommendedStatus = model.StatusVerified
	case adjustedConfidence >= 0.7:
		recommendedStatus = model.StatusTrainingData
	case adjustedConfidence >= 0.4:
		recommendedStatus = model.StatusInference
	case adjustedConfidence >= 0.2:
		recommendedStatus = model.StatusSpeculation
	default:
		recommendedStatus = model.StatusUncertain
	}

	result := model.CheckResult{
		Proceed:               !shouldVerify,
		Action:                "PROCEED",
		AdjustedConfidence:     round3(adjustedConfidence),
		RecommendedStatus:      recommendedStatus,
		CalibrationDataPoints: dataPoints,
	}
	if shouldVerify {
		result.Action = "VERIFY_FIRST"
		result.Reasons = reasons
		result.SuggestedHedges = hedgePhrases[:2]
	}

	if err := m.db.RecordIntervention(ctx, req.Statement, req.Domain, req.Confidence, result.AdjustedConfidence, result.Action, shouldVerify, req.HasVerified); err != nil {
		m.logger.Warn("epistemic: record intervention failed", "error", err)
	}

	return result, nil
}

func matchedOverconfidentPhrases(statement string) []string {
	lower := strings.ToLower(statement)
	var matched []string
	for _, p := range overconfidentPhrases {
		if strings.Contains(lower, p) {
			matched = append(matched, p)
			if len(matched) == 3 {
				break
			}
		}
	}
	return matched
}

func round3(f float64) float64 {
	return float64(int(f*1000+0.5)) / 1000
}

// LogClaim appends a new prediction-book row.
func (m *Monitor) LogClaim(ctx context.Context, req model.LogClaimRequest) (model.Claim, error) {
	status := req.EpistemicStatus
	if status == "" {
		status = model.StatusTrainingData
	}
	check, err := m.CheckBeforeClaiming(ctx, model.CheckBeforeClaimingRequest{
		SourceUser:      req.SourceUser,
		Domain:          req.Domain,
		Statement:       req.Statement,
		Confidence:      req.FeltConfidence,
		HasVerified:     req.HasVerified,
		EpistemicStatus: status,
	})
	if err != nil {
		return model.Claim{}, err
	}

	claim := model.Claim{
		SourceUser:         req.SourceUser,
		Domain:             req.Domain,
		Statement:          req.Statement,
		FeltConfidence:     req.FeltConfidence,
		AdjustedConfidence: check.AdjustedConfidence,
		EpistemicStatus:    status,
		HasVerified:        req.HasVerified,
		LoggedAt:           m.clock.Now(),
	}
	return m.db.LogClaim(ctx, claim)
}

// ResolveClaim records the outcome of a previously logged claim, computes its
// calibration error (|felt_confidence - actual|, where actual is 1.0 for
// correct, 0.0 for incorrect, 0.5 for partial), and rebuilds the domain's
// calibration cache.
func (m *Monitor) ResolveClaim(ctx context.Context, req model.ResolveClaimRequest) (model.Claim, error) {
	var claim model.Claim
	var err error
	switch {
	case req.ClaimID != uuid.Nil:
		claim, err = m.db.GetClaim(ctx, req.ClaimID)
	case req.ClaimText != "":
		claim, err = m.db.FindUnresolvedClaimByText(ctx, req.ClaimText)
	default:
		return model.Claim{}, model.Wrap(model.InvalidArgument, "epistemic.ResolveClaim", fmt.Errorf("provide claim_id or claim_text"))
	}
	if err != nil {
		return model.Claim{}, err
	}

	actual := actualFor(req.Verdict)
	calibrationError := claim.FeltConfidence - actual
	if calibrationError < 0 {
		calibrationError = -calibrationError
	}

	resolvedAt := m.clock.Now()
	if err := m.db.ResolveClaim(ctx, claim.ID, req.Verdict, calibrationError, req.CorrectionSource, req.CorrectionDetail, resolvedAt); err != nil {
		return model.Claim{}, err
	}
	claim.Verdict = req.Verdict
	claim.ResolvedAt = &resolvedAt
	claim.CalibrationError = &calibrationError
	claim.CorrectionSource = req.CorrectionSource
	claim.CorrectionDetail = req.CorrectionDetail

	if _, _, err := m.rebuildCalibrationCache(ctx, claim.Domain); err != nil {
		m.logger.Warn("epistemic: calibration cache rebuild failed", "error", err, "domain", claim.Domain)
	}

	return claim, nil
}

func actualFor(v model.Verdict) float64 {
	switch v {
	case model.VerdictCorrect:
		return 1.0
	case model.VerdictIncorrect:
		return 0.0
	case model.VerdictPartial:
		return 0.5
	default:
		return 0.5
	}
}
