package epistemic

import (
	"context"
	"sort"
	"strings"
	"time"

	"github.com/pltm/engine/internal/model"
)

// numBuckets is the number of bands in the bucketed calibration curve, each
// of width 1/numBuckets over felt_confidence.
const numBuckets = 5

const bucketWidth = 1.0 / float64(numBuckets)

// GetCalibration returns the calibration report: the cross-domain overall
// summary (always computed across every domain, regardless of the requested
// domain), the requested domain's (or every domain's) aggregate, and the
// worst-performing domains by overconfidence ratio.
func (m *Monitor) GetCalibration(ctx context.Context, req model.GetCalibrationRequest) (model.CalibrationReport, error) {
	domain := strings.ToLower(req.Domain)

	var domains []string
	if domain != "" {
		domains = []string{domain}
	} else {
		list, err := m.db.ListDistinctDomains(ctx)
		if err != nil {
			return model.CalibrationReport{}, err
		}
		domains = list
	}

	if len(domains) == 0 {
		unresolved, err := m.db.CountUnresolvedClaims(ctx, "")
		if err != nil {
			return model.CalibrationReport{}, err
		}
		return model.CalibrationReport{
			Message:          "No resolved claims yet. Log claims with log_claim, then resolve with resolve_claim.",
			UnresolvedClaims: unresolved,
			ByDomain:         map[string]model.CalibrationSnapshot{},
		}, nil
	}

	byDomain := make(map[string]model.CalibrationSnapshot, len(domains))
	for _, d := range domains {
		snap, ok, err := m.rebuildCalibrationCache(ctx, d)
		if err != nil {
			return model.CalibrationReport{}, err
		}
		if ok {
			byDomain[d] = snap
		}
	}

	overall, err := m.overallCalibration(ctx)
	if err != nil {
		return model.CalibrationReport{}, err
	}

	worst := make([]model.CalibrationDomainRank, 0, len(byDomain))
	for d, snap := range byDomain {
		worst = append(worst, model.CalibrationDomainRank{Domain: d, OverconfidenceRatio: snap.OverconfidenceRatio})
	}
	sort.Slice(worst, func(i, j int) bool { return worst[i].OverconfidenceRatio > worst[j].OverconfidenceRatio })
	if len(worst) > 5 {
		worst = worst[:5]
	}

	return model.CalibrationReport{Overall: overall, ByDomain: byDomain, WorstDomains: worst}, nil
}

// rebuildCalibrationCache recomputes and persists the calibration snapshot
// for domain from its resolved claims. ok is false when the domain has no
// resolved claims yet, in which case no snapshot is written.
func (m *Monitor) rebuildCalibrationCache(ctx context.Context, domain string) (model.CalibrationSnapshot, bool, error) {
	claims, err := m.db.ListClaimsByDomain(ctx, domain, true)
	if err != nil {
		return model.CalibrationSnapshot{}, false, err
	}
	if len(claims) == 0 {
		return model.CalibrationSnapshot{}, false, nil
	}

	snap := compute(domain, claims, m.clock.Now())

	if err := m.db.UpsertCalibrationSnapshot(ctx, snap); err != nil {
		m.logger.Warn("epistemic: calibration cache upsert failed", "error", err)
	}
	if m.snapshotCache != nil {
		if err := m.snapshotCache.Put(snap); err != nil {
			m.logger.Debug("epistemic: local snapshot cache write failed", "error", err)
		}
	}
	return snap, true, nil
}

// overallCalibration aggregates resolved claims across every domain.
func (m *Monitor) overallCalibration(ctx context.Context) (model.CalibrationOverall, error) {
	claims, err := m.db.ListAllResolvedClaims(ctx)
	if err != nil {
		return model.CalibrationOverall{}, err
	}
	unresolved, err := m.db.CountUnresolvedClaims(ctx, "")
	if err != nil {
		return model.CalibrationOverall{}, err
	}

	overall := model.CalibrationOverall{TotalResolved: len(claims), Unresolved: unresolved}
	if len(claims) == 0 {
		overall.Verdict = model.CalibrationWellCalibrated
		return overall, nil
	}

	var correct int
	var sumFelt float64
	for _, c := range claims {
		if c.Verdict == model.VerdictCorrect {
			correct++
		}
		sumFelt += c.FeltConfidence
	}
	n := float64(len(claims))
	overall.Accuracy = round3(float64(correct) / n)
	overall.AvgConfidence = round3(sumFelt / n)
	overall.CalibrationGap = round3(overall.AvgConfidence - overall.Accuracy)

	switch {
	case absFloat(overall.CalibrationGap) < 0.1:
		overall.Verdict = model.CalibrationWellCalibrated
	case overall.AvgConfidence > overall.Accuracy:
		overall.Verdict = model.CalibrationOverconfident
	default:
		overall.Verdict = model.CalibrationUnderconfident
	}
	return overall, nil
}

func compute(domain string, claims []model.Claim, now time.Time) model.CalibrationSnapshot {
	s := model.CalibrationSnapshot{
		Domain:         domain,
		ComputedAt:     now,
		TotalClaims:    len(claims),
		VerifiedClaims: len(claims),
	}
	if len(claims) == 0 {
		return s
	}

	var correct int
	var sumFelt, sumErr float64
	var highConf, highConfWrong int

	buckets := make([]model.CalibrationBucket, numBuckets)
	for i := range buckets {
		low := float64(i) * bucketWidth
		buckets[i] = model.CalibrationBucket{ConfidenceLow: low, ConfidenceHigh: low + bucketWidth}
	}
	bucketCorrect := make([]int, numBuckets)
	bucketFeltSum := make([]float64, numBuckets)

	for _, c := range claims {
		isCorrect := c.Verdict == model.VerdictCorrect
		if isCorrect {
			correct++
		}
		sumFelt += c.FeltConfidence
		if c.CalibrationError != nil {
			sumErr += *c.CalibrationError
		}
		if c.FeltConfidence > 0.7 {
			highConf++
			if !isCorrect {
				highConfWrong++
			}
		}

		idx := bucketIndex(c.FeltConfidence)
		buckets[idx].Count++
		bucketFeltSum[idx] += c.FeltConfidence
		if isCorrect {
			bucketCorrect[idx]++
		}
	}

	n := float64(len(claims))
	s.CorrectClaims = correct
	s.AccuracyRatio = round3(float64(correct) / n)
	s.AvgFeltConfidence = round3(sumFelt / n)
	s.AvgCalibrationError = round3(sumErr / n)
	if highConf > 0 {
		s.OverconfidenceRatio = round3(float64(highConfWrong) / float64(highConf))
	}

	for i := range buckets {
		if buckets[i].Count == 0 {
			continue
		}
		feltAvg := bucketFeltSum[i] / float64(buckets[i].Count)
		buckets[i].FeltConfidenceAvg = round3(feltAvg)
		buckets[i].ObservedAccuracy = round3(float64(bucketCorrect[i]) / float64(buckets[i].Count))
		buckets[i].Gap = round3(feltAvg - buckets[i].ObservedAccuracy)
	}
	s.Curve = buckets
	s.Verdict = calibrationVerdict(s.AccuracyRatio, s.AvgFeltConfidence, s.OverconfidenceRatio)
	return s
}

// calibrationVerdict classifies a domain's calibration aggregate into one of
// five labels, mirroring the gap/overconfidence thresholds used to gate
// check_before_claiming.
func calibrationVerdict(accuracy, avgConfidence, overconfidenceRatio float64) model.CalibrationVerdict {
	gap := avgConfidence - accuracy

	switch {
	case absFloat(gap) < 0.1 && overconfidenceRatio < 0.2:
		return model.CalibrationWellCalibrated
	case gap > 0.3:
		return model.CalibrationSeverelyOverconfident
	case gap > 0.15:
		return model.CalibrationOverconfident
	case gap < -0.15:
		return model.CalibrationUnderconfident
	case overconfidenceRatio > 0.4:
		return model.CalibrationHighConfidenceFailures
	default:
		return model.CalibrationWellCalibrated
	}
}

func bucketIndex(feltConfidence float64) int {
	idx := int(feltConfidence / bucketWidth)
	if idx >= numBuckets {
		idx = numBuckets - 1
	}
	if idx < 0 {
		idx = 0
	}
	return idx
}

func absFloat(f float64) float64 {
	if f < 0 {
		return -f
	}
	return f
}
