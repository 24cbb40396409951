package amount

import (
	"fmt"
	"math"
)

// Score reconciles the primary and secondary classifications, which must be index-aligned.
// Agreeing amounts keep the average confidence. On disagreement the primary label wins and
// its confidence is capped at the lower of the two confidences damped by the batch agreement.
func Score(primary, secondary []ClassifiedAmount) (*AgreementReport, []FinalAmount, error) {
	if len(primary) != len(secondary) {
		return nil, nil, fmt.Errorf("classification sets differ in length: %d vs %d", len(primary), len(secondary))
	}

	report := &AgreementReport{
		TotalAmounts: len(primary),
		Matches:      []Agreement{},
		Mismatches:   []Disagreement{},
	}
	for i := range primary {
		if !primary[i].Amount.Value.Equal(secondary[i].Amount.Value.Decimal) {
			return nil, nil, fmt.Errorf("classification %d is for %s in one set and %s in the other",
				i, primary[i].Amount.Value.Key(), secondary[i].Amount.Value.Key())
		}
		if primary[i].Category == secondary[i].Category {
			report.MatchedAmounts++
		}
	}

	report.AgreementScore = 1.0
	if report.TotalAmounts > 0 {
		report.AgreementScore = float64(report.MatchedAmounts) / float64(report.TotalAmounts)
	}

	finals := make([]FinalAmount, 0, len(primary))
	var sum float64
	for i := range primary {
		p, s := primary[i], secondary[i]

		var confidence float64
		if p.Category == s.Category {
			confidence = (p.ClassificationConfidence + s.ClassificationConfidence) / 2
			report.Matches = append(report.Matches, Agreement{
				Value:    p.Amount.Value,
				Category: p.Category,
			})
		} else {
			confidence = p.ClassificationConfidence * report.AgreementScore
			ceiling := math.Min(p.ClassificationConfidence, s.ClassificationConfidence) * report.AgreementScore
			confidence = math.Min(confidence, ceiling)
			report.Mismatches = append(report.Mismatches, Disagreement{
				Value:               p.Amount.Value,
				PrimaryCategory:     p.Category,
				SecondaryCategory:   s.Category,
				PrimaryConfidence:   p.ClassificationConfidence,
				SecondaryConfidence: s.ClassificationConfidence,
			})
		}
		sum += confidence

		finals = append(finals, FinalAmount{
			Category:     p.Category,
			Value:        p.Amount.Value,
			Currency:     p.Amount.Currency,
			Confidence:   confidence,
			SourceOffset: p.Amount.SourceOffset,
		})
	}

	if len(finals) > 0 {
		report.FinalConfidence = report.AgreementScore * sum / float64(len(finals))
	}
	return report, finals, nil
}
