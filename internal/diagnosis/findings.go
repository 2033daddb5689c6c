// Package diagnosis produces the findings attached to a diagnostic. The
// analysis is mocked: every request yields the same two findings.
package diagnosis

import "autocare/internal/models"

const (
	UrgencyHigh   = "high"
	UrgencyMedium = "medium"
	UrgencyLow    = "low"
)

func Findings() []models.Finding {
	return []models.Finding{
		{
			ID:             1,
			Title:          "Brake system wear",
			Confidence:     85,
			Urgency:        UrgencyHigh,
			Description:    "Noise when braking can indicate worn pads or discs.",
			Recommendation: "Schedule an urgent workshop inspection.",
		},
		{
			ID:             2,
			Title:          "Normal component wear",
			Confidence:     60,
			Urgency:        UrgencyMedium,
			Description:    "The noise may come from normal wear through use.",
			Recommendation: "Book a preventive maintenance appointment.",
		},
	}
}
