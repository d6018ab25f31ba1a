package crisis

import (
	"math"
	"time"

	"github.com/mazungumzo-chat-go/internal/models"
)

// AnalyzeTrend re-scores the session's recent user messages to report how
// risk is moving. History entries are scored without their own history so
// the analysis stays linear in the window size.
func (s *Scorer) AnalyzeTrend(session *models.Session) models.TrendReport {
	history := session.History
	if len(history) > 20 {
		history = history[len(history)-20:]
	}

	var scores []float64
	for _, msg := range history {
		if msg.Role == models.RoleUser {
			scores = append(scores, s.score(msg.Content, nil, false).Confidence)
		}
	}

	report := models.TrendReport{
		Trend:           models.TrendStable,
		RiskLevel:       models.RiskLow,
		Recommendation:  models.RecommendContinueMonitoring,
		CrisisIncidents: len(session.CrisisFlags),
	}
	if len(session.CrisisFlags) > 0 {
		last := session.CrisisFlags[len(session.CrisisFlags)-1].Timestamp
		report.LastCrisis = &last
	}

	if len(scores) == 0 {
		return report
	}

	recentWindow := scores
	if len(recentWindow) > 5 {
		recentWindow = recentWindow[len(recentWindow)-5:]
	}
	recentAvg := mean(recentWindow)
	overallAvg := mean(scores)

	switch {
	case recentAvg > overallAvg+0.1:
		report.Trend = models.TrendEscalating
	case recentAvg < overallAvg-0.1:
		report.Trend = models.TrendImproving
	}

	switch {
	case recentAvg >= 0.7:
		report.RiskLevel = models.RiskHigh
	case recentAvg >= 0.4:
		report.RiskLevel = models.RiskModerate
	}

	escalating := report.Trend == models.TrendEscalating
	switch {
	case escalating && (report.RiskLevel == models.RiskHigh || report.RiskLevel == models.RiskModerate):
		report.Recommendation = models.RecommendImmediateIntervention
	case report.RiskLevel == models.RiskHigh:
		report.Recommendation = models.RecommendUrgentFollowup
	case escalating:
		report.Recommendation = models.RecommendIncreasedMonitoring
	}

	report.RecentAverageRisk = recentAvg
	report.OverallAverageRisk = overallAvg

	return report
}

func mean(values []float64) float64 {
	if len(values) == 0 {
		return 0
	}
	sum := 0.0
	for _, v := range values {
		sum += v
	}
	return sum / float64(len(values))
}

// ProfileRisk derives a risk profile from crisis flags alone, weighing how
// many exist against how recent the latest one is.
func ProfileRisk(session *models.Session, now func() time.Time) models.RiskProfile {
	flagCount := len(session.CrisisFlags)

	profile := models.RiskProfile{
		RiskLevel:       models.RiskMinimal,
		CrisisIncidents: flagCount,
	}

	hoursSince := math.Inf(1)
	if flagCount > 0 {
		last := session.CrisisFlags[flagCount-1]
		profile.LastCrisis = &last
		hoursSince = now().Sub(last.Timestamp).Hours()
		profile.HoursSinceLastCrisis = &hoursSince
	}

	switch {
	case flagCount >= 3 && hoursSince < 24:
		profile.RiskLevel = models.RiskHigh
	case flagCount >= 2 && hoursSince < 48:
		profile.RiskLevel = models.RiskModerate
	case flagCount >= 1 && hoursSince < 72:
		profile.RiskLevel = models.RiskLow
	}

	profile.NeedsFollowup = profile.RiskLevel == models.RiskHigh || profile.RiskLevel == models.RiskModerate

	switch {
	case profile.RiskLevel == models.RiskHigh:
		profile.RecommendedAction = models.RecommendImmediateSupport
	case profile.RiskLevel == models.RiskModerate:
		profile.RecommendedAction = models.RecommendProfessionalCounseling
	case profile.RiskLevel == models.RiskLow && hoursSince < 72:
		profile.RecommendedAction = models.RecommendContinuedMonitoring
	default:
		profile.RecommendedAction = models.RecommendRegularSupport
	}

	return profile
}
