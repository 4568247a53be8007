package service

import "github.com/gridsmart/backend/internal/domain"

// ClassifyLoad maps a transformer load percentage to a status band
func ClassifyLoad(load float64) domain.LoadStatus {
	switch {
	case load > 85:
		return domain.LoadCritical
	case load > 70:
		return domain.LoadHigh
	case load > 50:
		return domain.LoadMedium
	default:
		return domain.LoadNormal
	}
}

// Recommend returns the demand-response advice for a load level
func Recommend(load float64) domain.Recommendation {
	switch {
	case load > 85:
		return domain.Recommendation{
			Action:              "IMMEDIATE_REDUCTION",
			Urgency:             "CRITICAL",
			TargetReduction:     "15-20 kWh",
			IncentiveMultiplier: 3,
			Message:             "Transformer overload imminent! Reduce consumption immediately.",
			TimeWindow:          "Next 30 minutes",
		}
	case load > 70:
		return domain.Recommendation{
			Action:              "VOLUNTARY_REDUCTION",
			Urgency:             "HIGH",
			TargetReduction:     "8-12 kWh",
			IncentiveMultiplier: 2,
			Message:             "High load predicted. Consider reducing non-essential usage.",
			TimeWindow:          "Next hour",
		}
	case load > 60:
		return domain.Recommendation{
			Action:              "OPTIMIZATION",
			Urgency:             "MEDIUM",
			TargetReduction:     "3-5 kWh",
			IncentiveMultiplier: 1.5,
			Message:             "Good time to optimize energy usage for rewards.",
			TimeWindow:          "Next 2 hours",
		}
	default:
		return domain.Recommendation{
			Action:              "NORMAL_OPERATION",
			Urgency:             "LOW",
			TargetReduction:     "0 kWh",
			IncentiveMultiplier: 1,
			Message:             "Normal operations. Consider buying cheap P2P energy.",
			TimeWindow:          "No urgency",
		}
	}
}

// ViewOf wraps a snapshot with its classification and recommendation
func ViewOf(data domain.EnergyData) domain.EnergyView {
	return domain.EnergyView{
		EnergyData:     data,
		Status:         ClassifyLoad(data.TransformerLoad),
		Recommendation: Recommend(data.TransformerLoad),
	}
}
