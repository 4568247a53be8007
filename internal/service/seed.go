package service

import (
	"fmt"
	"sort"
	"time"

	"github.com/gridsmart/backend/internal/domain"
)

// seed loads the demo working set: one forecast two hours out, one for
// tomorrow morning, and ten settled events from the previous days.
func (e *PredictionEngine) seed(now time.Time) {
	local := now.In(e.settings.Location)

	e.tracked = append(e.tracked, domain.Prediction{
		ID:          "pred-seed-1",
		Timestamp:   now,
		TimeRange:   domain.TimeRange{Start: now.Add(2 * time.Hour), End: now.Add(3 * time.Hour)},
		Area:        "Rondebosch",
		City:        "Cape Town",
		Probability: 85,
		Status:      domain.StatusUpcoming,
	})

	tomorrow := time.Date(local.Year(), local.Month(), local.Day()+1, 7, 30, 0, 0, e.settings.Location)
	e.tracked = append(e.tracked, domain.Prediction{
		ID:          "pred-seed-2",
		Timestamp:   now,
		TimeRange:   domain.TimeRange{Start: tomorrow, End: tomorrow.Add(2 * time.Hour)},
		Area:        "Sea Point",
		City:        "Cape Town",
		Probability: 72,
		Status:      domain.StatusUpcoming,
	})
	e.sortLocked()

	for i := 0; i < 10; i++ {
		at := time.Date(local.Year(), local.Month(), local.Day()-(i+1), 17+i%3, 0, 0, 0, e.settings.Location)
		area := e.settings.Areas[intn(e.rng, len(e.settings.Areas))]
		p := domain.Prediction{
			ID:                fmt.Sprintf("history-%d", i),
			Timestamp:         at,
			TimeRange:         domain.TimeRange{Start: at, End: at.Add(time.Hour)},
			Area:              area.Area,
			City:              area.City,
			Probability:       float64(70 + intn(e.rng, 25)),
			Status:            domain.StatusActive,
			ParticipationRate: float64(60 + intn(e.rng, 35)),
		}
		e.history = append(e.history, settle(p, seededHistoryWeights, at, e.rng))
		e.settled[p.ID] = struct{}{}
	}
	sort.SliceStable(e.history, func(i, j int) bool {
		return e.history[i].Timestamp.After(e.history[j].Timestamp)
	})
	if len(e.history) > e.settings.HistoryLimit {
		e.history = e.history[:e.settings.HistoryLimit]
	}
}
