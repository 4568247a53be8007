package service

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/gridsmart/backend/internal/domain"
)

func TestClassifyLoad(t *testing.T) {
	cases := []struct {
		load float64
		want domain.LoadStatus
	}{
		{0, domain.LoadNormal},
		{50, domain.LoadNormal},
		{50.1, domain.LoadMedium},
		{70, domain.LoadMedium},
		{70.1, domain.LoadHigh},
		{85, domain.LoadHigh},
		{85.1, domain.LoadCritical},
		{100, domain.LoadCritical},
	}
	for _, c := range cases {
		assert.Equal(t, c.want, ClassifyLoad(c.load), "load %.1f", c.load)
	}
}

func TestRecommend(t *testing.T) {
	assert.Equal(t, "IMMEDIATE_REDUCTION", Recommend(90).Action)
	assert.Equal(t, 3.0, Recommend(90).IncentiveMultiplier)
	assert.Equal(t, "VOLUNTARY_REDUCTION", Recommend(75).Action)
	assert.Equal(t, "OPTIMIZATION", Recommend(65).Action)
	assert.Equal(t, "NORMAL_OPERATION", Recommend(60).Action)

	view := ViewOf(domain.EnergyData{TransformerLoad: 72})
	assert.Equal(t, domain.LoadHigh, view.Status)
	assert.Equal(t, "HIGH", view.Recommendation.Urgency)
}
