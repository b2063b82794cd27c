package service

import (
	"time"

	"github.com/dreschagin/mainnet-dashboard/internal/domain/entity"
	"github.com/dreschagin/mainnet-dashboard/internal/domain/valueobject"
)

// AvailabilitySummary доля времени, проведенного фидом в каждом источнике
type AvailabilitySummary struct {
	Live         float64
	Cached       float64
	Demo         float64
	Transitions  int
	Degradations int
	Recoveries   int
}

// AvailabilityAggregator считает доступность фида по истории переходов (Domain Service)
// Содержит бизнес-логику, которая не принадлежит одной конкретной сущности
type AvailabilityAggregator struct{}

// NewAvailabilityAggregator создает новый AvailabilityAggregator
func NewAvailabilityAggregator() *AvailabilityAggregator {
	return &AvailabilityAggregator{}
}

// Summarize проходит по переходам в хронологическом порядке.
// initial источник фида на начало диапазона.
func (a *AvailabilityAggregator) Summarize(
	initial valueobject.Source,
	transitions []*entity.Transition,
	timeRange valueobject.TimeRange,
) AvailabilitySummary {
	var summary AvailabilitySummary

	total := timeRange.Duration()
	if total <= 0 {
		return summary
	}

	spent := make(map[valueobject.Source]time.Duration, 3)
	current := initial
	cursor := timeRange.Start()

	for _, tr := range transitions {
		if !timeRange.Contains(tr.ObservedAt()) {
			continue
		}
		at := timeRange.Clamp(tr.ObservedAt())
		if at.After(cursor) {
			spent[current] += at.Sub(cursor)
			cursor = at
		}

		current = tr.To()
		summary.Transitions++
		if tr.IsDegradation() {
			summary.Degradations++
		}
		if tr.IsRecovery() {
			summary.Recoveries++
		}
	}
	spent[current] += timeRange.End().Sub(cursor)

	summary.Live = ratio(spent[valueobject.Live], total)
	summary.Cached = ratio(spent[valueobject.Cached], total)
	summary.Demo = ratio(spent[valueobject.Demo], total)

	return summary
}

func ratio(part, total time.Duration) float64 {
	return float64(part) / float64(total)
}
