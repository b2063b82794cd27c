package collector

import (
	"context"
	"errors"
	"time"

	"github.com/shirou/gopsutil/v3/cpu"
)

// CPUStats загрузка CPU узла
type CPUStats struct {
	UsagePercent float64 `json:"usage_percent"`
	Cores        int     `json:"cores"`
}

// CPUCollector собирает метрики CPU
type CPUCollector struct {
	sampleWindow time.Duration
}

// NewCPUCollector создает новый CPU collector
func NewCPUCollector(sampleWindow time.Duration) *CPUCollector {
	if sampleWindow <= 0 {
		sampleWindow = 200 * time.Millisecond
	}
	return &CPUCollector{sampleWindow: sampleWindow}
}

// Collect собирает CPU метрики
func (c *CPUCollector) Collect(ctx context.Context) (*CPUStats, error) {
	percentages, err := cpu.PercentWithContext(ctx, c.sampleWindow, false)
	if err != nil {
		return nil, err
	}
	if len(percentages) == 0 {
		return nil, errors.New("cpu: no samples")
	}

	counts, _ := cpu.CountsWithContext(ctx, true)

	return &CPUStats{
		UsagePercent: percentages[0],
		Cores:        counts,
	}, nil
}
