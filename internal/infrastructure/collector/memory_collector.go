package collector

import (
	"context"

	"github.com/shirou/gopsutil/v3/mem"
)

// MemoryStats использование памяти узла
type MemoryStats struct {
	UsagePercent float64 `json:"usage_percent"`
	TotalMB      uint64  `json:"total_mb"`
	UsedMB       uint64  `json:"used_mb"`
	FreeMB       uint64  `json:"free_mb"`
}

// MemoryCollector собирает метрики памяти
type MemoryCollector struct{}

// NewMemoryCollector создает новый Memory collector
func NewMemoryCollector() *MemoryCollector {
	return &MemoryCollector{}
}

// Collect собирает Memory метрики
func (c *MemoryCollector) Collect(ctx context.Context) (*MemoryStats, error) {
	vmStat, err := mem.VirtualMemoryWithContext(ctx)
	if err != nil {
		return nil, err
	}

	return &MemoryStats{
		UsagePercent: vmStat.UsedPercent,
		TotalMB:      vmStat.Total / 1024 / 1024,
		UsedMB:       vmStat.Used / 1024 / 1024,
		FreeMB:       vmStat.Free / 1024 / 1024,
	}, nil
}
