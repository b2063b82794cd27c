package collector

import (
	"context"

	"github.com/shirou/gopsutil/v3/disk"
)

// DiskStats использование раздела с данными узла
type DiskStats struct {
	Mount        string  `json:"mount"`
	UsagePercent float64 `json:"usage_percent"`
	TotalGB      uint64  `json:"total_gb"`
	UsedGB       uint64  `json:"used_gb"`
	FreeGB       uint64  `json:"free_gb"`
}

// DiskCollector собирает метрики дисков
type DiskCollector struct {
	mount string
}

// NewDiskCollector создает новый Disk collector для точки монтирования
func NewDiskCollector(mount string) *DiskCollector {
	if mount == "" {
		mount = "/"
	}
	return &DiskCollector{mount: mount}
}

// Collect собирает Disk метрики
func (c *DiskCollector) Collect(ctx context.Context) (*DiskStats, error) {
	usage, err := disk.UsageWithContext(ctx, c.mount)
	if err != nil {
		return nil, err
	}

	return &DiskStats{
		Mount:        usage.Path,
		UsagePercent: usage.UsedPercent,
		TotalGB:      usage.Total / 1024 / 1024 / 1024,
		UsedGB:       usage.Used / 1024 / 1024 / 1024,
		FreeGB:       usage.Free / 1024 / 1024 / 1024,
	}, nil
}
