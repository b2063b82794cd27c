package collector

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/shirou/gopsutil/v3/net"
)

// NetworkStats скорость сетевого обмена узла
type NetworkStats struct {
	SentKBps    float64 `json:"sent_kbps"`
	RecvKBps    float64 `json:"recv_kbps"`
	PacketsSent uint64  `json:"packets_sent"`
	PacketsRecv uint64  `json:"packets_recv"`
}

// NetworkCollector собирает метрики сети.
// Скорость считается между двумя вызовами, поэтому первый вызов возвращает нули.
type NetworkCollector struct {
	mu            sync.Mutex
	lastStat      *net.IOCountersStat
	lastCheckTime time.Time
}

// NewNetworkCollector создает новый Network collector
func NewNetworkCollector() *NetworkCollector {
	return &NetworkCollector{}
}

// Collect собирает Network метрики
func (c *NetworkCollector) Collect(ctx context.Context) (*NetworkStats, error) {
	stats, err := net.IOCountersWithContext(ctx, false)
	if err != nil {
		return nil, err
	}
	if len(stats) == 0 {
		return nil, errors.New("network: no interfaces")
	}

	current := stats[0]
	now := time.Now()

	c.mu.Lock()
	defer c.mu.Unlock()

	result := &NetworkStats{
		PacketsSent: current.PacketsSent,
		PacketsRecv: current.PacketsRecv,
	}

	if c.lastStat != nil {
		duration := now.Sub(c.lastCheckTime).Seconds()
		// счетчики могут сброситься при перезапуске интерфейса
		if duration > 0 && current.BytesSent >= c.lastStat.BytesSent && current.BytesRecv >= c.lastStat.BytesRecv {
			result.SentKBps = float64(current.BytesSent-c.lastStat.BytesSent) / duration / 1024
			result.RecvKBps = float64(current.BytesRecv-c.lastStat.BytesRecv) / duration / 1024
		}
	}

	c.lastStat = &current
	c.lastCheckTime = now

	return result, nil
}
