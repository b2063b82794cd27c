package collector

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"
)

// NodeResources payload фида node-resources
type NodeResources struct {
	CollectedAt time.Time     `json:"collected_at"`
	CPU         *CPUStats     `json:"cpu,omitempty"`
	Memory      *MemoryStats  `json:"memory,omitempty"`
	Disk        *DiskStats    `json:"disk,omitempty"`
	Network     *NetworkStats `json:"network,omitempty"`
}

// NodeResourcesFetcher собирает ресурсы локального узла и отдает их как payload фида.
// Реализует port.FeedFetcher.
type NodeResourcesFetcher struct {
	cpu     *CPUCollector
	memory  *MemoryCollector
	disk    *DiskCollector
	network *NetworkCollector
	now     func() time.Time
}

// NewNodeResourcesFetcher создает фетчер; mount раздел, где лежат данные узла
func NewNodeResourcesFetcher(mount string) *NodeResourcesFetcher {
	return &NodeResourcesFetcher{
		cpu:     NewCPUCollector(0),
		memory:  NewMemoryCollector(),
		disk:    NewDiskCollector(mount),
		network: NewNetworkCollector(),
		now:     time.Now,
	}
}

// Fetch собирает все секции параллельно. Частичный результат считается успехом,
// ошибка возвращается только если не собралась ни одна секция.
func (f *NodeResourcesFetcher) Fetch(ctx context.Context) (json.RawMessage, error) {
	var (
		wg   sync.WaitGroup
		mu   sync.Mutex
		errs []error
		res  = NodeResources{CollectedAt: f.now().UTC()}
	)

	fail := func(section string, err error) {
		mu.Lock()
		errs = append(errs, fmt.Errorf("%s: %w", section, err))
		mu.Unlock()
	}

	wg.Add(4)
	go func() {
		defer wg.Done()
		if stats, err := f.cpu.Collect(ctx); err != nil {
			fail("cpu", err)
		} else {
			mu.Lock()
			res.CPU = stats
			mu.Unlock()
		}
	}()
	go func() {
		defer wg.Done()
		if stats, err := f.memory.Collect(ctx); err != nil {
			fail("memory", err)
		} else {
			mu.Lock()
			res.Memory = stats
			mu.Unlock()
		}
	}()
	go func() {
		defer wg.Done()
		if stats, err := f.disk.Collect(ctx); err != nil {
			fail("disk", err)
		} else {
			mu.Lock()
			res.Disk = stats
			mu.Unlock()
		}
	}()
	go func() {
		defer wg.Done()
		if stats, err := f.network.Collect(ctx); err != nil {
			fail("network", err)
		} else {
			mu.Lock()
			res.Network = stats
			mu.Unlock()
		}
	}()
	wg.Wait()

	if len(errs) == 4 {
		return nil, fmt.Errorf("collect node resources: %w", errors.Join(errs...))
	}

	payload, err := json.Marshal(res)
	if err != nil {
		return nil, fmt.Errorf("marshal node resources: %w", err)
	}
	return payload, nil
}
