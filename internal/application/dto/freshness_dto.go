package dto

import (
	"encoding/json"
	"time"

	"github.com/dreschagin/mainnet-dashboard/internal/domain/entity"
)

// SnapshotDTO представляет снапшот фида для API и WebSocket
type SnapshotDTO struct {
	Feed       string          `json:"feed"`
	Payload    json.RawMessage `json:"payload,omitempty"`
	ReceivedAt *time.Time      `json:"received_at"`
	AgeSeconds float64         `json:"age_seconds"`
	Source     string          `json:"source"`
	IsStale    bool            `json:"is_stale"`
	ErrorKind  string          `json:"error_kind,omitempty"`
}

// FreshnessStateDTO представляет состояние всех фидов
type FreshnessStateDTO struct {
	Timestamp             time.Time      `json:"timestamp"`
	Feeds                 []*SnapshotDTO `json:"feeds"`
	IsLive                bool           `json:"is_live"`
	LastLiveUpdate        *time.Time     `json:"last_live_update"`
	ConsecutiveErrorCount int            `json:"consecutive_error_count"`
	DerivedHealth         *SnapshotDTO   `json:"derived_health"`
	ShouldForceDemoMode   bool           `json:"should_force_demo_mode"`
	ForcedByConfig        bool           `json:"forced_by_config"`
	Version               uint64         `json:"version"`
}

// FromSnapshot конвертирует снапшот в DTO. now используется для расчета возраста.
func FromSnapshot(snap entity.Snapshot, now time.Time) *SnapshotDTO {
	return &SnapshotDTO{
		Feed:       snap.FeedKey,
		Payload:    snap.Payload,
		ReceivedAt: optionalTime(snap.ReceivedAt),
		AgeSeconds: snap.Age(now).Seconds(),
		Source:     snap.Source.String(),
		IsStale:    snap.IsStale,
		ErrorKind:  snap.ErrorKind.String(),
	}
}

// NewFreshnessStateDTO конвертирует состояние контроллера в DTO
func NewFreshnessStateDTO(state entity.ControllerState, forcedByConfig bool, now time.Time) *FreshnessStateDTO {
	feeds := make([]*SnapshotDTO, len(state.Feeds))
	for i, snap := range state.Feeds {
		feeds[i] = FromSnapshot(snap, now)
	}

	return &FreshnessStateDTO{
		Timestamp:             now,
		Feeds:                 feeds,
		IsLive:                state.IsLive,
		LastLiveUpdate:        optionalTime(state.LastLiveUpdate),
		ConsecutiveErrorCount: state.ConsecutiveErrorCount,
		DerivedHealth:         FromSnapshot(state.DerivedHealth, now),
		ShouldForceDemoMode:   state.ShouldForceDemoMode,
		Version:               state.Version,
		ForcedByConfig:        forcedByConfig,
	}
}

func optionalTime(t time.Time) *time.Time {
	if t.IsZero() {
		return nil
	}
	return &t
}
