package view

import (
	"time"

	"github.com/dreschagin/mainnet-dashboard/internal/application/dto"
	"github.com/dustin/go-humanize"
)

// TrustLabel подпись индикатора доверия для снапшота: "live", "cached 2 minutes ago", "demo data - network issue"
func TrustLabel(snap *dto.SnapshotDTO, now time.Time) string {
	if snap == nil {
		return "demo data"
	}

	switch snap.Source {
	case "live":
		return "live"
	case "cached":
		if snap.ReceivedAt == nil {
			return "cached"
		}
		return "cached " + humanize.RelTime(*snap.ReceivedAt, now, "ago", "from now")
	default:
		if reason := demoReason(snap.ErrorKind); reason != "" {
			return "demo data - " + reason
		}
		return "demo data"
	}
}

func demoReason(errorKind string) string {
	switch errorKind {
	case "rate-limited":
		return "rate limited"
	case "server-error":
		return "upstream error"
	case "network-error":
		return "network issue"
	default:
		return ""
	}
}

// LastLiveLabel подпись времени последнего live обновления
func LastLiveLabel(state *dto.FreshnessStateDTO, now time.Time) string {
	if state == nil || state.LastLiveUpdate == nil {
		return "never"
	}
	return humanize.RelTime(*state.LastLiveUpdate, now, "ago", "from now")
}

// PayloadSize человекочитаемый размер payload
func PayloadSize(snap *dto.SnapshotDTO) string {
	if snap == nil {
		return humanize.Bytes(0)
	}
	return humanize.Bytes(uint64(len(snap.Payload)))
}
