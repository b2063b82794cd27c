package dto

import (
	"time"

	"github.com/dreschagin/mainnet-dashboard/internal/domain/entity"
	"github.com/dreschagin/mainnet-dashboard/internal/domain/service"
)

// TransitionDTO представляет переход фида между источниками.
// Тот же формат публикуется в NATS.
type TransitionDTO struct {
	ID         string     `json:"id"`
	Feed       string     `json:"feed"`
	From       string     `json:"from"`
	To         string     `json:"to"`
	ErrorKind  string     `json:"error_kind,omitempty"`
	ObservedAt time.Time  `json:"observed_at"`
	ReceivedAt *time.Time `json:"received_at"`
}

// AvailabilityDTO доля времени в каждом источнике
type AvailabilityDTO struct {
	Live         float64 `json:"live"`
	Cached       float64 `json:"cached"`
	Demo         float64 `json:"demo"`
	Transitions  int     `json:"transitions"`
	Degradations int     `json:"degradations"`
	Recoveries   int     `json:"recoveries"`
}

// TransitionHistoryDTO история переходов фида за период
type TransitionHistoryDTO struct {
	Feed         string           `json:"feed"`
	From         time.Time        `json:"from"`
	To           time.Time        `json:"to"`
	Transitions  []*TransitionDTO `json:"transitions"`
	Availability *AvailabilityDTO `json:"availability"`
}

// FromTransition конвертирует Domain Entity в DTO
func FromTransition(t *entity.Transition) *TransitionDTO {
	return &TransitionDTO{
		ID:         t.ID(),
		Feed:       t.FeedKey(),
		From:       t.From().String(),
		To:         t.To().String(),
		ErrorKind:  t.ErrorKind().String(),
		ObservedAt: t.ObservedAt(),
		ReceivedAt: optionalTime(t.ReceivedAt()),
	}
}

// ToTransitionDTOs конвертирует слайс Entity в слайс DTO
func ToTransitionDTOs(transitions []*entity.Transition) []*TransitionDTO {
	dtos := make([]*TransitionDTO, len(transitions))
	for i, t := range transitions {
		dtos[i] = FromTransition(t)
	}
	return dtos
}

// FromAvailability конвертирует сводку доступности в DTO
func FromAvailability(s service.AvailabilitySummary) *AvailabilityDTO {
	return &AvailabilityDTO{
		Live:         s.Live,
		Cached:       s.Cached,
		Demo:         s.Demo,
		Transitions:  s.Transitions,
		Degradations: s.Degradations,
		Recoveries:   s.Recoveries,
	}
}
