package entity

import (
	"errors"
	"time"

	"github.com/dreschagin/mainnet-dashboard/internal/domain/valueobject"
	"github.com/google/uuid"
)

// Transition фиксирует смену источника или вида ошибки у фида (Aggregate Root)
type Transition struct {
	id         string
	feedKey    string
	from       valueobject.Source
	to         valueobject.Source
	errorKind  valueobject.ErrorKind
	observedAt time.Time
	receivedAt time.Time
}

// NewTransition создает переход между двумя снапшотами одного фида
func NewTransition(prev, next Snapshot, observedAt time.Time) (*Transition, error) {
	if prev.FeedKey != next.FeedKey {
		return nil, errors.New("transition must describe a single feed")
	}
	if err := next.Source.Validate(); err != nil {
		return nil, err
	}
	if observedAt.IsZero() {
		return nil, errors.New("observed_at cannot be zero")
	}

	return &Transition{
		id:         uuid.New().String(),
		feedKey:    next.FeedKey,
		from:       prev.Source,
		to:         next.Source,
		errorKind:  next.ErrorKind,
		observedAt: observedAt,
		receivedAt: next.ReceivedAt,
	}, nil
}

// ReconstructTransition восстанавливает переход из хранилища (для Repository)
func ReconstructTransition(
	id, feedKey string,
	from, to valueobject.Source,
	errorKind valueobject.ErrorKind,
	observedAt, receivedAt time.Time,
) *Transition {
	return &Transition{
		id:         id,
		feedKey:    feedKey,
		from:       from,
		to:         to,
		errorKind:  errorKind,
		observedAt: observedAt,
		receivedAt: receivedAt,
	}
}

// IsTransition сообщает, отличаются ли снапшоты настолько, чтобы это стоило записать
func IsTransition(prev, next Snapshot) bool {
	return prev.Source != next.Source || prev.ErrorKind != next.ErrorKind
}

func (t *Transition) ID() string                       { return t.id }
func (t *Transition) FeedKey() string                  { return t.feedKey }
func (t *Transition) From() valueobject.Source         { return t.from }
func (t *Transition) To() valueobject.Source           { return t.to }
func (t *Transition) ErrorKind() valueobject.ErrorKind { return t.errorKind }
func (t *Transition) ObservedAt() time.Time            { return t.observedAt }
func (t *Transition) ReceivedAt() time.Time            { return t.receivedAt }

// IsDegradation сообщает, понизилось ли доверие к данным
func (t *Transition) IsDegradation() bool {
	return t.to.Rank() < t.from.Rank()
}

// IsRecovery сообщает, вернулся ли фид к live
func (t *Transition) IsRecovery() bool {
	return t.to == valueobject.Live && t.from != valueobject.Live
}
