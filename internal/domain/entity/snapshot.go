package entity

import (
	"encoding/json"
	"time"

	"github.com/dreschagin/mainnet-dashboard/internal/domain/valueobject"
)

// Snapshot текущее значение фида и метаданные о его происхождении.
// Снапшот иммутабелен: контроллер заменяет его целиком при каждом отчете.
type Snapshot struct {
	FeedKey    string
	Payload    json.RawMessage
	ReceivedAt time.Time
	Source     valueobject.Source
	IsStale    bool
	ErrorKind  valueobject.ErrorKind
}

// HasPayload сообщает, есть ли у снапшота данные для отображения
func (s Snapshot) HasPayload() bool {
	return len(s.Payload) > 0
}

// Age возвращает возраст данных относительно now
func (s Snapshot) Age(now time.Time) time.Duration {
	if s.ReceivedAt.IsZero() {
		return 0
	}
	return now.Sub(s.ReceivedAt)
}

// ControllerState агрегированное состояние всех фидов
type ControllerState struct {
	Feeds                 []Snapshot
	IsLive                bool
	LastLiveUpdate        time.Time
	ConsecutiveErrorCount int
	DerivedHealth         Snapshot
	ShouldForceDemoMode   bool
	// Version номер отчета, после которого снято состояние; клиенты отбрасывают более старые
	Version uint64
}

// Feed ищет снапшот по ключу фида
func (s ControllerState) Feed(key string) (Snapshot, bool) {
	for _, snap := range s.Feeds {
		if snap.FeedKey == key {
			return snap, true
		}
	}
	return Snapshot{}, false
}

// PollOutcome итог одной логической попытки опроса фида: либо payload, либо ошибка
type PollOutcome struct {
	Payload    json.RawMessage
	Err        error
	ObservedAt time.Time
}

// Success создает успешный итог опроса
func Success(payload json.RawMessage, observedAt time.Time) PollOutcome {
	return PollOutcome{Payload: payload, ObservedAt: observedAt}
}

// Failure создает неуспешный итог опроса
func Failure(err error, observedAt time.Time) PollOutcome {
	return PollOutcome{Err: err, ObservedAt: observedAt}
}

// Failed сообщает, завершился ли опрос ошибкой
func (o PollOutcome) Failed() bool {
	return o.Err != nil
}
