package port

import "github.com/dreschagin/mainnet-dashboard/internal/application/dto"

// NotificationService определяет интерфейс для отправки уведомлений (Port)
// Реализация будет в Infrastructure слое (WebSocket Hub)
type NotificationService interface {
	// Broadcast отправляет состояние свежести всем подключенным клиентам
	Broadcast(state *dto.FreshnessStateDTO)

	// BroadcastTransition отправляет переход фида всем подключенным клиентам
	BroadcastTransition(transition *dto.TransitionDTO)

	// ClientCount возвращает количество подключенных клиентов
	ClientCount() int
}
