// Package models содержит доменные структуры подписки,
// а также вспомогательные типы для приёма данных из JSON-запросов.
package models

import "time"

// Статусы подписки. Планировщик напоминаний рассылает письма
// только пока подписка находится в статусе StatusActive.
const (
	StatusActive    = "active"
	StatusCancelled = "cancelled"
	StatusExpired   = "expired"
)

// Частоты продления подписки.
const (
	FrequencyDaily   = "daily"
	FrequencyWeekly  = "weekly"
	FrequencyMonthly = "monthly"
	FrequencyYearly  = "yearly"
)

// Subscription представляет собой основную модель подписки,
// используемую в бизнес-логике и хранилище.
type Subscription struct {
	ID          string    // Уникальный идентификатор подписки (uuid)
	ServiceName string    // Название сервиса подписки
	Price       int       // Цена подписки за период
	Frequency   string    // Частота продления: daily, weekly, monthly, yearly
	Username    string    // Имя пользователя, которому принадлежит подписка
	StartDate   time.Time // Дата начала подписки
	RenewalDate time.Time // Дата продления, от неё считаются напоминания
	Status      string    // Текущий статус: active, cancelled, expired
}

// DummySubscription используется для приёма данных из JSON-запроса,
// прежде чем конвертировать их в Subscription.
// Даты приходят в виде строк, чтобы их можно было валидировать и парсить вручную.
type DummySubscription struct {
	ServiceName string `json:"service_name" validate:"required"`                             // Название сервиса
	Price       int    `json:"price" validate:"required,gt=0"`                               // Цена (>0)
	Frequency   string `json:"frequency" validate:"required,oneof=daily weekly monthly yearly"` // Частота продления
	StartDate   string `json:"start_date" validate:"required"`                               // Дата начала в формате 02-01-2006
	RenewalDate string `json:"renewal_date,omitempty"`                                       // Дата продления, опционально
}

// SubscriptionInfo снимок подписки вместе с контактами владельца.
// Именно его планировщик напоминаний читает один раз в начале запуска
// и использует для всех дальнейших решений.
type SubscriptionInfo struct {
	SubscriptionID string
	ServiceName    string
	Price          int
	Frequency      string
	Username       string
	Email          string
	RenewalDate    time.Time
	Status         string
}
