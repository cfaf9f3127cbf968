// Package models содержит доменные структуры сервиса:
// запись о подписке пользователя, счётчик использования,
// диалоги и сообщения чата.
package models

import "time"

// Тарифы. Неизвестный тариф всюду трактуется как free.
const (
	PlanFree      = "free"
	PlanPro       = "pro"
	PlanUnlimited = "unlimited"
)

// Статусы подписки. Доступ определяется статусом,
// current_period_end носит информационный характер.
const (
	StatusActive   = "active"
	StatusCanceled = "canceled"
	StatusRevoked  = "revoked"
	StatusExpired  = "expired"
)

// Subscription представляет запись о подписке пользователя,
// не более одной записи на пользователя. Инвариант: если
// ProviderSubscriptionID == nil, то Plan == free.
type Subscription struct {
	UserUID                string     // Идентификатор пользователя во внешнем auth-провайдере
	Plan                   string     // Тариф: free, pro, unlimited
	Status                 string     // Статус: active, canceled, revoked, expired
	ProviderSubscriptionID *string    // ID подписки у биллинг-провайдера
	CurrentPeriodEnd       *time.Time // Конец оплаченного периода
	UpdatedAt              time.Time  // Время последней записи реконсилиации
}

// UsageSummary срез использования за текущий календарный месяц,
// отдаётся UI. Limit равен plans.Unlimited для безлимитного тарифа.
type UsageSummary struct {
	Plan  string `json:"plan"`
	Count int    `json:"count"`
	Limit int    `json:"limit"`
	Month string `json:"month"`
}

// ChatMessage одна реплика диалога в запросе на чат.
type ChatMessage struct {
	Role    string `json:"role" validate:"required"`
	Content string `json:"content"`
}

// Conversation диалог пользователя с моделью.
type Conversation struct {
	ID        string
	UserUID   string
	Title     string
	CreatedAt time.Time
}
