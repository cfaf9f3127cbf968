package reconciler

import (
	"encoding/json"
	"time"
)

// Типы событий биллинг-провайдера, на которые реагирует реконсилиатор.
// Остальные типы подтверждаются и игнорируются.
const (
	EventCheckoutCompleted    = "checkout.completed"
	EventCheckoutUpdated      = "checkout.updated"
	EventSubscriptionCreated  = "subscription.created"
	EventSubscriptionActive   = "subscription.active"
	EventSubscriptionUpdated  = "subscription.updated"
	EventSubscriptionCanceled = "subscription.canceled"
	EventSubscriptionRevoked  = "subscription.revoked"
)

// Статусы checkout-сессии, означающие подтверждённую оплату.
// checkout.updated с любым другим статусом — no-op.
const (
	checkoutStatusConfirmed = "confirmed"
	checkoutStatusSucceeded = "succeeded"
)

// Event событие вебхука: тип и неразобранные данные.
// Тело разбирается только после проверки подписи.
type Event struct {
	Type string          `json:"type"`
	Data json.RawMessage `json:"data"`
}

// payload объединение известных форм данных события. Провайдер
// менял раскладку полей между версиями SDK, поэтому одно и то же
// логическое поле может прийти в нескольких местах.
type payload struct {
	ID               string         `json:"id"`
	Status           string         `json:"status"`
	ProductID        string         `json:"product_id"`
	SubscriptionID   string         `json:"subscription_id"`
	CurrentPeriodEnd *time.Time     `json:"current_period_end"`
	Metadata         map[string]any `json:"metadata"`
	CustomFieldData  map[string]any `json:"custom_field_data"`
	Checkout         *nestedObject  `json:"checkout"`
	Subscription     *nestedObject  `json:"subscription"`
}

type nestedObject struct {
	ID       string         `json:"id"`
	Metadata map[string]any `json:"metadata"`
}

// Ключи, под которыми провайдер исторически передавал внутренний
// идентификатор пользователя.
var correlationKeys = []string{"user_uid", "user_id", "userId"}

// extractStrategy одна попытка достать user_uid из известного места payload.
type extractStrategy func(p *payload) (string, bool)

// userUIDStrategies упорядоченный список мест, где искать ключ
// корреляции: верхнеуровневые metadata, пользовательские поля формы,
// затем metadata вложенных checkout и subscription.
var userUIDStrategies = []extractStrategy{
	func(p *payload) (string, bool) { return lookupCorrelation(p.Metadata) },
	func(p *payload) (string, bool) { return lookupCorrelation(p.CustomFieldData) },
	func(p *payload) (string, bool) {
		if p.Checkout == nil {
			return "", false
		}
		return lookupCorrelation(p.Checkout.Metadata)
	},
	func(p *payload) (string, bool) {
		if p.Subscription == nil {
			return "", false
		}
		return lookupCorrelation(p.Subscription.Metadata)
	},
}

// extractUserUID перебирает стратегии по порядку и останавливается
// на первой сработавшей.
func extractUserUID(p *payload) (string, bool) {
	for _, strategy := range userUIDStrategies {
		if uid, ok := strategy(p); ok {
			return uid, true
		}
	}
	return "", false
}

func lookupCorrelation(m map[string]any) (string, bool) {
	for _, key := range correlationKeys {
		if v, ok := m[key]; ok {
			if s, ok := v.(string); ok && s != "" {
				return s, true
			}
		}
	}
	return "", false
}

// providerSubscriptionID возвращает идентификатор подписки провайдера
// из checkout-события: прямое поле или вложенный объект.
func (p *payload) providerSubscriptionID() string {
	if p.SubscriptionID != "" {
		return p.SubscriptionID
	}
	if p.Subscription != nil {
		return p.Subscription.ID
	}
	return ""
}
