// Package plans содержит каталог тарифов: статическое отображение
// тарифа в месячный лимит чат-запросов. Каталог собирается один раз
// при старте процесса из конфига и дальше не изменяется; передаётся
// явно во все компоненты, которым нужны лимиты.
package plans

import "github.com/magabrotheeeer/ai-chat-metering/internal/models"

// Unlimited значение лимита для безлимитного тарифа.
const Unlimited = -1

// Catalog неизменяемый каталог лимитов по тарифам.
type Catalog struct {
	limits map[string]int
}

// NewCatalog создает каталог с лимитами free и pro из конфига.
func NewCatalog(freeLimit, proLimit int) *Catalog {
	return &Catalog{limits: map[string]int{
		models.PlanFree:      freeLimit,
		models.PlanPro:       proLimit,
		models.PlanUnlimited: Unlimited,
	}}
}

// Quota возвращает месячный лимит для тарифа.
// Неизвестный тариф получает лимит free, не безлимит.
func (c *Catalog) Quota(plan string) int {
	limit, ok := c.limits[plan]
	if !ok {
		return c.limits[models.PlanFree]
	}
	return limit
}

// IsUnlimited сообщает, что тариф не ограничен по количеству запросов.
func (c *Catalog) IsUnlimited(plan string) bool {
	return c.Quota(plan) == Unlimited
}
