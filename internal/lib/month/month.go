// Package month содержит работу с ключом расчётного периода.
// Использование считается по календарным месяцам независимо от даты
// продления подписки у биллинг-провайдера.
package month

import "time"

// Key возвращает ключ текущего календарного месяца в формате ГГГГ-ММ,
// например "2025-02". В этом формате месяц хранится в таблице usage.
func Key(t time.Time) string {
	return t.UTC().Format("2006-01")
}
