// Package webhooksig проверяет подпись вебхуков биллинг-провайдера
// по схеме standard-webhooks: HMAC-SHA256 от строки
// "<webhook-id>.<webhook-timestamp>.<body>" на секрете whsec_,
// результат в base64 в заголовке webhook-signature с префиксом версии.
//
// Проверка выполняется на сырых байтах тела до любого парсинга JSON.
package webhooksig

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"
)

const (
	// HeaderID заголовок с идентификатором доставки.
	HeaderID = "webhook-id"
	// HeaderTimestamp заголовок с unix-временем отправки.
	HeaderTimestamp = "webhook-timestamp"
	// HeaderSignature заголовок с подписями вида "v1,<base64>".
	HeaderSignature = "webhook-signature"

	secretPrefix = "whsec_"

	// Допустимое расхождение часов с провайдером.
	tolerance = 5 * time.Minute
)

var (
	// ErrMissingSignature заголовок подписи отсутствует.
	ErrMissingSignature = errors.New("missing webhook signature")
	// ErrInvalidSignature подпись не сошлась или протухла метка времени.
	ErrInvalidSignature = errors.New("invalid webhook signature")
)

// Verify проверяет подпись тела body по заголовкам запроса.
func Verify(secret string, headers http.Header, body []byte) error {
	const op = "webhooksig.Verify"

	signatureHeader := headers.Get(HeaderSignature)
	if signatureHeader == "" {
		return ErrMissingSignature
	}
	msgID := headers.Get(HeaderID)
	timestamp := headers.Get(HeaderTimestamp)
	if msgID == "" || timestamp == "" {
		return ErrInvalidSignature
	}

	ts, err := strconv.ParseInt(timestamp, 10, 64)
	if err != nil {
		return ErrInvalidSignature
	}
	diff := time.Since(time.Unix(ts, 0))
	if diff > tolerance || diff < -tolerance {
		return ErrInvalidSignature
	}

	key, err := decodeSecret(secret)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}

	mac := hmac.New(sha256.New, key)
	fmt.Fprintf(mac, "%s.%s.%s", msgID, timestamp, body)
	expected := base64.StdEncoding.EncodeToString(mac.Sum(nil))

	// В заголовке может быть несколько подписей через пробел,
	// сравнение каждой — константное по времени.
	for _, versioned := range strings.Fields(signatureHeader) {
		_, sig, found := strings.Cut(versioned, ",")
		if !found {
			continue
		}
		if hmac.Equal([]byte(expected), []byte(sig)) {
			return nil
		}
	}
	return ErrInvalidSignature
}

// Sign подписывает тело так же, как это делает провайдер.
// Используется в тестах и локальных прогонах.
func Sign(secret, msgID, timestamp string, body []byte) (string, error) {
	key, err := decodeSecret(secret)
	if err != nil {
		return "", err
	}
	mac := hmac.New(sha256.New, key)
	fmt.Fprintf(mac, "%s.%s.%s", msgID, timestamp, body)
	return "v1," + base64.StdEncoding.EncodeToString(mac.Sum(nil)), nil
}

func decodeSecret(secret string) ([]byte, error) {
	raw := strings.TrimPrefix(secret, secretPrefix)
	key, err := base64.StdEncoding.DecodeString(raw)
	if err != nil {
		// Секрет может быть задан и сырой строкой без base64.
		return []byte(raw), nil
	}
	return key, nil
}
