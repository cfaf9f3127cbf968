// Package aiprovider реализует клиент потоковой генерации текста.
// Модель потребляется как непрозрачная возможность "стриминговое
// дополнение": истории реплик на входе, колбэк на каждый фрагмент
// текста на выходе.
package aiprovider

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

// Message одна реплика истории: роль "user" или "model".
type Message struct {
	Role string
	Text string
}

// Client клиент streamGenerateContent API генеративной модели.
type Client struct {
	apiURL     string
	apiKey     string
	model      string
	httpClient *http.Client
}

// NewClient создает новый клиент модели.
func NewClient(apiURL, apiKey, model string, timeout time.Duration) *Client {
	return &Client{
		apiURL:     apiURL,
		apiKey:     apiKey,
		model:      model,
		httpClient: &http.Client{Timeout: timeout},
	}
}

type generateRequest struct {
	Contents []content `json:"contents"`
}

type content struct {
	Role  string `json:"role"`
	Parts []part `json:"parts"`
}

type part struct {
	Text string `json:"text"`
}

type generateChunk struct {
	Candidates []struct {
		Content struct {
			Parts []part `json:"parts"`
		} `json:"content"`
	} `json:"candidates"`
}

// StreamGenerate отправляет историю диалога модели и вызывает onChunk
// на каждый полученный фрагмент текста. Возвращает управление после
// завершения потока; отмена ctx (отключение клиента) прерывает чтение.
// Ошибка из onChunk также останавливает поток.
func (c *Client) StreamGenerate(ctx context.Context, history []Message, onChunk func(text string) error) error {
	const op = "aiprovider.StreamGenerate"

	reqBody := generateRequest{Contents: make([]content, 0, len(history))}
	for _, m := range history {
		reqBody.Contents = append(reqBody.Contents, content{
			Role:  m.Role,
			Parts: []part{{Text: m.Text}},
		})
	}
	var buf bytes.Buffer
	if err := json.NewEncoder(&buf).Encode(reqBody); err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}

	url := fmt.Sprintf("%s/models/%s:streamGenerateContent?alt=sse", c.apiURL, c.model)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, &buf)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("x-goog-api-key", c.apiKey)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		data, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return fmt.Errorf("%s: unexpected status %s: %s", op, resp.Status, data)
	}

	scanner := bufio.NewScanner(resp.Body)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for scanner.Scan() {
		line := scanner.Text()
		data, found := strings.CutPrefix(line, "data: ")
		if !found || data == "[DONE]" {
			continue
		}

		var chunk generateChunk
		if err := json.Unmarshal([]byte(data), &chunk); err != nil {
			return fmt.Errorf("%s: decode chunk: %w", op, err)
		}
		for _, cand := range chunk.Candidates {
			for _, p := range cand.Content.Parts {
				if p.Text == "" {
					continue
				}
				if err := onChunk(p.Text); err != nil {
					return fmt.Errorf("%s: %w", op, err)
				}
			}
		}
	}
	if err := scanner.Err(); err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	return nil
}
