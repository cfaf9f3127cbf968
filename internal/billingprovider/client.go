// Package billingprovider реализует HTTP-клиент API биллинг-провайдера:
// создание checkout-сессий, сессий клиентского портала и отмену подписок.
package billingprovider

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"
)

// ProviderError ошибка API провайдера: статус и тело ответа
// пробрасываются вызывающему без изменений.
type ProviderError struct {
	StatusCode int
	Body       string
}

func (e *ProviderError) Error() string {
	return fmt.Sprintf("billing provider: status %d: %s", e.StatusCode, e.Body)
}

// Client клиент API биллинг-провайдера.
type Client struct {
	accessToken string
	apiURL      string
	httpClient  *http.Client
}

// NewClient создаёт новый клиент с Bearer-авторизацией.
func NewClient(apiURL, accessToken string) *Client {
	return &Client{
		accessToken: accessToken,
		apiURL:      apiURL,
		httpClient:  &http.Client{Timeout: 10 * time.Second},
	}
}

func (c *Client) newRequest(ctx context.Context, method, path string, body any) (*http.Request, error) {
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			return nil, err
		}
	}
	req, err := http.NewRequestWithContext(ctx, method, c.apiURL+path, &buf)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Authorization", "Bearer "+c.accessToken)
	req.Header.Set("Content-Type", "application/json")
	return req, nil
}

func (c *Client) do(req *http.Request, result any) error {
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode < http.StatusOK || resp.StatusCode >= http.StatusMultipleChoices {
		data, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return &ProviderError{StatusCode: resp.StatusCode, Body: string(data)}
	}
	if result == nil {
		return nil
	}
	return json.NewDecoder(resp.Body).Decode(result)
}

// CreateCheckout создаёт checkout-сессию для оплаты тарифа.
func (c *Client) CreateCheckout(ctx context.Context, reqParams CreateCheckoutRequest) (*Checkout, error) {
	const op = "billingprovider.CreateCheckout"
	req, err := c.newRequest(ctx, http.MethodPost, "/v1/checkouts", reqParams)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	var checkout Checkout
	if err := c.do(req, &checkout); err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	return &checkout, nil
}

// ListCustomers возвращает покупателей с данным email.
func (c *Client) ListCustomers(ctx context.Context, email string) ([]Customer, error) {
	const op = "billingprovider.ListCustomers"
	req, err := c.newRequest(ctx, http.MethodGet, "/v1/customers?email="+url.QueryEscape(email), nil)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	var list customerListResponse
	if err := c.do(req, &list); err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	return list.Items, nil
}

// CreateCustomerSession создаёт сессию клиентского портала.
func (c *Client) CreateCustomerSession(ctx context.Context, customerID, returnURL string) (*CustomerSession, error) {
	const op = "billingprovider.CreateCustomerSession"
	req, err := c.newRequest(ctx, http.MethodPost, "/v1/customer-sessions", createCustomerSessionRequest{
		CustomerID: customerID,
		ReturnURL:  returnURL,
	})
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	var session CustomerSession
	if err := c.do(req, &session); err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	return &session, nil
}

// CancelAtPeriodEnd помечает подписку на отмену в конце оплаченного
// периода. Запись в базе изменит только вебхук subscription.canceled.
func (c *Client) CancelAtPeriodEnd(ctx context.Context, subscriptionID string) error {
	const op = "billingprovider.CancelAtPeriodEnd"
	req, err := c.newRequest(ctx, http.MethodPatch, "/v1/subscriptions/"+subscriptionID, updateSubscriptionRequest{
		CancelAtPeriodEnd: true,
	})
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	if err := c.do(req, nil); err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	return nil
}
