package billingprovider

// CreateCheckoutRequest запрос на создание checkout-сессии.
// Metadata обязана содержать user_uid: это единственный надёжный
// ключ корреляции, по которому реконсилиатор свяжет события
// провайдера с внутренним пользователем.
type CreateCheckoutRequest struct {
	Products      []string          `json:"products"`
	SuccessURL    string            `json:"success_url"`
	CustomerEmail string            `json:"customer_email,omitempty"`
	Metadata      map[string]string `json:"metadata,omitempty"`
}

// Checkout ответ провайдера на создание checkout-сессии.
type Checkout struct {
	ID     string `json:"id"`
	URL    string `json:"url"`
	Status string `json:"status"`
}

// Customer покупатель у биллинг-провайдера.
type Customer struct {
	ID    string `json:"id"`
	Email string `json:"email"`
}

type customerListResponse struct {
	Items []Customer `json:"items"`
}

type createCustomerSessionRequest struct {
	CustomerID string `json:"customer_id"`
	ReturnURL  string `json:"return_url,omitempty"`
}

// CustomerSession сессия клиентского портала.
type CustomerSession struct {
	ID                string `json:"id"`
	CustomerPortalURL string `json:"customer_portal_url"`
}

type updateSubscriptionRequest struct {
	CancelAtPeriodEnd bool `json:"cancel_at_period_end"`
}
