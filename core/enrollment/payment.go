package enrollment

import (
	"context"
)

// Customer is who pays.
type Customer struct {
	Email string `json:"email"`
	Name  string `json:"name"`
	Phone string `json:"phonenumber"`
}

// Intent is a request to collect a payment on the external checkout page.
type Intent struct {
	Reference string            `json:"tx_ref"`
	Amount    float64           `json:"amount"`
	Currency  string            `json:"currency"`
	Title     string            `json:"-"`
	ReturnURL string            `json:"redirect_url"`
	CancelURL string            `json:"-"`
	Customer  Customer          `json:"customer"`
	Meta      map[string]string `json:"meta,omitempty"`
}

// Checkout is where the payer must be sent.
type Checkout struct {
	Link string `json:"link"`
}

// Verification is what the payment provider reports about a transaction.
type Verification struct {
	TransactionID string
	Reference     string
	Status        string
	Amount        float64
	Currency      string
	PaymentMethod string
	Raw           JSONMap
}

// PaymentGateway is the redirect based payment provider.
type PaymentGateway interface {
	CreateCheckout(ctx context.Context, intent Intent) (Checkout, error)
	VerifyTransaction(ctx context.Context, transactionID string) (Verification, error)
}

// EventPublisher publishes domain events, eg: "enrollment.created".
type EventPublisher interface {
	Publish(ctx context.Context, routingKey string, payload interface{}) error
}
