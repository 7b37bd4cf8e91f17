// Package billing handles the paid alert tiers through Stripe payment
// intents. Subscription state itself stays in the contact directory; Stripe
// only carries the payment.
package billing

import (
	"errors"
	"fmt"
	"log/slog"

	"github.com/stripe/stripe-go/v78"
	"github.com/stripe/stripe-go/v78/customer"
	"github.com/stripe/stripe-go/v78/paymentintent"
	"github.com/stripe/stripe-go/v78/webhook"

	"github.com/lverdier/meteo-vigilance/internal/config"
)

var (
	ErrNotConfigured = errors.New("billing not configured")
	ErrUnknownPlan   = errors.New("unknown plan type")
)

type Plan struct {
	Name     string
	Amount   int64
	Currency string
	Interval string
}

type Service struct {
	plans         map[string]Plan
	webhookSecret string
	configured    bool
}

func NewService(cfg config.StripeConfig) *Service {
	if cfg.SecretKey == "" {
		slog.Warn("Stripe not configured - billing endpoints disabled")
	}
	stripe.Key = cfg.SecretKey

	return &Service{
		configured:    cfg.SecretKey != "",
		webhookSecret: cfg.WebhookSecret,
		plans: map[string]Plan{
			"monthly": {Name: "Alertes Météo Premium (mensuel)", Amount: cfg.MonthlyCents, Currency: cfg.Currency, Interval: "month"},
			"yearly":  {Name: "Alertes Météo Premium (annuel)", Amount: cfg.YearlyCents, Currency: cfg.Currency, Interval: "year"},
		},
	}
}

func (s *Service) Configured() bool { return s.configured }

// IntentResult carries what the embedded payment form needs.
type IntentResult struct {
	ClientSecret    string `json:"client_secret"`
	PaymentIntentID string `json:"payment_intent_id"`
	CustomerID      string `json:"customer_id"`
	Amount          int64  `json:"amount"`
	Currency        string `json:"currency"`
}

// CreateIntent creates a PaymentIntent for the given plan, reusing an
// existing Stripe customer with the same email when one exists.
func (s *Service) CreateIntent(planType, email, phone string) (*IntentResult, error) {
	if !s.configured {
		return nil, ErrNotConfigured
	}
	plan, ok := s.plans[planType]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownPlan, planType)
	}

	customerID, err := s.findOrCreateCustomer(email, phone)
	if err != nil {
		return nil, fmt.Errorf("resolving customer: %w", err)
	}

	params := &stripe.PaymentIntentParams{
		Amount:   stripe.Int64(plan.Amount),
		Currency: stripe.String(plan.Currency),
		Customer: stripe.String(customerID),
		AutomaticPaymentMethods: &stripe.PaymentIntentAutomaticPaymentMethodsParams{
			Enabled: stripe.Bool(true),
		},
	}
	params.AddMetadata("plan_type", planType)
	params.AddMetadata("customer_phone", phone)
	params.AddMetadata("customer_email", email)

	intent, err := paymentintent.New(params)
	if err != nil {
		return nil, fmt.Errorf("creating payment intent: %w", err)
	}

	slog.Info("payment intent created", "intent", intent.ID, "plan", planType)
	return &IntentResult{
		ClientSecret:    intent.ClientSecret,
		PaymentIntentID: intent.ID,
		CustomerID:      customerID,
		Amount:          plan.Amount,
		Currency:        plan.Currency,
	}, nil
}

func (s *Service) findOrCreateCustomer(email, phone string) (string, error) {
	if email != "" {
		iter := customer.List(&stripe.CustomerListParams{Email: stripe.String(email)})
		if iter.Next() {
			return iter.Customer().ID, nil
		}
		if err := iter.Err(); err != nil {
			return "", err
		}
	}

	params := &stripe.CustomerParams{}
	if email != "" {
		params.Email = stripe.String(email)
	}
	if phone != "" {
		params.Phone = stripe.String(phone)
		if email == "" {
			params.Description = stripe.String("SMS subscription: " + phone)
		}
	}

	c, err := customer.New(params)
	if err != nil {
		return "", err
	}
	return c.ID, nil
}

// ConfirmResult reports the state of a payment after client-side completion.
type ConfirmResult struct {
	Succeeded bool   `json:"succeeded"`
	Status    string `json:"status"`
	PlanType  string `json:"plan_type"`
	Phone     string `json:"phone,omitempty"`
	Email     string `json:"email,omitempty"`
}

// ConfirmIntent verifies that the PaymentIntent reached the succeeded state.
func (s *Service) ConfirmIntent(paymentIntentID string) (*ConfirmResult, error) {
	if !s.configured {
		return nil, ErrNotConfigured
	}

	intent, err := paymentintent.Get(paymentIntentID, nil)
	if err != nil {
		return nil, fmt.Errorf("retrieving payment intent: %w", err)
	}

	return &ConfirmResult{
		Succeeded: intent.Status == stripe.PaymentIntentStatusSucceeded,
		Status:    string(intent.Status),
		PlanType:  intent.Metadata["plan_type"],
		Phone:     intent.Metadata["customer_phone"],
		Email:     intent.Metadata["customer_email"],
	}, nil
}

// VerifyWebhook checks the event signature and returns the parsed event.
func (s *Service) VerifyWebhook(payload []byte, signature string) (*stripe.Event, error) {
	if s.webhookSecret == "" {
		return nil, ErrNotConfigured
	}
	event, err := webhook.ConstructEvent(payload, signature, s.webhookSecret)
	if err != nil {
		return nil, fmt.Errorf("verifying webhook signature: %w", err)
	}
	return &event, nil
}
