package delivery

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/google/uuid"

	"github.com/lverdier/meteo-vigilance/internal/config"
	"github.com/lverdier/meteo-vigilance/internal/repository"
)

// BrevoEmail sends transactional email through the Brevo API, with the same
// demo-mode behavior as BrevoSMS when no API key is configured.
type BrevoEmail struct {
	apiKey      string
	baseURL     string
	senderEmail string
	senderName  string
	client      *http.Client
}

func NewBrevoEmail(cfg config.BrevoConfig) *BrevoEmail {
	if cfg.APIKey == "" {
		slog.Warn("Brevo email not configured - running in demo mode")
	}
	return &BrevoEmail{
		apiKey:      cfg.APIKey,
		baseURL:     cfg.BaseURL,
		senderEmail: cfg.SenderEmail,
		senderName:  cfg.SenderName,
		client:      &http.Client{Timeout: 15 * time.Second},
	}
}

func (b *BrevoEmail) Name() string { return ChannelEmail }

func (b *BrevoEmail) Configured() bool { return b.apiKey != "" }

type brevoEmailRequest struct {
	Sender      brevoParty   `json:"sender"`
	To          []brevoParty `json:"to"`
	Subject     string       `json:"subject"`
	HTMLContent string       `json:"htmlContent"`
}

type brevoParty struct {
	Name  string `json:"name,omitempty"`
	Email string `json:"email"`
}

type brevoEmailResponse struct {
	MessageID string `json:"messageId"`
}

func (b *BrevoEmail) Send(ctx context.Context, recipient string, msg Message) (string, error) {
	if !b.Configured() {
		id := "demo-" + uuid.NewString()
		slog.Info("email demo mode", "to", repository.RedactContact(recipient), "message_id", id)
		return id, nil
	}

	body, err := json.Marshal(brevoEmailRequest{
		Sender:      brevoParty{Name: b.senderName, Email: b.senderEmail},
		To:          []brevoParty{{Email: recipient, Name: "Abonné Météo Martinique"}},
		Subject:     msg.Subject,
		HTMLContent: msg.Body,
	})
	if err != nil {
		return "", fmt.Errorf("error encoding email request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, b.baseURL+"/v3/smtp/email", bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("error creating request: %w", err)
	}
	req.Header.Set("api-key", b.apiKey)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")

	resp, err := b.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("error doing request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		detail, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return "", fmt.Errorf("unexpected status code: %d - body: %s", resp.StatusCode, detail)
	}

	var data brevoEmailResponse
	if err := json.NewDecoder(resp.Body).Decode(&data); err != nil {
		return "", fmt.Errorf("error decoding resp.Body: %w", err)
	}

	slog.Info("email sent", "to", repository.RedactContact(recipient), "message_id", data.MessageID)
	return data.MessageID, nil
}
