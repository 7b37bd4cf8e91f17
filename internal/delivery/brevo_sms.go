package delivery

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/google/uuid"

	"github.com/lverdier/meteo-vigilance/internal/config"
	"github.com/lverdier/meteo-vigilance/internal/repository"
)

// BrevoSMS sends transactional SMS through the Brevo API. Without an API key
// it runs in demo mode: sends are logged and acknowledged with a fake message
// id, so the rest of the pipeline stays exercisable in development.
type BrevoSMS struct {
	apiKey  string
	baseURL string
	sender  string
	client  *http.Client
}

func NewBrevoSMS(cfg config.BrevoConfig) *BrevoSMS {
	if cfg.APIKey == "" {
		slog.Warn("Brevo SMS not configured - running in demo mode")
	}
	return &BrevoSMS{
		apiKey:  cfg.APIKey,
		baseURL: cfg.BaseURL,
		sender:  cfg.SMSSender,
		client:  &http.Client{Timeout: 15 * time.Second},
	}
}

func (b *BrevoSMS) Name() string { return ChannelSMS }

func (b *BrevoSMS) Configured() bool { return b.apiKey != "" }

type brevoSMSRequest struct {
	Sender    string `json:"sender"`
	Recipient string `json:"recipient"`
	Content   string `json:"content"`
	Type      string `json:"type"`
}

type brevoSMSResponse struct {
	Reference string `json:"reference"`
	MessageID int64  `json:"messageId"`
}

func (b *BrevoSMS) Send(ctx context.Context, recipient string, msg Message) (string, error) {
	if !b.Configured() {
		id := "demo-" + uuid.NewString()
		slog.Info("SMS demo mode", "to", repository.RedactContact(recipient), "message_id", id)
		return id, nil
	}

	body, err := json.Marshal(brevoSMSRequest{
		Sender:    b.sender,
		Recipient: recipient,
		Content:   msg.Body,
		Type:      "transactional",
	})
	if err != nil {
		return "", fmt.Errorf("error encoding sms request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, b.baseURL+"/v3/transactionalSMS/sms", bytes.NewReader(body))
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

	var data brevoSMSResponse
	if err := json.NewDecoder(resp.Body).Decode(&data); err != nil {
		return "", fmt.Errorf("error decoding resp.Body: %w", err)
	}

	id := data.Reference
	if id == "" {
		id = strconv.FormatInt(data.MessageID, 10)
	}

	slog.Info("SMS sent", "to", repository.RedactContact(recipient), "message_id", id)
	return id, nil
}
