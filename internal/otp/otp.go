// Package otp issues and checks short-lived one-time verification codes over
// a delivery channel.
package otp

import (
	"context"
	"crypto/rand"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"

	"github.com/lverdier/meteo-vigilance/internal/delivery"
)

const (
	CodeLength  = 6
	Expiry      = 10 * time.Minute
	MaxAttempts = 3
)

var (
	ErrNoPending       = errors.New("no pending verification")
	ErrExpired         = errors.New("code expired")
	ErrTooManyAttempts = errors.New("too many attempts")
	ErrInvalidCode     = errors.New("invalid code")
)

type pendingCode struct {
	code     string
	expiry   time.Time
	attempts int
}

// Service tracks pending codes per contact (phone or email). Safe for
// concurrent use by HTTP handlers.
type Service struct {
	sms   delivery.Channel
	email delivery.Channel
	clock clockwork.Clock

	mu      sync.Mutex
	pending map[string]*pendingCode
}

func NewService(sms, email delivery.Channel, clock clockwork.Clock) *Service {
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	return &Service{
		sms:     sms,
		email:   email,
		clock:   clock,
		pending: make(map[string]*pendingCode),
	}
}

func generateCode() string {
	buf := make([]byte, CodeLength)
	rand.Read(buf)
	for i := range buf {
		buf[i] = '0' + buf[i]%10
	}
	return string(buf)
}

// SendSMS generates a code and delivers it to phone. The code is only
// recorded as pending when the send succeeds.
func (s *Service) SendSMS(ctx context.Context, phone string) error {
	code := generateCode()
	msg := delivery.Message{
		Body: fmt.Sprintf("Météo Martinique - Code de vérification: %s\n"+
			"Ce code expire dans %d minutes.\n"+
			"Ne partagez pas ce code.", code, int(Expiry.Minutes())),
	}
	if _, err := s.sms.Send(ctx, phone, msg); err != nil {
		return fmt.Errorf("sending verification code: %w", err)
	}
	s.record(phone, code)
	return nil
}

// SendEmail is the email variant for subscribers with email-only prefs.
func (s *Service) SendEmail(ctx context.Context, address string) error {
	code := generateCode()
	msg := delivery.Message{
		Subject: "Code de vérification Météo Martinique",
		Body: fmt.Sprintf("<p>Votre code de vérification: <strong>%s</strong></p>"+
			"<p>Ce code expire dans %d minutes. Ne partagez pas ce code.</p>",
			code, int(Expiry.Minutes())),
	}
	if _, err := s.email.Send(ctx, address, msg); err != nil {
		return fmt.Errorf("sending verification code: %w", err)
	}
	s.record(address, code)
	return nil
}

func (s *Service) record(contact, code string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.pending[contact] = &pendingCode{
		code:   code,
		expiry: s.clock.Now().Add(Expiry),
	}
}

// Verify checks a submitted code. The pending entry is consumed on success,
// on expiry and after the attempt limit; a wrong code within the limit keeps
// the entry alive.
func (s *Service) Verify(contact, code string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	pending, ok := s.pending[contact]
	if !ok {
		return ErrNoPending
	}

	if s.clock.Now().After(pending.expiry) {
		delete(s.pending, contact)
		return ErrExpired
	}

	pending.attempts++
	if pending.attempts > MaxAttempts {
		delete(s.pending, contact)
		return ErrTooManyAttempts
	}

	if pending.code != code {
		return ErrInvalidCode
	}

	delete(s.pending, contact)
	return nil
}

// CleanupExpired drops entries past their expiry. Called opportunistically by
// the scheduler tick.
func (s *Service) CleanupExpired() {
	s.mu.Lock()
	defer s.mu.Unlock()
	now := s.clock.Now()
	for contact, pending := range s.pending {
		if now.After(pending.expiry) {
			delete(s.pending, contact)
		}
	}
}
