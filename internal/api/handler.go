package api

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/lverdier/meteo-vigilance/internal/alert"
	"github.com/lverdier/meteo-vigilance/internal/billing"
	"github.com/lverdier/meteo-vigilance/internal/delivery"
	"github.com/lverdier/meteo-vigilance/internal/models"
	"github.com/lverdier/meteo-vigilance/internal/otp"
	"github.com/lverdier/meteo-vigilance/internal/repository"
	"github.com/lverdier/meteo-vigilance/internal/stream"
)

// ForecastProvider is the slice of the weather client the dashboard
// endpoints need.
type ForecastProvider interface {
	CurrentSnapshot(ctx context.Context) (*models.Snapshot, error)
	CityForecast(ctx context.Context, city models.City) ([]models.DayForecast, error)
	AllCityForecasts(ctx context.Context) []models.DayForecast
}

// CycleRunner triggers alert cycles on demand, serialized with the scheduler.
type CycleRunner interface {
	RunCycle(ctx context.Context) (*alert.CycleSummary, error)
	ResetState(ctx context.Context) error
}

type Deps struct {
	Subscribers repository.SubscriberRepository
	Snapshots   repository.SnapshotRepository
	Verifier    *otp.Service
	SMS         delivery.Channel
	Email       delivery.Channel
	Weather     ForecastProvider
	Runner      CycleRunner
	Feed        *stream.Feed
	Billing     *billing.Service
}

type Handler struct {
	subs      repository.SubscriberRepository
	snapshots repository.SnapshotRepository
	verifier  *otp.Service
	sms       delivery.Channel
	email     delivery.Channel
	weather   ForecastProvider
	runner    CycleRunner
	feed      *stream.Feed
	billing   *billing.Service
}

func NewHandler(deps Deps) *Handler {
	return &Handler{
		subs:      deps.Subscribers,
		snapshots: deps.Snapshots,
		verifier:  deps.Verifier,
		sms:       deps.SMS,
		email:     deps.Email,
		weather:   deps.Weather,
		runner:    deps.Runner,
		feed:      deps.Feed,
		billing:   deps.Billing,
	}
}

func (h *Handler) RegisterRoutes(r *gin.Engine) {
	r.GET("/health", h.health)
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	r.POST("/api/subscribe/confirm", h.subscribeConfirm)
	r.POST("/api/otp/send", h.otpSend)
	r.POST("/api/otp/verify", h.otpVerify)
	r.POST("/api/subscribe/test", h.subscribeTest)
	r.GET("/api/subscribe/:reference_code", h.getSubscription)
	r.PUT("/api/subscribe/update", h.updateSubscription)
	r.DELETE("/api/subscribe/unsubscribe", h.unsubscribe)
	r.POST("/api/webhook/incoming", h.incomingSMS)
	r.GET("/api/stats", h.stats)
	r.GET("/api/profiles", h.profiles)

	r.GET("/api/vigilance", h.vigilance)
	r.GET("/api/forecast", h.forecast)
	r.GET("/api/forecast/geojson", h.forecastGeoJSON)
	r.GET("/api/alerts/stream", h.streamAlerts)

	r.POST("/api/admin/broadcast/check", h.adminCheck)
	r.POST("/api/admin/broadcast/reset", h.adminReset)

	r.POST("/api/billing/intent", h.billingIntent)
	r.POST("/api/billing/confirm", h.billingConfirm)
	r.POST("/api/webhook/stripe", h.stripeWebhook)
}

func (h *Handler) health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

type subscribeRequest struct {
	Phone   string `json:"phone" binding:"required"`
	Email   string `json:"email"`
	Profile string `json:"profile"`
	Prefs   string `json:"notification_prefs"`
}

// subscribeConfirm creates (or reactivates) an unverified subscription and
// sends the verification code to the subscriber's contact. The subscription
// only becomes active once the code is confirmed via /api/otp/verify.
func (h *Handler) subscribeConfirm(c *gin.Context) {
	var req subscribeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "phone is required"})
		return
	}

	phone := repository.NormalizePhone(req.Phone)
	if phone == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid phone number"})
		return
	}

	profile := req.Profile
	if !models.ValidProfile(profile) {
		profile = models.DefaultProfile
	}
	prefs := models.NotificationPrefs(req.Prefs)
	if !prefs.Valid() {
		prefs = models.PrefsSMS
	}
	if prefs.WantsEmail() && req.Email == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "email required for email notifications"})
		return
	}

	result, err := h.subs.Create(c.Request.Context(), phone, req.Email, profile, prefs)
	if err != nil {
		if errors.Is(err, repository.ErrAlreadySubscribed) {
			c.JSON(http.StatusConflict, gin.H{"error": "phone already subscribed"})
			return
		}
		slog.Error("failed to create subscription", "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to create subscription"})
		return
	}

	contact, err := h.sendVerificationCode(c.Request.Context(), phone, req.Email, prefs)
	if err != nil {
		slog.Error("failed to send verification code", "error", err)
		c.JSON(http.StatusBadGateway, gin.H{"error": "failed to send verification code"})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"reference_code": result.ReferenceCode,
		"reactivated":    result.Reactivated,
		"otp_sent_to":    repository.RedactContact(contact),
	})
}

// sendVerificationCode picks the contact the code goes to. Email-only
// subscribers get it by email; everyone else by SMS.
func (h *Handler) sendVerificationCode(ctx context.Context, phone, email string, prefs models.NotificationPrefs) (string, error) {
	if prefs == models.PrefsEmail && email != "" {
		return email, h.verifier.SendEmail(ctx, email)
	}
	return phone, h.verifier.SendSMS(ctx, phone)
}

type otpSendRequest struct {
	Phone string `json:"phone" binding:"required"`
}

// otpSend re-sends the verification code for a pending subscription.
func (h *Handler) otpSend(c *gin.Context) {
	var req otpSendRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "phone is required"})
		return
	}

	phone := repository.NormalizePhone(req.Phone)
	if phone == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid phone number"})
		return
	}

	sub, err := h.subs.GetByPhone(c.Request.Context(), phone)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "subscription not found"})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to look up subscription"})
		return
	}

	contact, err := h.sendVerificationCode(c.Request.Context(), sub.Phone, sub.Email, sub.Prefs)
	if err != nil {
		slog.Error("failed to send verification code", "error", err)
		c.JSON(http.StatusBadGateway, gin.H{"error": "failed to send verification code"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"otp_sent_to": repository.RedactContact(contact)})
}

type otpVerifyRequest struct {
	Phone string `json:"phone" binding:"required"`
	Code  string `json:"code" binding:"required"`
}

// otpVerify checks the submitted code and activates the subscription,
// then sends the welcome message over the subscriber's channels.
func (h *Handler) otpVerify(c *gin.Context) {
	var req otpVerifyRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "phone and code are required"})
		return
	}

	phone := repository.NormalizePhone(req.Phone)
	if phone == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid phone number"})
		return
	}

	sub, err := h.subs.GetByPhone(c.Request.Context(), phone)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "subscription not found"})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to look up subscription"})
		return
	}

	// The code was sent to whichever contact sendVerificationCode picked.
	contact := sub.Phone
	if sub.Prefs == models.PrefsEmail && sub.Email != "" {
		contact = sub.Email
	}

	if err := h.verifier.Verify(contact, req.Code); err != nil {
		switch {
		case errors.Is(err, otp.ErrInvalidCode):
			c.JSON(http.StatusUnauthorized, gin.H{"error": "invalid code"})
		case errors.Is(err, otp.ErrExpired):
			c.JSON(http.StatusUnauthorized, gin.H{"error": "code expired, request a new one"})
		case errors.Is(err, otp.ErrTooManyAttempts):
			c.JSON(http.StatusTooManyRequests, gin.H{"error": "too many attempts, request a new code"})
		default:
			c.JSON(http.StatusUnauthorized, gin.H{"error": "no pending verification"})
		}
		return
	}

	verified, err := h.subs.Verify(c.Request.Context(), phone)
	if err != nil {
		slog.Error("failed to mark subscription verified", "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to activate subscription"})
		return
	}

	h.sendWelcome(c.Request.Context(), verified)

	c.JSON(http.StatusOK, gin.H{
		"verified":       true,
		"reference_code": verified.ReferenceCode,
		"profile":        verified.Profile,
	})
}

// sendWelcome delivers the activation message. Failures are logged only; the
// subscription is already active.
func (h *Handler) sendWelcome(ctx context.Context, sub *models.Subscriber) {
	if sub.Prefs.WantsSMS() && sub.Phone != "" {
		if _, err := h.sms.Send(ctx, sub.Phone, delivery.Message{Body: alert.WelcomeSMS(sub.Profile)}); err != nil {
			slog.Warn("failed to send welcome sms", "error", err)
		}
	}
	if sub.Prefs.WantsEmail() && sub.Email != "" {
		subject, html := alert.WelcomeEmail(sub.Profile, sub.Prefs)
		if _, err := h.email.Send(ctx, sub.Email, delivery.Message{Subject: subject, Body: html}); err != nil {
			slog.Warn("failed to send welcome email", "error", err)
		}
	}
}

type testAlertRequest struct {
	Phone string `json:"phone" binding:"required"`
}

// subscribeTest sends a sample alert so the subscriber can see what a real
// one looks like.
func (h *Handler) subscribeTest(c *gin.Context) {
	var req testAlertRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "phone is required"})
		return
	}

	phone := repository.NormalizePhone(req.Phone)
	sub, err := h.subs.GetByPhone(c.Request.Context(), phone)
	if err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "subscription not found"})
		return
	}
	if !sub.Verified || !sub.Active {
		c.JSON(http.StatusForbidden, gin.H{"error": "subscription not active"})
		return
	}

	sent := 0
	if sub.Prefs.WantsSMS() && sub.Phone != "" {
		if _, err := h.sms.Send(c.Request.Context(), sub.Phone, delivery.Message{Body: alert.TestAlertSMS(sub.Profile)}); err == nil {
			sent++
		}
	}
	if sub.Prefs.WantsEmail() && sub.Email != "" {
		subject, html := alert.TestAlertEmail(sub.Profile)
		if _, err := h.email.Send(c.Request.Context(), sub.Email, delivery.Message{Subject: subject, Body: html}); err == nil {
			sent++
		}
	}

	if sent == 0 {
		c.JSON(http.StatusBadGateway, gin.H{"error": "test alert delivery failed"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"sent": sent})
}

func (h *Handler) getSubscription(c *gin.Context) {
	ref := c.Param("reference_code")

	sub, err := h.subs.GetByReference(c.Request.Context(), ref)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "subscription not found"})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to look up subscription"})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"reference_code":     sub.ReferenceCode,
		"phone":              repository.RedactContact(sub.Phone),
		"profile":            sub.Profile,
		"notification_prefs": sub.Prefs,
		"verified":           sub.Verified,
		"active":             sub.Active,
		"created_at":         sub.CreatedAt,
	})
}

type updateRequest struct {
	Phone   string `json:"phone" binding:"required"`
	Profile string `json:"profile" binding:"required"`
}

func (h *Handler) updateSubscription(c *gin.Context) {
	var req updateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "phone and profile are required"})
		return
	}

	if !models.ValidProfile(req.Profile) {
		c.JSON(http.StatusBadRequest, gin.H{"error": "unknown profile", "profiles": models.Profiles})
		return
	}

	phone := repository.NormalizePhone(req.Phone)
	if err := h.subs.UpdateProfile(c.Request.Context(), phone, req.Profile); err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "subscription not found"})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to update subscription"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"updated": true, "profile": req.Profile})
}

type unsubscribeRequest struct {
	Phone         string `json:"phone"`
	ReferenceCode string `json:"reference_code"`
}

func (h *Handler) unsubscribe(c *gin.Context) {
	var req unsubscribeRequest
	if err := c.ShouldBindJSON(&req); err != nil || (req.Phone == "" && req.ReferenceCode == "") {
		c.JSON(http.StatusBadRequest, gin.H{"error": "phone or reference_code is required"})
		return
	}

	phone := ""
	if req.Phone != "" {
		phone = repository.NormalizePhone(req.Phone)
	}

	id, err := h.subs.Unsubscribe(c.Request.Context(), phone, req.ReferenceCode)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "subscription not found"})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to unsubscribe"})
		return
	}

	slog.Info("subscriber unsubscribed", "id", id)
	c.JSON(http.StatusOK, gin.H{"unsubscribed": true})
}

// incomingSMS handles the provider's inbound-SMS webhook. A message starting
// with STOP unsubscribes the sender. Always answers 200 so the provider does
// not retry.
func (h *Handler) incomingSMS(c *gin.Context) {
	sender := c.PostForm("originator")
	if sender == "" {
		sender = c.PostForm("sender")
	}
	text := c.PostForm("text")
	if text == "" {
		text = c.PostForm("message")
	}

	if sender == "" || !strings.HasPrefix(strings.ToUpper(strings.TrimSpace(text)), "STOP") {
		c.JSON(http.StatusOK, gin.H{"handled": false})
		return
	}

	phone := repository.NormalizePhone(sender)
	if _, err := h.subs.Unsubscribe(c.Request.Context(), phone, ""); err != nil {
		if !errors.Is(err, repository.ErrNotFound) {
			slog.Error("failed to process STOP", "error", err)
		}
		c.JSON(http.StatusOK, gin.H{"handled": false})
		return
	}

	slog.Info("subscriber unsubscribed via STOP", "phone", repository.RedactContact(phone))
	c.JSON(http.StatusOK, gin.H{"handled": true})
}

func (h *Handler) stats(c *gin.Context) {
	stats, err := h.subs.Stats(c.Request.Context())
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to fetch stats"})
		return
	}
	c.JSON(http.StatusOK, stats)
}

func (h *Handler) profiles(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"profiles":           models.Profiles,
		"default":            models.DefaultProfile,
		"notification_prefs": []models.NotificationPrefs{models.PrefsSMS, models.PrefsEmail, models.PrefsBoth},
	})
}

// vigilance serves the latest stored snapshot, falling back to a live fetch
// when nothing has been stored yet.
func (h *Handler) vigilance(c *gin.Context) {
	snap, err := h.snapshots.LatestSnapshot(c.Request.Context())
	if err != nil {
		slog.Warn("failed to load stored snapshot", "error", err)
	}
	if snap == nil && h.weather != nil {
		snap, err = h.weather.CurrentSnapshot(c.Request.Context())
		if err != nil {
			c.JSON(http.StatusBadGateway, gin.H{"error": "vigilance data unavailable"})
			return
		}
	}
	if snap == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "no vigilance data"})
		return
	}
	c.JSON(http.StatusOK, snap)
}

func (h *Handler) forecast(c *gin.Context) {
	if name := c.Query("city"); name != "" {
		for _, city := range models.MartiniqueCities {
			if strings.EqualFold(city.Name, name) {
				days, err := h.weather.CityForecast(c.Request.Context(), city)
				if err != nil {
					c.JSON(http.StatusBadGateway, gin.H{"error": "forecast unavailable"})
					return
				}
				c.JSON(http.StatusOK, gin.H{"city": city.Name, "forecast": days})
				return
			}
		}
		c.JSON(http.StatusNotFound, gin.H{"error": "unknown city"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"forecast": h.weather.AllCityForecasts(c.Request.Context())})
}

func (h *Handler) forecastGeoJSON(c *gin.Context) {
	fc := toGeoJSON(h.weather.AllCityForecasts(c.Request.Context()))
	c.Header("Content-Type", "application/geo+json")
	c.JSON(http.StatusOK, fc)
}

// streamAlerts pushes completed broadcasts to the dashboard over SSE.
func (h *Handler) streamAlerts(c *gin.Context) {
	id, ch := h.feed.Subscribe()
	defer h.feed.Unsubscribe(id)

	c.Writer.Header().Set("Content-Type", "text/event-stream")
	c.Writer.Header().Set("Cache-Control", "no-cache")
	c.Writer.Header().Set("Connection", "keep-alive")

	c.Stream(func(w io.Writer) bool {
		select {
		case ev, ok := <-ch:
			if !ok {
				return false
			}
			c.SSEvent("alert", ev)
			return true
		case <-c.Request.Context().Done():
			return false
		}
	})
}

// adminCheck triggers one alert cycle and returns its summary. Serialized
// with the scheduler's timer.
func (h *Handler) adminCheck(c *gin.Context) {
	summary, err := h.runner.RunCycle(c.Request.Context())
	if err != nil {
		slog.Error("manual cycle failed", "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "cycle failed"})
		return
	}
	c.JSON(http.StatusOK, summary)
}

func (h *Handler) adminReset(c *gin.Context) {
	if err := h.runner.ResetState(c.Request.Context()); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "reset failed"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"reset": true})
}

type billingIntentRequest struct {
	PlanType string `json:"plan_type" binding:"required"`
	Email    string `json:"email"`
	Phone    string `json:"phone"`
}

func (h *Handler) billingIntent(c *gin.Context) {
	var req billingIntentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "plan_type is required"})
		return
	}

	result, err := h.billing.CreateIntent(req.PlanType, req.Email, repository.NormalizePhone(req.Phone))
	if err != nil {
		switch {
		case errors.Is(err, billing.ErrNotConfigured):
			c.JSON(http.StatusServiceUnavailable, gin.H{"error": "billing not available"})
		case errors.Is(err, billing.ErrUnknownPlan):
			c.JSON(http.StatusBadRequest, gin.H{"error": "unknown plan type"})
		default:
			slog.Error("failed to create payment intent", "error", err)
			c.JSON(http.StatusBadGateway, gin.H{"error": "payment setup failed"})
		}
		return
	}

	c.JSON(http.StatusOK, result)
}

type billingConfirmRequest struct {
	PaymentIntentID string `json:"payment_intent_id" binding:"required"`
}

func (h *Handler) billingConfirm(c *gin.Context) {
	var req billingConfirmRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "payment_intent_id is required"})
		return
	}

	result, err := h.billing.ConfirmIntent(req.PaymentIntentID)
	if err != nil {
		if errors.Is(err, billing.ErrNotConfigured) {
			c.JSON(http.StatusServiceUnavailable, gin.H{"error": "billing not available"})
			return
		}
		slog.Error("failed to confirm payment intent", "error", err)
		c.JSON(http.StatusBadGateway, gin.H{"error": "payment confirmation failed"})
		return
	}

	c.JSON(http.StatusOK, result)
}

func (h *Handler) stripeWebhook(c *gin.Context) {
	payload, err := io.ReadAll(c.Request.Body)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "unreadable payload"})
		return
	}

	event, err := h.billing.VerifyWebhook(payload, c.GetHeader("Stripe-Signature"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid signature"})
		return
	}

	slog.Info("stripe event received", "type", event.Type, "id", event.ID)
	c.JSON(http.StatusOK, gin.H{"received": true})
}
