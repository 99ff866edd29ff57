package controllers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/Lay199xxx/BangerBaby.com/repository"
	"github.com/Lay199xxx/BangerBaby.com/services"

	"github.com/gin-gonic/gin"
	"github.com/stripe/stripe-go/v80"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// StripeAPI is the slice of the Stripe client the controller needs; tests
// substitute a fake.
type StripeAPI interface {
	CreatePaymentIntent(amount int64, currency, beatID, receiptEmail string) (string, error)
	ParseWebhook(r *http.Request) (stripe.Event, error)
}

// fulfillTimeout bounds a single fulfillment attempt. It is detached from
// the inbound request context: Stripe does not wait on our processing, and
// the idempotency record makes a completed-after-abort attempt safe.
const fulfillTimeout = 30 * time.Second

type PaymentController struct {
	Stripe      StripeAPI
	Beats       repository.BeatRepository
	Fulfillment services.FulfillmentService
	Logger      *zap.Logger
}

// CreatePaymentIntent looks up the authoritative price server-side and opens
// a Stripe PaymentIntent for it. Free beats are rejected here: no intent may
// ever exist for a zero amount.
func (pc *PaymentController) CreatePaymentIntent(c *gin.Context) {
	var req struct {
		BeatID string `json:"beatId" binding:"required"`
		Email  string `json:"email" binding:"omitempty,email"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	beat, err := pc.Beats.FindByID(c.Request.Context(), req.BeatID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "Beat not found"})
			return
		}
		pc.Logger.Error("Beat lookup failed", zap.String("beat_id", req.BeatID), zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Error fetching beat"})
		return
	}

	if beat.IsFree() {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Beat is free; use the free order endpoint"})
		return
	}

	clientSecret, err := pc.Stripe.CreatePaymentIntent(int64(beat.Price), "usd", beat.ID, req.Email)
	if err != nil {
		pc.Logger.Error("Failed to create payment intent",
			zap.String("beat_id", beat.ID),
			zap.Error(err),
		)
		c.JSON(http.StatusBadGateway, gin.H{"error": "Failed to create payment intent"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"clientSecret": clientSecret})
}

// StripeWebhook receives asynchronous payment events. Signature verification
// happens over the raw body before anything else; only
// payment_intent.succeeded triggers fulfillment.
func (pc *PaymentController) StripeWebhook(c *gin.Context) {
	event, err := pc.Stripe.ParseWebhook(c.Request)
	if err != nil {
		pc.Logger.Warn("Stripe webhook signature verification failed",
			zap.String("client_ip", c.ClientIP()),
			zap.Error(err),
		)
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid webhook"})
		return
	}

	if event.Type != "payment_intent.succeeded" {
		pc.Logger.Info("Ignoring webhook event type", zap.String("event_type", string(event.Type)))
		c.JSON(http.StatusOK, gin.H{"received": true})
		return
	}

	var pi stripe.PaymentIntent
	if err := json.Unmarshal(event.Data.Raw, &pi); err != nil {
		pc.Logger.Error("Failed to unmarshal payment intent", zap.String("event_id", event.ID), zap.Error(err))
		c.JSON(http.StatusOK, gin.H{"received": true})
		return
	}

	beatID := pi.Metadata["beatId"]
	email := pi.ReceiptEmail

	pc.Logger.Info("Processing payment success webhook",
		zap.String("event_id", event.ID),
		zap.String("beat_id", beatID),
	)

	// Finish the attempt even if Stripe hangs up on us mid-flight.
	ctx, cancel := context.WithTimeout(context.WithoutCancel(c.Request.Context()), fulfillTimeout)
	defer cancel()

	err = pc.Fulfillment.FulfillPaid(ctx, event.ID, beatID, email)
	switch {
	case err == nil:
		c.JSON(http.StatusOK, gin.H{"received": true})
	case services.IsTransient(err):
		// Retryable: a non-2xx response makes Stripe redeliver the event.
		pc.Logger.Warn("Transient fulfillment failure, requesting redelivery",
			zap.String("event_id", event.ID),
			zap.Error(err),
		)
		c.JSON(http.StatusBadGateway, gin.H{"error": "fulfillment pending, retry"})
	default:
		// Fatal for this event; acknowledge so Stripe stops redelivering.
		pc.Logger.Error("Unrecoverable fulfillment failure",
			zap.String("event_id", event.ID),
			zap.String("beat_id", beatID),
			zap.Error(err),
		)
		c.JSON(http.StatusOK, gin.H{"received": true})
	}
}

// FulfillFreeOrder delivers a zero-priced beat directly. There is no payment
// signature on this path, so the price check inside the service is the only
// gate keeping priced beats out.
func (pc *PaymentController) FulfillFreeOrder(c *gin.Context) {
	var req struct {
		BeatID string `json:"beatId" binding:"required"`
		Email  string `json:"email" binding:"required,email"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	ctx, cancel := context.WithTimeout(context.WithoutCancel(c.Request.Context()), fulfillTimeout)
	defer cancel()

	err := pc.Fulfillment.FulfillFree(ctx, req.BeatID, req.Email)
	switch {
	case err == nil:
		c.JSON(http.StatusOK, gin.H{"success": true})
	case errors.Is(err, services.ErrBeatNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": "Beat not found"})
	case errors.Is(err, services.ErrBeatNotFree):
		c.JSON(http.StatusBadRequest, gin.H{"error": "Beat is not free"})
	case errors.Is(err, services.ErrEmailRequired):
		c.JSON(http.StatusBadRequest, gin.H{"error": "A valid email is required"})
	default:
		pc.Logger.Error("Free fulfillment failed",
			zap.String("beat_id", req.BeatID),
			zap.Error(err),
		)
		c.JSON(http.StatusBadGateway, gin.H{"error": "Failed to fulfill order"})
	}
}
