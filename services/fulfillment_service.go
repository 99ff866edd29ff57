package services

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"html/template"
	"time"

	"github.com/Lay199xxx/BangerBaby.com/models"
	"github.com/Lay199xxx/BangerBaby.com/repository"
	"github.com/Lay199xxx/BangerBaby.com/sender"
	"github.com/Lay199xxx/BangerBaby.com/storage"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// Fatal fulfillment outcomes. Redelivering the same event cannot fix any of
// these, so webhook callers acknowledge them instead of requesting a retry.
var (
	ErrBeatNotFound  = errors.New("beat not found")
	ErrBeatNotFree   = errors.New("beat is not free")
	ErrEmailRequired = errors.New("recipient email required")
)

// TransientError marks infrastructure failures (store, object storage, mail
// relay). The fulfillment record stays pending and the caller surfaces a
// retryable response so the provider's redelivery drives the next attempt.
type TransientError struct {
	Err error
}

func (e *TransientError) Error() string { return "transient fulfillment failure: " + e.Err.Error() }
func (e *TransientError) Unwrap() error { return e.Err }

func IsTransient(err error) bool {
	var te *TransientError
	return errors.As(err, &te)
}

const paidEmailTemplate = `<h1>Thank you for your purchase!</h1>
<p>You can download your beat using the secure link below. This link will expire in {{.ExpiryHours}} hours.</p>
<p><a href="{{.DownloadURL}}" style="font-size: 18px; font-weight: bold;">Download {{.BeatName}} (WAV)</a></p>
<p style="font-size: 12px; color: #888; margin-top: 25px;">
    Having trouble? <a href="https://bangerbaby.com/instructions/">Click here for download instructions.</a>
</p>
<hr>
<p>Your license agreement can be found here: <a href="https://bangerbaby.com/licenses/">License Terms</a></p>`

const freeEmailTemplate = `<h1>Here is your free beat!</h1>
<p>Thank you for checking out the store. You can download your beat using the secure link below. This link will expire in {{.ExpiryHours}} hours.</p>
<p><a href="{{.DownloadURL}}" style="font-size: 18px; font-weight: bold;">Download {{.BeatName}} (WAV)</a></p>
<p style="font-size: 12px; color: #888; margin-top: 25px;">
    Having trouble? <a href="https://bangerbaby.com/instructions/">Click here for download instructions.</a>
</p>
<hr>
<p>Your use of this beat is subject to our terms. The license agreement can be found here: <a href="https://bangerbaby.com/licenses/">License Terms</a></p>`

type emailData struct {
	BeatName    string
	DownloadURL string
	ExpiryHours int
}

// pendingStaleAfter is how long a pending record is considered in-flight.
// It matches the per-attempt timeout in the webhook handler: a pending
// record younger than this may belong to a concurrent delivery that is
// about to send, so dispatching again would double-send. An older pending
// record is a stalled attempt and the redelivery retries it.
const pendingStaleAfter = 30 * time.Second

// FulfillmentService delivers a purchased beat: it claims the event
// idempotently, resolves the beat, mints a signed download link and mails it
// to the buyer.
type FulfillmentService interface {
	FulfillPaid(ctx context.Context, providerEventID, beatID, email string) error
	FulfillFree(ctx context.Context, beatID, email string) error
}

type fulfillmentService struct {
	beats        repository.BeatRepository
	fulfillments repository.FulfillmentRepository
	signer       storage.DownloadSigner
	email        sender.EmailSender
	validate     *validator.Validate
	linkTTL      time.Duration
	paidTmpl     *template.Template
	freeTmpl     *template.Template
	logger       *zap.Logger
}

func NewFulfillmentService(
	beats repository.BeatRepository,
	fulfillments repository.FulfillmentRepository,
	signer storage.DownloadSigner,
	email sender.EmailSender,
	linkTTL time.Duration,
	logger *zap.Logger,
) FulfillmentService {
	return &fulfillmentService{
		beats:        beats,
		fulfillments: fulfillments,
		signer:       signer,
		email:        email,
		validate:     validator.New(),
		linkTTL:      linkTTL,
		paidTmpl:     template.Must(template.New("paid").Parse(paidEmailTemplate)),
		freeTmpl:     template.Must(template.New("free").Parse(freeEmailTemplate)),
		logger:       logger,
	}
}

// FulfillPaid handles a verified payment-success event. The provider may
// redeliver the same event ID any number of times; a delivered record makes
// every later attempt a no-op.
func (s *fulfillmentService) FulfillPaid(ctx context.Context, providerEventID, beatID, email string) error {
	if err := s.validate.Var(email, "required,email"); err != nil {
		return ErrEmailRequired
	}
	if beatID == "" {
		return ErrBeatNotFound
	}

	rec, created, err := s.fulfillments.ClaimEvent(ctx, providerEventID, beatID, email)
	if err != nil {
		return &TransientError{Err: fmt.Errorf("claiming event %s: %w", providerEventID, err)}
	}
	if !created {
		switch rec.Status {
		case models.FulfillmentDelivered:
			s.logger.Info("Skipping already-delivered event",
				zap.String("provider_event_id", providerEventID),
				zap.String("beat_id", beatID),
			)
			return nil
		case models.FulfillmentPending:
			if time.Since(rec.UpdatedAt) < pendingStaleAfter {
				// The claim winner is still working this event. Defer to
				// redelivery: by then the record is delivered (no-op) or
				// stale pending (retry).
				s.logger.Info("Fulfillment already in progress, deferring to redelivery",
					zap.String("provider_event_id", providerEventID),
				)
				return &TransientError{Err: fmt.Errorf("fulfillment of event %s already in progress", providerEventID)}
			}
		}
	}

	beat, err := s.lookupBeat(ctx, providerEventID, beatID)
	if err != nil {
		return err
	}

	return s.deliver(ctx, rec, beat, email, s.paidTmpl, "Your Beat Purchase & Download Link")
}

// FulfillFree handles a direct claim with no payment-signature gate. The
// zero-price check trusts only the stored row, never the client.
func (s *fulfillmentService) FulfillFree(ctx context.Context, beatID, email string) error {
	if err := s.validate.Var(email, "required,email"); err != nil {
		return ErrEmailRequired
	}

	beat, err := s.beats.FindByID(ctx, beatID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return ErrBeatNotFound
		}
		return &TransientError{Err: fmt.Errorf("looking up beat %s: %w", beatID, err)}
	}
	if !beat.IsFree() {
		s.logger.Warn("Free claim rejected for priced beat",
			zap.String("beat_id", beatID),
			zap.Int("price", beat.Price),
		)
		return ErrBeatNotFree
	}

	claimID := "free_" + uuid.NewString()
	rec, _, err := s.fulfillments.ClaimEvent(ctx, claimID, beatID, email)
	if err != nil {
		return &TransientError{Err: fmt.Errorf("recording free claim: %w", err)}
	}

	return s.deliver(ctx, rec, beat, email, s.freeTmpl, "Your Free Beat Download!")
}

func (s *fulfillmentService) lookupBeat(ctx context.Context, providerEventID, beatID string) (*models.Beat, error) {
	beat, err := s.beats.FindByID(ctx, beatID)
	if err == nil {
		return beat, nil
	}
	if errors.Is(err, gorm.ErrRecordNotFound) {
		// Data-integrity fault: the event references a beat that is not in
		// the catalog. Redelivery will not make it appear.
		s.logger.Error("Purchased beat missing from catalog",
			zap.String("provider_event_id", providerEventID),
			zap.String("beat_id", beatID),
		)
		if mErr := s.fulfillments.MarkFailed(ctx, providerEventID, "beat not found"); mErr != nil {
			s.logger.Error("Failed to mark fulfillment failed", zap.Error(mErr))
		}
		return nil, ErrBeatNotFound
	}
	return nil, &TransientError{Err: fmt.Errorf("looking up beat %s: %w", beatID, err)}
}

// deliver signs the download URL, composes the message and dispatches it. Any
// infrastructure failure leaves the record pending for the next attempt.
func (s *fulfillmentService) deliver(ctx context.Context, rec *models.FulfillmentRecord, beat *models.Beat, email string, tmpl *template.Template, subject string) error {
	downloadURL, expiresAt, err := s.signer.SignDownload(ctx, beat.AudioURL, s.linkTTL)
	if err != nil {
		return &TransientError{Err: fmt.Errorf("signing download for beat %s: %w", beat.ID, err)}
	}

	var body bytes.Buffer
	if err := tmpl.Execute(&body, emailData{
		BeatName:    beat.Name,
		DownloadURL: downloadURL,
		ExpiryHours: int(s.linkTTL.Hours()),
	}); err != nil {
		return fmt.Errorf("composing fulfillment email: %w", err)
	}

	if _, err := s.email.SendEmail(ctx, email, subject, body.String()); err != nil {
		return &TransientError{Err: fmt.Errorf("dispatching fulfillment email: %w", err)}
	}

	if err := s.fulfillments.MarkDelivered(ctx, rec.ProviderEventID, expiresAt); err != nil {
		// The email is out; the next redelivery will be re-sent because the
		// record is still pending. Log loudly rather than failing the event.
		s.logger.Error("Email sent but fulfillment not marked delivered",
			zap.String("provider_event_id", rec.ProviderEventID),
			zap.Error(err),
		)
		return &TransientError{Err: fmt.Errorf("marking fulfillment delivered: %w", err)}
	}

	s.logger.Info("Fulfillment delivered",
		zap.String("provider_event_id", rec.ProviderEventID),
		zap.String("beat_id", beat.ID),
		zap.Time("link_expires_at", expiresAt),
	)
	return nil
}
