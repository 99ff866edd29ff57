package services_test

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/Lay199xxx/BangerBaby.com/models"
	"github.com/Lay199xxx/BangerBaby.com/sender"
	"github.com/Lay199xxx/BangerBaby.com/services"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type mockBeatRepo struct {
	beats map[string]*models.Beat
	err   error
}

func (m *mockBeatRepo) FindByID(_ context.Context, id string) (*models.Beat, error) {
	if m.err != nil {
		return nil, m.err
	}
	b, ok := m.beats[id]
	if !ok {
		return nil, gorm.ErrRecordNotFound
	}
	return b, nil
}

func (m *mockBeatRepo) FindAll(_ context.Context) ([]models.Beat, error) {
	var out []models.Beat
	for _, b := range m.beats {
		out = append(out, *b)
	}
	return out, nil
}

type mockFulfillmentRepo struct {
	mu      sync.Mutex
	records map[string]*models.FulfillmentRecord
	err     error
}

func newMockFulfillmentRepo() *mockFulfillmentRepo {
	return &mockFulfillmentRepo{records: make(map[string]*models.FulfillmentRecord)}
}

func (m *mockFulfillmentRepo) ClaimEvent(_ context.Context, eventID, beatID, email string) (*models.FulfillmentRecord, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return nil, false, m.err
	}
	if existing, ok := m.records[eventID]; ok {
		return existing, false, nil
	}
	rec := &models.FulfillmentRecord{
		ProviderEventID: eventID,
		BeatID:          beatID,
		RecipientEmail:  email,
		Status:          models.FulfillmentPending,
		UpdatedAt:       time.Now(),
	}
	m.records[eventID] = rec
	return rec, true, nil
}

// backdate makes a record look like a stalled earlier attempt.
func (m *mockFulfillmentRepo) backdate(eventID string, age time.Duration) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.records[eventID].UpdatedAt = time.Now().Add(-age)
}

func (m *mockFulfillmentRepo) MarkDelivered(_ context.Context, eventID string, expiry time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	rec, ok := m.records[eventID]
	if !ok {
		return gorm.ErrRecordNotFound
	}
	rec.Status = models.FulfillmentDelivered
	rec.SignedURLExpiry = &expiry
	return nil
}

func (m *mockFulfillmentRepo) MarkFailed(_ context.Context, eventID, reason string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	rec, ok := m.records[eventID]
	if !ok {
		return gorm.ErrRecordNotFound
	}
	rec.Status = models.FulfillmentFailed
	rec.FailureReason = &reason
	return nil
}

type mockSigner struct {
	url string
	ttl time.Duration
	err error
}

func (m *mockSigner) SignDownload(_ context.Context, assetRef string, ttl time.Duration) (string, time.Time, error) {
	if m.err != nil {
		return "", time.Time{}, m.err
	}
	m.ttl = ttl
	return m.url, time.Now().Add(ttl), nil
}

type sentMail struct {
	to      string
	subject string
	body    string
}

type mockSender struct {
	mu    sync.Mutex
	sent  []sentMail
	err   error
	block chan struct{} // when set, SendEmail waits on it before sending
}

func (m *mockSender) SendEmail(_ context.Context, to, subject, body string) (sender.SendResult, error) {
	if m.block != nil {
		<-m.block
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return sender.SendResult{}, m.err
	}
	m.sent = append(m.sent, sentMail{to: to, subject: subject, body: body})
	return sender.SendResult{MessageID: "test", SentAt: time.Now()}, nil
}

type fixture struct {
	beats  *mockBeatRepo
	repo   *mockFulfillmentRepo
	signer *mockSigner
	mailer *mockSender
	svc    services.FulfillmentService
}

func newFixture(beats map[string]*models.Beat) *fixture {
	f := &fixture{
		beats:  &mockBeatRepo{beats: beats},
		repo:   newMockFulfillmentRepo(),
		signer: &mockSigner{url: "https://s3.test/signed/download.wav"},
		mailer: &mockSender{},
	}
	f.svc = services.NewFulfillmentService(
		f.beats, f.repo, f.signer, f.mailer,
		86400*time.Second, zap.NewNop(),
	)
	return f
}

func paidCatalog() map[string]*models.Beat {
	return map[string]*models.Beat{
		"Storms":  {ID: "Storms", Name: "Storms", Genre: "trap", Price: 3000, AudioURL: "https://bucket.s3.us-east-2.amazonaws.com/beats/Storms.wav"},
		"Rebound": {ID: "Rebound", Name: "Rebound", Genre: "drill", Price: 0, AudioURL: "beats/Rebound.wav"},
	}
}

func TestFulfillPaid_Success(t *testing.T) {
	f := newFixture(paidCatalog())

	err := f.svc.FulfillPaid(context.Background(), "evt_1", "Storms", "a@b.com")
	require.NoError(t, err)

	require.Len(t, f.mailer.sent, 1)
	mail := f.mailer.sent[0]
	assert.Equal(t, "a@b.com", mail.to)
	assert.Equal(t, "Your Beat Purchase & Download Link", mail.subject)
	assert.Contains(t, mail.body, "https://s3.test/signed/download.wav")
	assert.Contains(t, mail.body, "Storms")
	assert.Contains(t, mail.body, "24 hours")
	assert.Equal(t, 86400*time.Second, f.signer.ttl)

	rec := f.repo.records["evt_1"]
	require.NotNil(t, rec)
	assert.Equal(t, models.FulfillmentDelivered, rec.Status)
	require.NotNil(t, rec.SignedURLExpiry)
	assert.WithinDuration(t, time.Now().Add(86400*time.Second), *rec.SignedURLExpiry, time.Minute)
}

func TestFulfillPaid_DuplicateDeliveryIsNoOp(t *testing.T) {
	f := newFixture(paidCatalog())

	require.NoError(t, f.svc.FulfillPaid(context.Background(), "evt_dup", "Storms", "a@b.com"))
	require.NoError(t, f.svc.FulfillPaid(context.Background(), "evt_dup", "Storms", "a@b.com"))

	assert.Len(t, f.mailer.sent, 1, "redelivery must not re-send the email")
}

func TestFulfillPaid_OverlappingDeliveriesSendOnce(t *testing.T) {
	f := newFixture(paidCatalog())

	// Park the claim winner inside the sender so both deliveries overlap.
	release := make(chan struct{})
	f.mailer.block = release

	var wg sync.WaitGroup
	errs := make([]error, 2)
	for i := 0; i < 2; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			errs[i] = f.svc.FulfillPaid(context.Background(), "evt_same", "Storms", "a@b.com")
		}(i)
	}
	time.Sleep(50 * time.Millisecond)
	close(release)
	wg.Wait()

	assert.Len(t, f.mailer.sent, 1, "overlapping deliveries of the same event must send exactly one email")

	succeeded := 0
	for _, err := range errs {
		if err == nil {
			succeeded++
		} else {
			assert.True(t, services.IsTransient(err), "the losing delivery must surface as retryable")
		}
	}
	assert.GreaterOrEqual(t, succeeded, 1)
	assert.Equal(t, models.FulfillmentDelivered, f.repo.records["evt_same"].Status)
}

func TestFulfillPaid_InFlightEventDeferred(t *testing.T) {
	f := newFixture(paidCatalog())

	// A concurrent delivery has claimed the event and is still working it.
	_, created, err := f.repo.ClaimEvent(context.Background(), "evt_inflight", "Storms", "a@b.com")
	require.NoError(t, err)
	require.True(t, created)

	err = f.svc.FulfillPaid(context.Background(), "evt_inflight", "Storms", "a@b.com")
	require.Error(t, err)
	assert.True(t, services.IsTransient(err))
	assert.Empty(t, f.mailer.sent, "a fresh pending record must not be dispatched again")
	assert.Equal(t, models.FulfillmentPending, f.repo.records["evt_inflight"].Status)
}

func TestFulfillPaid_RetriesAfterTransientFailure(t *testing.T) {
	f := newFixture(paidCatalog())
	f.signer.err = errors.New("s3 unavailable")

	err := f.svc.FulfillPaid(context.Background(), "evt_retry", "Storms", "a@b.com")
	require.Error(t, err)
	assert.True(t, services.IsTransient(err))
	assert.Empty(t, f.mailer.sent)
	assert.Equal(t, models.FulfillmentPending, f.repo.records["evt_retry"].Status)

	// Redelivery after the outage succeeds on the same record. Stripe
	// redelivers minutes later, past the in-flight window.
	f.signer.err = nil
	f.repo.backdate("evt_retry", time.Minute)
	require.NoError(t, f.svc.FulfillPaid(context.Background(), "evt_retry", "Storms", "a@b.com"))
	assert.Len(t, f.mailer.sent, 1)
	assert.Equal(t, models.FulfillmentDelivered, f.repo.records["evt_retry"].Status)
}

func TestFulfillPaid_SendFailureLeavesPending(t *testing.T) {
	f := newFixture(paidCatalog())
	f.mailer.err = errors.New("relay down")

	err := f.svc.FulfillPaid(context.Background(), "evt_mail", "Storms", "a@b.com")
	require.Error(t, err)
	assert.True(t, services.IsTransient(err))
	assert.Equal(t, models.FulfillmentPending, f.repo.records["evt_mail"].Status)
}

func TestFulfillPaid_UnknownBeatIsFatal(t *testing.T) {
	f := newFixture(paidCatalog())

	err := f.svc.FulfillPaid(context.Background(), "evt_bad", "Ghost", "a@b.com")
	require.ErrorIs(t, err, services.ErrBeatNotFound)
	assert.False(t, services.IsTransient(err))
	assert.Empty(t, f.mailer.sent)
	assert.Equal(t, models.FulfillmentFailed, f.repo.records["evt_bad"].Status)
}

func TestFulfillPaid_MissingEmailRejected(t *testing.T) {
	f := newFixture(paidCatalog())

	err := f.svc.FulfillPaid(context.Background(), "evt_noemail", "Storms", "")
	require.ErrorIs(t, err, services.ErrEmailRequired)
	assert.Empty(t, f.repo.records, "no record should exist for a rejected event")
}

func TestFulfillFree_Success(t *testing.T) {
	f := newFixture(paidCatalog())

	err := f.svc.FulfillFree(context.Background(), "Rebound", "a@b.com")
	require.NoError(t, err)

	require.Len(t, f.mailer.sent, 1)
	mail := f.mailer.sent[0]
	assert.Equal(t, "Your Free Beat Download!", mail.subject)
	assert.Contains(t, mail.body, "Rebound")
	assert.Contains(t, mail.body, "24 hours")

	require.Len(t, f.repo.records, 1)
	for id, rec := range f.repo.records {
		assert.True(t, strings.HasPrefix(id, "free_"))
		assert.Equal(t, models.FulfillmentDelivered, rec.Status)
	}
}

func TestFulfillFree_PricedBeatRejected(t *testing.T) {
	f := newFixture(paidCatalog())

	err := f.svc.FulfillFree(context.Background(), "Storms", "a@b.com")
	require.ErrorIs(t, err, services.ErrBeatNotFree)
	assert.Empty(t, f.mailer.sent)
	assert.Empty(t, f.repo.records)
}

func TestFulfillFree_InvalidEmailRejected(t *testing.T) {
	f := newFixture(paidCatalog())

	for _, email := range []string{"", "not-an-email"} {
		err := f.svc.FulfillFree(context.Background(), "Rebound", email)
		assert.ErrorIs(t, err, services.ErrEmailRequired, "email %q", email)
	}
	assert.Empty(t, f.mailer.sent)
}

func TestFulfillFree_UnknownBeat(t *testing.T) {
	f := newFixture(paidCatalog())

	err := f.svc.FulfillFree(context.Background(), "Ghost", "a@b.com")
	require.ErrorIs(t, err, services.ErrBeatNotFound)
	assert.Empty(t, f.mailer.sent)
}
