package publish

import (
	"context"
	"errors"
	"fmt"
	"os"
	"sync"
	"testing"
	"time"

	"github.com/brickfolio/platform/pkg/channel"
	"github.com/brickfolio/platform/pkg/common/logger"
	"github.com/brickfolio/platform/pkg/common/models"
	"github.com/brickfolio/platform/pkg/post"
	"github.com/brickfolio/platform/pkg/vault"
)

func TestMain(m *testing.M) {
	logger.Init()
	os.Exit(m.Run())
}

// memoryPostStore applies attempts through the aggregate itself, mirroring
// what the post service does minus the database.
type memoryPostStore struct {
	mu   sync.Mutex
	post *post.Post
}

func (s *memoryPostStore) Get(ctx context.Context, id string) (*post.Post, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.post == nil || s.post.ID != id {
		return nil, post.ErrNotFound
	}
	snapshot := *s.post
	snapshot.Items = append([]post.ContentItem(nil), s.post.Items...)
	return &snapshot, nil
}

func (s *memoryPostStore) RecordAttempt(ctx context.Context, postID, itemID string, attempt post.Attempt) (*post.Post, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.post == nil || s.post.ID != postID {
		return nil, post.ErrNotFound
	}
	if _, _, err := s.post.ApplyAttempt(itemID, attempt); err != nil {
		return nil, err
	}
	snapshot := *s.post
	snapshot.Items = append([]post.ContentItem(nil), s.post.Items...)
	return &snapshot, nil
}

func (s *memoryPostStore) ClearSchedule(ctx context.Context, postID string) (*post.Post, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.post.ScheduledAt = nil
	return s.post, nil
}

func (s *memoryPostStore) ListDueScheduled(ctx context.Context, now time.Time, limit int) ([]post.Post, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.post != nil && s.post.ScheduledAt != nil && s.post.ScheduledAt.Before(now) {
		return []post.Post{*s.post}, nil
	}
	return nil, nil
}

type stubCredentials struct {
	missing map[models.Channel]bool
}

func (s *stubCredentials) GetValid(ctx context.Context, ownerID string, ch models.Channel) (models.ChannelCredential, error) {
	if s.missing[ch] {
		return models.ChannelCredential{}, vault.ErrNoValidCredential
	}
	return models.ChannelCredential{AccessToken: "token", ExternalAccountID: "acct-1"}, nil
}

// flakyCredentials fails the first N lookups with a transport-level
// error before handing out a credential.
type flakyCredentials struct {
	mu       sync.Mutex
	calls    int
	failures int
}

func (s *flakyCredentials) GetValid(ctx context.Context, ownerID string, ch models.Channel) (models.ChannelCredential, error) {
	s.mu.Lock()
	s.calls++
	call := s.calls
	s.mu.Unlock()
	if call <= s.failures {
		return models.ChannelCredential{}, fmt.Errorf("refreshing token: %w", context.DeadlineExceeded)
	}
	return models.ChannelCredential{AccessToken: "token", ExternalAccountID: "acct-1"}, nil
}

type scriptedPublisher struct {
	channel models.Channel
	mu      sync.Mutex
	calls   int
	// script returns per call number (1-based).
	script func(call int) (string, error)
}

func (p *scriptedPublisher) Channel() models.Channel {
	return p.channel
}

func (p *scriptedPublisher) Publish(ctx context.Context, draft models.ContentDraft, cred models.ChannelCredential, idempotencyKey string) (string, error) {
	p.mu.Lock()
	p.calls++
	call := p.calls
	p.mu.Unlock()
	return p.script(call)
}

type memoryInFlight struct {
	mu   sync.Mutex
	held map[string]bool
}

func newMemoryInFlight() *memoryInFlight {
	return &memoryInFlight{held: map[string]bool{}}
}

func (f *memoryInFlight) Acquire(ctx context.Context, postID string) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.held[postID] {
		return false, nil
	}
	f.held[postID] = true
	return true, nil
}

func (f *memoryInFlight) Release(ctx context.Context, postID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.held, postID)
	return nil
}

func (f *memoryInFlight) Active(ctx context.Context, postID string) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.held[postID], nil
}

func readyPost() *post.Post {
	return &post.Post{
		ID:      "post-1",
		OwnerID: "agent-1",
		Version: 1,
		Items: []post.ContentItem{
			{ID: "item-fb", PostID: "post-1", Language: models.LanguageEnglish, Channel: models.ChannelFacebook, Body: "body", Status: post.StatusReady},
			{ID: "item-web", PostID: "post-1", Language: models.LanguageHindi, Channel: models.ChannelWebsite, Title: "title", Body: "body", Status: post.StatusReady},
		},
	}
}

func newTestCoordinator(store *memoryPostStore, creds CredentialSource, publishers *channel.Registry) *Coordinator {
	c := NewCoordinator(store, creds, publishers, newMemoryInFlight(), NopRateLimiter{}, nil, Options{
		MaxAttempts:    3,
		BackoffBase:    time.Millisecond,
		PublishTimeout: time.Second,
	})
	c.sleep = func(ctx context.Context, d time.Duration) error { return nil }
	return c
}

func outcomeFor(summary *models.PublishSummary, itemID string) *models.ItemOutcome {
	for i := range summary.Items {
		if summary.Items[i].ItemID == itemID {
			return &summary.Items[i]
		}
	}
	return nil
}

func TestPublishAllChannelsSucceed(t *testing.T) {
	store := &memoryPostStore{post: readyPost()}
	publishers := channel.NewRegistry(
		&scriptedPublisher{channel: models.ChannelFacebook, script: func(int) (string, error) { return "fb-1", nil }},
		&scriptedPublisher{channel: models.ChannelWebsite, script: func(int) (string, error) { return "web-1", nil }},
	)
	c := newTestCoordinator(store, &stubCredentials{}, publishers)

	summary, err := c.Publish(context.Background(), "post-1")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if summary.OverallStatus != post.OverallPublished {
		t.Fatalf("expected published, got %s", summary.OverallStatus)
	}
	fb := outcomeFor(summary, "item-fb")
	if fb == nil || fb.Status != "published" || fb.ExternalReference != "fb-1" {
		t.Fatalf("unexpected facebook outcome %+v", fb)
	}
	web := outcomeFor(summary, "item-web")
	if web == nil || web.Status != "published" || web.ExternalReference != "web-1" {
		t.Fatalf("unexpected website outcome %+v", web)
	}
}

func TestPublishPartialFailureLeavesOtherChannelAlone(t *testing.T) {
	store := &memoryPostStore{post: readyPost()}
	publishers := channel.NewRegistry(
		&scriptedPublisher{channel: models.ChannelFacebook, script: func(int) (string, error) {
			return "", channel.Permanent(errors.New("graph rejected the post"))
		}},
		&scriptedPublisher{channel: models.ChannelWebsite, script: func(int) (string, error) { return "web-1", nil }},
	)
	c := newTestCoordinator(store, &stubCredentials{}, publishers)

	summary, err := c.Publish(context.Background(), "post-1")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if summary.OverallStatus != post.OverallPartiallyPublished {
		t.Fatalf("expected partially_published, got %s", summary.OverallStatus)
	}
	fb := outcomeFor(summary, "item-fb")
	if fb.Status != "failed" || fb.ErrorKind != string(channel.ErrorKindPermanent) {
		t.Fatalf("unexpected facebook outcome %+v", fb)
	}
	if fb.Attempts != 1 {
		t.Fatalf("permanent failure must not be retried, got %d attempts", fb.Attempts)
	}
	if outcomeFor(summary, "item-web").Status != "published" {
		t.Fatal("expected website to publish despite facebook failure")
	}
}

func TestPublishRetriesTransientThenSucceeds(t *testing.T) {
	store := &memoryPostStore{post: readyPost()}
	store.post.Items = store.post.Items[:1] // facebook only
	publishers := channel.NewRegistry(
		&scriptedPublisher{channel: models.ChannelFacebook, script: func(call int) (string, error) {
			if call < 3 {
				return "", channel.Transient(errors.New("503 from graph"))
			}
			return "fb-1", nil
		}},
	)
	c := newTestCoordinator(store, &stubCredentials{}, publishers)

	summary, err := c.Publish(context.Background(), "post-1")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	fb := outcomeFor(summary, "item-fb")
	if fb.Status != "published" {
		t.Fatalf("expected eventual success, got %+v", fb)
	}
	if fb.Attempts != 3 {
		t.Fatalf("expected 3 attempts, got %d", fb.Attempts)
	}
}

func TestPublishTransientFailureExhaustsAttempts(t *testing.T) {
	store := &memoryPostStore{post: readyPost()}
	store.post.Items = store.post.Items[:1]
	pub := &scriptedPublisher{channel: models.ChannelFacebook, script: func(int) (string, error) {
		return "", channel.Transient(errors.New("timeout"))
	}}
	c := newTestCoordinator(store, &stubCredentials{}, channel.NewRegistry(pub))

	summary, err := c.Publish(context.Background(), "post-1")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	fb := outcomeFor(summary, "item-fb")
	if fb.Status != "failed" || fb.ErrorKind != string(channel.ErrorKindTransient) {
		t.Fatalf("unexpected outcome %+v", fb)
	}
	if pub.calls != 3 {
		t.Fatalf("expected bounded attempts, got %d calls", pub.calls)
	}
	if summary.OverallStatus != post.OverallFailed {
		t.Fatalf("expected failed, got %s", summary.OverallStatus)
	}
}

func TestPublishAuthGapFailsWithoutRetry(t *testing.T) {
	store := &memoryPostStore{post: readyPost()}
	pub := &scriptedPublisher{channel: models.ChannelFacebook, script: func(int) (string, error) {
		return "fb-1", nil
	}}
	publishers := channel.NewRegistry(
		pub,
		&scriptedPublisher{channel: models.ChannelWebsite, script: func(int) (string, error) { return "web-1", nil }},
	)
	creds := &stubCredentials{missing: map[models.Channel]bool{models.ChannelFacebook: true}}
	c := newTestCoordinator(store, creds, publishers)

	summary, err := c.Publish(context.Background(), "post-1")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	fb := outcomeFor(summary, "item-fb")
	if fb.Status != "failed" || fb.ErrorKind != string(channel.ErrorKindAuthRequired) {
		t.Fatalf("unexpected outcome %+v", fb)
	}
	if pub.calls != 0 {
		t.Fatal("expected no publish call without a valid credential")
	}
	if summary.OverallStatus != post.OverallPartiallyPublished {
		t.Fatalf("expected partially_published, got %s", summary.OverallStatus)
	}
}

func TestPublishRetriesVaultTransportFailure(t *testing.T) {
	store := &memoryPostStore{post: readyPost()}
	store.post.Items = store.post.Items[:1]
	pub := &scriptedPublisher{channel: models.ChannelFacebook, script: func(int) (string, error) {
		return "fb-1", nil
	}}
	creds := &flakyCredentials{failures: 2}
	c := newTestCoordinator(store, creds, channel.NewRegistry(pub))

	summary, err := c.Publish(context.Background(), "post-1")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	fb := outcomeFor(summary, "item-fb")
	if fb.Status != "published" {
		t.Fatalf("expected publish to recover from a vault blip, got %+v", fb)
	}
	if fb.Attempts != 3 {
		t.Fatalf("expected 3 attempts, got %d", fb.Attempts)
	}
	if creds.calls != 3 {
		t.Fatalf("expected the credential lookup retried, got %d calls", creds.calls)
	}
	if pub.calls != 1 {
		t.Fatalf("expected one publisher call, got %d", pub.calls)
	}
}

func TestPublishVaultTransportFailureIsTransient(t *testing.T) {
	store := &memoryPostStore{post: readyPost()}
	store.post.Items = store.post.Items[:1]
	pub := &scriptedPublisher{channel: models.ChannelFacebook, script: func(int) (string, error) {
		return "fb-1", nil
	}}
	creds := &flakyCredentials{failures: 10}
	c := newTestCoordinator(store, creds, channel.NewRegistry(pub))

	summary, err := c.Publish(context.Background(), "post-1")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	fb := outcomeFor(summary, "item-fb")
	if fb.Status != "failed" || fb.ErrorKind != string(channel.ErrorKindTransient) {
		t.Fatalf("expected transient failure, got %+v", fb)
	}
	if creds.calls != 3 {
		t.Fatalf("expected bounded retries, got %d lookups", creds.calls)
	}
	if pub.calls != 0 {
		t.Fatal("expected no publisher call without a credential")
	}
}

func TestPublishSkipsNonReadyItems(t *testing.T) {
	p := readyPost()
	p.Items[1].Status = post.StatusPublished
	p.Items[1].ExternalReference = "web-old"
	store := &memoryPostStore{post: p}
	publishers := channel.NewRegistry(
		&scriptedPublisher{channel: models.ChannelFacebook, script: func(int) (string, error) { return "fb-1", nil }},
	)
	c := newTestCoordinator(store, &stubCredentials{}, publishers)

	summary, err := c.Publish(context.Background(), "post-1")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	web := outcomeFor(summary, "item-web")
	if web.Status != "skipped" {
		t.Fatalf("expected skipped, got %+v", web)
	}
	if web.ExternalReference != "web-old" {
		t.Fatal("expected skipped outcome to carry the existing external reference")
	}
}

func TestPublishRejectsConcurrentInvocation(t *testing.T) {
	store := &memoryPostStore{post: readyPost()}
	inflight := newMemoryInFlight()
	c := NewCoordinator(store, &stubCredentials{}, channel.NewRegistry(), inflight, NopRateLimiter{}, nil, Options{})

	if ok, _ := inflight.Acquire(context.Background(), "post-1"); !ok {
		t.Fatal("setup: could not take marker")
	}
	if _, err := c.Publish(context.Background(), "post-1"); !errors.Is(err, ErrPublishInFlight) {
		t.Fatalf("expected in-flight rejection, got %v", err)
	}
}

func TestPublishCancellationWithExternalRefCountsAsSuccess(t *testing.T) {
	store := &memoryPostStore{post: readyPost()}
	store.post.Items = store.post.Items[:1]
	publishers := channel.NewRegistry(
		&scriptedPublisher{channel: models.ChannelFacebook, script: func(int) (string, error) {
			// Platform accepted the post but the response arrived after
			// the call deadline.
			return "fb-1", channel.Transient(context.DeadlineExceeded)
		}},
	)
	c := newTestCoordinator(store, &stubCredentials{}, publishers)

	summary, err := c.Publish(context.Background(), "post-1")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	fb := outcomeFor(summary, "item-fb")
	if fb.Status != "published" || fb.ExternalReference != "fb-1" {
		t.Fatalf("expected reconciliation to published, got %+v", fb)
	}
}

func TestPublishClearsPendingSchedule(t *testing.T) {
	store := &memoryPostStore{post: readyPost()}
	at := time.Now().Add(time.Hour).UTC()
	store.post.ScheduledAt = &at
	publishers := channel.NewRegistry(
		&scriptedPublisher{channel: models.ChannelFacebook, script: func(int) (string, error) { return "fb-1", nil }},
		&scriptedPublisher{channel: models.ChannelWebsite, script: func(int) (string, error) { return "web-1", nil }},
	)
	c := newTestCoordinator(store, &stubCredentials{}, publishers)

	if _, err := c.Publish(context.Background(), "post-1"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if store.post.ScheduledAt != nil {
		t.Fatal("expected schedule cleared once dispatch began")
	}
}

func TestCancelScheduled(t *testing.T) {
	store := &memoryPostStore{post: readyPost()}
	at := time.Now().Add(time.Hour).UTC()
	store.post.ScheduledAt = &at
	inflight := newMemoryInFlight()
	c := NewCoordinator(store, &stubCredentials{}, channel.NewRegistry(), inflight, NopRateLimiter{}, nil, Options{})

	cancelled, err := c.CancelScheduled(context.Background(), "post-1")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !cancelled {
		t.Fatal("expected pending schedule to cancel")
	}
	if store.post.ScheduledAt != nil {
		t.Fatal("expected schedule cleared")
	}

	// Once dispatch holds the marker, cancel is a no-op.
	store.post.ScheduledAt = &at
	inflight.Acquire(context.Background(), "post-1")
	cancelled, err = c.CancelScheduled(context.Background(), "post-1")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cancelled {
		t.Fatal("expected cancel to be a no-op while publish is in flight")
	}
	if store.post.ScheduledAt == nil {
		t.Fatal("expected schedule untouched while publish is in flight")
	}
}

func TestPublishArchivedPostRejected(t *testing.T) {
	p := readyPost()
	p.Archived = true
	store := &memoryPostStore{post: p}
	c := newTestCoordinator(store, &stubCredentials{}, channel.NewRegistry())

	if _, err := c.Publish(context.Background(), "post-1"); !errors.Is(err, post.ErrArchived) {
		t.Fatalf("expected archived rejection, got %v", err)
	}
}
