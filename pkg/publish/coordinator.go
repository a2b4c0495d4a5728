package publish

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/brickfolio/platform/pkg/channel"
	"github.com/brickfolio/platform/pkg/common/logger"
	"github.com/brickfolio/platform/pkg/common/models"
	"github.com/brickfolio/platform/pkg/observability/metrics"
	"github.com/brickfolio/platform/pkg/post"
	"github.com/brickfolio/platform/pkg/vault"
)

// CredentialSource is what the coordinator needs from the vault.
type CredentialSource interface {
	GetValid(ctx context.Context, ownerID string, ch models.Channel) (models.ChannelCredential, error)
}

// PostStore is what the coordinator needs from the post service.
type PostStore interface {
	Get(ctx context.Context, id string) (*post.Post, error)
	RecordAttempt(ctx context.Context, postID, itemID string, attempt post.Attempt) (*post.Post, error)
	ClearSchedule(ctx context.Context, postID string) (*post.Post, error)
	ListDueScheduled(ctx context.Context, now time.Time, limit int) ([]post.Post, error)
}

// AnalyticsSink receives per-attempt outcome events. Emission is
// best-effort; the attempt log on the aggregate is the authoritative
// record.
type AnalyticsSink interface {
	PublishEvent(ctx context.Context, eventType string, source string, data map[string]interface{}) error
}

type Options struct {
	MaxAttempts    int
	BackoffBase    time.Duration
	PublishTimeout time.Duration
}

func (o Options) withDefaults() Options {
	if o.MaxAttempts <= 0 {
		o.MaxAttempts = 3
	}
	if o.BackoffBase <= 0 {
		o.BackoffBase = 2 * time.Second
	}
	if o.PublishTimeout <= 0 {
		o.PublishTimeout = 20 * time.Second
	}
	return o
}

// Coordinator fans a publish command out to the channel publishers,
// collects per-channel outcomes and folds them back into the aggregate.
// One channel's failure never aborts the others.
type Coordinator struct {
	posts       PostStore
	credentials CredentialSource
	publishers  *channel.Registry
	inflight    InFlight
	limiter     RateLimiter
	analytics   AnalyticsSink
	opts        Options

	sleep func(ctx context.Context, d time.Duration) error
}

func NewCoordinator(posts PostStore, credentials CredentialSource, publishers *channel.Registry, inflight InFlight, limiter RateLimiter, analytics AnalyticsSink, opts Options) *Coordinator {
	return &Coordinator{
		posts:       posts,
		credentials: credentials,
		publishers:  publishers,
		inflight:    inflight,
		limiter:     limiter,
		analytics:   analytics,
		opts:        opts.withDefaults(),
		sleep:       sleepCtx,
	}
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-time.After(d):
		return nil
	}
}

// Publish dispatches every ready item of the post concurrently and returns
// a summary enumerating what happened to each item. Items not in ready are
// reported as skipped, never silently dropped.
func (c *Coordinator) Publish(ctx context.Context, postID string) (*models.PublishSummary, error) {
	acquired, err := c.inflight.Acquire(ctx, postID)
	if err != nil {
		return nil, err
	}
	if !acquired {
		return nil, ErrPublishInFlight
	}
	defer func() {
		if err := c.inflight.Release(context.Background(), postID); err != nil {
			logger.Log.WithError(err).Warn("failed to release publish marker")
		}
	}()

	p, err := c.posts.Get(ctx, postID)
	if err != nil {
		return nil, err
	}
	if p.Archived {
		return nil, post.ErrArchived
	}

	// Dispatch has begun: a pending schedule can no longer be cancelled.
	if p.ScheduledAt != nil {
		if _, err := c.posts.ClearSchedule(ctx, postID); err != nil {
			return nil, err
		}
	}

	summary := &models.PublishSummary{
		PostID:    postID,
		StartedAt: time.Now().UTC(),
	}

	outcomes := make([]models.ItemOutcome, len(p.Items))
	var wg sync.WaitGroup
	for i := range p.Items {
		item := p.Items[i]
		if item.Status != post.StatusReady {
			outcomes[i] = models.ItemOutcome{
				ItemID:            item.ID,
				Language:          item.Language,
				Channel:           item.Channel,
				Status:            "skipped",
				ExternalReference: item.ExternalReference,
			}
			continue
		}

		wg.Add(1)
		go func(i int, item post.ContentItem) {
			defer wg.Done()
			outcomes[i] = c.publishItem(ctx, p.OwnerID, postID, item)
		}(i, item)
	}
	wg.Wait()

	summary.Items = outcomes
	summary.FinishedAt = time.Now().UTC()

	refreshed, err := c.posts.Get(ctx, postID)
	if err != nil {
		return nil, fmt.Errorf("reloading post after publish: %w", err)
	}
	summary.OverallStatus = refreshed.OverallStatus()

	logger.Log.WithFields(map[string]interface{}{
		"post_id":        postID,
		"overall_status": summary.OverallStatus,
		"items":          len(summary.Items),
	}).Info("publish run finished")

	return summary, nil
}

// publishItem runs the attempt loop for one item. Transient outcomes are
// retried with exponential backoff up to the bounded attempt count;
// permanent and auth outcomes stop immediately.
func (c *Coordinator) publishItem(ctx context.Context, ownerID, postID string, item post.ContentItem) models.ItemOutcome {
	outcome := models.ItemOutcome{
		ItemID:   item.ID,
		Language: item.Language,
		Channel:  item.Channel,
	}

	pub, ok := c.publishers.Lookup(item.Channel)
	if !ok {
		c.recordFailure(ctx, postID, &item, channel.Permanent(fmt.Errorf("%w: %s", ErrChannelUnknown, item.Channel)), &outcome)
		return outcome
	}

	for try := 1; try <= c.opts.MaxAttempts; try++ {
		seq := c.markPublishing(ctx, postID, &item, &outcome)
		if seq < 0 {
			return outcome
		}
		outcome.Attempts++

		if err := c.limiter.Wait(ctx, ownerID, item.Channel); err != nil {
			c.recordFailure(ctx, postID, &item, channel.Transient(err), &outcome)
			return outcome
		}

		cred, err := c.credentials.GetValid(ctx, ownerID, item.Channel)
		if err != nil {
			if errors.Is(err, vault.ErrNoValidCredential) {
				// Auth gaps are never auto-retried through the publish path;
				// the channel has to be reconnected first.
				c.recordFailure(ctx, postID, &item, channel.AuthRequired(err), &outcome)
				return outcome
			}
			// Anything else is a vault transport fault, and the credential
			// is still live. Retry it like any transient publish failure.
			c.recordFailure(ctx, postID, &item, channel.Transient(err), &outcome)
			if try == c.opts.MaxAttempts {
				return outcome
			}
			if err := c.sleep(ctx, c.backoff(try)); err != nil {
				return outcome
			}
			continue
		}

		idempotencyKey := fmt.Sprintf("%s:%s:%d", postID, item.ID, item.NextAttemptSequence())

		callCtx, cancel := context.WithTimeout(ctx, c.opts.PublishTimeout)
		externalRef, pubErr := pub.Publish(callCtx, item.Draft(), cred, idempotencyKey)
		cancel()

		// A cancelled call may still have succeeded platform-side. If an
		// external reference came back, count it as published rather than
		// double-posting on the next run.
		if externalRef != "" {
			c.recordSuccess(ctx, postID, &item, externalRef, &outcome)
			return outcome
		}
		if pubErr == nil {
			pubErr = channel.Permanent(errors.New("publisher returned no external reference"))
		}

		kind := channel.KindOf(pubErr)
		if kind != channel.ErrorKindTransient || try == c.opts.MaxAttempts {
			c.recordFailure(ctx, postID, &item, pubErr, &outcome)
			return outcome
		}

		c.recordFailure(ctx, postID, &item, pubErr, &outcome)
		if err := c.sleep(ctx, c.backoff(try)); err != nil {
			return outcome
		}
	}

	return outcome
}

func (c *Coordinator) backoff(try int) time.Duration {
	return c.opts.BackoffBase * time.Duration(1<<(try-1))
}

// markPublishing appends the publishing marker attempt and keeps the local
// item copy in step with the store. Returns the sequence used, or -1 when
// the transition was rejected.
func (c *Coordinator) markPublishing(ctx context.Context, postID string, item *post.ContentItem, outcome *models.ItemOutcome) int {
	seq := item.NextAttemptSequence()
	metrics.IncPublishAttempt()
	updated, err := c.posts.RecordAttempt(ctx, postID, item.ID, post.Attempt{
		Sequence:  seq,
		Timestamp: time.Now().UTC(),
		Outcome:   post.OutcomePublishing,
	})
	if err != nil {
		outcome.Status = "failed"
		outcome.Error = err.Error()
		outcome.ErrorKind = string(channel.ErrorKindPermanent)
		return -1
	}
	c.syncItem(updated, item)
	return seq
}

func (c *Coordinator) recordSuccess(ctx context.Context, postID string, item *post.ContentItem, externalRef string, outcome *models.ItemOutcome) {
	updated, err := c.posts.RecordAttempt(ctx, postID, item.ID, post.Attempt{
		Sequence:          item.NextAttemptSequence(),
		Timestamp:         time.Now().UTC(),
		Outcome:           post.OutcomePublished,
		ExternalReference: externalRef,
	})
	if err != nil {
		logger.Log.WithError(err).WithField("item_id", item.ID).Error("failed to record published attempt")
		outcome.Status = "failed"
		outcome.Error = err.Error()
		outcome.ErrorKind = string(channel.ErrorKindPermanent)
		return
	}
	c.syncItem(updated, item)

	metrics.IncPublishSucceeded()
	outcome.Status = "published"
	outcome.ExternalReference = externalRef
	c.emit(ctx, postID, item, "published", "")
}

func (c *Coordinator) recordFailure(ctx context.Context, postID string, item *post.ContentItem, cause error, outcome *models.ItemOutcome) {
	kind := channel.KindOf(cause)
	updated, err := c.posts.RecordAttempt(ctx, postID, item.ID, post.Attempt{
		Sequence:  item.NextAttemptSequence(),
		Timestamp: time.Now().UTC(),
		Outcome:   post.OutcomeFailed,
		ErrorKind: string(kind),
		Error:     cause.Error(),
	})
	if err != nil {
		logger.Log.WithError(err).WithField("item_id", item.ID).Error("failed to record failed attempt")
	} else {
		c.syncItem(updated, item)
	}

	metrics.IncPublishFailed()
	outcome.Status = "failed"
	outcome.Error = cause.Error()
	outcome.ErrorKind = string(kind)
	c.emit(ctx, postID, item, "failed", string(kind))
}

func (c *Coordinator) syncItem(updated *post.Post, item *post.ContentItem) {
	if updated == nil {
		return
	}
	if fresh := updated.ItemByID(item.ID); fresh != nil {
		*item = *fresh
	}
}

func (c *Coordinator) emit(ctx context.Context, postID string, item *post.ContentItem, outcome, errorKind string) {
	if c.analytics == nil {
		return
	}
	data := map[string]interface{}{
		"post_id":    postID,
		"item_id":    item.ID,
		"language":   item.Language,
		"channel":    item.Channel,
		"outcome":    outcome,
		"error_kind": errorKind,
	}
	if err := c.analytics.PublishEvent(ctx, "publish.attempt", "marketing-service", data); err != nil {
		logger.Log.WithError(err).Debug("analytics emission failed")
	}
}

// CancelScheduled clears a pending schedule. Once dispatch has begun for
// any item the call is a no-op and reports cancelled=false.
func (c *Coordinator) CancelScheduled(ctx context.Context, postID string) (bool, error) {
	active, err := c.inflight.Active(ctx, postID)
	if err != nil {
		return false, err
	}
	if active {
		return false, nil
	}

	p, err := c.posts.Get(ctx, postID)
	if err != nil {
		return false, err
	}
	if p.ScheduledAt == nil {
		return false, nil
	}

	if _, err := c.posts.ClearSchedule(ctx, postID); err != nil {
		return false, err
	}
	return true, nil
}
