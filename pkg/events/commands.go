package events

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/brickfolio/platform/pkg/common/kafka"
	"github.com/brickfolio/platform/pkg/common/logger"
	"github.com/brickfolio/platform/pkg/common/models"
	"github.com/brickfolio/platform/pkg/content"
	"github.com/brickfolio/platform/pkg/post"
	"github.com/brickfolio/platform/pkg/publish"
)

// Command event types accepted from the CRM layer.
const (
	TypeGenerate        = "content.generate"
	TypePublish         = "post.publish"
	TypeCancelScheduled = "post.cancel_scheduled"
)

// Dispatcher consumes marketing commands off kafka and drives the same
// service operations the HTTP surface exposes.
type Dispatcher struct {
	consumer     *kafka.Consumer
	orchestrator *content.Orchestrator
	coordinator  *publish.Coordinator
}

func NewDispatcher(consumer *kafka.Consumer, orchestrator *content.Orchestrator, coordinator *publish.Coordinator) *Dispatcher {
	return &Dispatcher{
		consumer:     consumer,
		orchestrator: orchestrator,
		coordinator:  coordinator,
	}
}

// Run blocks consuming commands until ctx is cancelled.
func (d *Dispatcher) Run(ctx context.Context) error {
	return d.consumer.Consume(ctx, d.Handle)
}

func (d *Dispatcher) Close() error {
	return d.consumer.Close()
}

// Handle processes one command event. Domain rejections are logged and
// committed; only infrastructure failures propagate so the message is
// redelivered.
func (d *Dispatcher) Handle(ctx context.Context, event models.Event) error {
	switch event.Type {
	case TypeGenerate:
		return d.handleGenerate(ctx, event)
	case TypePublish:
		return d.handlePublish(ctx, event)
	case TypeCancelScheduled:
		return d.handleCancel(ctx, event)
	default:
		logger.Log.WithField("event_type", event.Type).Debug("ignoring unknown command")
		return nil
	}
}

func (d *Dispatcher) handleGenerate(ctx context.Context, event models.Event) error {
	var req models.CreatePostRequest
	if err := decodeData(event.Data, &req); err != nil {
		logger.Log.WithError(err).Warn("malformed generate command")
		return nil
	}

	p, results, err := d.orchestrator.Start(ctx, req)
	if err != nil {
		logger.Log.WithError(err).WithField("property_id", req.PropertyID).Warn("generate command rejected")
		return nil
	}

	generated := 0
	for _, r := range results {
		if r.Generated {
			generated++
		}
	}
	logger.Log.WithFields(map[string]interface{}{
		"post_id":   p.ID,
		"generated": generated,
		"requested": len(results),
	}).Info("generate command processed")
	return nil
}

func (d *Dispatcher) handlePublish(ctx context.Context, event models.Event) error {
	postID, _ := event.Data["post_id"].(string)
	if postID == "" {
		logger.Log.Warn("publish command without post_id")
		return nil
	}

	summary, err := d.coordinator.Publish(ctx, postID)
	switch {
	case errors.Is(err, publish.ErrPublishInFlight), errors.Is(err, post.ErrNotFound), errors.Is(err, post.ErrArchived):
		logger.Log.WithError(err).WithField("post_id", postID).Warn("publish command rejected")
		return nil
	case err != nil:
		return fmt.Errorf("publish command for %s: %w", postID, err)
	}

	logger.Log.WithFields(map[string]interface{}{
		"post_id":        postID,
		"overall_status": summary.OverallStatus,
	}).Info("publish command processed")
	return nil
}

func (d *Dispatcher) handleCancel(ctx context.Context, event models.Event) error {
	postID, _ := event.Data["post_id"].(string)
	if postID == "" {
		logger.Log.Warn("cancel command without post_id")
		return nil
	}

	cancelled, err := d.coordinator.CancelScheduled(ctx, postID)
	if err != nil {
		if errors.Is(err, post.ErrNotFound) {
			logger.Log.WithField("post_id", postID).Warn("cancel command for unknown post")
			return nil
		}
		return fmt.Errorf("cancel command for %s: %w", postID, err)
	}

	logger.Log.WithFields(map[string]interface{}{
		"post_id":   postID,
		"cancelled": cancelled,
	}).Info("cancel command processed")
	return nil
}

func decodeData(data map[string]interface{}, out interface{}) error {
	raw, err := json.Marshal(data)
	if err != nil {
		return err
	}
	return json.Unmarshal(raw, out)
}
