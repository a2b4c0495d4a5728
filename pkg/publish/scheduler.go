package publish

import (
	"context"
	"errors"
	"time"

	"github.com/brickfolio/platform/pkg/common/logger"
	"github.com/robfig/cron/v3"
)

const scanBatchSize = 50

// Scheduler periodically scans for posts whose scheduled_at has passed and
// runs the same publish operation a direct command would.
type Scheduler struct {
	coordinator *Coordinator
	posts       PostStore
	cron        *cron.Cron
	spec        string
	timeout     time.Duration
}

func NewScheduler(coordinator *Coordinator, posts PostStore, spec string, timeout time.Duration) *Scheduler {
	if spec == "" {
		spec = "@every 1m"
	}
	if timeout <= 0 {
		timeout = 5 * time.Minute
	}
	return &Scheduler{
		coordinator: coordinator,
		posts:       posts,
		cron:        cron.New(),
		spec:        spec,
		timeout:     timeout,
	}
}

func (s *Scheduler) Start() error {
	if _, err := s.cron.AddFunc(s.spec, s.scan); err != nil {
		return err
	}
	s.cron.Start()
	logger.Log.WithField("spec", s.spec).Info("publish scheduler started")
	return nil
}

func (s *Scheduler) Stop() {
	ctx := s.cron.Stop()
	<-ctx.Done()
	logger.Log.Info("publish scheduler stopped")
}

func (s *Scheduler) scan() {
	ctx, cancel := context.WithTimeout(context.Background(), s.timeout)
	defer cancel()

	due, err := s.posts.ListDueScheduled(ctx, time.Now().UTC(), scanBatchSize)
	if err != nil {
		logger.Log.WithError(err).Error("scheduled publish scan failed")
		return
	}

	for i := range due {
		postID := due[i].ID
		summary, err := s.coordinator.Publish(ctx, postID)
		if err != nil {
			// Another invocation already holds the marker; it owns this
			// post's run.
			if errors.Is(err, ErrPublishInFlight) {
				continue
			}
			logger.Log.WithError(err).WithField("post_id", postID).Error("scheduled publish failed")
			continue
		}
		logger.Log.WithFields(map[string]interface{}{
			"post_id":        postID,
			"overall_status": summary.OverallStatus,
		}).Info("scheduled publish finished")
	}
}
