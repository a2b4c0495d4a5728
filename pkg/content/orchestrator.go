package content

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/brickfolio/platform/pkg/channel"
	"github.com/brickfolio/platform/pkg/common/logger"
	"github.com/brickfolio/platform/pkg/common/models"
	"github.com/brickfolio/platform/pkg/observability/metrics"
	"github.com/brickfolio/platform/pkg/post"
)

var (
	ErrNoPairs       = errors.New("at least one (language, channel) pair is required")
	ErrDuplicatePair = errors.New("duplicate (language, channel) pair")
)

// DraftStore is the slice of the post service generation writes through.
type DraftStore interface {
	Create(ctx context.Context, req models.CreatePostRequest) (*post.Post, error)
	Get(ctx context.Context, id string) (*post.Post, error)
	UpsertContentItem(ctx context.Context, postID string, expectedVersion int64, pair models.Pair, title, body string, hashtags []string, aiGenerated bool, aiPrompt string) (*post.Post, *post.ContentItem, error)
}

// AnalyticsSink receives per-pair generation outcome events. Emission is
// best-effort; the persisted item is the authoritative record.
type AnalyticsSink interface {
	PublishEvent(ctx context.Context, eventType string, source string, data map[string]interface{}) error
}

// Orchestrator drives per-pair content generation for a post. Each pair
// succeeds or fails on its own; one AI failure never aborts the batch.
type Orchestrator struct {
	generator TextGenerator
	posts     DraftStore
	validator *channel.Validator
	analytics AnalyticsSink
}

func NewOrchestrator(generator TextGenerator, posts DraftStore, validator *channel.Validator, analytics AnalyticsSink) *Orchestrator {
	return &Orchestrator{generator: generator, posts: posts, validator: validator, analytics: analytics}
}

// Start creates a post for a property and generates drafts for the
// requested pairs.
func (o *Orchestrator) Start(ctx context.Context, req models.CreatePostRequest) (*post.Post, []models.GenerationResult, error) {
	if err := o.checkPairs(req.Pairs); err != nil {
		return nil, nil, err
	}

	p, err := o.posts.Create(ctx, req)
	if err != nil {
		return nil, nil, err
	}

	results := o.generate(ctx, p.ID, req.Property, req.Pairs)

	refreshed, err := o.posts.Get(ctx, p.ID)
	if err != nil {
		return nil, results, err
	}
	return refreshed, results, nil
}

// Generate produces drafts for the given pairs on an existing post.
// Regeneration of an existing pair goes through the same path: the item
// keeps its identity, content is replaced and the external reference
// cleared.
func (o *Orchestrator) Generate(ctx context.Context, postID string, pairs []models.Pair) (*post.Post, []models.GenerationResult, error) {
	if err := o.checkPairs(pairs); err != nil {
		return nil, nil, err
	}

	p, err := o.posts.Get(ctx, postID)
	if err != nil {
		return nil, nil, err
	}

	results := o.generate(ctx, p.ID, p.Property.Data(), pairs)

	refreshed, err := o.posts.Get(ctx, postID)
	if err != nil {
		return nil, results, err
	}
	return refreshed, results, nil
}

// checkPairs rejects the whole batch up front: empty input, duplicates and
// unsupported pairs must fail before any external call is paid for.
func (o *Orchestrator) checkPairs(pairs []models.Pair) error {
	if len(pairs) == 0 {
		return ErrNoPairs
	}
	seen := make(map[models.Pair]struct{}, len(pairs))
	for _, pair := range pairs {
		if _, dup := seen[pair]; dup {
			return fmt.Errorf("%w: (%s, %s)", ErrDuplicatePair, pair.Language, pair.Channel)
		}
		seen[pair] = struct{}{}
		if err := o.validator.SupportsPair(pair); err != nil {
			return err
		}
	}
	return nil
}

func (o *Orchestrator) generate(ctx context.Context, postID string, property models.PropertySummary, pairs []models.Pair) []models.GenerationResult {
	results := make([]models.GenerationResult, 0, len(pairs))
	for _, pair := range pairs {
		result := o.generatePair(ctx, postID, property, pair)
		o.emit(ctx, postID, result)
		results = append(results, result)
	}
	return results
}

func (o *Orchestrator) emit(ctx context.Context, postID string, result models.GenerationResult) {
	if o.analytics == nil {
		return
	}
	data := map[string]interface{}{
		"post_id":    postID,
		"item_id":    result.ItemID,
		"language":   result.Pair.Language,
		"channel":    result.Pair.Channel,
		"generated":  result.Generated,
		"error_kind": result.ErrorKind,
	}
	if err := o.analytics.PublishEvent(ctx, "content.generation", "marketing-service", data); err != nil {
		logger.Log.WithError(err).Debug("analytics emission failed")
	}
}

func (o *Orchestrator) generatePair(ctx context.Context, postID string, property models.PropertySummary, pair models.Pair) models.GenerationResult {
	result := models.GenerationResult{Pair: pair}
	metrics.IncGenerationRequested()

	rule, _ := o.validator.Rule(pair.Channel)
	prompt := BuildPrompt(property, pair, rule)

	completion, err := o.generator.GenerateContent(ctx, prompt, rule.MaxBodyLength, pair.Language)
	if err != nil {
		logger.Log.WithError(err).WithFields(map[string]interface{}{
			"post_id":  postID,
			"language": pair.Language,
			"channel":  pair.Channel,
		}).Warn("content generation failed")
		result.Error = err.Error()
		result.ErrorKind = GenerationKindOf(err)
		metrics.IncGenerationFailed()
		return result
	}

	draft, err := parseCompletion(completion.Text, pair)
	if err != nil {
		result.Error = err.Error()
		result.ErrorKind = ErrKindMalformed
		metrics.IncGenerationFailed()
		return result
	}

	// A response that violates channel constraints is a generation
	// failure, never a silent truncation.
	if err := o.validator.Validate(draft); err != nil {
		result.Error = err.Error()
		result.ErrorKind = ErrKindValidation
		metrics.IncGenerationFailed()
		return result
	}

	_, item, err := o.posts.UpsertContentItem(ctx, postID, 0, pair, draft.Title, draft.Body, draft.Hashtags, true, prompt)
	if err != nil {
		result.Error = err.Error()
		result.ErrorKind = ErrKindUnavailable
		metrics.IncGenerationFailed()
		return result
	}

	logger.Log.WithFields(map[string]interface{}{
		"post_id":    postID,
		"item_id":    item.ID,
		"language":   pair.Language,
		"channel":    pair.Channel,
		"confidence": completion.Confidence,
	}).Info("content draft generated")

	metrics.IncGenerationSucceeded()
	result.ItemID = item.ID
	result.Generated = true
	return result
}

// parseCompletion extracts the structured draft from the model output. The
// model is asked for bare JSON but fenced or prefixed output still occurs.
func parseCompletion(text string, pair models.Pair) (models.ContentDraft, error) {
	payload := struct {
		Title    string   `json:"title"`
		Body     string   `json:"body"`
		Hashtags []string `json:"hashtags"`
	}{}

	cleaned := strings.TrimSpace(text)
	if start := strings.Index(cleaned, "{"); start >= 0 {
		if end := strings.LastIndex(cleaned, "}"); end > start {
			cleaned = cleaned[start : end+1]
		}
	}

	if err := json.Unmarshal([]byte(cleaned), &payload); err != nil {
		return models.ContentDraft{}, &GenerationError{Kind: ErrKindMalformed, Err: fmt.Errorf("unparseable model output: %w", err)}
	}
	if strings.TrimSpace(payload.Body) == "" {
		return models.ContentDraft{}, &GenerationError{Kind: ErrKindMalformed, Err: errors.New("model output has no body")}
	}

	hashtags := make([]string, 0, len(payload.Hashtags))
	for _, tag := range payload.Hashtags {
		if trimmed := strings.TrimSpace(strings.TrimPrefix(tag, "#")); trimmed != "" {
			hashtags = append(hashtags, trimmed)
		}
	}

	return models.ContentDraft{
		Language: pair.Language,
		Channel:  pair.Channel,
		Title:    strings.TrimSpace(payload.Title),
		Body:     strings.TrimSpace(payload.Body),
		Hashtags: hashtags,
	}, nil
}
