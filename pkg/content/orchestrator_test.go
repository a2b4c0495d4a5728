package content

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"
	"testing"

	"github.com/brickfolio/platform/pkg/channel"
	"github.com/brickfolio/platform/pkg/common/logger"
	"github.com/brickfolio/platform/pkg/common/models"
	"github.com/brickfolio/platform/pkg/post"
)

func TestMain(m *testing.M) {
	logger.Init()
	os.Exit(m.Run())
}

type stubGenerator struct {
	responses map[models.Pair]Completion
	errs      map[models.Pair]error
	calls     int
}

func (g *stubGenerator) GenerateContent(ctx context.Context, prompt string, maxLength int, language models.Language) (Completion, error) {
	g.calls++
	for pair, err := range g.errs {
		if pair.Language == language {
			return Completion{}, err
		}
	}
	for pair, completion := range g.responses {
		if pair.Language == language {
			return completion, nil
		}
	}
	return Completion{}, errors.New("no stubbed response")
}

type memoryDraftStore struct {
	posts  map[string]*post.Post
	nextID int
}

func newMemoryDraftStore() *memoryDraftStore {
	return &memoryDraftStore{posts: map[string]*post.Post{}}
}

func (m *memoryDraftStore) newID() string {
	m.nextID++
	return fmt.Sprintf("item-%d", m.nextID)
}

func (m *memoryDraftStore) Create(ctx context.Context, req models.CreatePostRequest) (*post.Post, error) {
	p := &post.Post{ID: fmt.Sprintf("post-%d", len(m.posts)+1), PropertyID: req.PropertyID, OwnerID: req.OwnerID, Version: 1}
	m.posts[p.ID] = p
	return p, nil
}

func (m *memoryDraftStore) Get(ctx context.Context, id string) (*post.Post, error) {
	p, ok := m.posts[id]
	if !ok {
		return nil, post.ErrNotFound
	}
	return p, nil
}

func (m *memoryDraftStore) UpsertContentItem(ctx context.Context, postID string, expectedVersion int64, pair models.Pair, title, body string, hashtags []string, aiGenerated bool, aiPrompt string) (*post.Post, *post.ContentItem, error) {
	p, ok := m.posts[postID]
	if !ok {
		return nil, nil, post.ErrNotFound
	}
	item, err := p.UpsertItem(pair, title, body, hashtags, aiGenerated, aiPrompt, m.newID)
	if err != nil {
		return nil, nil, err
	}
	return p, item, nil
}

func draftJSON(title, body string, hashtags ...string) string {
	quoted := make([]string, 0, len(hashtags))
	for _, tag := range hashtags {
		quoted = append(quoted, fmt.Sprintf("%q", tag))
	}
	return fmt.Sprintf(`{"title": %q, "body": %q, "hashtags": [%s]}`, title, body, strings.Join(quoted, ", "))
}

func testProperty() models.PropertySummary {
	return models.PropertySummary{
		Title:    "3BHK Apartment",
		Location: "Koramangala, Bangalore",
		Price:    "1.2 Cr",
	}
}

func enFB() models.Pair {
	return models.Pair{Language: models.LanguageEnglish, Channel: models.ChannelFacebook}
}

func hiWeb() models.Pair {
	return models.Pair{Language: models.LanguageHindi, Channel: models.ChannelWebsite}
}

func TestStartGeneratesDraftPerPair(t *testing.T) {
	gen := &stubGenerator{responses: map[models.Pair]Completion{
		enFB():  {Text: draftJSON("", "Sunlit 3BHK in Koramangala.", "realestate"), Confidence: 1.0},
		hiWeb(): {Text: draftJSON("Naya ghar", "Koramangala mein shaandaar 3BHK."), Confidence: 1.0},
	}}
	store := newMemoryDraftStore()
	o := NewOrchestrator(gen, store, channel.NewValidator(channel.DefaultRules()), nil)

	p, results, err := o.Start(context.Background(), models.CreatePostRequest{
		PropertyID: "prop-1",
		OwnerID:    "agent-1",
		Property:   testProperty(),
		Pairs:      []models.Pair{enFB(), hiWeb()},
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(results) != 2 {
		t.Fatalf("expected 2 results, got %d", len(results))
	}
	for _, r := range results {
		if !r.Generated {
			t.Fatalf("expected pair (%s, %s) generated, got error %q", r.Pair.Language, r.Pair.Channel, r.Error)
		}
	}
	if len(p.Items) != 2 {
		t.Fatalf("expected 2 content items, got %d", len(p.Items))
	}
	for i := range p.Items {
		if p.Items[i].Status != post.StatusDraft {
			t.Fatalf("expected draft status, got %s", p.Items[i].Status)
		}
		if !p.Items[i].AIGenerated {
			t.Fatal("expected ai_generated flag set")
		}
	}
}

func TestGenerationFailureIsolatedPerPair(t *testing.T) {
	gen := &stubGenerator{
		responses: map[models.Pair]Completion{
			hiWeb(): {Text: draftJSON("Naya ghar", "Koramangala mein shaandaar 3BHK.")},
		},
		errs: map[models.Pair]error{
			enFB(): &GenerationError{Kind: ErrKindRateLimited, Err: errors.New("429 from provider")},
		},
	}
	store := newMemoryDraftStore()
	o := NewOrchestrator(gen, store, channel.NewValidator(channel.DefaultRules()), nil)

	p, results, err := o.Start(context.Background(), models.CreatePostRequest{
		PropertyID: "prop-1",
		OwnerID:    "agent-1",
		Property:   testProperty(),
		Pairs:      []models.Pair{enFB(), hiWeb()},
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	var failed, generated int
	for _, r := range results {
		if r.Generated {
			generated++
		} else {
			failed++
			if r.ErrorKind != ErrKindRateLimited {
				t.Fatalf("expected rate_limited kind, got %s", r.ErrorKind)
			}
		}
	}
	if generated != 1 || failed != 1 {
		t.Fatalf("expected one success and one failure, got %d/%d", generated, failed)
	}
	if len(p.Items) != 1 {
		t.Fatalf("expected only the successful pair persisted, got %d items", len(p.Items))
	}
}

func TestStartRejectsDuplicateAndUnsupportedPairs(t *testing.T) {
	gen := &stubGenerator{}
	store := newMemoryDraftStore()
	o := NewOrchestrator(gen, store, channel.NewValidator(channel.DefaultRules()), nil)

	_, _, err := o.Start(context.Background(), models.CreatePostRequest{
		PropertyID: "prop-1",
		Property:   testProperty(),
		Pairs:      []models.Pair{enFB(), enFB()},
	})
	if !errors.Is(err, ErrDuplicatePair) {
		t.Fatalf("expected duplicate pair error, got %v", err)
	}

	_, _, err = o.Start(context.Background(), models.CreatePostRequest{
		PropertyID: "prop-1",
		Property:   testProperty(),
		Pairs:      []models.Pair{{Language: models.LanguageEnglish, Channel: models.Channel("tiktok")}},
	})
	if !channel.IsValidationError(err) {
		t.Fatalf("expected validation error for unsupported channel, got %v", err)
	}
	if gen.calls != 0 {
		t.Fatalf("expected fail-fast before any generation call, got %d calls", gen.calls)
	}
	if len(store.posts) != 0 {
		t.Fatal("expected no post created on rejected batch")
	}
}

func TestViolatingCompletionIsGenerationFailure(t *testing.T) {
	// Hashtags on the website channel violate its rules; the draft must be
	// rejected, not truncated or silently fixed.
	gen := &stubGenerator{responses: map[models.Pair]Completion{
		hiWeb(): {Text: draftJSON("Naya ghar", "Shaandaar 3BHK.", "ghar")},
	}}
	store := newMemoryDraftStore()
	o := NewOrchestrator(gen, store, channel.NewValidator(channel.DefaultRules()), nil)

	p, results, err := o.Start(context.Background(), models.CreatePostRequest{
		PropertyID: "prop-1",
		Property:   testProperty(),
		Pairs:      []models.Pair{hiWeb()},
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if results[0].Generated {
		t.Fatal("expected validation failure")
	}
	if results[0].ErrorKind != ErrKindValidation {
		t.Fatalf("expected validation kind, got %s", results[0].ErrorKind)
	}
	if len(p.Items) != 0 {
		t.Fatal("expected no item persisted for violating draft")
	}
}

func TestMalformedCompletionReported(t *testing.T) {
	gen := &stubGenerator{responses: map[models.Pair]Completion{
		enFB(): {Text: "sorry, I cannot help with that"},
	}}
	store := newMemoryDraftStore()
	o := NewOrchestrator(gen, store, channel.NewValidator(channel.DefaultRules()), nil)

	_, results, err := o.Start(context.Background(), models.CreatePostRequest{
		PropertyID: "prop-1",
		Property:   testProperty(),
		Pairs:      []models.Pair{enFB()},
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if results[0].ErrorKind != ErrKindMalformed {
		t.Fatalf("expected malformed kind, got %s", results[0].ErrorKind)
	}
}

func TestRegenerationReplacesExistingDraft(t *testing.T) {
	gen := &stubGenerator{responses: map[models.Pair]Completion{
		enFB(): {Text: draftJSON("", "First rendering.")},
	}}
	store := newMemoryDraftStore()
	o := NewOrchestrator(gen, store, channel.NewValidator(channel.DefaultRules()), nil)

	p, _, err := o.Start(context.Background(), models.CreatePostRequest{
		PropertyID: "prop-1",
		Property:   testProperty(),
		Pairs:      []models.Pair{enFB()},
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	firstID := p.Items[0].ID

	gen.responses[enFB()] = Completion{Text: draftJSON("", "Second rendering.")}
	p, results, err := o.Generate(context.Background(), p.ID, []models.Pair{enFB()})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !results[0].Generated {
		t.Fatalf("expected regeneration success, got %q", results[0].Error)
	}
	if len(p.Items) != 1 {
		t.Fatalf("expected one item after regeneration, got %d", len(p.Items))
	}
	if p.Items[0].ID != firstID {
		t.Fatal("expected regeneration to keep the item identity")
	}
	if p.Items[0].Body != "Second rendering." {
		t.Fatalf("expected replaced body, got %q", p.Items[0].Body)
	}
}

func TestParseCompletionHandlesFencedOutput(t *testing.T) {
	text := "```json\n{\"title\": \"T\", \"body\": \"B\", \"hashtags\": [\"#home\", \" \"]}\n```"
	draft, err := parseCompletion(text, enFB())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if draft.Title != "T" || draft.Body != "B" {
		t.Fatalf("unexpected draft %+v", draft)
	}
	if len(draft.Hashtags) != 1 || draft.Hashtags[0] != "home" {
		t.Fatalf("expected '#' stripped and blanks dropped, got %v", draft.Hashtags)
	}
}
