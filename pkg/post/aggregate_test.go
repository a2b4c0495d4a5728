package post

import (
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/brickfolio/platform/pkg/common/models"
)

func newIDSeq() func() string {
	n := 0
	return func() string {
		n++
		return fmt.Sprintf("item-%d", n)
	}
}

func testPost() *Post {
	return &Post{ID: "post-1", PropertyID: "prop-1", OwnerID: "agent-1", Version: 1}
}

func enFacebook() models.Pair {
	return models.Pair{Language: models.LanguageEnglish, Channel: models.ChannelFacebook}
}

func TestUpsertItemReplacesContentKeepingIdentity(t *testing.T) {
	p := testPost()
	newID := newIDSeq()

	item, err := p.UpsertItem(enFacebook(), "t1", "first body", nil, true, "prompt", newID)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	item.ExternalReference = "fb-123"

	replaced, err := p.UpsertItem(enFacebook(), "t2", "second body", []string{"deal"}, true, "prompt2", newID)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if replaced.ID != item.ID {
		t.Fatalf("expected replacement to keep item id %s, got %s", item.ID, replaced.ID)
	}
	if replaced.Body != "second body" {
		t.Fatalf("expected replaced body, got %q", replaced.Body)
	}
	if replaced.ExternalReference != "" {
		t.Fatal("expected replacement to clear external reference")
	}
	if replaced.Status != StatusDraft {
		t.Fatalf("expected draft after replacement, got %s", replaced.Status)
	}
	if len(p.Items) != 1 {
		t.Fatalf("expected one item, got %d", len(p.Items))
	}
}

func TestUpsertItemRejectsPublishedItem(t *testing.T) {
	p := testPost()
	item, _ := p.UpsertItem(enFacebook(), "", "body", nil, false, "", newIDSeq())
	item.Status = StatusPublished

	if _, err := p.UpsertItem(enFacebook(), "", "new body", nil, false, "", newIDSeq()); !errors.Is(err, ErrInvalidTransition) {
		t.Fatalf("expected invalid transition, got %v", err)
	}
}

func TestEditReadyItemDropsBackToDraft(t *testing.T) {
	p := testPost()
	item, _ := p.UpsertItem(enFacebook(), "", "body", nil, true, "prompt", newIDSeq())
	item.Status = StatusReady

	body := "edited body"
	edited, err := p.EditItem(item.ID, nil, &body, nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if edited.Status != StatusDraft {
		t.Fatalf("expected draft after edit, got %s", edited.Status)
	}
	if edited.AIGenerated {
		t.Fatal("expected edit to clear ai_generated")
	}
}

func TestMarkItemReadyTransitions(t *testing.T) {
	p := testPost()
	item, _ := p.UpsertItem(enFacebook(), "", "body", nil, false, "", newIDSeq())

	if _, err := p.MarkItemReady(item.ID); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if item.Status != StatusReady {
		t.Fatalf("expected ready, got %s", item.Status)
	}

	item.Status = StatusPublishing
	if _, err := p.MarkItemReady(item.ID); !errors.Is(err, ErrInvalidTransition) {
		t.Fatalf("expected invalid transition from publishing, got %v", err)
	}

	item.Status = StatusFailed
	if _, err := p.MarkItemReady(item.ID); err != nil {
		t.Fatalf("expected failed item to be markable ready, got %v", err)
	}
}

func TestApplyAttemptReplayIsNoOp(t *testing.T) {
	p := testPost()
	item, _ := p.UpsertItem(enFacebook(), "", "body", nil, false, "", newIDSeq())
	item.Status = StatusReady

	attempt := Attempt{Sequence: 1, Timestamp: time.Now().UTC(), Outcome: OutcomePublishing}
	if _, applied, err := p.ApplyAttempt(item.ID, attempt); err != nil || !applied {
		t.Fatalf("expected first apply to succeed, applied=%v err=%v", applied, err)
	}
	if item.Status != StatusPublishing {
		t.Fatalf("expected publishing, got %s", item.Status)
	}

	// Same sequence again with a different outcome must change nothing.
	replay := Attempt{Sequence: 1, Outcome: OutcomeFailed, Error: "boom"}
	if _, applied, err := p.ApplyAttempt(item.ID, replay); err != nil || applied {
		t.Fatalf("expected replay no-op, applied=%v err=%v", applied, err)
	}
	if item.Status != StatusPublishing {
		t.Fatalf("expected status unchanged after replay, got %s", item.Status)
	}
	if len(item.Attempts) != 1 {
		t.Fatalf("expected one attempt record, got %d", len(item.Attempts))
	}
}

func TestApplyAttemptRecordsExternalReference(t *testing.T) {
	p := testPost()
	item, _ := p.UpsertItem(enFacebook(), "", "body", nil, false, "", newIDSeq())
	item.Status = StatusReady

	p.ApplyAttempt(item.ID, Attempt{Sequence: 1, Outcome: OutcomePublishing})
	if _, _, err := p.ApplyAttempt(item.ID, Attempt{Sequence: 2, Outcome: OutcomePublished, ExternalReference: "fb-42"}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if item.Status != StatusPublished {
		t.Fatalf("expected published, got %s", item.Status)
	}
	if item.ExternalReference != "fb-42" {
		t.Fatalf("expected external reference recorded, got %q", item.ExternalReference)
	}
}

func TestApplyAttemptRejectsPublishingFromDraft(t *testing.T) {
	p := testPost()
	item, _ := p.UpsertItem(enFacebook(), "", "body", nil, false, "", newIDSeq())

	if _, _, err := p.ApplyAttempt(item.ID, Attempt{Sequence: 1, Outcome: OutcomePublishing}); !errors.Is(err, ErrInvalidTransition) {
		t.Fatalf("expected invalid transition from draft, got %v", err)
	}
}

func TestOverallStatusDerivation(t *testing.T) {
	p := testPost()
	if got := p.OverallStatus(); got != OverallDraft {
		t.Fatalf("empty post: expected draft, got %s", got)
	}

	newID := newIDSeq()
	p.UpsertItem(enFacebook(), "", "body", nil, false, "", newID)
	p.UpsertItem(models.Pair{Language: models.LanguageHindi, Channel: models.ChannelWebsite}, "title", "body", nil, false, "", newID)
	// Appending the second item reallocates p.Items, so look the items up
	// through the aggregate instead of holding the upsert return values.
	fb := p.ItemByID("item-1")
	web := p.ItemByID("item-2")

	if got := p.OverallStatus(); got != OverallDraft {
		t.Fatalf("all draft: expected draft, got %s", got)
	}

	fb.Status = StatusReady
	web.Status = StatusReady
	if got := p.OverallStatus(); got != OverallReady {
		t.Fatalf("all ready: expected ready, got %s", got)
	}

	fb.Status = StatusPublishing
	if got := p.OverallStatus(); got != OverallPublishing {
		t.Fatalf("one publishing: expected publishing, got %s", got)
	}

	fb.Status = StatusPublished
	web.Status = StatusPublished
	if got := p.OverallStatus(); got != OverallPublished {
		t.Fatalf("all published: expected published, got %s", got)
	}

	web.Status = StatusFailed
	if got := p.OverallStatus(); got != OverallPartiallyPublished {
		t.Fatalf("mixed terminal: expected partially_published, got %s", got)
	}

	fb.Status = StatusFailed
	if got := p.OverallStatus(); got != OverallFailed {
		t.Fatalf("all failed: expected failed, got %s", got)
	}

	p.Archived = true
	if got := p.OverallStatus(); got != OverallArchived {
		t.Fatalf("archived: expected archived, got %s", got)
	}
}

func TestTerminalRequiresAllItemsTerminal(t *testing.T) {
	p := testPost()
	newID := newIDSeq()
	p.UpsertItem(enFacebook(), "", "body", nil, false, "", newID)
	p.UpsertItem(models.Pair{Language: models.LanguageEnglish, Channel: models.ChannelWebsite}, "t", "body", nil, false, "", newID)
	fb := p.ItemByID("item-1")
	web := p.ItemByID("item-2")

	fb.Status = StatusPublished
	web.Status = StatusReady
	if p.Terminal() {
		t.Fatal("expected non-terminal while an item is ready")
	}

	web.Status = StatusFailed
	if !p.Terminal() {
		t.Fatal("expected terminal once every item is published or failed")
	}
}

func TestNextAttemptSequenceIsMonotonic(t *testing.T) {
	item := &ContentItem{}
	if got := item.NextAttemptSequence(); got != 1 {
		t.Fatalf("expected first sequence 1, got %d", got)
	}
	item.Attempts = append(item.Attempts, Attempt{Sequence: 3})
	if got := item.NextAttemptSequence(); got != 4 {
		t.Fatalf("expected sequence 4, got %d", got)
	}
}
