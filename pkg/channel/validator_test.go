package channel

import (
	"strings"
	"testing"

	"github.com/brickfolio/platform/pkg/common/models"
)

func TestValidatorAcceptsDraftWithinRules(t *testing.T) {
	v := NewValidator(DefaultRules())

	draft := models.ContentDraft{
		Language: models.LanguageEnglish,
		Channel:  models.ChannelFacebook,
		Body:     "Sunlit 3BHK in Koramangala with a private terrace.",
		Hashtags: []string{"realestate", "bangalore"},
	}
	if err := v.Validate(draft); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestValidatorRejectsOversizedBody(t *testing.T) {
	v := NewValidator(DefaultRules())

	draft := models.ContentDraft{
		Language: models.LanguageEnglish,
		Channel:  models.ChannelFacebook,
		Body:     strings.Repeat("a", 63207),
	}
	err := v.Validate(draft)
	if err == nil {
		t.Fatal("expected error for oversized body")
	}
	if !IsValidationError(err) {
		t.Fatalf("expected validation error, got %v", err)
	}
}

func TestValidatorCountsHashtagSuffixAgainstBodyBudget(t *testing.T) {
	v := NewValidator(DefaultRules())

	draft := models.ContentDraft{
		Language: models.LanguageEnglish,
		Channel:  models.ChannelFacebook,
		Body:     strings.Repeat("a", 63200),
		Hashtags: []string{"newlisting", "mumbai"},
	}
	if err := v.Validate(draft); !IsValidationError(err) {
		t.Fatalf("expected validation error for rendered message over budget, got %v", err)
	}

	// The bare body fits; only the hashtag suffix pushed it over.
	draft.Hashtags = nil
	if err := v.Validate(draft); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestRenderBodyWithHashtags(t *testing.T) {
	got := RenderBodyWithHashtags("Open house", []string{"#mumbai", "realestate"})
	if got != "Open house\n\n#mumbai #realestate" {
		t.Fatalf("unexpected rendering %q", got)
	}
	if got := RenderBodyWithHashtags("Open house", nil); got != "Open house" {
		t.Fatalf("expected bare body, got %q", got)
	}
}

func TestValidatorRejectsHashtagsWhereDisallowed(t *testing.T) {
	v := NewValidator(DefaultRules())

	draft := models.ContentDraft{
		Language: models.LanguageHindi,
		Channel:  models.ChannelWebsite,
		Title:    "New listing",
		Body:     "Spacious villa near the lake.",
		Hashtags: []string{"villa"},
	}
	if err := v.Validate(draft); err == nil {
		t.Fatal("expected error for hashtags on website channel")
	}
}

func TestValidatorRequiresTitleForMailer(t *testing.T) {
	v := NewValidator(DefaultRules())

	draft := models.ContentDraft{
		Language: models.LanguageEnglish,
		Channel:  models.ChannelMailer,
		Body:     "Open house this Saturday.",
	}
	if err := v.Validate(draft); err == nil {
		t.Fatal("expected error for missing mailer title")
	}
}

func TestValidatorRejectsMarkupOnPlainTextChannel(t *testing.T) {
	v := NewValidator(DefaultRules())

	draft := models.ContentDraft{
		Language: models.LanguageEnglish,
		Channel:  models.ChannelFacebook,
		Body:     "<b>Hot deal</b> in Whitefield",
	}
	if err := v.Validate(draft); err == nil {
		t.Fatal("expected error for markup on plain-text channel")
	}
}

func TestSupportsPairFailsFastOnUnknownChannel(t *testing.T) {
	v := NewValidator(DefaultRules())

	if err := v.SupportsPair(models.Pair{Language: models.LanguageEnglish, Channel: models.Channel("tiktok")}); err == nil {
		t.Fatal("expected error for unknown channel")
	}
	if err := v.SupportsPair(models.Pair{Language: models.Language("fr"), Channel: models.ChannelFacebook}); err == nil {
		t.Fatal("expected error for unknown language")
	}
	if err := v.SupportsPair(models.Pair{Language: models.LanguageSpanish, Channel: models.ChannelMailer}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestValidatorRejectsOversizedTitle(t *testing.T) {
	cfg := RulesConfig{
		Rules:     []Rule{{Channel: "website", MaxTitleLength: 10, MaxBodyLength: 100, RequireTitle: true}},
		Languages: []string{"en"},
	}
	v := NewValidator(cfg)

	draft := models.ContentDraft{
		Language: models.LanguageEnglish,
		Channel:  models.ChannelWebsite,
		Title:    "a title well past ten characters",
		Body:     "body",
	}
	if err := v.Validate(draft); err == nil {
		t.Fatal("expected error for oversized title")
	}
}
