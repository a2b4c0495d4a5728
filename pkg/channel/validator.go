package channel

import (
	"errors"
	"fmt"
	"strings"

	"github.com/brickfolio/platform/pkg/common/models"
)

var (
	errUnsupportedChannel  = errors.New("unsupported channel")
	errUnsupportedLanguage = errors.New("unsupported language")
	errEmptyBody           = errors.New("body must not be empty")
)

// Validator checks drafts against the configured channel rules. It is the
// single gate used both after AI generation and at markReady time.
type Validator struct {
	rules     map[models.Channel]Rule
	languages map[models.Language]struct{}
}

func NewValidator(cfg RulesConfig) *Validator {
	rules := make(map[models.Channel]Rule, len(cfg.Rules))
	for _, rule := range cfg.Rules {
		name := models.Channel(strings.TrimSpace(strings.ToLower(rule.Channel)))
		if name != "" {
			rules[name] = rule
		}
	}

	languages := make(map[models.Language]struct{}, len(cfg.Languages))
	for _, lang := range cfg.Languages {
		code := models.Language(strings.TrimSpace(strings.ToLower(lang)))
		if code != "" {
			languages[code] = struct{}{}
		}
	}

	return &Validator{rules: rules, languages: languages}
}

func (v *Validator) SupportsChannel(ch models.Channel) bool {
	_, ok := v.rules[ch]
	return ok
}

func (v *Validator) SupportsLanguage(lang models.Language) bool {
	_, ok := v.languages[lang]
	return ok
}

// SupportsPair reports whether a (language, channel) pair can be generated
// and published at all. Used to fail fast before any external call.
func (v *Validator) SupportsPair(pair models.Pair) error {
	if !v.SupportsChannel(pair.Channel) {
		return ValidationError{reason: fmt.Errorf("channel '%s': %w", pair.Channel, errUnsupportedChannel)}
	}
	if !v.SupportsLanguage(pair.Language) {
		return ValidationError{reason: fmt.Errorf("language '%s': %w", pair.Language, errUnsupportedLanguage)}
	}
	return nil
}

func (v *Validator) Rule(ch models.Channel) (Rule, bool) {
	rule, ok := v.rules[ch]
	return rule, ok
}

// Validate checks a draft against its channel's rules. A violating draft is
// rejected, never truncated.
func (v *Validator) Validate(draft models.ContentDraft) error {
	rule, ok := v.rules[draft.Channel]
	if !ok {
		return ValidationError{reason: fmt.Errorf("channel '%s': %w", draft.Channel, errUnsupportedChannel)}
	}
	if _, ok := v.languages[draft.Language]; !ok {
		return ValidationError{reason: fmt.Errorf("language '%s': %w", draft.Language, errUnsupportedLanguage)}
	}

	if strings.TrimSpace(draft.Body) == "" {
		return ValidationError{reason: errEmptyBody}
	}
	if rule.RequireTitle && strings.TrimSpace(draft.Title) == "" {
		return ValidationError{reason: fmt.Errorf("channel '%s' requires a title", draft.Channel)}
	}
	if rule.MaxTitleLength > 0 && len([]rune(draft.Title)) > rule.MaxTitleLength {
		return ValidationError{reason: fmt.Errorf("title exceeds %d characters", rule.MaxTitleLength)}
	}
	// Channels that take hashtags fold them into the message body, so the
	// budget applies to the rendered message, not the body alone.
	if rule.MaxBodyLength > 0 {
		body := draft.Body
		if rule.AllowHashtags {
			body = RenderBodyWithHashtags(draft.Body, draft.Hashtags)
		}
		if len([]rune(body)) > rule.MaxBodyLength {
			return ValidationError{reason: fmt.Errorf("body exceeds %d characters", rule.MaxBodyLength)}
		}
	}

	if !rule.AllowHashtags && len(draft.Hashtags) > 0 {
		return ValidationError{reason: fmt.Errorf("channel '%s' does not accept hashtags", draft.Channel)}
	}
	if rule.AllowHashtags && rule.MaxHashtags > 0 && len(draft.Hashtags) > rule.MaxHashtags {
		return ValidationError{reason: fmt.Errorf("hashtag count exceeds %d", rule.MaxHashtags)}
	}
	for _, tag := range draft.Hashtags {
		trimmed := strings.TrimSpace(tag)
		if trimmed == "" || strings.ContainsAny(trimmed, " \t\n") {
			return ValidationError{reason: fmt.Errorf("invalid hashtag %q", tag)}
		}
	}

	if rule.PlainTextOnly && strings.Contains(draft.Body, "</") {
		return ValidationError{reason: fmt.Errorf("channel '%s' accepts plain text only", draft.Channel)}
	}

	return nil
}
