package channel

import (
	"errors"
	"os"
	"path/filepath"

	"github.com/brickfolio/platform/pkg/common/models"
	"gopkg.in/yaml.v3"
)

// Rule captures one channel's content constraints. Adapters own the wire
// format; the rules exist so drafts can be checked before any external call.
type Rule struct {
	Channel        string `yaml:"channel" json:"channel"`
	MaxTitleLength int    `yaml:"max_title_length" json:"max_title_length"`
	MaxBodyLength  int    `yaml:"max_body_length" json:"max_body_length"`
	MaxHashtags    int    `yaml:"max_hashtags" json:"max_hashtags"`
	AllowHashtags  bool   `yaml:"allow_hashtags" json:"allow_hashtags"`
	RequireTitle   bool   `yaml:"require_title" json:"require_title"`
	PlainTextOnly  bool   `yaml:"plain_text_only" json:"plain_text_only"`
}

type RulesConfig struct {
	Rules     []Rule   `yaml:"rules" json:"rules"`
	Languages []string `yaml:"languages" json:"languages"`
}

func LoadRules(path string) (RulesConfig, error) {
	if path == "" {
		return DefaultRules(), nil
	}
	content, err := os.ReadFile(filepath.Clean(path))
	if err != nil {
		return DefaultRules(), err
	}

	var cfg RulesConfig
	if err := yaml.Unmarshal(content, &cfg); err != nil {
		return RulesConfig{}, err
	}

	if len(cfg.Rules) == 0 {
		return RulesConfig{}, errors.New("no channel rules configured")
	}
	if len(cfg.Languages) == 0 {
		cfg.Languages = DefaultRules().Languages
	}

	return cfg, nil
}

func DefaultRules() RulesConfig {
	return RulesConfig{
		Rules: []Rule{
			{Channel: string(models.ChannelFacebook), MaxTitleLength: 100, MaxBodyLength: 63206, MaxHashtags: 10, AllowHashtags: true, RequireTitle: false, PlainTextOnly: true},
			{Channel: string(models.ChannelWebsite), MaxTitleLength: 120, MaxBodyLength: 20000, MaxHashtags: 0, AllowHashtags: false, RequireTitle: true, PlainTextOnly: false},
			{Channel: string(models.ChannelMailer), MaxTitleLength: 78, MaxBodyLength: 100000, MaxHashtags: 0, AllowHashtags: false, RequireTitle: true, PlainTextOnly: false},
		},
		Languages: []string{
			string(models.LanguageEnglish),
			string(models.LanguageHindi),
			string(models.LanguageSpanish),
		},
	}
}
