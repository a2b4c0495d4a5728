package content

import (
	"fmt"
	"strings"

	"github.com/brickfolio/platform/pkg/channel"
	"github.com/brickfolio/platform/pkg/common/models"
)

var languageNames = map[models.Language]string{
	models.LanguageEnglish: "English",
	models.LanguageHindi:   "Hindi",
	models.LanguageSpanish: "Spanish",
}

var channelTone = map[models.Channel]string{
	models.ChannelFacebook: "an engaging social media post for a real-estate page, friendly and inviting",
	models.ChannelWebsite:  "a polished listing description for the agency's public website",
	models.ChannelMailer:   "an email campaign announcing the listing to subscribed buyers",
}

// BuildPrompt turns a property summary and a (language, channel) pair into
// a channel-aware prompt. The channel constraints are baked into the prompt
// and re-validated on the response, since the model output is untrusted.
func BuildPrompt(property models.PropertySummary, pair models.Pair, rule channel.Rule) string {
	var sb strings.Builder

	langName := languageNames[pair.Language]
	if langName == "" {
		langName = string(pair.Language)
	}
	tone := channelTone[pair.Channel]
	if tone == "" {
		tone = "marketing copy for a property listing"
	}

	fmt.Fprintf(&sb, "Write %s, in %s, for the property below.\n\n", tone, langName)

	fmt.Fprintf(&sb, "Property: %s\n", property.Title)
	fmt.Fprintf(&sb, "Location: %s\n", property.Location)
	fmt.Fprintf(&sb, "Price: %s\n", property.Price)
	if property.Bedrooms > 0 {
		fmt.Fprintf(&sb, "Bedrooms: %d\n", property.Bedrooms)
	}
	if property.Bathrooms > 0 {
		fmt.Fprintf(&sb, "Bathrooms: %d\n", property.Bathrooms)
	}
	if property.AreaSqft > 0 {
		fmt.Fprintf(&sb, "Area: %d sqft\n", property.AreaSqft)
	}
	if len(property.Features) > 0 {
		fmt.Fprintf(&sb, "Features: %s\n", strings.Join(property.Features, ", "))
	}
	if property.Description != "" {
		fmt.Fprintf(&sb, "Details: %s\n", property.Description)
	}
	if property.AgentName != "" {
		fmt.Fprintf(&sb, "Contact: %s %s\n", property.AgentName, property.AgentPhone)
	}
	if property.ListingURL != "" {
		fmt.Fprintf(&sb, "Listing URL: %s\n", property.ListingURL)
	}

	sb.WriteString("\nConstraints:\n")
	if rule.RequireTitle {
		fmt.Fprintf(&sb, "- A title is required, at most %d characters.\n", rule.MaxTitleLength)
	} else if rule.MaxTitleLength > 0 {
		fmt.Fprintf(&sb, "- The title may be empty but must not exceed %d characters.\n", rule.MaxTitleLength)
	}
	fmt.Fprintf(&sb, "- The body must not exceed %d characters.\n", rule.MaxBodyLength)
	if rule.AllowHashtags && rule.MaxHashtags > 0 {
		fmt.Fprintf(&sb, "- Include up to %d relevant hashtags, without the # prefix, as a separate list.\n", rule.MaxHashtags)
	} else {
		sb.WriteString("- Do not include hashtags.\n")
	}
	if rule.PlainTextOnly {
		sb.WriteString("- Plain text only, no HTML or markdown.\n")
	}

	sb.WriteString("\nReturn only a JSON object with \"title\", \"body\" and \"hashtags\" fields.")

	return sb.String()
}
