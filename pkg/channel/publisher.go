package channel

import (
	"context"
	"strings"

	"github.com/brickfolio/platform/pkg/common/models"
)

// RenderBodyWithHashtags builds the message a body-only channel sends:
// the body plus a blank line and the hashtag suffix, each tag normalized
// to a single leading '#'. The validator checks this rendered form against
// the channel's length budget so what is validated is what goes out.
func RenderBodyWithHashtags(body string, hashtags []string) string {
	if len(hashtags) == 0 {
		return body
	}
	tags := make([]string, 0, len(hashtags))
	for _, tag := range hashtags {
		tags = append(tags, "#"+strings.TrimPrefix(tag, "#"))
	}
	return body + "\n\n" + strings.Join(tags, " ")
}

// Publisher turns a ready draft into a platform-native post. Implementations
// own their platform's request shape and map platform failures onto the
// ErrorKind taxonomy. The idempotency key is forwarded where the platform
// can deduplicate on it, so a retried call that already succeeded
// server-side is not double-posted.
type Publisher interface {
	Channel() models.Channel
	Publish(ctx context.Context, draft models.ContentDraft, cred models.ChannelCredential, idempotencyKey string) (externalRef string, err error)
}

// Registry maps channels to their publisher instances.
type Registry struct {
	publishers map[models.Channel]Publisher
}

func NewRegistry(publishers ...Publisher) *Registry {
	m := make(map[models.Channel]Publisher, len(publishers))
	for _, p := range publishers {
		m[p.Channel()] = p
	}
	return &Registry{publishers: m}
}

func (r *Registry) Lookup(ch models.Channel) (Publisher, bool) {
	p, ok := r.publishers[ch]
	return p, ok
}
