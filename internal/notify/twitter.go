package notify

import (
	"context"
	"fmt"
	"net/http"

	"github.com/dghubble/go-twitter/twitter"
	"github.com/dghubble/oauth1"

	"octobayNotifier/internal/model"
)

// TwitterConfig holds OAuth1 user-context credentials.
type TwitterConfig struct {
	APIKey       string
	APISecret    string
	AccessToken  string
	AccessSecret string
}

// Complete reports whether all credentials are set.
func (c TwitterConfig) Complete() bool {
	return c.APIKey != "" && c.APISecret != "" && c.AccessToken != "" && c.AccessSecret != ""
}

// TwitterPoster publishes status updates through the v1.1 API.
type TwitterPoster struct {
	client *twitter.Client
}

// NewTwitterPoster builds a poster signing requests with OAuth1.
func NewTwitterPoster(ctx context.Context, cfg TwitterConfig) (*TwitterPoster, error) {
	if !cfg.Complete() {
		return nil, fmt.Errorf("twitter credentials are incomplete")
	}
	config := oauth1.NewConfig(cfg.APIKey, cfg.APISecret)
	token := oauth1.NewToken(cfg.AccessToken, cfg.AccessSecret)
	return NewTwitterPosterWithClient(config.Client(ctx, token)), nil
}

// NewTwitterPosterWithClient wraps an already authenticated HTTP client.
func NewTwitterPosterWithClient(httpClient *http.Client) *TwitterPoster {
	return &TwitterPoster{client: twitter.NewClient(httpClient)}
}

// Post publishes the status and returns the tweet id.
func (p *TwitterPoster) Post(ctx context.Context, post model.Post) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}

	params := &twitter.StatusUpdateParams{}
	if post.InReplyTo != 0 {
		params.InReplyToStatusID = post.InReplyTo
	}

	tweet, _, err := p.client.Statuses.Update(post.Status, params)
	if err != nil {
		return "", fmt.Errorf("post status: %w", err)
	}
	if tweet == nil {
		return "", fmt.Errorf("post status: empty response")
	}
	return tweet.IDStr, nil
}
