package identity

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"

	"github.com/shurcooL/githubv4"
	"golang.org/x/oauth2"

	"octobayNotifier/internal/model"
)

// DefaultEndpoint is the public GitHub GraphQL API.
const DefaultEndpoint = "https://api.github.com/graphql"

// GithubResolver looks up a GitHub user's public contact channels.
type GithubResolver struct {
	client *githubv4.Client
}

// NewGithubResolver builds a resolver authenticated with a bearer token.
func NewGithubResolver(ctx context.Context, token, endpoint string) (*GithubResolver, error) {
	if token == "" {
		return nil, fmt.Errorf("github token is required")
	}
	src := oauth2.StaticTokenSource(&oauth2.Token{AccessToken: token})
	return NewGithubResolverWithClient(oauth2.NewClient(ctx, src), endpoint), nil
}

// NewGithubResolverWithClient uses httpClient for transport; it must add
// authentication. The client is copied, not modified.
func NewGithubResolverWithClient(httpClient *http.Client, endpoint string) *GithubResolver {
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	wrapped := *httpClient
	base := wrapped.Transport
	if base == nil {
		base = http.DefaultTransport
	}
	wrapped.Transport = notFoundTransport{base: base}

	if endpoint == "" || endpoint == DefaultEndpoint {
		return &GithubResolver{client: githubv4.NewClient(&wrapped)}
	}
	return &GithubResolver{client: githubv4.NewEnterpriseClient(endpoint, &wrapped)}
}

type notFoundKey struct{}

// notFoundTransport flags a NOT_FOUND error on the user field for the
// request whose context carries a notFoundKey. githubv4 surfaces only the
// error message, not its type or path.
type notFoundTransport struct {
	base http.RoundTripper
}

func (t notFoundTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	resp, err := t.base.RoundTrip(req)
	flag, _ := req.Context().Value(notFoundKey{}).(*bool)
	if err != nil || flag == nil || resp.StatusCode != http.StatusOK {
		return resp, err
	}

	body, err := io.ReadAll(resp.Body)
	resp.Body.Close()
	if err != nil {
		return nil, err
	}
	resp.Body = io.NopCloser(bytes.NewReader(body))

	var payload struct {
		Errors []struct {
			Type string        `json:"type"`
			Path []interface{} `json:"path"`
		} `json:"errors"`
	}
	if json.Unmarshal(body, &payload) == nil {
		for _, e := range payload.Errors {
			if e.Type == "NOT_FOUND" && len(e.Path) > 0 && e.Path[0] == "user" {
				*flag = true
			}
		}
	}
	return resp, nil
}

type userQuery struct {
	User *struct {
		Email           githubv4.String
		TwitterUsername *githubv4.String
	} `graphql:"user(login: $login)"`
}

// Resolve returns the user's email and Twitter handle. An unknown login or a
// user without either yields an empty Recipient.
func (r *GithubResolver) Resolve(ctx context.Context, login string) (model.Recipient, error) {
	if login == "" {
		return model.Recipient{}, fmt.Errorf("github login is empty")
	}

	var q userQuery
	vars := map[string]interface{}{
		"login": githubv4.String(login),
	}
	var notFound bool
	if err := r.client.Query(context.WithValue(ctx, notFoundKey{}, &notFound), &q, vars); err != nil {
		if notFound && q.User == nil {
			return model.Recipient{}, nil
		}
		return model.Recipient{}, fmt.Errorf("query user %s: %w", login, err)
	}
	if q.User == nil {
		return model.Recipient{}, nil
	}

	recipient := model.Recipient{Email: string(q.User.Email)}
	if q.User.TwitterUsername != nil {
		recipient.TwitterUsername = string(*q.User.TwitterUsername)
	}
	return recipient, nil
}
