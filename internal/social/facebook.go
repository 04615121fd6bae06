// Package social reads engagement numbers for published posts from the
// Facebook Graph API.
package social

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"
)

const postFields = "shares,likes.summary(true).limit(0),comments.summary(true).limit(0),insights.metric(post_impressions,post_impressions_unique,post_engaged_users)"

var ErrNotConfigured = errors.New("facebook access token is not configured")

// Error is a failed Graph API call.
type Error struct {
	Status  int
	Message string
}

func (e *Error) Error() string {
	return fmt.Sprintf("facebook graph: %d %s", e.Status, e.Message)
}

// Credentials come from the settings table.
type Credentials struct {
	AccessToken string
	PageID      string
}

// Metrics is what one post has collected so far.
type Metrics struct {
	PostID      string
	Likes       int
	Comments    int
	Shares      int
	Reach       int
	Impressions int
	Engagements int
}

// Page identifies the page a token belongs to.
type Page struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

type Client struct {
	baseURL    string
	httpClient *http.Client
}

func NewClient(baseURL string) *Client {
	return &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{Timeout: 15 * time.Second},
	}
}

// PostMetrics fetches likes, comments, shares and the lifetime insights of a post.
func (c *Client) PostMetrics(ctx context.Context, creds Credentials, postID string) (Metrics, error) {
	postID = strings.TrimSpace(postID)
	if postID == "" {
		return Metrics{}, fmt.Errorf("post id is required")
	}
	var payload struct {
		ID     string `json:"id"`
		Shares struct {
			Count int `json:"count"`
		} `json:"shares"`
		Likes struct {
			Summary struct {
				TotalCount int `json:"total_count"`
			} `json:"summary"`
		} `json:"likes"`
		Comments struct {
			Summary struct {
				TotalCount int `json:"total_count"`
			} `json:"summary"`
		} `json:"comments"`
		Insights struct {
			Data []struct {
				Name   string `json:"name"`
				Values []struct {
					Value int `json:"value"`
				} `json:"values"`
			} `json:"data"`
		} `json:"insights"`
	}
	params := url.Values{"fields": {postFields}}
	if err := c.get(ctx, creds, postID, params, &payload); err != nil {
		return Metrics{}, err
	}

	metrics := Metrics{
		PostID:   postID,
		Likes:    payload.Likes.Summary.TotalCount,
		Comments: payload.Comments.Summary.TotalCount,
		Shares:   payload.Shares.Count,
	}
	for _, insight := range payload.Insights.Data {
		if len(insight.Values) == 0 {
			continue
		}
		value := insight.Values[len(insight.Values)-1].Value
		switch insight.Name {
		case "post_impressions":
			metrics.Impressions = value
		case "post_impressions_unique":
			metrics.Reach = value
		case "post_engaged_users":
			metrics.Engagements = value
		}
	}
	return metrics, nil
}

// TestConnection resolves the configured page, or the token owner when no
// page id is set.
func (c *Client) TestConnection(ctx context.Context, creds Credentials) (Page, error) {
	node := strings.TrimSpace(creds.PageID)
	if node == "" {
		node = "me"
	}
	var page Page
	if err := c.get(ctx, creds, node, url.Values{"fields": {"id,name"}}, &page); err != nil {
		return Page{}, err
	}
	return page, nil
}

func (c *Client) get(ctx context.Context, creds Credentials, node string, params url.Values, out any) error {
	token := strings.TrimSpace(creds.AccessToken)
	if token == "" {
		return ErrNotConfigured
	}
	params.Set("access_token", token)
	endpoint := c.baseURL + "/" + url.PathEscape(node) + "?" + params.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return fmt.Errorf("build graph request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return &Error{Status: http.StatusBadGateway, Message: "graph api unreachable"}
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return fmt.Errorf("read graph response: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		var envelope struct {
			Error struct {
				Message string `json:"message"`
			} `json:"error"`
		}
		message := http.StatusText(resp.StatusCode)
		if json.Unmarshal(body, &envelope) == nil && envelope.Error.Message != "" {
			message = envelope.Error.Message
		}
		return &Error{Status: resp.StatusCode, Message: message}
	}
	if err := json.Unmarshal(body, out); err != nil {
		return fmt.Errorf("decode graph response: %w", err)
	}
	return nil
}
