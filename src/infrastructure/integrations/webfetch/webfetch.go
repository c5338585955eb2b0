package webfetch

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"

	"golang.org/x/net/html"

	"packsight/src/log"
)

const (
	DefaultUserAgent = "packsight/1.0"
	DefaultMaxBody   = 8 << 20 // 8 MiB
)

// Client fetches marketplace pages and product assets over HTTP.
type Client struct {
	httpClient *http.Client
	userAgent  string
	maxBody    int64
}

func NewClient(c *http.Client, opts ...Option) *Client {
	client := &Client{
		httpClient: c,
		userAgent:  DefaultUserAgent,
		maxBody:    DefaultMaxBody,
	}
	for _, opt := range opts {
		opt(client)
	}
	return client
}

type Option func(c *Client)

func WithUserAgent(ua string) Option {
	return func(c *Client) {
		c.userAgent = ua
	}
}

func WithMaxBody(n int64) Option {
	return func(c *Client) {
		c.maxBody = n
	}
}

// FetchText fetches a page and returns its visible text, with scripts,
// styles and markup stripped.
func (c *Client) FetchText(ctx context.Context, url string) (string, error) {
	data, contentType, err := c.FetchBytes(ctx, url)
	if err != nil {
		return "", err
	}

	if !strings.Contains(contentType, "html") {
		return string(data), nil
	}

	text, err := extractText(data)
	if err != nil {
		return "", fmt.Errorf("error parsing page %s: %w", url, err)
	}
	return text, nil
}

// FetchBytes fetches a URL and returns the raw body and its content
// type. Bodies above the configured limit are truncated.
func (c *Client) FetchBytes(ctx context.Context, url string) ([]byte, string, error) {
	req, err := http.NewRequestWithContext(ctx, "GET", url, nil)
	if err != nil {
		return nil, "", fmt.Errorf("error creating request: %w", err)
	}
	req.Header.Set("User-Agent", c.userAgent)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		log.Error(err, "failed to fetch url", "url", url)
		return nil, "", fmt.Errorf("error fetching %s: %w", url, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, "", fmt.Errorf("fetching %s returned %s", url, resp.Status)
	}

	data, err := io.ReadAll(io.LimitReader(resp.Body, c.maxBody))
	if err != nil {
		return nil, "", fmt.Errorf("error reading body of %s: %w", url, err)
	}

	return data, resp.Header.Get("Content-Type"), nil
}

// extractText walks the HTML tree collecting text nodes, skipping
// script and style subtrees.
func extractText(page []byte) (string, error) {
	doc, err := html.Parse(strings.NewReader(string(page)))
	if err != nil {
		return "", err
	}

	var sb strings.Builder
	var walk func(n *html.Node)
	walk = func(n *html.Node) {
		if n.Type == html.ElementNode {
			switch n.Data {
			case "script", "style", "noscript":
				return
			}
		}
		if n.Type == html.TextNode {
			text := strings.TrimSpace(n.Data)
			if text != "" {
				sb.WriteString(text)
				sb.WriteString("\n")
			}
		}
		for child := n.FirstChild; child != nil; child = child.NextSibling {
			walk(child)
		}
	}
	walk(doc)

	return sb.String(), nil
}
