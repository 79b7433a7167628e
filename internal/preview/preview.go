// Package preview derives thumbnail/title metadata for a content item
// from its source URL. It is strictly best effort: failures are
// recorded as a degraded preview status and never propagate to the
// tagging or content-creation operation that triggered the fetch.
package preview

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"golang.org/x/net/html"

	"github.com/mediastash/tagger/internal/models"
	"github.com/mediastash/tagger/internal/store"
)

const userAgent = "Mozilla/5.0 (compatible; tagger/1.0)"

var imageExtensions = []string{".jpg", ".jpeg", ".png", ".webp", ".gif"}
var videoExtensions = []string{".mp4", ".webm", ".mov"}

// Client fetches preview metadata over HTTP.
type Client struct {
	http *http.Client
}

// NewClient returns a Client with a bounded request timeout.
func NewClient() *Client {
	return &Client{http: &http.Client{Timeout: 10 * time.Second}}
}

// Build fetches preview metadata for a content item and stores the
// result, including failures, so the UI can distinguish "pending" from
// "failed". It never returns an error to the caller.
func (c *Client) Build(ctx context.Context, s store.Store, contentID, sourceURL string) *models.Preview {
	p, err := c.Extract(ctx, sourceURL)
	if err != nil {
		p = &models.Preview{Type: models.PreviewTypeUnknown, Status: models.PreviewStatusFailed}
	} else if p.Type == models.PreviewTypeUnknown {
		p.Status = models.PreviewStatusFailed
	} else {
		p.Status = models.PreviewStatusReady
	}

	p.ContentID = contentID
	now := time.Now().UTC()
	p.FetchedAt = &now

	_ = s.UpsertPreview(ctx, p)
	return p
}

// Extract resolves preview metadata for a URL. Direct image/video URLs
// short-circuit; HTML pages are mined for OpenGraph/Twitter metadata.
func (c *Client) Extract(ctx context.Context, rawURL string) (*models.Preview, error) {
	if isImageURL(rawURL) {
		return &models.Preview{
			Type:          models.PreviewTypeImage,
			URL:           rawURL,
			NormalizedURL: normalizeImageURL(rawURL),
		}, nil
	}
	if isVideoURL(rawURL) {
		return &models.Preview{
			Type: models.PreviewTypeVideo,
			URL:  rawURL,
		}, nil
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("User-Agent", userAgent)

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetch %s: %w", rawURL, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		return nil, fmt.Errorf("fetch %s: status %d", rawURL, resp.StatusCode)
	}
	if !strings.Contains(resp.Header.Get("Content-Type"), "text/html") {
		return &models.Preview{Type: models.PreviewTypeUnknown}, nil
	}

	doc, err := html.Parse(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("parse %s: %w", rawURL, err)
	}

	meta := collectMeta(doc)

	title := firstOf(meta, "og:title", "twitter:title")
	if title == "" {
		title = meta["<title>"]
	}
	description := firstOf(meta, "og:description", "twitter:description", "description")

	if video := firstOf(meta, "og:video", "twitter:player"); video != "" {
		return &models.Preview{
			Type:        models.PreviewTypeVideo,
			URL:         resolveURL(rawURL, video),
			Title:       title,
			Description: description,
		}, nil
	}
	if image := firstOf(meta, "og:image", "twitter:image"); image != "" {
		resolved := resolveURL(rawURL, image)
		return &models.Preview{
			Type:          models.PreviewTypeImage,
			URL:           resolved,
			NormalizedURL: normalizeImageURL(resolved),
			Title:         title,
			Description:   description,
		}, nil
	}

	return &models.Preview{
		Type:        models.PreviewTypePage,
		Title:       title,
		Description: description,
	}, nil
}

func isImageURL(rawURL string) bool {
	return hasExtension(rawURL, imageExtensions)
}

func isVideoURL(rawURL string) bool {
	return hasExtension(rawURL, videoExtensions)
}

func hasExtension(rawURL string, exts []string) bool {
	u, err := url.Parse(rawURL)
	if err != nil {
		return false
	}
	path := strings.ToLower(u.Path)
	for _, ext := range exts {
		if strings.HasSuffix(path, ext) {
			return true
		}
	}
	return false
}

// normalizeImageURL strips query params; safe for static CDN-hosted
// images and keeps duplicate detection stable.
func normalizeImageURL(rawURL string) string {
	u, err := url.Parse(rawURL)
	if err != nil {
		return rawURL
	}
	u.RawQuery = ""
	return u.String()
}

func resolveURL(base, ref string) string {
	b, err := url.Parse(base)
	if err != nil {
		return ref
	}
	r, err := url.Parse(ref)
	if err != nil {
		return ref
	}
	return b.ResolveReference(r).String()
}

// collectMeta walks the document gathering meta property/name content
// values plus the page <title> under the "<title>" key.
func collectMeta(doc *html.Node) map[string]string {
	meta := make(map[string]string)

	var walk func(n *html.Node)
	walk = func(n *html.Node) {
		if n.Type == html.ElementNode {
			switch n.Data {
			case "meta":
				var key, content string
				for _, a := range n.Attr {
					switch a.Key {
					case "property", "name":
						key = a.Val
					case "content":
						content = a.Val
					}
				}
				if key != "" && content != "" {
					if _, ok := meta[key]; !ok {
						meta[key] = strings.TrimSpace(content)
					}
				}
			case "title":
				if n.FirstChild != nil && n.FirstChild.Type == html.TextNode {
					if _, ok := meta["<title>"]; !ok {
						meta["<title>"] = strings.TrimSpace(n.FirstChild.Data)
					}
				}
			}
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(doc)
	return meta
}

func firstOf(meta map[string]string, keys ...string) string {
	for _, k := range keys {
		if v := meta[k]; v != "" {
			return v
		}
	}
	return ""
}
