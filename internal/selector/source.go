package selector

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/h2non/filetype"
	"github.com/maheshrc27/clipcast/internal/models"
	"github.com/maheshrc27/clipcast/internal/transfer"
)

// Source yields fresh candidates for a platform.
type Source interface {
	Fetch(ctx context.Context, platform string, limit int) ([]models.Candidate, error)
}

// FeedSource reads candidates from a JSON feed queried by platform.
type FeedSource struct {
	url    string
	client *http.Client
}

func NewFeedSource(feedURL string) *FeedSource {
	return &FeedSource{url: feedURL, client: &http.Client{Timeout: 30 * time.Second}}
}

func (s *FeedSource) Fetch(ctx context.Context, platform string, limit int) ([]models.Candidate, error) {
	if s.url == "" {
		return nil, errors.New("selector: no feed url configured")
	}
	u, err := url.Parse(s.url)
	if err != nil {
		return nil, fmt.Errorf("parse feed url: %w", err)
	}
	q := u.Query()
	q.Set("platform", platform)
	if limit > 0 {
		q.Set("limit", strconv.Itoa(limit))
	}
	u.RawQuery = q.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return nil, err
	}
	resp, err := s.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetch feed: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("fetch feed: status %d", resp.StatusCode)
	}

	var feed transfer.FeedResponse
	if err := json.NewDecoder(resp.Body).Decode(&feed); err != nil {
		return nil, fmt.Errorf("decode feed: %w", err)
	}
	out := make([]models.Candidate, 0, len(feed.Items))
	for _, item := range feed.Items {
		if item.ID == "" || item.VideoURL == "" {
			continue
		}
		out = append(out, models.Candidate{
			ContentID:       item.ID,
			SourceURL:       item.VideoURL,
			ThumbnailURL:    item.ThumbnailURL,
			Caption:         item.Caption,
			Title:           item.Title,
			EngagementScore: engagementScore(item),
			AudioKey:        item.AudioID,
			DurationSec:     item.DurationSec,
		})
	}
	return out, nil
}

// engagementScore prefers the feed's own score and otherwise weights
// interactions over raw views.
func engagementScore(item transfer.FeedItem) float64 {
	if item.Score > 0 {
		return item.Score
	}
	return float64(item.Views)/100 + float64(item.Likes) + 2*float64(item.Comments) + 3*float64(item.Shares)
}

// StaticSource serves a fixed candidate list.
type StaticSource []models.Candidate

func (s StaticSource) Fetch(_ context.Context, _ string, _ int) ([]models.Candidate, error) {
	out := make([]models.Candidate, len(s))
	copy(out, s)
	return out, nil
}

const maxThumbnailBytes = 8 << 20

var errNotImage = errors.New("selector: thumbnail is not an image")

// Thumbnails fetches candidate thumbnails for visual hashing.
type Thumbnails interface {
	Fetch(ctx context.Context, url string) ([]byte, error)
}

type HTTPThumbnails struct {
	client *http.Client
}

func NewHTTPThumbnails() *HTTPThumbnails {
	return &HTTPThumbnails{client: &http.Client{Timeout: 15 * time.Second}}
}

func (h *HTTPThumbnails) Fetch(ctx context.Context, thumbURL string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, thumbURL, nil)
	if err != nil {
		return nil, err
	}
	resp, err := h.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("thumbnail status %d", resp.StatusCode)
	}
	data, err := io.ReadAll(io.LimitReader(resp.Body, maxThumbnailBytes))
	if err != nil {
		return nil, err
	}
	if !filetype.IsImage(data) {
		return nil, errNotImage
	}
	return data, nil
}
