package service

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

func GetExpiresAt(expiresIn int) time.Time {
	return time.Now().Add(time.Duration(expiresIn) * time.Second)
}

const maxErrorBody = 512

// doJSON sends body as JSON (or form when it is a url-encoded string reader)
// and decodes a 2xx response into out. Non-2xx responses become ProviderErrors
// carrying a trimmed copy of the response body.
func doJSON(ctx context.Context, client *http.Client, platform, method, url string, header http.Header, body any, out any) error {
	var reader io.Reader
	contentType := ""
	switch b := body.(type) {
	case nil:
	case formBody:
		reader = strings.NewReader(string(b))
		contentType = "application/x-www-form-urlencoded"
	default:
		data, err := json.Marshal(b)
		if err != nil {
			return permanentError(platform, fmt.Errorf("marshal request: %w", err))
		}
		reader = bytes.NewReader(data)
		contentType = "application/json; charset=UTF-8"
	}

	req, err := http.NewRequestWithContext(ctx, method, url, reader)
	if err != nil {
		return permanentError(platform, fmt.Errorf("build request: %w", err))
	}
	for k, vs := range header {
		for _, v := range vs {
			req.Header.Add(k, v)
		}
	}
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}

	resp, err := client.Do(req)
	if err != nil {
		return transientError(platform, err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return transientError(platform, fmt.Errorf("read response: %w", err))
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return statusError(platform, resp.StatusCode, trimBody(respBody))
	}
	if out == nil || len(respBody) == 0 {
		return nil
	}
	if err := json.Unmarshal(respBody, out); err != nil {
		return permanentError(platform, fmt.Errorf("decode response: %w", err))
	}
	return nil
}

type formBody string

func trimBody(b []byte) string {
	s := strings.TrimSpace(string(b))
	if len(s) > maxErrorBody {
		s = s[:maxErrorBody] + "..."
	}
	if s == "" {
		s = "empty response"
	}
	return s
}

func bearer(token string) http.Header {
	h := http.Header{}
	h.Set("Authorization", "Bearer "+token)
	return h
}

// sleepCtx waits d or until ctx is done.
func sleepCtx(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
