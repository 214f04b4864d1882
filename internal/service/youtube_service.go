package service

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/h2non/filetype"
	config "github.com/maheshrc27/clipcast/configs"
	"github.com/maheshrc27/clipcast/internal/logging"
	"github.com/maheshrc27/clipcast/internal/models"
	"github.com/maheshrc27/clipcast/internal/publisher"
	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"
	"google.golang.org/api/googleapi"
	"google.golang.org/api/option"
	"google.golang.org/api/youtube/v3"
)

const youtubeMaxTitle = 100

// YoutubeService uploads Shorts through the YouTube Data API.
type YoutubeService struct {
	oauth    *oauth2.Config
	download *http.Client
	log      logging.Logger
	endpoint string
}

func NewYoutubeService(cfg *config.Config, log logging.Logger) *YoutubeService {
	return &YoutubeService{
		oauth: &oauth2.Config{
			ClientID:     cfg.GoogleClientID,
			ClientSecret: cfg.GoogleClientSecret,
			RedirectURL:  cfg.GoogleRedirectURI,
			Scopes:       []string{youtube.YoutubeUploadScope},
			Endpoint:     google.Endpoint,
		},
		download: &http.Client{Timeout: 3 * time.Minute},
		log:      log,
	}
}

func (s *YoutubeService) token(creds models.Credentials) *oauth2.Token {
	return &oauth2.Token{
		AccessToken:  creds.AccessToken,
		RefreshToken: creds.RefreshToken,
		Expiry:       creds.ExpiresAt,
		TokenType:    "Bearer",
	}
}

func (s *YoutubeService) Publish(ctx context.Context, p publisher.Payload, creds models.Credentials) (string, error) {
	if !creds.Present() {
		return "", permanentError(models.PlatformYoutube, errors.New("missing credentials"))
	}

	path, err := s.downloadVideo(ctx, p.VideoURL)
	if err != nil {
		return "", err
	}
	defer os.Remove(path)

	file, err := os.Open(path)
	if err != nil {
		return "", transientError(models.PlatformYoutube, fmt.Errorf("open video: %w", err))
	}
	defer file.Close()

	opts := []option.ClientOption{option.WithTokenSource(s.oauth.TokenSource(ctx, s.token(creds)))}
	if s.endpoint != "" {
		opts = append(opts, option.WithEndpoint(s.endpoint))
	}
	svc, err := youtube.NewService(ctx, opts...)
	if err != nil {
		return "", permanentError(models.PlatformYoutube, fmt.Errorf("create client: %w", err))
	}

	video := &youtube.Video{
		Snippet: &youtube.VideoSnippet{
			Title:       youtubeTitle(p),
			Description: youtubeDescription(p),
			CategoryId:  "22",
		},
		Status: &youtube.VideoStatus{
			PrivacyStatus:           "public",
			SelfDeclaredMadeForKids: false,
		},
	}
	resp, err := svc.Videos.Insert([]string{"snippet", "status"}, video).Media(file).Context(ctx).Do()
	if err != nil {
		return "", classifyGoogleError(err)
	}
	s.log.Debug().Str("platform", models.PlatformYoutube).Str("video_id", resp.Id).Msg("upload complete")
	return resp.Id, nil
}

// downloadVideo copies the source video to a temporary file and checks that
// it is a video container.
func (s *YoutubeService) downloadVideo(ctx context.Context, videoURL string) (string, error) {
	if videoURL == "" {
		return "", permanentError(models.PlatformYoutube, errors.New("missing video url"))
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, videoURL, nil)
	if err != nil {
		return "", permanentError(models.PlatformYoutube, fmt.Errorf("build download request: %w", err))
	}
	resp, err := s.download.Do(req)
	if err != nil {
		return "", transientError(models.PlatformYoutube, fmt.Errorf("download video: %w", err))
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return "", statusError(models.PlatformYoutube, resp.StatusCode, "download video: unexpected status")
	}

	tmp, err := os.CreateTemp("", "clipcast-*.mp4")
	if err != nil {
		return "", transientError(models.PlatformYoutube, fmt.Errorf("create temp file: %w", err))
	}
	defer tmp.Close()

	if _, err := io.Copy(tmp, resp.Body); err != nil {
		os.Remove(tmp.Name())
		return "", transientError(models.PlatformYoutube, fmt.Errorf("save video: %w", err))
	}

	head := make([]byte, 261)
	n, _ := tmp.ReadAt(head, 0)
	if !filetype.IsVideo(head[:n]) {
		os.Remove(tmp.Name())
		return "", permanentError(models.PlatformYoutube, errors.New("downloaded file is not a video"))
	}
	return tmp.Name(), nil
}

func (s *YoutubeService) RefreshToken(ctx context.Context, creds models.Credentials) (models.Credentials, error) {
	if creds.RefreshToken == "" {
		return creds, permanentError(models.PlatformYoutube, errors.New("missing refresh token"))
	}
	// An expired token forces the token source to hit the refresh endpoint.
	src := s.oauth.TokenSource(ctx, &oauth2.Token{RefreshToken: creds.RefreshToken})
	tok, err := src.Token()
	if err != nil {
		var re *oauth2.RetrieveError
		if errors.As(err, &re) && re.Response != nil {
			return creds, statusError(models.PlatformYoutube, re.Response.StatusCode, re.Error())
		}
		return creds, transientError(models.PlatformYoutube, err)
	}
	creds.AccessToken = tok.AccessToken
	if tok.RefreshToken != "" {
		creds.RefreshToken = tok.RefreshToken
	}
	creds.ExpiresAt = tok.Expiry
	return creds, nil
}

// AuthURL is the Google consent page; offline access yields a refresh token.
func (s *YoutubeService) AuthURL(state string) string {
	return s.oauth.AuthCodeURL(state, oauth2.AccessTypeOffline, oauth2.ApprovalForce)
}

func (s *YoutubeService) Exchange(ctx context.Context, code string) (models.Credentials, error) {
	tok, err := s.oauth.Exchange(ctx, code)
	if err != nil {
		var re *oauth2.RetrieveError
		if errors.As(err, &re) && re.Response != nil {
			return models.Credentials{}, statusError(models.PlatformYoutube, re.Response.StatusCode, re.Error())
		}
		return models.Credentials{}, transientError(models.PlatformYoutube, err)
	}
	return models.Credentials{
		AccessToken:  tok.AccessToken,
		RefreshToken: tok.RefreshToken,
		ExpiresAt:    tok.Expiry,
	}, nil
}

func classifyGoogleError(err error) error {
	var gerr *googleapi.Error
	if errors.As(err, &gerr) {
		pe := statusError(models.PlatformYoutube, gerr.Code, gerr.Message)
		for _, item := range gerr.Errors {
			// Quota exhaustion comes back as 403 but clears the next day.
			if item.Reason == "quotaExceeded" || item.Reason == "rateLimitExceeded" || item.Reason == "uploadLimitExceeded" {
				pe.StatusCode = http.StatusTooManyRequests
				pe.Retryable = true
			}
		}
		return pe
	}
	return transientError(models.PlatformYoutube, err)
}

func youtubeTitle(p publisher.Payload) string {
	title := strings.TrimSpace(p.Title)
	if title == "" {
		title = strings.TrimSpace(p.Caption)
	}
	if title == "" {
		title = "Short"
	}
	return truncateRunes(title, youtubeMaxTitle)
}

func youtubeDescription(p publisher.Payload) string {
	desc := strings.TrimSpace(p.Description)
	if desc == "" {
		desc = strings.TrimSpace(p.Caption)
	}
	if !strings.Contains(strings.ToLower(desc), "#shorts") {
		desc = strings.TrimSpace(desc + " #Shorts")
	}
	return desc
}
