package imagehost

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"
)

const (
	DefaultImgurEndpoint = "https://api.imgur.com/3/image"
	DefaultImgurTimeout  = 15 * time.Second
)

type ImgurOptions struct {
	ClientID string
	// Endpoint overrides the upload URL.
	Endpoint   string
	Timeout    time.Duration
	HTTPClient *http.Client
}

// Imgur uploads anonymously with an application client id.
type Imgur struct {
	opts   ImgurOptions
	client *http.Client
}

func NewImgur(opts ImgurOptions) *Imgur {
	if opts.Endpoint == "" {
		opts.Endpoint = DefaultImgurEndpoint
	}
	if opts.Timeout <= 0 {
		opts.Timeout = DefaultImgurTimeout
	}
	client := opts.HTTPClient
	if client == nil {
		client = &http.Client{}
	}
	return &Imgur{opts: opts, client: client}
}

func (i *Imgur) Name() string { return "imgur" }

type imgurResponse struct {
	Success bool `json:"success"`
	Status  int  `json:"status"`
	Data    struct {
		Link  string `json:"link"`
		Error any    `json:"error"`
	} `json:"data"`
}

func (i *Imgur) Upload(ctx context.Context, data []byte) (string, error) {
	if len(data) == 0 {
		return "", fmt.Errorf("%w: no image data", ErrUploadFailed)
	}
	if i.opts.ClientID == "" {
		return "", fmt.Errorf("%w: imgur client id is not set", ErrUploadFailed)
	}
	ctx, cancel := context.WithTimeout(ctx, i.opts.Timeout)
	defer cancel()

	form := url.Values{"image": {base64.StdEncoding.EncodeToString(data)}}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, i.opts.Endpoint, strings.NewReader(form.Encode()))
	if err != nil {
		return "", err
	}
	req.Header.Set("Authorization", "Client-ID "+i.opts.ClientID)
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := i.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrUploadFailed, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return "", fmt.Errorf("%w: read response: %v", ErrUploadFailed, err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return "", fmt.Errorf("%w: http status %d", ErrUploadFailed, resp.StatusCode)
	}
	var r imgurResponse
	if err := json.Unmarshal(body, &r); err != nil {
		return "", fmt.Errorf("%w: decode response: %v", ErrUploadFailed, err)
	}
	if !r.Success || r.Data.Link == "" {
		return "", fmt.Errorf("%w: imgur reported failure (status %d)", ErrUploadFailed, r.Status)
	}
	return r.Data.Link, nil
}
