package storage

import (
	"bytes"
	"context"
	"crypto/tls"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"mime/multipart"
	"net/http"
	"net/textproto"
	"time"

	"github.com/xiaoshiliu/mediaservice/internal/config"
)

const (
	imageHostUserAgent = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36"
	imageHostFailed    = "image host upload failed"
	// imageHostMaxResponse bounds how much of the host's reply is read.
	imageHostMaxResponse = 1 << 20
)

// ImageHostStorage forwards images to a third-party HTTP upload API.
type ImageHostStorage struct {
	apiURL string
	client *http.Client
}

// imageHostResponse is the reply shape of the image host:
// {"code":200,"msg":"...","data":{"url":"https://..."}}.
type imageHostResponse struct {
	Code int    `json:"code"`
	Msg  string `json:"msg"`
	Data *struct {
		URL string `json:"url"`
	} `json:"data"`
}

// NewImageHost creates an image host backend.
//
// The HTTP client accepts self-signed certificates so private or development
// image hosts work out of the box. Do not point it at hosts you do not control.
func NewImageHost(cfg config.ImageHostConfig) *ImageHostStorage {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 60 * time.Second
	}
	transport := http.DefaultTransport.(*http.Transport).Clone()
	transport.TLSClientConfig = &tls.Config{InsecureSkipVerify: true} //nolint:gosec
	return NewImageHostWithClient(cfg.APIURL, &http.Client{
		Timeout:   timeout,
		Transport: transport,
	})
}

// NewImageHostWithClient creates an image host backend using client.
func NewImageHostWithClient(apiURL string, client *http.Client) *ImageHostStorage {
	return &ImageHostStorage{apiURL: apiURL, client: client}
}

func (s *ImageHostStorage) Upload(ctx context.Context, req Request) Result {
	if s.apiURL == "" {
		slog.Error("image host not configured")
		return Failed(fmt.Errorf("%w: image host API URL is not set", ErrConfiguration))
	}

	slog.Info("uploading to image host", "filename", req.Filename, "size", len(req.Content))
	url, err := s.post(ctx, req)
	if err != nil {
		slog.Error("image host upload failed", "filename", req.Filename, "error", err)
		return Failed(err)
	}
	slog.Info("image host upload succeeded", "url", url)
	return Succeeded(url)
}

func (s *ImageHostStorage) post(ctx context.Context, req Request) (string, error) {
	body, contentType, err := multipartBody(req)
	if err != nil {
		return "", fmt.Errorf("%w: build form: %w", ErrTransport, err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, s.apiURL, body)
	if err != nil {
		return "", fmt.Errorf("%w: build request: %w", ErrTransport, err)
	}
	httpReq.Header.Set("Content-Type", contentType)
	httpReq.Header.Set("User-Agent", imageHostUserAgent)

	resp, err := s.client.Do(httpReq)
	if err != nil {
		return "", fmt.Errorf("%w: %w", ErrTransport, err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, imageHostMaxResponse))
	if err != nil {
		return "", fmt.Errorf("%w: read response: %w", ErrTransport, err)
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return "", &rejection{msg: fmt.Sprintf("request failed with status code %d", resp.StatusCode)}
	}

	var out imageHostResponse
	if err := json.Unmarshal(raw, &out); err != nil {
		return "", fmt.Errorf("%w: decode response: %w", ErrTransport, err)
	}
	if out.Code != http.StatusOK || out.Data == nil || out.Data.URL == "" {
		msg := out.Msg
		if msg == "" {
			msg = imageHostFailed
		}
		return "", &rejection{msg: msg}
	}
	return out.Data.URL, nil
}

// rejection is a failure reported by the image host. Its message is shown to
// the client unchanged.
type rejection struct{ msg string }

func (e *rejection) Error() string { return e.msg }
func (e *rejection) Unwrap() error { return ErrTransport }

// multipartBody encodes req as a form with a single "file" field.
func multipartBody(req Request) (io.Reader, string, error) {
	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)

	h := make(textproto.MIMEHeader)
	h.Set("Content-Disposition", fmt.Sprintf(`form-data; name="file"; filename=%q`, req.Filename))
	contentType := req.MimeType
	if contentType == "" {
		contentType = "application/octet-stream"
	}
	h.Set("Content-Type", contentType)

	part, err := w.CreatePart(h)
	if err != nil {
		return nil, "", err
	}
	if _, err := part.Write(req.Content); err != nil {
		return nil, "", err
	}
	if err := w.Close(); err != nil {
		return nil, "", err
	}
	return &buf, w.FormDataContentType(), nil
}
