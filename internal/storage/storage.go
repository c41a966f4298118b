// Package storage implements the upload backends: local disk, a third-party
// image host, and Cloudflare R2. Every backend converts its failures into a
// Result at its own boundary, so callers only ever see Result values.
package storage

import (
	"context"
	"crypto/md5"
	"encoding/hex"
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"time"
)

// Error taxonomy. Backends wrap one of these around the underlying cause.
var (
	// ErrConfiguration means required backend settings are missing; no I/O was attempted.
	ErrConfiguration = errors.New("storage misconfigured")
	// ErrTransport covers network failures, timeouts and rejected remote responses.
	ErrTransport = errors.New("remote storage failed")
	// ErrFilesystem covers local write failures.
	ErrFilesystem = errors.New("local storage failed")
)

// Category is the media category of an upload.
type Category int

const (
	Image Category = iota
	Video
)

func (c Category) String() string {
	switch c {
	case Video:
		return "video"
	default:
		return "image"
	}
}

// Strategy selects a backend.
type Strategy int

const (
	Local Strategy = iota
	ImageHost
	R2
)

func (s Strategy) String() string {
	switch s {
	case ImageHost:
		return "imagehost"
	case R2:
		return "r2"
	default:
		return "local"
	}
}

// ParseStrategy maps a configured strategy name to a Strategy.
// Unknown or empty names fall back to Local.
func ParseStrategy(name string) Strategy {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "imagehost":
		return ImageHost
	case "r2":
		return R2
	default:
		return Local
	}
}

// Request is a single upload. It is never modified by backends.
type Request struct {
	Content  []byte
	Filename string
	MimeType string
	Category Category

	// BaseURL is the externally visible base URL, used by backends that serve
	// the stored files themselves.
	BaseURL string
}

// Result is the outcome of an upload. Exactly one of URL and Message is set.
type Result struct {
	Success bool   `json:"success"`
	URL     string `json:"url,omitempty"`
	Message string `json:"message,omitempty"`

	Err error `json:"-"`
	// Strategy is the backend the dispatcher routed the upload to.
	Strategy Strategy `json:"-"`
}

// Succeeded returns a successful Result for url.
func Succeeded(url string) Result {
	return Result{Success: true, URL: url}
}

// Failed returns a failed Result carrying err's message.
func Failed(err error) Result {
	if err == nil {
		err = errors.New("upload failed")
	}
	msg := err.Error()
	if msg == "" {
		msg = "upload failed"
	}
	return Result{Success: false, Message: msg, Err: err}
}

// Backend stores a request's content and reports where it can be fetched.
type Backend interface {
	Upload(ctx context.Context, req Request) Result
}

// ContentHash returns the hex MD5 digest of content.
func ContentHash(content []byte) string {
	sum := md5.Sum(content)
	return hex.EncodeToString(sum[:])
}

// UniqueName builds "{unixMillis}_{contentHash}{ext}" for filename.
// Identical content stored in the same millisecond yields the same name.
func UniqueName(content []byte, filename string, now time.Time) string {
	return fmt.Sprintf("%d_%s%s", now.UnixMilli(), ContentHash(content), filepath.Ext(filename))
}
