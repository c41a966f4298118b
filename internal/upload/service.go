// Package upload dispatches media uploads to the configured storage backend
// and exposes them over HTTP.
package upload

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/xiaoshiliu/mediaservice/internal/baseurl"
	"github.com/xiaoshiliu/mediaservice/internal/config"
	"github.com/xiaoshiliu/mediaservice/internal/metrics"
	"github.com/xiaoshiliu/mediaservice/internal/storage"
)

// File is one uploaded file as received from the client.
type File struct {
	Content  []byte
	Filename string
	MimeType string
}

// Backends holds one backend per destination. Local storage is split per
// category because images and videos live in different directories.
type Backends struct {
	LocalImages storage.Backend
	LocalVideos storage.Backend
	ImageHost   storage.Backend
	R2          storage.Backend
}

// Service selects a backend per upload and returns its Result unchanged.
// It performs no retries and never falls back to another backend.
type Service struct {
	cfg      *config.Config
	backends Backends
	resolver *baseurl.Resolver
	observer metrics.Observer
}

// NewService creates a new upload Service. observer may be nil.
func NewService(cfg *config.Config, backends Backends, resolver *baseurl.Resolver, observer metrics.Observer) *Service {
	if observer == nil {
		observer = metrics.Nop{}
	}
	if resolver == nil {
		resolver = baseurl.New(cfg.LocalBaseURL, nil)
	}
	return &Service{cfg: cfg, backends: backends, resolver: resolver, observer: observer}
}

// StrategyFor returns the backend strategy for category, read from the
// configuration on every call. Videos never use the image host.
func (s *Service) StrategyFor(category storage.Category) storage.Strategy {
	if category == storage.Video {
		strategy := storage.ParseStrategy(s.cfg.Video.Strategy)
		if strategy == storage.ImageHost {
			return storage.Local
		}
		return strategy
	}
	return storage.ParseStrategy(s.cfg.Image.Strategy)
}

// UploadImage stores an image using the image strategy. r supplies the
// headers for base URL resolution and may be nil.
func (s *Service) UploadImage(ctx context.Context, r *http.Request, f File) storage.Result {
	return s.Dispatch(ctx, r, request(f, storage.Image))
}

// UploadVideo stores a video using the video strategy.
func (s *Service) UploadVideo(ctx context.Context, r *http.Request, f File) storage.Result {
	return s.Dispatch(ctx, r, request(f, storage.Video))
}

// UploadVideoWithThumbnail stores the video and then, independently, the
// optional thumbnail through the image path. The cover Result is the zero
// value when no thumbnail was attempted; a failed cover never fails the video.
func (s *Service) UploadVideoWithThumbnail(ctx context.Context, r *http.Request, video File, thumbnail *File) (res, cover storage.Result) {
	res = s.UploadVideo(ctx, r, video)
	if !res.Success || thumbnail == nil {
		return res, storage.Result{}
	}

	cover = s.UploadImage(ctx, r, *thumbnail)
	if !cover.Success {
		slog.Warn("thumbnail upload failed", "filename", thumbnail.Filename, "error", cover.Message)
	}
	return res, cover
}

// Dispatch routes req to the backend selected for its category.
//
// Cancellation of ctx is ignored: once issued, an upload runs to completion
// or to its backend's own timeout.
func (s *Service) Dispatch(ctx context.Context, r *http.Request, req storage.Request) storage.Result {
	strategy := s.StrategyFor(req.Category)
	if req.Category == storage.Video && storage.ParseStrategy(s.cfg.Video.Strategy) == storage.ImageHost {
		slog.Warn("image host does not accept videos, using local storage", "configured", s.cfg.Video.Strategy)
	}
	backend := s.backendFor(req.Category, strategy)
	slog.Debug("dispatching upload", "category", req.Category.String(), "strategy", strategy.String(), "filename", req.Filename)

	if backend == nil {
		res := storage.Failed(fmt.Errorf("%w: no %s backend for %s uploads", storage.ErrConfiguration, strategy, req.Category))
		res.Strategy = strategy
		return res
	}
	if strategy == storage.Local {
		req.BaseURL = s.resolver.Resolve(r)
	}

	start := time.Now()
	res := backend.Upload(context.WithoutCancel(ctx), req)
	s.observer.RecordUpload(req.Category.String(), strategy.String(), len(req.Content), time.Since(start), res.Success)
	res.Strategy = strategy
	return res
}

func (s *Service) backendFor(category storage.Category, strategy storage.Strategy) storage.Backend {
	switch strategy {
	case storage.ImageHost:
		if category == storage.Image {
			return s.backends.ImageHost
		}
	case storage.R2:
		return s.backends.R2
	}
	if category == storage.Video {
		return s.backends.LocalVideos
	}
	return s.backends.LocalImages
}

func request(f File, category storage.Category) storage.Request {
	return storage.Request{
		Content:  f.Content,
		Filename: f.Filename,
		MimeType: f.MimeType,
		Category: category,
	}
}
