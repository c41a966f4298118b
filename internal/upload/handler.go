package upload

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"mime"
	"mime/multipart"
	"net/http"
	"path/filepath"
	"slices"
	"strconv"
	"strings"

	"github.com/dustin/go-humanize"
	"github.com/gabriel-vasile/mimetype"
	"github.com/go-chi/chi/v5"

	"github.com/xiaoshiliu/mediaservice/internal/config"
	"github.com/xiaoshiliu/mediaservice/internal/middleware"
	"github.com/xiaoshiliu/mediaservice/internal/response"
	"github.com/xiaoshiliu/mediaservice/internal/storage"
)

const (
	maxMultipleFiles = 9
	formMemory       = 32 << 20
	// formOverhead is allowed on top of the file size limits for multipart framing.
	formOverhead = 1 << 20

	defaultListLimit = 20
	maxListLimit     = 100
)

var (
	errTooLarge        = errors.New("file too large")
	errUnsupportedType = errors.New("unsupported file type")
)

// Handler holds HTTP handlers for upload endpoints.
type Handler struct {
	svc     *Service
	records Recorder
	image   fileRule
	video   fileRule
}

// fileRule is the size and type allow-list for one form field.
type fileRule struct {
	kind    string
	maxSize int64
	allowed []string
}

// NewHandler creates a new upload Handler. records may be nil to skip
// upload bookkeeping.
func NewHandler(svc *Service, records Recorder, cfg *config.Config) *Handler {
	return &Handler{
		svc:     svc,
		records: records,
		image:   fileRule{kind: "image", maxSize: cfg.Image.MaxSize, allowed: cfg.Image.AllowedTypes},
		video:   fileRule{kind: "video", maxSize: cfg.Video.MaxSize, allowed: cfg.Video.AllowedTypes},
	}
}

// Routes mounts the upload endpoints on r. Authentication is applied by the caller.
func (h *Handler) Routes(r chi.Router) {
	r.Post("/single", h.Single)
	r.Post("/multiple", h.Multiple)
	r.Post("/video", h.Video)
	r.Get("/mine", h.Mine)
}

type fileData struct {
	OriginalName string `json:"originalname" example:"cat.png"`
	Size         int64  `json:"size"         example:"20480"`
	URL          string `json:"url"          example:"http://localhost:3001/uploads/images/1712345678901_5d41402abc4b2a76b9719d911017c592.png"`
}

type fileError struct {
	OriginalName string `json:"originalname" example:"broken.png"`
	Message      string `json:"message"      example:"image host upload failed"`
}

type multipleData struct {
	Uploaded []fileData  `json:"uploaded"`
	Errors   []fileError `json:"errors,omitempty"`
}

type videoData struct {
	OriginalName string  `json:"originalname" example:"clip.mp4"`
	Size         int64   `json:"size"         example:"1048576"`
	URL          string  `json:"url"`
	CoverURL     *string `json:"coverUrl"`
	MimeType     string  `json:"mimetype"     example:"video/mp4"`
}

// Single godoc
//
//	@Summary		Upload one image
//	@Description	Stores an image with the configured image strategy (local, imagehost or r2).
//	@Tags			upload
//	@Accept			multipart/form-data
//	@Produce		json
//	@Security		BearerAuth
//	@Param			file	formData	file	true	"Image file"
//	@Success		200		{object}	response.Envelope{data=fileData}
//	@Failure		400		{object}	response.Envelope
//	@Failure		401		{object}	response.Envelope
//	@Failure		413		{object}	response.Envelope
//	@Router			/upload/single [post]
func (h *Handler) Single(w http.ResponseWriter, r *http.Request) {
	if !h.parseForm(w, r, h.image.maxSize+formOverhead) {
		return
	}
	headers := r.MultipartForm.File["file"]
	if len(headers) == 0 {
		response.BadRequest(w, "no file uploaded")
		return
	}

	hdr := headers[0]
	f, err := h.image.read(hdr)
	if err != nil {
		writeFileError(w, err)
		return
	}

	res := h.svc.UploadImage(r.Context(), r, f)
	if !res.Success {
		response.BadRequest(w, res.Message)
		return
	}

	userID, _ := middleware.UserID(r.Context())
	h.record(r, userID, storage.Image, f, res)
	slog.Info("image uploaded", "user_id", userID, "filename", hdr.Filename, "size", humanize.IBytes(uint64(hdr.Size)))

	response.OK(w, fileData{OriginalName: hdr.Filename, Size: hdr.Size, URL: res.URL})
}

// Multiple godoc
//
//	@Summary		Upload several images
//	@Description	Stores up to 9 images independently. Succeeds when at least one image was stored.
//	@Tags			upload
//	@Accept			multipart/form-data
//	@Produce		json
//	@Security		BearerAuth
//	@Param			files	formData	file	true	"Image files (repeat the field)"
//	@Success		200		{object}	response.Envelope{data=multipleData}
//	@Failure		400		{object}	response.Envelope{data=multipleData}
//	@Failure		401		{object}	response.Envelope
//	@Router			/upload/multiple [post]
func (h *Handler) Multiple(w http.ResponseWriter, r *http.Request) {
	if !h.parseForm(w, r, maxMultipleFiles*h.image.maxSize+formOverhead) {
		return
	}
	headers := r.MultipartForm.File["files"]
	if len(headers) == 0 {
		response.BadRequest(w, "no file uploaded")
		return
	}
	if len(headers) > maxMultipleFiles {
		response.BadRequest(w, fmt.Sprintf("at most %d files per request", maxMultipleFiles))
		return
	}

	userID, _ := middleware.UserID(r.Context())
	out := multipleData{Uploaded: []fileData{}}
	for _, hdr := range headers {
		f, err := h.image.read(hdr)
		if err != nil {
			out.Errors = append(out.Errors, fileError{OriginalName: hdr.Filename, Message: err.Error()})
			continue
		}
		res := h.svc.UploadImage(r.Context(), r, f)
		if !res.Success {
			out.Errors = append(out.Errors, fileError{OriginalName: hdr.Filename, Message: res.Message})
			continue
		}
		h.record(r, userID, storage.Image, f, res)
		out.Uploaded = append(out.Uploaded, fileData{OriginalName: hdr.Filename, Size: hdr.Size, URL: res.URL})
	}

	slog.Info("multiple images uploaded", "user_id", userID, "succeeded", len(out.Uploaded), "failed", len(out.Errors))

	if len(out.Uploaded) == 0 {
		response.ErrorWithData(w, http.StatusBadRequest, "all uploads failed", out)
		return
	}
	response.OK(w, out)
}

// Video godoc
//
//	@Summary		Upload a video
//	@Description	Stores a video with the configured video strategy (local or r2). An optional thumbnail image is stored through the image strategy; its failure does not fail the request.
//	@Tags			upload
//	@Accept			multipart/form-data
//	@Produce		json
//	@Security		BearerAuth
//	@Param			file		formData	file	true	"Video file"
//	@Param			thumbnail	formData	file	false	"Cover image"
//	@Success		200			{object}	response.Envelope{data=videoData}
//	@Failure		400			{object}	response.Envelope
//	@Failure		401			{object}	response.Envelope
//	@Failure		413			{object}	response.Envelope
//	@Router			/upload/video [post]
func (h *Handler) Video(w http.ResponseWriter, r *http.Request) {
	if !h.parseForm(w, r, h.video.maxSize+h.image.maxSize+formOverhead) {
		return
	}
	headers := r.MultipartForm.File["file"]
	if len(headers) == 0 {
		response.BadRequest(w, "no video file uploaded")
		return
	}

	hdr := headers[0]
	video, err := h.video.read(hdr)
	if err != nil {
		writeFileError(w, err)
		return
	}

	var thumbnail *File
	if thumbs := r.MultipartForm.File["thumbnail"]; len(thumbs) > 0 {
		t, err := h.image.read(thumbs[0])
		if err != nil {
			slog.Warn("ignoring invalid thumbnail", "filename", thumbs[0].Filename, "error", err)
		} else {
			thumbnail = &t
		}
	}

	res, cover := h.svc.UploadVideoWithThumbnail(r.Context(), r, video, thumbnail)
	if !res.Success {
		response.BadRequest(w, res.Message)
		return
	}

	userID, _ := middleware.UserID(r.Context())
	h.record(r, userID, storage.Video, video, res)
	data := videoData{OriginalName: hdr.Filename, Size: hdr.Size, URL: res.URL, MimeType: video.MimeType}
	if cover.Success {
		h.record(r, userID, storage.Image, *thumbnail, cover)
		data.CoverURL = &cover.URL
	}
	slog.Info("video uploaded", "user_id", userID, "url", res.URL, "cover_url", cover.URL)

	response.OK(w, data)
}

// Mine godoc
//
//	@Summary		List my uploads
//	@Description	Returns the caller's uploads, newest first.
//	@Tags			upload
//	@Produce		json
//	@Security		BearerAuth
//	@Param			limit	query		int	false	"Maximum records (default 20, max 100)"
//	@Success		200		{object}	response.Envelope{data=[]Record}
//	@Failure		401		{object}	response.Envelope
//	@Failure		500		{object}	response.Envelope
//	@Router			/upload/mine [get]
func (h *Handler) Mine(w http.ResponseWriter, r *http.Request) {
	userID, ok := middleware.UserID(r.Context())
	if !ok {
		response.Unauthorized(w, "unauthorized")
		return
	}
	if h.records == nil {
		response.OK(w, []Record{})
		return
	}

	limit := defaultListLimit
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 {
			response.BadRequest(w, "limit must be a positive integer")
			return
		}
		limit = min(n, maxListLimit)
	}

	records, err := h.records.ListByUser(r.Context(), userID, limit)
	if err != nil {
		slog.Error("list uploads failed", "user_id", userID, "error", err)
		response.InternalError(w)
		return
	}
	response.OK(w, records)
}

// parseForm limits the body to limit bytes and parses it as multipart.
// It writes the error response itself and reports whether parsing succeeded.
func (h *Handler) parseForm(w http.ResponseWriter, r *http.Request, limit int64) bool {
	r.Body = http.MaxBytesReader(w, r.Body, limit)
	if err := r.ParseMultipartForm(formMemory); err != nil {
		var maxErr *http.MaxBytesError
		if errors.As(err, &maxErr) {
			response.TooLarge(w, "request body too large")
			return false
		}
		response.BadRequest(w, "invalid multipart form")
		return false
	}
	return true
}

func (h *Handler) record(r *http.Request, userID string, category storage.Category, f File, res storage.Result) {
	if h.records == nil {
		return
	}
	rec := &Record{
		UserID:       userID,
		Category:     category.String(),
		Strategy:     res.Strategy.String(),
		URL:          res.URL,
		OriginalName: f.Filename,
		MimeType:     f.MimeType,
		Size:         int64(len(f.Content)),
	}
	if err := h.records.Create(r.Context(), rec); err != nil {
		slog.Warn("record upload failed", "user_id", userID, "url", res.URL, "error", err)
	}
}

// read loads the file behind hdr and checks it against the rule.
func (rl fileRule) read(hdr *multipart.FileHeader) (File, error) {
	if hdr.Size > rl.maxSize {
		return File{}, fmt.Errorf("%w: %s exceeds the %s limit", errTooLarge, hdr.Filename, humanize.IBytes(uint64(rl.maxSize)))
	}

	src, err := hdr.Open()
	if err != nil {
		return File{}, fmt.Errorf("open %s: %w", hdr.Filename, err)
	}
	defer src.Close()

	content, err := io.ReadAll(src)
	if err != nil {
		return File{}, fmt.Errorf("read %s: %w", hdr.Filename, err)
	}

	mimeType := detectType(hdr.Header.Get("Content-Type"), content)
	if !slices.Contains(rl.allowed, mimeType) {
		return File{}, fmt.Errorf("%w: only %s files are allowed (got %s)", errUnsupportedType, rl.kind, mimeType)
	}
	if !extensionMatches(hdr.Filename, mimeType) {
		return File{}, fmt.Errorf("%w: extension of %s does not match %s", errUnsupportedType, hdr.Filename, mimeType)
	}
	return File{Content: content, Filename: hdr.Filename, MimeType: mimeType}, nil
}

// extensionMatches reports whether filename carries an extension registered
// for mimeType. The stored name keeps this extension and the file server
// derives the served Content-Type from it.
func extensionMatches(filename, mimeType string) bool {
	ext := strings.ToLower(filepath.Ext(filename))
	if ext == "" {
		return false
	}
	if _, subtype, ok := strings.Cut(mimeType, "/"); ok && ext == "."+subtype {
		return true
	}
	if m := mimetype.Lookup(mimeType); m != nil && m.Extension() == ext {
		return true
	}
	exts, _ := mime.ExtensionsByType(mimeType)
	return slices.Contains(exts, ext)
}

// detectType returns the declared media type without parameters, sniffing the
// content when the client sent nothing useful.
func detectType(declared string, content []byte) string {
	mt := baseType(declared)
	if mt == "" || mt == "application/octet-stream" {
		mt = baseType(mimetype.Detect(content).String())
	}
	return mt
}

func baseType(contentType string) string {
	if contentType == "" {
		return ""
	}
	mt, _, err := mime.ParseMediaType(contentType)
	if err != nil {
		mt, _, _ = strings.Cut(contentType, ";")
	}
	return strings.ToLower(strings.TrimSpace(mt))
}

func writeFileError(w http.ResponseWriter, err error) {
	if errors.Is(err, errTooLarge) {
		response.TooLarge(w, err.Error())
		return
	}
	response.BadRequest(w, err.Error())
}
