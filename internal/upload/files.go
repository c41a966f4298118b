package upload

import (
	"mime"
	"net/http"
	"path"
	"path/filepath"
	"strings"

	"github.com/gabriel-vasile/mimetype"
	"github.com/go-chi/chi/v5"

	"github.com/xiaoshiliu/mediaservice/internal/storage"
)

// ServeLocal mounts read-only file servers for locally stored uploads at
// /{dir}/, matching the URLs the local backend generates.
// Directory listings are not served. Only image and video types are served
// inline; anything else goes out as an octet-stream attachment.
func ServeLocal(r chi.Router, stores ...*storage.LocalStorage) {
	for _, s := range stores {
		prefix := "/" + s.Dir() + "/"
		root := s.Path()
		fs := http.StripPrefix(prefix, http.FileServer(http.Dir(root)))
		r.Get(prefix+"*", func(w http.ResponseWriter, r *http.Request) {
			if strings.HasSuffix(r.URL.Path, "/") {
				http.NotFound(w, r)
				return
			}
			w.Header().Set("X-Content-Type-Options", "nosniff")
			if ct := contentType(root, chi.URLParam(r, "*")); isMedia(ct) {
				w.Header().Set("Content-Type", ct)
			} else {
				w.Header().Set("Content-Type", "application/octet-stream")
				w.Header().Set("Content-Disposition", "attachment")
			}
			fs.ServeHTTP(w, r)
		})
	}
}

// contentType returns the type for the stored file name, sniffing the file
// when the extension is not in the system table.
func contentType(root, name string) string {
	name = path.Clean("/" + name)
	if ct := mime.TypeByExtension(path.Ext(name)); ct != "" {
		return ct
	}
	m, err := mimetype.DetectFile(filepath.Join(root, filepath.FromSlash(name)))
	if err != nil {
		return ""
	}
	return m.String()
}

func isMedia(contentType string) bool {
	mt := baseType(contentType)
	if mt == "image/svg+xml" {
		return false
	}
	return strings.HasPrefix(mt, "image/") || strings.HasPrefix(mt, "video/")
}
