package storage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
)

const metaSuffix = ".meta.json"

// ErrInvalidKey is returned for keys that escape the storage root.
var ErrInvalidKey = errors.New("invalid object key")

// UploadedFile describes a stored object.
type UploadedFile struct {
	FileURL string `json:"fileUrl"`
	FileKey string `json:"fileKey"`
	Size    int64  `json:"size"`
}

type objectMeta struct {
	Filename   string            `json:"filename"`
	MimeType   string            `json:"mimeType"`
	Metadata   map[string]string `json:"metadata,omitempty"`
	UploadedAt time.Time         `json:"uploadedAt"`
}

// ObjectStore keeps uploaded artifacts under a base directory and exposes them
// below a public URL prefix. Keys are slash separated paths relative to the base.
type ObjectStore struct {
	baseDir   string
	publicURL string
}

// NewObjectStore ensures the base directory exists and returns a handle.
func NewObjectStore(baseDir, publicURL string) (*ObjectStore, error) {
	if baseDir == "" {
		baseDir = "./uploads"
	}
	if err := os.MkdirAll(baseDir, 0o755); err != nil {
		return nil, fmt.Errorf("create storage directory: %w", err)
	}
	return &ObjectStore{baseDir: baseDir, publicURL: strings.TrimRight(publicURL, "/")}, nil
}

// Dir returns the base directory, used to serve files over HTTP.
func (s *ObjectStore) Dir() string {
	return s.baseDir
}

// UploadFile streams r into folder and returns its public URL and key.
func (s *ObjectStore) UploadFile(ctx context.Context, r io.Reader, filename, mimeType, folder string, metadata map[string]string) (*UploadedFile, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	now := time.Now().UTC()
	key := path.Join(sanitizeFolder(folder), now.Format("2006/01"), fmt.Sprintf("%s-%s", uuid.NewString(), sanitizeName(filename)))
	target, err := s.resolve(key)
	if err != nil {
		return nil, err
	}
	if err := os.MkdirAll(filepath.Dir(target), 0o755); err != nil {
		return nil, fmt.Errorf("prepare storage directory: %w", err)
	}
	file, err := os.Create(target)
	if err != nil {
		return nil, fmt.Errorf("create object: %w", err)
	}
	size, err := io.Copy(file, r)
	closeErr := file.Close()
	if err == nil {
		err = closeErr
	}
	if err != nil {
		_ = os.Remove(target)
		return nil, fmt.Errorf("write object: %w", err)
	}

	meta, err := json.Marshal(objectMeta{Filename: filename, MimeType: mimeType, Metadata: metadata, UploadedAt: now})
	if err != nil {
		return nil, fmt.Errorf("marshal object metadata: %w", err)
	}
	if err := os.WriteFile(target+metaSuffix, meta, 0o644); err != nil {
		return nil, fmt.Errorf("write object metadata: %w", err)
	}

	return &UploadedFile{FileURL: s.URLFor(key), FileKey: key, Size: size}, nil
}

// Open returns a reader over the stored object.
func (s *ObjectStore) Open(key string) (io.ReadCloser, error) {
	target, err := s.resolve(key)
	if err != nil {
		return nil, err
	}
	file, err := os.Open(target)
	if err != nil {
		return nil, fmt.Errorf("open object: %w", err)
	}
	return file, nil
}

// DeleteFile removes an object and its metadata. Missing objects are not an error.
func (s *ObjectStore) DeleteFile(ctx context.Context, key string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	target, err := s.resolve(key)
	if err != nil {
		return err
	}
	for _, p := range []string{target, target + metaSuffix} {
		if err := os.Remove(p); err != nil && !os.IsNotExist(err) {
			return fmt.Errorf("delete object: %w", err)
		}
	}
	return nil
}

// URLFor builds the public URL of a key.
func (s *ObjectStore) URLFor(key string) string {
	return s.publicURL + "/" + strings.TrimLeft(key, "/")
}

// KeyFromURL extracts the key of a URL issued by this store. It reports false for
// URLs outside the configured public prefix.
func (s *ObjectStore) KeyFromURL(rawURL string) (string, bool) {
	if rawURL == "" || s.publicURL == "" {
		return "", false
	}
	prefix := s.publicURL + "/"
	if !strings.HasPrefix(rawURL, prefix) {
		return "", false
	}
	key := strings.TrimPrefix(rawURL, prefix)
	if i := strings.IndexAny(key, "?#"); i >= 0 {
		key = key[:i]
	}
	if key == "" {
		return "", false
	}
	return key, true
}

func (s *ObjectStore) resolve(key string) (string, error) {
	clean := path.Clean("/" + key)
	if clean == "/" || strings.Contains(key, "..") {
		return "", ErrInvalidKey
	}
	return filepath.Join(s.baseDir, filepath.FromSlash(strings.TrimPrefix(clean, "/"))), nil
}

func sanitizeFolder(folder string) string {
	parts := strings.Split(folder, "/")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = sanitizeName(p); p != "" && p != "file" {
			out = append(out, p)
		}
	}
	if len(out) == 0 {
		return "misc"
	}
	return strings.Join(out, "/")
}

func sanitizeName(raw string) string {
	raw = strings.ToLower(filepath.Base(strings.TrimSpace(raw)))
	var b strings.Builder
	for _, r := range raw {
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9', r == '.', r == '-', r == '_':
			b.WriteRune(r)
		default:
			b.WriteRune('_')
		}
	}
	name := strings.Trim(b.String(), "._")
	if name == "" {
		return "file"
	}
	return name
}
