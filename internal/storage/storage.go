// Package storage keeps uploaded blobs such as dish and restaurant thumbnails.
package storage

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"net/http"
	"os"
	"path"
	"path/filepath"
	"strings"

	"github.com/google/uuid"
)

var (
	// ErrInvalidPath indicates an object path outside the storage root.
	ErrInvalidPath = errors.New("storage: invalid object path")
	// ErrTooLarge indicates a blob above the upload limit.
	ErrTooLarge = errors.New("storage: object too large")
	// ErrUnsupportedType indicates an upload that is not an image.
	ErrUnsupportedType = errors.New("storage: unsupported file type")
)

var imageExtensions = map[string]bool{".png": true, ".jpg": true, ".jpeg": true, ".gif": true, ".webp": true}

// MaxObjectSize bounds a single upload.
const MaxObjectSize = 5 << 20

// Object locates a stored blob.
type Object struct {
	URL  string `json:"url"`
	Path string `json:"path"`
}

// Empty reports whether the object refers to nothing.
func (o Object) Empty() bool {
	return o.Path == ""
}

// File is an upload received from a browser.
type File struct {
	Name   string
	Body   io.Reader
	closer io.Closer
}

// Close releases the upload.
func (f *File) Close() error {
	if f == nil || f.closer == nil {
		return nil
	}
	return f.closer.Close()
}

// FormImage returns the image uploaded in field, or nil when none was sent.
func FormImage(r *http.Request, field string) (*File, error) {
	file, header, err := r.FormFile(field)
	if errors.Is(err, http.ErrMissingFile) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	if header.Size == 0 {
		_ = file.Close()
		return nil, nil
	}
	if header.Size > MaxObjectSize {
		_ = file.Close()
		return nil, ErrTooLarge
	}
	if !imageExtensions[strings.ToLower(path.Ext(header.Filename))] {
		_ = file.Close()
		return nil, ErrUnsupportedType
	}
	return &File{Name: header.Filename, Body: file, closer: file}, nil
}

// Uploader stores blobs.
type Uploader interface {
	Upload(ctx context.Context, folder, owner, name string, blob io.Reader) (Object, error)
}

// Deleter removes blobs.
type Deleter interface {
	Delete(ctx context.Context, objectPath string) error
}

// Filesystem stores objects below a root directory and serves them under a URL prefix.
type Filesystem struct {
	root   string
	prefix string
}

// NewFilesystem prepares root and returns the store.
func NewFilesystem(root, urlPrefix string) (*Filesystem, error) {
	if err := os.MkdirAll(root, 0o755); err != nil {
		return nil, fmt.Errorf("storage: prepare root: %w", err)
	}
	prefix := "/" + strings.Trim(urlPrefix, "/")
	return &Filesystem{root: root, prefix: prefix}, nil
}

// Upload stores blob as folder/owner/<unique>-name.
func (f *Filesystem) Upload(ctx context.Context, folder, owner, name string, blob io.Reader) (Object, error) {
	if err := ctx.Err(); err != nil {
		return Object{}, err
	}
	base := sanitizeName(name)
	objectPath := path.Join(sanitizeSegment(folder), sanitizeSegment(owner), uuid.NewString()+"-"+base)
	target, err := f.resolve(objectPath)
	if err != nil {
		return Object{}, err
	}
	if err := os.MkdirAll(filepath.Dir(target), 0o755); err != nil {
		return Object{}, fmt.Errorf("storage: create folder: %w", err)
	}
	out, err := os.OpenFile(target, os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0o644)
	if err != nil {
		return Object{}, fmt.Errorf("storage: create object: %w", err)
	}
	n, err := io.Copy(out, io.LimitReader(blob, MaxObjectSize+1))
	closeErr := out.Close()
	if err == nil {
		err = closeErr
	}
	if err == nil && n > MaxObjectSize {
		err = ErrTooLarge
	}
	if err != nil {
		_ = os.Remove(target)
		if errors.Is(err, ErrTooLarge) {
			return Object{}, err
		}
		return Object{}, fmt.Errorf("storage: write object: %w", err)
	}
	return Object{URL: f.URL(objectPath), Path: objectPath}, nil
}

// Delete removes the object at objectPath. Missing objects are not an error.
func (f *Filesystem) Delete(ctx context.Context, objectPath string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	target, err := f.resolve(objectPath)
	if err != nil {
		return err
	}
	if err := os.Remove(target); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("storage: delete object: %w", err)
	}
	return nil
}

// URL returns the public URL of objectPath.
func (f *Filesystem) URL(objectPath string) string {
	return path.Join(f.prefix, objectPath)
}

// Prefix is the URL prefix objects are served under.
func (f *Filesystem) Prefix() string {
	return f.prefix
}

// Handler serves stored objects read-only. Mount it under Prefix.
func (f *Filesystem) Handler() http.Handler {
	return http.StripPrefix(f.prefix, http.FileServer(noListing{http.Dir(f.root)}))
}

func (f *Filesystem) resolve(objectPath string) (string, error) {
	clean := path.Clean("/" + objectPath)
	if objectPath == "" || clean == "/" || clean != "/"+strings.TrimPrefix(objectPath, "/") {
		return "", ErrInvalidPath
	}
	return filepath.Join(f.root, filepath.FromSlash(clean)), nil
}

func sanitizeSegment(s string) string {
	s = strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '-', r == '_':
			return r
		default:
			return '_'
		}
	}, s)
	if s == "" || strings.Trim(s, "_") == "" {
		return "_"
	}
	return s
}

func sanitizeName(name string) string {
	name = path.Base(strings.ReplaceAll(name, "\\", "/"))
	ext := path.Ext(name)
	stem := strings.TrimSuffix(name, ext)
	return sanitizeSegment(stem) + strings.ToLower(sanitizeExt(ext))
}

func sanitizeExt(ext string) string {
	if ext == "" {
		return ""
	}
	return "." + sanitizeSegment(strings.TrimPrefix(ext, "."))
}

type noListing struct {
	fs http.FileSystem
}

func (n noListing) Open(name string) (http.File, error) {
	file, err := n.fs.Open(name)
	if err != nil {
		return nil, err
	}
	info, err := file.Stat()
	if err != nil {
		_ = file.Close()
		return nil, err
	}
	if info.IsDir() {
		_ = file.Close()
		return nil, fs.ErrNotExist
	}
	return file, nil
}
