// Package fsresource exposes the files under a directory as MCP resources.
//
// A Source registers one resource per regular file in a registry. Sync
// reconciles the registry with the directory; Watch keeps it reconciled as
// files appear and disappear. Every change flows through the registry, so
// connected clients receive notifications/resources/list_changed.
//
// Symbolic links are not listed, and reads refuse any path that resolves
// outside the root.
package fsresource

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"io/fs"
	"mime"
	"net/url"
	"os"
	"path"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"
	"unicode/utf8"

	"github.com/fsnotify/fsnotify"

	mcperrors "github.com/ajitpratap0/mcp-engine/pkg/errors"
	"github.com/ajitpratap0/mcp-engine/pkg/logging"
	"github.com/ajitpratap0/mcp-engine/pkg/protocol"
	"github.com/ajitpratap0/mcp-engine/pkg/registry"
)

const (
	// DefaultBaseURI prefixes resource URIs when no base is configured.
	DefaultBaseURI = "file://"

	// DefaultDebounce is how long Watch waits for a burst of events to settle.
	DefaultDebounce = 100 * time.Millisecond

	// DefaultMaxFileSize caps the size of a file served by a read.
	DefaultMaxFileSize int64 = 10 << 20
)

// Source mirrors a directory tree into a registry.
type Source struct {
	root        string
	baseURI     string
	registry    *registry.Registry
	logger      logging.Logger
	debounce    time.Duration
	maxFileSize int64
	hidden      bool

	mu    sync.Mutex
	owned map[string]struct{}
}

// Option configures a Source.
type Option func(*Source)

// WithBaseURI sets the URI prefix, such as "file://" or "docs://handbook".
func WithBaseURI(base string) Option {
	return func(s *Source) {
		s.baseURI = base
	}
}

// WithLogger sets the logger.
func WithLogger(logger logging.Logger) Option {
	return func(s *Source) {
		s.logger = logger
	}
}

// WithDebounce sets how long Watch coalesces events before syncing.
func WithDebounce(d time.Duration) Option {
	return func(s *Source) {
		s.debounce = d
	}
}

// WithMaxFileSize sets the largest file a read will serve.
func WithMaxFileSize(n int64) Option {
	return func(s *Source) {
		s.maxFileSize = n
	}
}

// WithHidden includes dot files and dot directories.
func WithHidden(include bool) Option {
	return func(s *Source) {
		s.hidden = include
	}
}

// New creates a source for root. The root must be an existing directory;
// symlinks in it are resolved once here.
func New(root string, reg *registry.Registry, options ...Option) (*Source, error) {
	if reg == nil {
		return nil, errors.New("fsresource: nil registry")
	}
	abs, err := filepath.Abs(root)
	if err != nil {
		return nil, fmt.Errorf("fsresource: %w", err)
	}
	real, err := filepath.EvalSymlinks(abs)
	if err != nil {
		return nil, fmt.Errorf("fsresource: %w", err)
	}
	info, err := os.Stat(real)
	if err != nil {
		return nil, fmt.Errorf("fsresource: %w", err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("fsresource: %s is not a directory", root)
	}

	s := &Source{
		root:        real,
		baseURI:     DefaultBaseURI,
		registry:    reg,
		debounce:    DefaultDebounce,
		maxFileSize: DefaultMaxFileSize,
		owned:       make(map[string]struct{}),
	}
	for _, option := range options {
		option(s)
	}
	if s.logger == nil {
		s.logger = logging.NewNop()
	}
	s.logger = s.logger.WithFields(logging.Component("fsresource"), logging.String("root", s.root))
	return s, nil
}

// Root returns the resolved root directory.
func (s *Source) Root() string { return s.root }

// URI returns the resource URI for a slash-separated path relative to the
// root.
func (s *Source) URI(rel string) string {
	segs := strings.Split(rel, "/")
	for i, seg := range segs {
		segs[i] = url.PathEscape(seg)
	}
	// a bare file scheme means real file URIs under the root
	if s.baseURI == DefaultBaseURI || s.baseURI == "file:///" {
		return "file://" + filepath.ToSlash(s.root) + "/" + strings.Join(segs, "/")
	}
	base := s.baseURI
	if !strings.HasSuffix(base, "/") {
		base += "/"
	}
	return base + strings.Join(segs, "/")
}

func (s *Source) relFromURI(uri string) (string, bool) {
	prefix := strings.TrimSuffix(s.URI("x"), "x")
	if !strings.HasPrefix(uri, prefix) {
		return "", false
	}
	segs := strings.Split(strings.TrimPrefix(uri, prefix), "/")
	for i, seg := range segs {
		dec, err := url.PathUnescape(seg)
		if err != nil {
			return "", false
		}
		segs[i] = dec
	}
	rel := path.Clean(strings.Join(segs, "/"))
	if !validPath(rel) {
		return "", false
	}
	return rel, true
}

// Sync registers every file currently under the root and unregisters the
// ones that vanished since the last sync. Resources registered by someone
// else under the same URI are left alone.
func (s *Source) Sync(ctx context.Context) error {
	files, err := s.scan(ctx)
	if err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	seen := make(map[string]struct{}, len(files))
	var added, removed int
	for _, desc := range files {
		seen[desc.URI] = struct{}{}
		if _, ok := s.owned[desc.URI]; ok {
			continue
		}
		if err := s.registry.RegisterResource(desc, s.read); err != nil {
			if errors.Is(err, registry.ErrDuplicate) {
				s.logger.Warn("resource uri already taken", logging.String("uri", desc.URI))
				continue
			}
			return err
		}
		s.owned[desc.URI] = struct{}{}
		added++
	}

	for uri := range s.owned {
		if _, ok := seen[uri]; ok {
			continue
		}
		s.registry.Unregister(registry.Resources, uri)
		delete(s.owned, uri)
		removed++
	}

	if added > 0 || removed > 0 {
		s.logger.Debug("resources synced",
			logging.Int("added", added),
			logging.Int("removed", removed),
			logging.Int("total", len(s.owned)))
	}
	return nil
}

// Close unregisters every resource the source added.
func (s *Source) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	for uri := range s.owned {
		s.registry.Unregister(registry.Resources, uri)
	}
	s.owned = make(map[string]struct{})
}

func (s *Source) scan(ctx context.Context) ([]protocol.Resource, error) {
	var out []protocol.Resource
	err := filepath.WalkDir(s.root, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			return nil
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if p == s.root {
			return nil
		}
		if !s.hidden && strings.HasPrefix(d.Name(), ".") {
			if d.IsDir() {
				return filepath.SkipDir
			}
			return nil
		}
		if !d.Type().IsRegular() {
			return nil
		}
		rel, err := filepath.Rel(s.root, p)
		if err != nil {
			return nil
		}
		rel = filepath.ToSlash(rel)
		if !validPath(rel) {
			return nil
		}
		out = append(out, protocol.Resource{
			URI:      s.URI(rel),
			Name:     rel,
			MimeType: mimeType(rel),
		})
		return nil
	})
	if err != nil {
		return nil, err
	}
	sort.Slice(out, func(i, j int) bool { return out[i].URI < out[j].URI })
	return out, nil
}

func (s *Source) read(ctx context.Context, uri string) ([]protocol.ResourceContents, error) {
	rel, ok := s.relFromURI(uri)
	if !ok {
		return nil, mcperrors.ResourceNotFound(uri)
	}

	real, err := filepath.EvalSymlinks(filepath.Join(s.root, filepath.FromSlash(rel)))
	if err != nil || !within(real, s.root) {
		return nil, mcperrors.ResourceNotFound(uri)
	}
	info, err := os.Stat(real)
	if err != nil || !info.Mode().IsRegular() {
		return nil, mcperrors.ResourceNotFound(uri)
	}
	if info.Size() > s.maxFileSize {
		return nil, mcperrors.Application(mcperrors.CodeApplicationMin, fmt.Sprintf("resource %s is larger than %d bytes", uri, s.maxFileSize), nil)
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	data, err := os.ReadFile(real)
	if err != nil {
		return nil, fmt.Errorf("read failed: %w", err)
	}
	return []protocol.ResourceContents{contentsFor(uri, mimeType(rel), data)}, nil
}

// Watch syncs once, then again after every burst of filesystem events,
// until ctx is done. New directories are watched as they appear.
func (s *Source) Watch(ctx context.Context) error {
	if err := s.Sync(ctx); err != nil {
		return err
	}

	w, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("fsresource: %w", err)
	}
	defer func() {
		_ = w.Close()
	}()

	if err := s.watchTree(w, s.root); err != nil {
		return err
	}

	timer := time.NewTimer(s.debounce)
	if !timer.Stop() {
		<-timer.C
	}
	pending := false

	for {
		select {
		case <-ctx.Done():
			timer.Stop()
			return nil

		case ev, ok := <-w.Events:
			if !ok {
				return nil
			}
			if ev.Has(fsnotify.Create) {
				if info, err := os.Stat(ev.Name); err == nil && info.IsDir() {
					if err := s.watchTree(w, ev.Name); err != nil {
						s.logger.Warn("failed to watch directory", logging.String("path", ev.Name), logging.ErrorField(err))
					}
				}
			}
			if !ev.Has(fsnotify.Create) && !ev.Has(fsnotify.Remove) && !ev.Has(fsnotify.Rename) {
				continue
			}
			if !pending {
				pending = true
				timer.Reset(s.debounce)
			}

		case <-timer.C:
			pending = false
			if err := s.Sync(ctx); err != nil && ctx.Err() == nil {
				s.logger.Error("resync failed", logging.ErrorField(err))
			}

		case err, ok := <-w.Errors:
			if !ok {
				return nil
			}
			s.logger.Warn("watcher error", logging.ErrorField(err))
		}
	}
}

func (s *Source) watchTree(w *fsnotify.Watcher, dir string) error {
	return filepath.WalkDir(dir, func(p string, d fs.DirEntry, err error) error {
		if err != nil || !d.IsDir() {
			return nil
		}
		if p != s.root && !s.hidden && strings.HasPrefix(d.Name(), ".") {
			return filepath.SkipDir
		}
		return w.Add(p)
	})
}

func contentsFor(uri, mimeType string, data []byte) protocol.ResourceContents {
	if utf8.Valid(data) {
		return protocol.ResourceContents{URI: uri, MimeType: mimeType, Text: string(data)}
	}
	return protocol.ResourceContents{URI: uri, MimeType: mimeType, Blob: base64.StdEncoding.EncodeToString(data)}
}

func mimeType(name string) string {
	if mt := mime.TypeByExtension(strings.ToLower(path.Ext(name))); mt != "" {
		return mt
	}
	return "application/octet-stream"
}

func validPath(p string) bool {
	return fs.ValidPath(p) && p != "." && !strings.Contains(p, ":")
}

// within reports whether target is root or lies below it.
func within(target, root string) bool {
	rel, err := filepath.Rel(root, target)
	if err != nil {
		return false
	}
	return rel == "." || (rel != ".." && !strings.HasPrefix(rel, ".."+string(os.PathSeparator)))
}
