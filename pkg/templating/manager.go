package templating

import (
	"bytes"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"github.com/CTAG07/markus/pkg/markus"
)

// TagInfo describes one loaded tag name.
type TagInfo struct {
	Name    string `json:"name"`
	Context string `json:"context"`
	Kind    string `json:"kind"`
	File    string `json:"file"`
}

// TagManager is the central controller for declarative tags.
// It loads tag files from its directory, registers the tags with a
// markus.Registry and replaces them on every Refresh.
// All methods are concurrent-safe.
type TagManager struct {
	logger   *slog.Logger
	config   *TagConfig
	registry *markus.Registry
	loaded   []TagInfo
	// shadowed holds the entries loaded tags replaced, keyed by context and name.
	shadowed    map[tagKey]*markus.Entry
	fingerprint string
	mu          sync.RWMutex
}

type tagKey struct{ context, name string }

// NewTagManager creates a TagManager that registers into registry and
// performs an initial Refresh. A nil logger discards all output.
func NewTagManager(logger *slog.Logger, registry *markus.Registry, config *TagConfig) (*TagManager, error) {
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	if config == nil {
		def := DefaultConfig()
		config = &def
	}
	tm := &TagManager{
		logger:   logger,
		config:   config,
		registry: registry,
	}
	if err := tm.Refresh(); err != nil {
		return nil, err
	}
	logger.Info("Tag manager initialized", "dir", config.TagDir)
	return tm, nil
}

// SetConfig applies a new configuration. It takes effect on the next Refresh.
func (tm *TagManager) SetConfig(config *TagConfig) {
	tm.mu.Lock()
	defer tm.mu.Unlock()
	tm.config = config
}

// SetLogger sets the logger used by the manager.
func (tm *TagManager) SetLogger(logger *slog.Logger) {
	tm.mu.Lock()
	defer tm.mu.Unlock()
	tm.logger = logger
}

// Refresh reloads every tag file from the tag directory. All files are
// compiled before anything is registered; if one fails the previously loaded
// tags stay in place and the error is returned.
func (tm *TagManager) Refresh() error {
	tm.mu.Lock()
	defer tm.mu.Unlock()

	pattern := filepath.Join(tm.config.TagDir, "*.tag.yaml")
	tm.logger.Info("Loading tag files...", "pattern", pattern)

	files, err := filepath.Glob(pattern)
	if err != nil {
		tm.logger.Error("invalid tag file pattern", "error", err)
		return err
	}
	sort.Strings(files)

	var tagsToLoad []compiled
	h := sha256.New()
	for _, path := range files {
		data, err := os.ReadFile(path)
		if err != nil {
			tm.logger.Error("failed to read tag file", "file", path, "error", err)
			return err
		}
		c, err := tm.loadFile(filepath.Base(path), data)
		if err != nil {
			tm.logger.Error("failed to load tag file", "file", path, "error", err)
			return err
		}
		tagsToLoad = append(tagsToLoad, c...)
		h.Write([]byte(filepath.Base(path)))
		h.Write([]byte{0})
		h.Write(data)
		h.Write([]byte{0})
	}
	if len(files) == 0 {
		tm.logger.Warn("No tag files found matching pattern", "pattern", pattern)
	}

	tm.restoreShadowed()
	var loaded []TagInfo
	for _, c := range tagsToLoad {
		for _, name := range c.names {
			key := tagKey{c.context, name}
			if _, seen := tm.shadowed[key]; !seen {
				tm.shadowed[key] = tm.registry.Get(c.context, name)
			}
			if err := tm.registry.Register(name, c.def); err != nil {
				return fmt.Errorf("%s: registering %q: %w", c.file, name, err)
			}
			loaded = append(loaded, TagInfo{Name: name, Context: c.context, Kind: c.kind, File: c.file})
		}
	}
	tm.loaded = loaded
	tm.fingerprint = hex.EncodeToString(h.Sum(nil))
	tm.logger.Info("Loaded tag files", "files", len(files), "tags", len(loaded))
	return nil
}

// restoreShadowed removes the loaded tags and puts back what they replaced.
func (tm *TagManager) restoreShadowed() {
	for _, info := range tm.loaded {
		tm.registry.Unregister(info.Context, info.Name)
	}
	for key, prev := range tm.shadowed {
		if prev != nil {
			tm.registry.Set(key.context, key.name, prev)
		}
	}
	tm.shadowed = make(map[tagKey]*markus.Entry)
}

func (tm *TagManager) loadFile(name string, data []byte) ([]compiled, error) {
	tf, err := decodeTagFile(bytes.NewReader(data), tm.config.StrictFiles)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", name, err)
	}
	return tm.compile(name, tf)
}

// Render parses and renders text with the manager's registry. It holds the
// read lock so a concurrent Refresh never swaps tags mid-render.
func (tm *TagManager) Render(text string, opts markus.Options) (string, error) {
	out, _, err := tm.RenderFingerprint(text, opts)
	return out, err
}

// RenderFingerprint is Render that also returns the Fingerprint the output was
// rendered with.
func (tm *TagManager) RenderFingerprint(text string, opts markus.Options) (string, string, error) {
	tm.mu.RLock()
	defer tm.mu.RUnlock()
	out, err := tm.registry.Render(text, opts)
	return out, tm.fingerprint, err
}

// Fingerprint identifies the tag files loaded by the last successful Refresh.
// It changes whenever a file is added, removed or edited.
func (tm *TagManager) Fingerprint() string {
	tm.mu.RLock()
	defer tm.mu.RUnlock()
	return tm.fingerprint
}

// RenderString compiles a single tag file held in memory and renders text
// with it, without touching the registry. This is ideal for previewing a tag
// file before saving it to the tag directory.
func (tm *TagManager) RenderString(tagFile, text string, opts markus.Options) (string, error) {
	tm.mu.RLock()
	tf, err := decodeTagFile(strings.NewReader(tagFile), tm.config.StrictFiles)
	if err != nil {
		tm.mu.RUnlock()
		return "", fmt.Errorf("failed to parse tag file: %w", err)
	}
	tagsToLoad, err := tm.compile("<preview>", tf)
	tm.mu.RUnlock()
	if err != nil {
		return "", err
	}

	preview := markus.NewRegistry()
	for _, name := range tm.registry.Encoders() {
		if _, enc := tm.registry.Encoder(name); enc != nil {
			_ = preview.Encode(name, enc)
		}
	}
	for _, c := range tagsToLoad {
		for _, name := range c.names {
			if err = preview.Register(name, c.def); err != nil {
				return "", err
			}
		}
	}
	return preview.Render(text, opts)
}

// GetConfig returns a copy of the current configuration.
func (tm *TagManager) GetConfig() TagConfig {
	tm.mu.RLock()
	defer tm.mu.RUnlock()
	return *tm.config
}

// GetTags returns the tags loaded by the last successful Refresh.
func (tm *TagManager) GetTags() []TagInfo {
	tm.mu.RLock()
	defer tm.mu.RUnlock()
	return append([]TagInfo(nil), tm.loaded...)
}

// GetTagNames returns the sorted names of the loaded tags.
func (tm *TagManager) GetTagNames() []string {
	tm.mu.RLock()
	defer tm.mu.RUnlock()
	names := make([]string, 0, len(tm.loaded))
	for _, info := range tm.loaded {
		names = append(names, info.Name)
	}
	sort.Strings(names)
	return names
}

// GetTagDir returns the directory the TagManager loads from.
func (tm *TagManager) GetTagDir() string {
	tm.mu.RLock()
	defer tm.mu.RUnlock()
	return tm.config.TagDir
}

// Registry returns the registry the manager registers into.
func (tm *TagManager) Registry() *markus.Registry {
	return tm.registry
}

// EnsureTagDir creates the tag directory when it does not exist.
func (tm *TagManager) EnsureTagDir() error {
	dir := tm.GetTagDir()
	if _, err := os.Stat(dir); errors.Is(err, fs.ErrNotExist) {
		tm.logger.Info("Creating tag directory", "dir", dir)
		return os.MkdirAll(dir, 0755)
	} else if err != nil {
		return err
	}
	return nil
}
