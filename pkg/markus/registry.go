package markus

import (
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"
)

const (
	// DefaultContext is the context used when none is named.
	DefaultContext = "default"
	// RootTag is the entry that renders the implicit root of every document.
	RootTag = "root"
	// UndefinedTag is the entry used for tags that have no registration.
	UndefinedTag = "undefined"
)

var (
	ErrNoHandler   = errors.New("markus: definition has no handler")
	ErrNoTagNames  = errors.New("markus: no tag names given")
	ErrNilEncoder  = errors.New("markus: encoder is nil")
	ErrNoEncoderID = errors.New("markus: encoder name is empty")
)

// Handler renders one tag from its already rendered content.
type Handler interface {
	Render(c *Call) (string, error)
}

// HandlerFunc adapts a function to the Handler interface.
type HandlerFunc func(c *Call) (string, error)

func (f HandlerFunc) Render(c *Call) (string, error) {
	return f(c)
}

// Definition describes a tag to Register.
type Definition struct {
	Handler Handler
	// Attributes declares named parameters, e.g. `lang` or `id, class="box"`.
	Attributes string
	// NonNesting tags capture everything up to their closing tag as raw text.
	NonNesting bool
	// Context defaults to DefaultContext.
	Context string
	// Initialize runs once per node during parsing, after attribute merge.
	Initialize func(n *Node)
}

// Entry is a compiled Definition as stored in the registry.
type Entry struct {
	Handler    Handler
	Schema     *Schema
	NonNesting bool
	Context    string
	Initialize func(n *Node)
}

// Encoder transforms literal text at render time.
type Encoder func(string) string

// Registry maps tag names to entries, per context, and holds the named
// encoders. All methods are safe for concurrent use.
type Registry struct {
	mu       sync.RWMutex
	contexts map[string]map[string]*Entry
	encoders map[string]Encoder
}

// NewRegistry returns a registry holding the root and undefined entries and
// the "none" and "html" encoders.
func NewRegistry() *Registry {
	r := &Registry{
		contexts: make(map[string]map[string]*Entry),
		encoders: map[string]Encoder{
			EncodingNone: encodeNone,
			EncodingHTML: encodeHTML,
		},
	}
	r.contexts[DefaultContext] = map[string]*Entry{
		RootTag:      {Handler: HandlerFunc(renderRoot), Context: DefaultContext},
		UndefinedTag: {Handler: HandlerFunc(renderUndefined), Context: DefaultContext},
	}
	return r
}

// Register stores def under every name of the comma separated list. Names are
// matched case-insensitively. A later registration of the same name in the
// same context replaces the earlier one.
func (r *Registry) Register(names string, def Definition) error {
	if def.Handler == nil {
		return fmt.Errorf("%w: %q", ErrNoHandler, names)
	}
	var keys []string
	for _, n := range strings.Split(names, ",") {
		if n = strings.ToLower(strings.TrimSpace(n)); n != "" {
			keys = append(keys, n)
		}
	}
	if len(keys) == 0 {
		return ErrNoTagNames
	}

	ctx := def.Context
	if ctx == "" {
		ctx = DefaultContext
	}
	entry := &Entry{
		Handler:    def.Handler,
		Schema:     ParseSchema(def.Attributes),
		NonNesting: def.NonNesting,
		Context:    ctx,
		Initialize: def.Initialize,
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	tags, ok := r.contexts[ctx]
	if !ok {
		tags = make(map[string]*Entry)
		r.contexts[ctx] = tags
	}
	for _, k := range keys {
		tags[k] = entry
	}
	return nil
}

// RegisterAll registers every definition of the map. Keys may themselves be
// comma separated name lists. It stops at the first error.
func (r *Registry) RegisterAll(defs map[string]Definition) error {
	keys := make([]string, 0, len(defs))
	for k := range defs {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		if err := r.Register(k, defs[k]); err != nil {
			return err
		}
	}
	return nil
}

// RegisterFunc registers a bare render function in the default context.
func (r *Registry) RegisterFunc(names string, fn func(c *Call) (string, error)) error {
	if fn == nil {
		return r.Register(names, Definition{})
	}
	return r.Register(names, Definition{Handler: HandlerFunc(fn)})
}

// Unregister removes names from a context. The built-in root and undefined
// entries of the default context cannot be removed.
func (r *Registry) Unregister(context string, names ...string) {
	if context == "" {
		context = DefaultContext
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	tags, ok := r.contexts[context]
	if !ok {
		return
	}
	for _, n := range names {
		n = strings.ToLower(strings.TrimSpace(n))
		if context == DefaultContext && (n == RootTag || n == UndefinedTag) {
			continue
		}
		delete(tags, n)
	}
	if len(tags) == 0 && context != DefaultContext {
		delete(r.contexts, context)
	}
}

// Get returns the entry registered under name in exactly that context, or
// nil. Unlike Lookup it never falls back.
func (r *Registry) Get(context, name string) *Entry {
	if context == "" {
		context = DefaultContext
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.contexts[context][strings.ToLower(strings.TrimSpace(name))]
}

// Set stores an entry previously obtained from Get under name.
func (r *Registry) Set(context, name string, e *Entry) {
	if context == "" {
		context = DefaultContext
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	tags, ok := r.contexts[context]
	if !ok {
		tags = make(map[string]*Entry)
		r.contexts[context] = tags
	}
	tags[strings.ToLower(strings.TrimSpace(name))] = e
}

// Encode registers a named encoder, replacing any previous one.
func (r *Registry) Encode(name string, enc Encoder) error {
	if name == "" {
		return ErrNoEncoderID
	}
	if enc == nil {
		return fmt.Errorf("%w: %q", ErrNilEncoder, name)
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.encoders[name] = enc
	return nil
}

// EncodeAll registers every encoder of the map.
func (r *Registry) EncodeAll(encoders map[string]Encoder) error {
	for name, enc := range encoders {
		if err := r.Encode(name, enc); err != nil {
			return err
		}
	}
	return nil
}

// Encoder returns the named encoder, falling back to "none".
func (r *Registry) Encoder(name string) (string, Encoder) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if enc, ok := r.encoders[name]; ok && name != "" {
		return name, enc
	}
	return EncodingNone, r.encoders[EncodingNone]
}

// Lookup resolves a tag name in a context. The search order is the context
// itself, the default context, then the undefined entry of both.
func (r *Registry) Lookup(context, name string) *Entry {
	if context == "" {
		context = DefaultContext
	}
	name = strings.ToLower(name)
	r.mu.RLock()
	defer r.mu.RUnlock()
	ctx := r.contexts[context]
	def := r.contexts[DefaultContext]
	if e, ok := ctx[name]; ok {
		return e
	}
	if e, ok := def[name]; ok {
		return e
	}
	if e, ok := ctx[UndefinedTag]; ok {
		return e
	}
	return def[UndefinedTag]
}

// Defined reports whether name has its own entry in the context or in the
// default context.
func (r *Registry) Defined(context, name string) bool {
	if context == "" {
		context = DefaultContext
	}
	name = strings.ToLower(name)
	r.mu.RLock()
	defer r.mu.RUnlock()
	if _, ok := r.contexts[context][name]; ok {
		return true
	}
	_, ok := r.contexts[DefaultContext][name]
	return ok
}

// Contexts returns the names of all contexts, sorted.
func (r *Registry) Contexts() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]string, 0, len(r.contexts))
	for c := range r.contexts {
		out = append(out, c)
	}
	sort.Strings(out)
	return out
}

// Names returns the tag names registered in a context, sorted.
func (r *Registry) Names(context string) []string {
	if context == "" {
		context = DefaultContext
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]string, 0, len(r.contexts[context]))
	for n := range r.contexts[context] {
		out = append(out, n)
	}
	sort.Strings(out)
	return out
}

// Encoders returns the names of all registered encoders, sorted.
func (r *Registry) Encoders() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]string, 0, len(r.encoders))
	for n := range r.encoders {
		out = append(out, n)
	}
	sort.Strings(out)
	return out
}

// Render parses text and renders it with opts. Empty text renders as "".
func (r *Registry) Render(text string, opts Options) (string, error) {
	doc := r.Parse(text, opts)
	if doc == nil {
		return "", nil
	}
	return doc.Render(opts)
}

func renderRoot(c *Call) (string, error) {
	return c.Content, nil
}

// renderUndefined writes the tag back as it was found in the source.
func renderUndefined(c *Call) (string, error) {
	n := c.Node
	var b strings.Builder
	b.WriteString(c.Encode("<" + n.Definition()))
	if n.SelfClosing() {
		b.WriteString(c.Encode("/>"))
		return b.String(), nil
	}
	b.WriteString(c.Encode(">"))
	b.WriteString(c.Content)
	b.WriteString(c.Encode(n.End()))
	return b.String(), nil
}
