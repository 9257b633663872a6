package store

import (
	"crypto/sha256"
	"encoding/hex"

	"github.com/CTAG07/markus/pkg/markus"
)

// Key returns the cache key for rendering text with opts against the tag files
// identified by fingerprint. Options.Data is not part of the key, so renders
// whose handlers depend on Data should not be cached.
func Key(fingerprint, text string, opts markus.Options) string {
	allowed := opts.Allowed
	if allowed == nil {
		allowed = markus.ParseTagSet(opts.AllowedTags)
	}
	ctx := opts.Context
	if ctx == "" {
		ctx = markus.DefaultContext
	}
	enc := opts.Encoding
	if enc == "" {
		enc = markus.EncodingNone
	}

	h := sha256.New()
	for _, part := range []string{fingerprint, ctx, enc, allowed.String(), text} {
		h.Write([]byte(part))
		h.Write([]byte{0})
	}
	return hex.EncodeToString(h.Sum(nil))
}
