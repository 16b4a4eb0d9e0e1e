// Package meta provides dotted-path access to the JSON metadata attribute of
// a persisted record.
//
// A Store wraps a host Record and reloads the whole Document on every
// operation: reads decode the raw attribute, writes decode, mutate and save
// the full Document back. Paths such as "a.b.c" address one nesting level per
// segment. An optional prefix scopes every path under a namespace, typically
// derived from another entity's identity with PrefixWith.
//
// Stores hold no cache and no lock. Two stores (or two processes) writing the
// same record race and the last SaveMetadata wins.
package meta

import (
	"context"
	"encoding/json"
	"fmt"
	"iter"
	"strings"
	"time"
)

// Operation names reported to metrics recorders and tracers.
const (
	OpAll     = "meta_all"
	OpGet     = "meta_get"
	OpHas     = "meta_has"
	OpSet     = "meta_set"
	OpDelete  = "meta_delete"
	OpUpdate  = "meta_update"
	OpReset   = "meta_reset"
	OpCount   = "meta_count"
	OpIterate = "meta_iterate"
)

// Store is the path accessor over one record's metadata. It is not safe for
// concurrent use.
type Store struct {
	record Record
	prefix string
	cfg    storeConfig
}

// New returns a Store over record with no prefix.
func New(record Record, opts ...Option) *Store {
	return &Store{record: record, cfg: applyOptions(opts)}
}

// Record returns the host record backing the store.
func (s *Store) Record() Record {
	return s.record
}

// Prefix scopes subsequent paths under value. A single trailing dot is kept
// or added, so Prefix("a") and Prefix("a.") are equivalent. Prefix("")
// yields "." and every path then starts with an empty segment.
func (s *Store) Prefix(value string) *Store {
	s.prefix = strings.TrimRight(value, pathSeparator) + pathSeparator
	return s
}

// Unprefix clears the prefix.
func (s *Store) Unprefix() *Store {
	s.prefix = ""
	return s
}

// CurrentPrefix returns the active prefix, including its trailing dot.
func (s *Store) CurrentPrefix() string {
	return s.prefix
}

// All returns the decoded Document, empty when the attribute is absent.
func (s *Store) All(ctx context.Context) (*Document, error) {
	var doc *Document
	err := s.observe(ctx, OpAll, func(ctx context.Context) error {
		var err error
		doc, err = s.load(ctx)
		return err
	})
	return doc, err
}

// Get returns the value at the prefixed path, or def when the path does not
// resolve. Numeric segments index into lists.
func (s *Store) Get(ctx context.Context, path string, def any) (any, error) {
	value, found, err := s.lookup(ctx, path)
	if err != nil {
		return nil, err
	}
	if !found {
		return def, nil
	}
	return value, nil
}

func (s *Store) lookup(ctx context.Context, path string) (any, bool, error) {
	var (
		value any
		found bool
	)
	err := s.observe(ctx, OpGet, func(ctx context.Context) error {
		doc, err := s.load(ctx)
		if err != nil {
			return err
		}
		value, found = resolve(doc, s.prefix+path)
		return nil
	})
	return value, found, err
}

// Lookup resolves path on s and converts the value into T through a JSON
// round trip. def is returned when the path does not resolve.
func Lookup[T any](ctx context.Context, s *Store, path string, def T) (T, error) {
	value, found, err := s.lookup(ctx, path)
	if err != nil || !found {
		return def, err
	}
	raw, err := json.Marshal(value)
	if err != nil {
		return def, fmt.Errorf("meta: encode %q: %w", s.prefix+path, err)
	}
	var out T
	if err := json.Unmarshal(raw, &out); err != nil {
		return def, fmt.Errorf("meta: convert %q: %w", s.prefix+path, err)
	}
	return out, nil
}

// Has reports whether every prefixed path exists. Existence is what counts:
// a path holding null is present. Has with no paths reports false.
func (s *Store) Has(ctx context.Context, paths ...string) (bool, error) {
	var present bool
	err := s.observe(ctx, OpHas, func(ctx context.Context) error {
		if len(paths) == 0 {
			return nil
		}
		doc, err := s.load(ctx)
		if err != nil {
			return err
		}
		for _, path := range paths {
			if _, ok := resolve(doc, s.prefix+path); !ok {
				return nil
			}
		}
		present = true
		return nil
	})
	return present, err
}

// Set writes value at the prefixed path and persists the whole Document.
// Missing intermediate mappings are created; intermediates that are neither
// mappings nor lists are replaced.
func (s *Store) Set(ctx context.Context, path string, value any) error {
	return s.observe(ctx, OpSet, func(ctx context.Context) error {
		doc, err := s.load(ctx)
		if err != nil {
			return err
		}
		assign(doc, s.prefix+path, value)
		s.cfg.logger.Debug("metadata set", "path", path, "prefix", s.prefix)
		return s.persist(ctx, doc)
	})
}

// Delete removes every prefixed path that exists and persists the result.
// Mappings left empty by the removal are kept.
func (s *Store) Delete(ctx context.Context, paths ...string) error {
	return s.observe(ctx, OpDelete, func(ctx context.Context) error {
		doc, err := s.load(ctx)
		if err != nil {
			return err
		}
		for _, path := range paths {
			forget(doc, s.prefix+path)
		}
		s.cfg.logger.Debug("metadata delete", "paths", paths, "prefix", s.prefix)
		return s.reset(ctx, doc)
	})
}

// Update shallow-merges partial into the top level of the Document, ignoring
// the prefix. Keys already present keep their position and take the new
// value; new keys are appended in partial's order.
func (s *Store) Update(ctx context.Context, partial *Document) error {
	return s.observe(ctx, OpUpdate, func(ctx context.Context) error {
		doc, err := s.load(ctx)
		if err != nil {
			return err
		}
		for k, v := range partial.All() {
			doc.Set(k, v)
		}
		s.cfg.logger.Debug("metadata update", "keys", partial.Keys())
		return s.persist(ctx, doc)
	})
}

// Reset replaces the whole Document with with, ignoring the prefix. A nil
// Document resets to empty.
func (s *Store) Reset(ctx context.Context, with *Document) error {
	return s.observe(ctx, OpReset, func(ctx context.Context) error {
		s.cfg.logger.Debug("metadata reset", "keys", with.Keys())
		return s.reset(ctx, with)
	})
}

func (s *Store) reset(ctx context.Context, with *Document) error {
	if with == nil {
		with = NewDocument()
	}
	return s.persist(ctx, with)
}

// Count returns the number of top-level keys.
func (s *Store) Count(ctx context.Context) (int, error) {
	var n int
	err := s.observe(ctx, OpCount, func(ctx context.Context) error {
		doc, err := s.load(ctx)
		if err != nil {
			return err
		}
		n = doc.Len()
		return nil
	})
	return n, err
}

// Iterate loads the Document and returns its top-level entries. The sequence
// is a snapshot: it can be ranged over repeatedly and never observes later
// writes. Call Iterate again for fresh state.
func (s *Store) Iterate(ctx context.Context) (iter.Seq2[string, any], error) {
	var doc *Document
	err := s.observe(ctx, OpIterate, func(ctx context.Context) error {
		var err error
		doc, err = s.load(ctx)
		return err
	})
	if err != nil {
		return nil, err
	}
	return doc.All(), nil
}

func (s *Store) load(ctx context.Context) (*Document, error) {
	raw, ok, err := s.record.LoadMetadata(ctx)
	if err != nil {
		return nil, err
	}
	if !ok {
		return NewDocument(), nil
	}
	return ParseDocument([]byte(raw))
}

func (s *Store) persist(ctx context.Context, doc *Document) error {
	raw, err := doc.MarshalJSON()
	if err != nil {
		return fmt.Errorf("meta: encode document: %w", err)
	}
	return s.record.SaveMetadata(ctx, string(raw))
}

func (s *Store) observe(ctx context.Context, operation string, fn func(context.Context) error) error {
	ctx, span := s.cfg.tracer.Start(ctx, operation)
	start := time.Now()
	err := fn(ctx)
	s.cfg.metrics.Observe(ctx, operation, err == nil, time.Since(start))
	span.End(err)
	if err != nil {
		s.cfg.logger.Error("metadata operation failed", "operation", operation, "prefix", s.prefix, "error", err)
	}
	return err
}
