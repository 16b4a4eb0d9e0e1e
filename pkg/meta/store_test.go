package meta_test

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"

	"metastore/pkg/meta"
)

func newStore(t *testing.T) (*meta.Store, *meta.MemoryRecord) {
	t.Helper()
	rec := meta.NewMemoryRecord()
	return meta.New(rec), rec
}

func mustAll(t *testing.T, s *meta.Store) map[string]any {
	t.Helper()
	doc, err := s.All(context.Background())
	if err != nil {
		t.Fatalf("all: %v", err)
	}
	return doc.Map()
}

func mustSet(t *testing.T, s *meta.Store, path string, value any) {
	t.Helper()
	if err := s.Set(context.Background(), path, value); err != nil {
		t.Fatalf("set %q: %v", path, err)
	}
}

func mustGet(t *testing.T, s *meta.Store, path string, def any) any {
	t.Helper()
	v, err := s.Get(context.Background(), path, def)
	if err != nil {
		t.Fatalf("get %q: %v", path, err)
	}
	return v
}

func mustHas(t *testing.T, s *meta.Store, paths ...string) bool {
	t.Helper()
	ok, err := s.Has(context.Background(), paths...)
	if err != nil {
		t.Fatalf("has %v: %v", paths, err)
	}
	return ok
}

func TestAllEmptyWhenAbsent(t *testing.T) {
	s, rec := newStore(t)
	if diff := cmp.Diff(map[string]any{}, mustAll(t, s)); diff != "" {
		t.Fatalf("expected empty document (-want +got):\n%s", diff)
	}
	if rec.Saves() != 0 {
		t.Fatalf("reads must not persist, got %d saves", rec.Saves())
	}
}

func TestAllFailsOnMalformedStorage(t *testing.T) {
	s := meta.New(meta.NewMemoryRecordWith(`{"broken"`))
	_, err := s.All(context.Background())
	var derr *meta.DeserializationError
	if !errors.As(err, &derr) {
		t.Fatalf("expected DeserializationError, got %v", err)
	}
	if _, err := s.Get(context.Background(), "a", nil); !errors.Is(err, meta.ErrDeserialize) {
		t.Fatalf("expected get to surface ErrDeserialize, got %v", err)
	}
	if err := s.Set(context.Background(), "a", "b"); !errors.Is(err, meta.ErrDeserialize) {
		t.Fatalf("expected set to surface ErrDeserialize, got %v", err)
	}
}

func TestSetThenGet(t *testing.T) {
	s, _ := newStore(t)
	mustSet(t, s, "a", "b")

	if got := mustGet(t, s, "a", nil); got != "b" {
		t.Fatalf("expected b, got %v", got)
	}
	if got := mustGet(t, s, "b", "default"); got != "default" {
		t.Fatalf("expected default, got %v", got)
	}
}

func TestSetPersistsSerializedDocument(t *testing.T) {
	s, rec := newStore(t)
	mustSet(t, s, "hello", "world")

	raw, ok := rec.Raw()
	if !ok || raw != `{"hello":"world"}` {
		t.Fatalf("expected persisted {\"hello\":\"world\"}, got %q (present=%t)", raw, ok)
	}
	if rec.Saves() != 1 {
		t.Fatalf("expected exactly one save, got %d", rec.Saves())
	}
}

func TestSetNestedCreatesIntermediates(t *testing.T) {
	s, rec := newStore(t)
	mustSet(t, s, "a.b.c", "deep")
	mustSet(t, s, "a.x", 1)

	raw, _ := rec.Raw()
	if raw != `{"a":{"b":{"c":"deep"},"x":1}}` {
		t.Fatalf("unexpected raw %s", raw)
	}
	if got := mustGet(t, s, "a.x", nil); got != json.Number("1") {
		t.Fatalf("expected json.Number 1 after round trip, got %#v", got)
	}
}

func TestSetOverwritesScalarIntermediate(t *testing.T) {
	s, _ := newStore(t)
	mustSet(t, s, "a", "scalar")
	mustSet(t, s, "a.b", "c")

	want := map[string]any{"a": map[string]any{"b": "c"}}
	if diff := cmp.Diff(want, mustAll(t, s)); diff != "" {
		t.Fatalf("mismatch (-want +got):\n%s", diff)
	}
}

func TestSetPreservesInsertionOrder(t *testing.T) {
	s, rec := newStore(t)
	for _, k := range []string{"z", "a", "m"} {
		mustSet(t, s, k, k)
	}
	mustSet(t, s, "a", "again")

	raw, _ := rec.Raw()
	if raw != `{"z":"z","a":"again","m":"m"}` {
		t.Fatalf("unexpected raw %s", raw)
	}
	doc, err := s.All(context.Background())
	if err != nil {
		t.Fatalf("all: %v", err)
	}
	if diff := cmp.Diff([]string{"z", "a", "m"}, doc.Keys()); diff != "" {
		t.Fatalf("order mismatch (-want +got):\n%s", diff)
	}
}

func TestHas(t *testing.T) {
	s, _ := newStore(t)
	if mustHas(t, s, "hello") {
		t.Fatalf("expected hello to be absent before set")
	}
	mustSet(t, s, "hello", "world")
	mustSet(t, s, "nothing", nil)
	mustSet(t, s, "falsy", false)

	if !mustHas(t, s, "hello") {
		t.Fatalf("expected hello to exist")
	}
	if mustHas(t, s, "world") {
		t.Fatalf("expected world to be absent")
	}
	if !mustHas(t, s, "nothing", "falsy") {
		t.Fatalf("expected null and false values to count as present")
	}
	if mustHas(t, s, "hello", "missing") {
		t.Fatalf("expected has to require every path")
	}
	if mustHas(t, s) {
		t.Fatalf("expected has with no paths to be false")
	}
}

func TestDelete(t *testing.T) {
	s, _ := newStore(t)
	mustSet(t, s, "a", "b")
	if got := mustGet(t, s, "a", nil); got != "b" {
		t.Fatalf("expected b, got %v", got)
	}
	if err := s.Delete(context.Background(), "a"); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if got := mustGet(t, s, "a", "default"); got != "default" {
		t.Fatalf("expected default after delete, got %v", got)
	}
}

func TestDeleteManyKeepsEmptyParents(t *testing.T) {
	s, rec := newStore(t)
	mustSet(t, s, "a.b", 1)
	mustSet(t, s, "c", 2)
	mustSet(t, s, "d", 3)

	if err := s.Delete(context.Background(), "a.b", "c", "missing.path"); err != nil {
		t.Fatalf("delete: %v", err)
	}
	raw, _ := rec.Raw()
	if raw != `{"a":{},"d":3}` {
		t.Fatalf("unexpected raw %s", raw)
	}
}

func TestResetReplacesDocument(t *testing.T) {
	s, _ := newStore(t)
	mustSet(t, s, "a", "b")
	if diff := cmp.Diff(map[string]any{"a": "b"}, mustAll(t, s)); diff != "" {
		t.Fatalf("mismatch (-want +got):\n%s", diff)
	}

	s.Prefix("ignored")
	if err := s.Reset(context.Background(), meta.NewDocument().Set("c", "d")); err != nil {
		t.Fatalf("reset: %v", err)
	}
	if diff := cmp.Diff(map[string]any{"c": "d"}, mustAll(t, s)); diff != "" {
		t.Fatalf("reset must ignore prefix (-want +got):\n%s", diff)
	}

	if err := s.Reset(context.Background(), nil); err != nil {
		t.Fatalf("reset nil: %v", err)
	}
	if n, _ := s.Count(context.Background()); n != 0 {
		t.Fatalf("expected empty document after nil reset, got %d keys", n)
	}
}

func TestUpdateShallowMerge(t *testing.T) {
	s, rec := newStore(t)
	mustSet(t, s, "a", "b")
	mustSet(t, s, "c", "d")
	mustSet(t, s, "nested.keep", true)

	partial := meta.NewDocument().
		Set("c", "e").
		Set("f", "g").
		Set("nested", meta.NewDocument().Set("replaced", true))
	s.Prefix("ignored")
	if err := s.Update(context.Background(), partial); err != nil {
		t.Fatalf("update: %v", err)
	}

	raw, _ := rec.Raw()
	if raw != `{"a":"b","c":"e","nested":{"replaced":true},"f":"g"}` {
		t.Fatalf("unexpected raw %s", raw)
	}
}

func TestUpdateOverwritesTopLevelKey(t *testing.T) {
	s := meta.New(meta.NewMemoryRecordWith(`{"a":0,"b":2}`))
	if err := s.Update(context.Background(), meta.NewDocument().Set("a", 1)); err != nil {
		t.Fatalf("update: %v", err)
	}
	want := map[string]any{"a": json.Number("1"), "b": json.Number("2")}
	if diff := cmp.Diff(want, mustAll(t, s)); diff != "" {
		t.Fatalf("mismatch (-want +got):\n%s", diff)
	}
}

func TestCount(t *testing.T) {
	s, _ := newStore(t)
	mustSet(t, s, "a", "b")
	if n, err := s.Count(context.Background()); err != nil || n != 1 {
		t.Fatalf("expected count 1, got %d (%v)", n, err)
	}
	if err := s.Update(context.Background(), meta.NewDocument().Set("c", "d")); err != nil {
		t.Fatalf("update: %v", err)
	}
	if n, err := s.Count(context.Background()); err != nil || n != 2 {
		t.Fatalf("expected count 2, got %d (%v)", n, err)
	}
}

func TestIterate(t *testing.T) {
	s, _ := newStore(t)
	mustSet(t, s, "a", "b")

	entries, err := s.Iterate(context.Background())
	if err != nil {
		t.Fatalf("iterate: %v", err)
	}
	for pass := 0; pass < 2; pass++ {
		var seen int
		for k, v := range entries {
			seen++
			if k != "a" || v != "b" {
				t.Fatalf("unexpected entry %q=%v", k, v)
			}
		}
		if seen != 1 {
			t.Fatalf("pass %d: expected one entry, got %d", pass, seen)
		}
	}

	mustSet(t, s, "c", "d")
	var snapshot int
	for range entries {
		snapshot++
	}
	if snapshot != 1 {
		t.Fatalf("expected iterate snapshot to ignore later writes, got %d entries", snapshot)
	}
}

func TestPrefixScopesOperations(t *testing.T) {
	s, _ := newStore(t)
	s.Prefix("current")
	mustSet(t, s, "hello", "world")

	want := map[string]any{"current": map[string]any{"hello": "world"}}
	if diff := cmp.Diff(want, mustAll(t, s)); diff != "" {
		t.Fatalf("mismatch (-want +got):\n%s", diff)
	}

	s.Unprefix()
	mustSet(t, s, "hello", "world")
	want["hello"] = "world"
	if diff := cmp.Diff(want, mustAll(t, s)); diff != "" {
		t.Fatalf("mismatch (-want +got):\n%s", diff)
	}
}

func TestPrefixedGetHasDelete(t *testing.T) {
	s, _ := newStore(t)
	s.Prefix("hello.")
	mustSet(t, s, "a", "b")

	if got := mustGet(t, s, "a", nil); got != "b" {
		t.Fatalf("expected b while prefixed, got %v", got)
	}
	if got := mustGet(t, s, "b", "default"); got != "default" {
		t.Fatalf("expected default, got %v", got)
	}
	if !mustHas(t, s, "a") {
		t.Fatalf("expected prefixed has")
	}
	if got := mustGet(t, s.Unprefix(), "hello.a", nil); got != "b" {
		t.Fatalf("expected unprefixed hello.a to be b, got %v", got)
	}

	if err := s.Prefix("hello").Delete(context.Background(), "a"); err != nil {
		t.Fatalf("delete: %v", err)
	}
	want := map[string]any{"hello": map[string]any{}}
	if diff := cmp.Diff(want, mustAll(t, s)); diff != "" {
		t.Fatalf("mismatch (-want +got):\n%s", diff)
	}
}

func TestPrefixNormalization(t *testing.T) {
	s, _ := newStore(t)
	cases := map[string]string{
		"ns":   "ns.",
		"ns.":  "ns.",
		"ns..": "ns.",
		"a.b":  "a.b.",
		"":     ".",
	}
	for in, want := range cases {
		if got := s.Prefix(in).CurrentPrefix(); got != want {
			t.Fatalf("Prefix(%q) = %q, want %q", in, got, want)
		}
		if got := s.Prefix(s.CurrentPrefix()).CurrentPrefix(); got != want {
			t.Fatalf("Prefix must be idempotent for %q: got %q", in, got)
		}
	}
	if got := s.Unprefix().CurrentPrefix(); got != "" {
		t.Fatalf("expected empty prefix after Unprefix, got %q", got)
	}
}

func TestEmptyPrefixProducesEmptySegment(t *testing.T) {
	s, rec := newStore(t)
	mustSet(t, s.Prefix(""), "k", "v")

	raw, _ := rec.Raw()
	if raw != `{"":{"k":"v"}}` {
		t.Fatalf("unexpected raw %s", raw)
	}
}

func TestGetLiteralDottedKey(t *testing.T) {
	s, _ := newStore(t)
	if err := s.Update(context.Background(), meta.NewDocument().Set("a.b", "literal")); err != nil {
		t.Fatalf("update: %v", err)
	}
	if got := mustGet(t, s, "a.b", nil); got != "literal" {
		t.Fatalf("expected literal key lookup, got %v", got)
	}
	if err := s.Delete(context.Background(), "a.b"); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if mustHas(t, s, "a.b") {
		t.Fatalf("expected literal key to be deleted")
	}
}

func TestLookupTyped(t *testing.T) {
	s, _ := newStore(t)
	mustSet(t, s, "n", 42)
	mustSet(t, s, "tags", []string{"x", "y"})
	mustSet(t, s, "s", "text")

	ctx := context.Background()
	n, err := meta.Lookup(ctx, s, "n", 0)
	if err != nil || n != 42 {
		t.Fatalf("expected 42, got %d (%v)", n, err)
	}
	tags, err := meta.Lookup[[]string](ctx, s, "tags", nil)
	if err != nil || !cmp.Equal([]string{"x", "y"}, tags) {
		t.Fatalf("expected tags, got %v (%v)", tags, err)
	}
	missing, err := meta.Lookup(ctx, s, "missing", "fallback")
	if err != nil || missing != "fallback" {
		t.Fatalf("expected fallback, got %q (%v)", missing, err)
	}
	if _, err := meta.Lookup(ctx, s, "s", 0); err == nil {
		t.Fatalf("expected conversion error for string into int")
	}
}

func TestRecordAccessor(t *testing.T) {
	rec := meta.NewMemoryRecord()
	if meta.New(rec).Record() != rec {
		t.Fatalf("expected Record to return the wrapped record")
	}
}

var errBoom = errors.New("boom")

func TestSaveFailurePropagatesAndKeepsStorage(t *testing.T) {
	rec := meta.NewMemoryRecordWith(`{"a":"b"}`)
	failing := meta.RecordFuncs{
		Load: rec.LoadMetadata,
		Save: func(context.Context, string) error { return errBoom },
	}
	s := meta.New(failing)
	ctx := context.Background()

	checks := map[string]error{
		"set":    s.Set(ctx, "c", "d"),
		"delete": s.Delete(ctx, "a"),
		"update": s.Update(ctx, meta.NewDocument().Set("c", "d")),
		"reset":  s.Reset(ctx, nil),
	}
	for op, err := range checks {
		if err != errBoom {
			t.Fatalf("%s: expected the persistence error unchanged, got %v", op, err)
		}
	}
	if raw, _ := rec.Raw(); raw != `{"a":"b"}` {
		t.Fatalf("storage must keep prior state, got %s", raw)
	}
}

func TestLoadFailurePropagates(t *testing.T) {
	s := meta.New(meta.RecordFuncs{
		Load: func(context.Context) (string, bool, error) { return "", false, errBoom },
	})
	ctx := context.Background()
	if _, err := s.All(ctx); err != errBoom {
		t.Fatalf("all: expected errBoom, got %v", err)
	}
	if _, err := s.Has(ctx, "a"); err != errBoom {
		t.Fatalf("has: expected errBoom, got %v", err)
	}
	if _, err := s.Count(ctx); err != errBoom {
		t.Fatalf("count: expected errBoom, got %v", err)
	}
	if _, err := s.Iterate(ctx); err != errBoom {
		t.Fatalf("iterate: expected errBoom, got %v", err)
	}
	if err := s.Set(ctx, "a", 1); err != errBoom {
		t.Fatalf("set: expected errBoom, got %v", err)
	}
}

func TestRecordFuncsMissing(t *testing.T) {
	s := meta.New(meta.RecordFuncs{})
	if _, err := s.All(context.Background()); err == nil {
		t.Fatalf("expected error for unconfigured load")
	}
}

func TestEncodeFailureSkipsSave(t *testing.T) {
	s, rec := newStore(t)
	if err := s.Set(context.Background(), "ch", make(chan int)); err == nil {
		t.Fatalf("expected encode error")
	}
	if rec.Saves() != 0 {
		t.Fatalf("expected no save after encode failure, got %d", rec.Saves())
	}
}

type metricsCall struct {
	op      string
	success bool
}

type captureMetrics struct{ calls []metricsCall }

func (c *captureMetrics) Observe(_ context.Context, op string, success bool, _ time.Duration) {
	c.calls = append(c.calls, metricsCall{op: op, success: success})
}

type captureTracer struct{ ended []metricsCall }

func (c *captureTracer) Start(ctx context.Context, op string) (context.Context, meta.TraceSpan) {
	return ctx, &captureSpan{tracer: c, op: op}
}

type captureSpan struct {
	tracer *captureTracer
	op     string
}

func (s *captureSpan) End(err error) {
	s.tracer.ended = append(s.tracer.ended, metricsCall{op: s.op, success: err == nil})
}

type captureLogger struct{ errors []string }

func (c *captureLogger) Debug(string, ...any) {}
func (c *captureLogger) Info(string, ...any)  {}
func (c *captureLogger) Warn(string, ...any)  {}
func (c *captureLogger) Error(msg string, _ ...any) {
	c.errors = append(c.errors, msg)
}

func TestObservability(t *testing.T) {
	metrics := &captureMetrics{}
	tracer := &captureTracer{}
	logger := &captureLogger{}
	s := meta.New(meta.NewMemoryRecordWith("not json"),
		meta.WithMetricsRecorder(metrics),
		meta.WithTracer(tracer),
		meta.WithLogger(logger),
	)
	_, _ = s.Get(context.Background(), "a", nil)
	_ = s.Reset(context.Background(), nil)

	want := []metricsCall{{op: meta.OpGet, success: false}, {op: meta.OpReset, success: true}}
	if diff := cmp.Diff(want, metrics.calls, cmp.AllowUnexported(metricsCall{})); diff != "" {
		t.Fatalf("metrics mismatch (-want +got):\n%s", diff)
	}
	if diff := cmp.Diff(want, tracer.ended, cmp.AllowUnexported(metricsCall{})); diff != "" {
		t.Fatalf("spans mismatch (-want +got):\n%s", diff)
	}
	if len(logger.errors) != 1 {
		t.Fatalf("expected one error log, got %v", logger.errors)
	}
}

func TestNilOptionsFallBackToNoop(t *testing.T) {
	s := meta.New(meta.NewMemoryRecord(), nil, meta.WithLogger(nil), meta.WithMetricsRecorder(nil), meta.WithTracer(nil))
	mustSet(t, s, "a", 1)
}

func TestBackslashKeysRoundTrip(t *testing.T) {
	s, rec := newStore(t)
	mustSet(t, s, `path\name`, "v")
	mustSet(t, s, `c:\dir`, 1)

	if got := mustGet(t, s, `path\name`, "DEFAULT"); got != "v" {
		t.Fatalf("expected v, got %v", got)
	}
	raw, _ := rec.Raw()
	if want := `{"path\\name":"v","c:\\dir":1}`; raw != want {
		t.Fatalf("expected raw %s, got %s", want, raw)
	}
	want := map[string]any{`path\name`: "v", `c:\dir`: json.Number("1")}
	if diff := cmp.Diff(want, mustAll(t, s)); diff != "" {
		t.Fatalf("mismatch (-want +got):\n%s", diff)
	}
}

func TestStoredEscapesStayReadable(t *testing.T) {
	s := meta.New(meta.NewMemoryRecordWith(`{"c:\\dir":1,"a\\nb":2}`))
	doc, err := s.All(context.Background())
	if err != nil {
		t.Fatalf("all: %v", err)
	}
	if diff := cmp.Diff([]string{`c:\dir`, `a\nb`}, doc.Keys()); diff != "" {
		t.Fatalf("keys mismatch (-want +got):\n%s", diff)
	}
}

func TestListPaths(t *testing.T) {
	ctx := context.Background()
	s := meta.New(meta.NewMemoryRecordWith(`{"tags":["x","y"]}`))

	if got := mustGet(t, s, "tags.0", "DEFAULT"); got != "x" {
		t.Fatalf("expected x, got %v", got)
	}
	if !mustHas(t, s, "tags.1") || mustHas(t, s, "tags.2") {
		t.Fatalf("unexpected list existence")
	}
	mustSet(t, s, "tags.1", "z")
	if diff := cmp.Diff(map[string]any{"tags": []any{"x", "z"}}, mustAll(t, s)); diff != "" {
		t.Fatalf("after set (-want +got):\n%s", diff)
	}
	if err := s.Delete(ctx, "tags.1"); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if diff := cmp.Diff(map[string]any{"tags": []any{"x"}}, mustAll(t, s)); diff != "" {
		t.Fatalf("after delete (-want +got):\n%s", diff)
	}
}
