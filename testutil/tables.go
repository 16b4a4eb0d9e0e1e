package testutil

import (
	"context"
	"errors"
	"slices"
	"testing"

	"metastore/internal/record/core"
)

// TableFactory builds a fresh, empty Table for one contract subtest. The
// factory registers its own cleanup through t.
type TableFactory func(t *testing.T) core.Table

// RunTableContract exercises the behaviour every record backend must share.
func RunTableContract(t *testing.T, driver core.Driver, newTable TableFactory) {
	t.Helper()
	ctx := context.Background()

	t.Run("driver", func(t *testing.T) {
		if got := newTable(t).Driver(); got != driver {
			t.Fatalf("expected driver %q, got %q", driver, got)
		}
	})

	t.Run("create_starts_absent", func(t *testing.T) {
		tbl := newTable(t)
		h, err := tbl.Create(ctx)
		if err != nil {
			t.Fatalf("create: %v", err)
		}
		if h.ID() == "" {
			t.Fatalf("expected generated id")
		}
		raw, ok, err := h.LoadMetadata(ctx)
		if err != nil {
			t.Fatalf("load: %v", err)
		}
		if ok || raw != "" {
			t.Fatalf("expected absent metadata, got ok=%t raw=%q", ok, raw)
		}
		n, err := h.Meta().Count(ctx)
		if err != nil || n != 0 {
			t.Fatalf("expected empty count, got %d (%v)", n, err)
		}
	})

	t.Run("metadata_round_trip", func(t *testing.T) {
		tbl := newTable(t)
		h, err := tbl.CreateWithID(ctx, "alpha")
		if err != nil {
			t.Fatalf("create: %v", err)
		}
		if err := h.Meta().Set(ctx, "profile.name", "Ada"); err != nil {
			t.Fatalf("set: %v", err)
		}
		if err := h.Meta().Prefix("flags").Set(ctx, "beta", true); err != nil {
			t.Fatalf("set prefixed: %v", err)
		}

		reopened, err := tbl.Open(ctx, "alpha")
		if err != nil {
			t.Fatalf("open: %v", err)
		}
		raw, ok, err := reopened.LoadMetadata(ctx)
		if err != nil || !ok {
			t.Fatalf("load: ok=%t err=%v", ok, err)
		}
		if want := `{"profile":{"name":"Ada"},"flags":{"beta":true}}`; raw != want {
			t.Fatalf("expected %s, got %s", want, raw)
		}
		got, err := reopened.Meta().Get(ctx, "profile.name", nil)
		if err != nil || got != "Ada" {
			t.Fatalf("expected Ada, got %v (%v)", got, err)
		}
	})

	t.Run("reset_to_empty_object", func(t *testing.T) {
		tbl := newTable(t)
		h, err := tbl.CreateWithID(ctx, "beta")
		if err != nil {
			t.Fatalf("create: %v", err)
		}
		if err := h.Meta().Reset(ctx, nil); err != nil {
			t.Fatalf("reset: %v", err)
		}
		raw, ok, err := h.LoadMetadata(ctx)
		if err != nil || !ok || raw != "{}" {
			t.Fatalf("expected stored {}, got ok=%t raw=%q err=%v", ok, raw, err)
		}
	})

	t.Run("duplicate_id", func(t *testing.T) {
		tbl := newTable(t)
		if _, err := tbl.CreateWithID(ctx, "dup"); err != nil {
			t.Fatalf("create: %v", err)
		}
		if _, err := tbl.CreateWithID(ctx, "dup"); !errors.Is(err, core.ErrExists) {
			t.Fatalf("expected ErrExists, got %v", err)
		}
	})

	t.Run("invalid_id", func(t *testing.T) {
		tbl := newTable(t)
		for _, id := range []string{"", "a/b", "../x"} {
			if _, err := tbl.CreateWithID(ctx, id); !errors.Is(err, core.ErrInvalidID) {
				t.Fatalf("id %q: expected ErrInvalidID, got %v", id, err)
			}
		}
	})

	t.Run("open_missing", func(t *testing.T) {
		tbl := newTable(t)
		if _, err := tbl.Open(ctx, "ghost"); !errors.Is(err, core.ErrNotFound) {
			t.Fatalf("expected ErrNotFound, got %v", err)
		}
	})

	t.Run("list_and_drop", func(t *testing.T) {
		tbl := newTable(t)
		for _, id := range []string{"c", "a", "b"} {
			if _, err := tbl.CreateWithID(ctx, id); err != nil {
				t.Fatalf("create %s: %v", id, err)
			}
		}
		ids, err := tbl.List(ctx)
		if err != nil {
			t.Fatalf("list: %v", err)
		}
		if !slices.Equal(ids, []string{"a", "b", "c"}) {
			t.Fatalf("unexpected ids %v", ids)
		}
		dropped, err := tbl.Drop(ctx, "b")
		if err != nil || !dropped {
			t.Fatalf("drop b: dropped=%t err=%v", dropped, err)
		}
		dropped, err = tbl.Drop(ctx, "b")
		if err != nil || dropped {
			t.Fatalf("second drop: dropped=%t err=%v", dropped, err)
		}
		ids, err = tbl.List(ctx)
		if err != nil {
			t.Fatalf("list: %v", err)
		}
		if !slices.Equal(ids, []string{"a", "c"}) {
			t.Fatalf("unexpected ids after drop %v", ids)
		}
	})

	t.Run("dropped_record_rejects_save", func(t *testing.T) {
		tbl := newTable(t)
		h, err := tbl.CreateWithID(ctx, "gone")
		if err != nil {
			t.Fatalf("create: %v", err)
		}
		if _, err := tbl.Drop(ctx, "gone"); err != nil {
			t.Fatalf("drop: %v", err)
		}
		if err := h.SaveMetadata(ctx, "{}"); !errors.Is(err, core.ErrNotFound) {
			t.Fatalf("expected ErrNotFound, got %v", err)
		}
	})
}
