package sqltable

import (
	"errors"
	"testing"
)

func TestValidateName(t *testing.T) {
	for _, name := range []string{"records", "_meta", "Users2"} {
		if err := ValidateName(name); err != nil {
			t.Fatalf("ValidateName(%q): %v", name, err)
		}
	}
	for _, name := range []string{"", "2records", "records;", "public.records", "a b", `"quoted"`} {
		if err := ValidateName(name); !errors.Is(err, ErrInvalidTable) {
			t.Fatalf("ValidateName(%q): expected ErrInvalidTable, got %v", name, err)
		}
	}
}

func TestNewRejectsInvalidName(t *testing.T) {
	if _, err := New(nil, "bad name", Dialect{}); !errors.Is(err, ErrInvalidTable) {
		t.Fatalf("expected ErrInvalidTable, got %v", err)
	}
}
