package database

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/meritrack/backend/pkg/apperr"
)

func TestMapError(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want error
	}{
		{"no rows", pgx.ErrNoRows, apperr.ErrNotFound},
		{"wrapped no rows", fmt.Errorf("get event: %w", pgx.ErrNoRows), apperr.ErrNotFound},
		{"unique", &pgconn.PgError{Code: "23505"}, apperr.ErrDuplicate},
		{"foreign key", &pgconn.PgError{Code: "23503"}, apperr.ErrNotFound},
		{"check", &pgconn.PgError{Code: "23514"}, apperr.ErrValidation},
		{"serialization", &pgconn.PgError{Code: "40001"}, apperr.ErrConflict},
		{"deadlock", &pgconn.PgError{Code: "40P01"}, apperr.ErrConflict},
		{"lock timeout", &pgconn.PgError{Code: "55P03"}, apperr.ErrConflict},
		{"connection", &pgconn.PgError{Code: "08006"}, apperr.ErrUnavailable},
		{"deadline", context.DeadlineExceeded, apperr.ErrUnavailable},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := MapError(tt.err); !errors.Is(got, tt.want) {
				t.Errorf("MapError(%v) = %v, want kind %v", tt.err, got, tt.want)
			}
		})
	}
}

func TestMapErrorPassesThroughUnknown(t *testing.T) {
	if MapError(nil) != nil {
		t.Error("nil should stay nil")
	}
	plain := errors.New("boom")
	if got := MapError(plain); got != plain {
		t.Errorf("unknown error changed: %v", got)
	}
	already := apperr.Wrap(apperr.ErrNotFound, "Student not found", pgx.ErrNoRows)
	if got := MapError(already); got != already {
		t.Errorf("mapped error rewritten: %v", got)
	}
	syntax := &pgconn.PgError{Code: "42601"}
	if got := MapError(syntax); got != error(syntax) {
		t.Errorf("unmapped sqlstate changed: %v", got)
	}
}

func TestRetryOnConflictOnce(t *testing.T) {
	calls := 0
	err := Retry(context.Background(), 2, func() error {
		calls++
		if calls == 1 {
			return apperr.ErrConflict
		}
		return nil
	})
	if err != nil || calls != 2 {
		t.Fatalf("err=%v calls=%d, want nil and 2", err, calls)
	}
}

func TestRetryGivesUp(t *testing.T) {
	calls := 0
	err := Retry(context.Background(), 2, func() error {
		calls++
		return apperr.ErrConflict
	})
	if !errors.Is(err, apperr.ErrConflict) || calls != 2 {
		t.Fatalf("err=%v calls=%d", err, calls)
	}
}

func TestRetryDoesNotRepeatOtherErrors(t *testing.T) {
	calls := 0
	err := Retry(context.Background(), 3, func() error {
		calls++
		return apperr.ErrNotFound
	})
	if !errors.Is(err, apperr.ErrNotFound) || calls != 1 {
		t.Fatalf("err=%v calls=%d", err, calls)
	}
}

func TestMigrateURL(t *testing.T) {
	tests := map[string]string{
		"postgres://u:p@h:5432/db?sslmode=disable": "pgx5://u:p@h:5432/db?sslmode=disable",
		"postgresql://h/db":                        "pgx5://h/db",
		"pgx5://h/db":                              "pgx5://h/db",
	}
	for in, want := range tests {
		if got := MigrateURL(in); got != want {
			t.Errorf("MigrateURL(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestEmbeddedMigrationsPaired(t *testing.T) {
	entries, err := migrationsFS.ReadDir("migrations")
	if err != nil {
		t.Fatal(err)
	}
	ups, downs := 0, 0
	for _, e := range entries {
		switch {
		case len(e.Name()) > 7 && e.Name()[len(e.Name())-7:] == ".up.sql":
			ups++
		case len(e.Name()) > 9 && e.Name()[len(e.Name())-9:] == ".down.sql":
			downs++
		}
	}
	if ups == 0 || ups != downs {
		t.Errorf("ups=%d downs=%d", ups, downs)
	}
}
