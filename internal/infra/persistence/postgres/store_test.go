package postgres

import (
	"database/sql"
	"errors"
	"strings"
	"testing"
)

func TestNewStoreReportsOpenFailure(t *testing.T) {
	restore := OverrideSQLOpen(func(driver, dsn string) (*sql.DB, error) {
		if driver != "pgx" {
			t.Fatalf("driver = %q, want pgx", driver)
		}
		return nil, errors.New("boom")
	})
	defer restore()

	_, err := NewStore("postgres://example/tokencore")
	if err == nil {
		t.Fatal("expected open failure")
	}
	if !strings.Contains(err.Error(), "open postgres") {
		t.Fatalf("error = %v", err)
	}
}

func TestNewStoreAppliesDefaultDSN(t *testing.T) {
	var got string
	restore := OverrideSQLOpen(func(driver, dsn string) (*sql.DB, error) {
		got = dsn
		return nil, errors.New("stop here")
	})
	defer restore()

	if _, err := NewStore(""); err == nil {
		t.Fatal("expected error from stub opener")
	}
	if got != defaultDSN {
		t.Fatalf("dsn = %q, want %q", got, defaultDSN)
	}
}
