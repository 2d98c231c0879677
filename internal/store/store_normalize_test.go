package store

import (
	"context"
	"regexp"
	"testing"
	"time"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
)

func TestCanonicalSourcePath(t *testing.T) {
	cases := []struct {
		path, root, want string
	}{
		{"/proj/docs/a.md", "/proj", "docs/a.md"},
		{"/proj/docs/../docs/a.md", "/proj", "docs/a.md"},
		{"/elsewhere/a.md", "/proj", "/elsewhere/a.md"},
		{"docs/a.md", "/proj", "docs/a.md"},
		{"https://example.com/page", "/proj", "https://example.com/page"},
		{"text://session-42", "/proj", "text://session-42"},
	}
	for _, c := range cases {
		if got := CanonicalSourcePath(c.path, c.root); got != c.want {
			t.Errorf("CanonicalSourcePath(%q, %q) = %q, want %q", c.path, c.root, got, c.want)
		}
	}
}

func TestNormalizeSourcePathsDedup(t *testing.T) {
	st, mock := newMockStore(t)

	older := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	newer := time.Date(2026, 6, 1, 0, 0, 0, 0, time.UTC)

	// Three rows normalize to docs/a.md; row 3 is the most recently indexed
	// and must survive. Row 4 is unrelated and untouched.
	mock.ExpectQuery(regexp.QuoteMeta(`SELECT id, source_path, indexed_at FROM documents ORDER BY id`)).
		WillReturnRows(sqlmock.NewRows([]string{"id", "source_path", "indexed_at"}).
			AddRow(1, "/proj/docs/a.md", older).
			AddRow(2, "docs/a.md", older).
			AddRow(3, "/proj/docs/../docs/a.md", newer).
			AddRow(4, "docs/b.md", older))

	mock.ExpectBegin()
	mock.ExpectExec(regexp.QuoteMeta(`DELETE FROM documents WHERE id = ANY($1)`)).
		WithArgs(sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 2))
	mock.ExpectExec(regexp.QuoteMeta(`UPDATE documents SET source_path=$1 WHERE id=$2`)).
		WithArgs("docs/a.md", int64(3)).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	res, err := st.NormalizeSourcePaths(context.Background(), "/proj")
	if err != nil {
		t.Fatalf("NormalizeSourcePaths: %v", err)
	}
	if res.Removed != 2 {
		t.Errorf("expected 2 duplicates removed, got %d", res.Removed)
	}
	if res.Renamed != 1 {
		t.Errorf("expected 1 rename, got %d", res.Renamed)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("expectations: %v", err)
	}
}

func TestNormalizeSourcePathsTieBreaksOnID(t *testing.T) {
	st, mock := newMockStore(t)

	ts := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)
	mock.ExpectQuery(regexp.QuoteMeta(`SELECT id, source_path, indexed_at FROM documents ORDER BY id`)).
		WillReturnRows(sqlmock.NewRows([]string{"id", "source_path", "indexed_at"}).
			AddRow(10, "docs/a.md", ts).
			AddRow(11, "/proj/docs/a.md", ts))

	mock.ExpectBegin()
	// Equal timestamps: the higher id (11) wins, 10 is removed, and 11 is
	// renamed to the canonical form.
	mock.ExpectExec(regexp.QuoteMeta(`DELETE FROM documents WHERE id = ANY($1)`)).
		WithArgs(sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(regexp.QuoteMeta(`UPDATE documents SET source_path=$1 WHERE id=$2`)).
		WithArgs("docs/a.md", int64(11)).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	res, err := st.NormalizeSourcePaths(context.Background(), "/proj")
	if err != nil {
		t.Fatalf("NormalizeSourcePaths: %v", err)
	}
	if res.Removed != 1 || res.Renamed != 1 {
		t.Fatalf("unexpected result: %+v", res)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("expectations: %v", err)
	}
}

func TestNormalizeSourcePathsIdempotent(t *testing.T) {
	st, mock := newMockStore(t)

	ts := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)
	// Already canonical: no deletes, no renames.
	mock.ExpectQuery(regexp.QuoteMeta(`SELECT id, source_path, indexed_at FROM documents ORDER BY id`)).
		WillReturnRows(sqlmock.NewRows([]string{"id", "source_path", "indexed_at"}).
			AddRow(1, "docs/a.md", ts).
			AddRow(2, "docs/b.md", ts).
			AddRow(3, "https://example.com/page", ts))
	mock.ExpectBegin()
	mock.ExpectCommit()

	res, err := st.NormalizeSourcePaths(context.Background(), "/proj")
	if err != nil {
		t.Fatalf("NormalizeSourcePaths: %v", err)
	}
	if res.Removed != 0 || res.Renamed != 0 {
		t.Fatalf("second run should be a no-op, got %+v", res)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("expectations: %v", err)
	}
}

func TestNormalizeSourcePathsRequiresRoot(t *testing.T) {
	st, _ := newMockStore(t)
	if _, err := st.NormalizeSourcePaths(context.Background(), "  "); err == nil {
		t.Fatal("expected error for blank project root")
	}
}
