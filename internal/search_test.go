package database

import (
	"context"
	"regexp"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
)

func TestVectorLiteral(t *testing.T) {
	cases := []struct {
		in   []float32
		want string
	}{
		{nil, "[]"},
		{[]float32{0}, "[0]"},
		{[]float32{0.5, -1, 2}, "[0.5,-1,2]"},
	}
	for _, c := range cases {
		if got := VectorLiteral(c.in); got != c.want {
			t.Fatalf("VectorLiteral(%v) = %q, want %q", c.in, got, c.want)
		}
	}
}

func TestVectorLiteralRoundTripPrecision(t *testing.T) {
	// the literal must parse back to the same float32s
	in := []float32{0.123456789, -0.000001, 3.1415927}
	got := VectorLiteral(in)
	if matched, _ := regexp.MatchString(`^\[[-0-9.,e+]+\]$`, got); !matched {
		t.Fatalf("not a pgvector literal: %q", got)
	}
}

func TestMatchChunks(t *testing.T) {
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherRegexp))
	if err != nil {
		t.Fatalf("sqlmock: %v", err)
	}
	old := DB
	DB = sqlx.NewDb(db, "sqlmock")
	defer func() {
		DB.Close()
		DB = old
	}()

	userID := uuid.New()
	docID := uuid.New()
	embedding := []float32{0.1, 0.2}

	mock.ExpectQuery(regexp.QuoteMeta("FROM document_chunks c")).
		WithArgs(VectorLiteral(embedding), userID, 0.5, 3).
		WillReturnRows(sqlmock.NewRows([]string{"document_id", "filename", "content", "similarity"}).
			AddRow(docID, "visit.pdf", "Prescribed metformin.", 0.83).
			AddRow(docID, "visit.pdf", "Follow up in 3 months.", 0.61))

	matches, err := MatchChunks(context.Background(), userID, embedding, 0.5, 3)
	if err != nil {
		t.Fatalf("match: %v", err)
	}
	if len(matches) != 2 {
		t.Fatalf("expected 2 matches, got %d", len(matches))
	}
	if matches[0].Filename != "visit.pdf" || matches[0].Similarity != 0.83 {
		t.Fatalf("unexpected first match: %+v", matches[0])
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("db expectations: %v", err)
	}
}

func TestMatchChunksDefaultCount(t *testing.T) {
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherRegexp))
	if err != nil {
		t.Fatalf("sqlmock: %v", err)
	}
	old := DB
	DB = sqlx.NewDb(db, "sqlmock")
	defer func() {
		DB.Close()
		DB = old
	}()

	userID := uuid.New()
	mock.ExpectQuery(regexp.QuoteMeta("FROM document_chunks c")).
		WithArgs(sqlmock.AnyArg(), userID, 0.5, 5).
		WillReturnRows(sqlmock.NewRows([]string{"document_id", "filename", "content", "similarity"}))

	matches, err := MatchChunks(context.Background(), userID, []float32{0.1}, 0.5, 0)
	if err != nil {
		t.Fatalf("match: %v", err)
	}
	if len(matches) != 0 {
		t.Fatalf("expected no matches, got %d", len(matches))
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("db expectations: %v", err)
	}
}
