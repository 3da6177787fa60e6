package question

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"testing"
	"time"

	"github.com/testcontainers/testcontainers-go"
	tcpostgres "github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"
)

// startPostgres spins up a throwaway Postgres and applies the migrations.
// Skipped with -short or when no container runtime is available.
func startPostgres(t *testing.T) *sql.DB {
	t.Helper()
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}
	ctx := context.Background()

	// testcontainers panics instead of returning an error when no Docker
	// host can be detected; recover so the skip below still fires.
	container, err := func() (c *tcpostgres.PostgresContainer, err error) {
		defer func() {
			if r := recover(); r != nil {
				err = fmt.Errorf("%v", r)
			}
		}()
		return tcpostgres.Run(ctx, "postgres:16-alpine",
			tcpostgres.WithDatabase("hustings_test"),
			tcpostgres.WithUsername("hustings"),
			tcpostgres.WithPassword("hustings"),
			testcontainers.WithWaitStrategy(
				wait.ForLog("database system is ready to accept connections").
					WithOccurrence(2).
					WithStartupTimeout(time.Minute)),
		)
	}()
	if err != nil {
		t.Skipf("container runtime unavailable: %v", err)
	}
	t.Cleanup(func() {
		if err := testcontainers.TerminateContainer(container); err != nil {
			t.Logf("failed to terminate container: %v", err)
		}
	})

	connStr, err := container.ConnectionString(ctx, "sslmode=disable")
	if err != nil {
		t.Fatalf("connection string: %v", err)
	}
	db, err := sql.Open("postgres", connStr)
	if err != nil {
		t.Fatalf("open database: %v", err)
	}
	t.Cleanup(func() { db.Close() })

	applyMigrations(t, db)
	return db
}

func applyMigrations(t *testing.T, db *sql.DB) {
	t.Helper()
	dir := filepath.Join("..", "..", "migrations")
	entries, err := os.ReadDir(dir)
	if err != nil {
		t.Fatalf("read migrations dir: %v", err)
	}
	var ups []string
	for _, e := range entries {
		if strings.HasSuffix(e.Name(), ".up.sql") {
			ups = append(ups, e.Name())
		}
	}
	sort.Strings(ups)
	for _, name := range ups {
		content, err := os.ReadFile(filepath.Join(dir, name))
		if err != nil {
			t.Fatalf("read migration %s: %v", name, err)
		}
		if _, err := db.Exec(string(content)); err != nil {
			t.Fatalf("apply migration %s: %v", name, err)
		}
	}
}

func TestPostgresRepository_CreateAndGet(t *testing.T) {
	db := startPostgres(t)
	repo := NewPostgresRepository(db, nil)
	ctx := context.Background()

	authorID := "user-1"
	q := &Question{
		ID:        "q1",
		ContestID: "c1",
		AuthorID:  &authorID,
		Text:      "What is your plan for affordable housing?",
		Tags:      []string{"housing", "zoning"},
		Status:    StatusApproved,
		Embedding: []float32{0.1, 0.2, 0.3},
		CreatedAt: time.Now().UTC(),
	}
	v := &Version{
		ID: "q1-v1", QuestionID: "q1", Number: 1,
		Text: q.Text, EditorID: "user-1", CreatedAt: q.CreatedAt,
	}
	if err := repo.Create(ctx, q, v); err != nil {
		t.Fatalf("Create() error = %v", err)
	}

	got, err := repo.GetByID(ctx, "q1")
	if err != nil {
		t.Fatalf("GetByID() error = %v", err)
	}
	if got.Text != q.Text || got.Status != StatusApproved {
		t.Errorf("round trip = %+v", got)
	}
	if got.AuthorID == nil || *got.AuthorID != "user-1" {
		t.Error("author id lost in round trip")
	}
	if len(got.Tags) != 2 || got.Tags[0] != "housing" {
		t.Errorf("tags = %v", got.Tags)
	}
	if len(got.Embedding) != 3 {
		t.Errorf("embedding = %v", got.Embedding)
	}
	if got.CurrentVersionID != "q1-v1" {
		t.Errorf("current version = %q", got.CurrentVersionID)
	}

	if _, err := repo.GetByID(ctx, "ghost"); !errors.Is(err, ErrNotFound) {
		t.Errorf("GetByID(ghost) error = %v, want ErrNotFound", err)
	}
}

func TestPostgresRepository_Versions(t *testing.T) {
	db := startPostgres(t)
	repo := NewPostgresRepository(db, nil)
	ctx := context.Background()

	now := time.Now().UTC()
	q := &Question{ID: "q1", ContestID: "c1", Text: "What is the first version text?", Status: StatusApproved, CreatedAt: now}
	v1 := &Version{ID: "q1-v1", QuestionID: "q1", Number: 1, Text: q.Text, EditorID: "user-1", CreatedAt: now}
	if err := repo.Create(ctx, q, v1); err != nil {
		t.Fatalf("Create() error = %v", err)
	}

	v2 := &Version{
		ID: "q1-v2", QuestionID: "q1", Number: 2,
		Text: "What is the second version text?", EditorID: "user-1",
		Reason: "clarify", CreatedAt: now.Add(time.Second),
	}
	if err := repo.AddVersion(ctx, v2); err != nil {
		t.Fatalf("AddVersion() error = %v", err)
	}

	got, err := repo.GetByID(ctx, "q1")
	if err != nil {
		t.Fatalf("GetByID() error = %v", err)
	}
	if got.CurrentVersionID != "q1-v2" || got.Text != v2.Text {
		t.Errorf("current pointer = %q, text = %q", got.CurrentVersionID, got.Text)
	}

	versions, err := repo.ListVersions(ctx, "q1")
	if err != nil {
		t.Fatalf("ListVersions() error = %v", err)
	}
	if len(versions) != 2 || versions[0].Number != 1 || versions[1].Reason != "clarify" {
		t.Errorf("versions = %v", versions)
	}

	// Duplicate version number violates the uniqueness constraint.
	dup := &Version{ID: "q1-v2b", QuestionID: "q1", Number: 2, Text: "duplicate number text here", CreatedAt: now}
	if err := repo.AddVersion(ctx, dup); err == nil {
		t.Error("AddVersion() with a duplicate number should fail")
	}
}

func TestPostgresRepository_CompareAndSwapCounts(t *testing.T) {
	db := startPostgres(t)
	repo := NewPostgresRepository(db, nil)
	ctx := context.Background()

	now := time.Now().UTC()
	q := &Question{ID: "q1", ContestID: "c1", Text: "What about the vote counters?", Status: StatusApproved, CreatedAt: now}
	if err := repo.Create(ctx, q, &Version{ID: "q1-v1", QuestionID: "q1", Number: 1, Text: q.Text, CreatedAt: now}); err != nil {
		t.Fatalf("Create() error = %v", err)
	}

	swapped, err := repo.CompareAndSwapCounts(ctx, "q1", 0, 0, 1, 0)
	if err != nil {
		t.Fatalf("CompareAndSwapCounts() error = %v", err)
	}
	if !swapped {
		t.Fatal("first swap should win")
	}

	// Stale expectation loses without error.
	swapped, err = repo.CompareAndSwapCounts(ctx, "q1", 0, 0, 2, 0)
	if err != nil {
		t.Fatalf("CompareAndSwapCounts() error = %v", err)
	}
	if swapped {
		t.Error("stale swap should lose")
	}

	got, _ := repo.GetByID(ctx, "q1")
	if got.Upvotes != 1 {
		t.Errorf("upvotes = %d, want 1", got.Upvotes)
	}
}

func TestPostgresRepository_ListUnembedded(t *testing.T) {
	db := startPostgres(t)
	repo := NewPostgresRepository(db, nil)
	ctx := context.Background()

	base := time.Now().UTC().Add(-time.Hour)
	seed := func(id string, embedding []float32, status Status, at time.Time) {
		q := &Question{ID: id, ContestID: "c1", Text: "Seed text for " + id + " padded out", Status: status, Embedding: embedding, CreatedAt: at}
		if err := repo.Create(ctx, q, &Version{ID: id + "-v1", QuestionID: id, Number: 1, Text: q.Text, CreatedAt: at}); err != nil {
			t.Fatalf("seed %s: %v", id, err)
		}
	}
	seed("q-old", nil, StatusApproved, base)
	seed("q-new", nil, StatusApproved, base.Add(time.Minute))
	seed("q-done", []float32{1}, StatusApproved, base)
	seed("q-removed", nil, StatusRemoved, base)

	got, err := repo.ListUnembedded(ctx, 10)
	if err != nil {
		t.Fatalf("ListUnembedded() error = %v", err)
	}
	if len(got) != 2 || got[0].ID != "q-old" || got[1].ID != "q-new" {
		ids := make([]string, len(got))
		for i, q := range got {
			ids[i] = q.ID
		}
		t.Errorf("unembedded = %v, want [q-old q-new]", ids)
	}

	// SetEmbedding clears it from the backlog.
	if err := repo.SetEmbedding(ctx, "q-old", []float32{0.5, 0.5}); err != nil {
		t.Fatalf("SetEmbedding() error = %v", err)
	}
	got, _ = repo.ListUnembedded(ctx, 10)
	if len(got) != 1 || got[0].ID != "q-new" {
		t.Errorf("unembedded after backfill = %v", got)
	}
}
