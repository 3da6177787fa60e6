package audit

import (
	"context"
	"errors"
	"net/http/httptest"
	"testing"

	"github.com/opencivics/hustings/internal/middleware"
)

func TestValidateEntry(t *testing.T) {
	tests := []struct {
		name       string
		entityType string
		entityID   string
		action     string
		wantErr    error
	}{
		{
			name:       "valid question flag",
			entityType: EntityQuestion,
			entityID:   "q-1",
			action:     ActionFlagQuestion,
		},
		{
			name:       "valid report resolve",
			entityType: EntityReport,
			entityID:   "r-1",
			action:     ActionResolveReport,
		},
		{
			name:       "valid cluster merge",
			entityType: EntityCluster,
			entityID:   "cl-1",
			action:     ActionMergeQuestion,
		},
		{
			name:       "empty entity type",
			entityType: "",
			entityID:   "q-1",
			action:     ActionFlagQuestion,
			wantErr:    ErrInvalidEntityType,
		},
		{
			name:       "unknown entity type",
			entityType: "payment",
			entityID:   "p-1",
			action:     ActionFlagQuestion,
			wantErr:    ErrInvalidEntityType,
		},
		{
			name:       "empty entity ID",
			entityType: EntityQuestion,
			entityID:   "",
			action:     ActionFlagQuestion,
			wantErr:    ErrInvalidEntityID,
		},
		{
			name:       "empty action",
			entityType: EntityQuestion,
			entityID:   "q-1",
			action:     "",
			wantErr:    ErrInvalidAction,
		},
		{
			name:       "unknown action",
			entityType: EntityQuestion,
			entityID:   "q-1",
			action:     "delete_everything",
			wantErr:    ErrInvalidAction,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := validateEntry(tt.entityType, tt.entityID, tt.action)
			if !errors.Is(err, tt.wantErr) {
				t.Errorf("validateEntry() error = %v, want %v", err, tt.wantErr)
			}
		})
	}
}

func TestInMemoryRepository_QueryByEntity(t *testing.T) {
	repo := NewInMemoryRepository()

	entries := []Entry{
		{ActorID: "mod-1", EntityType: EntityQuestion, EntityID: "q-1", Action: ActionFlagQuestion},
		{ActorID: "mod-2", EntityType: EntityQuestion, EntityID: "q-2", Action: ActionFlagQuestion},
		{ActorID: "mod-1", EntityType: EntityQuestion, EntityID: "q-1", Action: ActionRemoveQuestion},
		{ActorID: "mod-1", EntityType: EntityReport, EntityID: "q-1", Action: ActionFileReport},
	}
	for _, entry := range entries {
		if _, err := repo.Append(entry); err != nil {
			t.Fatalf("Append() error = %v", err)
		}
	}

	records, err := repo.QueryByEntity(EntityQuestion, "q-1", 0)
	if err != nil {
		t.Fatalf("QueryByEntity() error = %v", err)
	}
	if len(records) != 2 {
		t.Fatalf("QueryByEntity() returned %d records, want 2", len(records))
	}
	// Newest first.
	if records[0].Action != ActionRemoveQuestion {
		t.Errorf("records[0].Action = %q, want %q", records[0].Action, ActionRemoveQuestion)
	}
	if records[1].Action != ActionFlagQuestion {
		t.Errorf("records[1].Action = %q, want %q", records[1].Action, ActionFlagQuestion)
	}

	limited, err := repo.QueryByEntity(EntityQuestion, "q-1", 1)
	if err != nil {
		t.Fatalf("QueryByEntity() error = %v", err)
	}
	if len(limited) != 1 {
		t.Errorf("QueryByEntity() with limit 1 returned %d records", len(limited))
	}
}

func TestInMemoryRepository_QueryByActor(t *testing.T) {
	repo := NewInMemoryRepository()

	entries := []Entry{
		{ActorID: "mod-1", EntityType: EntityQuestion, EntityID: "q-1", Action: ActionFlagQuestion},
		{ActorID: "mod-2", EntityType: EntityQuestion, EntityID: "q-2", Action: ActionRemoveQuestion},
		{ActorID: "mod-1", EntityType: EntityReport, EntityID: "r-1", Action: ActionResolveReport},
	}
	for _, entry := range entries {
		if _, err := repo.Append(entry); err != nil {
			t.Fatalf("Append() error = %v", err)
		}
	}

	records, err := repo.QueryByActor("mod-1", 0)
	if err != nil {
		t.Fatalf("QueryByActor() error = %v", err)
	}
	if len(records) != 2 {
		t.Fatalf("QueryByActor() returned %d records, want 2", len(records))
	}
	if records[0].Action != ActionResolveReport {
		t.Errorf("records[0].Action = %q, want %q (newest first)", records[0].Action, ActionResolveReport)
	}
}

func TestInMemoryRepository_ReturnsCopies(t *testing.T) {
	repo := NewInMemoryRepository()

	rec, err := repo.Append(Entry{
		ActorID: "mod-1", EntityType: EntityQuestion, EntityID: "q-1",
		Action: ActionFlagQuestion,
	})
	if err != nil {
		t.Fatalf("Append() error = %v", err)
	}

	// Mutating the returned record must not affect the stored one.
	rec.Action = "tampered"

	valid, err := repo.VerifyHashChain()
	if err != nil {
		t.Fatalf("VerifyHashChain() error = %v", err)
	}
	if !valid {
		t.Error("mutating a returned record corrupted the stored chain")
	}

	stored, err := repo.QueryByEntity(EntityQuestion, "q-1", 0)
	if err != nil {
		t.Fatalf("QueryByEntity() error = %v", err)
	}
	if len(stored) != 1 || stored[0].Action != ActionFlagQuestion {
		t.Error("stored record should be unaffected by caller mutation")
	}
}

func TestRecordAction(t *testing.T) {
	repo := NewInMemoryRepository()

	err := RecordAction(context.Background(), repo, "mod-1", EntityQuestion, "q-1", ActionRemoveQuestion, OutcomeSuccess)
	if err != nil {
		t.Fatalf("RecordAction() error = %v", err)
	}

	records, err := repo.QueryByEntity(EntityQuestion, "q-1", 0)
	if err != nil {
		t.Fatalf("QueryByEntity() error = %v", err)
	}
	if len(records) != 1 {
		t.Fatalf("expected 1 record, got %d", len(records))
	}
	if records[0].ActorID != "mod-1" {
		t.Errorf("ActorID = %q, want %q", records[0].ActorID, "mod-1")
	}
}

func TestRecordAction_ActorFromContext(t *testing.T) {
	repo := NewInMemoryRepository()
	ctx := middleware.SetUserID(context.Background(), "ctx-mod")

	err := RecordAction(ctx, repo, "", EntityReport, "r-1", ActionDismissReport, OutcomeSuccess)
	if err != nil {
		t.Fatalf("RecordAction() error = %v", err)
	}

	records, err := repo.QueryByActor("ctx-mod", 0)
	if err != nil {
		t.Fatalf("QueryByActor() error = %v", err)
	}
	if len(records) != 1 {
		t.Fatalf("expected 1 record for context actor, got %d", len(records))
	}
}

func TestRecordAction_Validation(t *testing.T) {
	repo := NewInMemoryRepository()

	if err := RecordAction(context.Background(), nil, "mod-1", EntityQuestion, "q-1", ActionFlagQuestion, ""); !errors.Is(err, ErrNilRepository) {
		t.Errorf("nil repo error = %v, want ErrNilRepository", err)
	}
	if err := RecordAction(context.Background(), repo, "mod-1", "scene", "s-1", ActionFlagQuestion, ""); !errors.Is(err, ErrInvalidEntityType) {
		t.Errorf("bad entity type error = %v, want ErrInvalidEntityType", err)
	}
	if err := RecordAction(context.Background(), repo, "mod-1", EntityQuestion, "q-1", "promote", ""); !errors.Is(err, ErrInvalidAction) {
		t.Errorf("bad action error = %v, want ErrInvalidAction", err)
	}
}

func TestRecordFromRequest(t *testing.T) {
	repo := NewInMemoryRepository()

	req := httptest.NewRequest("POST", "/questions/q-1/flag", nil)
	req.RemoteAddr = "203.0.113.7:54321"
	req.Header.Set("User-Agent", "hustings-test/1.0")
	req = req.WithContext(middleware.SetUserID(req.Context(), "mod-9"))

	if err := RecordFromRequest(req, repo, EntityQuestion, "q-1", ActionFlagQuestion, OutcomeSuccess); err != nil {
		t.Fatalf("RecordFromRequest() error = %v", err)
	}

	records, err := repo.QueryByEntity(EntityQuestion, "q-1", 0)
	if err != nil {
		t.Fatalf("QueryByEntity() error = %v", err)
	}
	if len(records) != 1 {
		t.Fatalf("expected 1 record, got %d", len(records))
	}
	rec := records[0]
	if rec.ActorID != "mod-9" {
		t.Errorf("ActorID = %q, want %q", rec.ActorID, "mod-9")
	}
	if rec.IPAddress != "203.0.113.7" {
		t.Errorf("IPAddress = %q, want %q", rec.IPAddress, "203.0.113.7")
	}
	if rec.UserAgent != "hustings-test/1.0" {
		t.Errorf("UserAgent = %q, want %q", rec.UserAgent, "hustings-test/1.0")
	}
}

func TestExtractIPAddress(t *testing.T) {
	tests := []struct {
		name       string
		remoteAddr string
		headers    map[string]string
		want       string
	}{
		{
			name:       "remote addr with port",
			remoteAddr: "192.0.2.1:8080",
			want:       "192.0.2.1",
		},
		{
			name:       "x-forwarded-for single",
			remoteAddr: "10.0.0.1:1234",
			headers:    map[string]string{"X-Forwarded-For": "198.51.100.4"},
			want:       "198.51.100.4",
		},
		{
			name:       "x-forwarded-for chain takes first",
			remoteAddr: "10.0.0.1:1234",
			headers:    map[string]string{"X-Forwarded-For": "198.51.100.4, 10.0.0.2, 10.0.0.3"},
			want:       "198.51.100.4",
		},
		{
			name:       "x-real-ip fallback",
			remoteAddr: "10.0.0.1:1234",
			headers:    map[string]string{"X-Real-IP": "203.0.113.9"},
			want:       "203.0.113.9",
		},
		{
			name:       "xff preferred over x-real-ip",
			remoteAddr: "10.0.0.1:1234",
			headers: map[string]string{
				"X-Forwarded-For": "198.51.100.4",
				"X-Real-IP":       "203.0.113.9",
			},
			want: "198.51.100.4",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest("GET", "/", nil)
			req.RemoteAddr = tt.remoteAddr
			for k, v := range tt.headers {
				req.Header.Set(k, v)
			}
			if got := extractIPAddress(req); got != tt.want {
				t.Errorf("extractIPAddress() = %q, want %q", got, tt.want)
			}
		})
	}
}
