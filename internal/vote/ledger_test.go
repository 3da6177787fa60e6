package vote

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/opencivics/hustings/internal/auth"
	"github.com/opencivics/hustings/internal/question"
)

type stubRecomputer struct {
	score float64
	calls int
}

func (s *stubRecomputer) Recompute(ctx context.Context, questionID string) (float64, error) {
	s.calls++
	return s.score, nil
}

type stubRefresher struct {
	clusterIDs []string
}

func (s *stubRefresher) RecomputeAggregates(ctx context.Context, clusterID string) error {
	s.clusterIDs = append(s.clusterIDs, clusterID)
	return nil
}

var verified = auth.Actor{UserID: "user-1", Role: auth.RoleVoter, Verification: auth.VerificationVerified}

func seedQuestion(t *testing.T, repo *question.InMemoryRepository, id string, status question.Status) {
	t.Helper()
	q := &question.Question{
		ID:        id,
		ContestID: "c1",
		ClusterID: "cluster-" + id,
		Status:    status,
	}
	v := &question.Version{ID: id + "-v1", QuestionID: id, Number: 1, Text: "seed"}
	if err := repo.Create(context.Background(), q, v); err != nil {
		t.Fatalf("seed %s: %v", id, err)
	}
}

func newTestLedger(t *testing.T, weigh WeightFunc) (*Ledger, *InMemoryRepository, *question.InMemoryRepository, *stubRefresher) {
	t.Helper()
	votes := NewInMemoryRepository()
	questions := question.NewInMemoryRepository()
	refresher := &stubRefresher{}
	ledger := NewLedger(votes, questions, refresher, &stubRecomputer{score: 0.42}, weigh, nil, nil)
	return ledger, votes, questions, refresher
}

func TestCast_Upvote(t *testing.T) {
	ledger, votes, questions, refresher := newTestLedger(t, nil)
	seedQuestion(t, questions, "q1", question.StatusApproved)
	ctx := context.Background()

	res, err := ledger.Cast(ctx, verified, "q1", ValueUp, 0)
	if err != nil {
		t.Fatalf("Cast() error = %v", err)
	}
	if res.Upvotes != 1 || res.Downvotes != 0 {
		t.Errorf("counters = %d/%d, want 1/0", res.Upvotes, res.Downvotes)
	}
	if res.Value != ValueUp {
		t.Errorf("result value = %d, want 1", res.Value)
	}
	if res.RankScore != 0.42 {
		t.Errorf("rank score = %v, want the synchronously recomputed 0.42", res.RankScore)
	}

	v, err := votes.Get(ctx, "user-1", "q1")
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	if v.Value != ValueUp || v.Weight != 1.0 {
		t.Errorf("stored vote = %+v", v)
	}
	if len(refresher.clusterIDs) != 1 || refresher.clusterIDs[0] != "cluster-q1" {
		t.Errorf("aggregate refreshes = %v", refresher.clusterIDs)
	}
}

func TestCast_OneVotePerUser(t *testing.T) {
	ledger, votes, questions, _ := newTestLedger(t, nil)
	seedQuestion(t, questions, "q1", question.StatusApproved)
	ctx := context.Background()

	if _, err := ledger.Cast(ctx, verified, "q1", ValueUp, 0); err != nil {
		t.Fatalf("Cast() error = %v", err)
	}
	// Re-voting the same way changes nothing.
	res, err := ledger.Cast(ctx, verified, "q1", ValueUp, 0)
	if err != nil {
		t.Fatalf("Cast() error = %v", err)
	}
	if res.Upvotes != 1 {
		t.Errorf("upvotes after duplicate cast = %d, want 1", res.Upvotes)
	}

	all, _ := votes.ListByQuestion(ctx, "q1")
	if len(all) != 1 {
		t.Errorf("stored votes = %d, want 1 per user", len(all))
	}
}

func TestCast_ChangeVote(t *testing.T) {
	ledger, _, questions, _ := newTestLedger(t, nil)
	seedQuestion(t, questions, "q1", question.StatusApproved)
	ctx := context.Background()

	if _, err := ledger.Cast(ctx, verified, "q1", ValueUp, 0); err != nil {
		t.Fatalf("Cast() error = %v", err)
	}
	res, err := ledger.Cast(ctx, verified, "q1", ValueDown, 0)
	if err != nil {
		t.Fatalf("Cast() error = %v", err)
	}
	if res.Upvotes != 0 || res.Downvotes != 1 {
		t.Errorf("counters after flip = %d/%d, want 0/1", res.Upvotes, res.Downvotes)
	}
}

func TestCast_Retract(t *testing.T) {
	ledger, votes, questions, _ := newTestLedger(t, nil)
	seedQuestion(t, questions, "q1", question.StatusApproved)
	ctx := context.Background()

	if _, err := ledger.Cast(ctx, verified, "q1", ValueUp, 0); err != nil {
		t.Fatalf("Cast() error = %v", err)
	}
	res, err := ledger.Cast(ctx, verified, "q1", ValueRetract, 0)
	if err != nil {
		t.Fatalf("Cast() error = %v", err)
	}
	if res.Upvotes != 0 || res.Value != 0 {
		t.Errorf("retract result = %+v", res)
	}
	if _, err := votes.Get(ctx, "user-1", "q1"); !errors.Is(err, ErrNotFound) {
		t.Errorf("vote row should be deleted, got err = %v", err)
	}

	// Retracting again is a no-op, not an error.
	if _, err := ledger.Cast(ctx, verified, "q1", ValueRetract, 0); err != nil {
		t.Errorf("double retract error = %v", err)
	}
}

func TestCast_Rejections(t *testing.T) {
	ledger, _, questions, _ := newTestLedger(t, nil)
	seedQuestion(t, questions, "q1", question.StatusApproved)
	seedQuestion(t, questions, "q-merged", question.StatusMerged)
	seedQuestion(t, questions, "q-removed", question.StatusRemoved)
	ctx := context.Background()

	tests := []struct {
		name       string
		actor      auth.Actor
		questionID string
		value      int
		wantErr    error
	}{
		{"bad value high", verified, "q1", 2, ErrInvalidValue},
		{"bad value low", verified, "q1", -2, ErrInvalidValue},
		{"unverified", auth.Actor{UserID: "u2", Verification: auth.VerificationPending}, "q1", ValueUp, ErrNotVerified},
		{"merged target", verified, "q-merged", ValueUp, ErrNotVotable},
		{"removed target", verified, "q-removed", ValueUp, ErrNotVotable},
		{"missing question", verified, "nope", ValueUp, question.ErrNotFound},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := ledger.Cast(ctx, tt.actor, tt.questionID, tt.value, 0); !errors.Is(err, tt.wantErr) {
				t.Errorf("Cast() error = %v, want %v", err, tt.wantErr)
			}
		})
	}
}

func TestCast_WeightApplied(t *testing.T) {
	weigh := func(ctx context.Context, userID, questionID string, risk float64) float64 {
		return 0.25
	}
	ledger, votes, questions, _ := newTestLedger(t, weigh)
	seedQuestion(t, questions, "q1", question.StatusApproved)
	ctx := context.Background()

	if _, err := ledger.Cast(ctx, verified, "q1", ValueUp, 0.8); err != nil {
		t.Fatalf("Cast() error = %v", err)
	}
	v, _ := votes.Get(ctx, "user-1", "q1")
	if v.Weight != 0.25 {
		t.Errorf("stored weight = %v, want 0.25", v.Weight)
	}
	if v.DeviceRiskScore != 0.8 {
		t.Errorf("stored risk score = %v, want 0.8", v.DeviceRiskScore)
	}
}

func TestCast_WeightClamped(t *testing.T) {
	weigh := func(ctx context.Context, userID, questionID string, risk float64) float64 {
		return 3.5
	}
	ledger, votes, questions, _ := newTestLedger(t, weigh)
	seedQuestion(t, questions, "q1", question.StatusApproved)

	if _, err := ledger.Cast(context.Background(), verified, "q1", ValueUp, 0); err != nil {
		t.Fatalf("Cast() error = %v", err)
	}
	v, _ := votes.Get(context.Background(), "user-1", "q1")
	if v.Weight != 1.0 {
		t.Errorf("weight = %v, want clamped to 1.0", v.Weight)
	}
}

func TestCast_ConcurrentUsers(t *testing.T) {
	ledger, _, questions, _ := newTestLedger(t, nil)
	seedQuestion(t, questions, "q1", question.StatusApproved)
	ctx := context.Background()

	const voters = 20
	var wg sync.WaitGroup
	errs := make(chan error, voters)
	for i := 0; i < voters; i++ {
		wg.Add(1)
		go func(n int) {
			defer wg.Done()
			actor := auth.Actor{
				UserID:       "user-" + string(rune('a'+n)),
				Verification: auth.VerificationVerified,
			}
			if _, err := ledger.Cast(ctx, actor, "q1", ValueUp, 0); err != nil {
				errs <- err
			}
		}(i)
	}
	wg.Wait()
	close(errs)
	conflicts := 0
	for err := range errs {
		// CAS retries may exhaust under extreme contention; anything else fails.
		if !errors.Is(err, ErrConflict) {
			t.Fatalf("concurrent Cast() error = %v", err)
		}
		conflicts++
	}

	q, _ := questions.GetByID(ctx, "q1")
	if want := int64(voters - conflicts); q.Upvotes != want {
		t.Errorf("counter = %d, want %d successful casts reflected", q.Upvotes, want)
	}
}

func TestInMemoryRepository_PutPreservesCreatedAt(t *testing.T) {
	repo := NewInMemoryRepository()
	ctx := context.Background()

	v := &Vote{UserID: "u1", QuestionID: "q1", Value: ValueUp, Weight: 1}
	if err := repo.Put(ctx, v); err != nil {
		t.Fatalf("Put() error = %v", err)
	}
	first, _ := repo.Get(ctx, "u1", "q1")

	v.Value = ValueDown
	if err := repo.Put(ctx, v); err != nil {
		t.Fatalf("Put() error = %v", err)
	}
	second, _ := repo.Get(ctx, "u1", "q1")

	if !second.CreatedAt.Equal(first.CreatedAt) {
		t.Error("re-voting must keep the original CreatedAt")
	}
	if second.Value != ValueDown {
		t.Errorf("value = %d, want -1", second.Value)
	}
}
