package api

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/opencivics/hustings/internal/auth"
	"github.com/opencivics/hustings/internal/cluster"
	"github.com/opencivics/hustings/internal/dedup"
	"github.com/opencivics/hustings/internal/embed"
	"github.com/opencivics/hustings/internal/moderation"
	"github.com/opencivics/hustings/internal/question"
	"github.com/opencivics/hustings/internal/ranking"
	"github.com/opencivics/hustings/internal/vecindex"
	"github.com/opencivics/hustings/internal/vote"
)

// fixedEmbedder returns the same vector for every text, so any two
// submissions in a contest collide as duplicates.
type fixedEmbedder struct{}

func (fixedEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	return []float32{1, 0, 0}, nil
}

func (fixedEmbedder) Dimensions() int { return 3 }

// distinctEmbedder assigns each distinct text its own axis, so nothing
// collides.
type distinctEmbedder struct {
	mu   sync.Mutex
	axes map[string]int
}

func newDistinctEmbedder() *distinctEmbedder {
	return &distinctEmbedder{axes: make(map[string]int)}
}

func (e *distinctEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	axis, ok := e.axes[text]
	if !ok {
		axis = len(e.axes)
		e.axes[text] = axis
	}
	vec := make([]float32, e.Dimensions())
	vec[axis] = 1
	return vec, nil
}

func (e *distinctEmbedder) Dimensions() int { return 8 }

type apiFixture struct {
	handler http.Handler
	parser  *auth.TokenParser
}

func newAPIFixture(t *testing.T, embedder embed.Provider) *apiFixture {
	t.Helper()

	questions := question.NewInMemoryRepository()
	clusters := cluster.NewInMemoryRepository()
	votes := vote.NewInMemoryRepository()
	reports := moderation.NewInMemoryRepository()
	index := vecindex.New(embedder.Dimensions())
	pending := vecindex.NewPendingTracker()

	manager := cluster.NewManager(clusters, questions, nil)
	dedupEngine := dedup.NewEngine(embedder, index, questions, 0.85, nil, nil)
	screen := question.NewTermScreen([]string{"giveaway"})
	questionEngine := question.NewEngine(questions, dedupEngine, manager, index, pending, screen, nil)
	rankingEngine := ranking.NewEngine(questions, clusters, votes, manager, nil, ranking.Selection{}, nil)
	ledger := vote.NewLedger(votes, questions, manager, rankingEngine, nil, nil, nil)
	modService := moderation.NewService(questions, manager, index, reports, dedupEngine, pending, nil, nil, nil)

	router := NewRouter(RouterConfig{
		Questions:  NewQuestionHandlers(questionEngine, questions, nil),
		Votes:      NewVoteHandlers(ledger, nil),
		TopList:    NewTopListHandlers(rankingEngine),
		Moderation: NewModerationHandlers(modService, nil),
		Health:     NewHealthHandlers(HealthHandlersConfig{}),
	})

	parser := auth.NewTokenParser("test-secret")
	return &apiFixture{
		handler: Authenticate(parser)(router),
		parser:  parser,
	}
}

func (f *apiFixture) token(t *testing.T, actor auth.Actor) string {
	t.Helper()
	token, err := f.parser.Sign(actor, time.Hour)
	if err != nil {
		t.Fatalf("sign token: %v", err)
	}
	return token
}

func (f *apiFixture) do(t *testing.T, method, path, token, body string) *httptest.ResponseRecorder {
	t.Helper()
	var reader *strings.Reader
	if body == "" {
		reader = strings.NewReader("{}")
	} else {
		reader = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, path, reader)
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	f.handler.ServeHTTP(rec, req)
	return rec
}

func decodeError(t *testing.T, rec *httptest.ResponseRecorder) string {
	t.Helper()
	var resp ErrorResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode error body %q: %v", rec.Body.String(), err)
	}
	return resp.Error.Code
}

var (
	voterActor = auth.Actor{UserID: "user-1", Role: auth.RoleVoter, Verification: auth.VerificationVerified}
	modActor   = auth.Actor{UserID: "mod-1", Role: auth.RoleModerator, Verification: auth.VerificationVerified}
)

const questionBody = `{"text":"What is your plan for affordable housing?","tags":["housing"]}`

func submitQuestion(t *testing.T, f *apiFixture, token, body string) question.Question {
	t.Helper()
	rec := f.do(t, http.MethodPost, "/contests/c1/questions", token, body)
	if rec.Code != http.StatusCreated {
		t.Fatalf("submit status = %d, body %s", rec.Code, rec.Body.String())
	}
	var q question.Question
	if err := json.Unmarshal(rec.Body.Bytes(), &q); err != nil {
		t.Fatalf("decode question: %v", err)
	}
	return q
}

func TestSubmitQuestion(t *testing.T) {
	f := newAPIFixture(t, newDistinctEmbedder())
	token := f.token(t, voterActor)

	q := submitQuestion(t, f, token, questionBody)
	if q.Status != question.StatusApproved {
		t.Errorf("status = %s, want approved", q.Status)
	}
	if q.ClusterID == "" {
		t.Error("submitted question should be clustered")
	}
	if q.AuthorID == nil || *q.AuthorID != "user-1" {
		t.Error("author not recorded from the token subject")
	}
}

func TestSubmitQuestion_Rejections(t *testing.T) {
	f := newAPIFixture(t, newDistinctEmbedder())
	token := f.token(t, voterActor)

	tests := []struct {
		name     string
		token    string
		body     string
		wantCode int
		wantErr  string
	}{
		{"no token", "", questionBody, http.StatusUnauthorized, ErrCodeAuthFailed},
		{"bad json", token, "{nope", http.StatusBadRequest, ErrCodeBadRequest},
		{"short text", token, `{"text":"short"}`, http.StatusBadRequest, ErrCodeValidation},
		{"bad tag", token, `{"text":"What is your plan for affordable housing?","tags":["Not A Slug"]}`, http.StatusBadRequest, ErrCodeValidation},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := f.do(t, http.MethodPost, "/contests/c1/questions", tt.token, tt.body)
			if rec.Code != tt.wantCode {
				t.Errorf("status = %d, want %d", rec.Code, tt.wantCode)
			}
			if got := decodeError(t, rec); got != tt.wantErr {
				t.Errorf("error code = %s, want %s", got, tt.wantErr)
			}
		})
	}
}

func TestSubmitQuestion_DuplicateMerged(t *testing.T) {
	f := newAPIFixture(t, fixedEmbedder{})
	token := f.token(t, voterActor)

	first := submitQuestion(t, f, token, questionBody)
	second := submitQuestion(t, f, token, `{"text":"What's your affordable housing plan, then?"}`)

	if second.Status != question.StatusMerged {
		t.Errorf("duplicate status = %s, want merged", second.Status)
	}
	if second.ClusterID != first.ClusterID {
		t.Error("duplicate should share the original's cluster")
	}
}

func TestGetQuestion(t *testing.T) {
	f := newAPIFixture(t, newDistinctEmbedder())
	token := f.token(t, voterActor)
	q := submitQuestion(t, f, token, questionBody)

	// Reads are public: no token needed.
	rec := f.do(t, http.MethodGet, "/questions/"+q.ID, "", "")
	if rec.Code != http.StatusOK {
		t.Errorf("status = %d, body %s", rec.Code, rec.Body.String())
	}

	rec = f.do(t, http.MethodGet, "/questions/ghost", "", "")
	if rec.Code != http.StatusNotFound {
		t.Errorf("missing question status = %d, want 404", rec.Code)
	}
}

func TestListQuestions_ExcludesRemoved(t *testing.T) {
	f := newAPIFixture(t, newDistinctEmbedder())
	voterToken := f.token(t, voterActor)
	modToken := f.token(t, modActor)

	keep := submitQuestion(t, f, voterToken, questionBody)
	gone := submitQuestion(t, f, voterToken, `{"text":"Will you fund protected bike lanes?"}`)

	if rec := f.do(t, http.MethodPost, "/questions/"+gone.ID+"/remove", modToken, ""); rec.Code != http.StatusNoContent {
		t.Fatalf("remove status = %d, body %s", rec.Code, rec.Body.String())
	}

	rec := f.do(t, http.MethodGet, "/contests/c1/questions", "", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("list status = %d", rec.Code)
	}
	var resp struct {
		Questions []*question.Question `json:"questions"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode list: %v", err)
	}
	if len(resp.Questions) != 1 || resp.Questions[0].ID != keep.ID {
		t.Errorf("visible questions = %v", resp.Questions)
	}
}

func TestEditQuestion(t *testing.T) {
	f := newAPIFixture(t, newDistinctEmbedder())
	authorToken := f.token(t, voterActor)
	q := submitQuestion(t, f, authorToken, questionBody)

	edit := `{"text":"What is your detailed plan for affordable housing?","reason":"clarify"}`
	rec := f.do(t, http.MethodPatch, "/questions/"+q.ID, authorToken, edit)
	if rec.Code != http.StatusOK {
		t.Fatalf("edit status = %d, body %s", rec.Code, rec.Body.String())
	}
	var v question.Version
	if err := json.Unmarshal(rec.Body.Bytes(), &v); err != nil {
		t.Fatalf("decode version: %v", err)
	}
	if v.Number != 2 {
		t.Errorf("version number = %d, want 2", v.Number)
	}

	// A different non-moderator user may not edit.
	strangerToken := f.token(t, auth.Actor{UserID: "user-2", Role: auth.RoleVoter, Verification: auth.VerificationVerified})
	rec = f.do(t, http.MethodPatch, "/questions/"+q.ID, strangerToken, edit)
	if rec.Code != http.StatusForbidden {
		t.Errorf("stranger edit status = %d, want 403", rec.Code)
	}

	// Version history is public, oldest first.
	rec = f.do(t, http.MethodGet, "/questions/"+q.ID+"/versions", "", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("versions status = %d", rec.Code)
	}
	var hist struct {
		Versions []*question.Version `json:"versions"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &hist); err != nil {
		t.Fatalf("decode versions: %v", err)
	}
	if len(hist.Versions) != 2 || hist.Versions[0].Number != 1 {
		t.Errorf("history = %v", hist.Versions)
	}
}

func TestCastVote(t *testing.T) {
	f := newAPIFixture(t, newDistinctEmbedder())
	token := f.token(t, voterActor)
	q := submitQuestion(t, f, token, questionBody)

	rec := f.do(t, http.MethodPost, "/questions/"+q.ID+"/vote", token, `{"value":1}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("vote status = %d, body %s", rec.Code, rec.Body.String())
	}
	var result vote.Result
	if err := json.Unmarshal(rec.Body.Bytes(), &result); err != nil {
		t.Fatalf("decode result: %v", err)
	}
	if result.Upvotes != 1 || result.Value != 1 {
		t.Errorf("result = %+v", result)
	}
	if result.RankScore != 1 {
		t.Errorf("rank score = %v, want the fresh weighted net of 1", result.RankScore)
	}

	// Retract.
	rec = f.do(t, http.MethodPost, "/questions/"+q.ID+"/vote", token, `{"value":0}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("retract status = %d", rec.Code)
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &result); err != nil {
		t.Fatalf("decode result: %v", err)
	}
	if result.Upvotes != 0 {
		t.Errorf("upvotes after retract = %d, want 0", result.Upvotes)
	}
}

func TestCastVote_Rejections(t *testing.T) {
	f := newAPIFixture(t, fixedEmbedder{})
	token := f.token(t, voterActor)
	q := submitQuestion(t, f, token, questionBody)
	merged := submitQuestion(t, f, token, `{"text":"What's your affordable housing plan, then?"}`)

	unverifiedToken := f.token(t, auth.Actor{UserID: "user-3", Role: auth.RoleVoter, Verification: auth.VerificationPending})

	tests := []struct {
		name     string
		token    string
		path     string
		body     string
		wantCode int
		wantErr  string
	}{
		{"no token", "", "/questions/" + q.ID + "/vote", `{"value":1}`, http.StatusUnauthorized, ErrCodeAuthFailed},
		{"bad value", token, "/questions/" + q.ID + "/vote", `{"value":5}`, http.StatusBadRequest, ErrCodeValidation},
		{"unverified", unverifiedToken, "/questions/" + q.ID + "/vote", `{"value":1}`, http.StatusForbidden, ErrCodeNotVerified},
		{"merged target", token, "/questions/" + merged.ID + "/vote", `{"value":1}`, http.StatusNotFound, ErrCodeNotFound},
		{"missing question", token, "/questions/ghost/vote", `{"value":1}`, http.StatusNotFound, ErrCodeNotFound},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := f.do(t, http.MethodPost, tt.path, tt.token, tt.body)
			if rec.Code != tt.wantCode {
				t.Errorf("status = %d, want %d (body %s)", rec.Code, tt.wantCode, rec.Body.String())
			}
			if got := decodeError(t, rec); got != tt.wantErr {
				t.Errorf("error code = %s, want %s", got, tt.wantErr)
			}
		})
	}
}

func TestGetTopQuestions(t *testing.T) {
	f := newAPIFixture(t, newDistinctEmbedder())
	token := f.token(t, voterActor)
	q := submitQuestion(t, f, token, questionBody)
	if rec := f.do(t, http.MethodPost, "/questions/"+q.ID+"/vote", token, `{"value":1}`); rec.Code != http.StatusOK {
		t.Fatalf("vote status = %d", rec.Code)
	}

	rec := f.do(t, http.MethodGet, "/contests/c1/top", "", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("top status = %d, body %s", rec.Code, rec.Body.String())
	}
	var resp TopListResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode top list: %v", err)
	}
	if resp.ContestID != "c1" || len(resp.Entries) != 1 {
		t.Fatalf("top list = %+v", resp)
	}
	if resp.Entries[0].Question.ID != q.ID || resp.Entries[0].AggUpvotes != 1 {
		t.Errorf("entry = %+v", resp.Entries[0])
	}
}

func TestModerationEndpoints(t *testing.T) {
	f := newAPIFixture(t, newDistinctEmbedder())
	voterToken := f.token(t, voterActor)
	modToken := f.token(t, modActor)
	q := submitQuestion(t, f, voterToken, questionBody)

	// Flagging requires the moderator role.
	rec := f.do(t, http.MethodPost, "/questions/"+q.ID+"/flag", voterToken, `{"flagged":true}`)
	if rec.Code != http.StatusForbidden {
		t.Errorf("voter flag status = %d, want 403", rec.Code)
	}
	rec = f.do(t, http.MethodPost, "/questions/"+q.ID+"/flag", modToken, `{"flagged":true}`)
	if rec.Code != http.StatusOK {
		t.Errorf("flag status = %d, body %s", rec.Code, rec.Body.String())
	}

	// Manual merge then unmerge.
	other := submitQuestion(t, f, voterToken, `{"text":"Will you fund protected bike lanes?"}`)
	rec = f.do(t, http.MethodPost, "/questions/"+other.ID+"/merge", modToken, `{"target_id":"`+q.ID+`"}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("merge status = %d, body %s", rec.Code, rec.Body.String())
	}
	rec = f.do(t, http.MethodPost, "/questions/"+other.ID+"/unmerge", modToken, "")
	if rec.Code != http.StatusOK {
		t.Fatalf("unmerge status = %d, body %s", rec.Code, rec.Body.String())
	}
	rec = f.do(t, http.MethodPost, "/questions/"+other.ID+"/unmerge", modToken, "")
	if rec.Code != http.StatusConflict {
		t.Errorf("double unmerge status = %d, want 409", rec.Code)
	}

	// Merge without a target id.
	rec = f.do(t, http.MethodPost, "/questions/"+other.ID+"/merge", modToken, "{}")
	if rec.Code != http.StatusBadRequest {
		t.Errorf("merge without target status = %d, want 400", rec.Code)
	}
}

func TestApproveEndpoint(t *testing.T) {
	f := newAPIFixture(t, newDistinctEmbedder())
	voterToken := f.token(t, voterActor)
	modToken := f.token(t, modActor)

	// The fixture's intake screen holds submissions mentioning "giveaway".
	held := submitQuestion(t, f, voterToken, `{"text":"Will you run a ticket giveaway at the debate?"}`)
	if held.Status != question.StatusPending {
		t.Fatalf("screened submission status = %s, want pending", held.Status)
	}

	rec := f.do(t, http.MethodPost, "/questions/"+held.ID+"/approve", voterToken, "")
	if rec.Code != http.StatusForbidden {
		t.Errorf("voter approve status = %d, want 403", rec.Code)
	}

	rec = f.do(t, http.MethodPost, "/questions/"+held.ID+"/approve", modToken, "")
	if rec.Code != http.StatusOK {
		t.Fatalf("approve status = %d, body %s", rec.Code, rec.Body.String())
	}
	rec = f.do(t, http.MethodGet, "/questions/"+held.ID, "", "")
	var q question.Question
	if err := json.Unmarshal(rec.Body.Bytes(), &q); err != nil {
		t.Fatalf("decode question: %v", err)
	}
	if q.Status != question.StatusApproved {
		t.Errorf("status after approve = %s, want approved", q.Status)
	}

	// Approving a merged question is a conflict.
	first := submitQuestion(t, f, voterToken, questionBody)
	other := submitQuestion(t, f, voterToken, `{"text":"Will you fund protected bike lanes?"}`)
	if rec := f.do(t, http.MethodPost, "/questions/"+other.ID+"/merge", modToken, `{"target_id":"`+first.ID+`"}`); rec.Code != http.StatusOK {
		t.Fatalf("merge status = %d", rec.Code)
	}
	rec = f.do(t, http.MethodPost, "/questions/"+other.ID+"/approve", modToken, "")
	if rec.Code != http.StatusConflict {
		t.Errorf("approve merged status = %d, want 409", rec.Code)
	}
}

func TestReportEndpoints(t *testing.T) {
	f := newAPIFixture(t, newDistinctEmbedder())
	voterToken := f.token(t, voterActor)
	modToken := f.token(t, modActor)
	q := submitQuestion(t, f, voterToken, questionBody)

	body := `{"target":{"kind":"question","id":"` + q.ID + `"},"reason":"misleading claim"}`
	rec := f.do(t, http.MethodPost, "/contests/c1/reports", voterToken, body)
	if rec.Code != http.StatusCreated {
		t.Fatalf("file report status = %d, body %s", rec.Code, rec.Body.String())
	}
	var rep moderation.Report
	if err := json.Unmarshal(rec.Body.Bytes(), &rep); err != nil {
		t.Fatalf("decode report: %v", err)
	}

	// Queue is moderator-only.
	rec = f.do(t, http.MethodGet, "/contests/c1/reports", voterToken, "")
	if rec.Code != http.StatusForbidden {
		t.Errorf("voter queue status = %d, want 403", rec.Code)
	}
	rec = f.do(t, http.MethodGet, "/contests/c1/reports", modToken, "")
	if rec.Code != http.StatusOK {
		t.Fatalf("queue status = %d", rec.Code)
	}
	var queue struct {
		Reports []*moderation.Report `json:"reports"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &queue); err != nil {
		t.Fatalf("decode queue: %v", err)
	}
	if len(queue.Reports) != 1 || queue.Reports[0].ID != rep.ID {
		t.Errorf("queue = %v", queue.Reports)
	}

	rec = f.do(t, http.MethodGet, "/contests/c1/reports?limit=zero", modToken, "")
	if rec.Code != http.StatusBadRequest {
		t.Errorf("bad limit status = %d, want 400", rec.Code)
	}

	rec = f.do(t, http.MethodPost, "/reports/"+rep.ID+"/resolve", modToken, `{"dismiss":false}`)
	if rec.Code != http.StatusNoContent {
		t.Fatalf("resolve status = %d, body %s", rec.Code, rec.Body.String())
	}
	rec = f.do(t, http.MethodGet, "/contests/c1/reports", modToken, "")
	var after struct {
		Reports []*moderation.Report `json:"reports"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &after); err != nil {
		t.Fatalf("decode queue: %v", err)
	}
	if len(after.Reports) != 0 {
		t.Errorf("queue after resolve = %v", after.Reports)
	}
}

func TestRouter_Misc(t *testing.T) {
	f := newAPIFixture(t, newDistinctEmbedder())

	rec := f.do(t, http.MethodGet, "/", "", "")
	if rec.Code != http.StatusOK {
		t.Errorf("root status = %d", rec.Code)
	}

	rec = f.do(t, http.MethodGet, "/nope", "", "")
	if rec.Code != http.StatusNotFound || decodeError(t, rec) != ErrCodeNotFound {
		t.Errorf("unknown path: status %d, body %s", rec.Code, rec.Body.String())
	}

	rec = f.do(t, http.MethodDelete, "/contests/c1/top", "", "")
	if rec.Code != http.StatusMethodNotAllowed {
		t.Errorf("wrong method status = %d, want 405", rec.Code)
	}

	rec = f.do(t, http.MethodGet, "/health", "", "")
	if rec.Code != http.StatusOK {
		t.Errorf("health status = %d", rec.Code)
	}
	rec = f.do(t, http.MethodGet, "/ready", "", "")
	if rec.Code != http.StatusOK {
		t.Errorf("ready status = %d", rec.Code)
	}
}

func TestAuthenticate_TokenHandling(t *testing.T) {
	f := newAPIFixture(t, newDistinctEmbedder())

	// Wrong scheme.
	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	req.Header.Set("Authorization", "Basic abc")
	rec := httptest.NewRecorder()
	f.handler.ServeHTTP(rec, req)
	if rec.Code != http.StatusUnauthorized {
		t.Errorf("basic scheme status = %d, want 401", rec.Code)
	}

	// Garbage token fails even on public endpoints.
	rec = f.do(t, http.MethodGet, "/health", "not-a-jwt", "")
	if rec.Code != http.StatusUnauthorized {
		t.Errorf("garbage token status = %d, want 401", rec.Code)
	}

	// No token at all passes through to public endpoints.
	rec = f.do(t, http.MethodGet, "/health", "", "")
	if rec.Code != http.StatusOK {
		t.Errorf("anonymous health status = %d, want 200", rec.Code)
	}
}
