package server

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	jwt "github.com/golang-jwt/jwt/v5"

	"lessonlab/internal/app"
	"lessonlab/internal/ratelimit"
	"lessonlab/internal/usertoken"
	"lessonlab/pkg/ai"
	"lessonlab/pkg/domain"
	"lessonlab/pkg/store"
)

const testSecret = "server-test-secret"

type fakeGenerator struct {
	err error
}

func (g *fakeGenerator) Generate(_ context.Context, topic, grade string, duration int) (domain.GeneratedPlan, error) {
	if g.err != nil {
		return domain.GeneratedPlan{}, g.err
	}
	return domain.GeneratedPlan{
		Objectives: []string{
			"Explain how plants convert light into energy",
			"Identify the inputs and outputs of " + topic,
			"Relate " + topic + " to everyday observations",
		},
		Structure: domain.LessonStructure{
			Introduction: "Hook with a short demonstration",
			MainActivity: "Guided group investigation of " + topic,
			Assessment:   "Exit ticket",
			Timing:       "45 minutes total",
		},
		Reasoning: domain.AgentThoughts{
			ObjectivesReasoning: "Matched to " + grade + " standards",
			StructureReasoning:  "Short hook, then hands-on work",
			ResourcesReasoning:  "Mixed media",
			TimingReasoning:     "Fits the requested period",
		},
		Metadata: domain.GenerationMetadata{Model: "test-model", TotalTokens: duration},
	}, nil
}

type fakeEvaluator struct{}

func (fakeEvaluator) Evaluate(context.Context, domain.PlanDocument, string, string, int) domain.Evaluation {
	return domain.Evaluation{OverallScore: 0.85}
}

type fakeReviser struct{}

func (fakeReviser) Revise(_ context.Context, original domain.PlanDocument, feedback, _, _ string, _ int) (domain.PlanDocument, domain.RevisionMetadata, error) {
	revised := original
	revised.Structure.MainActivity = "Hands-on experiment: " + feedback
	return revised, domain.RevisionMetadata{Feedback: feedback, Model: "test-model", RevisedAt: time.Now().UTC()}, nil
}

func newTestServer(t *testing.T, generator *fakeGenerator) http.Handler {
	t.Helper()
	a, err := app.New(app.Config{
		Store:     store.NewMemoryStore(),
		Generator: generator,
		Evaluator: fakeEvaluator{},
		Reviser:   fakeReviser{},
	})
	if err != nil {
		t.Fatalf("new app: %v", err)
	}
	verifier, err := usertoken.NewVerifier(usertoken.Config{Secret: testSecret})
	if err != nil {
		t.Fatalf("new verifier: %v", err)
	}
	return New(Config{App: a, TokenVerifier: verifier}).Router()
}

func signToken(t *testing.T, subject string) string {
	t.Helper()
	now := time.Now()
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.RegisteredClaims{
		Subject:   subject,
		Audience:  jwt.ClaimStrings{"authenticated"},
		ExpiresAt: jwt.NewNumericDate(now.Add(time.Hour)),
		IssuedAt:  jwt.NewNumericDate(now),
	})
	signed, err := token.SignedString([]byte(testSecret))
	if err != nil {
		t.Fatalf("sign token: %v", err)
	}
	return signed
}

func doJSON(t *testing.T, handler http.Handler, method, path, token string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var reader *bytes.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			t.Fatalf("marshal body: %v", err)
		}
		reader = bytes.NewReader(payload)
	} else {
		reader = bytes.NewReader(nil)
	}
	req := httptest.NewRequest(method, path, reader)
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	return rec
}

func decodeBody[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var out T
	if err := json.NewDecoder(rec.Body).Decode(&out); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	return out
}

func TestHealthz(t *testing.T) {
	handler := newTestServer(t, &fakeGenerator{})
	rec := doJSON(t, handler, http.MethodGet, "/healthz", "", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
}

func TestRequiresBearerToken(t *testing.T) {
	handler := newTestServer(t, &fakeGenerator{})

	rec := doJSON(t, handler, http.MethodGet, "/api/lessons", "", nil)
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("missing token: status = %d", rec.Code)
	}

	rec = doJSON(t, handler, http.MethodGet, "/api/lessons", "not-a-jwt", nil)
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("garbage token: status = %d", rec.Code)
	}
}

func TestGenerateValidation(t *testing.T) {
	handler := newTestServer(t, &fakeGenerator{})
	token := signToken(t, "user-1")

	rec := doJSON(t, handler, http.MethodPost, "/api/lessons/generate", token,
		map[string]any{"grade": "5th grade", "duration": 45})
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("missing topic: status = %d body = %s", rec.Code, rec.Body.String())
	}

	rec = doJSON(t, handler, http.MethodPost, "/api/lessons/generate", token,
		map[string]any{"topic": "Photosynthesis", "grade": "5th grade"})
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("missing duration: status = %d", rec.Code)
	}

	req := httptest.NewRequest(http.MethodPost, "/api/lessons/generate", strings.NewReader("{not json"))
	req.Header.Set("Authorization", "Bearer "+token)
	recorder := httptest.NewRecorder()
	handler.ServeHTTP(recorder, req)
	if recorder.Code != http.StatusBadRequest {
		t.Fatalf("invalid json: status = %d", recorder.Code)
	}
}

func TestGenerateMapsModelOutageToBadGateway(t *testing.T) {
	handler := newTestServer(t, &fakeGenerator{err: &ai.CompletionError{Err: errors.New("connection refused")}})
	token := signToken(t, "user-1")

	rec := doJSON(t, handler, http.MethodPost, "/api/lessons/generate", token,
		map[string]any{"topic": "Photosynthesis", "grade": "5th grade", "duration": 45})
	if rec.Code != http.StatusBadGateway {
		t.Fatalf("status = %d body = %s", rec.Code, rec.Body.String())
	}
}

func TestLessonLifecycle(t *testing.T) {
	handler := newTestServer(t, &fakeGenerator{})
	token := signToken(t, "user-1")

	rec := doJSON(t, handler, http.MethodPost, "/api/lessons/generate", token,
		map[string]any{"topic": "Photosynthesis", "grade": "5th grade", "duration": 45})
	if rec.Code != http.StatusCreated {
		t.Fatalf("generate: status = %d body = %s", rec.Code, rec.Body.String())
	}
	lesson := decodeBody[domain.LessonPlan](t, rec)
	if lesson.ID == "" {
		t.Fatalf("lesson id missing")
	}
	if len(lesson.Plan.Objectives) < 3 {
		t.Fatalf("objectives = %d, want at least 3", len(lesson.Plan.Objectives))
	}
	if !strings.Contains(lesson.Plan.Structure.Timing, "45") {
		t.Fatalf("timing %q should mention the requested duration", lesson.Plan.Structure.Timing)
	}
	if lesson.RevisionCount != 0 {
		t.Fatalf("new lesson revision count = %d", lesson.RevisionCount)
	}

	// Listing and fetching are owner-scoped.
	rec = doJSON(t, handler, http.MethodGet, "/api/lessons", token, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("list: status = %d", rec.Code)
	}
	lessons := decodeBody[[]domain.LessonPlan](t, rec)
	if len(lessons) != 1 || lessons[0].ID != lesson.ID {
		t.Fatalf("unexpected listing: %+v", lessons)
	}

	otherToken := signToken(t, "user-2")
	rec = doJSON(t, handler, http.MethodGet, "/api/lessons/"+lesson.ID, otherToken, nil)
	if rec.Code != http.StatusNotFound {
		t.Fatalf("foreign get: status = %d", rec.Code)
	}
	rec = doJSON(t, handler, http.MethodGet, "/api/lessons", otherToken, nil)
	if others := decodeBody[[]domain.LessonPlan](t, rec); len(others) != 0 {
		t.Fatalf("foreign listing leaked lessons: %+v", others)
	}

	// Fresh lesson has no revision history.
	rec = doJSON(t, handler, http.MethodGet, "/api/lessons/"+lesson.ID+"/revisions", token, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("revisions: status = %d", rec.Code)
	}
	if revisions := decodeBody[[]domain.LessonRevision](t, rec); len(revisions) != 0 {
		t.Fatalf("expected empty history, got %+v", revisions)
	}

	// Rate it, then revise it; the revision clears the rating.
	rec = doJSON(t, handler, http.MethodPut, "/api/lessons/"+lesson.ID+"/rating", token,
		map[string]any{"rating": true})
	if rec.Code != http.StatusOK {
		t.Fatalf("rating: status = %d body = %s", rec.Code, rec.Body.String())
	}

	rec = doJSON(t, handler, http.MethodPost, "/api/lessons/"+lesson.ID+"/revise", token,
		map[string]any{"feedback": "add a hands-on experiment"})
	if rec.Code != http.StatusOK {
		t.Fatalf("revise: status = %d body = %s", rec.Code, rec.Body.String())
	}
	revised := decodeBody[reviseResponse](t, rec)
	if revised.Lesson.RevisionCount != 1 {
		t.Fatalf("revision count = %d, want 1", revised.Lesson.RevisionCount)
	}
	if revised.Lesson.UserRating != nil {
		t.Fatalf("revision should clear the rating")
	}
	if revised.Revision.Feedback != "add a hands-on experiment" {
		t.Fatalf("revision feedback = %q", revised.Revision.Feedback)
	}
	if revised.Lesson.LatestRevisionPlan == nil ||
		!strings.Contains(revised.Lesson.LatestRevisionPlan.Structure.MainActivity, "hands-on experiment") {
		t.Fatalf("revised plan missing: %+v", revised.Lesson.LatestRevisionPlan)
	}

	rec = doJSON(t, handler, http.MethodGet, "/api/lessons/"+lesson.ID+"/revisions", token, nil)
	revisions := decodeBody[[]domain.LessonRevision](t, rec)
	if len(revisions) != 1 || revisions[0].RevisionNumber != 1 {
		t.Fatalf("unexpected history: %+v", revisions)
	}
}

// scriptedClient plays back canned completions in order.
type scriptedClient struct {
	mu      sync.Mutex
	replies []string
}

func (c *scriptedClient) Complete(context.Context, ai.CompletionRequest) (ai.Completion, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if len(c.replies) == 0 {
		return ai.Completion{}, &ai.CompletionError{Err: errors.New("no scripted reply")}
	}
	text := c.replies[0]
	c.replies = c.replies[1:]
	return ai.Completion{Text: text, PromptTokens: 120, CompletionTokens: 80, TotalTokens: 200}, nil
}

const scriptedGenerationJSON = `{
  "objectives": [
    "Explain how plants convert light into chemical energy",
    "Identify the inputs and outputs of photosynthesis",
    "Describe how to test a leaf for starch"
  ],
  "structure": {
    "introduction": "Time-lapse video of a growing bean plant",
    "main_activity": "Leaf starch test in small groups",
    "assessment": "Exit ticket with two short questions",
    "timing": "10 min intro, 25 min activity, 10 min assessment (45 minutes)"
  },
  "pedagogical_reasoning": {
    "objectives_reasoning": "Matches 5th grade life-science standards",
    "structure_reasoning": "Short hook before hands-on work",
    "resources_reasoning": "Video and worksheet cover both modalities",
    "timing_reasoning": "Activity gets the largest block"
  }
}`

const scriptedRevisionJSON = `{
  "title": "Lesson Plan: Explain how plants convert light into chemical energy",
  "objectives": [
    "Explain how plants convert light into chemical energy",
    "Identify the inputs and outputs of photosynthesis",
    "Run a hands-on experiment with elodea and bromothymol blue"
  ],
  "structure": {
    "introduction": "Time-lapse video of a growing bean plant",
    "main_activity": "Hands-on experiment: observe gas bubbles from elodea under light",
    "assessment": "Exit ticket with two short questions",
    "timing": "10 min intro, 25 min experiment, 10 min assessment (45 minutes)"
  },
  "resources": [],
  "materials_needed": ["Elodea", "Bromothymol blue", "Beakers", "Lamp"],
  "differentiation": "Pair visual learners with a diagram of the setup"
}`

// Drives the full pipeline through HTTP with real generator and reviser
// over a scripted model, parsing and schema validation included.
func TestLessonLifecycleThroughModelPipeline(t *testing.T) {
	client := &scriptedClient{replies: []string{scriptedGenerationJSON, scriptedRevisionJSON}}
	a, err := app.New(app.Config{
		Store:     store.NewMemoryStore(),
		Generator: ai.NewGenerator(client, "test-model"),
		Evaluator: fakeEvaluator{},
		Reviser:   ai.NewReviser(client, "test-model"),
	})
	if err != nil {
		t.Fatalf("new app: %v", err)
	}
	verifier, err := usertoken.NewVerifier(usertoken.Config{Secret: testSecret})
	if err != nil {
		t.Fatalf("new verifier: %v", err)
	}
	handler := New(Config{App: a, TokenVerifier: verifier}).Router()
	token := signToken(t, "teacher-7")

	rec := doJSON(t, handler, http.MethodPost, "/api/lessons/generate", token,
		map[string]any{"topic": "Photosynthesis", "grade": "5th grade", "duration": 45})
	if rec.Code != http.StatusCreated {
		t.Fatalf("generate: status = %d body = %s", rec.Code, rec.Body.String())
	}
	lesson := decodeBody[domain.LessonPlan](t, rec)
	if len(lesson.Plan.Objectives) < 3 {
		t.Fatalf("objectives = %d, want at least 3", len(lesson.Plan.Objectives))
	}
	if !strings.Contains(lesson.Plan.Structure.Timing, "45") {
		t.Fatalf("timing %q should mention the duration", lesson.Plan.Structure.Timing)
	}
	if lesson.GenerationMeta == nil || lesson.GenerationMeta.TotalTokens != 200 {
		t.Fatalf("token usage not recorded: %+v", lesson.GenerationMeta)
	}
	if lesson.GenerationMeta.ParsingFailed {
		t.Fatalf("scripted generation should parse cleanly")
	}
	if len(lesson.Plan.Resources) != 2 {
		t.Fatalf("resources = %d, want the two curated entries", len(lesson.Plan.Resources))
	}

	rec = doJSON(t, handler, http.MethodPost, "/api/lessons/"+lesson.ID+"/revise", token,
		map[string]any{"feedback": "add a hands-on experiment"})
	if rec.Code != http.StatusOK {
		t.Fatalf("revise: status = %d body = %s", rec.Code, rec.Body.String())
	}
	revised := decodeBody[reviseResponse](t, rec)
	if revised.Revision.RevisionFailed {
		t.Fatalf("scripted revision should parse cleanly: %+v", revised.Revision)
	}
	if revised.Lesson.RevisionCount != 1 {
		t.Fatalf("revision count = %d, want 1", revised.Lesson.RevisionCount)
	}
	if revised.Lesson.LatestRevisionPlan == nil ||
		!strings.Contains(revised.Lesson.LatestRevisionPlan.Structure.MainActivity, "elodea") {
		t.Fatalf("revised activity missing: %+v", revised.Lesson.LatestRevisionPlan)
	}

	// The script is exhausted; the next generation surfaces as a 502.
	rec = doJSON(t, handler, http.MethodPost, "/api/lessons/generate", token,
		map[string]any{"topic": "Erosion", "grade": "5th grade", "duration": 30})
	if rec.Code != http.StatusBadGateway {
		t.Fatalf("exhausted script: status = %d, want 502", rec.Code)
	}
}

func TestGenerateRateLimited(t *testing.T) {
	redisSrv := miniredis.RunT(t)
	limiter, err := ratelimit.NewRedisFixedWindowLimiter(redisSrv.Addr(), "", "test:ratelimit", 1, time.Minute)
	if err != nil {
		t.Fatalf("new limiter: %v", err)
	}
	a, err := app.New(app.Config{
		Store:     store.NewMemoryStore(),
		Generator: &fakeGenerator{},
		Evaluator: fakeEvaluator{},
		Reviser:   fakeReviser{},
	})
	if err != nil {
		t.Fatalf("new app: %v", err)
	}
	verifier, err := usertoken.NewVerifier(usertoken.Config{Secret: testSecret})
	if err != nil {
		t.Fatalf("new verifier: %v", err)
	}
	handler := New(Config{App: a, TokenVerifier: verifier, GenerateLimiter: limiter}).Router()
	token := signToken(t, "user-1")

	body := map[string]any{"topic": "Photosynthesis", "grade": "5th grade", "duration": 45}
	if rec := doJSON(t, handler, http.MethodPost, "/api/lessons/generate", token, body); rec.Code != http.StatusCreated {
		t.Fatalf("first generate: status = %d", rec.Code)
	}
	if rec := doJSON(t, handler, http.MethodPost, "/api/lessons/generate", token, body); rec.Code != http.StatusTooManyRequests {
		t.Fatalf("second generate: status = %d, want 429", rec.Code)
	}
	// Other users keep their own quota.
	if rec := doJSON(t, handler, http.MethodPost, "/api/lessons/generate", signToken(t, "user-2"), body); rec.Code != http.StatusCreated {
		t.Fatalf("other user generate: status = %d", rec.Code)
	}
}

func TestRatingValidation(t *testing.T) {
	handler := newTestServer(t, &fakeGenerator{})
	token := signToken(t, "user-1")

	rec := doJSON(t, handler, http.MethodPost, "/api/lessons/generate", token,
		map[string]any{"topic": "Photosynthesis", "grade": "5th grade", "duration": 45})
	lesson := decodeBody[domain.LessonPlan](t, rec)

	rec = doJSON(t, handler, http.MethodPut, "/api/lessons/"+lesson.ID+"/rating", token, map[string]any{})
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("missing rating: status = %d", rec.Code)
	}

	rec = doJSON(t, handler, http.MethodPut, "/api/lessons/missing/rating", token,
		map[string]any{"rating": false})
	if rec.Code != http.StatusNotFound {
		t.Fatalf("missing lesson: status = %d", rec.Code)
	}
}

func TestReviseValidation(t *testing.T) {
	handler := newTestServer(t, &fakeGenerator{})
	token := signToken(t, "user-1")

	rec := doJSON(t, handler, http.MethodPost, "/api/lessons/generate", token,
		map[string]any{"topic": "Photosynthesis", "grade": "5th grade", "duration": 45})
	lesson := decodeBody[domain.LessonPlan](t, rec)

	rec = doJSON(t, handler, http.MethodPost, "/api/lessons/"+lesson.ID+"/revise", token,
		map[string]any{"feedback": "   "})
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("blank feedback: status = %d", rec.Code)
	}

	rec = doJSON(t, handler, http.MethodPost, "/api/lessons/missing/revise", token,
		map[string]any{"feedback": "shorter"})
	if rec.Code != http.StatusNotFound {
		t.Fatalf("missing lesson: status = %d", rec.Code)
	}
}
