package app

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"lessonlab/pkg/ai"
	"lessonlab/pkg/domain"
	"lessonlab/pkg/queue"
	"lessonlab/pkg/store"
)

// Generator produces the raw lesson content for a topic.
type Generator interface {
	Generate(ctx context.Context, topic, grade string, duration int) (domain.GeneratedPlan, error)
}

// Evaluator scores an assembled plan. It never fails; on any problem it
// returns a neutral fallback evaluation.
type Evaluator interface {
	Evaluate(ctx context.Context, plan domain.PlanDocument, topic, grade string, duration int) domain.Evaluation
}

// Reviser rewrites a plan according to user feedback.
type Reviser interface {
	Revise(ctx context.Context, original domain.PlanDocument, feedback, topic, grade string, duration int) (domain.PlanDocument, domain.RevisionMetadata, error)
}

// EvaluationQueue hands evaluation jobs to a background worker pool.
type EvaluationQueue interface {
	Enqueue(ctx context.Context, lessonID string) (queue.JobStatus, error)
}

// Config holds runtime configuration for the core application.
type Config struct {
	DatabaseURL string
	Store       store.Store
	Generator   Generator
	Evaluator   Evaluator
	Reviser     Reviser
	Queue       EvaluationQueue
}

// App is the core application service wiring storage, the generation
// pipeline and the evaluation queue together.
type App struct {
	store     store.Store
	generator Generator
	evaluator Evaluator
	reviser   Reviser
	queue     EvaluationQueue
}

// New constructs the application. Without a databaseURL lessons live in
// process memory, which is enough for tests and local runs.
func New(cfg Config) (*App, error) {
	dataStore := cfg.Store
	if dataStore == nil {
		if cfg.DatabaseURL != "" {
			var err error
			dataStore, err = store.NewGormStore(cfg.DatabaseURL)
			if err != nil {
				return nil, fmt.Errorf("init postgres store: %w", err)
			}
		} else {
			dataStore = store.NewMemoryStore()
		}
	}
	if cfg.Generator == nil || cfg.Evaluator == nil || cfg.Reviser == nil {
		return nil, fmt.Errorf("generator, evaluator and reviser are required")
	}
	return &App{
		store:     dataStore,
		generator: cfg.Generator,
		evaluator: cfg.Evaluator,
		reviser:   cfg.Reviser,
		queue:     cfg.Queue,
	}, nil
}

// CreateLessonRequest carries the user's generation inputs.
type CreateLessonRequest struct {
	Topic    string
	Grade    string
	Duration int

	// Title, when set, replaces the assembled "Lesson Plan: ..." title.
	Title string
	// OmitAgentThoughts drops the model's rationale from the stored record.
	OmitAgentThoughts bool
}

// CreateLesson runs the full generation pipeline and persists the result.
// Evaluation is scheduled in the background; the response never waits on it.
func (a *App) CreateLesson(ctx context.Context, ownerID string, req CreateLessonRequest) (domain.LessonPlan, error) {
	topic := strings.TrimSpace(req.Topic)
	grade := strings.TrimSpace(req.Grade)
	duration := req.Duration
	if topic == "" {
		return domain.LessonPlan{}, ErrTopicRequired
	}
	if grade == "" {
		return domain.LessonPlan{}, ErrGradeRequired
	}
	if duration <= 0 {
		return domain.LessonPlan{}, ErrDurationInvalid
	}

	generated, err := a.generator.Generate(ctx, topic, grade, duration)
	if err != nil {
		return domain.LessonPlan{}, fmt.Errorf("generate plan: %w", err)
	}
	resources := ai.FindResources(topic, grade)
	plan := ai.AssemblePlan(generated.Objectives, generated.Structure, resources)

	title := strings.TrimSpace(req.Title)
	if title == "" {
		title = plan.Title
	}
	now := time.Now().UTC()
	lesson := domain.LessonPlan{
		ID:             uuid.NewString(),
		OwnerID:        ownerID,
		Title:          title,
		Topic:          topic,
		Grade:          grade,
		Duration:       duration,
		Plan:           plan,
		AgentThoughts:  &generated.Reasoning,
		GenerationMeta: &generated.Metadata,
		CreatedAt:      now,
		UpdatedAt:      now,
	}
	if req.OmitAgentThoughts {
		lesson.AgentThoughts = nil
	}
	if err := a.store.CreateLesson(lesson); err != nil {
		return domain.LessonPlan{}, fmt.Errorf("save lesson: %w", err)
	}
	a.scheduleEvaluation(ctx, lesson)
	return lesson, nil
}

// GetLesson returns the owner's lesson or ErrLessonNotFound.
func (a *App) GetLesson(id, ownerID string) (domain.LessonPlan, error) {
	lesson, ok, err := a.store.GetLesson(id, ownerID)
	if err != nil {
		return domain.LessonPlan{}, fmt.Errorf("load lesson: %w", err)
	}
	if !ok {
		return domain.LessonPlan{}, ErrLessonNotFound
	}
	return lesson, nil
}

// ListLessons returns the owner's lessons, newest first.
func (a *App) ListLessons(ownerID string) ([]domain.LessonPlan, error) {
	lessons, err := a.store.ListLessonsByOwner(ownerID)
	if err != nil {
		return nil, fmt.Errorf("list lessons: %w", err)
	}
	return lessons, nil
}

// RateLesson records a thumbs-up/down on an owned lesson.
func (a *App) RateLesson(id, ownerID string, rating bool) error {
	ok, err := a.store.SetRating(id, ownerID, rating)
	if err != nil {
		return fmt.Errorf("save rating: %w", err)
	}
	if !ok {
		return ErrLessonNotFound
	}
	return nil
}

// ReviseLesson rewrites the lesson's current plan per the feedback. On a
// failed revision the stored lesson is untouched and the returned metadata
// carries the failure; only successful revisions append history, bump the
// counter and clear the previous rating.
func (a *App) ReviseLesson(ctx context.Context, id, ownerID, feedback string) (domain.LessonPlan, domain.RevisionMetadata, error) {
	feedback = strings.TrimSpace(feedback)
	if feedback == "" {
		return domain.LessonPlan{}, domain.RevisionMetadata{}, ErrFeedbackRequired
	}
	lesson, ok, err := a.store.GetLesson(id, ownerID)
	if err != nil {
		return domain.LessonPlan{}, domain.RevisionMetadata{}, fmt.Errorf("load lesson: %w", err)
	}
	if !ok {
		return domain.LessonPlan{}, domain.RevisionMetadata{}, ErrLessonNotFound
	}

	revised, meta, err := a.reviser.Revise(ctx, effectivePlan(lesson), feedback, lesson.Topic, lesson.Grade, lesson.Duration)
	if err != nil {
		return domain.LessonPlan{}, domain.RevisionMetadata{}, fmt.Errorf("revise plan: %w", err)
	}
	if meta.RevisionFailed {
		return lesson, meta, nil
	}

	now := time.Now().UTC()
	lesson.RevisionCount++
	lesson.LatestRevisionPlan = &revised
	lesson.LatestRevisionFeedback = feedback
	lesson.UserRating = nil
	lesson.UpdatedAt = now
	revision := domain.LessonRevision{
		ID:             uuid.NewString(),
		LessonID:       lesson.ID,
		RevisionNumber: lesson.RevisionCount,
		Plan:           revised,
		Feedback:       feedback,
		Metadata:       meta,
		CreatedAt:      now,
	}
	if err := a.store.AppendRevision(lesson, revision); err != nil {
		return domain.LessonPlan{}, domain.RevisionMetadata{}, fmt.Errorf("save revision: %w", err)
	}
	return lesson, meta, nil
}

// ListRevisions returns the revision history of an owned lesson,
// oldest first.
func (a *App) ListRevisions(id, ownerID string) ([]domain.LessonRevision, error) {
	if _, ok, err := a.store.GetLesson(id, ownerID); err != nil {
		return nil, fmt.Errorf("load lesson: %w", err)
	} else if !ok {
		return nil, ErrLessonNotFound
	}
	revisions, err := a.store.ListRevisions(id)
	if err != nil {
		return nil, fmt.Errorf("list revisions: %w", err)
	}
	return revisions, nil
}

// ProcessEvaluation is the queue worker handler. A missing lesson is
// dropped rather than retried; a storage failure is returned so the
// queue requeues the job.
func (a *App) ProcessEvaluation(ctx context.Context, job queue.JobStatus) error {
	lesson, ok, err := a.store.GetLessonByID(job.LessonID)
	if err != nil {
		return fmt.Errorf("load lesson for evaluation: %w", err)
	}
	if !ok {
		slog.Warn("evaluation job references missing lesson", "job_id", job.ID, "lesson_id", job.LessonID)
		return nil
	}
	evaluation := a.evaluator.Evaluate(ctx, effectivePlan(lesson), lesson.Topic, lesson.Grade, lesson.Duration)
	if err := a.store.SetEvaluation(lesson.ID, evaluation); err != nil {
		return fmt.Errorf("save evaluation: %w", err)
	}
	return nil
}

func (a *App) scheduleEvaluation(ctx context.Context, lesson domain.LessonPlan) {
	if a.queue != nil {
		if _, err := a.queue.Enqueue(ctx, lesson.ID); err != nil {
			slog.Error("enqueue evaluation failed", "lesson_id", lesson.ID, "error", err)
		}
		return
	}
	// No queue configured: evaluate in-process without blocking the request.
	go func() {
		evalCtx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
		defer cancel()
		evaluation := a.evaluator.Evaluate(evalCtx, lesson.Plan, lesson.Topic, lesson.Grade, lesson.Duration)
		if err := a.store.SetEvaluation(lesson.ID, evaluation); err != nil {
			slog.Error("save evaluation failed", "lesson_id", lesson.ID, "error", err)
		}
	}()
}

// effectivePlan is the plan a revision or evaluation should work from:
// the latest revision when one exists, otherwise the original.
func effectivePlan(lesson domain.LessonPlan) domain.PlanDocument {
	if lesson.LatestRevisionPlan != nil {
		return *lesson.LatestRevisionPlan
	}
	return lesson.Plan
}
