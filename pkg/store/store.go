package store

import "lessonlab/pkg/domain"

// Store defines persistence for lessons and their revision history.
//
// Reads are owner-scoped: a lesson that exists but belongs to someone else
// is reported as absent, never leaked. Revisions are reached only through
// their parent lesson, so ListRevisions carries no owner of its own.
type Store interface {
	CreateLesson(lesson domain.LessonPlan) error
	GetLesson(id, ownerID string) (domain.LessonPlan, bool, error)
	ListLessonsByOwner(ownerID string) ([]domain.LessonPlan, error)

	// GetLessonByID loads a lesson without an owner filter. Used by the
	// evaluation worker, which only ever sees ids the service allocated.
	GetLessonByID(id string) (domain.LessonPlan, bool, error)

	// SetRating sets or replaces the owner's thumbs-up/down. The bool
	// reports whether a matching owned lesson existed.
	SetRating(id, ownerID string, rating bool) (bool, error)

	// SetEvaluation attaches the background evaluation result. Not
	// owner-scoped: it is only called with ids the service allocated.
	SetEvaluation(id string, evaluation domain.Evaluation) error

	// AppendRevision writes the revision row and the updated parent
	// lesson in one transaction so the two tables cannot diverge.
	AppendRevision(lesson domain.LessonPlan, revision domain.LessonRevision) error

	// ListRevisions returns the lesson's history ordered by revision
	// number, oldest first.
	ListRevisions(lessonID string) ([]domain.LessonRevision, error)
}
