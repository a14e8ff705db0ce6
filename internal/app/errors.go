package app

import "errors"

var (
	// ErrLessonNotFound covers both a missing lesson and one owned by
	// someone else, so handlers cannot leak existence across owners.
	ErrLessonNotFound   = errors.New("lesson not found")
	ErrTopicRequired    = errors.New("topic is required")
	ErrGradeRequired    = errors.New("grade level is required")
	ErrDurationInvalid  = errors.New("duration must be a positive number of minutes")
	ErrFeedbackRequired = errors.New("feedback is required")
)
