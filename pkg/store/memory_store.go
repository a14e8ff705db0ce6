package store

import (
	"sort"
	"sync"
	"time"

	"lessonlab/pkg/domain"
)

// MemoryStore keeps lessons in-process. Used by tests and by dev runs
// without a databaseURL; semantics match GormStore, including the
// all-or-nothing AppendRevision.
type MemoryStore struct {
	mu        sync.RWMutex
	lessons   map[string]domain.LessonPlan
	revisions map[string][]domain.LessonRevision
	order     []string
}

// NewMemoryStore initializes an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		lessons:   make(map[string]domain.LessonPlan),
		revisions: make(map[string][]domain.LessonRevision),
	}
}

func (m *MemoryStore) CreateLesson(lesson domain.LessonPlan) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, exists := m.lessons[lesson.ID]; !exists {
		m.order = append(m.order, lesson.ID)
	}
	m.lessons[lesson.ID] = lesson
	return nil
}

func (m *MemoryStore) GetLesson(id, ownerID string) (domain.LessonPlan, bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	lesson, ok := m.lessons[id]
	if !ok || lesson.OwnerID != ownerID {
		return domain.LessonPlan{}, false, nil
	}
	return lesson, true, nil
}

func (m *MemoryStore) GetLessonByID(id string) (domain.LessonPlan, bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	lesson, ok := m.lessons[id]
	if !ok {
		return domain.LessonPlan{}, false, nil
	}
	return lesson, true, nil
}

func (m *MemoryStore) ListLessonsByOwner(ownerID string) ([]domain.LessonPlan, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	res := make([]domain.LessonPlan, 0, len(m.order))
	for _, id := range m.order {
		if lesson, ok := m.lessons[id]; ok && lesson.OwnerID == ownerID {
			res = append(res, lesson)
		}
	}
	// Newest first, like the Postgres store.
	sort.SliceStable(res, func(i, j int) bool { return res[i].CreatedAt.After(res[j].CreatedAt) })
	return res, nil
}

func (m *MemoryStore) SetRating(id, ownerID string, rating bool) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	lesson, ok := m.lessons[id]
	if !ok || lesson.OwnerID != ownerID {
		return false, nil
	}
	lesson.UserRating = &rating
	lesson.UpdatedAt = time.Now().UTC()
	m.lessons[id] = lesson
	return true, nil
}

func (m *MemoryStore) SetEvaluation(id string, evaluation domain.Evaluation) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	lesson, ok := m.lessons[id]
	if !ok {
		return nil
	}
	lesson.Evaluation = &evaluation
	lesson.UpdatedAt = time.Now().UTC()
	m.lessons[id] = lesson
	return nil
}

func (m *MemoryStore) AppendRevision(lesson domain.LessonPlan, revision domain.LessonRevision) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.revisions[revision.LessonID] = append(m.revisions[revision.LessonID], revision)
	m.lessons[lesson.ID] = lesson
	return nil
}

func (m *MemoryStore) ListRevisions(lessonID string) ([]domain.LessonRevision, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	revisions := m.revisions[lessonID]
	res := make([]domain.LessonRevision, len(revisions))
	copy(res, revisions)
	sort.SliceStable(res, func(i, j int) bool { return res[i].RevisionNumber < res[j].RevisionNumber })
	return res, nil
}
