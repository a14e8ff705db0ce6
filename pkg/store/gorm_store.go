package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"os"
	"time"

	"gorm.io/datatypes"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"lessonlab/pkg/domain"
)

const migrateLockID int64 = 52310711

// GormStore implements Store using GORM + Postgres.
type GormStore struct {
	db *gorm.DB
}

// NewGormStore opens the DB and runs auto-migrations under an advisory
// lock so concurrently starting replicas do not race the migration.
func NewGormStore(dsn string) (*GormStore, error) {
	gormLog := gormlogger.New(
		log.New(os.Stdout, "\r\n", log.LstdFlags),
		gormlogger.Config{
			SlowThreshold:             time.Second,
			LogLevel:                  gormlogger.Warn,
			IgnoreRecordNotFoundError: true,
			Colorful:                  false,
		},
	)
	db, err := gorm.Open(postgres.Open(dsn), &gorm.Config{Logger: gormLog})
	if err != nil {
		return nil, fmt.Errorf("open db: %w", err)
	}
	if err := withMigrationLock(db, func(tx *gorm.DB) error {
		if err := tx.AutoMigrate(&LessonModel{}, &RevisionModel{}); err != nil {
			return fmt.Errorf("auto migrate: %w", err)
		}
		return nil
	}); err != nil {
		return nil, err
	}
	return &GormStore{db: db}, nil
}

func withMigrationLock(db *gorm.DB, fn func(*gorm.DB) error) error {
	sqlDB, err := db.DB()
	if err != nil {
		return fmt.Errorf("unwrap sql db: %w", err)
	}
	ctx := context.Background()
	conn, err := sqlDB.Conn(ctx)
	if err != nil {
		return fmt.Errorf("acquire conn: %w", err)
	}
	defer conn.Close()

	if err := execAdvisory(ctx, conn, "SELECT pg_advisory_lock($1)", migrateLockID); err != nil {
		return fmt.Errorf("advisory lock: %w", err)
	}
	defer func() {
		_ = execAdvisory(ctx, conn, "SELECT pg_advisory_unlock($1)", migrateLockID)
	}()
	return fn(db)
}

func execAdvisory(ctx context.Context, conn *sql.Conn, query string, lockID int64) error {
	_, err := conn.ExecContext(ctx, query, lockID)
	return err
}

func (s *GormStore) CreateLesson(lesson domain.LessonPlan) error {
	model, err := lessonToModel(lesson)
	if err != nil {
		return err
	}
	return s.db.Create(&model).Error
}

func (s *GormStore) GetLesson(id, ownerID string) (domain.LessonPlan, bool, error) {
	var model LessonModel
	err := s.db.Where("id = ? AND owner_id = ?", id, ownerID).First(&model).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return domain.LessonPlan{}, false, nil
	}
	if err != nil {
		return domain.LessonPlan{}, false, err
	}
	lesson, err := lessonFromModel(model)
	if err != nil {
		return domain.LessonPlan{}, false, err
	}
	return lesson, true, nil
}

func (s *GormStore) GetLessonByID(id string) (domain.LessonPlan, bool, error) {
	var model LessonModel
	err := s.db.Where("id = ?", id).First(&model).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return domain.LessonPlan{}, false, nil
	}
	if err != nil {
		return domain.LessonPlan{}, false, err
	}
	lesson, err := lessonFromModel(model)
	if err != nil {
		return domain.LessonPlan{}, false, err
	}
	return lesson, true, nil
}

func (s *GormStore) ListLessonsByOwner(ownerID string) ([]domain.LessonPlan, error) {
	var models []LessonModel
	if err := s.db.Where("owner_id = ?", ownerID).Order("created_at DESC").Find(&models).Error; err != nil {
		return nil, err
	}
	lessons := make([]domain.LessonPlan, 0, len(models))
	for _, model := range models {
		lesson, err := lessonFromModel(model)
		if err != nil {
			return nil, err
		}
		lessons = append(lessons, lesson)
	}
	return lessons, nil
}

func (s *GormStore) SetRating(id, ownerID string, rating bool) (bool, error) {
	res := s.db.Model(&LessonModel{}).
		Where("id = ? AND owner_id = ?", id, ownerID).
		Updates(map[string]any{
			"user_rating": rating,
			"updated_at":  time.Now().UTC(),
		})
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected > 0, nil
}

func (s *GormStore) SetEvaluation(id string, evaluation domain.Evaluation) error {
	blob, err := json.Marshal(evaluation)
	if err != nil {
		return fmt.Errorf("encode evaluation: %w", err)
	}
	return s.db.Model(&LessonModel{}).
		Where("id = ?", id).
		Updates(map[string]any{
			"evaluation": datatypes.JSON(blob),
			"updated_at": time.Now().UTC(),
		}).Error
}

// AppendRevision writes the new revision row and the updated lesson in a
// single transaction.
func (s *GormStore) AppendRevision(lesson domain.LessonPlan, revision domain.LessonRevision) error {
	lessonModel, err := lessonToModel(lesson)
	if err != nil {
		return err
	}
	revisionModel, err := revisionToModel(revision)
	if err != nil {
		return err
	}
	return s.db.Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(&revisionModel).Error; err != nil {
			return fmt.Errorf("insert revision: %w", err)
		}
		if err := tx.Save(&lessonModel).Error; err != nil {
			return fmt.Errorf("update lesson: %w", err)
		}
		return nil
	})
}

func (s *GormStore) ListRevisions(lessonID string) ([]domain.LessonRevision, error) {
	var models []RevisionModel
	if err := s.db.Where("lesson_id = ?", lessonID).Order("revision_number ASC").Find(&models).Error; err != nil {
		return nil, err
	}
	revisions := make([]domain.LessonRevision, 0, len(models))
	for _, model := range models {
		revision, err := revisionFromModel(model)
		if err != nil {
			return nil, err
		}
		revisions = append(revisions, revision)
	}
	return revisions, nil
}

func lessonToModel(lesson domain.LessonPlan) (LessonModel, error) {
	plan, err := json.Marshal(lesson.Plan)
	if err != nil {
		return LessonModel{}, fmt.Errorf("encode plan: %w", err)
	}
	model := LessonModel{
		ID:                     lesson.ID,
		OwnerID:                lesson.OwnerID,
		Title:                  lesson.Title,
		Topic:                  lesson.Topic,
		Grade:                  lesson.Grade,
		Duration:               lesson.Duration,
		Plan:                   datatypes.JSON(plan),
		LatestRevisionFeedback: lesson.LatestRevisionFeedback,
		RevisionCount:          lesson.RevisionCount,
		UserRating:             lesson.UserRating,
		CreatedAt:              lesson.CreatedAt,
		UpdatedAt:              lesson.UpdatedAt,
	}
	if model.AgentThoughts, err = marshalOptional(lesson.AgentThoughts); err != nil {
		return LessonModel{}, fmt.Errorf("encode agent thoughts: %w", err)
	}
	if model.Evaluation, err = marshalOptional(lesson.Evaluation); err != nil {
		return LessonModel{}, fmt.Errorf("encode evaluation: %w", err)
	}
	if model.GenerationMeta, err = marshalOptional(lesson.GenerationMeta); err != nil {
		return LessonModel{}, fmt.Errorf("encode generation metadata: %w", err)
	}
	if model.LatestRevisionPlan, err = marshalOptional(lesson.LatestRevisionPlan); err != nil {
		return LessonModel{}, fmt.Errorf("encode latest revision plan: %w", err)
	}
	return model, nil
}

func lessonFromModel(model LessonModel) (domain.LessonPlan, error) {
	lesson := domain.LessonPlan{
		ID:                     model.ID,
		OwnerID:                model.OwnerID,
		Title:                  model.Title,
		Topic:                  model.Topic,
		Grade:                  model.Grade,
		Duration:               model.Duration,
		LatestRevisionFeedback: model.LatestRevisionFeedback,
		RevisionCount:          model.RevisionCount,
		UserRating:             model.UserRating,
		CreatedAt:              model.CreatedAt,
		UpdatedAt:              model.UpdatedAt,
	}
	if err := json.Unmarshal(model.Plan, &lesson.Plan); err != nil {
		return domain.LessonPlan{}, fmt.Errorf("decode plan: %w", err)
	}
	if err := unmarshalOptional(model.AgentThoughts, &lesson.AgentThoughts); err != nil {
		return domain.LessonPlan{}, fmt.Errorf("decode agent thoughts: %w", err)
	}
	if err := unmarshalOptional(model.Evaluation, &lesson.Evaluation); err != nil {
		return domain.LessonPlan{}, fmt.Errorf("decode evaluation: %w", err)
	}
	if err := unmarshalOptional(model.GenerationMeta, &lesson.GenerationMeta); err != nil {
		return domain.LessonPlan{}, fmt.Errorf("decode generation metadata: %w", err)
	}
	if err := unmarshalOptional(model.LatestRevisionPlan, &lesson.LatestRevisionPlan); err != nil {
		return domain.LessonPlan{}, fmt.Errorf("decode latest revision plan: %w", err)
	}
	return lesson, nil
}

func revisionToModel(revision domain.LessonRevision) (RevisionModel, error) {
	plan, err := json.Marshal(revision.Plan)
	if err != nil {
		return RevisionModel{}, fmt.Errorf("encode revision plan: %w", err)
	}
	metadata, err := json.Marshal(revision.Metadata)
	if err != nil {
		return RevisionModel{}, fmt.Errorf("encode revision metadata: %w", err)
	}
	return RevisionModel{
		ID:             revision.ID,
		LessonID:       revision.LessonID,
		RevisionNumber: revision.RevisionNumber,
		Plan:           datatypes.JSON(plan),
		Feedback:       revision.Feedback,
		Metadata:       datatypes.JSON(metadata),
		CreatedAt:      revision.CreatedAt,
	}, nil
}

func revisionFromModel(model RevisionModel) (domain.LessonRevision, error) {
	revision := domain.LessonRevision{
		ID:             model.ID,
		LessonID:       model.LessonID,
		RevisionNumber: model.RevisionNumber,
		Feedback:       model.Feedback,
		CreatedAt:      model.CreatedAt,
	}
	if err := json.Unmarshal(model.Plan, &revision.Plan); err != nil {
		return domain.LessonRevision{}, fmt.Errorf("decode revision plan: %w", err)
	}
	if len(model.Metadata) > 0 {
		if err := json.Unmarshal(model.Metadata, &revision.Metadata); err != nil {
			return domain.LessonRevision{}, fmt.Errorf("decode revision metadata: %w", err)
		}
	}
	return revision, nil
}

func marshalOptional[T any](v *T) (datatypes.JSON, error) {
	if v == nil {
		return nil, nil
	}
	blob, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	return datatypes.JSON(blob), nil
}

func unmarshalOptional[T any](blob datatypes.JSON, out **T) error {
	if len(blob) == 0 {
		return nil
	}
	value := new(T)
	if err := json.Unmarshal(blob, value); err != nil {
		return err
	}
	*out = value
	return nil
}
