package repository

import (
	"context"
	"errors"
	"fmt"
	"log"
	"os"
	"sort"
	"time"

	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"github.com/okian/oraculus/internal/domain/dupes"
	"github.com/okian/oraculus/internal/domain/model"
	"github.com/okian/oraculus/pkg/metrics"
)

// Default SQLite configuration constants.
const (
	defaultBusyTimeout  = 5 * time.Second
	slowQueryThreshold  = time.Second
	millisecondsPerNano = 1e6
)

// Classifier maps a public score to its threshold category. Satisfied by
// *threshold.Classifier.
type Classifier interface {
	Classify(score float64) string
}

// SQLStore implements Store on a SQLite database via gorm.
type SQLStore struct {
	db          *gorm.DB
	classifier  Classifier
	busyTimeout time.Duration
}

// Open opens (creating if needed) the SQLite database at path and migrates
// the schema. The classifier is used to categorize fake entries at insert
// time and to re-classify real rows on public leaderboard reads.
func Open(path string, classifier Classifier, opts ...Option) (*SQLStore, error) {
	s := &SQLStore{
		classifier:  classifier,
		busyTimeout: defaultBusyTimeout,
	}
	for _, opt := range opts {
		opt(s)
	}

	dsn := fmt.Sprintf("file:%s?_busy_timeout=%d", path, s.busyTimeout.Milliseconds())

	gormLog := gormlogger.New(
		log.New(os.Stdout, "\r\n", log.LstdFlags),
		gormlogger.Config{
			SlowThreshold:             slowQueryThreshold,
			LogLevel:                  gormlogger.Warn,
			IgnoreRecordNotFoundError: true,
			Colorful:                  false,
		},
	)

	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger:         gormLog,
		TranslateError: true,
	})
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	if err := db.AutoMigrate(&submissionRow{}, &badgeRow{}, &fakeRow{}); err != nil {
		return nil, fmt.Errorf("migrate database: %w", err)
	}

	s.db = db
	return s, nil
}

// observe records the latency of one store operation.
func observe(op string, start time.Time) {
	metrics.ObserveStoreLatency(op, float64(time.Since(start).Nanoseconds())/millisecondsPerNano)
}

// RecordSubmission appends a submission row and returns the assigned id.
func (s *SQLStore) RecordSubmission(ctx context.Context, sub *model.Submission) (int64, error) {
	defer observe("record_submission", time.Now())

	row := submissionRow{
		UserID:             sub.UserID,
		UserEmail:          sub.UserEmail,
		UserFullName:       sub.UserFullName,
		SubmissionName:     sub.Name,
		Timestamp:          sub.Timestamp,
		FileChecksum:       sub.FileChecksum,
		FilePath:           sub.FilePath,
		PublicScore:        sub.PublicScore,
		PrivateScore:       sub.PrivateScore,
		TP:                 sub.TP,
		TN:                 sub.TN,
		FP:                 sub.FP,
		FN:                 sub.FN,
		PositivesPredicted: sub.PositivesPredicted,
		ThresholdCategory:  sub.ThresholdCategory,
	}
	if err := s.db.WithContext(ctx).Create(&row).Error; err != nil {
		metrics.RecordStoreError("record_submission")
		return 0, fmt.Errorf("insert submission: %w", err)
	}
	return row.ID, nil
}

// ListByUser returns the user's submissions, newest first.
func (s *SQLStore) ListByUser(ctx context.Context, userID int64) ([]model.Submission, error) {
	defer observe("list_by_user", time.Now())

	var rows []submissionRow
	err := s.db.WithContext(ctx).
		Where("user_id = ?", userID).
		Order("timestamp DESC").
		Find(&rows).Error
	if err != nil {
		metrics.RecordStoreError("list_by_user")
		return nil, fmt.Errorf("list submissions: %w", err)
	}

	out := make([]model.Submission, len(rows))
	for i, r := range rows {
		out[i] = r.toModel()
	}
	return out, nil
}

// CountByUser returns the user's total submission count.
func (s *SQLStore) CountByUser(ctx context.Context, userID int64) (int64, error) {
	var n int64
	err := s.db.WithContext(ctx).
		Model(&submissionRow{}).
		Where("user_id = ?", userID).
		Count(&n).Error
	if err != nil {
		metrics.RecordStoreError("count_by_user")
		return 0, fmt.Errorf("count submissions: %w", err)
	}
	return n, nil
}

// Select atomically moves the user's selection to submissionID. The clear and
// the set run in one transaction so a concurrent reader never observes two
// selected rows, or none mid-switch.
func (s *SQLStore) Select(ctx context.Context, userID, submissionID int64) error {
	defer observe("select", time.Now())

	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var row submissionRow
		err := tx.Where("id = ? AND user_id = ?", submissionID, userID).First(&row).Error
		if err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return ErrNotFound
			}
			return fmt.Errorf("find submission: %w", err)
		}
		err = tx.Model(&submissionRow{}).
			Where("user_id = ?", userID).
			Update("is_selected", false).Error
		if err != nil {
			return fmt.Errorf("clear selection: %w", err)
		}
		err = tx.Model(&submissionRow{}).
			Where("id = ?", submissionID).
			Update("is_selected", true).Error
		if err != nil {
			return fmt.Errorf("set selection: %w", err)
		}
		return nil
	})
	if err != nil && !errors.Is(err, ErrNotFound) {
		metrics.RecordStoreError("select")
	}
	return err
}

// FindDuplicates groups submissions by file checksum and keeps groups that
// span more than one distinct user.
func (s *SQLStore) FindDuplicates(ctx context.Context) ([]model.DuplicateGroup, error) {
	defer observe("find_duplicates", time.Now())

	var rows []struct {
		UserID         int64
		UserEmail      string
		SubmissionName string
		FileChecksum   string
	}
	err := s.db.WithContext(ctx).
		Model(&submissionRow{}).
		Select("user_id, user_email, submission_name, file_checksum").
		Order("id").
		Scan(&rows).Error
	if err != nil {
		metrics.RecordStoreError("find_duplicates")
		return nil, fmt.Errorf("scan submissions: %w", err)
	}

	records := make([]dupes.Record, len(rows))
	for i, r := range rows {
		records[i] = dupes.Record{
			UserID:         r.UserID,
			UserEmail:      r.UserEmail,
			SubmissionName: r.SubmissionName,
			Checksum:       r.FileChecksum,
		}
	}
	return dupes.Groups(records), nil
}

// LeaderboardFull aggregates per-user stats ordered by final score descending.
func (s *SQLStore) LeaderboardFull(ctx context.Context) ([]model.LeaderboardRow, error) {
	defer observe("leaderboard_full", time.Now())

	var rows []model.LeaderboardRow
	err := s.db.WithContext(ctx).Raw(`
		WITH user_stats AS (
			SELECT
				user_id,
				user_full_name,
				COUNT(*) AS total_submissions,
				MAX(CASE WHEN is_selected THEN private_score END) AS selected_private_score,
				MAX(private_score) AS best_private_score,
				MAX(public_score) AS best_public_score
			FROM submissions
			GROUP BY user_id, user_full_name
		)
		SELECT
			user_id,
			user_full_name,
			COALESCE(selected_private_score, best_private_score) AS final_score,
			total_submissions,
			best_public_score,
			best_private_score
		FROM user_stats
		ORDER BY final_score DESC`).Scan(&rows).Error
	if err != nil {
		metrics.RecordStoreError("leaderboard_full")
		return nil, fmt.Errorf("aggregate leaderboard: %w", err)
	}
	return rows, nil
}

// LeaderboardPublic merges per-user best public scores with fake entries.
// Real rows are re-classified against the current thresholds at read time;
// fake rows keep the category stored at insertion.
func (s *SQLStore) LeaderboardPublic(ctx context.Context) ([]model.PublicLeaderboardRow, error) {
	defer observe("leaderboard_public", time.Now())

	var real []struct {
		Name        string
		PublicScore float64
	}
	err := s.db.WithContext(ctx).
		Model(&submissionRow{}).
		Select("user_full_name AS name, MAX(public_score) AS public_score").
		Group("user_id, user_full_name").
		Scan(&real).Error
	if err != nil {
		metrics.RecordStoreError("leaderboard_public")
		return nil, fmt.Errorf("aggregate public scores: %w", err)
	}

	var fakes []fakeRow
	if err := s.db.WithContext(ctx).Find(&fakes).Error; err != nil {
		metrics.RecordStoreError("leaderboard_public")
		return nil, fmt.Errorf("list fake submissions: %w", err)
	}

	out := make([]model.PublicLeaderboardRow, 0, len(real)+len(fakes))
	for _, r := range real {
		out = append(out, model.PublicLeaderboardRow{
			Name:        r.Name,
			PublicScore: r.PublicScore,
			Category:    s.classifier.Classify(r.PublicScore),
		})
	}
	for _, f := range fakes {
		out = append(out, model.PublicLeaderboardRow{
			Name:        f.Name,
			PublicScore: f.PublicScore,
			Category:    f.ThresholdCategory,
		})
	}
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].PublicScore > out[j].PublicScore
	})
	return out, nil
}

// AddFake inserts a fake leaderboard entry, classifying its score now.
func (s *SQLStore) AddFake(ctx context.Context, name string, publicScore float64) error {
	defer observe("add_fake", time.Now())

	row := fakeRow{
		Name:              name,
		PublicScore:       publicScore,
		ThresholdCategory: s.classifier.Classify(publicScore),
	}
	if err := s.db.WithContext(ctx).Create(&row).Error; err != nil {
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			return ErrDuplicateName
		}
		metrics.RecordStoreError("add_fake")
		return fmt.Errorf("insert fake submission: %w", err)
	}
	return nil
}

// RemoveFake deletes a fake entry by name.
func (s *SQLStore) RemoveFake(ctx context.Context, name string) error {
	defer observe("remove_fake", time.Now())

	res := s.db.WithContext(ctx).Where("name = ?", name).Delete(&fakeRow{})
	if res.Error != nil {
		metrics.RecordStoreError("remove_fake")
		return fmt.Errorf("delete fake submission: %w", res.Error)
	}
	if res.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

// ListBadges returns the user's badges, newest first.
func (s *SQLStore) ListBadges(ctx context.Context, userID int64) ([]model.Badge, error) {
	var rows []badgeRow
	err := s.db.WithContext(ctx).
		Where("user_id = ?", userID).
		Order("earned_at DESC, id DESC").
		Find(&rows).Error
	if err != nil {
		metrics.RecordStoreError("list_badges")
		return nil, fmt.Errorf("list badges: %w", err)
	}

	out := make([]model.Badge, len(rows))
	for i, r := range rows {
		out[i] = model.Badge{UserID: r.UserID, Name: r.BadgeName, EarnedAt: r.EarnedAt}
	}
	return out, nil
}

// HasBadge reports whether the user already holds the named badge.
func (s *SQLStore) HasBadge(ctx context.Context, userID int64, name string) (bool, error) {
	var n int64
	err := s.db.WithContext(ctx).
		Model(&badgeRow{}).
		Where("user_id = ? AND badge_name = ?", userID, name).
		Count(&n).Error
	if err != nil {
		metrics.RecordStoreError("has_badge")
		return false, fmt.Errorf("check badge: %w", err)
	}
	return n > 0, nil
}

// AwardBadge inserts the badge if absent. A lost race against the unique
// index reads as "already exists", not as an error.
func (s *SQLStore) AwardBadge(ctx context.Context, userID int64, name string, earnedAt time.Time) (bool, error) {
	defer observe("award_badge", time.Now())

	row := badgeRow{UserID: userID, BadgeName: name, EarnedAt: earnedAt}
	if err := s.db.WithContext(ctx).Create(&row).Error; err != nil {
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			return false, nil
		}
		metrics.RecordStoreError("award_badge")
		return false, fmt.Errorf("insert badge: %w", err)
	}
	return true, nil
}

// CountSelectedAbove counts selected submissions with a strictly higher
// public score, across all users.
func (s *SQLStore) CountSelectedAbove(ctx context.Context, publicScore float64) (int64, error) {
	var n int64
	err := s.db.WithContext(ctx).
		Model(&submissionRow{}).
		Where("public_score > ? AND is_selected = ?", publicScore, true).
		Count(&n).Error
	if err != nil {
		metrics.RecordStoreError("count_selected_above")
		return 0, fmt.Errorf("count selected submissions: %w", err)
	}
	return n, nil
}

// CountUserAtOrAbove counts the user's submissions scoring at or above bound.
func (s *SQLStore) CountUserAtOrAbove(ctx context.Context, userID int64, bound float64) (int64, error) {
	var n int64
	err := s.db.WithContext(ctx).
		Model(&submissionRow{}).
		Where("user_id = ? AND public_score >= ?", userID, bound).
		Count(&n).Error
	if err != nil {
		metrics.RecordStoreError("count_user_at_or_above")
		return 0, fmt.Errorf("count threshold submissions: %w", err)
	}
	return n, nil
}

// Close releases the underlying database handle.
func (s *SQLStore) Close() error {
	db, err := s.db.DB()
	if err != nil {
		return fmt.Errorf("unwrap database: %w", err)
	}
	return db.Close()
}
