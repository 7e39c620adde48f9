package repository

import (
	"time"

	"github.com/okian/oraculus/internal/domain/model"
)

// submissionRow mirrors the submissions table.
type submissionRow struct {
	ID                 int64 `gorm:"primaryKey;autoIncrement"`
	UserID             int64 `gorm:"index"`
	UserEmail          string
	UserFullName       string
	SubmissionName     string
	Timestamp          time.Time
	FileChecksum       string `gorm:"index"`
	FilePath           string
	PublicScore        float64
	PrivateScore       float64
	TP                 int `gorm:"column:tp"`
	TN                 int `gorm:"column:tn"`
	FP                 int `gorm:"column:fp"`
	FN                 int `gorm:"column:fn"`
	PositivesPredicted int
	ThresholdCategory  string
	IsSelected         bool `gorm:"default:false"`
}

func (submissionRow) TableName() string { return "submissions" }

func (r submissionRow) toModel() model.Submission {
	return model.Submission{
		ID:                 r.ID,
		UserID:             r.UserID,
		UserEmail:          r.UserEmail,
		UserFullName:       r.UserFullName,
		Name:               r.SubmissionName,
		Timestamp:          r.Timestamp,
		FileChecksum:       r.FileChecksum,
		FilePath:           r.FilePath,
		PublicScore:        r.PublicScore,
		PrivateScore:       r.PrivateScore,
		TP:                 r.TP,
		TN:                 r.TN,
		FP:                 r.FP,
		FN:                 r.FN,
		PositivesPredicted: r.PositivesPredicted,
		ThresholdCategory:  r.ThresholdCategory,
		IsSelected:         r.IsSelected,
	}
}

// badgeRow mirrors the user_badges table. The (user_id, badge_name) unique
// index carries the idempotence invariant.
type badgeRow struct {
	ID        int64  `gorm:"primaryKey;autoIncrement"`
	UserID    int64  `gorm:"uniqueIndex:idx_user_badge"`
	BadgeName string `gorm:"uniqueIndex:idx_user_badge"`
	EarnedAt  time.Time
}

func (badgeRow) TableName() string { return "user_badges" }

// fakeRow mirrors the fake_submissions table.
type fakeRow struct {
	ID                int64  `gorm:"primaryKey;autoIncrement"`
	Name              string `gorm:"uniqueIndex"`
	PublicScore       float64
	ThresholdCategory string
}

func (fakeRow) TableName() string { return "fake_submissions" }
