package activitystore

import (
	"context"
	"errors"
	"fmt"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// Row layout of the activity table in SQL backends. Columns mirror the CSV layout.
type UserActivity struct {
	Username               string `gorm:"primaryKey"`
	QualifyingCommentCount int    `gorm:"not null;default:0"`
	LastPostDate           string `gorm:"type:varchar(10)"`
	UpdatedAt              time.Time
}

func (UserActivity) TableName() string { return "user_activity" }

// Activity records stored in a relational database (sqlite or postgres) through gorm.
type SQLActivityStore struct {
	db *gorm.DB
}

var _ ActivityStore = (*SQLActivityStore)(nil)

func NewSQLActivityStore(db *gorm.DB) (*SQLActivityStore, error) {
	if err := db.AutoMigrate(&UserActivity{}); err != nil {
		return nil, fmt.Errorf("failed to migrate user_activity table: %w", err)
	}
	return &SQLActivityStore{db: db}, nil
}

func (s *SQLActivityStore) Get(ctx context.Context, user string) (Record, error) {
	var row UserActivity
	err := s.db.WithContext(ctx).Where("username = ?", user).Take(&row).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return Record{}, nil
	} else if err != nil {
		return Record{}, err
	}
	date, err := ParseDate(row.LastPostDate)
	if err != nil {
		return Record{}, fmt.Errorf("user %q: %w", user, err)
	}
	return Record{
		QualifyingCommentCount: row.QualifyingCommentCount,
		LastPostDate:           date,
	}, nil
}

func (s *SQLActivityStore) Put(ctx context.Context, user string, rec Record) error {
	row := UserActivity{
		Username:               user,
		QualifyingCommentCount: rec.QualifyingCommentCount,
		LastPostDate:           rec.FormatDate(),
	}
	// upsert: single statement, so a record is either fully replaced or untouched
	return s.db.WithContext(ctx).Clauses(clause.OnConflict{UpdateAll: true}).Create(&row).Error
}

func (s *SQLActivityStore) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}
