package score

import (
	"context"
	"errors"
	"fmt"

	"github.com/glebarez/sqlite"
	"go.uber.org/zap"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"
)

// Store 成绩数据库访问层。
type Store struct {
	db     *gorm.DB
	logger *zap.Logger
}

// Open 打开 sqlite 数据库并自动建表。path 为 ":memory:" 时使用内存库。
func Open(path string, logger *zap.Logger) (*Store, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	db, err := gorm.Open(sqlite.Open(path), &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormlogger.Silent),
	})
	if err != nil {
		return nil, fmt.Errorf("open score database: %w", err)
	}
	if err := db.AutoMigrate(&Student{}, &Subject{}, &Score{}); err != nil {
		return nil, fmt.Errorf("migrate score schema: %w", err)
	}
	logger.Info("score database ready", zap.String("path", path))
	return &Store{db: db, logger: logger}, nil
}

// GetStudent 按学号查询学生,不存在时返回 (nil, nil)。
func (s *Store) GetStudent(ctx context.Context, studentCode string) (*Student, error) {
	var student Student
	err := s.db.WithContext(ctx).
		Where("student_code = ?", studentCode).
		First(&student).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("query student %s: %w", studentCode, err)
	}
	return &student, nil
}

// GetSubject 按课程号查询课程,不存在时返回 (nil, nil)。
func (s *Store) GetSubject(ctx context.Context, subjectID int) (*Subject, error) {
	var subject Subject
	err := s.db.WithContext(ctx).
		Where("subject_id = ?", subjectID).
		First(&subject).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("query subject %d: %w", subjectID, err)
	}
	return &subject, nil
}

// scoreRow 连表查询的扁平结果行。
type scoreRow struct {
	Score
	StudentName    string
	StudentClass   string
	SubjectName    string
	SubjectCredits int
}

// GetScores 按过滤条件查询成绩,连同学生与课程信息。
// 结果按学期倒序、课程名正序排列。
func (s *Store) GetScores(ctx context.Context, filter ScoreFilter) ([]ScoreWithDetails, error) {
	if err := filter.Validate(); err != nil {
		return nil, err
	}

	q := s.db.WithContext(ctx).
		Table("scores").
		Select("scores.*, students.student_name, students.student_class, subjects.subject_name, subjects.subject_credits").
		Joins("JOIN students ON scores.student_code = students.student_code").
		Joins("JOIN subjects ON scores.subject_id = subjects.subject_id")

	if filter.StudentCode != "" {
		q = q.Where("scores.student_code = ?", filter.StudentCode)
	}
	if filter.Semester != "" {
		q = q.Where("scores.semester = ?", filter.Semester)
	}
	if filter.SubjectID != 0 {
		q = q.Where("scores.subject_id = ?", filter.SubjectID)
	}

	var rows []scoreRow
	if err := q.Order("scores.semester DESC, subjects.subject_name").Scan(&rows).Error; err != nil {
		return nil, fmt.Errorf("query scores: %w", err)
	}

	results := make([]ScoreWithDetails, 0, len(rows))
	for _, row := range rows {
		results = append(results, ScoreWithDetails{
			Score: row.Score,
			Student: Student{
				StudentCode:  row.StudentCode,
				StudentName:  row.StudentName,
				StudentClass: row.StudentClass,
			},
			Subject: Subject{
				SubjectID:      row.SubjectID,
				SubjectName:    row.SubjectName,
				SubjectCredits: row.SubjectCredits,
			},
		})
	}
	return results, nil
}

// Seed 批量写入测试/演示数据。
func (s *Store) Seed(ctx context.Context, students []Student, subjects []Subject, scores []Score) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if len(students) > 0 {
			if err := tx.Create(&students).Error; err != nil {
				return fmt.Errorf("seed students: %w", err)
			}
		}
		if len(subjects) > 0 {
			if err := tx.Create(&subjects).Error; err != nil {
				return fmt.Errorf("seed subjects: %w", err)
			}
		}
		if len(scores) > 0 {
			if err := tx.Create(&scores).Error; err != nil {
				return fmt.Errorf("seed scores: %w", err)
			}
		}
		return nil
	})
}
