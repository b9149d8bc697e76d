package score

import (
	"fmt"
	"regexp"
)

// Student 学生档案。
type Student struct {
	StudentCode  string `gorm:"primaryKey;column:student_code" json:"student_code"`
	StudentName  string `gorm:"column:student_name" json:"student_name"`
	StudentClass string `gorm:"column:student_class" json:"student_class,omitempty"`
}

func (Student) TableName() string { return "students" }

// Subject 课程信息。
type Subject struct {
	SubjectID      int    `gorm:"primaryKey;column:subject_id" json:"subject_id"`
	SubjectName    string `gorm:"column:subject_name" json:"subject_name"`
	SubjectCredits int    `gorm:"column:subject_credits" json:"subject_credits,omitempty"`
}

func (Subject) TableName() string { return "subjects" }

// Score 单科成绩记录。分项成绩可能缺失（未录入）。
// json 字段 score_over_rall 是历史接口拼写，保持兼容。
type Score struct {
	ID           uint     `gorm:"primaryKey;autoIncrement" json:"-"`
	ScoreText    *string  `gorm:"column:score_text" json:"score_text,omitempty"`
	ScoreFirst   *float64 `gorm:"column:score_first" json:"score_first,omitempty"`
	ScoreSecond  *float64 `gorm:"column:score_second" json:"score_second,omitempty"`
	ScoreFinal   *float64 `gorm:"column:score_final" json:"score_final,omitempty"`
	ScoreOverall *float64 `gorm:"column:score_over_rall" json:"score_over_rall,omitempty"`
	Semester     string   `gorm:"column:semester;index" json:"semester,omitempty"`
	StudentCode  string   `gorm:"column:student_code;index" json:"student_code"`
	SubjectID    int      `gorm:"column:subject_id;index" json:"subject_id"`
}

func (Score) TableName() string { return "scores" }

// ScoreWithDetails 成绩连同学生与课程信息。
type ScoreWithDetails struct {
	Score
	Student Student `json:"student"`
	Subject Subject `json:"subject"`
}

// semesterPattern 学期格式：ki1-2024-2025 / k2-2024-2025。
var semesterPattern = regexp.MustCompile(`^(ki|k)[1-4]-\d{4}-\d{4}$`)

// ValidSemester reports whether label matches the ki1-2024-2025 format.
func ValidSemester(label string) bool {
	return semesterPattern.MatchString(label)
}

// ScoreFilter 成绩查询过滤条件。零值字段不参与过滤。
type ScoreFilter struct {
	StudentCode string `json:"student_code,omitempty"`
	Semester    string `json:"semester,omitempty"`
	SubjectID   int    `json:"subject_id,omitempty"`
}

// Validate 校验过滤条件,学期格式非法时返回错误。
func (f ScoreFilter) Validate() error {
	if f.Semester != "" && !ValidSemester(f.Semester) {
		return fmt.Errorf("semester must be in format ki1-2024-2025, k2-2024-2025, etc: %q", f.Semester)
	}
	return nil
}
