package tools

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/BaSui01/kmachat/llm"
	"github.com/BaSui01/kmachat/score"
)

// 成绩类工具名。二者都要求 student_code。
const (
	ScoresToolName      = "get_student_scores"
	StudentInfoToolName = "get_student_info"
)

// ScoresInput 成绩查询参数。
type ScoresInput struct {
	StudentCode string `json:"student_code"`
	Semester    string `json:"semester,omitempty"`
	SubjectID   int    `json:"subject_id,omitempty"`
}

// ScoresOutput 成绩查询输出,错误以 Message 表达,保持对话继续。
type ScoresOutput struct {
	Scores  []score.ScoreWithDetails `json:"scores"`
	Message string                   `json:"message"`
}

// StudentInfoOutput 学生信息查询输出。
type StudentInfoOutput struct {
	Student *score.Student `json:"student"`
	Message string         `json:"message"`
}

var scoresSchema = json.RawMessage(`{
	"type": "object",
	"properties": {
		"student_code": {"type": "string", "description": "The student code to get scores for"},
		"semester": {"type": "string", "description": "Filter scores by semester in format ki1-2024-2025, k2-2024-2025, etc."},
		"subject_id": {"type": "integer", "description": "Filter scores by subject ID"}
	},
	"required": ["student_code"]
}`)

var studentInfoSchema = json.RawMessage(`{
	"type": "object",
	"properties": {
		"student_code": {"type": "string", "description": "The student code to get information for"}
	},
	"required": ["student_code"]
}`)

// RegisterScoreTools 注册成绩与学生信息工具。
func RegisterScoreTools(reg *Registry, store *score.Store, logger *zap.Logger) error {
	if logger == nil {
		logger = zap.NewNop()
	}

	getScores := func(ctx context.Context, args json.RawMessage) (json.RawMessage, error) {
		var input ScoresInput
		if err := json.Unmarshal(args, &input); err != nil {
			return nil, fmt.Errorf("parse score arguments: %w", err)
		}

		if input.Semester != "" && !score.ValidSemester(input.Semester) {
			return json.Marshal(ScoresOutput{
				Scores:  []score.ScoreWithDetails{},
				Message: "Invalid semester format. Must be in format ki1-2024-2025, k2-2024-2025, etc.",
			})
		}

		results, err := store.GetScores(ctx, score.ScoreFilter{
			StudentCode: input.StudentCode,
			Semester:    input.Semester,
			SubjectID:   input.SubjectID,
		})
		if err != nil {
			return json.Marshal(ScoresOutput{
				Scores:  []score.ScoreWithDetails{},
				Message: fmt.Sprintf("Error retrieving scores: %s", err),
			})
		}

		out := ScoresOutput{Scores: results}
		suffix := ""
		if input.Semester != "" {
			suffix = fmt.Sprintf(" in semester %s", input.Semester)
		}
		if len(results) == 0 {
			out.Scores = []score.ScoreWithDetails{}
			out.Message = fmt.Sprintf("No scores found for student %s%s", input.StudentCode, suffix)
		} else {
			out.Message = fmt.Sprintf("Found %d scores for student %s%s", len(results), input.StudentCode, suffix)
		}

		logger.Debug("score lookup",
			zap.String("student_code", input.StudentCode),
			zap.String("semester", input.Semester),
			zap.Int("scores", len(results)))
		return json.Marshal(out)
	}

	getStudent := func(ctx context.Context, args json.RawMessage) (json.RawMessage, error) {
		var input ScoresInput
		if err := json.Unmarshal(args, &input); err != nil {
			return nil, fmt.Errorf("parse student arguments: %w", err)
		}

		student, err := store.GetStudent(ctx, input.StudentCode)
		if err != nil {
			return json.Marshal(StudentInfoOutput{
				Message: fmt.Sprintf("Error retrieving student information: %s", err),
			})
		}
		if student == nil {
			return json.Marshal(StudentInfoOutput{
				Message: fmt.Sprintf("No student found with code %s", input.StudentCode),
			})
		}
		return json.Marshal(StudentInfoOutput{
			Student: student,
			Message: fmt.Sprintf("Found student information for %s", input.StudentCode),
		})
	}

	if err := reg.Register(ScoresToolName, getScores, ToolMetadata{
		Schema: llm.ToolSchema{
			Name: ScoresToolName,
			Description: "Get KMA student scores from the database. " +
				"Useful for retrieving scores for a specific student. " +
				"The student code must be provided. Optionally filter by semester in format ki1-2024-2025, k2-2024-2025.",
			Parameters: scoresSchema,
		},
		Timeout: 10 * time.Second,
	}); err != nil {
		return err
	}

	return reg.Register(StudentInfoToolName, getStudent, ToolMetadata{
		Schema: llm.ToolSchema{
			Name: StudentInfoToolName,
			Description: "Get KMA student information from the database. " +
				"Useful for retrieving information for a specific student. " +
				"The student code must be provided.",
			Parameters: studentInfoSchema,
		},
		Timeout: 10 * time.Second,
	})
}
