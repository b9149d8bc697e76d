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

// CalculatorToolName GPA 计算工具名。
const CalculatorToolName = "calculate_average_scores"

// calculatorInput 输入可以是 JSON 也可以是越南语原始成绩文本。
type calculatorInput struct {
	ScoresJSON string `json:"scores_json"`
}

// CalculatorOutput 计算结果,错误以 Message 表达。
type CalculatorOutput struct {
	Averages map[string]float64 `json:"averages"`
	Message  string             `json:"message"`
}

var calculatorSchema = json.RawMessage(`{
	"type": "object",
	"properties": {
		"scores_json": {"type": "string", "description": "JSON string with field 'scores' OR raw text in format 'Tên môn (x tín chỉ): điểm'"}
	},
	"required": ["scores_json"]
}`)

// RegisterCalculator 注册 GPA 计算工具。
func RegisterCalculator(reg *Registry, logger *zap.Logger) error {
	if logger == nil {
		logger = zap.NewNop()
	}

	fn := func(_ context.Context, args json.RawMessage) (json.RawMessage, error) {
		var input calculatorInput
		if err := json.Unmarshal(args, &input); err != nil {
			return nil, fmt.Errorf("parse calculator arguments: %w", err)
		}

		scores, err := score.ParseScoresInput(input.ScoresJSON)
		if err != nil {
			return json.Marshal(CalculatorOutput{
				Averages: map[string]float64{},
				Message:  "No scores data provided",
			})
		}
		result, err := score.ComputeGPA(scores)
		if err != nil {
			return json.Marshal(CalculatorOutput{
				Averages: map[string]float64{},
				Message:  fmt.Sprintf("Error calculating averages: %s", err),
			})
		}

		logger.Debug("gpa calculated",
			zap.Float64("average_score", result.AverageScore),
			zap.Int("total_credits", result.TotalCredits))
		return json.Marshal(CalculatorOutput{
			Averages: map[string]float64{
				"average_score": result.AverageScore,
				"total_credits": float64(result.TotalCredits),
			},
			Message: "Average scores calculated successfully",
		})
	}

	return reg.Register(CalculatorToolName, fn, ToolMetadata{
		Schema: llm.ToolSchema{
			Name: CalculatorToolName,
			Description: "Calculate average scores (GPA) from provided scores data. " +
				"Input can be a JSON string with field 'scores' or raw text in format 'Tên môn (x tín chỉ): điểm'.",
			Parameters: calculatorSchema,
		},
		Timeout: 5 * time.Second,
	})
}
