package score

import (
	"encoding/json"
	"fmt"
	"math"
	"regexp"
	"strconv"
	"strings"
)

// SubjectScore GPA 计算的输入条目。
type SubjectScore struct {
	SubjectName    string  `json:"subject_name"`
	SubjectCredits int     `json:"subject_credits"`
	ScoreOverall   float64 `json:"score_over_rall"`
}

// GPAResult 加权平均结果。
type GPAResult struct {
	AverageScore float64 `json:"average_score"`
	TotalCredits int     `json:"total_credits"`
}

// rawScorePattern 解析 "Tên môn (x tín chỉ): điểm" 格式的成绩文本。
var rawScorePattern = regexp.MustCompile(`(.+?)\s*\((\d+)\s*tín chỉ\)\s*:\s*([\d.]+)`)

// ParseScoresInput 解析成绩输入:优先按 JSON {"scores":[...]},
// 失败则按越南语原始文本逐行匹配。
func ParseScoresInput(input string) ([]SubjectScore, error) {
	var payload struct {
		Scores []SubjectScore `json:"scores"`
	}
	if err := json.Unmarshal([]byte(input), &payload); err == nil {
		return payload.Scores, nil
	}

	var scores []SubjectScore
	for _, m := range rawScorePattern.FindAllStringSubmatch(input, -1) {
		credits, err := strconv.Atoi(m[2])
		if err != nil {
			continue
		}
		overall, err := strconv.ParseFloat(m[3], 64)
		if err != nil {
			continue
		}
		scores = append(scores, SubjectScore{
			SubjectName:    strings.TrimSpace(m[1]),
			SubjectCredits: credits,
			ScoreOverall:   overall,
		})
	}
	if len(scores) == 0 {
		return nil, fmt.Errorf("no scores found in input")
	}
	return scores, nil
}

// ComputeGPA 按学分加权计算平均分,保留两位小数。
func ComputeGPA(scores []SubjectScore) (*GPAResult, error) {
	if len(scores) == 0 {
		return nil, fmt.Errorf("no scores data provided")
	}

	var weighted float64
	var credits int
	for _, s := range scores {
		weighted += s.ScoreOverall * float64(s.SubjectCredits)
		credits += s.SubjectCredits
	}
	if credits == 0 {
		return nil, fmt.Errorf("total credits is zero, cannot calculate average")
	}

	avg := math.Round(weighted/float64(credits)*100) / 100
	return &GPAResult{AverageScore: avg, TotalCredits: credits}, nil
}
