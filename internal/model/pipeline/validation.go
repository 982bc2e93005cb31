package pipeline

// Severity 校验项严重级别
type Severity string

const (
	SeverityError   Severity = "error"
	SeverityWarning Severity = "warning"
	SeverityInfo    Severity = "info"
)

// Check 单个校验项结果
type Check struct {
	Name     string   `bson:"name" json:"name"`
	Passed   bool     `bson:"passed" json:"passed"`
	Score    int      `bson:"score" json:"score"` // 0-100
	Message  string   `bson:"message" json:"message"`
	Severity Severity `bson:"severity" json:"severity"`
}

// ValidationResult 一次完整校验的结果
// 每次校验整体重新计算，不做增量更新
type ValidationResult struct {
	Score           int      `bson:"score" json:"score"` // 六项检查的平均分（四舍五入）
	Passed          bool     `bson:"passed" json:"passed"`
	Checks          []Check  `bson:"checks" json:"checks"`
	Recommendations []string `bson:"recommendations" json:"recommendations"` // 仅供参考，不拦截流程
}
