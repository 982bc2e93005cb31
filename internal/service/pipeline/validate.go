package pipeline

import (
	"context"
	"fmt"
	"math"
	"strings"

	"storyforge/internal/model/pipeline"
	"storyforge/internal/pkg/ffmpeg"
)

// MediaProber 媒体探测接口，校验引擎通过它读取产物的时长和分辨率
type MediaProber interface {
	Probe(ctx context.Context, path string) (*ffmpeg.MediaInfo, error)
}

// ValidationService 产物校验
// 六项检查各自打 0-100 分，总分为平均分；校验只出报告，不拦截流水线
type ValidationService struct {
	prober MediaProber
}

// NewValidationService 创建校验服务
func NewValidationService(prober MediaProber) *ValidationService {
	return &ValidationService{prober: prober}
}

// passThreshold 单项及总分的及格线
const passThreshold = 70

// severityFor 按分数划定严重级别
func severityFor(score int) pipeline.Severity {
	switch {
	case score < 50:
		return pipeline.SeverityError
	case score < passThreshold:
		return pipeline.SeverityWarning
	default:
		return pipeline.SeverityInfo
	}
}

func newCheck(name string, score int, message string) pipeline.Check {
	return pipeline.Check{
		Name:     name,
		Passed:   score >= passThreshold,
		Score:    score,
		Message:  message,
		Severity: severityFor(score),
	}
}

// Validate 对运行的全部产物做一次完整校验
// 同样的输入总是产出同样的报告，不修改运行状态
func (s *ValidationService) Validate(ctx context.Context, run *pipeline.Run) *pipeline.ValidationResult {
	checks := []pipeline.Check{
		s.checkScript(run),
		s.checkNarration(ctx, run),
		s.checkVisual(ctx, run),
		s.checkConsistency(run),
		s.checkNaming(run),
		s.checkCompleteness(run),
	}

	total := 0
	for _, c := range checks {
		total += c.Score
	}
	avg := int(math.Round(float64(total) / float64(len(checks))))

	hasError := false
	var recommendations []string
	for _, c := range checks {
		if c.Severity == pipeline.SeverityError {
			hasError = true
		}
		if !c.Passed {
			recommendations = append(recommendations, fmt.Sprintf("%s: %s", c.Name, c.Message))
		}
	}

	return &pipeline.ValidationResult{
		Score:           avg,
		Passed:          !hasError && avg >= passThreshold,
		Checks:          checks,
		Recommendations: recommendations,
	}
}

// checkScript 脚本质量：过短场景、重复内容、全部是占位标题都要扣分
func (s *ValidationService) checkScript(run *pipeline.Run) pipeline.Check {
	const name = "script_quality"
	if len(run.Scenes) == 0 {
		return newCheck(name, 0, "no scenes generated")
	}

	score := 100
	var issues []string

	seen := make(map[string]bool, len(run.Scenes))
	duplicates := false
	allGeneric := true
	short, thin := 0, 0

	for _, scene := range run.Scenes {
		content := strings.TrimSpace(scene.Content)
		switch {
		case len(content) < 20:
			short++
		case len(content) < 50:
			thin++
		}
		// 重复判定不区分大小写
		key := strings.ToLower(content)
		if seen[key] && key != "" {
			duplicates = true
		}
		seen[key] = true
		if !strings.HasPrefix(scene.Title, "Scene ") {
			allGeneric = false
		}
	}

	if short > 0 {
		score -= 15 * short
		issues = append(issues, fmt.Sprintf("%d scene(s) under 20 characters", short))
	}
	if thin > 0 {
		score -= 5 * thin
		issues = append(issues, fmt.Sprintf("%d scene(s) under 50 characters", thin))
	}
	if duplicates {
		score -= 20
		issues = append(issues, "duplicate scene content detected")
	}
	if allGeneric {
		score -= 5
		issues = append(issues, "all scene titles are placeholders")
	}
	if score < 0 {
		score = 0
	}

	message := "script content looks healthy"
	if len(issues) > 0 {
		message = strings.Join(issues, "; ")
	}
	return newCheck(name, score, message)
}

// checkNarration 旁白产物：过短的音频基本是合成失败，超长的音频会拖垮节奏
// 分数取在场产物的平均分；一个产物都没有时记 0 分
func (s *ValidationService) checkNarration(ctx context.Context, run *pipeline.Run) pipeline.Check {
	const name = "narration_audio"
	if run.SkipNarration {
		return newCheck(name, 100, "narration skipped for this run")
	}

	total, probed := 0, 0
	var issues []string

	for _, progress := range run.Progress {
		if progress.NarrationPath == "" || !fileExists(progress.NarrationPath) {
			issues = append(issues, fmt.Sprintf("scene %d narration missing", progress.SceneID))
			continue
		}
		probed++

		sceneScore := 100
		info, err := s.prober.Probe(ctx, progress.NarrationPath)
		if err != nil {
			sceneScore = 80
			issues = append(issues, fmt.Sprintf("scene %d audio unreadable", progress.SceneID))
		} else {
			switch {
			case info.Duration < 1:
				sceneScore = 50
				issues = append(issues, fmt.Sprintf("scene %d audio under 1s", progress.SceneID))
			case info.Duration > 120:
				sceneScore = 70
				issues = append(issues, fmt.Sprintf("scene %d audio over 120s", progress.SceneID))
			}
		}
		total += sceneScore
	}

	if probed == 0 {
		return newCheck(name, 0, "no narration artifacts to check")
	}

	score := int(math.Round(float64(total) / float64(probed)))
	message := fmt.Sprintf("%d narration artifact(s) checked", probed)
	if len(issues) > 0 {
		message = strings.Join(issues, "; ")
	}
	return newCheck(name, score, message)
}

// checkVisual 视觉产物：宽高比偏离目标画幅或探测失败都降分
// 分数取在场产物的平均分；一个产物都没有时记 0 分
func (s *ValidationService) checkVisual(ctx context.Context, run *pipeline.Run) pipeline.Check {
	const name = "visual_clips"
	width, height := run.TargetResolution()
	targetRatio := float64(width) / float64(height)

	total, probed := 0, 0
	var issues []string

	for _, progress := range run.Progress {
		if progress.VisualPath == "" || !fileExists(progress.VisualPath) {
			issues = append(issues, fmt.Sprintf("scene %d visual missing", progress.SceneID))
			continue
		}
		probed++

		sceneScore := 100
		info, err := s.prober.Probe(ctx, progress.VisualPath)
		if err != nil || info.Width == 0 || info.Height == 0 {
			sceneScore = 80
			issues = append(issues, fmt.Sprintf("scene %d clip unreadable", progress.SceneID))
		} else {
			ratio := float64(info.Width) / float64(info.Height)
			if math.Abs(ratio-targetRatio) > 0.1 {
				sceneScore = 70
				issues = append(issues, fmt.Sprintf("scene %d aspect ratio %.2f deviates from target %.2f",
					progress.SceneID, ratio, targetRatio))
			}
			if info.Duration > 0 && info.Duration < 2 {
				issues = append(issues, fmt.Sprintf("scene %d clip shorter than 2s", progress.SceneID))
			}
		}
		total += sceneScore
	}

	if probed == 0 {
		return newCheck(name, 0, "no visual artifacts to check")
	}

	score := int(math.Round(float64(total) / float64(probed)))
	message := fmt.Sprintf("%d visual artifact(s) checked", probed)
	if len(issues) > 0 {
		message = strings.Join(issues, "; ")
	}
	return newCheck(name, score, message)
}

// checkConsistency 音画一致性：分数等于两类产物齐全的场景占比
func (s *ValidationService) checkConsistency(run *pipeline.Run) pipeline.Check {
	const name = "scene_consistency"
	if len(run.Scenes) == 0 {
		return newCheck(name, 0, "no scenes to compare")
	}

	complete := 0
	for _, scene := range run.Scenes {
		progress := run.ProgressFor(scene.ID)
		if progress == nil {
			continue
		}
		hasNarration := progress.NarrationPath != "" && fileExists(progress.NarrationPath)
		hasVisual := progress.VisualPath != "" && fileExists(progress.VisualPath)
		if hasVisual && (hasNarration || run.SkipNarration) {
			complete++
		}
	}

	score := complete * 100 / len(run.Scenes)
	return newCheck(name, score,
		fmt.Sprintf("%d/%d scene(s) have a full artifact set", complete, len(run.Scenes)))
}

// namingAllowed 工程名允许的字符集
func namingAllowed(r rune) bool {
	switch {
	case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9':
		return true
	case r == ' ' || r == '_' || r == '-':
		return true
	}
	return false
}

// checkNaming 工程命名：空名和特殊字符在下游文件系统上都容易出事
func (s *ValidationService) checkNaming(run *pipeline.Run) pipeline.Check {
	const name = "project_naming"
	trimmed := strings.TrimSpace(run.ProjectName)
	if trimmed == "" {
		return pipeline.Check{
			Name:     name,
			Passed:   true,
			Score:    70,
			Message:  "project name is empty",
			Severity: pipeline.SeverityWarning,
		}
	}
	for _, r := range trimmed {
		if !namingAllowed(r) {
			return pipeline.Check{
				Name:     name,
				Passed:   true,
				Score:    70,
				Message:  fmt.Sprintf("project name contains special character %q", r),
				Severity: pipeline.SeverityWarning,
			}
		}
	}
	return newCheck(name, 100, "project name is filesystem friendly")
}

// checkCompleteness 阶段完整性：脚本/旁白/视觉三个生成阶段各占约三分之一
func (s *ValidationService) checkCompleteness(run *pipeline.Run) pipeline.Check {
	const name = "stage_completeness"
	missing := 0
	var missingNames []string
	for _, stage := range []pipeline.Stage{pipeline.StageScript, pipeline.StageNarration, pipeline.StageVisual} {
		status := run.Stages[stage]
		if status != pipeline.StageStatusDone && status != pipeline.StageStatusSkipped {
			missing++
			missingNames = append(missingNames, string(stage))
		}
	}

	score := 100 - 33*missing
	if score < 0 {
		score = 0
	}
	message := "all generation stages finished"
	if missing > 0 {
		message = fmt.Sprintf("unfinished stage(s): %s", strings.Join(missingNames, ", "))
	}
	return newCheck(name, score, message)
}
