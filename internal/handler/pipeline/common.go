package pipeline

import (
	"time"

	"storyforge/internal/model/pipeline"
	httputil "storyforge/internal/pkg/http"
)

// ErrorResponse 错误响应类型别名（使用共用的 http.ErrorResponse）
type ErrorResponse = httputil.ErrorResponse

// SceneInfo 场景信息（用于响应）
type SceneInfo struct {
	ID              int    `json:"id"`               // 场景号（1起始）
	Title           string `json:"title"`            // 场景标题
	Content         string `json:"content"`          // 旁白文本
	DurationSeconds int    `json:"duration_seconds"` // 目标时长（秒）
	NarrationStatus string `json:"narration_status"` // 旁白状态
	VisualStatus    string `json:"visual_status"`    // 视觉状态
	NarrationPath   string `json:"narration_path,omitempty"`
	VisualPath      string `json:"visual_path,omitempty"`
}

// RunInfo 运行信息 DTO
type RunInfo struct {
	ID            string                     `json:"id"`             // 运行ID
	Theme         string                     `json:"theme"`          // 主题
	Genre         string                     `json:"genre"`          // 题材
	Format        string                     `json:"format"`         // 画幅：portrait / landscape
	ProjectName   string                     `json:"project_name"`   // 工程名
	DurationSecs  int                        `json:"duration_secs"`  // 目标时长（秒）
	SkipNarration bool                       `json:"skip_narration"` // 是否跳过旁白
	Title         string                     `json:"title,omitempty"`
	Status        string                     `json:"status"` // 总体状态
	Paused        bool                       `json:"paused"`
	Stages        map[string]string          `json:"stages"` // 各阶段状态
	Scenes        []SceneInfo                `json:"scenes"`
	Validation    *pipeline.ValidationResult `json:"validation,omitempty"`
	MergedPath    string                     `json:"merged_path,omitempty"`
	LastError     string                     `json:"last_error,omitempty"`
	CreatedAt     string                     `json:"created_at"`
	UpdatedAt     string                     `json:"updated_at"`
	CompletedAt   string                     `json:"completed_at,omitempty"`
}

// toRunInfo 将 Run 实体转换为 RunInfo DTO
func toRunInfo(run *pipeline.Run) RunInfo {
	stages := make(map[string]string, len(run.Stages))
	for stage, status := range run.Stages {
		stages[string(stage)] = string(status)
	}

	scenes := make([]SceneInfo, len(run.Scenes))
	for i, scene := range run.Scenes {
		info := SceneInfo{
			ID:              scene.ID,
			Title:           scene.Title,
			Content:         scene.Content,
			DurationSeconds: scene.DurationSeconds,
		}
		if progress := run.ProgressFor(scene.ID); progress != nil {
			info.NarrationStatus = string(progress.NarrationStatus)
			info.VisualStatus = string(progress.VisualStatus)
			info.NarrationPath = progress.NarrationPath
			info.VisualPath = progress.VisualPath
		}
		scenes[i] = info
	}

	info := RunInfo{
		ID:            run.ID,
		Theme:         run.Theme,
		Genre:         run.Genre,
		Format:        run.Format,
		ProjectName:   run.ProjectName,
		DurationSecs:  run.DurationSecs,
		SkipNarration: run.SkipNarration,
		Title:         run.Title,
		Status:        string(run.Status),
		Paused:        run.Paused,
		Stages:        stages,
		Scenes:        scenes,
		Validation:    run.Validation,
		MergedPath:    run.MergedPath,
		LastError:     run.LastError,
		CreatedAt:     run.CreatedAt.Format(time.RFC3339),
		UpdatedAt:     run.UpdatedAt.Format(time.RFC3339),
	}
	if run.CompletedAt != nil {
		info.CompletedAt = run.CompletedAt.Format(time.RFC3339)
	}
	return info
}

// toRunInfoList 将 Run 列表转换为 RunInfo 列表
func toRunInfoList(runs []*pipeline.Run) []RunInfo {
	result := make([]RunInfo, len(runs))
	for i, run := range runs {
		result[i] = toRunInfo(run)
	}
	return result
}
