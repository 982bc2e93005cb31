package pipeline

import (
	"context"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// Stage 流水线阶段（固定五段，顺序不可变）
type Stage string

const (
	StageScript     Stage = "script"
	StageNarration  Stage = "narration"
	StageVisual     Stage = "visual"
	StageValidation Stage = "validation"
	StageAssembly   Stage = "assembly"
)

// Stages 按执行顺序排列的全部阶段
var Stages = []Stage{StageScript, StageNarration, StageVisual, StageValidation, StageAssembly}

// StageStatus 阶段状态
// 状态迁移是单向的，唯一的例外是 error -> generating（手动重试）
type StageStatus string

const (
	StageStatusPending    StageStatus = "pending"
	StageStatusGenerating StageStatus = "generating"
	StageStatusValidating StageStatus = "validating"
	StageStatusDone       StageStatus = "done"
	StageStatusError      StageStatus = "error"
	StageStatusSkipped    StageStatus = "skipped"
)

// NarrationStatus 单场景旁白状态
type NarrationStatus string

const (
	NarrationPending     NarrationStatus = "pending"
	NarrationGenerating  NarrationStatus = "generating"
	NarrationDone        NarrationStatus = "done"
	NarrationError       NarrationStatus = "error"
	NarrationNeedsUpload NarrationStatus = "needs_upload" // 自动化下载未找到，等待人工上传
)

// VisualStatus 单场景视觉状态
type VisualStatus string

const (
	VisualPending    VisualStatus = "pending"
	VisualGenerating VisualStatus = "generating"
	VisualDone       VisualStatus = "done"
	VisualError      VisualStatus = "error"
)

// Scene 场景：一段旁白文本及其目标时长
// 脚本阶段创建后不可变，唯一的例外是重新生成操作替换 Content
type Scene struct {
	ID              int    `bson:"id" json:"id"` // 1 起始，运行期间稳定
	Title           string `bson:"title" json:"title"`
	Content         string `bson:"content" json:"content"`
	DurationSeconds int    `bson:"duration_seconds" json:"duration_seconds"`
}

// SceneProgress 单场景子状态
// 旁白轴和视觉轴各自只能由对应阶段修改，运行期间不会被删除
type SceneProgress struct {
	SceneID         int             `bson:"scene_id" json:"scene_id"`
	NarrationStatus NarrationStatus `bson:"narration_status" json:"narration_status"`
	VisualStatus    VisualStatus    `bson:"visual_status" json:"visual_status"`
	NarrationPath   string          `bson:"narration_path,omitempty" json:"narration_path,omitempty"`
	VisualPath      string          `bson:"visual_path,omitempty" json:"visual_path,omitempty"`
}

// RunStatus 一次流水线运行的总体状态
type RunStatus string

const (
	RunStatusPending   RunStatus = "pending"
	RunStatusRunning   RunStatus = "running"
	RunStatusPaused    RunStatus = "paused"
	RunStatusCompleted RunStatus = "completed"
	RunStatusFailed    RunStatus = "failed"
)

// Run 一次完整的流水线运行状态
// 编排器独占持有，所有阶段调用显式传入/传出，便于断点续跑
type Run struct {
	ID            string                `bson:"id" json:"id"`
	Version       int                   `bson:"version" json:"version"` // 每次持久化递增
	Theme         string                `bson:"theme" json:"theme"`
	Genre         string                `bson:"genre" json:"genre"`
	Format        string                `bson:"format" json:"format"` // portrait / landscape
	ProjectName   string                `bson:"project_name" json:"project_name"`
	DurationSecs  int                   `bson:"duration_secs" json:"duration_secs"`
	SkipNarration bool                  `bson:"skip_narration" json:"skip_narration"`
	Title         string                `bson:"title,omitempty" json:"title,omitempty"`
	Status        RunStatus             `bson:"status" json:"status"`
	Paused        bool                  `bson:"paused" json:"paused"`
	Stages        map[Stage]StageStatus `bson:"stages" json:"stages"`
	Scenes        []Scene               `bson:"scenes" json:"scenes"`
	Progress      []SceneProgress       `bson:"progress" json:"progress"`
	Validation    *ValidationResult     `bson:"validation,omitempty" json:"validation,omitempty"`
	MergedPath    string                `bson:"merged_path,omitempty" json:"merged_path,omitempty"`
	LastError     string                `bson:"last_error,omitempty" json:"last_error,omitempty"`
	CreatedAt     time.Time             `bson:"created_at" json:"created_at"`
	UpdatedAt     time.Time             `bson:"updated_at" json:"updated_at"`
	CompletedAt   *time.Time            `bson:"completed_at,omitempty" json:"completed_at,omitempty"`
}

// NewRun 创建初始运行状态，所有阶段置为 pending
func NewRun(id, theme, genre, format, projectName string, durationSecs int) *Run {
	stages := make(map[Stage]StageStatus, len(Stages))
	for _, s := range Stages {
		stages[s] = StageStatusPending
	}
	return &Run{
		ID:           id,
		Version:      1,
		Theme:        theme,
		Genre:        genre,
		Format:       format,
		ProjectName:  projectName,
		DurationSecs: durationSecs,
		Status:       RunStatusPending,
		Stages:       stages,
	}
}

// Clone 返回运行状态的深拷贝
// 仓库边界只交换拷贝，读状态的请求协程和编排协程互不共享可变结构
func (r *Run) Clone() *Run {
	clone := *r
	if r.Stages != nil {
		clone.Stages = make(map[Stage]StageStatus, len(r.Stages))
		for k, v := range r.Stages {
			clone.Stages[k] = v
		}
	}
	if r.Scenes != nil {
		clone.Scenes = append([]Scene(nil), r.Scenes...)
	}
	if r.Progress != nil {
		clone.Progress = append([]SceneProgress(nil), r.Progress...)
	}
	if r.Validation != nil {
		v := *r.Validation
		v.Checks = append([]Check(nil), r.Validation.Checks...)
		v.Recommendations = append([]string(nil), r.Validation.Recommendations...)
		clone.Validation = &v
	}
	if r.CompletedAt != nil {
		t := *r.CompletedAt
		clone.CompletedAt = &t
	}
	return &clone
}

// ProgressFor 返回指定场景的进度项（不存在时返回 nil）
func (r *Run) ProgressFor(sceneID int) *SceneProgress {
	for i := range r.Progress {
		if r.Progress[i].SceneID == sceneID {
			return &r.Progress[i]
		}
	}
	return nil
}

// SceneByID 返回指定场景（不存在时返回 nil）
func (r *Run) SceneByID(sceneID int) *Scene {
	for i := range r.Scenes {
		if r.Scenes[i].ID == sceneID {
			return &r.Scenes[i]
		}
	}
	return nil
}

// TargetResolution 根据画幅返回目标分辨率
func (r *Run) TargetResolution() (width, height int) {
	if r.Format == "landscape" {
		return 1920, 1080
	}
	return 1080, 1920
}

// Collection 返回集合名称
func (r *Run) Collection() string { return "pipeline_runs" }

// EnsureIndexes 创建和维护索引
func (r *Run) EnsureIndexes(ctx context.Context, db *mongo.Database) error {
	coll := db.Collection(r.Collection())
	indexes := []mongo.IndexModel{
		{
			Keys:    bson.D{{Key: "id", Value: 1}},
			Options: options.Index().SetName("idx_id").SetUnique(true),
		},
		{
			Keys:    bson.D{{Key: "status", Value: 1}, {Key: "updated_at", Value: -1}},
			Options: options.Index().SetName("idx_status_updated"),
		},
		{
			Keys:    bson.D{{Key: "created_at", Value: -1}},
			Options: options.Index().SetName("idx_created"),
		},
	}
	_, err := coll.Indexes().CreateMany(ctx, indexes)
	return err
}
