package pipeline

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/rs/zerolog/log"

	"storyforge/internal/config"
	"storyforge/internal/model/pipeline"
	"storyforge/internal/pkg/cache"
	"storyforge/internal/pkg/id"
	"storyforge/internal/repository/run"
)

// ErrRunActive 运行已有编排协程在跑
var ErrRunActive = errors.New("pipeline run is already being processed")

// Service 流水线服务门面
// 持有各阶段服务和运行状态仓库，负责编排协程的生命周期和暂停标志
type Service struct {
	cfg        *config.PipelineConfig
	repo       run.Repository
	cache      *cache.RedisCache // 可选，nil 时不写快照
	script     *ScriptService
	narration  *NarrationService
	visual     *VisualService
	validation *ValidationService
	assembly   *AssemblyService

	mu       sync.Mutex
	emitters map[string]*Emitter
	paused   map[string]bool
	active   map[string]context.CancelFunc
}

// NewService 创建流水线服务
func NewService(cfg *config.PipelineConfig, repo run.Repository, redisCache *cache.RedisCache,
	script *ScriptService, narration *NarrationService, visual *VisualService,
	validation *ValidationService, assembly *AssemblyService) *Service {
	return &Service{
		cfg:        cfg,
		repo:       repo,
		cache:      redisCache,
		script:     script,
		narration:  narration,
		visual:     visual,
		validation: validation,
		assembly:   assembly,
		emitters:   make(map[string]*Emitter),
		paused:     make(map[string]bool),
		active:     make(map[string]context.CancelFunc),
	}
}

// CreateRunRequest 创建运行的参数
type CreateRunRequest struct {
	Theme         string `json:"theme" binding:"required"`
	Genre         string `json:"genre"`
	Format        string `json:"format"`       // portrait（默认）/ landscape
	ProjectName   string `json:"project_name"` // 为空时从主题派生
	DurationSecs  int    `json:"duration_secs"`
	SkipNarration bool   `json:"skip_narration"`
}

func (r *CreateRunRequest) withDefaults() {
	if r.Format != "landscape" {
		r.Format = "portrait"
	}
	if r.DurationSecs <= 0 {
		r.DurationSecs = 60
	}
	if strings.TrimSpace(r.ProjectName) == "" {
		r.ProjectName = slugify(r.Theme)
	}
}

// CreateRun 创建运行并立即启动编排协程
func (s *Service) CreateRun(ctx context.Context, req *CreateRunRequest) (*pipeline.Run, error) {
	req.withDefaults()

	newRun := pipeline.NewRun(id.New(), req.Theme, req.Genre, req.Format, req.ProjectName, req.DurationSecs)
	newRun.SkipNarration = req.SkipNarration

	if err := s.repo.Create(ctx, newRun); err != nil {
		return nil, fmt.Errorf("persist new run: %w", err)
	}

	// 编排协程马上会改写 newRun，返回给调用方的必须是启动前的快照
	snapshot := newRun.Clone()
	if err := s.launch(newRun); err != nil {
		return nil, err
	}
	log.Info().Str("run_id", newRun.ID).Str("theme", req.Theme).Msg("pipeline run created")
	return snapshot, nil
}

// launch 为运行启动编排协程，同一运行同时只允许一个
func (s *Service) launch(r *pipeline.Run) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, running := s.active[r.ID]; running {
		return ErrRunActive
	}

	// 编排生命周期长于创建请求，使用独立上下文
	runCtx, cancel := context.WithCancel(context.Background())
	s.active[r.ID] = cancel
	s.paused[r.ID] = false

	em, ok := s.emitters[r.ID]
	if !ok {
		em = NewEmitter()
		s.emitters[r.ID] = em
	}

	go s.orchestrate(runCtx, r, em)
	return nil
}

// GetRun 查询运行状态，优先读 Redis 快照
func (s *Service) GetRun(ctx context.Context, runID string) (*pipeline.Run, error) {
	if s.cache != nil {
		var snapshot pipeline.Run
		if err := s.cache.Get(ctx, cache.RunSnapshotKey(runID), &snapshot); err == nil {
			return &snapshot, nil
		}
	}
	return s.repo.FindByID(ctx, runID)
}

// ListRuns 查询运行列表
func (s *Service) ListRuns(ctx context.Context, page, pageSize int64, status string) ([]*pipeline.Run, int64, error) {
	return s.repo.List(ctx, page, pageSize, status)
}

// Subscribe 订阅运行的进度事件流
// 待启动的运行会被顺带拉起；已终态且没有留存广播器时，回放一个合成的 done 事件
func (s *Service) Subscribe(ctx context.Context, runID string) (<-chan Event, func(), error) {
	r, err := s.repo.FindByID(ctx, runID)
	if err != nil {
		return nil, nil, err
	}

	if r.Status == pipeline.RunStatusPending {
		if err := s.launch(r); err != nil && !errors.Is(err, ErrRunActive) {
			return nil, nil, err
		}
	}

	s.mu.Lock()
	em, ok := s.emitters[runID]
	if !ok {
		em = NewEmitter()
		s.emitters[runID] = em
		if r.Status == pipeline.RunStatusCompleted || r.Status == pipeline.RunStatusFailed {
			em.Done(DonePayload{
				RunID:      r.ID,
				Status:     string(r.Status),
				MergedPath: r.MergedPath,
				Error:      r.LastError,
			})
		}
	}
	s.mu.Unlock()

	ch, cancel := em.Subscribe()
	return ch, cancel, nil
}

// Pause 请求暂停运行；当前进行中的场景会跑完，下一个场景开始前停住
func (s *Service) Pause(ctx context.Context, runID string) error {
	r, err := s.repo.FindByID(ctx, runID)
	if err != nil {
		return err
	}
	if r.Status != pipeline.RunStatusRunning && r.Status != pipeline.RunStatusPending {
		return fmt.Errorf("run %s is %s, cannot pause", runID, r.Status)
	}

	s.mu.Lock()
	s.paused[runID] = true
	s.mu.Unlock()

	log.Info().Str("run_id", runID).Msg("pause requested")
	return nil
}

// Resume 恢复运行
// 编排协程还活着时只清暂停标志；进程重启后协程不在了，从断点重新拉起
func (s *Service) Resume(ctx context.Context, runID string) error {
	r, err := s.repo.FindByID(ctx, runID)
	if err != nil {
		return err
	}
	if r.Status == pipeline.RunStatusCompleted {
		return fmt.Errorf("run %s already completed", runID)
	}

	s.mu.Lock()
	s.paused[runID] = false
	_, running := s.active[runID]
	s.mu.Unlock()

	if !running {
		if err := s.launch(r); err != nil {
			return err
		}
	}
	log.Info().Str("run_id", runID).Msg("run resumed")
	return nil
}

// RegenerateScene 重新生成单个场景的脚本内容并重置其产物状态
// 只允许在非运行状态下操作，避免和编排协程竞争场景数据
func (s *Service) RegenerateScene(ctx context.Context, runID string, sceneID int) (*pipeline.Run, error) {
	r, err := s.repo.FindByID(ctx, runID)
	if err != nil {
		return nil, err
	}
	if r.Status == pipeline.RunStatusRunning {
		return nil, fmt.Errorf("run %s is running, pause it before regenerating scenes", runID)
	}

	scene := r.SceneByID(sceneID)
	if scene == nil {
		return nil, fmt.Errorf("scene %d not found in run %s", sceneID, runID)
	}

	content, err := s.script.RegenerateScene(ctx, r, scene)
	if err != nil {
		return nil, err
	}
	scene.Content = content

	// 旧产物作废，对应阶段退回待处理，下次恢复时重新生成
	if progress := r.ProgressFor(sceneID); progress != nil {
		progress.NarrationStatus = pipeline.NarrationPending
		progress.NarrationPath = ""
		progress.VisualStatus = pipeline.VisualPending
		progress.VisualPath = ""
	}
	if r.Stages[pipeline.StageNarration] == pipeline.StageStatusDone && !r.SkipNarration {
		r.Stages[pipeline.StageNarration] = pipeline.StageStatusPending
	}
	for _, stage := range []pipeline.Stage{pipeline.StageVisual, pipeline.StageValidation, pipeline.StageAssembly} {
		if r.Stages[stage] == pipeline.StageStatusDone {
			r.Stages[stage] = pipeline.StageStatusPending
		}
	}
	if r.Status == pipeline.RunStatusCompleted || r.Status == pipeline.RunStatusFailed {
		r.Status = pipeline.RunStatusPaused
		r.CompletedAt = nil
		r.MergedPath = ""
	}

	s.persist(ctx, r)
	log.Info().Str("run_id", runID).Int("scene", sceneID).Msg("scene regenerated")
	return r, nil
}

// ValidateRun 对指定运行做一次按需校验，结果写回运行状态
func (s *Service) ValidateRun(ctx context.Context, runID string) (*pipeline.ValidationResult, error) {
	r, err := s.repo.FindByID(ctx, runID)
	if err != nil {
		return nil, err
	}

	result := s.validation.Validate(ctx, r)
	r.Validation = result
	s.persist(ctx, r)
	return result, nil
}

// MergeRun 对指定运行做一次按需合成（不走完整编排）
func (s *Service) MergeRun(ctx context.Context, runID string) (*AssemblyReport, error) {
	r, err := s.repo.FindByID(ctx, runID)
	if err != nil {
		return nil, err
	}
	if r.Status == pipeline.RunStatusRunning {
		return nil, fmt.Errorf("run %s is running, pause it before merging manually", runID)
	}

	destDir, err := s.artifactDir(r.ID, "merged")
	if err != nil {
		return nil, err
	}

	report, err := s.assembly.Assemble(ctx, r, destDir)
	if err != nil {
		return nil, err
	}

	r.MergedPath = report.OutputPath
	s.persist(ctx, r)
	return report, nil
}

// MergeFilesRequest 按显式文件清单合成的参数
type MergeFilesRequest struct {
	VideoPaths    []string
	AudioPaths    []string
	Orientation   string // portrait（默认）/ landscape
	WatermarkText string
	ProjectName   string
}

// MergeFiles 按显式文件清单合成，不关联任何运行
func (s *Service) MergeFiles(ctx context.Context, req *MergeFilesRequest) (*AssemblyReport, error) {
	if len(req.VideoPaths) == 0 {
		return nil, fmt.Errorf("at least one video path is required")
	}
	for _, p := range req.VideoPaths {
		if !fileExists(p) {
			return nil, fmt.Errorf("video file not found: %s", p)
		}
	}
	for _, p := range req.AudioPaths {
		if !fileExists(p) {
			return nil, fmt.Errorf("audio file not found: %s", p)
		}
	}

	projectName := req.ProjectName
	if strings.TrimSpace(projectName) == "" {
		projectName = "manual_merge"
	}

	destDir, err := s.artifactDir("manual", "merged")
	if err != nil {
		return nil, err
	}
	return s.assembly.MergeFiles(ctx, req.VideoPaths, req.AudioPaths, req.Orientation, req.WatermarkText, projectName, destDir)
}

// Shutdown 取消所有活跃的编排协程
func (s *Service) Shutdown() {
	s.mu.Lock()
	defer s.mu.Unlock()
	for runID, cancel := range s.active {
		cancel()
		delete(s.active, runID)
	}
}

// persist 持久化断点并刷新 Redis 快照
// 断点写失败只记日志：宁可丢断点也不中断生成
func (s *Service) persist(ctx context.Context, r *pipeline.Run) {
	if err := s.repo.Update(ctx, r); err != nil {
		log.Error().Err(err).Str("run_id", r.ID).Msg("persist run checkpoint failed")
	}
	if s.cache != nil {
		if err := s.cache.Set(ctx, cache.RunSnapshotKey(r.ID), r, cache.RunSnapshotTTL); err != nil {
			log.Warn().Err(err).Str("run_id", r.ID).Msg("run snapshot cache write failed")
		}
	}
}

func (s *Service) isPaused(runID string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.paused[runID]
}

func (s *Service) clearActive(runID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if cancel, ok := s.active[runID]; ok {
		cancel()
		delete(s.active, runID)
	}
}
