package pipeline

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/rs/zerolog/log"

	"storyforge/internal/model/pipeline"
	"storyforge/internal/pkg/browser"
	"storyforge/internal/pkg/locker"
)

// pausePollInterval 暂停状态下重新检查的间隔
const pausePollInterval = time.Second

// orchestrate 跑完一次运行剩余的全部阶段
// 每个场景、每次阶段切换都会持久化一次断点，已是 done 的阶段/场景直接跳过，
// 因此同一运行可以被安全地重入（断点续跑、暂停恢复）
func (s *Service) orchestrate(ctx context.Context, run *pipeline.Run, em *Emitter) {
	defer s.clearActive(run.ID)

	run.Status = pipeline.RunStatusRunning
	run.Paused = false
	s.persist(ctx, run)

	for _, stage := range pipeline.Stages {
		status := run.Stages[stage]
		if status == pipeline.StageStatusDone || status == pipeline.StageStatusSkipped {
			continue
		}

		if stopped := s.waitIfPaused(ctx, run, em); stopped {
			return
		}

		em.Log("stage %s started", stage)
		run.Stages[stage] = pipeline.StageStatusGenerating
		s.persist(ctx, run)

		var err error
		switch stage {
		case pipeline.StageScript:
			err = s.runScriptStage(ctx, run, em)
		case pipeline.StageNarration:
			err = s.runNarrationStage(ctx, run, em)
		case pipeline.StageVisual:
			err = s.runVisualStage(ctx, run, em)
		case pipeline.StageValidation:
			err = s.runValidationStage(ctx, run, em)
		case pipeline.StageAssembly:
			err = s.runAssemblyStage(ctx, run, em)
		}

		if errors.Is(err, errRunPaused) {
			return
		}
		if err != nil {
			run.Stages[stage] = pipeline.StageStatusError
			run.Status = pipeline.RunStatusFailed
			run.LastError = err.Error()
			s.persist(ctx, run)

			em.Error("stage %s failed: %v", stage, err)
			em.Done(DonePayload{RunID: run.ID, Status: string(run.Status), Error: run.LastError})
			return
		}

		if run.Stages[stage] == pipeline.StageStatusGenerating {
			run.Stages[stage] = pipeline.StageStatusDone
		}
		s.persist(ctx, run)
		em.Log("stage %s finished", stage)
	}

	now := time.Now()
	run.Status = pipeline.RunStatusCompleted
	run.CompletedAt = &now
	run.LastError = ""
	s.persist(ctx, run)

	em.Done(DonePayload{RunID: run.ID, Status: string(run.Status), MergedPath: run.MergedPath})
	log.Info().Str("run_id", run.ID).Str("merged", run.MergedPath).Msg("pipeline run completed")
}

// errRunPaused 场景循环在暂停/取消后的内部信号，不会冒泡给调用方
var errRunPaused = errors.New("run paused")

// waitIfPaused 暂停时以 1 秒间隔轮询，直到恢复或上下文取消
// 返回 true 表示编排应当就地终止（上下文已取消）
func (s *Service) waitIfPaused(ctx context.Context, run *pipeline.Run, em *Emitter) bool {
	if !s.isPaused(run.ID) {
		return false
	}

	run.Status = pipeline.RunStatusPaused
	run.Paused = true
	s.persist(ctx, run)
	em.Log("run paused, waiting for resume")

	for s.isPaused(run.ID) {
		select {
		case <-ctx.Done():
			return true
		case <-time.After(pausePollInterval):
		}
	}

	run.Status = pipeline.RunStatusRunning
	run.Paused = false
	s.persist(ctx, run)
	em.Log("run resumed")
	return false
}

// runScriptStage 生成分场景脚本并初始化场景进度
// 上游模型不可用时没有任何场景可以继续，这是唯一直接导致运行失败的生成阶段
func (s *Service) runScriptStage(ctx context.Context, run *pipeline.Run, em *Emitter) error {
	title, scenes, err := s.script.Generate(ctx, run)
	if err != nil {
		return err
	}

	run.Title = title
	run.Scenes = scenes
	run.Progress = make([]pipeline.SceneProgress, len(scenes))
	for i, scene := range scenes {
		run.Progress[i] = pipeline.SceneProgress{
			SceneID:         scene.ID,
			NarrationStatus: pipeline.NarrationPending,
			VisualStatus:    pipeline.VisualPending,
		}
	}

	em.Log("script generated: %q with %d scenes", title, len(scenes))
	return nil
}

// runNarrationStage 逐场景生成旁白
// 单场景失败只标记该场景并继续；自动化下载失败的场景进入 needs_upload 等待人工补齐
func (s *Service) runNarrationStage(ctx context.Context, run *pipeline.Run, em *Emitter) error {
	if run.SkipNarration {
		run.Stages[pipeline.StageNarration] = pipeline.StageStatusSkipped
		em.Log("narration skipped by request")
		return nil
	}

	destDir, err := s.artifactDir(run.ID, "narration")
	if err != nil {
		return err
	}

	for i := range run.Scenes {
		if stopped := s.waitIfPaused(ctx, run, em); stopped {
			return errRunPaused
		}

		scene := &run.Scenes[i]
		progress := run.ProgressFor(scene.ID)
		if progress.NarrationStatus == pipeline.NarrationDone {
			if _, statErr := os.Stat(progress.NarrationPath); statErr == nil {
				em.Log("scene %d narration already done", scene.ID)
				continue
			}
		}

		progress.NarrationStatus = pipeline.NarrationGenerating
		s.persist(ctx, run)

		path, genErr := s.narration.GenerateScene(ctx, s.cfg.NarrationStrategy, run, scene, progress, destDir)
		if genErr != nil {
			s.recordNarrationFailure(scene.ID, progress, genErr, em)
		} else {
			progress.NarrationStatus = pipeline.NarrationDone
			progress.NarrationPath = path
			em.Log("scene %d narration done", scene.ID)
		}
		s.persist(ctx, run)
	}
	return nil
}

// recordNarrationFailure 按错误类别落场景状态
func (s *Service) recordNarrationFailure(sceneID int, progress *pipeline.SceneProgress, err error, em *Emitter) {
	var autoErr *browser.AutomationError
	var busyErr *locker.BusyError

	switch {
	case errors.As(err, &autoErr) && autoErr.Step == "download":
		// 生成大概率已在站点侧完成，只是文件没抓到，人工补传即可
		progress.NarrationStatus = pipeline.NarrationNeedsUpload
		em.Error("scene %d narration generated but not downloaded, manual upload required: %v", sceneID, err)
	case errors.As(err, &busyErr):
		progress.NarrationStatus = pipeline.NarrationError
		em.Error("scene %d narration skipped, automation resource busy: %v", sceneID, err)
	default:
		progress.NarrationStatus = pipeline.NarrationError
		em.Error("scene %d narration failed: %v", sceneID, err)
	}
	log.Warn().Int("scene", sceneID).Err(err).Msg("narration scene failed")
}

// runVisualStage 逐场景生成视觉片段，单场景失败只标记该场景并继续
func (s *Service) runVisualStage(ctx context.Context, run *pipeline.Run, em *Emitter) error {
	destDir, err := s.artifactDir(run.ID, "visual")
	if err != nil {
		return err
	}

	for i := range run.Scenes {
		if stopped := s.waitIfPaused(ctx, run, em); stopped {
			return errRunPaused
		}

		scene := &run.Scenes[i]
		progress := run.ProgressFor(scene.ID)
		if progress.VisualStatus == pipeline.VisualDone {
			if _, statErr := os.Stat(progress.VisualPath); statErr == nil {
				em.Log("scene %d visual already done", scene.ID)
				continue
			}
		}

		progress.VisualStatus = pipeline.VisualGenerating
		s.persist(ctx, run)

		path, genErr := s.visual.GenerateScene(ctx, s.cfg.VisualPath, run, scene, progress, destDir)
		if genErr != nil {
			progress.VisualStatus = pipeline.VisualError
			em.Error("scene %d visual failed: %v", scene.ID, genErr)
			log.Warn().Int("scene", scene.ID).Err(genErr).Msg("visual scene failed")
		} else {
			progress.VisualStatus = pipeline.VisualDone
			progress.VisualPath = path
			em.Log("scene %d visual done", scene.ID)
		}
		s.persist(ctx, run)
	}
	return nil
}

// runValidationStage 产物校验：只出报告，不及格也不拦截后续合成
func (s *Service) runValidationStage(ctx context.Context, run *pipeline.Run, em *Emitter) error {
	run.Stages[pipeline.StageValidation] = pipeline.StageStatusValidating
	s.persist(ctx, run)

	result := s.validation.Validate(ctx, run)
	run.Validation = result

	if result.Passed {
		em.Log("validation passed with score %d", result.Score)
	} else {
		em.Error("validation score %d below threshold, continuing anyway", result.Score)
		for _, rec := range result.Recommendations {
			em.Log("recommendation: %s", rec)
		}
	}
	run.Stages[pipeline.StageValidation] = pipeline.StageStatusDone
	return nil
}

// runAssemblyStage 合并成片，彻底失败时整个运行失败
func (s *Service) runAssemblyStage(ctx context.Context, run *pipeline.Run, em *Emitter) error {
	destDir, err := s.artifactDir(run.ID, "merged")
	if err != nil {
		return err
	}

	report, err := s.assembly.Assemble(ctx, run, destDir)
	if err != nil {
		return fmt.Errorf("assemble final video: %w", err)
	}

	run.MergedPath = report.OutputPath
	if report.UsedFallback {
		em.Error("merge used plain concat fallback, watermark and scaling were skipped")
	}
	em.Log("final video assembled: %s (%.1fs, %d bytes)",
		report.OutputPath, report.DurationSeconds, report.FileSizeBytes)
	return nil
}

// artifactDir 返回运行某类产物的目录，不存在时创建
func (s *Service) artifactDir(runID, kind string) (string, error) {
	dir := filepath.Join(s.cfg.WorkDir, runID, kind)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("create artifact dir: %w", err)
	}
	return dir, nil
}
