package pipeline

import (
	"context"
	"fmt"
	"math/rand"
	"os"
	"path/filepath"
	"time"

	"github.com/rs/zerolog/log"

	"storyforge/internal/model/pipeline"
	"storyforge/internal/pkg/browser"
	"storyforge/internal/pkg/ffmpeg"
	"storyforge/internal/pkg/locker"
	"storyforge/internal/pkg/t2i"
)

// 视觉生成路径
const (
	VisualPathImage      = "image"      // 文生图 + 运动效果合成
	VisualPathAutomation = "automation" // 浏览器自动化操作在线视频工具
)

// VisualService 视觉素材生成
// image 路径先调文生图再用运动滤镜转成视频片段；browser 路径
// 与旁白的浏览器策略共用同一把资源锁
type VisualService struct {
	provider   t2i.Provider
	ffmpeg     *ffmpeg.Client
	browserCfg browser.Config
	toolURL    string
	lock       *locker.FileLock
	maxWait    time.Duration
	fps        int
	rng        *rand.Rand
}

// NewVisualService 创建视觉服务
func NewVisualService(provider t2i.Provider, ff *ffmpeg.Client, browserCfg browser.Config, toolURL string, lock *locker.FileLock, maxWait time.Duration, fps int) *VisualService {
	return &VisualService{
		provider:   provider,
		ffmpeg:     ff,
		browserCfg: browserCfg,
		toolURL:    toolURL,
		lock:       lock,
		maxWait:    maxWait,
		fps:        fps,
		rng:        rand.New(rand.NewSource(time.Now().UnixNano())),
	}
}

// GenerateScene 为单个场景生成视觉片段，返回产物路径
// 场景进度已是 done 且产物仍在磁盘上时直接跳过（断点续跑）
func (s *VisualService) GenerateScene(ctx context.Context, path string, run *pipeline.Run, scene *pipeline.Scene, progress *pipeline.SceneProgress, destDir string) (string, error) {
	if progress.VisualStatus == pipeline.VisualDone && progress.VisualPath != "" {
		if _, err := os.Stat(progress.VisualPath); err == nil {
			log.Debug().Str("run_id", run.ID).Int("scene", scene.ID).Msg("visual already done, skipping")
			return progress.VisualPath, nil
		}
	}

	switch path {
	case VisualPathAutomation:
		return s.generateViaBrowser(ctx, run, scene, destDir)
	default:
		return s.generateFromImage(ctx, run, scene, destDir)
	}
}

// generateFromImage 文生图 + 运动效果
func (s *VisualService) generateFromImage(ctx context.Context, run *pipeline.Run, scene *pipeline.Scene, destDir string) (string, error) {
	width, height := run.TargetResolution()
	prompt := visualPrompt(run, scene)

	// 以运行 ID + 场景号派生种子，重跑同一场景得到同一张图
	seed := stableSeed(run.ID, scene.ID)
	imageData, err := s.provider.Generate(ctx, prompt, width, height, seed)
	if err != nil {
		return "", externalErr("image", err)
	}

	imagePath := filepath.Join(destDir, fmt.Sprintf("scene_%02d_frame.jpg", scene.ID))
	if err := os.WriteFile(imagePath, imageData, 0o644); err != nil {
		return "", fmt.Errorf("write scene image: %w", err)
	}

	clipPath := filepath.Join(destDir, fmt.Sprintf("scene_%02d_visual.mp4", scene.ID))
	pattern := ffmpeg.RandomMotion(s.rng)
	if err := s.ffmpeg.CreateMotionClip(ctx, imagePath, clipPath,
		float64(scene.DurationSeconds), width, height, s.fps, pattern); err != nil {
		return "", err
	}

	log.Info().Str("run_id", run.ID).Int("scene", scene.ID).
		Str("pattern", string(pattern)).Msg("visual clip generated")
	return clipPath, nil
}

// generateViaBrowser 通过浏览器自动化驱动在线视频工具
func (s *VisualService) generateViaBrowser(ctx context.Context, run *pipeline.Run, scene *pipeline.Scene, destDir string) (string, error) {
	if err := s.lock.Acquire(ctx, s.maxWait); err != nil {
		return "", err
	}
	defer s.lock.Release()

	session, err := browser.Connect(ctx, s.browserCfg)
	if err != nil {
		return "", err
	}
	defer session.Close()

	dest := filepath.Join(destDir, fmt.Sprintf("scene_%02d_visual.mp4", scene.ID))
	return session.RunGenerationTask(ctx, &browser.TaskRequest{
		PageURL:  s.toolURL,
		Input:    visualPrompt(run, scene),
		DestPath: dest,
	})
}

// visualPrompt 拼装场景画面的文生图提示词
func visualPrompt(run *pipeline.Run, scene *pipeline.Scene) string {
	return fmt.Sprintf("%s, %s style, cinematic still frame, high detail: %s",
		run.Theme, toneFor(run.Genre), scene.Title)
}

// stableSeed 由运行 ID 和场景号派生确定性种子
func stableSeed(runID string, sceneID int) int {
	h := 0
	for _, r := range runID {
		h = h*31 + int(r)
	}
	seed := (h*131 + sceneID) % 1_000_000
	if seed < 0 {
		seed = -seed
	}
	return seed
}
