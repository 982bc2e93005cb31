package pipeline

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"
	"unicode"

	"github.com/rs/zerolog/log"

	"storyforge/internal/config"
	"storyforge/internal/model/pipeline"
	"storyforge/internal/pkg/browser"
	"storyforge/internal/pkg/locker"
	"storyforge/internal/pkg/tts"
)

// 旁白生成策略
const (
	NarrationStrategyDirect     = "direct"     // 直连 TTS 接口
	NarrationStrategyAutomation = "automation" // 浏览器自动化操作在线配音工具
)

// NarrationService 旁白生成
// direct 策略走 TTS 接口；automation 策略通过浏览器自动化驱动在线工具，
// 浏览器是独占资源，由文件锁串行化
type NarrationService struct {
	ttsClient  *tts.Client
	ttsCfg     *config.TTSConfig
	browserCfg browser.Config
	studioURL  string
	lock       *locker.FileLock
	maxWait    time.Duration
}

// NewNarrationService 创建旁白服务
func NewNarrationService(ttsClient *tts.Client, ttsCfg *config.TTSConfig, browserCfg browser.Config, studioURL string, lock *locker.FileLock, maxWait time.Duration) *NarrationService {
	return &NarrationService{
		ttsClient:  ttsClient,
		ttsCfg:     ttsCfg,
		browserCfg: browserCfg,
		studioURL:  studioURL,
		lock:       lock,
		maxWait:    maxWait,
	}
}

// voiceFor 根据文本书写系统选择音色：含汉字用本地化音色，否则用默认音色
func (s *NarrationService) voiceFor(text string) string {
	for _, r := range text {
		if unicode.Is(unicode.Han, r) {
			return s.ttsCfg.LocalizedVoiceType
		}
	}
	return s.ttsCfg.VoiceType
}

// GenerateScene 为单个场景生成旁白音频，写入 destDir 并返回产物路径
// 场景进度已是 done 且产物仍在磁盘上时直接跳过（断点续跑）
func (s *NarrationService) GenerateScene(ctx context.Context, strategy string, run *pipeline.Run, scene *pipeline.Scene, progress *pipeline.SceneProgress, destDir string) (string, error) {
	if progress.NarrationStatus == pipeline.NarrationDone && progress.NarrationPath != "" {
		if _, err := os.Stat(progress.NarrationPath); err == nil {
			log.Debug().Str("run_id", run.ID).Int("scene", scene.ID).Msg("narration already done, skipping")
			return progress.NarrationPath, nil
		}
	}

	switch strategy {
	case NarrationStrategyAutomation:
		return s.generateViaBrowser(ctx, run, scene, destDir)
	default:
		return s.generateDirect(ctx, run, scene, destDir)
	}
}

// generateDirect 直连 TTS 合成
func (s *NarrationService) generateDirect(ctx context.Context, run *pipeline.Run, scene *pipeline.Scene, destDir string) (string, error) {
	if s.ttsClient == nil {
		return "", externalErr("tts", fmt.Errorf("tts client not configured"))
	}

	result, err := s.ttsClient.Synthesize(ctx, scene.Content, s.voiceFor(scene.Content))
	if err != nil {
		return "", externalErr("tts", err)
	}

	dest := filepath.Join(destDir, fmt.Sprintf("scene_%02d_narration.mp3", scene.ID))
	if err := os.WriteFile(dest, result.AudioData, 0o644); err != nil {
		return "", fmt.Errorf("write narration audio: %w", err)
	}

	log.Info().Str("run_id", run.ID).Int("scene", scene.ID).
		Float64("audio_duration", result.Duration).Str("voice", result.VoiceType).
		Msg("narration synthesized")
	return dest, nil
}

// generateViaBrowser 通过浏览器自动化驱动在线配音工具
// 先抢浏览器资源锁；下载环节失败时返回 AutomationError，
// 上层会把场景标记为 needs_upload 而不是中断运行
func (s *NarrationService) generateViaBrowser(ctx context.Context, run *pipeline.Run, scene *pipeline.Scene, destDir string) (string, error) {
	if err := s.lock.Acquire(ctx, s.maxWait); err != nil {
		return "", err
	}
	defer s.lock.Release()

	session, err := browser.Connect(ctx, s.browserCfg)
	if err != nil {
		return "", err
	}
	defer session.Close()

	dest := filepath.Join(destDir, fmt.Sprintf("scene_%02d_narration.mp3", scene.ID))
	return session.RunGenerationTask(ctx, &browser.TaskRequest{
		PageURL:  s.studioURL,
		Input:    scene.Content,
		DestPath: dest,
	})
}
