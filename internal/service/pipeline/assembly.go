package pipeline

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"

	"github.com/rs/zerolog/log"

	"storyforge/internal/model/pipeline"
	"storyforge/internal/pkg/ffmpeg"
	"storyforge/internal/pkg/storage"
)

// AssemblyService 成片合成
// 按场景顺序收集视觉/旁白产物交给编码器合并，成片可选上传到对象存储
type AssemblyService struct {
	ffmpeg        *ffmpeg.Client
	store         storage.Storage
	watermarkText string
	fps           int
}

// NewAssemblyService 创建合成服务
func NewAssemblyService(ff *ffmpeg.Client, store storage.Storage, watermarkText string, fps int) *AssemblyService {
	return &AssemblyService{ffmpeg: ff, store: store, watermarkText: watermarkText, fps: fps}
}

// AssemblyReport 合成结果
type AssemblyReport struct {
	OutputPath      string  `json:"output_path"`
	StorageKey      string  `json:"storage_key,omitempty"`
	DurationSeconds float64 `json:"duration_seconds"`
	FileSizeBytes   int64   `json:"file_size_bytes"`
	UsedFallback    bool    `json:"used_fallback"`
	SceneCount      int     `json:"scene_count"`
}

// Assemble 把运行的全部场景产物合并为成片
// 视觉产物缺失的场景被跳过；旁白可以残缺，有多少并入多少，
// 音轨长度由编码端的 -shortest 兜底
func (s *AssemblyService) Assemble(ctx context.Context, run *pipeline.Run, destDir string) (*AssemblyReport, error) {
	videos, audios := collectMergeInputs(run)
	if len(videos) == 0 {
		return nil, fmt.Errorf("no scene visuals available to assemble")
	}

	width, height := run.TargetResolution()
	outputPath := filepath.Join(destDir, fmt.Sprintf("%s_final.mp4", slugify(run.ProjectName)))

	mergeReport, err := s.ffmpeg.Merge(ctx, &ffmpeg.MergeRequest{
		VideoPaths:    videos,
		AudioPaths:    audios,
		Width:         width,
		Height:        height,
		FPS:           s.fps,
		WatermarkText: s.watermarkText,
		OutputPath:    outputPath,
	})
	if err != nil {
		return nil, err
	}

	report := &AssemblyReport{
		OutputPath:      mergeReport.OutputPath,
		DurationSeconds: mergeReport.DurationSeconds,
		FileSizeBytes:   mergeReport.FileSizeBytes,
		UsedFallback:    mergeReport.UsedFallback,
		SceneCount:      len(videos),
	}

	if s.store != nil {
		key := fmt.Sprintf("merged/%s/%s", run.ID, filepath.Base(outputPath))
		if uploadErr := s.upload(ctx, outputPath, key); uploadErr != nil {
			// 成片已经在本地落盘，上传失败不应该让合成阶段整体失败
			log.Warn().Err(uploadErr).Str("key", key).Msg("merged video upload failed")
		} else {
			report.StorageKey = key
		}
	}

	return report, nil
}

// collectMergeInputs 按场景顺序收集两类产物清单
// 两份清单长度可以不一致：缺旁白的场景照样入片，音轨有多少并多少
func collectMergeInputs(run *pipeline.Run) (videos, audios []string) {
	for _, scene := range run.Scenes {
		progress := run.ProgressFor(scene.ID)
		if progress == nil {
			continue
		}
		if progress.VisualPath == "" || !fileExists(progress.VisualPath) {
			log.Warn().Str("run_id", run.ID).Int("scene", scene.ID).Msg("scene visual missing, excluded from merge")
			continue
		}
		videos = append(videos, progress.VisualPath)
		if progress.NarrationPath != "" && fileExists(progress.NarrationPath) {
			audios = append(audios, progress.NarrationPath)
		}
	}
	if run.SkipNarration {
		audios = nil
	}
	return videos, audios
}

// MergeFiles 按显式文件清单合并（不依赖运行状态的独立合并入口）
func (s *AssemblyService) MergeFiles(ctx context.Context, videoPaths, audioPaths []string, orientation, watermarkText, projectName, destDir string) (*AssemblyReport, error) {
	width, height := 1080, 1920
	if orientation == "landscape" {
		width, height = 1920, 1080
	}

	outputPath := filepath.Join(destDir, fmt.Sprintf("%s_final.mp4", slugify(projectName)))
	mergeReport, err := s.ffmpeg.Merge(ctx, &ffmpeg.MergeRequest{
		VideoPaths:    videoPaths,
		AudioPaths:    audioPaths,
		Width:         width,
		Height:        height,
		FPS:           s.fps,
		WatermarkText: watermarkText,
		OutputPath:    outputPath,
	})
	if err != nil {
		return nil, err
	}

	return &AssemblyReport{
		OutputPath:      mergeReport.OutputPath,
		DurationSeconds: mergeReport.DurationSeconds,
		FileSizeBytes:   mergeReport.FileSizeBytes,
		UsedFallback:    mergeReport.UsedFallback,
		SceneCount:      len(videoPaths),
	}, nil
}

func (s *AssemblyService) upload(ctx context.Context, path, key string) error {
	f, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("open merged video: %w", err)
	}
	defer f.Close()

	if _, err := s.store.Upload(ctx, key, f, "video/mp4"); err != nil {
		return fmt.Errorf("upload merged video: %w", err)
	}
	return nil
}

func fileExists(path string) bool {
	info, err := os.Stat(path)
	return err == nil && !info.IsDir()
}

var slugPattern = regexp.MustCompile(`[^a-z0-9]+`)

// slugify 把工程名转成适合做文件名的 slug
func slugify(name string) string {
	slug := slugPattern.ReplaceAllString(strings.ToLower(name), "_")
	slug = strings.Trim(slug, "_")
	if slug == "" {
		slug = "untitled"
	}
	return slug
}
