package ffmpeg

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math/rand"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog/log"
)

// ErrNotInstalled 编码工具不在 PATH 中
var ErrNotInstalled = errors.New("ffmpeg is not installed")

// EncodingError 编码工具非零退出
type EncodingError struct {
	ExitCode int
	Stderr   string
}

func (e *EncodingError) Error() string {
	return fmt.Sprintf("ffmpeg exited with code %d: %s", e.ExitCode, lastLine(e.Stderr))
}

func lastLine(s string) string {
	lines := strings.Split(strings.TrimSpace(s), "\n")
	if len(lines) == 0 {
		return ""
	}
	return lines[len(lines)-1]
}

// Client FFmpeg 客户端
// 所有子进程调用都是同步等待的，返回结构化结果（退出码 + 捕获的 stderr）
type Client struct {
	ffmpegPath  string // FFmpeg 可执行文件路径（默认: ffmpeg）
	ffprobePath string // FFprobe 可执行文件路径（默认: ffprobe）
}

// NewClient 创建 FFmpeg 客户端
func NewClient() *Client {
	ffmpegPath := os.Getenv("FFMPEG_PATH")
	if ffmpegPath == "" {
		ffmpegPath = "ffmpeg"
	}

	ffprobePath := os.Getenv("FFPROBE_PATH")
	if ffprobePath == "" {
		ffprobePath = "ffprobe"
	}

	return &Client{
		ffmpegPath:  ffmpegPath,
		ffprobePath: ffprobePath,
	}
}

// Installed 检查编码工具是否可用
func (c *Client) Installed() bool {
	_, err := exec.LookPath(c.ffmpegPath)
	return err == nil
}

// run 执行 ffmpeg 并捕获 stderr，失败时返回 *EncodingError
func (c *Client) run(ctx context.Context, args ...string) error {
	cmd := exec.CommandContext(ctx, c.ffmpegPath, args...)
	var stderr bytes.Buffer
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			return &EncodingError{ExitCode: exitErr.ExitCode(), Stderr: stderr.String()}
		}
		if errors.Is(err, exec.ErrNotFound) {
			return ErrNotInstalled
		}
		return fmt.Errorf("ffmpeg: %w", err)
	}
	return nil
}

// probeFormat ffprobe 的 format/stream 输出
type probeFormat struct {
	Streams []struct {
		Width  int `json:"width"`
		Height int `json:"height"`
	} `json:"streams"`
	Format struct {
		Duration string `json:"duration"`
		Size     string `json:"size"`
	} `json:"format"`
}

// MediaInfo 媒体文件探测结果
type MediaInfo struct {
	Width    int     // 宽度（纯音频为 0）
	Height   int     // 高度（纯音频为 0）
	Duration float64 // 时长（秒）
	Size     int64   // 文件大小（字节）
}

// Probe 探测媒体文件的分辨率、时长和大小
func (c *Client) Probe(ctx context.Context, path string) (*MediaInfo, error) {
	cmd := exec.CommandContext(ctx, c.ffprobePath,
		"-v", "error",
		"-select_streams", "v:0",
		"-show_entries", "stream=width,height",
		"-show_entries", "format=duration,size",
		"-of", "json",
		path,
	)

	output, err := cmd.Output()
	if err != nil {
		return nil, fmt.Errorf("ffprobe failed: %w", err)
	}

	var pf probeFormat
	if err := json.Unmarshal(output, &pf); err != nil {
		return nil, fmt.Errorf("parse ffprobe output: %w", err)
	}

	info := &MediaInfo{}
	if len(pf.Streams) > 0 {
		info.Width = pf.Streams[0].Width
		info.Height = pf.Streams[0].Height
	}
	if pf.Format.Duration != "" {
		info.Duration, _ = strconv.ParseFloat(pf.Format.Duration, 64)
	}
	if pf.Format.Size != "" {
		info.Size, _ = strconv.ParseInt(pf.Format.Size, 10, 64)
	}
	return info, nil
}

// Duration 探测媒体时长（秒）；探测失败返回 0，由调用方决定是否当作问题
func (c *Client) Duration(ctx context.Context, path string) float64 {
	info, err := c.Probe(ctx, path)
	if err != nil {
		log.Warn().Err(err).Str("path", path).Msg("duration probe failed")
		return 0
	}
	return info.Duration
}

// MotionPattern 静态图转视频时的运动模式
type MotionPattern string

const (
	MotionZoomIn   MotionPattern = "zoom_in"
	MotionZoomOut  MotionPattern = "zoom_out"
	MotionPanLeft  MotionPattern = "pan_left_to_right"
	MotionPanRight MotionPattern = "pan_right_to_left"
)

// MotionPatterns 全部可用的运动模式
var MotionPatterns = []MotionPattern{MotionZoomIn, MotionZoomOut, MotionPanLeft, MotionPanRight}

// RandomMotion 随机选择一种运动模式
func RandomMotion(rng *rand.Rand) MotionPattern {
	return MotionPatterns[rng.Intn(len(MotionPatterns))]
}

// motionFilter 构建 zoompan 表达式
// 先放大到两倍目标分辨率再做 zoompan，避免整数取样抖动
func motionFilter(pattern MotionPattern, width, height, frames, fps int) string {
	var zoompan string
	switch pattern {
	case MotionZoomOut:
		zoompan = fmt.Sprintf(
			"zoompan=z='if(lte(zoom,1.0),1.3,max(zoom-0.0012,1.0))':x='iw/2-(iw/zoom/2)':y='ih/2-(ih/zoom/2)':d=%d:s=%dx%d:fps=%d",
			frames, width, height, fps)
	case MotionPanLeft:
		zoompan = fmt.Sprintf(
			"zoompan=z=1.2:x='(iw-iw/zoom)*on/%d':y='ih/2-(ih/zoom/2)':d=%d:s=%dx%d:fps=%d",
			frames, frames, width, height, fps)
	case MotionPanRight:
		zoompan = fmt.Sprintf(
			"zoompan=z=1.2:x='(iw-iw/zoom)*(1-on/%d)':y='ih/2-(ih/zoom/2)':d=%d:s=%dx%d:fps=%d",
			frames, frames, width, height, fps)
	default: // MotionZoomIn
		zoompan = fmt.Sprintf(
			"zoompan=z='min(zoom+0.0012,1.3)':x='iw/2-(iw/zoom/2)':y='ih/2-(ih/zoom/2)':d=%d:s=%dx%d:fps=%d",
			frames, width, height, fps)
	}

	return fmt.Sprintf("scale=%d:%d:force_original_aspect_ratio=increase,crop=%d:%d,%s",
		width*2, height*2, width*2, height*2, zoompan)
}

// CreateMotionClip 从静态图生成带运动效果的视频片段
func (c *Client) CreateMotionClip(ctx context.Context, imagePath, outputPath string, duration float64, width, height, fps int, pattern MotionPattern) error {
	frames := int(duration * float64(fps))
	if frames <= 0 {
		return fmt.Errorf("invalid clip duration: %.2f", duration)
	}

	args := []string{
		"-y",
		"-loop", "1",
		"-i", imagePath,
		"-t", fmt.Sprintf("%.2f", duration),
		"-vf", motionFilter(pattern, width, height, frames, fps),
		"-c:v", "libx264",
		"-pix_fmt", "yuv420p",
		"-r", strconv.Itoa(fps),
		outputPath,
	}

	if err := c.run(ctx, args...); err != nil {
		return fmt.Errorf("create motion clip: %w", err)
	}

	log.Info().
		Str("image", imagePath).
		Str("output", outputPath).
		Str("pattern", string(pattern)).
		Float64("duration", duration).
		Msg("运动视频片段生成成功")

	return nil
}

// EscapeConcatPath 转义 concat manifest 中的路径（单引号 -> '\''）
func EscapeConcatPath(path string) string {
	return strings.ReplaceAll(path, "'", `'\''`)
}

// WriteConcatManifest 写入 concat demuxer 清单：每行一个 file '<绝对路径>'
func WriteConcatManifest(manifestPath string, files []string) error {
	var b strings.Builder
	for _, f := range files {
		abs, err := filepath.Abs(f)
		if err != nil {
			return fmt.Errorf("resolve %s: %w", f, err)
		}
		fmt.Fprintf(&b, "file '%s'\n", EscapeConcatPath(abs))
	}
	if err := os.WriteFile(manifestPath, []byte(b.String()), 0o644); err != nil {
		return fmt.Errorf("write concat manifest: %w", err)
	}
	return nil
}

// MergeRequest 合并请求
type MergeRequest struct {
	VideoPaths    []string // 按场景顺序排列的视频片段
	AudioPaths    []string // 按场景顺序排列的音频片段（可为空）
	Width         int      // 目标宽度
	Height        int      // 目标高度
	FPS           int
	WatermarkText string // 为空时不加水印
	OutputPath    string
}

// MergeReport 合并结果
type MergeReport struct {
	OutputPath      string
	DurationSeconds float64 // 0 表示探测失败，不视为合并失败
	FileSizeBytes   int64
	UsedFallback    bool // 主命令失败后走了无滤镜直拷路径
}

// Merge 合并场景片段为成片
// 主命令带缩放/填充滤镜和可选水印；失败后降级为一次无滤镜的流拷贝重试，
// 牺牲水印和统一分辨率换取至少产出一个可用文件。清单文件无论成败都会删除。
func (c *Client) Merge(ctx context.Context, req *MergeRequest) (*MergeReport, error) {
	if len(req.VideoPaths) == 0 {
		return nil, fmt.Errorf("no video inputs to merge")
	}
	if !c.Installed() {
		return nil, ErrNotInstalled
	}

	dir := filepath.Dir(req.OutputPath)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create output dir: %w", err)
	}

	stamp := time.Now().UnixNano()
	videoManifest := filepath.Join(dir, fmt.Sprintf("concat_video_%d.txt", stamp))
	audioManifest := filepath.Join(dir, fmt.Sprintf("concat_audio_%d.txt", stamp))

	if err := WriteConcatManifest(videoManifest, req.VideoPaths); err != nil {
		return nil, err
	}
	defer os.Remove(videoManifest)

	withAudio := len(req.AudioPaths) > 0
	if withAudio {
		if err := WriteConcatManifest(audioManifest, req.AudioPaths); err != nil {
			return nil, err
		}
		defer os.Remove(audioManifest)
	}

	report := &MergeReport{OutputPath: req.OutputPath}

	err := c.run(ctx, c.mergeArgs(req, videoManifest, audioManifest, withAudio)...)
	if err != nil {
		var encErr *EncodingError
		if !errors.As(err, &encErr) {
			return nil, err
		}

		// 滤镜图导致的失败不应该让整次合并颗粒无收，降级重试一次
		log.Warn().
			Int("exit_code", encErr.ExitCode).
			Str("stderr", lastLine(encErr.Stderr)).
			Msg("primary merge failed, retrying with plain concat")

		fallbackArgs := []string{
			"-y",
			"-f", "concat", "-safe", "0", "-i", videoManifest,
			"-c", "copy",
			req.OutputPath,
		}
		if err := c.run(ctx, fallbackArgs...); err != nil {
			return nil, fmt.Errorf("merge fallback: %w", err)
		}
		report.UsedFallback = true
	}

	if info, err := c.Probe(ctx, req.OutputPath); err == nil {
		report.DurationSeconds = info.Duration
		report.FileSizeBytes = info.Size
	} else {
		log.Warn().Err(err).Msg("merged file probe failed")
	}

	log.Info().
		Int("videos", len(req.VideoPaths)).
		Int("audios", len(req.AudioPaths)).
		Bool("fallback", report.UsedFallback).
		Float64("duration", report.DurationSeconds).
		Str("output", req.OutputPath).
		Msg("视频合并完成")

	return report, nil
}

// mergeArgs 构建主合并命令
func (c *Client) mergeArgs(req *MergeRequest, videoManifest, audioManifest string, withAudio bool) []string {
	args := []string{
		"-y",
		"-f", "concat", "-safe", "0", "-i", videoManifest,
	}
	if withAudio {
		args = append(args, "-f", "concat", "-safe", "0", "-i", audioManifest)
	}

	// 统一缩放到目标分辨率并保持宽高比，黑边居中填充
	filter := fmt.Sprintf("[0:v]scale=%d:%d:force_original_aspect_ratio=decrease,pad=%d:%d:(ow-iw)/2:(oh-ih)/2",
		req.Width, req.Height, req.Width, req.Height)
	if req.WatermarkText != "" {
		filter += fmt.Sprintf(",drawtext=text='%s':fontcolor=white@0.5:fontsize=36:x=w-tw-20:y=h-th-20",
			strings.ReplaceAll(req.WatermarkText, "'", `\'`))
	}
	filter += "[v]"

	args = append(args,
		"-filter_complex", filter,
		"-map", "[v]",
	)
	if withAudio {
		args = append(args, "-map", "1:a", "-c:a", "aac", "-shortest")
	}

	fps := req.FPS
	if fps <= 0 {
		fps = 30
	}
	args = append(args,
		"-c:v", "libx264",
		"-pix_fmt", "yuv420p",
		"-r", strconv.Itoa(fps),
		req.OutputPath,
	)
	return args
}
