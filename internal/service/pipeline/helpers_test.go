package pipeline

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"testing"

	"storyforge/internal/model/pipeline"
	"storyforge/internal/pkg/ffmpeg"
)

// newTestRun 构造一个带默认画幅的测试运行
func newTestRun(theme, genre string, durationSecs int) *pipeline.Run {
	return pipeline.NewRun("test-run-id", theme, genre, "portrait", "test project", durationSecs)
}

// fakeProber 用预置结果替代真实的 ffprobe 调用
type fakeProber struct {
	infos map[string]*ffmpeg.MediaInfo
}

func (p *fakeProber) Probe(_ context.Context, path string) (*ffmpeg.MediaInfo, error) {
	if info, ok := p.infos[path]; ok {
		return info, nil
	}
	return nil, fmt.Errorf("probe %s: no such stream", path)
}

// touchFile 在临时目录创建一个非空文件并返回路径
func touchFile(t *testing.T, dir, name string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, []byte("artifact"), 0o644); err != nil {
		t.Fatalf("write %s: %v", path, err)
	}
	return path
}

// populatedRun 构造一个三场景、产物齐全的运行用于校验测试
func populatedRun(t *testing.T, dir string) (*pipeline.Run, *fakeProber) {
	t.Helper()

	run := newTestRun("deep sea creatures", "documentary", 90)
	run.Scenes = []pipeline.Scene{
		{ID: 1, Title: "The Descent", Content: "Sunlight fades within the first two hundred meters of the open ocean.", DurationSeconds: 30},
		{ID: 2, Title: "Midnight Zone", Content: "Below one thousand meters, creatures make their own light to hunt and hide.", DurationSeconds: 30},
		{ID: 3, Title: "The Floor", Content: "On the abyssal plain, life gathers around vents hotter than boiling water.", DurationSeconds: 30},
	}

	prober := &fakeProber{infos: make(map[string]*ffmpeg.MediaInfo)}
	for _, scene := range run.Scenes {
		narration := touchFile(t, dir, fmt.Sprintf("n%d.mp3", scene.ID))
		visual := touchFile(t, dir, fmt.Sprintf("v%d.mp4", scene.ID))
		run.Progress = append(run.Progress, pipeline.SceneProgress{
			SceneID:         scene.ID,
			NarrationStatus: pipeline.NarrationDone,
			VisualStatus:    pipeline.VisualDone,
			NarrationPath:   narration,
			VisualPath:      visual,
		})
		prober.infos[narration] = &ffmpeg.MediaInfo{Duration: 28.5}
		prober.infos[visual] = &ffmpeg.MediaInfo{Width: 1080, Height: 1920, Duration: 30}
	}

	run.Stages[pipeline.StageScript] = pipeline.StageStatusDone
	run.Stages[pipeline.StageNarration] = pipeline.StageStatusDone
	run.Stages[pipeline.StageVisual] = pipeline.StageStatusDone
	return run, prober
}
