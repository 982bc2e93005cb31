package pipeline

import (
	"context"
	"path/filepath"
	"testing"

	. "github.com/smartystreets/goconvey/convey"

	"storyforge/internal/config"
	"storyforge/internal/model/pipeline"
	"storyforge/internal/pkg/browser"
	"storyforge/internal/pkg/locker"
	runrepo "storyforge/internal/repository/run"
)

// newTestService 构造只带旁白阶段依赖的最小服务
// TTS 客户端留空：断点续跑测试里已完成的场景不应该再触发任何合成调用
func newTestService(t *testing.T) *Service {
	t.Helper()
	workDir := t.TempDir()
	lock := locker.New(filepath.Join(workDir, "browser.lock"), 0)

	return NewService(
		&config.PipelineConfig{WorkDir: workDir, NarrationStrategy: NarrationStrategyDirect},
		runrepo.NewMemoryRepo(),
		nil,
		NewScriptService(nil),
		NewNarrationService(nil, &config.TTSConfig{}, browser.Config{}, "", lock, 0),
		nil,
		NewValidationService(&fakeProber{}),
		nil,
	)
}

func TestNarrationStageCheckpoint(t *testing.T) {
	Convey("旁白阶段的断点续跑", t, func() {
		svc := newTestService(t)
		dir := t.TempDir()
		run, _ := populatedRun(t, dir)
		So(svc.repo.Create(context.Background(), run), ShouldBeNil)

		em := NewEmitter()

		Convey("全部场景已完成时不再触发合成", func() {
			err := svc.runNarrationStage(context.Background(), run, em)
			So(err, ShouldBeNil)
			for _, progress := range run.Progress {
				So(progress.NarrationStatus, ShouldEqual, pipeline.NarrationDone)
			}
		})

		Convey("跳过旁白时阶段标记为skipped", func() {
			run.SkipNarration = true
			err := svc.runNarrationStage(context.Background(), run, em)
			So(err, ShouldBeNil)
			So(run.Stages[pipeline.StageNarration], ShouldEqual, pipeline.StageStatusSkipped)
		})
	})
}

func TestPauseBetweenScenes(t *testing.T) {
	Convey("暂停发生在场景边界", t, func() {
		svc := newTestService(t)
		dir := t.TempDir()
		run, _ := populatedRun(t, dir)
		So(svc.repo.Create(context.Background(), run), ShouldBeNil)

		// 场景2、3清空产物，模拟刚完成场景1时请求暂停
		for i := 1; i < len(run.Progress); i++ {
			run.Progress[i].NarrationStatus = pipeline.NarrationPending
			run.Progress[i].NarrationPath = ""
		}

		svc.paused[run.ID] = true
		ctx, cancel := context.WithCancel(context.Background())
		cancel()

		em := NewEmitter()
		err := svc.runNarrationStage(ctx, run, em)

		Convey("阶段以暂停信号退出", func() {
			So(err, ShouldEqual, errRunPaused)
		})

		Convey("已完成的场景1保持done", func() {
			So(run.Progress[0].NarrationStatus, ShouldEqual, pipeline.NarrationDone)
			So(run.Progress[0].NarrationPath, ShouldNotBeEmpty)
		})

		Convey("未开始的场景保持pending", func() {
			So(run.Progress[1].NarrationStatus, ShouldEqual, pipeline.NarrationPending)
			So(run.Progress[2].NarrationStatus, ShouldEqual, pipeline.NarrationPending)
		})
	})
}

func TestRegenerateSceneResetsDownstream(t *testing.T) {
	Convey("重新生成场景后下游阶段回退", t, func() {
		svc := newTestService(t)
		dir := t.TempDir()
		run, _ := populatedRun(t, dir)
		run.Status = pipeline.RunStatusPaused
		run.Stages[pipeline.StageValidation] = pipeline.StageStatusDone
		run.Stages[pipeline.StageAssembly] = pipeline.StageStatusDone
		So(svc.repo.Create(context.Background(), run), ShouldBeNil)

		oldContent := run.Scenes[1].Content
		oldTitle := run.Scenes[1].Title
		oldDuration := run.Scenes[1].DurationSeconds

		updated, err := svc.RegenerateScene(context.Background(), run.ID, 2)
		So(err, ShouldBeNil)

		Convey("内容换了，标题和时长保留", func() {
			scene := updated.SceneByID(2)
			So(scene.Content, ShouldNotEqual, oldContent)
			So(scene.Title, ShouldEqual, oldTitle)
			So(scene.DurationSeconds, ShouldEqual, oldDuration)
		})

		Convey("该场景的产物状态被重置", func() {
			progress := updated.ProgressFor(2)
			So(progress.NarrationStatus, ShouldEqual, pipeline.NarrationPending)
			So(progress.VisualStatus, ShouldEqual, pipeline.VisualPending)
			So(progress.NarrationPath, ShouldBeEmpty)
		})

		Convey("其他场景不受影响", func() {
			So(updated.ProgressFor(1).NarrationStatus, ShouldEqual, pipeline.NarrationDone)
		})

		Convey("下游阶段回到pending", func() {
			So(updated.Stages[pipeline.StageNarration], ShouldEqual, pipeline.StageStatusPending)
			So(updated.Stages[pipeline.StageVisual], ShouldEqual, pipeline.StageStatusPending)
			So(updated.Stages[pipeline.StageValidation], ShouldEqual, pipeline.StageStatusPending)
			So(updated.Stages[pipeline.StageAssembly], ShouldEqual, pipeline.StageStatusPending)
		})

		Convey("运行中的任务拒绝重新生成", func() {
			updated.Status = pipeline.RunStatusRunning
			So(svc.repo.Update(context.Background(), updated), ShouldBeNil)
			_, err := svc.RegenerateScene(context.Background(), run.ID, 1)
			So(err, ShouldNotBeNil)
		})
	})
}
