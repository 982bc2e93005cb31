package pipeline

import (
	"context"
	"testing"

	. "github.com/smartystreets/goconvey/convey"

	"storyforge/internal/model/pipeline"
	"storyforge/internal/pkg/ffmpeg"
)

func TestValidateHealthyRun(t *testing.T) {
	Convey("产物齐全的运行应当通过校验", t, func() {
		dir := t.TempDir()
		run, prober := populatedRun(t, dir)
		svc := NewValidationService(prober)

		result := svc.Validate(context.Background(), run)

		So(result.Passed, ShouldBeTrue)
		So(result.Score, ShouldBeGreaterThanOrEqualTo, 70)
		So(len(result.Checks), ShouldEqual, 6)
		So(result.Recommendations, ShouldBeEmpty)

		Convey("校验是纯函数：同样输入两次结果一致", func() {
			again := svc.Validate(context.Background(), run)
			So(again, ShouldResemble, result)
		})
	})
}

func TestValidateScriptCheck(t *testing.T) {
	Convey("脚本质量检查", t, func() {
		svc := NewValidationService(&fakeProber{})

		Convey("没有场景直接0分", func() {
			run := newTestRun("theme", "", 60)
			check := svc.checkScript(run)
			So(check.Score, ShouldEqual, 0)
			So(check.Severity, ShouldEqual, pipeline.SeverityError)
		})

		Convey("过短的场景内容按条扣分", func() {
			run := newTestRun("theme", "", 60)
			run.Scenes = []pipeline.Scene{
				{ID: 1, Title: "A real title", Content: "too short"},
				{ID: 2, Title: "Another title", Content: "this one is long enough to clear both of the length thresholds comfortably"},
				{ID: 3, Title: "Third title", Content: "between twenty and fifty chars here"},
			}
			check := svc.checkScript(run)
			// 一条 <20 (-15) 加一条 <50 (-5)
			So(check.Score, ShouldEqual, 80)
		})

		Convey("重复内容一次性扣20分", func() {
			run := newTestRun("theme", "", 60)
			same := "the exact same narration repeated across scenes word for word"
			run.Scenes = []pipeline.Scene{
				{ID: 1, Title: "One", Content: same},
				{ID: 2, Title: "Two", Content: same},
			}
			check := svc.checkScript(run)
			So(check.Score, ShouldEqual, 80)
			So(check.Message, ShouldContainSubstring, "duplicate")
		})

		Convey("重复判定不区分大小写", func() {
			run := newTestRun("theme", "", 60)
			run.Scenes = []pipeline.Scene{
				{ID: 1, Title: "One", Content: "The Exact Same Narration Repeated Across Scenes Word For Word"},
				{ID: 2, Title: "Two", Content: "the exact same narration repeated across scenes word for word"},
			}
			check := svc.checkScript(run)
			So(check.Score, ShouldEqual, 80)
			So(check.Message, ShouldContainSubstring, "duplicate")
		})

		Convey("全部占位标题小幅扣分", func() {
			run := newTestRun("theme", "", 60)
			run.Scenes = []pipeline.Scene{
				{ID: 1, Title: "Scene 1", Content: "a perfectly reasonable narration of sufficient length for scoring"},
				{ID: 2, Title: "Scene 2", Content: "another perfectly reasonable narration of sufficient length here"},
			}
			check := svc.checkScript(run)
			So(check.Score, ShouldEqual, 95)
		})

		Convey("分数不会扣成负数", func() {
			run := newTestRun("theme", "", 60)
			for i := 1; i <= 10; i++ {
				run.Scenes = append(run.Scenes, pipeline.Scene{ID: i, Title: "Scene", Content: "x"})
			}
			check := svc.checkScript(run)
			So(check.Score, ShouldEqual, 0)
		})
	})
}

func TestValidateNarrationCheck(t *testing.T) {
	Convey("旁白产物检查", t, func() {
		dir := t.TempDir()

		Convey("分数是在场产物的平均分：一条过短音频记50分", func() {
			run, prober := populatedRun(t, dir)
			prober.infos[run.Progress[0].NarrationPath] = &ffmpeg.MediaInfo{Duration: 0.4}
			svc := NewValidationService(prober)

			// (50 + 100 + 100) / 3
			check := svc.checkNarration(context.Background(), run)
			So(check.Score, ShouldEqual, 83)
			So(check.Message, ShouldContainSubstring, "under 1s")
		})

		Convey("超长音频记70分参与平均", func() {
			run, prober := populatedRun(t, dir)
			prober.infos[run.Progress[1].NarrationPath] = &ffmpeg.MediaInfo{Duration: 150}
			svc := NewValidationService(prober)

			// (100 + 70 + 100) / 3
			check := svc.checkNarration(context.Background(), run)
			So(check.Score, ShouldEqual, 90)
			So(check.Passed, ShouldBeTrue)
		})

		Convey("缺失的产物不参与平均但出现在问题列表里", func() {
			run, prober := populatedRun(t, dir)
			run.Progress[2].NarrationPath = ""
			svc := NewValidationService(prober)

			check := svc.checkNarration(context.Background(), run)
			So(check.Score, ShouldEqual, 100)
			So(check.Message, ShouldContainSubstring, "scene 3 narration missing")
		})

		Convey("一个产物都没有记0分", func() {
			run, prober := populatedRun(t, dir)
			for i := range run.Progress {
				run.Progress[i].NarrationPath = ""
			}
			svc := NewValidationService(prober)

			check := svc.checkNarration(context.Background(), run)
			So(check.Score, ShouldEqual, 0)
			So(check.Passed, ShouldBeFalse)
			So(check.Severity, ShouldEqual, pipeline.SeverityError)
		})

		Convey("跳过旁白的运行不扣音频分", func() {
			run, prober := populatedRun(t, dir)
			for i := range run.Progress {
				run.Progress[i].NarrationPath = ""
			}
			run.SkipNarration = true
			svc := NewValidationService(prober)

			check := svc.checkNarration(context.Background(), run)
			So(check.Score, ShouldEqual, 100)
		})
	})
}

func TestValidateVisualCheck(t *testing.T) {
	Convey("视觉产物检查", t, func() {
		dir := t.TempDir()

		Convey("宽高比偏离目标超过0.1的场景记70分参与平均", func() {
			run, prober := populatedRun(t, dir)
			prober.infos[run.Progress[0].VisualPath] = &ffmpeg.MediaInfo{Width: 1920, Height: 1080, Duration: 30}
			svc := NewValidationService(prober)

			// (70 + 100 + 100) / 3
			check := svc.checkVisual(context.Background(), run)
			So(check.Score, ShouldEqual, 90)
			So(check.Message, ShouldContainSubstring, "aspect ratio")
		})

		Convey("探测失败的场景记80分参与平均", func() {
			run, prober := populatedRun(t, dir)
			delete(prober.infos, run.Progress[1].VisualPath)
			svc := NewValidationService(prober)

			// (100 + 80 + 100) / 3
			check := svc.checkVisual(context.Background(), run)
			So(check.Score, ShouldEqual, 93)
			So(check.Passed, ShouldBeTrue)
		})

		Convey("一个产物都没有记0分", func() {
			run, prober := populatedRun(t, dir)
			for i := range run.Progress {
				run.Progress[i].VisualPath = ""
			}
			svc := NewValidationService(prober)

			check := svc.checkVisual(context.Background(), run)
			So(check.Score, ShouldEqual, 0)
			So(check.Severity, ShouldEqual, pipeline.SeverityError)
		})
	})
}

func TestValidateConsistencyCheck(t *testing.T) {
	Convey("音画一致性分数等于齐全场景占比", t, func() {
		dir := t.TempDir()
		run, prober := populatedRun(t, dir)
		svc := NewValidationService(prober)

		Convey("全部齐全是100分", func() {
			check := svc.checkConsistency(run)
			So(check.Score, ShouldEqual, 100)
		})

		Convey("三分之一缺视觉降到66分", func() {
			run.Progress[0].VisualPath = ""
			check := svc.checkConsistency(run)
			So(check.Score, ShouldEqual, 66)
			So(check.Passed, ShouldBeFalse)
		})

		Convey("跳过旁白时只看视觉", func() {
			run.Progress[0].VisualPath = ""
			for i := range run.Progress {
				run.Progress[i].NarrationPath = ""
			}
			run.SkipNarration = true
			check := svc.checkConsistency(run)
			So(check.Score, ShouldEqual, 66)
		})
	})
}

func TestValidateNamingCheck(t *testing.T) {
	Convey("工程命名检查", t, func() {
		svc := NewValidationService(&fakeProber{})

		Convey("空名只是警告，不单独翻转整体结论", func() {
			dir := t.TempDir()
			run, prober := populatedRun(t, dir)
			run.ProjectName = "   "

			check := svc.checkNaming(run)
			So(check.Score, ShouldEqual, 70)
			So(check.Severity, ShouldEqual, pipeline.SeverityWarning)

			result := NewValidationService(prober).Validate(context.Background(), run)
			So(result.Passed, ShouldBeTrue)
		})

		Convey("特殊字符只是警告", func() {
			run := newTestRun("t", "", 60)
			run.ProjectName = "my/project"
			check := svc.checkNaming(run)
			So(check.Score, ShouldEqual, 70)
			So(check.Severity, ShouldEqual, pipeline.SeverityWarning)
		})

		Convey("字母数字空格下划线连字符都合法", func() {
			run := newTestRun("t", "", 60)
			run.ProjectName = "My Project_v2-final"
			check := svc.checkNaming(run)
			So(check.Score, ShouldEqual, 100)
		})
	})
}

func TestValidateCompletenessCheck(t *testing.T) {
	Convey("阶段完整性检查", t, func() {
		svc := NewValidationService(&fakeProber{})
		run := newTestRun("t", "", 60)

		Convey("三个生成阶段都没完成接近0分", func() {
			check := svc.checkCompleteness(run)
			So(check.Score, ShouldEqual, 1)
			So(check.Severity, ShouldEqual, pipeline.SeverityError)
		})

		Convey("每完成一个阶段加约三分之一", func() {
			run.Stages[pipeline.StageScript] = pipeline.StageStatusDone
			So(svc.checkCompleteness(run).Score, ShouldEqual, 34)

			run.Stages[pipeline.StageNarration] = pipeline.StageStatusSkipped
			So(svc.checkCompleteness(run).Score, ShouldEqual, 67)

			run.Stages[pipeline.StageVisual] = pipeline.StageStatusDone
			So(svc.checkCompleteness(run).Score, ShouldEqual, 100)
		})
	})
}
