package pipeline

import (
	"testing"

	. "github.com/smartystreets/goconvey/convey"
)

func TestCollectMergeInputs(t *testing.T) {
	Convey("合并清单收集", t, func() {
		dir := t.TempDir()

		Convey("产物齐全时两份清单都是三条", func() {
			run, _ := populatedRun(t, dir)
			videos, audios := collectMergeInputs(run)
			So(len(videos), ShouldEqual, 3)
			So(len(audios), ShouldEqual, 3)
		})

		Convey("旁白残缺时有多少并多少，视频不受影响", func() {
			run, _ := populatedRun(t, dir)
			run.Progress[1].NarrationPath = ""

			videos, audios := collectMergeInputs(run)
			So(len(videos), ShouldEqual, 3)
			So(len(audios), ShouldEqual, 2)
			So(audios[0], ShouldEqual, run.Progress[0].NarrationPath)
			So(audios[1], ShouldEqual, run.Progress[2].NarrationPath)
		})

		Convey("缺视觉的场景整体出局，包括它的旁白位置", func() {
			run, _ := populatedRun(t, dir)
			run.Progress[0].VisualPath = ""

			videos, audios := collectMergeInputs(run)
			So(len(videos), ShouldEqual, 2)
			So(len(audios), ShouldEqual, 2)
		})

		Convey("跳过旁白的运行不并音轨", func() {
			run, _ := populatedRun(t, dir)
			run.SkipNarration = true

			videos, audios := collectMergeInputs(run)
			So(len(videos), ShouldEqual, 3)
			So(audios, ShouldBeNil)
		})
	})
}
