package run

import (
	"context"
	"testing"

	. "github.com/smartystreets/goconvey/convey"

	"storyforge/internal/model/pipeline"
)

func TestMemoryRepoIsolation(t *testing.T) {
	Convey("内存仓库在边界上只交换深拷贝", t, func() {
		ctx := context.Background()
		repo := NewMemoryRepo()

		live := pipeline.NewRun("run-1", "deep sea", "documentary", "portrait", "deep sea", 90)
		live.Scenes = []pipeline.Scene{{ID: 1, Title: "Opening", Content: "abc", DurationSeconds: 30}}
		live.Progress = []pipeline.SceneProgress{{SceneID: 1, NarrationStatus: pipeline.NarrationPending, VisualStatus: pipeline.VisualPending}}
		So(repo.Create(ctx, live), ShouldBeNil)

		Convey("入库后改写原对象不影响仓库副本", func() {
			live.Stages[pipeline.StageScript] = pipeline.StageStatusDone
			live.Progress[0].NarrationStatus = pipeline.NarrationDone
			live.Scenes[0].Content = "mutated"

			stored, err := repo.FindByID(ctx, "run-1")
			So(err, ShouldBeNil)
			So(stored.Stages[pipeline.StageScript], ShouldEqual, pipeline.StageStatusPending)
			So(stored.Progress[0].NarrationStatus, ShouldEqual, pipeline.NarrationPending)
			So(stored.Scenes[0].Content, ShouldEqual, "abc")
		})

		Convey("查询结果不和仓库副本共享 map 与 slice", func() {
			first, err := repo.FindByID(ctx, "run-1")
			So(err, ShouldBeNil)

			first.Stages[pipeline.StageAssembly] = pipeline.StageStatusError
			first.Progress[0].VisualStatus = pipeline.VisualError

			second, err := repo.FindByID(ctx, "run-1")
			So(err, ShouldBeNil)
			So(second.Stages[pipeline.StageAssembly], ShouldEqual, pipeline.StageStatusPending)
			So(second.Progress[0].VisualStatus, ShouldEqual, pipeline.VisualPending)
		})

		Convey("Update 落库后继续改写入参不影响仓库副本", func() {
			live.Status = pipeline.RunStatusRunning
			So(repo.Update(ctx, live), ShouldBeNil)

			live.Stages[pipeline.StageScript] = pipeline.StageStatusDone

			stored, err := repo.FindByID(ctx, "run-1")
			So(err, ShouldBeNil)
			So(stored.Status, ShouldEqual, pipeline.RunStatusRunning)
			So(stored.Stages[pipeline.StageScript], ShouldEqual, pipeline.StageStatusPending)
		})

		Convey("List 返回的也是拷贝", func() {
			items, total, err := repo.List(ctx, 1, 10, "")
			So(err, ShouldBeNil)
			So(total, ShouldEqual, 1)

			items[0].Stages[pipeline.StageScript] = pipeline.StageStatusError
			stored, err := repo.FindByID(ctx, "run-1")
			So(err, ShouldBeNil)
			So(stored.Stages[pipeline.StageScript], ShouldEqual, pipeline.StageStatusPending)
		})
	})
}
