package pipeline

import (
	"testing"
	"time"

	. "github.com/smartystreets/goconvey/convey"
)

func TestRunClone(t *testing.T) {
	Convey("Clone 产出完全独立的副本", t, func() {
		now := time.Now()
		original := NewRun("run-1", "deep sea", "documentary", "portrait", "deep sea", 90)
		original.Scenes = []Scene{{ID: 1, Title: "Opening", Content: "abc", DurationSeconds: 30}}
		original.Progress = []SceneProgress{{SceneID: 1, NarrationStatus: NarrationPending, VisualStatus: VisualPending}}
		original.Validation = &ValidationResult{
			Score:           95,
			Passed:          true,
			Checks:          []Check{{Name: "script_quality", Passed: true, Score: 100}},
			Recommendations: []string{"nothing to do"},
		}
		original.CompletedAt = &now

		clone := original.Clone()
		So(clone, ShouldResemble, original)

		Convey("改写副本的 map、slice 和指针字段不影响原对象", func() {
			clone.Stages[StageScript] = StageStatusDone
			clone.Scenes[0].Content = "mutated"
			clone.Progress[0].NarrationStatus = NarrationDone
			clone.Validation.Checks[0].Score = 0
			clone.Validation.Recommendations[0] = "mutated"
			*clone.CompletedAt = now.Add(time.Hour)

			So(original.Stages[StageScript], ShouldEqual, StageStatusPending)
			So(original.Scenes[0].Content, ShouldEqual, "abc")
			So(original.Progress[0].NarrationStatus, ShouldEqual, NarrationPending)
			So(original.Validation.Checks[0].Score, ShouldEqual, 100)
			So(original.Validation.Recommendations[0], ShouldEqual, "nothing to do")
			So(original.CompletedAt.Equal(now), ShouldBeTrue)
		})
	})
}
