package pipeline

import (
	"context"
	"testing"

	. "github.com/smartystreets/goconvey/convey"
)

func TestSceneCount(t *testing.T) {
	Convey("场景数按每30秒一个计算，下限3个", t, func() {
		So(SceneCount(10), ShouldEqual, 3)
		So(SceneCount(60), ShouldEqual, 3)
		So(SceneCount(89), ShouldEqual, 3)
		So(SceneCount(90), ShouldEqual, 3)
		So(SceneCount(120), ShouldEqual, 4)
		So(SceneCount(300), ShouldEqual, 10)
	})
}

func TestSplitDuration(t *testing.T) {
	Convey("总时长均分到各场景", t, func() {
		Convey("整除时每段相等", func() {
			parts := splitDuration(60, 3)
			So(parts, ShouldResemble, []int{20, 20, 20})
		})

		Convey("余数摊到最后一段", func() {
			parts := splitDuration(100, 3)
			So(parts, ShouldResemble, []int{33, 33, 34})

			sum := 0
			for _, p := range parts {
				sum += p
			}
			So(sum, ShouldEqual, 100)
		})
	})
}

func TestOfflineScriptGeneration(t *testing.T) {
	Convey("无模型时的离线脚本生成", t, func() {
		svc := NewScriptService(nil)
		run := newTestRun("the lost lighthouse", "mystery", 60)

		title, scenes, err := svc.Generate(context.Background(), run)

		So(err, ShouldBeNil)
		So(title, ShouldNotBeEmpty)

		Convey("60秒目标产出3个20秒场景", func() {
			So(len(scenes), ShouldEqual, 3)
			for _, scene := range scenes {
				So(scene.DurationSeconds, ShouldEqual, 20)
				So(scene.Content, ShouldNotBeEmpty)
			}
		})

		Convey("场景ID从1开始连续", func() {
			for i, scene := range scenes {
				So(scene.ID, ShouldEqual, i+1)
			}
		})

		Convey("同样输入再生成一次结果一致", func() {
			_, again, err := svc.Generate(context.Background(), run)
			So(err, ShouldBeNil)
			So(again, ShouldResemble, scenes)
		})
	})
}

func TestParseScriptResponse(t *testing.T) {
	Convey("解析模型返回的脚本JSON", t, func() {
		Convey("裸JSON直接解析", func() {
			payload, err := parseScriptResponse(`{"title":"T","scenes":[{"title":"s1","content":"c1"}]}`)
			So(err, ShouldBeNil)
			So(payload.Title, ShouldEqual, "T")
			So(len(payload.Scenes), ShouldEqual, 1)
		})

		Convey("容忍markdown代码块包裹", func() {
			payload, err := parseScriptResponse("```json\n{\"title\":\"T\",\"scenes\":[{\"title\":\"s1\",\"content\":\"c1\"}]}\n```")
			So(err, ShouldBeNil)
			So(payload.Scenes[0].Content, ShouldEqual, "c1")
		})

		Convey("容忍JSON前后夹带说明文字", func() {
			payload, err := parseScriptResponse(`Here is the script: {"title":"T","scenes":[{"title":"s1","content":"c1"}]} enjoy!`)
			So(err, ShouldBeNil)
			So(payload.Title, ShouldEqual, "T")
		})

		Convey("没有场景视为无效", func() {
			_, err := parseScriptResponse(`{"title":"T","scenes":[]}`)
			So(err, ShouldNotBeNil)
		})
	})
}

func TestGenreTone(t *testing.T) {
	Convey("题材基调映射", t, func() {
		So(toneFor("horror"), ShouldContainSubstring, "suspenseful")
		So(toneFor("HORROR"), ShouldContainSubstring, "suspenseful")

		Convey("未知题材落到通用基调", func() {
			So(toneFor("unheard-of"), ShouldContainSubstring, "general audience")
			So(toneFor(""), ShouldContainSubstring, "general audience")
		})
	})
}
