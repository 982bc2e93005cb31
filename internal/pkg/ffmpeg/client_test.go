package ffmpeg

import (
	"math/rand"
	"os"
	"path/filepath"
	"strings"
	"testing"

	. "github.com/smartystreets/goconvey/convey"
)

func TestWriteConcatManifest(t *testing.T) {
	Convey("WriteConcatManifest 生成 concat 清单", t, func() {
		dir := t.TempDir()
		manifest := filepath.Join(dir, "concat.txt")

		Convey("每个输入一行，保持输入顺序", func() {
			inputs := []string{
				filepath.Join(dir, "scene-1.mp4"),
				filepath.Join(dir, "scene-2.mp4"),
				filepath.Join(dir, "scene-3.mp4"),
			}
			So(WriteConcatManifest(manifest, inputs), ShouldBeNil)

			data, err := os.ReadFile(manifest)
			So(err, ShouldBeNil)

			lines := strings.Split(strings.TrimSpace(string(data)), "\n")
			So(len(lines), ShouldEqual, 3)
			for i, line := range lines {
				So(line, ShouldStartWith, "file '")
				So(line, ShouldEndWith, "'")
				So(line, ShouldContainSubstring, inputs[i])
			}
		})

		Convey("路径中的单引号被转义", func() {
			input := filepath.Join(dir, "it's a scene.mp4")
			So(WriteConcatManifest(manifest, []string{input}), ShouldBeNil)

			data, err := os.ReadFile(manifest)
			So(err, ShouldBeNil)
			So(string(data), ShouldContainSubstring, `it'\''s a scene.mp4`)
		})
	})
}

func TestEscapeConcatPath(t *testing.T) {
	Convey("EscapeConcatPath 转义规则", t, func() {
		So(EscapeConcatPath("/tmp/plain.mp4"), ShouldEqual, "/tmp/plain.mp4")
		So(EscapeConcatPath("/tmp/it's.mp4"), ShouldEqual, `/tmp/it'\''s.mp4`)
		So(EscapeConcatPath("a'b'c"), ShouldEqual, `a'\''b'\''c`)
	})
}

func TestMotionFilter(t *testing.T) {
	Convey("motionFilter 生成 zoompan 表达式", t, func() {
		Convey("四种模式都包含目标分辨率与帧数", func() {
			for _, p := range MotionPatterns {
				f := motionFilter(p, 1080, 1920, 150, 30)
				So(f, ShouldContainSubstring, "zoompan=")
				So(f, ShouldContainSubstring, "s=1080x1920")
				So(f, ShouldContainSubstring, "d=150")
			}
		})

		Convey("缩放模式使用 zoom 递增/递减", func() {
			So(motionFilter(MotionZoomIn, 1080, 1920, 100, 30), ShouldContainSubstring, "zoom+")
			So(motionFilter(MotionZoomOut, 1080, 1920, 100, 30), ShouldContainSubstring, "zoom-")
		})

		Convey("平移模式沿 x 轴移动", func() {
			So(motionFilter(MotionPanLeft, 1920, 1080, 100, 30), ShouldContainSubstring, "(iw-iw/zoom)*on")
			So(motionFilter(MotionPanRight, 1920, 1080, 100, 30), ShouldContainSubstring, "(iw-iw/zoom)*(1-on")
		})
	})
}

func TestRandomMotion(t *testing.T) {
	Convey("RandomMotion 只返回已定义的模式", t, func() {
		rng := rand.New(rand.NewSource(42))
		valid := map[MotionPattern]bool{}
		for _, p := range MotionPatterns {
			valid[p] = true
		}
		for i := 0; i < 50; i++ {
			So(valid[RandomMotion(rng)], ShouldBeTrue)
		}
	})
}

func TestMergeArgs(t *testing.T) {
	Convey("mergeArgs 构建主合并命令", t, func() {
		c := NewClient()

		Convey("带水印与音频清单", func() {
			req := &MergeRequest{
				Width: 1080, Height: 1920, FPS: 30,
				WatermarkText: "StoryForge AI",
				OutputPath:    "/tmp/out.mp4",
			}
			args := c.mergeArgs(req, "/tmp/v.txt", "/tmp/a.txt", true)
			joined := strings.Join(args, " ")

			So(joined, ShouldContainSubstring, "scale=1080:1920:force_original_aspect_ratio=decrease")
			So(joined, ShouldContainSubstring, "pad=1080:1920:(ow-iw)/2:(oh-ih)/2")
			So(joined, ShouldContainSubstring, "drawtext=text='StoryForge AI'")
			So(joined, ShouldContainSubstring, "-map 1:a")
			So(joined, ShouldContainSubstring, "-shortest")
		})

		Convey("无音频无水印", func() {
			req := &MergeRequest{
				Width: 1920, Height: 1080, FPS: 30,
				OutputPath: "/tmp/out.mp4",
			}
			args := c.mergeArgs(req, "/tmp/v.txt", "", false)
			joined := strings.Join(args, " ")

			So(joined, ShouldNotContainSubstring, "drawtext")
			So(joined, ShouldNotContainSubstring, "-map 1:a")
		})
	})
}
