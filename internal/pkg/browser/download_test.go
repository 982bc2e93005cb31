package browser

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	. "github.com/smartystreets/goconvey/convey"
)

func TestIsPartial(t *testing.T) {
	Convey("isPartial 识别下载中的临时文件", t, func() {
		So(isPartial("audio.mp3.crdownload"), ShouldBeTrue)
		So(isPartial("clip.part"), ShouldBeTrue)
		So(isPartial("video.TMP"), ShouldBeTrue)
		So(isPartial("scene-1.mp3"), ShouldBeFalse)
		So(isPartial("scene-1.mp4"), ShouldBeFalse)
	})
}

func TestNewestDownload(t *testing.T) {
	Convey("newestDownload 只返回开始时间之后的完整文件", t, func() {
		dir := t.TempDir()
		write := func(name string, mod time.Time) string {
			path := filepath.Join(dir, name)
			So(os.WriteFile(path, []byte("data"), 0o644), ShouldBeNil)
			So(os.Chtimes(path, mod, mod), ShouldBeNil)
			return path
		}

		now := time.Now()
		startTime := now.Add(-time.Minute)

		Convey("空目录返回空串", func() {
			path, err := newestDownload(dir, startTime)
			So(err, ShouldBeNil)
			So(path, ShouldBeEmpty)
		})

		Convey("开始时间之前的旧文件被忽略", func() {
			write("old.mp3", now.Add(-time.Hour))
			path, err := newestDownload(dir, startTime)
			So(err, ShouldBeNil)
			So(path, ShouldBeEmpty)
		})

		Convey("临时文件被忽略，返回最新的完整文件", func() {
			write("first.mp3", now.Add(-30*time.Second))
			newest := write("second.mp3", now.Add(-10*time.Second))
			write("third.mp3.crdownload", now)

			path, err := newestDownload(dir, startTime)
			So(err, ShouldBeNil)
			So(path, ShouldEqual, newest)
		})
	})
}

func TestProbeJS(t *testing.T) {
	Convey("探测脚本构建", t, func() {
		Convey("点击探测包含全部关键词且统一小写", func() {
			p := ClickProbe("run button", "Run", "Generate")
			So(p.JS, ShouldContainSubstring, `"run"`)
			So(p.JS, ShouldContainSubstring, `"generate"`)
			So(p.JS, ShouldContainSubstring, "el.click()")
			So(p.JS, ShouldContainSubstring, "aria-label")
		})

		Convey("存在性探测不触发点击", func() {
			p := ExistsProbe("download ready", "download")
			So(p.JS, ShouldNotContainSubstring, "el.click()")
			So(p.JS, ShouldContainSubstring, `"download"`)
		})

		Convey("填充探测派发 input 事件", func() {
			p := FillProbe("text input", `a "quoted" theme`)
			So(p.JS, ShouldContainSubstring, "dispatchEvent")
			So(p.JS, ShouldContainSubstring, `a \"quoted\" theme`)
		})
	})
}
