package pipeline

import (
	"testing"
	"time"

	. "github.com/smartystreets/goconvey/convey"
)

// drain 读空通道并返回收到的全部事件
func drain(ch <-chan Event, wait time.Duration) []Event {
	var events []Event
	deadline := time.After(wait)
	for {
		select {
		case ev, ok := <-ch:
			if !ok {
				return events
			}
			events = append(events, ev)
		case <-deadline:
			return events
		}
	}
}

func TestEmitter(t *testing.T) {
	Convey("进度广播器", t, func() {
		em := NewEmitter()

		Convey("订阅后收到后续事件", func() {
			ch, cancel := em.Subscribe()
			defer cancel()

			em.Log("scene %d started", 1)
			em.Error("scene %d failed", 2)
			em.Done(DonePayload{RunID: "r1", Status: "completed"})

			events := drain(ch, time.Second)
			So(len(events), ShouldEqual, 3)
			So(events[0].Type, ShouldEqual, EventLog)
			So(events[1].Type, ShouldEqual, EventError)
			So(events[2].Type, ShouldEqual, EventDone)
		})

		Convey("迟到的订阅者回放历史事件", func() {
			em.Log("early event")
			ch, cancel := em.Subscribe()
			defer cancel()

			events := drain(ch, 100*time.Millisecond)
			So(len(events), ShouldEqual, 1)
			So(events[0].Data, ShouldEqual, "early event")
		})

		Convey("done只会发出一次，之后的事件被丢弃", func() {
			ch, cancel := em.Subscribe()
			defer cancel()

			em.Done(DonePayload{RunID: "r1", Status: "completed"})
			em.Done(DonePayload{RunID: "r1", Status: "failed"})
			em.Log("after done")

			events := drain(ch, time.Second)
			doneCount := 0
			for _, ev := range events {
				So(ev.Type, ShouldNotEqual, EventLog)
				if ev.Type == EventDone {
					doneCount++
				}
			}
			So(doneCount, ShouldEqual, 1)
		})

		Convey("done之后订阅拿到已关闭的回放通道", func() {
			em.Log("before done")
			em.Done(DonePayload{RunID: "r1", Status: "completed"})

			ch, cancel := em.Subscribe()
			defer cancel()

			events := drain(ch, time.Second)
			So(len(events), ShouldEqual, 2)
			So(events[len(events)-1].Type, ShouldEqual, EventDone)
		})

		Convey("取消订阅可以重复调用", func() {
			_, cancel := em.Subscribe()
			cancel()
			So(cancel, ShouldNotPanic)
		})
	})
}
