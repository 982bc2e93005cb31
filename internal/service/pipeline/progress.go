package pipeline

import (
	"fmt"
	"sync"
	"time"
)

// EventType 进度事件类型
type EventType string

const (
	EventLog   EventType = "log"
	EventError EventType = "error"
	EventDone  EventType = "done"
)

// Event 推送给订阅方的一条进度事件
type Event struct {
	Type EventType   `json:"type"`
	Data interface{} `json:"data"`
	Time time.Time   `json:"time"`
}

// DonePayload done 事件携带的终态信息
type DonePayload struct {
	RunID      string `json:"run_id"`
	Status     string `json:"status"`
	MergedPath string `json:"merged_path,omitempty"`
	Error      string `json:"error,omitempty"`
}

// Emitter 单次运行的进度广播器
// 一次运行恰好发出一个 done 事件；done 之后所有事件被丢弃，通道关闭
type Emitter struct {
	mu       sync.Mutex
	subs     map[chan Event]struct{}
	history  []Event
	doneOnce sync.Once
	closed   bool
}

// NewEmitter 创建进度广播器
func NewEmitter() *Emitter {
	return &Emitter{subs: make(map[chan Event]struct{})}
}

// Subscribe 订阅事件流，先回放历史再接收后续事件
// 返回的取消函数可重复调用
func (e *Emitter) Subscribe() (<-chan Event, func()) {
	e.mu.Lock()
	defer e.mu.Unlock()

	ch := make(chan Event, 64+len(e.history))
	for _, ev := range e.history {
		ch <- ev
	}
	if e.closed {
		close(ch)
		return ch, func() {}
	}
	e.subs[ch] = struct{}{}

	var once sync.Once
	cancel := func() {
		once.Do(func() {
			e.mu.Lock()
			defer e.mu.Unlock()
			if _, ok := e.subs[ch]; ok {
				delete(e.subs, ch)
				close(ch)
			}
		})
	}
	return ch, cancel
}

// Log 广播一条进度日志
func (e *Emitter) Log(format string, args ...interface{}) {
	e.broadcast(Event{Type: EventLog, Data: fmt.Sprintf(format, args...), Time: time.Now()})
}

// Error 广播一条非终止性错误
func (e *Emitter) Error(format string, args ...interface{}) {
	e.broadcast(Event{Type: EventError, Data: fmt.Sprintf(format, args...), Time: time.Now()})
}

// Done 广播终态事件并关闭所有订阅通道，只会生效一次
func (e *Emitter) Done(payload DonePayload) {
	e.doneOnce.Do(func() {
		e.broadcast(Event{Type: EventDone, Data: payload, Time: time.Now()})

		e.mu.Lock()
		defer e.mu.Unlock()
		e.closed = true
		for ch := range e.subs {
			close(ch)
			delete(e.subs, ch)
		}
	})
}

func (e *Emitter) broadcast(ev Event) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.closed {
		return
	}
	e.history = append(e.history, ev)
	for ch := range e.subs {
		select {
		case ch <- ev:
		default:
			// 订阅方消费过慢时丢弃，避免阻塞流水线
		}
	}
}
