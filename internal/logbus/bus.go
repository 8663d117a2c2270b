package logbus

import (
	"sync"
	"time"
)

type Message struct {
	Type string `json:"type"`
	Time int64  `json:"time"`
	Data any    `json:"data"`
}

type LogData struct {
	Level  string         `json:"level"`
	Msg    string         `json:"msg"`
	Fields map[string]any `json:"fields,omitempty"`
}

const (
	LevelDebug   = "debug"
	LevelInfo    = "info"
	LevelSuccess = "success"
	LevelWait    = "wait"
	LevelWarn    = "warn"
	LevelError   = "error"
)

// Sink receives every message synchronously, in publish order.
type Sink interface {
	Write(msg Message)
}

type Bus struct {
	mu     sync.RWMutex
	buf    []Message
	cap    int
	subs   map[chan Message]struct{}
	sinks  []Sink
	closed bool
	now    func() time.Time
}

func New(capacity int) *Bus {
	if capacity <= 0 {
		capacity = 200
	}
	return &Bus{
		cap:  capacity,
		buf:  make([]Message, 0, capacity),
		subs: make(map[chan Message]struct{}),
		now:  time.Now,
	}
}

func (b *Bus) AddSink(s Sink) {
	if s == nil {
		return
	}
	b.mu.Lock()
	b.sinks = append(b.sinks, s)
	b.mu.Unlock()
}

func (b *Bus) Close() {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return
	}
	b.closed = true
	for ch := range b.subs {
		close(ch)
	}
	b.subs = nil
	b.buf = nil
}

func (b *Bus) Snapshot() []Message {
	b.mu.RLock()
	defer b.mu.RUnlock()
	out := make([]Message, len(b.buf))
	copy(out, b.buf)
	return out
}

func (b *Bus) Subscribe(buffer int) (<-chan Message, func()) {
	if buffer <= 0 {
		buffer = 64
	}
	ch := make(chan Message, buffer)
	b.mu.Lock()
	if b.closed {
		close(ch)
		b.mu.Unlock()
		return ch, func() {}
	}
	b.subs[ch] = struct{}{}
	b.mu.Unlock()

	cancel := func() {
		b.mu.Lock()
		if b.subs != nil {
			if _, ok := b.subs[ch]; ok {
				delete(b.subs, ch)
				close(ch)
			}
		}
		b.mu.Unlock()
	}
	return ch, cancel
}

func (b *Bus) Publish(typ string, data any) {
	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return
	}
	msg := Message{
		Type: typ,
		Time: b.now().UnixMilli(),
		Data: data,
	}
	if len(b.buf) < b.cap {
		b.buf = append(b.buf, msg)
	} else if b.cap > 0 {
		copy(b.buf, b.buf[1:])
		b.buf[b.cap-1] = msg
	}
	for ch := range b.subs {
		select {
		case ch <- msg:
		default:
		}
	}
	sinks := b.sinks
	b.mu.Unlock()

	for _, sink := range sinks {
		sink.Write(msg)
	}
}

func (b *Bus) Log(level, message string, fields map[string]any) {
	b.Publish("log", LogData{Level: level, Msg: message, Fields: fields})
}

func (b *Bus) Info(message string, fields map[string]any)    { b.Log(LevelInfo, message, fields) }
func (b *Bus) Success(message string, fields map[string]any) { b.Log(LevelSuccess, message, fields) }
func (b *Bus) Wait(message string, fields map[string]any)    { b.Log(LevelWait, message, fields) }
func (b *Bus) Warn(message string, fields map[string]any)    { b.Log(LevelWarn, message, fields) }
func (b *Bus) Error(message string, fields map[string]any)   { b.Log(LevelError, message, fields) }

// Banner publishes a section header line (one per account).
func (b *Bus) Banner(text string) {
	b.Publish("banner", text)
}

