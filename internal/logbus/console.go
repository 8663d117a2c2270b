package logbus

import (
	"fmt"
	"io"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/fatih/color"
)

// Console renders bus messages as `[15:04:05] | [LEVEL] | msg k=v` lines.
type Console struct {
	mu       sync.Mutex
	out      io.Writer
	minLevel int
}

var levelRank = map[string]int{
	LevelDebug:   0,
	LevelInfo:    1,
	LevelSuccess: 1,
	LevelWait:    1,
	LevelWarn:    2,
	LevelError:   3,
}

var (
	tagInfo    = color.New(color.FgBlue)
	tagSuccess = color.New(color.FgGreen)
	tagWait    = color.New(color.FgMagenta)
	tagWarn    = color.New(color.FgYellow)
	tagError   = color.New(color.FgRed)
	tagDebug   = color.New(color.FgHiBlack)
	tagBanner  = color.New(color.FgCyan, color.Bold)
	tagFields  = color.New(color.FgHiBlack)
)

// NewConsole writes to out (color.Output when nil). Messages below minLevel are dropped.
func NewConsole(out io.Writer, minLevel string) *Console {
	if out == nil {
		out = color.Output
	}
	rank, ok := levelRank[minLevel]
	if !ok {
		rank = levelRank[LevelInfo]
	}
	return &Console{out: out, minLevel: rank}
}

func (c *Console) Write(msg Message) {
	var line string
	switch msg.Type {
	case "log":
		data, ok := msg.Data.(LogData)
		if !ok {
			return
		}
		if levelRank[data.Level] < c.minLevel {
			return
		}
		line = c.formatLog(time.UnixMilli(msg.Time), data)
	case "banner":
		line = tagBanner.Sprint(fmt.Sprint(msg.Data))
	default:
		return
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	_, _ = fmt.Fprintln(c.out, line)
}

func (c *Console) formatLog(at time.Time, data LogData) string {
	tag, style := levelTag(data.Level)
	text := fmt.Sprintf("[%s] | [%s] | %s", at.Format("15:04:05"), tag, data.Msg)
	if f := formatFields(data.Fields); f != "" {
		return style.Sprint(text) + " " + tagFields.Sprint(f)
	}
	return style.Sprint(text)
}

func levelTag(level string) (string, *color.Color) {
	switch level {
	case LevelSuccess:
		return "SUCCESS", tagSuccess
	case LevelWait:
		return "WAIT", tagWait
	case LevelWarn:
		return "WARNING", tagWarn
	case LevelError:
		return "ERROR", tagError
	case LevelDebug:
		return "DEBUG", tagDebug
	default:
		return "*", tagInfo
	}
}

func formatFields(fields map[string]any) string {
	if len(fields) == 0 {
		return ""
	}
	keys := make([]string, 0, len(fields))
	for k := range fields {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		parts = append(parts, fmt.Sprintf("%s=%v", k, fields[k]))
	}
	return strings.Join(parts, " ")
}
