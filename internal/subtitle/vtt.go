// Package subtitle 维护与逐句音频同步的 WebVTT 字幕文件。
package subtitle

import (
	"bufio"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strconv"
	"strings"
	"sync"

	"github.com/iabetor/narrator/internal/logger"
)

const (
	header    = "WEBVTT\n\n"
	separator = "-->"
)

// Writer 向字幕文件追加字幕块，时间轴由累计音频时长推出。
type Writer struct {
	mu    sync.Mutex
	path  string
	total float64
	next  int
}

// NewWriter 打开 path 处的字幕文件（可以尚不存在）。
// 已有文件时从最后一条字幕的结束时间恢复累计时长，续转时时间轴保持连续。
func NewWriter(path string) (*Writer, error) {
	w := &Writer{path: path, next: 1}
	count, lastEnd, err := scan(path)
	if err != nil {
		return nil, err
	}
	w.next = count + 1
	w.total = lastEnd
	if count > 0 {
		logger.Infof("[subtitle] 续写字幕 %s：已有 %d 条，累计 %.3f 秒", path, count, lastEnd)
	}
	return w, nil
}

// Path 返回字幕文件路径。
func (w *Writer) Path() string {
	return w.path
}

// Elapsed 返回已写入字幕覆盖的累计时长（秒）。
func (w *Writer) Elapsed() float64 {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.total
}

// Next 返回下一条字幕的序号。
func (w *Writer) Next() int {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.next
}

// Append 追加一条字幕，开始时间为当前累计时长，返回下一条的序号。
// 序号每次都重新扫描文件中的时间轴行计算。
func (w *Writer) Append(text string, duration float64) (int, error) {
	w.mu.Lock()
	defer w.mu.Unlock()

	count, _, err := scan(w.path)
	if err != nil {
		return w.next, err
	}
	index := count + 1

	if err := os.MkdirAll(filepath.Dir(w.path), 0755); err != nil {
		return index, fmt.Errorf("[subtitle] 创建字幕目录失败: %w", err)
	}
	f, err := os.OpenFile(w.path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
	if err != nil {
		return index, fmt.Errorf("[subtitle] 打开字幕文件失败: %w", err)
	}
	defer f.Close()

	var b strings.Builder
	if info, err := f.Stat(); err == nil && info.Size() == 0 {
		b.WriteString(header)
	}
	start := w.total
	end := start + duration
	fmt.Fprintf(&b, "%s %s %s\n%s\n\n", FormatTimestamp(start), separator, FormatTimestamp(end), Sanitize(text))

	if _, err := f.WriteString(b.String()); err != nil {
		return index, fmt.Errorf("[subtitle] 写入字幕失败: %w", err)
	}

	w.total = end
	w.next = index + 1
	logger.Debugf("[subtitle] #%d %s --> %s", index, FormatTimestamp(start), FormatTimestamp(end))
	return w.next, nil
}

// FormatTimestamp 把秒数格式化为 HH:MM:SS.mmm。
func FormatTimestamp(seconds float64) string {
	if seconds < 0 {
		seconds = 0
	}
	ms := int64(seconds*1000 + 0.5)
	h := ms / 3600000
	m := (ms / 60000) % 60
	s := float64(ms%60000) / 1000
	return fmt.Sprintf("%02d:%02d:%06.3f", h, m, s)
}

var (
	newlines = regexp.MustCompile(`[\r\n]+`)
	spaces   = regexp.MustCompile(`\s{2,}`)
	arrows   = regexp.MustCompile(`-{2,}>`)
	timing   = regexp.MustCompile(`^\d{2,}:\d{2}:\d{2}\.\d{3} --> (\d{2,}:\d{2}:\d{2}\.\d{3})`)
)

// Sanitize 把换行替换为空格并合并连续空白，正文中的 "-->" 改写为 "->"。
func Sanitize(text string) string {
	text = arrows.ReplaceAllString(text, "->")
	text = strings.TrimSpace(newlines.ReplaceAllString(text, " "))
	return spaces.ReplaceAllString(text, " ")
}

// ParseTimestamp 解析 HH:MM:SS.mmm。
func ParseTimestamp(ts string) (float64, error) {
	parts := strings.Split(strings.TrimSpace(ts), ":")
	if len(parts) != 3 {
		return 0, fmt.Errorf("[subtitle] 非法时间戳: %s", ts)
	}
	h, err := strconv.Atoi(parts[0])
	if err != nil {
		return 0, fmt.Errorf("[subtitle] 非法时间戳: %s", ts)
	}
	m, err := strconv.Atoi(parts[1])
	if err != nil {
		return 0, fmt.Errorf("[subtitle] 非法时间戳: %s", ts)
	}
	s, err := strconv.ParseFloat(parts[2], 64)
	if err != nil {
		return 0, fmt.Errorf("[subtitle] 非法时间戳: %s", ts)
	}
	return float64(h)*3600 + float64(m)*60 + s, nil
}

// scan 统计文件中的时间轴行并返回最后一条的结束时间，文件不存在时返回 0。
func scan(path string) (int, float64, error) {
	f, err := os.Open(path)
	if os.IsNotExist(err) {
		return 0, 0, nil
	}
	if err != nil {
		return 0, 0, fmt.Errorf("[subtitle] 读取字幕文件失败: %w", err)
	}
	defer f.Close()

	count := 0
	lastEnd := 0.0
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		m := timing.FindStringSubmatch(scanner.Text())
		if m == nil {
			continue
		}
		count++
		if end, err := ParseTimestamp(m[1]); err == nil {
			lastEnd = end
		}
	}
	if err := scanner.Err(); err != nil {
		return 0, 0, fmt.Errorf("[subtitle] 读取字幕文件失败: %w", err)
	}
	return count, lastEnd, nil
}
