package external

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"github.com/iabetor/narrator/internal/logger"
)

// EQBand 为一个均衡器频段。
type EQBand struct {
	Freq int
	Gain int
}

// DefaultEqualizer 是默认的多段均衡配置。
var DefaultEqualizer = []EQBand{
	{150, 1}, {250, -3}, {3000, 2}, {5500, -4}, {9000, -2},
}

// Normalizer 使用 ffmpeg 对参考音频做标准化处理：
// 噪声门 → 降噪 → 压缩 → 响度标准化 → 多段均衡 → 高通。
type Normalizer struct {
	ffmpeg        string
	runner        Runner
	GateThreshold int
	Equalizer     []EQBand
}

// NewNormalizer 创建标准化器，ffmpeg 为可执行文件名或路径。
func NewNormalizer(ffmpeg string, runner Runner) *Normalizer {
	if runner == nil {
		runner = ExecRunner{}
	}
	return &Normalizer{
		ffmpeg:        ffmpeg,
		runner:        runner,
		GateThreshold: -25,
		Equalizer:     DefaultEqualizer,
	}
}

// FilterChain 返回 ffmpeg filter_complex 参数。
func (n *Normalizer) FilterChain() string {
	eq := make([]string, 0, len(n.Equalizer))
	for _, b := range n.Equalizer {
		eq = append(eq, fmt.Sprintf("equalizer=f=%d:t=q:w=2:g=%d", b.Freq, b.Gain))
	}
	return fmt.Sprintf("agate=threshold=%ddB:ratio=1.4:attack=10:release=250,", n.GateThreshold) +
		"afftdn=nf=-70," +
		"acompressor=threshold=-20dB:ratio=2:attack=80:release=200:makeup=1dB," +
		"loudnorm=I=-14:TP=-3:LRA=7:linear=true," +
		strings.Join(eq, ",") + "," +
		"highpass=f=63[audio]"
}

// Normalize 将 input 标准化并重采样到 sampleRate，写入 output。
func (n *Normalizer) Normalize(ctx context.Context, input, output string, sampleRate int) error {
	args := []string{
		"-hide_banner", "-nostats", "-i", input,
		"-filter_complex", n.FilterChain(),
		"-map", "[audio]",
		"-ar", strconv.Itoa(sampleRate),
		"-y", output,
	}
	logger.Debugf("[external] ffmpeg 标准化 %s → %s (%d Hz)", input, output, sampleRate)
	if err := n.runner.Run(ctx, n.ffmpeg, args...); err != nil {
		return fmt.Errorf("[external] 标准化 %s 失败: %w", input, err)
	}
	return nil
}
