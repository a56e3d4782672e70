package audio

import "strings"

// 拼接规则：
//   - 空白文本的片段替换为一段静音；
//   - 非空片段追加合成波形，后跟一段静音；
//   - 合成失败的片段以一段静音代替，保证字幕时间轴仍然推进；
//   - 全部处理完后，若末尾是静音则去掉最后一段。

// SilenceSeconds 为片段之间插入的静音时长。
const SilenceSeconds = 2.0

// DefaultTrimThreshold 为修剪首尾静音时的幅度阈值。
const DefaultTrimThreshold = 0.001

// Part 是一个停顿分隔的子句及其合成结果。
type Part struct {
	Text string
	// Samples 为空表示该片段没有可用波形（合成失败）。
	Samples []float32
}

// Silence 返回指定时长的零幅度波形。
func Silence(sampleRate int, seconds float64) []float32 {
	n := int(float64(sampleRate) * seconds)
	if n < 0 {
		n = 0
	}
	return make([]float32, n)
}

// Assembler 按固定采样率拼接片段。
type Assembler struct {
	sampleRate int
	silence    int
}

// NewAssembler 创建拼接器，静音长度为 SilenceSeconds。
func NewAssembler(sampleRate int) *Assembler {
	return &Assembler{
		sampleRate: sampleRate,
		silence:    int(float64(sampleRate) * SilenceSeconds),
	}
}

// SampleRate 返回拼接使用的采样率。
func (a *Assembler) SampleRate() int {
	return a.sampleRate
}

// SilenceSamples 返回一段静音缓冲的样本数。
func (a *Assembler) SilenceSamples() int {
	return a.silence
}

type segment struct {
	samples []float32
	silence bool
}

// Assemble 拼接所有片段并去掉末尾的一段静音。
func (a *Assembler) Assemble(parts []Part) []float32 {
	segments := make([]segment, 0, len(parts)*2)
	for _, p := range parts {
		if isBlank(p.Text) || len(p.Samples) == 0 {
			segments = append(segments, segment{silence: true})
			continue
		}
		segments = append(segments, segment{samples: p.Samples}, segment{silence: true})
	}

	if n := len(segments); n > 0 && segments[n-1].silence {
		segments = segments[:n-1]
	}

	total := 0
	for _, s := range segments {
		if s.silence {
			total += a.silence
		} else {
			total += len(s.samples)
		}
	}

	out := make([]float32, 0, total)
	for _, s := range segments {
		if s.silence {
			out = append(out, make([]float32, a.silence)...)
			continue
		}
		out = append(out, s.samples...)
	}
	return out
}

// AssembleAndTrim 拼接后按需修剪首尾近似静音。
func (a *Assembler) AssembleAndTrim(parts []Part, trim bool, bufferSec float64) []float32 {
	out := a.Assemble(parts)
	if trim {
		out = Trim(out, a.sampleRate, DefaultTrimThreshold, bufferSec)
	}
	return out
}

func isBlank(s string) bool {
	return strings.TrimSpace(s) == ""
}
