package external

import (
	"context"
	"fmt"
	"strconv"

	"github.com/iabetor/narrator/internal/logger"
)

// PitchShifter 使用 sox 对音频做音高偏移。
type PitchShifter struct {
	sox    string
	runner Runner
}

// NewPitchShifter 创建音高偏移器。
func NewPitchShifter(sox string, runner Runner) *PitchShifter {
	if runner == nil {
		runner = ExecRunner{}
	}
	return &PitchShifter{sox: sox, runner: runner}
}

// Shift 将 input 偏移 semitones 个半音（sox 以音分为单位），
// 同时重采样到 sampleRate，写入 output。
func (p *PitchShifter) Shift(ctx context.Context, input, output string, semitones, sampleRate int) error {
	args := []string{
		input,
		"-r", strconv.Itoa(sampleRate), output,
		"pitch", strconv.Itoa(semitones * 100),
	}
	logger.Debugf("[external] sox 音高偏移 %+d 半音: %s", semitones, input)
	if err := p.runner.Run(ctx, p.sox, args...); err != nil {
		return fmt.Errorf("[external] 音高偏移 %s 失败: %w", input, err)
	}
	return nil
}
