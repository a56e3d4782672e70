// Package voice 提供基于音高的说话人性别判断。
package voice

import (
	"fmt"
	"math/cmplx"

	"github.com/iabetor/narrator/internal/audio"
	"github.com/iabetor/narrator/internal/logger"
	"gonum.org/v1/gonum/dsp/fourier"
)

// Gender 为音高分类结果。
type Gender int

const (
	Undetermined Gender = iota
	Male
	Female
)

func (g Gender) String() string {
	switch g {
	case Male:
		return "male"
	case Female:
		return "female"
	}
	return "undetermined"
}

// 人声基频的典型范围（Hz）。
const (
	minVoiceHz = 75.0
	maxVoiceHz = 300.0
)

// PitchClassifier 通过频谱峰值估计基频来判断性别。
type PitchClassifier struct {
	// ThresholdHz 以上判为女声。
	ThresholdHz float64
	// PeakHeightRatio 为峰值相对最大幅度的最低比例。
	PeakHeightRatio float64
}

// NewPitchClassifier 返回默认参数（135 Hz，0.2）的分类器。
func NewPitchClassifier() *PitchClassifier {
	return &PitchClassifier{ThresholdHz: 135, PeakHeightRatio: 0.2}
}

// Classify 读取音频文件并分类。读取失败返回错误，无法判断时返回 Undetermined。
func (c *PitchClassifier) Classify(path string) (Gender, error) {
	samples, rate, err := audio.Load(path)
	if err != nil {
		return Undetermined, fmt.Errorf("[voice] 读取 %s 失败: %w", path, err)
	}
	g := c.ClassifySamples(samples, rate)
	logger.Debugf("[voice] %s 判断为 %s", path, g)
	return g, nil
}

// ClassifySamples 对单声道样本做分类。
func (c *PitchClassifier) ClassifySamples(samples []float32, sampleRate int) Gender {
	if len(samples) < 2 || sampleRate <= 0 {
		return Undetermined
	}

	seq := make([]float64, len(samples))
	for i, s := range samples {
		seq[i] = float64(s)
	}

	fft := fourier.NewFFT(len(seq))
	coeffs := fft.Coefficients(nil, seq)

	mag := make([]float64, len(coeffs))
	var peak float64
	for i, v := range coeffs {
		mag[i] = cmplx.Abs(v)
		if mag[i] > peak {
			peak = mag[i]
		}
	}
	if peak == 0 {
		return Undetermined
	}

	height := peak * c.PeakHeightRatio
	for i := 1; i < len(mag)-1; i++ {
		if mag[i] < height || mag[i] <= mag[i-1] || mag[i] <= mag[i+1] {
			continue
		}
		freq := fft.Freq(i) * float64(sampleRate)
		if freq < minVoiceHz || freq > maxVoiceHz {
			continue
		}
		if freq > c.ThresholdHz {
			return Female
		}
		return Male
	}
	return Undetermined
}
