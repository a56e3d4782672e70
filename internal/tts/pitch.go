package tts

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/google/uuid"
	"github.com/iabetor/narrator/internal/audio"
	"github.com/iabetor/narrator/internal/logger"
	"github.com/iabetor/narrator/internal/metrics"
	"github.com/iabetor/narrator/internal/runtime"
	"github.com/iabetor/narrator/internal/voice"
)

// genderShift 为性别不一致时的固定变调幅度（半音）。
const genderShift = 4

// semitoneOffset 返回把内置音色移向克隆音色音域所需的半音数。
func semitoneOffset(clone, builtin voice.Gender) int {
	if clone == builtin {
		return 0
	}
	if clone == voice.Male {
		return -genderShift
	}
	return genderShift
}

// cloner 实现“内置合成 → 可选变调 → 音色转换”的流程，供 VITS 与 FAIRSEQ 共用。
type cloner struct {
	deps      Deps
	procDir   string
	semitones *VoiceState[int]
}

func newCloner(deps Deps, voicesDir string) *cloner {
	return &cloner{
		deps:      deps,
		procDir:   filepath.Join(voicesDir, "proc"),
		semitones: NewVoiceState[int](),
	}
}

// clone 用 base 合成 req，再转换为 voiceRef 的音色。
func (c *cloner) clone(ctx context.Context, engine string, model runtime.Synthesizer, vc runtime.VoiceConverter, req runtime.SpeechRequest, voiceRef string) ([]float32, error) {
	if err := os.MkdirAll(c.procDir, 0755); err != nil {
		return nil, fmt.Errorf("[tts] 创建临时目录失败: %w", err)
	}
	tmpIn := filepath.Join(c.procDir, uuid.NewString()+".wav")
	tmpOut := filepath.Join(c.procDir, uuid.NewString()+".wav")
	defer os.Remove(tmpIn)
	defer os.Remove(tmpOut)

	samples, err := model.Synthesize(ctx, req)
	if err != nil {
		return nil, fmt.Errorf("[tts] %s 推理失败: %w: %w", engine, ErrInference, err)
	}
	if len(samples) == 0 {
		return nil, emptyWaveform(engine)
	}
	rate := model.SampleRate()
	if err := audio.WriteWAV(tmpIn, samples, rate); err != nil {
		return nil, err
	}

	semitones, _ := c.semitones.GetOrCompute(voiceRef, func() (int, error) {
		cloneGender := c.classify(voiceRef)
		builtinGender := c.classify(tmpIn)
		logger.Infof("[tts] 克隆音色: %s，内置音色: %s", cloneGender, builtinGender)
		return semitoneOffset(cloneGender, builtinGender), nil
	})

	source := tmpIn
	if semitones != 0 && c.deps.Shifter != nil {
		logger.Debugf("[tts] 内置音色变调 %+d 半音", semitones)
		if err := c.deps.Shifter.Shift(ctx, tmpIn, tmpOut, semitones, rate); err != nil {
			metrics.RecordExternalFailure("sox")
			logger.Warnf("[tts] 变调失败，使用原始音频继续: %v", fmt.Errorf("%w: %w", ErrExternalTool, err))
		} else {
			source = tmpOut
		}
	}

	converted, err := vc.Convert(ctx, source, voiceRef)
	if err != nil {
		return nil, fmt.Errorf("[tts] 音色转换失败: %w: %w", ErrInference, err)
	}
	if len(converted) == 0 {
		return nil, emptyWaveform(engine)
	}
	return converted, nil
}

func (c *cloner) classify(path string) voice.Gender {
	if c.deps.Classifier == nil {
		return voice.Undetermined
	}
	g, err := c.deps.Classifier.Classify(path)
	if err != nil {
		logger.Warnf("[tts] 性别分类失败 %s: %v", path, err)
		return voice.Undetermined
	}
	return g
}
