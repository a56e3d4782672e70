package tts

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/iabetor/narrator/internal/config"
	"github.com/iabetor/narrator/internal/logger"
	"github.com/iabetor/narrator/internal/runtime"
)

const (
	barkTrimBuffer = 0.001
	barkTextTemp   = 0.2
	barkSampleRate = 24000
)

// bark 是基于提示的引擎，支持 [laughs]、[sighs]、♪ 等副语言标记。
// 每个说话人需要一份由参考音频生成的声学提示档案。
type bark struct {
	base
	model runtime.Synthesizer
}

func newBark(b base) *bark {
	return &bark{base: b}
}

func (b *bark) TrimBuffer() float64 { return barkTrimBuffer }

func (b *bark) SampleRate() int {
	if spec, err := b.deps.Catalog.Lookup(config.EngineBark, b.session.FineTuned); err == nil && spec.SampleRate > 0 {
		return spec.SampleRate
	}
	return barkSampleRate
}

func (b *bark) EnsureLoaded(ctx context.Context) error {
	if b.model != nil {
		return nil
	}
	if err := b.rejectCustomModel(); err != nil {
		return err
	}
	spec, err := b.deps.Catalog.Lookup(config.EngineBark, b.session.FineTuned)
	if err != nil {
		return err
	}
	logger.Infof("[tts] 加载 Bark 模型 %s，可能需要一段时间...", spec.Repo)
	model, err := b.loadAPI(ctx, b.variantKey(), spec.Repo)
	if err != nil {
		return err
	}
	b.model = model
	return nil
}

func (b *bark) SynthesizeFragment(ctx context.Context, text, voiceRef string, params runtime.Params) ([]float32, error) {
	if b.model == nil {
		return nil, fmt.Errorf("[tts] bark 模型未加载: %w", ErrLoad)
	}
	if voiceRef == "" {
		voiceRef = voicePath(b.paths.VoicesDir, b.deps.Catalog.BarkVoice)
	}

	voiceDir := filepath.Join(filepath.Dir(voiceRef), "bark")
	speaker := speakerName(voiceRef)
	if err := b.ensurePrompt(voiceRef, voiceDir, speaker); err != nil {
		return nil, err
	}

	samples, err := b.model.Synthesize(ctx, runtime.SpeechRequest{
		Text:     text,
		Speaker:  speaker,
		VoiceDir: voiceDir,
		TextTemp: barkTextTemp,
		Params:   params,
	})
	if err != nil {
		return nil, fmt.Errorf("[tts] bark 推理失败: %w: %w", ErrInference, err)
	}
	if len(samples) == 0 {
		return nil, emptyWaveform(b.engine)
	}
	return samples, nil
}

// ensurePrompt 在档案缺失时从参考音频生成。
func (b *bark) ensurePrompt(voiceRef, voiceDir, speaker string) error {
	npz := filepath.Join(voiceDir, speaker, speaker+".npz")
	if _, err := os.Stat(npz); err == nil {
		return nil
	}
	logger.Infof("[tts] 生成声学提示档案: %s", npz)
	if err := writeNPZ(voiceRef, npz, b.SampleRate()); err != nil {
		return fmt.Errorf("[tts] 生成声学提示档案失败: %w: %w", ErrInference, err)
	}
	return nil
}
