package tts

import (
	"context"
	"fmt"

	"github.com/iabetor/narrator/internal/config"
	"github.com/iabetor/narrator/internal/logger"
	"github.com/iabetor/narrator/internal/runtime"
)

const (
	yourTTSTrimBuffer = 0.005
	yourTTSSampleRate = 16000
)

// yourTTS 为多说话人多语种引擎，支持内置说话人或参考音频克隆。
type yourTTS struct {
	base
	model runtime.Synthesizer
}

func newYourTTS(b base) *yourTTS {
	return &yourTTS{base: b}
}

func (y *yourTTS) TrimBuffer() float64 { return yourTTSTrimBuffer }

func (y *yourTTS) SampleRate() int {
	if spec, err := y.deps.Catalog.Lookup(config.EngineYourTTS, y.session.FineTuned); err == nil && spec.SampleRate > 0 {
		return spec.SampleRate
	}
	return yourTTSSampleRate
}

// yourTTSLanguage 将 ISO 639-1 代码映射为模型支持的三种语言之一，默认 en。
func yourTTSLanguage(iso1 string) string {
	switch iso1 {
	case "fr":
		return "fr-fr"
	case "pt":
		return "pt-br"
	}
	return "en"
}

func (y *yourTTS) EnsureLoaded(ctx context.Context) error {
	if y.model != nil {
		return nil
	}
	if err := y.rejectCustomModel(); err != nil {
		return err
	}
	spec, err := y.deps.Catalog.Lookup(config.EngineYourTTS, y.session.FineTuned)
	if err != nil {
		return err
	}
	logger.Infof("[tts] 加载 YourTTS 模型 %s，可能需要一段时间...", spec.Repo)
	model, err := y.loadAPI(ctx, y.variantKey(), spec.Repo)
	if err != nil {
		return err
	}
	y.model = model
	return nil
}

func (y *yourTTS) SynthesizeFragment(ctx context.Context, text, voiceRef string, params runtime.Params) ([]float32, error) {
	if y.model == nil {
		return nil, fmt.Errorf("[tts] yourtts 模型未加载: %w", ErrLoad)
	}
	req := runtime.SpeechRequest{
		Text:     text,
		Language: yourTTSLanguage(y.session.LanguageISO1),
		Params:   params,
	}
	if voiceRef != "" {
		req.SpeakerWav = to16k(voiceRef)
	} else {
		req.Speaker = y.deps.Catalog.YourTTSSpeaker
	}

	samples, err := y.model.Synthesize(ctx, req)
	if err != nil {
		return nil, fmt.Errorf("[tts] yourtts 推理失败: %w: %w", ErrInference, err)
	}
	if len(samples) == 0 {
		return nil, emptyWaveform(y.engine)
	}
	return samples, nil
}
