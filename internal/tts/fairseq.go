package tts

import (
	"context"
	"fmt"
	"strings"

	"github.com/iabetor/narrator/internal/config"
	"github.com/iabetor/narrator/internal/logger"
	"github.com/iabetor/narrator/internal/runtime"
)

const (
	fairseqTrimBuffer = 0.001
	fairseqSampleRate = 16000
)

// fairseq 为逐语言的合成管线，克隆流程与 vits 相同。
type fairseq struct {
	base
	model  runtime.Synthesizer
	vc     runtime.VoiceConverter
	cloner *cloner
}

func newFairseq(b base) *fairseq {
	return &fairseq{base: b, cloner: newCloner(b.deps, b.paths.VoicesDir)}
}

func (f *fairseq) TrimBuffer() float64   { return fairseqTrimBuffer }
func (f *fairseq) RewritesPeriods() bool { return true }

func (f *fairseq) SampleRate() int {
	if spec, err := f.deps.Catalog.Lookup(config.EngineFairseq, f.session.FineTuned); err == nil && spec.SampleRate > 0 {
		return spec.SampleRate
	}
	return fairseqSampleRate
}

func (f *fairseq) EnsureLoaded(ctx context.Context) error {
	if f.model != nil && (f.session.Voice == "" || f.vc != nil) {
		return nil
	}
	if err := f.rejectCustomModel(); err != nil {
		return err
	}
	spec, err := f.deps.Catalog.Lookup(config.EngineFairseq, f.session.FineTuned)
	if err != nil {
		return err
	}

	if f.model == nil {
		repo := strings.ReplaceAll(spec.Repo, "[lang]", f.session.Language)
		logger.Infof("[tts] 加载 FAIRSEQ 模型 %s，可能需要一段时间...", repo)
		model, err := f.loadAPI(ctx, f.repoKey(repo), repo)
		if err != nil {
			return err
		}
		f.model = model
	}

	if f.session.Voice != "" {
		vc, err := f.loadVC(ctx)
		if err != nil {
			return err
		}
		f.vc = vc
	}
	return nil
}

func (f *fairseq) SynthesizeFragment(ctx context.Context, text, voiceRef string, params runtime.Params) ([]float32, error) {
	if f.model == nil {
		return nil, fmt.Errorf("[tts] fairseq 模型未加载: %w", ErrLoad)
	}
	req := runtime.SpeechRequest{Text: text, Params: params}

	if voiceRef != "" && f.vc != nil {
		return f.cloner.clone(ctx, f.engine, f.model, f.vc, req, to16k(voiceRef))
	}

	samples, err := f.model.Synthesize(ctx, req)
	if err != nil {
		return nil, fmt.Errorf("[tts] fairseq 推理失败: %w: %w", ErrInference, err)
	}
	if len(samples) == 0 {
		return nil, emptyWaveform(f.engine)
	}
	return samples, nil
}
