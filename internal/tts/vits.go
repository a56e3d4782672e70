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
	vitsTrimBuffer = 0.001
	// vitsCloneRate 为启用音色转换后的输出采样率。
	vitsCloneRate = 16000
)

// vits 按语言选择检查点，可选地经过音色转换克隆参考音色。
type vits struct {
	base
	model   runtime.Synthesizer
	vc      runtime.VoiceConverter
	cloner  *cloner
	speaker string
}

func newVITS(b base) *vits {
	return &vits{base: b, cloner: newCloner(b.deps, b.paths.VoicesDir)}
}

func (v *vits) TrimBuffer() float64 { return vitsTrimBuffer }

func (v *vits) SampleRate() int {
	if v.session.Voice != "" {
		return vitsCloneRate
	}
	if spec, err := v.deps.Catalog.Lookup(config.EngineVITS, v.session.FineTuned); err == nil && spec.SampleRate > 0 {
		return spec.SampleRate
	}
	if v.model != nil {
		return v.model.SampleRate()
	}
	return 22050
}

// selectCheckpoint 先按 ISO 639-1 再按 ISO 639-3 代码匹配语言分组，返回仓库标识与分组名。
func selectCheckpoint(spec ModelSpec, iso1, iso3 string) (repo, bucket string, err error) {
	for _, code := range []string{iso1, iso3} {
		if code == "" {
			continue
		}
		for _, b := range spec.Buckets {
			if contains(b.Languages, code) {
				repo = strings.NewReplacer("[lang_iso1]", code, "[xxx]", b.Name).Replace(spec.Repo)
				return repo, b.Name, nil
			}
		}
	}
	return "", "", fmt.Errorf("[tts] vits 没有 %s 的检查点: %w", iso3, ErrCheckpointNotFound)
}

// builtinSpeaker 返回多说话人检查点的固定说话人。
func builtinSpeaker(spec ModelSpec, iso1, iso3 string) string {
	for _, b := range spec.Buckets {
		if !contains(b.Languages, iso3) && !contains(b.Languages, iso1) {
			continue
		}
		switch {
		case iso3 == "eng" && b.Name == "vctk/vits":
			return "p262"
		case iso3 == "cat" && b.Name == "custom/vits":
			return "09901"
		}
	}
	return ""
}

func contains(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}

func (v *vits) EnsureLoaded(ctx context.Context) error {
	if v.model != nil && (v.session.Voice == "" || v.vc != nil) {
		return nil
	}
	if err := v.rejectCustomModel(); err != nil {
		return err
	}
	spec, err := v.deps.Catalog.Lookup(config.EngineVITS, v.session.FineTuned)
	if err != nil {
		return err
	}
	repo, _, err := selectCheckpoint(spec, v.session.LanguageISO1, v.session.Language)
	if err != nil {
		return err
	}

	if v.model == nil {
		logger.Infof("[tts] 加载 VITS 模型 %s，可能需要一段时间...", repo)
		model, err := v.loadAPI(ctx, v.repoKey(repo), repo)
		if err != nil {
			return err
		}
		v.model = model
		v.speaker = builtinSpeaker(spec, v.session.LanguageISO1, v.session.Language)
	}

	if v.session.Voice != "" {
		vc, err := v.loadVC(ctx)
		if err != nil {
			return err
		}
		v.vc = vc
	}
	return nil
}

func (v *vits) SynthesizeFragment(ctx context.Context, text, voiceRef string, params runtime.Params) ([]float32, error) {
	if v.model == nil {
		return nil, fmt.Errorf("[tts] vits 模型未加载: %w", ErrLoad)
	}
	req := runtime.SpeechRequest{Text: text, Speaker: v.speaker, Params: params}

	if voiceRef != "" && v.vc != nil {
		return v.cloner.clone(ctx, v.engine, v.model, v.vc, req, voiceRef)
	}

	samples, err := v.model.Synthesize(ctx, req)
	if err != nil {
		return nil, fmt.Errorf("[tts] vits 推理失败: %w: %w", ErrInference, err)
	}
	if len(samples) == 0 {
		return nil, emptyWaveform(v.engine)
	}
	return samples, nil
}
