package tts

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/iabetor/narrator/internal/audio"
	"github.com/iabetor/narrator/internal/config"
	"github.com/iabetor/narrator/internal/logger"
	"github.com/iabetor/narrator/internal/runtime"
)

// localizeSampleRates 为本地化参考音色规整输出的两个采样率。
var localizeSampleRates = []int{16000, 24000}

// localize 把英文内置音色用目标语言重新合成为参考样本并保存为音色资产。
// 返回本地化后的 24kHz 参考音频路径；不适用时返回空字符串。
func (x *xtts) localize(ctx context.Context) (string, error) {
	voiceRef := x.session.Voice
	lang := x.session.Language
	if voiceRef == "" || lang == "eng" || !x.deps.Catalog.SupportsXTTS(lang) {
		return "", nil
	}
	speaker := speakerName(voiceRef)
	builtin, ok := x.deps.Catalog.XTTSVoices[speaker]
	if !ok || strings.Contains(filepath.ToSlash(voiceRef), "/"+lang+"/") {
		return "", nil
	}

	if x.deps.Normalizer == nil {
		return "", fmt.Errorf("[tts] 未配置音频规整工具: %w", ErrExternalTool)
	}

	textFile := filepath.Join(x.paths.VoicesDir, lang, "default.txt")
	text, err := os.ReadFile(textFile)
	if err != nil {
		return "", fmt.Errorf("[tts] 找不到翻译后的参考文本 %s，参考音色保持英文: %w", textFile, err)
	}

	langDir := lang
	if lang == "con" {
		langDir = "con-"
	}
	slashed := filepath.ToSlash(voiceRef)
	if !strings.Contains(slashed, "/eng/") {
		return "", fmt.Errorf("[tts] 无法从 %s 推导本地化路径", voiceRef)
	}
	rawPath := filepath.FromSlash(strings.Replace(
		strings.Replace(slashed, "_24000.wav", ".wav", 1), "/eng/", "/"+langDir+"/", 1))

	logger.Infof("[tts] 将 XTTS 内置英文音色 %s 转换为 %s ...", speaker, lang)
	ckpt, release, err := x.internalCheckpoint(ctx)
	if err != nil {
		return "", err
	}
	defer release()
	latents, ok, err := ckpt.BuiltinLatents(ctx, builtin)
	if err != nil {
		return "", fmt.Errorf("[tts] 读取内置说话人 %s 失败: %w", builtin, err)
	}
	if !ok {
		return "", fmt.Errorf("[tts] 内置说话人 %s 不存在: %w", builtin, ErrInference)
	}

	samples, err := ckpt.Inference(ctx, runtime.InferenceRequest{
		Text:     string(text),
		Language: x.session.LanguageISO1,
		Latents:  latents,
		Params:   ParamsFrom(x.session.Generation),
	})
	if err != nil {
		return "", fmt.Errorf("[tts] 本地化推理失败: %w: %w", ErrInference, err)
	}
	if len(samples) == 0 {
		return "", emptyWaveform(x.engine)
	}

	if err := audio.WriteWAV(rawPath, samples, xttsSampleRate); err != nil {
		return "", err
	}
	defer os.Remove(rawPath)

	var result string
	barkDir := filepath.Join(filepath.Dir(filepath.Dir(rawPath)), "bark", speaker)
	for _, rate := range localizeSampleRates {
		out := strings.TrimSuffix(rawPath, ".wav") + fmt.Sprintf("_%d.wav", rate)
		if err := x.deps.Normalizer.Normalize(ctx, rawPath, out, rate); err != nil {
			return "", fmt.Errorf("[tts] 规整本地化音色失败: %w: %w", ErrExternalTool, err)
		}
		if err := writeNPZ(out, filepath.Join(barkDir, speaker+".npz"), rate); err != nil {
			return "", err
		}
		result = out
	}
	return result, nil
}

// ParamsFrom 把会话生成参数转换为运行时参数。
func ParamsFrom(g config.GenerationConfig) runtime.Params {
	return runtime.Params{
		Temperature:         g.Temperature,
		LengthPenalty:       g.LengthPenalty,
		NumBeams:            g.NumBeams,
		RepetitionPenalty:   g.RepetitionPenalty,
		TopK:                g.TopK,
		TopP:                g.TopP,
		Speed:               g.Speed,
		EnableTextSplitting: g.EnableTextSplitting,
	}
}
