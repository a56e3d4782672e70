package tts

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/iabetor/narrator/internal/config"
	"github.com/iabetor/narrator/internal/logger"
	"github.com/iabetor/narrator/internal/modelcache"
	"github.com/iabetor/narrator/internal/runtime"
)

const (
	xttsTrimBuffer  = 0.07
	xttsSampleRate  = 24000
	xttsSpeakerFile = "speakers_xtts.pth"
)

// xtts 是自回归多语种引擎，按参考音色计算并缓存条件表示。
type xtts struct {
	base
	ckpt    runtime.Checkpoint
	latents *VoiceState[runtime.Latents]

	localizeTried bool
	// aliases 记录本地化后替换的参考音色
	aliases map[string]string
}

func newXTTS(b base) *xtts {
	return &xtts{
		base:    b,
		latents: NewVoiceState[runtime.Latents](),
		aliases: make(map[string]string),
	}
}

func (x *xtts) TrimBuffer() float64   { return xttsTrimBuffer }
func (x *xtts) RewritesPeriods() bool { return true }

func (x *xtts) SampleRate() int {
	if spec, err := x.deps.Catalog.Lookup(config.EngineXTTS, x.session.FineTuned); err == nil && spec.SampleRate > 0 {
		return spec.SampleRate
	}
	return xttsSampleRate
}

func (x *xtts) EnsureLoaded(ctx context.Context) error {
	if x.ckpt != nil {
		return nil
	}

	if !x.localizeTried {
		x.localizeTried = true
		localized, err := x.localize(ctx)
		switch {
		case err != nil:
			logger.Warnf("[tts] 内置音色本地化失败，继续使用原参考音色: %v", err)
		case localized != "":
			x.aliases[x.session.Voice] = localized
			logger.Infof("[tts] 参考音色已本地化: %s", localized)
		}
	}

	key, files, err := x.checkpointFiles()
	if err != nil {
		return err
	}
	logger.Infof("[tts] 加载 XTTS 模型 %s，可能需要一段时间...", key)
	ckpt, err := x.loadCheckpoint(ctx, key, files)
	if err != nil {
		return err
	}
	x.ckpt = ckpt
	return nil
}

func (x *xtts) loadCheckpoint(ctx context.Context, key modelcache.Key, files runtime.CheckpointFiles) (runtime.Checkpoint, error) {
	m, err := x.acquire(ctx, key, func(ctx context.Context) (runtime.Model, error) {
		return x.deps.Loader.LoadCheckpoint(ctx, files, x.session.Device)
	})
	if err != nil {
		return nil, err
	}
	ckpt, ok := m.(runtime.Checkpoint)
	if !ok {
		return nil, fmt.Errorf("[tts] %s 不是检查点模型: %w", key, ErrLoad)
	}
	return ckpt, nil
}

// checkpointFiles 解析会话模型的检查点文件。
func (x *xtts) checkpointFiles() (modelcache.Key, runtime.CheckpointFiles, error) {
	if x.session.CustomModel != "" {
		key := modelcache.Key{Engine: config.EngineXTTS, Variant: x.session.CustomModel}
		dir := filepath.Join(x.paths.CustomModelDir, config.EngineXTTS, x.session.CustomModel)
		files := runtime.CheckpointFiles{
			Model:    filepath.Join(dir, "model.pth"),
			Config:   filepath.Join(dir, "config.json"),
			Vocab:    filepath.Join(dir, "vocab.json"),
			Speakers: x.speakersFile(),
		}
		for _, p := range []string{files.Model, files.Config, files.Vocab} {
			if _, err := os.Stat(p); err != nil {
				return key, files, fmt.Errorf("[tts] 自定义模型文件 %s 不存在: %w", p, ErrLoad)
			}
		}
		return key, files, nil
	}
	return x.hubCheckpoint(x.session.FineTuned)
}

func (x *xtts) hubCheckpoint(variant string) (modelcache.Key, runtime.CheckpointFiles, error) {
	key := modelcache.Key{Engine: config.EngineXTTS, Variant: variant}
	spec, err := x.deps.Catalog.Lookup(config.EngineXTTS, variant)
	if err != nil {
		return key, runtime.CheckpointFiles{}, err
	}
	sub := ""
	if variant != "internal" && spec.Sub != "" {
		sub = spec.Sub + "/"
	}
	paths, err := x.deps.Hub.Resolve(spec.Repo, sub+"model.pth", sub+"config.json", sub+"vocab.json")
	if err != nil {
		return key, runtime.CheckpointFiles{}, fmt.Errorf("[tts] %w: %w", ErrLoad, err)
	}
	return key, runtime.CheckpointFiles{
		Model:    paths[0],
		Config:   paths[1],
		Vocab:    paths[2],
		Speakers: x.speakersFile(),
	}, nil
}

// speakersFile 返回内置说话人表，所有 XTTS 变体共用 internal 仓库中的那份。
func (x *xtts) speakersFile() string {
	spec, err := x.deps.Catalog.Lookup(config.EngineXTTS, "internal")
	if err != nil {
		return ""
	}
	paths, err := x.deps.Hub.Resolve(spec.Repo, xttsSpeakerFile)
	if err != nil {
		logger.Debugf("[tts] 找不到 %s，内置说话人不可用", xttsSpeakerFile)
		return ""
	}
	return paths[0]
}

func (x *xtts) SynthesizeFragment(ctx context.Context, text, voiceRef string, params runtime.Params) ([]float32, error) {
	if x.ckpt == nil {
		return nil, fmt.Errorf("[tts] xtts 模型未加载: %w", ErrLoad)
	}
	if alias, ok := x.aliases[voiceRef]; ok {
		voiceRef = alias
	}
	if voiceRef == "" {
		return nil, fmt.Errorf("[tts] xtts 需要参考音色: %w", ErrInference)
	}

	latents, err := x.latents.GetOrCompute(voiceRef, func() (runtime.Latents, error) {
		logger.Infof("[tts] 计算说话人条件表示: %s", voiceRef)
		return x.computeLatents(ctx, x.ckpt, voiceRef)
	})
	if err != nil {
		return nil, err
	}

	samples, err := x.ckpt.Inference(ctx, runtime.InferenceRequest{
		Text:     text,
		Language: x.session.LanguageISO1,
		Latents:  latents,
		Params:   params,
	})
	if err != nil {
		return nil, fmt.Errorf("[tts] xtts 推理失败: %w: %w", ErrInference, err)
	}
	if len(samples) == 0 {
		return nil, emptyWaveform(x.engine)
	}
	return samples, nil
}

// computeLatents 内置说话人直接取表中的条件表示，其余从参考音频计算。
func (x *xtts) computeLatents(ctx context.Context, ckpt runtime.Checkpoint, voiceRef string) (runtime.Latents, error) {
	if x.deps.Catalog.IsXTTSBuiltin(voiceRef) {
		latents, ok, err := ckpt.BuiltinLatents(ctx, voiceRef)
		if err != nil {
			return runtime.Latents{}, fmt.Errorf("[tts] 读取内置说话人 %s 失败: %w: %w", voiceRef, ErrInference, err)
		}
		if !ok {
			return runtime.Latents{}, fmt.Errorf("[tts] 内置说话人 %s 不存在: %w", voiceRef, ErrInference)
		}
		return latents, nil
	}
	latents, err := ckpt.ConditioningLatents(ctx, []string{voiceRef})
	if err != nil {
		return runtime.Latents{}, fmt.Errorf("[tts] 计算条件表示失败: %w: %w", ErrInference, err)
	}
	if latents.Empty() {
		return runtime.Latents{}, fmt.Errorf("[tts] 条件表示为空: %w", ErrInference)
	}
	return latents, nil
}

// internalCheckpoint 供本地化流程使用，始终加载 internal 变体。
// 会话本身使用 internal 时沿用会话的引用；否则借用一个临时引用，调用方用完即调用 release。
func (x *xtts) internalCheckpoint(ctx context.Context) (ckpt runtime.Checkpoint, release func(), err error) {
	key, files, err := x.hubCheckpoint("internal")
	if err != nil {
		return nil, nil, err
	}
	if x.session.CustomModel == "" && x.session.FineTuned == "internal" {
		ckpt, err = x.loadCheckpoint(ctx, key, files)
		return ckpt, func() {}, err
	}

	h, err := x.deps.Cache.GetOrLoad(ctx, key, func(ctx context.Context) (runtime.Model, error) {
		return x.deps.Loader.LoadCheckpoint(ctx, files, x.session.Device)
	})
	if err != nil {
		return nil, nil, fmt.Errorf("[tts] %s: %w: %w", key, ErrLoad, err)
	}
	ckpt, ok := h.Model().(runtime.Checkpoint)
	if !ok {
		h.Release()
		return nil, nil, fmt.Errorf("[tts] %s 不是检查点模型: %w", key, ErrLoad)
	}
	return ckpt, h.Release, nil
}
