// Package tts 实现五种合成后端的引擎适配器。
//
// 每个适配器负责通过模型缓存加载自己的模型（以及需要时配对的音色转换模型），
// 并把一个非空文本片段合成为单声道波形。适配器在编排器构造时按引擎类型选定一次。
package tts

import (
	"context"
	"fmt"
	"path/filepath"
	"regexp"

	"github.com/iabetor/narrator/internal/config"
	"github.com/iabetor/narrator/internal/hub"
	"github.com/iabetor/narrator/internal/logger"
	"github.com/iabetor/narrator/internal/modelcache"
	"github.com/iabetor/narrator/internal/runtime"
	"github.com/iabetor/narrator/internal/voice"
)

// Adapter 是一个合成后端。
type Adapter interface {
	// Engine 返回引擎标识。
	Engine() string
	// EnsureLoaded 确保模型已加载，可重复调用。
	EnsureLoaded(ctx context.Context) error
	// SynthesizeFragment 合成一个非空文本片段。
	SynthesizeFragment(ctx context.Context, text, voiceRef string, params runtime.Params) ([]float32, error)
	// SampleRate 返回本会话输出的采样率。
	SampleRate() int
	// TrimBuffer 返回静音裁剪时保留的缓冲时长（秒）。
	TrimBuffer() float64
	// RewritesPeriods 报告是否需要把句号改写为长破折号。
	RewritesPeriods() bool
	// Close 归还持有的模型引用。
	Close() error
}

// Normalizer 是外部音频规整滤镜。
type Normalizer interface {
	Normalize(ctx context.Context, input, output string, sampleRate int) error
}

// PitchShifter 是外部变调滤镜。
type PitchShifter interface {
	Shift(ctx context.Context, input, output string, semitones, sampleRate int) error
}

// GenderClassifier 是基于音高的性别分类器。
type GenderClassifier interface {
	Classify(path string) (voice.Gender, error)
}

// Deps 为适配器依赖的协作方，可在多个编排器之间共享。
type Deps struct {
	Cache      *modelcache.Cache
	Loader     runtime.Loader
	Hub        hub.Hub
	Catalog    *Catalog
	Normalizer Normalizer
	Shifter    PitchShifter
	Classifier GenderClassifier
}

// New 按会话配置的引擎类型创建适配器。
func New(cfg *config.Config, deps Deps) (Adapter, error) {
	if deps.Catalog == nil {
		deps.Catalog = DefaultCatalog()
	}
	if deps.Cache == nil || deps.Loader == nil {
		return nil, fmt.Errorf("[tts] 缺少模型缓存或运行时")
	}
	b := base{
		engine:  cfg.Session.Engine,
		session: cfg.Session,
		paths:   cfg.Paths,
		deps:    deps,
		handles: make(map[modelcache.Key]*modelcache.Handle),
	}

	switch cfg.Session.Engine {
	case config.EngineXTTS:
		return newXTTS(b), nil
	case config.EngineBark:
		return newBark(b), nil
	case config.EngineVITS:
		return newVITS(b), nil
	case config.EngineFairseq:
		return newFairseq(b), nil
	case config.EngineYourTTS:
		return newYourTTS(b), nil
	}
	return nil, fmt.Errorf("[tts] 引擎 %s: %w", cfg.Session.Engine, ErrUnsupported)
}

// ResolveVoice 返回本会话使用的参考音色：
// 会话音色 > 自定义模型目录下的 ref.wav > 目录中的默认音色（可为空）。
func ResolveVoice(cfg *config.Config, cat *Catalog) string {
	s := cfg.Session
	if s.Voice != "" {
		return s.Voice
	}
	if s.CustomModel != "" {
		return filepath.Join(cfg.Paths.CustomModelDir, s.Engine, s.CustomModel, "ref.wav")
	}
	spec, err := cat.Lookup(s.Engine, s.FineTuned)
	if err != nil {
		return ""
	}
	return voicePath(cfg.Paths.VoicesDir, spec.Voice)
}

// base 保存各适配器共用的会话信息与模型引用。
type base struct {
	engine  string
	session config.SessionConfig
	paths   config.PathsConfig
	deps    Deps
	handles map[modelcache.Key]*modelcache.Handle
}

func (b *base) Engine() string {
	return b.engine
}

func (b *base) RewritesPeriods() bool {
	return false
}

// acquire 通过模型缓存取得模型，已持有的引用直接复用。
func (b *base) acquire(ctx context.Context, key modelcache.Key, load modelcache.LoadFunc) (runtime.Model, error) {
	if h, ok := b.handles[key]; ok {
		return h.Model(), nil
	}
	h, err := b.deps.Cache.GetOrLoad(ctx, key, load)
	if err != nil {
		return nil, fmt.Errorf("[tts] %s: %w: %w", key, ErrLoad, err)
	}
	b.handles[key] = h
	return h.Model(), nil
}

func (b *base) Close() error {
	for key, h := range b.handles {
		h.Release()
		delete(b.handles, key)
	}
	return nil
}

// loadAPI 通过缓存加载 API 式模型。
func (b *base) loadAPI(ctx context.Context, key modelcache.Key, repo string) (runtime.Synthesizer, error) {
	m, err := b.acquire(ctx, key, func(ctx context.Context) (runtime.Model, error) {
		return b.deps.Loader.LoadAPI(ctx, repo, b.session.Device)
	})
	if err != nil {
		return nil, err
	}
	syn, ok := m.(runtime.Synthesizer)
	if !ok {
		return nil, fmt.Errorf("[tts] %s 不是合成模型: %w", key, ErrLoad)
	}
	return syn, nil
}

// loadVC 加载零样本音色转换模型，以模型名为独立键缓存。
func (b *base) loadVC(ctx context.Context) (runtime.VoiceConverter, error) {
	name := b.deps.Catalog.VCModel
	key := modelcache.Key{Engine: "vc", Variant: name}
	logger.Infof("[tts] 加载音色转换模型 %s ...", name)
	m, err := b.acquire(ctx, key, func(ctx context.Context) (runtime.Model, error) {
		return b.deps.Loader.LoadVoiceConversion(ctx, name, b.session.Device)
	})
	if err != nil {
		return nil, err
	}
	vc, ok := m.(runtime.VoiceConverter)
	if !ok {
		return nil, fmt.Errorf("[tts] %s 不是音色转换模型: %w", key, ErrLoad)
	}
	return vc, nil
}

func (b *base) variantKey() modelcache.Key {
	return modelcache.Key{Engine: b.engine, Variant: b.session.FineTuned}
}

// repoKey 用于按语言选仓库的引擎，同一变体的不同语言各占一个缓存条目。
func (b *base) repoKey(repo string) modelcache.Key {
	return modelcache.Key{Engine: b.engine, Variant: b.session.FineTuned + "/" + repo}
}

func (b *base) rejectCustomModel() error {
	if b.session.CustomModel != "" {
		return fmt.Errorf("[tts] %s 自定义模型 %s: %w", b.engine, b.session.CustomModel, ErrUnsupported)
	}
	return nil
}

var rateSuffix = regexp.MustCompile(`_(16000|24000)\.wav$`)

// speakerName 返回去掉采样率后缀的音色文件名。
func speakerName(voicePath string) string {
	name := filepath.Base(voicePath)
	if loc := rateSuffix.FindStringIndex(name); loc != nil {
		return name[:loc[0]]
	}
	return name
}

var rate24k = regexp.MustCompile(`_24000\.wav$`)

// to16k 把 24kHz 参考音频路径换成同名的 16kHz 版本。
func to16k(voicePath string) string {
	return rate24k.ReplaceAllString(voicePath, "_16000.wav")
}

func emptyWaveform(engine string) error {
	return fmt.Errorf("[tts] %s 推理结果为空: %w", engine, ErrInference)
}
