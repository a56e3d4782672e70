// Package orchestrator 按句驱动合成流程：拆分、逐片段合成、拼接、写文件与字幕。
package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/iabetor/narrator/internal/audio"
	"github.com/iabetor/narrator/internal/config"
	"github.com/iabetor/narrator/internal/logger"
	"github.com/iabetor/narrator/internal/metrics"
	"github.com/iabetor/narrator/internal/runtime"
	"github.com/iabetor/narrator/internal/subtitle"
	"github.com/iabetor/narrator/internal/tts"
)

// AudioFormat 为逐句音频文件的扩展名。
const AudioFormat = "wav"

var (
	// ErrOutput 表示逐句音频或字幕没有写成功。
	ErrOutput = errors.New("输出文件写入失败")
	// ErrNoAudio 表示本句没有产出任何可用音频。
	ErrNoAudio = errors.New("没有可用音频")
)

// Orchestrator 持有一个会话的引擎选择与时间轴状态，不可在多个 goroutine 间共享。
type Orchestrator struct {
	cfg       *config.Config
	adapter   tts.Adapter
	subtitles *subtitle.Writer
	releaser  runtime.DeviceReleaser
	voice     string
	params    runtime.Params
	state     *StateMachine
}

// New 基于共享组件创建编排器，引擎适配器在此选定且之后不变。
func New(svc *Services) (*Orchestrator, error) {
	cfg := svc.Config
	adapter, err := tts.New(cfg, svc.Deps)
	if err != nil {
		return nil, err
	}
	subs, err := subtitle.NewWriter(cfg.Paths.VTTPath())
	if err != nil {
		adapter.Close()
		return nil, err
	}
	catalog := svc.Deps.Catalog
	if catalog == nil {
		catalog = tts.DefaultCatalog()
	}

	// MP3 参考音频先解码为 WAV
	voice, err := audio.EnsureWAV(tts.ResolveVoice(cfg, catalog), filepath.Join(cfg.Paths.VoicesDir, "proc"))
	if err != nil {
		adapter.Close()
		return nil, fmt.Errorf("[orchestrator] 参考音频不可用: %w", err)
	}

	o := &Orchestrator{
		cfg:       cfg,
		adapter:   adapter,
		subtitles: subs,
		releaser:  svc.Releaser,
		voice:     voice,
		params:    tts.ParamsFrom(cfg.Session.Generation),
		state:     NewStateMachine(),
	}
	logger.Infof("[orchestrator] 引擎=%s 语言=%s 设备=%s 音色=%q",
		adapter.Engine(), cfg.Session.Language, cfg.Session.Device, o.voice)
	return o, nil
}

// State 返回当前处理阶段。
func (o *Orchestrator) State() State {
	return o.state.Current()
}

// Subtitles 返回字幕写入器。
func (o *Orchestrator) Subtitles() *subtitle.Writer {
	return o.subtitles
}

// SentencePath 返回逐句音频文件路径。
func (o *Orchestrator) SentencePath(name string) string {
	return filepath.Join(o.cfg.Paths.SentencesDir, name+"."+AudioFormat)
}

// Convert 合成一句话并写入 <sentences_dir>/<name>.wav，成功后追加字幕。
// 返回 nil 表示音频文件与字幕均已写入。
func (o *Orchestrator) Convert(ctx context.Context, name, sentence string) (err error) {
	if err := ctx.Err(); err != nil {
		return err
	}
	o.state.Reset()
	engine := o.adapter.Engine()
	seconds := 0.0
	defer func() {
		if err != nil {
			o.state.Transition(StateFailed)
			logger.Errorf("[orchestrator] 第 %s 句失败: %v", name, err)
		}
		metrics.RecordSentence(engine, err == nil, seconds)
		if o.cfg.Session.Device == config.DeviceCUDA && o.releaser != nil {
			o.releaser.ReleaseDeviceMemory(o.cfg.Session.Device)
		}
	}()

	o.state.Transition(StateSplitting)
	parts, trim, caption := Split(sentence, o.adapter.RewritesPeriods())

	if err := o.adapter.EnsureLoaded(ctx); err != nil {
		return err
	}

	o.state.Transition(StateSynthesizing)
	units, err := o.synthesize(ctx, name, parts)
	if err != nil {
		return err
	}

	o.state.Transition(StateAssembling)
	rate := o.adapter.SampleRate()
	samples := audio.NewAssembler(rate).AssembleAndTrim(units, trim, o.adapter.TrimBuffer())
	if len(samples) == 0 {
		return fmt.Errorf("[orchestrator] 第 %s 句: %w", name, ErrNoAudio)
	}
	seconds = audio.Duration(len(samples), rate)

	o.state.Transition(StateWriting)
	if err := o.write(name, samples, rate); err != nil {
		return err
	}
	if _, err := o.subtitles.Append(caption, seconds); err != nil {
		return fmt.Errorf("[orchestrator] %w: %w", ErrOutput, err)
	}

	o.state.Transition(StateDone)
	logger.Infof("[orchestrator] 第 %s 句完成 (%v)", name, audio.DurationOf(samples, rate))
	return nil
}

// synthesize 逐片段合成，单个片段失败时以静音代替；全部失败则返回错误。
func (o *Orchestrator) synthesize(ctx context.Context, name string, parts []string) ([]audio.Part, error) {
	units := make([]audio.Part, 0, len(parts))
	spoken, failed := 0, 0
	var lastErr error

	for _, p := range parts {
		text := strings.TrimSpace(p)
		if text == "" {
			units = append(units, audio.Part{})
			continue
		}
		spoken++
		samples, err := o.adapter.SynthesizeFragment(ctx, text, o.voice, o.params)
		if err != nil {
			failed++
			lastErr = err
			metrics.RecordFragmentFailure(o.adapter.Engine())
			logger.Warnf("[orchestrator] 第 %s 句片段合成失败，以静音代替: %v", name, err)
			samples = nil
		}
		units = append(units, audio.Part{Text: text, Samples: samples})
	}

	if spoken > 0 && failed == spoken {
		return nil, fmt.Errorf("[orchestrator] 第 %s 句所有片段均失败: %w", name, lastErr)
	}
	return units, nil
}

func (o *Orchestrator) write(name string, samples []float32, rate int) error {
	path := o.SentencePath(name)
	if err := audio.WriteWAV(path, samples, rate); err != nil {
		return fmt.Errorf("[orchestrator] %w: %w", ErrOutput, err)
	}
	if _, err := os.Stat(path); err != nil {
		return fmt.Errorf("[orchestrator] 无法创建 %s: %w: %w", path, ErrOutput, err)
	}
	return nil
}

// ChunkName 返回第 number 句第 i 个分块的输出名：只有一个分块时为 <number>，否则为 <number>_<i>。
func ChunkName(number, i, total int) string {
	if total == 1 {
		return strconv.Itoa(number)
	}
	return fmt.Sprintf("%d_%d", number, i)
}

// ConvertChunks 依次转换同一序号下的多个分块，某块失败不影响后续分块。
func (o *Orchestrator) ConvertChunks(ctx context.Context, number int, chunks []string) error {
	var errs []error
	for i, chunk := range chunks {
		if err := ctx.Err(); err != nil {
			errs = append(errs, err)
			break
		}
		if err := o.Convert(ctx, ChunkName(number, i, len(chunks)), chunk); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Close 归还模型引用。
func (o *Orchestrator) Close() error {
	return o.adapter.Close()
}
