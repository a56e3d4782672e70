package command

import (
	"context"
	"fmt"
	"sync"

	"github.com/iabetor/narrator/internal/logger"
	"github.com/iabetor/narrator/internal/runtime"
)

// Loader 为每个加载的模型启动一个推理进程。
type Loader struct {
	command string
	args    []string
	workDir string

	mu   sync.Mutex
	live map[*worker]struct{}
}

// NewLoader 创建 Loader，workDir 用于存放临时输出的 WAV 文件。
func NewLoader(command string, args []string, workDir string) *Loader {
	return &Loader{
		command: command,
		args:    args,
		workDir: workDir,
		live:    make(map[*worker]struct{}),
	}
}

func (l *Loader) load(ctx context.Context, req request) (*worker, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	w, err := startWorker(l.command, l.args, l.workDir)
	if err != nil {
		return nil, err
	}

	resp, err := w.call(req)
	if err != nil {
		w.Close()
		return nil, fmt.Errorf("[runtime] 加载 %s 失败: %w", req.Kind, err)
	}
	w.sampleRate = resp.SampleRate
	w.onClose = l.forget

	l.mu.Lock()
	l.live[w] = struct{}{}
	l.mu.Unlock()
	return w, nil
}

func (l *Loader) forget(w *worker) {
	l.mu.Lock()
	delete(l.live, w)
	l.mu.Unlock()
}

// Live 返回当前存活的推理进程数量。
func (l *Loader) Live() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.live)
}

// LoadAPI 加载 API 式合成模型。
func (l *Loader) LoadAPI(ctx context.Context, model, device string) (runtime.Synthesizer, error) {
	w, err := l.load(ctx, request{Op: "load", Kind: "api", Model: model, Device: device})
	if err != nil {
		return nil, err
	}
	return &apiModel{w}, nil
}

// LoadCheckpoint 加载检查点模型。
func (l *Loader) LoadCheckpoint(ctx context.Context, files runtime.CheckpointFiles, device string) (runtime.Checkpoint, error) {
	w, err := l.load(ctx, request{Op: "load", Kind: "checkpoint", Files: &files, Device: device})
	if err != nil {
		return nil, err
	}
	return &checkpointModel{w}, nil
}

// LoadVoiceConversion 加载音色转换模型。
func (l *Loader) LoadVoiceConversion(ctx context.Context, model, device string) (runtime.VoiceConverter, error) {
	w, err := l.load(ctx, request{Op: "load", Kind: "vc", Model: model, Device: device})
	if err != nil {
		return nil, err
	}
	return &vcModel{w}, nil
}

// ReleaseDeviceMemory 通知所有存活的推理进程回收空闲显存。
func (l *Loader) ReleaseDeviceMemory(device string) {
	l.mu.Lock()
	workers := make([]*worker, 0, len(l.live))
	for w := range l.live {
		workers = append(workers, w)
	}
	l.mu.Unlock()

	for _, w := range workers {
		if _, err := w.call(request{Op: "release", Device: device}); err != nil {
			logger.Warnf("[runtime] 回收显存失败: %v", err)
		}
	}
}

type apiModel struct{ *worker }

func (m *apiModel) Synthesize(ctx context.Context, req runtime.SpeechRequest) ([]float32, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return m.render(request{Op: "synthesize", Speech: &req})
}

type checkpointModel struct{ *worker }

func (m *checkpointModel) ConditioningLatents(ctx context.Context, refs []string) (runtime.Latents, error) {
	if err := ctx.Err(); err != nil {
		return runtime.Latents{}, err
	}
	resp, err := m.call(request{Op: "latents", Refs: refs})
	if err != nil {
		return runtime.Latents{}, err
	}
	if resp.Latents == nil {
		return runtime.Latents{}, fmt.Errorf("%w: latents 响应为空", ErrWorker)
	}
	return *resp.Latents, nil
}

func (m *checkpointModel) BuiltinLatents(ctx context.Context, name string) (runtime.Latents, bool, error) {
	if err := ctx.Err(); err != nil {
		return runtime.Latents{}, false, err
	}
	resp, err := m.call(request{Op: "builtin_latents", Name: name})
	if err != nil {
		return runtime.Latents{}, false, err
	}
	if !resp.Found || resp.Latents == nil {
		return runtime.Latents{}, false, nil
	}
	return *resp.Latents, true, nil
}

func (m *checkpointModel) Inference(ctx context.Context, req runtime.InferenceRequest) ([]float32, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return m.render(request{Op: "inference", Inference: &req})
}

type vcModel struct{ *worker }

func (m *vcModel) Convert(ctx context.Context, sourceWav, targetWav string) ([]float32, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return m.render(request{Op: "convert", Source: sourceWav, Target: targetWav})
}
