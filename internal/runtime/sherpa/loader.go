// Package sherpa 使用 sherpa-onnx 离线合成 API 运行 VITS / Kokoro 类 ONNX 模型。
package sherpa

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"

	"github.com/iabetor/narrator/internal/hub"
	"github.com/iabetor/narrator/internal/logger"
	"github.com/iabetor/narrator/internal/runtime"
	sherpa "github.com/k2-fsa/sherpa-onnx-go/sherpa_onnx"
)

// Loader 从本地模型镜像加载 ONNX 合成模型。
type Loader struct {
	hub        *hub.LocalHub
	numThreads int
}

// NewLoader 创建 sherpa-onnx 加载器。
func NewLoader(h *hub.LocalHub, numThreads int) *Loader {
	if numThreads <= 0 {
		numThreads = 2
	}
	return &Loader{hub: h, numThreads: numThreads}
}

// modelFiles 为镜像目录中识别出的模型文件。
type modelFiles struct {
	model    string
	tokens   string
	lexicon  string
	dataDir  string
	voices   string
	speakers []string
}

// scanDir 识别目录中的模型文件，要求至少有一个 .onnx 和 tokens.txt。
func scanDir(dir string) (modelFiles, error) {
	var f modelFiles

	if p := filepath.Join(dir, "model.onnx"); exists(p) {
		f.model = p
	} else {
		matches, _ := filepath.Glob(filepath.Join(dir, "*.onnx"))
		if len(matches) == 0 {
			return f, fmt.Errorf("[sherpa] %s 中没有 .onnx 模型: %w", dir, hub.ErrNotFound)
		}
		f.model = matches[0]
	}

	f.tokens = filepath.Join(dir, "tokens.txt")
	if !exists(f.tokens) {
		return f, fmt.Errorf("[sherpa] %s 中缺少 tokens.txt: %w", dir, hub.ErrNotFound)
	}
	if p := filepath.Join(dir, "lexicon.txt"); exists(p) {
		f.lexicon = p
	}
	if p := filepath.Join(dir, "espeak-ng-data"); exists(p) {
		f.dataDir = p
	}
	if p := filepath.Join(dir, "voices.bin"); exists(p) {
		f.voices = p
	}
	if p := filepath.Join(dir, "speakers.txt"); exists(p) {
		names, err := readSpeakers(p)
		if err != nil {
			return f, err
		}
		f.speakers = names
	}
	return f, nil
}

func exists(p string) bool {
	_, err := os.Stat(p)
	return err == nil
}

// readSpeakers 读取说话人表，第 n 行（从 0 计）对应说话人 id n。
func readSpeakers(path string) ([]string, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("[sherpa] 打开说话人表失败: %w", err)
	}
	defer file.Close()

	var names []string
	scanner := bufio.NewScanner(file)
	for scanner.Scan() {
		names = append(names, strings.TrimSpace(scanner.Text()))
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("[sherpa] 读取说话人表失败: %w", err)
	}
	return names, nil
}

// speakerID 将说话人名称或数字映射为说话人 id，空字符串为 0。
func speakerID(speaker string, names []string) (int, error) {
	speaker = strings.TrimSpace(speaker)
	if speaker == "" {
		return 0, nil
	}
	for i, name := range names {
		if name == speaker {
			return i, nil
		}
	}
	if n, err := strconv.Atoi(strings.TrimPrefix(speaker, "p")); err == nil && n >= 0 && len(names) == 0 {
		return n, nil
	}
	return 0, fmt.Errorf("[sherpa] 未知的说话人: %s", speaker)
}

func provider(device string) string {
	if device == "cuda" {
		return "cuda"
	}
	return "cpu"
}

// LoadAPI 加载 repo 对应目录中的 ONNX 模型。
func (l *Loader) LoadAPI(ctx context.Context, model, device string) (runtime.Synthesizer, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	dir, err := l.hub.Dir(model)
	if err != nil {
		return nil, err
	}
	files, err := scanDir(dir)
	if err != nil {
		return nil, err
	}

	config := &sherpa.OfflineTtsConfig{}
	config.Model.NumThreads = l.numThreads
	config.Model.Provider = provider(device)
	if files.voices != "" {
		config.Model.Kokoro.Model = files.model
		config.Model.Kokoro.Voices = files.voices
		config.Model.Kokoro.Tokens = files.tokens
		config.Model.Kokoro.DataDir = files.dataDir
	} else {
		config.Model.Vits.Model = files.model
		config.Model.Vits.Lexicon = files.lexicon
		config.Model.Vits.Tokens = files.tokens
		config.Model.Vits.DataDir = files.dataDir
	}

	impl := sherpa.NewOfflineTts(config)
	if impl == nil {
		return nil, fmt.Errorf("[sherpa] 创建离线合成器失败，模型路径: %s", files.model)
	}

	logger.Infof("[sherpa] 合成模型已加载 (model=%s, speakers=%d, sampleRate=%d)",
		model, impl.NumSpeakers(), impl.SampleRate())
	return &synthesizer{impl: impl, speakers: files.speakers}, nil
}

// LoadCheckpoint 不支持：检查点模型需要外部推理进程。
func (l *Loader) LoadCheckpoint(ctx context.Context, files runtime.CheckpointFiles, device string) (runtime.Checkpoint, error) {
	return nil, fmt.Errorf("[sherpa] 检查点模型 %s: %w", files.Model, runtime.ErrUnsupported)
}

// LoadVoiceConversion 不支持。
func (l *Loader) LoadVoiceConversion(ctx context.Context, model, device string) (runtime.VoiceConverter, error) {
	return nil, fmt.Errorf("[sherpa] 音色转换模型 %s: %w", model, runtime.ErrUnsupported)
}

type synthesizer struct {
	mu       sync.Mutex
	impl     *sherpa.OfflineTts
	speakers []string
}

func (s *synthesizer) Synthesize(ctx context.Context, req runtime.SpeechRequest) ([]float32, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if req.SpeakerWav != "" {
		return nil, fmt.Errorf("[sherpa] 参考音频克隆: %w", runtime.ErrUnsupported)
	}
	sid, err := speakerID(req.Speaker, s.speakers)
	if err != nil {
		return nil, err
	}
	speed := float32(1.0)
	if req.Params.Speed != nil {
		speed = float32(*req.Params.Speed)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.impl == nil {
		return nil, fmt.Errorf("[sherpa] 合成器已关闭")
	}
	audio := s.impl.Generate(req.Text, sid, speed)
	if audio == nil || len(audio.Samples) == 0 {
		return nil, fmt.Errorf("[sherpa] 合成结果为空")
	}
	return audio.Samples, nil
}

func (s *synthesizer) SampleRate() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.impl == nil {
		return 0
	}
	return s.impl.SampleRate()
}

func (s *synthesizer) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.impl != nil {
		sherpa.DeleteOfflineTts(s.impl)
		s.impl = nil
	}
	return nil
}
