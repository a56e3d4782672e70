// Package runtime 定义合成引擎与外部机器学习推理运行时之间的契约。
//
// 运行时负责真正的模型构建、设备放置与推理；引擎适配器只通过这里的
// 接口与之交互，便于在 sherpa-onnx、外部推理进程与测试替身之间切换。
package runtime

import (
	"context"
	"errors"
)

// ErrUnsupported 表示当前运行时不支持该类模型或该操作。
var ErrUnsupported = errors.New("运行时不支持该操作")

// Model 是已初始化、可推理的模型句柄。Close 释放其原生资源。
type Model interface {
	Close() error
}

// Params 为引擎生成参数，nil 字段表示使用模型默认值。
type Params struct {
	Temperature         *float64 `json:"temperature,omitempty"`
	LengthPenalty       *float64 `json:"length_penalty,omitempty"`
	NumBeams            *int     `json:"num_beams,omitempty"`
	RepetitionPenalty   *float64 `json:"repetition_penalty,omitempty"`
	TopK                *int     `json:"top_k,omitempty"`
	TopP                *float64 `json:"top_p,omitempty"`
	Speed               *float64 `json:"speed,omitempty"`
	EnableTextSplitting *bool    `json:"enable_text_splitting,omitempty"`
}

// SpeechRequest 是一次 API 式合成请求。
type SpeechRequest struct {
	Text     string `json:"text"`
	Language string `json:"language,omitempty"`
	// Speaker 为内置说话人标识。
	Speaker string `json:"speaker,omitempty"`
	// SpeakerWav 为零样本克隆的参考音频。
	SpeakerWav string `json:"speaker_wav,omitempty"`
	// VoiceDir 为声学提示档案所在目录。
	VoiceDir string  `json:"voice_dir,omitempty"`
	TextTemp float64 `json:"text_temp,omitempty"`
	Params   Params  `json:"params"`
}

// Synthesizer 是以文本直接合成波形的模型。
type Synthesizer interface {
	Model
	Synthesize(ctx context.Context, req SpeechRequest) ([]float32, error)
	SampleRate() int
}

// Latents 为自回归模型的逐音色条件表示。
type Latents struct {
	GPTCond []float32 `json:"gpt_cond"`
	Speaker []float32 `json:"speaker"`
}

// Empty 判断条件表示是否为空。
func (l Latents) Empty() bool {
	return len(l.GPTCond) == 0 && len(l.Speaker) == 0
}

// CheckpointFiles 为检查点模型所需的本地文件。
type CheckpointFiles struct {
	Model    string `json:"model"`
	Config   string `json:"config"`
	Vocab    string `json:"vocab"`
	Speakers string `json:"speakers,omitempty"`
}

// InferenceRequest 是一次检查点模型推理请求。
type InferenceRequest struct {
	Text     string  `json:"text"`
	Language string  `json:"language"`
	Latents  Latents `json:"latents"`
	Params   Params  `json:"params"`
}

// Checkpoint 是基于条件表示推理的自回归多语种模型。
type Checkpoint interface {
	Model
	ConditioningLatents(ctx context.Context, refs []string) (Latents, error)
	// BuiltinLatents 返回内置说话人的条件表示。
	BuiltinLatents(ctx context.Context, name string) (Latents, bool, error)
	Inference(ctx context.Context, req InferenceRequest) ([]float32, error)
	SampleRate() int
}

// VoiceConverter 把源音频的音色转换为目标参考音色。
type VoiceConverter interface {
	Model
	Convert(ctx context.Context, sourceWav, targetWav string) ([]float32, error)
	SampleRate() int
}

// Loader 构建模型并放置到目标设备，调用可能阻塞数秒到数分钟。
type Loader interface {
	LoadAPI(ctx context.Context, model, device string) (Synthesizer, error)
	LoadCheckpoint(ctx context.Context, files CheckpointFiles, device string) (Checkpoint, error)
	LoadVoiceConversion(ctx context.Context, model, device string) (VoiceConverter, error)
}

// DeviceReleaser 回收加速设备上的空闲显存。
type DeviceReleaser interface {
	ReleaseDeviceMemory(device string)
}

// ReleaserFunc 让普通函数实现 DeviceReleaser。
type ReleaserFunc func(device string)

// ReleaseDeviceMemory 调用 f(device)。
func (f ReleaserFunc) ReleaseDeviceMemory(device string) { f(device) }
