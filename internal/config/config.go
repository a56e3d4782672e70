package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"
)

// 支持的合成引擎。
const (
	EngineXTTS    = "xtts"
	EngineBark    = "bark"
	EngineVITS    = "vits"
	EngineFairseq = "fairseq"
	EngineYourTTS = "yourtts"
)

// 支持的推理设备。
const (
	DeviceCPU  = "cpu"
	DeviceCUDA = "cuda"
	DeviceMPS  = "mps"
)

// Config 是 narrator 的顶层配置结构。
type Config struct {
	Session  SessionConfig  `yaml:"session"`
	Paths    PathsConfig    `yaml:"paths"`
	Models   ModelsConfig   `yaml:"models"`
	Runtime  RuntimeConfig  `yaml:"runtime"`
	Tools    ToolsConfig    `yaml:"tools"`
	Log      LogConfig      `yaml:"log"`
	Progress ProgressConfig `yaml:"progress"`
	Metrics  MetricsConfig  `yaml:"metrics"`
}

// SessionConfig 描述一次转换会话，对编排器只读。
type SessionConfig struct {
	// Engine 为 xtts / bark / vits / fairseq / yourtts 之一，会话期间不可变。
	Engine string `yaml:"engine"`
	// FineTuned 为模型目录中的变体名，默认 internal。
	FineTuned string `yaml:"fine_tuned"`
	// CustomModel 非空时从 Paths.CustomModelDir 加载自定义模型。
	CustomModel string `yaml:"custom_model"`
	// Language 为 ISO 639-3 语言代码，如 eng、fra。
	Language string `yaml:"language"`
	// LanguageISO1 为 ISO 639-1 代码，为空时根据 Language 推导。
	LanguageISO1 string `yaml:"language_iso1"`
	Device       string `yaml:"device"`
	// Voice 为参考音频路径或内置音色名，可为空。
	Voice string `yaml:"voice"`

	Generation GenerationConfig `yaml:"generation"`
}

// GenerationConfig 引擎生成参数，nil 表示使用模型默认值。
type GenerationConfig struct {
	Temperature         *float64 `yaml:"temperature"`
	LengthPenalty       *float64 `yaml:"length_penalty"`
	NumBeams            *int     `yaml:"num_beams"`
	RepetitionPenalty   *float64 `yaml:"repetition_penalty"`
	TopK                *int     `yaml:"top_k"`
	TopP                *float64 `yaml:"top_p"`
	Speed               *float64 `yaml:"speed"`
	EnableTextSplitting *bool    `yaml:"enable_text_splitting"`
}

// PathsConfig 文件路径配置。
type PathsConfig struct {
	VoicesDir      string `yaml:"voices_dir"`
	ModelsDir      string `yaml:"models_dir"`
	CustomModelDir string `yaml:"custom_model_dir"`
	// SentencesDir 存放逐句音频文件。
	SentencesDir string `yaml:"sentences_dir"`
	// FinalName 为最终成品文件名，字幕文件与其同名、扩展名为 .vtt。
	FinalName string `yaml:"final_name"`
}

// ModelsConfig 模型缓存配置。
type ModelsConfig struct {
	// MaxInMemory 同时驻留的模型数量上限。
	MaxInMemory int `yaml:"max_in_memory"`
	// CatalogFile 可选的模型目录覆盖文件（YAML）。
	CatalogFile string `yaml:"catalog_file"`
}

// RuntimeConfig 推理后端配置。
type RuntimeConfig struct {
	// Backend 为 command（外部推理进程）或 sherpa（sherpa-onnx 离线推理）。
	Backend    string   `yaml:"backend"`
	Command    string   `yaml:"command"`
	Args       []string `yaml:"args"`
	NumThreads int      `yaml:"num_threads"`
}

// ToolsConfig 外部音频工具配置。
type ToolsConfig struct {
	FFmpeg string `yaml:"ffmpeg"`
	Sox    string `yaml:"sox"`
}

// LogConfig 日志配置。
type LogConfig struct {
	Level string `yaml:"level"`
	File  string `yaml:"file"`
}

// ProgressConfig 断点续转进度库配置。
type ProgressConfig struct {
	DBPath string `yaml:"db_path"`
}

// MetricsConfig 指标服务配置，Listen 为空则不启动。
type MetricsConfig struct {
	Listen string `yaml:"listen"`
}

// Load 读取 YAML 配置文件并返回 Config。
// 支持 ${VAR_NAME} 形式的环境变量展开。
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("读取配置文件 %s 失败: %w", path, err)
	}

	expanded := os.Expand(string(data), os.Getenv)

	cfg := &Config{}
	if err := yaml.Unmarshal([]byte(expanded), cfg); err != nil {
		return nil, fmt.Errorf("解析配置文件 %s 失败: %w", path, err)
	}

	setDefaults(cfg)
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// setDefaults 为未设置的配置项填充默认值。
func setDefaults(cfg *Config) {
	s := &cfg.Session
	if s.Engine == "" {
		s.Engine = EngineXTTS
	}
	s.Engine = strings.ToLower(s.Engine)
	if s.FineTuned == "" {
		s.FineTuned = "internal"
	}
	if s.Language == "" {
		s.Language = "eng"
	}
	if s.LanguageISO1 == "" {
		s.LanguageISO1 = ISO1(s.Language)
	}
	if s.Device == "" {
		s.Device = DeviceCPU
	}

	home, _ := os.UserHomeDir()
	base := "./.narrator"
	if home != "" {
		base = filepath.Join(home, ".narrator")
	}
	p := &cfg.Paths
	p.VoicesDir = expandHome(orDefault(p.VoicesDir, "./voices"), home)
	p.ModelsDir = expandHome(orDefault(p.ModelsDir, filepath.Join(base, "models")), home)
	p.CustomModelDir = expandHome(orDefault(p.CustomModelDir, filepath.Join(base, "custom")), home)
	p.SentencesDir = expandHome(orDefault(p.SentencesDir, "./out/sentences"), home)
	p.FinalName = expandHome(orDefault(p.FinalName, "./out/book.m4b"), home)

	if cfg.Models.MaxInMemory <= 0 {
		cfg.Models.MaxInMemory = 2
	}
	if cfg.Runtime.Backend == "" {
		cfg.Runtime.Backend = "command"
	}
	if cfg.Runtime.NumThreads <= 0 {
		cfg.Runtime.NumThreads = 2
	}
	if cfg.Tools.FFmpeg == "" {
		cfg.Tools.FFmpeg = "ffmpeg"
	}
	if cfg.Tools.Sox == "" {
		cfg.Tools.Sox = "sox"
	}
	if cfg.Log.Level == "" {
		cfg.Log.Level = "info"
	}
	cfg.Log.File = expandHome(cfg.Log.File, home)
	cfg.Progress.DBPath = expandHome(orDefault(cfg.Progress.DBPath, filepath.Join(base, "progress.db")), home)
}

// Validate 校验配置取值。
func (c *Config) Validate() error {
	switch c.Session.Engine {
	case EngineXTTS, EngineBark, EngineVITS, EngineFairseq, EngineYourTTS:
	default:
		return fmt.Errorf("未知的合成引擎: %s", c.Session.Engine)
	}
	switch c.Session.Device {
	case DeviceCPU, DeviceCUDA, DeviceMPS:
	default:
		return fmt.Errorf("未知的推理设备: %s", c.Session.Device)
	}
	switch c.Runtime.Backend {
	case "command":
		if c.Runtime.Command == "" {
			return fmt.Errorf("runtime.backend=command 需要配置 runtime.command")
		}
	case "sherpa":
	default:
		return fmt.Errorf("未知的推理后端: %s", c.Runtime.Backend)
	}
	return nil
}

// VTTPath 返回与成品文件同名的字幕文件路径。
func (p PathsConfig) VTTPath() string {
	return strings.TrimSuffix(p.FinalName, filepath.Ext(p.FinalName)) + ".vtt"
}

func orDefault(v, def string) string {
	if v == "" {
		return def
	}
	return v
}

// expandHome 展开 ~/ 前缀，Go 不会自动处理。
func expandHome(path, home string) string {
	if home != "" && strings.HasPrefix(path, "~/") {
		return home + path[1:]
	}
	return path
}
