package tts

import "errors"

var (
	// ErrLoad 表示模型或检查点无法加载。
	ErrLoad = errors.New("模型加载失败")
	// ErrUnsupported 表示该引擎不支持请求的配置（如自定义模型）。
	ErrUnsupported = errors.New("不支持的配置")
	// ErrCheckpointNotFound 表示目标语言没有匹配的检查点。
	ErrCheckpointNotFound = errors.New("找不到对应语言的检查点")
	// ErrInference 表示推理未产出有效波形。
	ErrInference = errors.New("推理失败")
	// ErrExternalTool 表示外部音频工具执行失败。
	ErrExternalTool = errors.New("外部工具失败")
)
