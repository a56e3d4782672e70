package audio

import (
	"fmt"
	"os"
	"path/filepath"

	goaudio "github.com/go-audio/audio"
	"github.com/go-audio/wav"
)

const wavBitDepth = 16

// WriteWAV 将单声道 float32 样本写为 16-bit PCM WAV 文件。
func WriteWAV(path string, samples []float32, sampleRate int) error {
	if sampleRate <= 0 {
		return fmt.Errorf("[audio] 无效采样率: %d", sampleRate)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("[audio] 创建目录失败: %w", err)
	}

	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("[audio] 创建 %s 失败: %w", path, err)
	}

	enc := wav.NewEncoder(f, sampleRate, wavBitDepth, 1, 1)
	buf := &goaudio.IntBuffer{
		Data:           Float32ToInts(samples, wavBitDepth),
		Format:         &goaudio.Format{SampleRate: sampleRate, NumChannels: 1},
		SourceBitDepth: wavBitDepth,
	}
	if err := enc.Write(buf); err != nil {
		f.Close()
		return fmt.Errorf("[audio] 写入 %s 失败: %w", path, err)
	}
	if err := enc.Close(); err != nil {
		f.Close()
		return fmt.Errorf("[audio] 完成 %s 失败: %w", path, err)
	}
	return f.Close()
}

// ReadWAV 读取 PCM WAV 文件，返回单声道 float32 样本和采样率。
func ReadWAV(path string) ([]float32, int, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, 0, fmt.Errorf("[audio] 打开 %s 失败: %w", path, err)
	}
	defer f.Close()

	dec := wav.NewDecoder(f)
	if !dec.IsValidFile() {
		return nil, 0, fmt.Errorf("[audio] %s 不是有效的 WAV 文件", path)
	}
	if dec.WavAudioFormat != 1 {
		return nil, 0, fmt.Errorf("[audio] %s: 不支持的 WAV 编码 %d（仅支持 PCM）", path, dec.WavAudioFormat)
	}

	buf, err := dec.FullPCMBuffer()
	if err != nil {
		return nil, 0, fmt.Errorf("[audio] 解码 %s 失败: %w", path, err)
	}

	samples := IntsToFloat32(buf.Data, int(dec.BitDepth), int(dec.NumChans))
	return samples, int(dec.SampleRate), nil
}
