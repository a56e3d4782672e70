package audio

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/hajimehoshi/go-mp3"
)

// DecodeMP3 将 MP3 数据解码为单声道 float32 样本。
// go-mp3 总是输出立体声 signed 16-bit LE PCM。
func DecodeMP3(r io.Reader) ([]float32, int, error) {
	decoder, err := mp3.NewDecoder(r)
	if err != nil {
		return nil, 0, fmt.Errorf("[audio] MP3 解码失败: %w", err)
	}

	pcm, err := io.ReadAll(decoder)
	if err != nil {
		return nil, 0, fmt.Errorf("[audio] 读取 PCM 数据失败: %w", err)
	}
	if len(pcm) == 0 {
		return nil, 0, fmt.Errorf("[audio] MP3 中没有音频数据")
	}

	return StereoBytesToMono(pcm), decoder.SampleRate(), nil
}

// Load 按扩展名读取 WAV 或 MP3 音频文件。
func Load(path string) ([]float32, int, error) {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".mp3":
		f, err := os.Open(path)
		if err != nil {
			return nil, 0, fmt.Errorf("[audio] 打开 %s 失败: %w", path, err)
		}
		defer f.Close()
		return DecodeMP3(f)
	default:
		return ReadWAV(path)
	}
}

// EnsureWAV 保证参考音频为 WAV 格式：WAV 文件原样返回，
// MP3 文件解码后写到 dir 下的同名 .wav 并返回新路径（已存在则复用）。
func EnsureWAV(path, dir string) (string, error) {
	if strings.ToLower(filepath.Ext(path)) != ".mp3" {
		return path, nil
	}

	out := filepath.Join(dir, strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))+".wav")
	if _, err := os.Stat(out); err == nil {
		return out, nil
	}

	samples, rate, err := Load(path)
	if err != nil {
		return "", err
	}
	if err := WriteWAV(out, samples, rate); err != nil {
		return "", err
	}
	return out, nil
}
