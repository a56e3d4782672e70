package audio

import "time"

// Float32ToInts 将 float32 样本量化为指定位深的整数，用于 go-audio IntBuffer。
func Float32ToInts(in []float32, bitDepth int) []int {
	scale := float32(int(1)<<(bitDepth-1) - 1)
	out := make([]int, len(in))
	for i, s := range in {
		out[i] = int(clamp(s) * scale)
	}
	return out
}

// IntsToFloat32 将指定位深的整数样本归一化到 [-1.0, 1.0]，多声道取平均得到单声道。
func IntsToFloat32(in []int, bitDepth, channels int) []float32 {
	if channels <= 0 {
		channels = 1
	}
	scale := float32(int(1) << (bitDepth - 1))
	frames := len(in) / channels
	out := make([]float32, frames)
	for i := 0; i < frames; i++ {
		var sum float32
		for c := 0; c < channels; c++ {
			sum += float32(in[i*channels+c])
		}
		out[i] = sum / float32(channels) / scale
	}
	return out
}

// StereoBytesToMono 将立体声 signed 16-bit LE PCM 转换为单声道 float32，
// 每帧 4 字节，不完整的尾部帧会被丢弃。
func StereoBytesToMono(pcm []byte) []float32 {
	const bytesPerFrame = 4
	n := len(pcm) / bytesPerFrame
	out := make([]float32, n)
	for i := 0; i < n; i++ {
		off := i * bytesPerFrame
		left := int16(pcm[off]) | int16(pcm[off+1])<<8
		right := int16(pcm[off+2]) | int16(pcm[off+3])<<8
		out[i] = (float32(left) + float32(right)) / 2.0 / 32768.0
	}
	return out
}

// Duration 返回样本数在给定采样率下对应的秒数。
func Duration(samples, sampleRate int) float64 {
	if sampleRate <= 0 {
		return 0
	}
	return float64(samples) / float64(sampleRate)
}

// DurationOf 是 Duration 的 time.Duration 版本，用于日志。
func DurationOf(samples []float32, sampleRate int) time.Duration {
	return time.Duration(Duration(len(samples), sampleRate) * float64(time.Second))
}

func clamp(s float32) float32 {
	if s > 1.0 {
		return 1.0
	}
	if s < -1.0 {
		return -1.0
	}
	return s
}
