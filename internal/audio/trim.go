package audio

// Trim 去掉首尾幅度不超过 threshold 的样本，并在保留窗口两侧
// 各扩展 bufferSec 秒。全部样本都低于阈值时返回空波形。
func Trim(samples []float32, sampleRate int, threshold float32, bufferSec float64) []float32 {
	first, last := -1, -1
	for i, s := range samples {
		if s > threshold || s < -threshold {
			if first < 0 {
				first = i
			}
			last = i
		}
	}
	if first < 0 {
		return []float32{}
	}

	pad := int(bufferSec * float64(sampleRate))
	start := first - pad
	if start < 0 {
		start = 0
	}
	end := last + pad + 1
	if end > len(samples) {
		end = len(samples)
	}

	out := make([]float32, end-start)
	copy(out, samples[start:end])
	return out
}
