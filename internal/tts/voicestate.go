package tts

// VoiceState 按参考音色缓存预计算结果，只属于一个适配器实例，不加锁。
type VoiceState[T any] struct {
	values map[string]T
}

// NewVoiceState 创建空缓存。
func NewVoiceState[T any]() *VoiceState[T] {
	return &VoiceState[T]{values: make(map[string]T)}
}

// Get 返回已缓存的值。
func (s *VoiceState[T]) Get(voice string) (T, bool) {
	v, ok := s.values[voice]
	return v, ok
}

// GetOrCompute 返回缓存值，未命中时调用 compute；出错的结果不缓存。
func (s *VoiceState[T]) GetOrCompute(voice string, compute func() (T, error)) (T, error) {
	if v, ok := s.values[voice]; ok {
		return v, nil
	}
	v, err := compute()
	if err != nil {
		return v, err
	}
	s.values[voice] = v
	return v, nil
}

// Len 返回缓存的音色数量。
func (s *VoiceState[T]) Len() int {
	return len(s.values)
}
