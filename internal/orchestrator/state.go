package orchestrator

import (
	"sync"

	"github.com/iabetor/narrator/internal/logger"
)

// State 表示一句话的处理阶段。
type State int

const (
	// StateIdle：空闲，等待下一句。
	StateIdle State = iota
	// StateSplitting：按停顿标记拆分句子。
	StateSplitting
	// StateSynthesizing：逐片段调用引擎合成。
	StateSynthesizing
	// StateAssembling：拼接片段并裁剪静音。
	StateAssembling
	// StateWriting：写入音频文件与字幕。
	StateWriting
	// StateDone：本句成功。
	StateDone
	// StateFailed：本句失败。
	StateFailed
)

var stateNames = [...]string{
	"Idle",
	"Splitting",
	"Synthesizing",
	"Assembling",
	"Writing",
	"Done",
	"Failed",
}

func (s State) String() string {
	if int(s) < len(stateNames) {
		return stateNames[s]
	}
	return "Unknown"
}

// StateMachine 管理线程安全的状态转换。
type StateMachine struct {
	mu       sync.RWMutex
	current  State
	onChange func(from, to State)
}

// NewStateMachine 创建一个初始状态为 Idle 的状态机。
func NewStateMachine() *StateMachine {
	return &StateMachine{current: StateIdle}
}

// SetOnChange 注册状态变化时的回调函数。
func (sm *StateMachine) SetOnChange(fn func(from, to State)) {
	sm.mu.Lock()
	sm.onChange = fn
	sm.mu.Unlock()
}

// Current 返回当前状态。
func (sm *StateMachine) Current() State {
	sm.mu.RLock()
	defer sm.mu.RUnlock()
	return sm.current
}

// Transition 尝试切换状态。合法的转换：
//
//	Idle         → Splitting
//	Splitting    → Synthesizing
//	Synthesizing → Assembling
//	Assembling   → Writing
//	Writing      → Done
//
// Done 与 Failed 只能回到 Idle；除 Idle 与 Done 外的任何状态都可以转到 Failed。
func (sm *StateMachine) Transition(to State) bool {
	sm.mu.Lock()
	defer sm.mu.Unlock()

	if !validTransition(sm.current, to) {
		logger.Warnf("[state] 非法转换 %s → %s", sm.current, to)
		return false
	}

	from := sm.current
	sm.current = to
	logger.Debugf("[state] %s → %s", from, to)

	if sm.onChange != nil {
		sm.onChange(from, to)
	}
	return true
}

// Reset 无条件重置状态为 Idle。
func (sm *StateMachine) Reset() {
	sm.mu.Lock()
	defer sm.mu.Unlock()

	from := sm.current
	sm.current = StateIdle
	if from != StateIdle && sm.onChange != nil {
		sm.onChange(from, StateIdle)
	}
}

func validTransition(from, to State) bool {
	if to == StateFailed {
		return from != StateIdle && from != StateDone && from != StateFailed
	}
	switch from {
	case StateIdle:
		return to == StateSplitting
	case StateSplitting:
		return to == StateSynthesizing
	case StateSynthesizing:
		return to == StateAssembling
	case StateAssembling:
		return to == StateWriting
	case StateWriting:
		return to == StateDone
	case StateDone, StateFailed:
		return to == StateIdle
	}
	return false
}
