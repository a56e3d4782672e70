// Package command 通过常驻的外部推理进程运行模型。
//
// 每个已加载的模型对应一个工作进程，双方在 stdin/stdout 上以一行一个
// JSON 对象的方式通信；合成结果由工作进程写到指定的 WAV 文件。
// 关闭模型即关闭进程的 stdin，工作进程退出时释放其占用的显存。
package command

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"path/filepath"
	"sync"

	"github.com/google/uuid"
	"github.com/iabetor/narrator/internal/audio"
	"github.com/iabetor/narrator/internal/logger"
	"github.com/iabetor/narrator/internal/runtime"
)

// ErrWorker 表示工作进程返回错误或通信失败。
var ErrWorker = errors.New("推理进程错误")

type request struct {
	Op        string                    `json:"op"`
	Kind      string                    `json:"kind,omitempty"`
	Model     string                    `json:"model,omitempty"`
	Files     *runtime.CheckpointFiles  `json:"files,omitempty"`
	Device    string                    `json:"device,omitempty"`
	Speech    *runtime.SpeechRequest    `json:"speech,omitempty"`
	Inference *runtime.InferenceRequest `json:"inference,omitempty"`
	Refs      []string                  `json:"refs,omitempty"`
	Name      string                    `json:"name,omitempty"`
	Source    string                    `json:"source,omitempty"`
	Target    string                    `json:"target,omitempty"`
	Output    string                    `json:"output,omitempty"`
}

type response struct {
	OK         bool             `json:"ok"`
	Error      string           `json:"error,omitempty"`
	SampleRate int              `json:"sample_rate,omitempty"`
	Latents    *runtime.Latents `json:"latents,omitempty"`
	Found      bool             `json:"found,omitempty"`
}

// stderrLimit 为保留的工作进程 stderr 尾部字节数。
const stderrLimit = 8 << 10

// tailBuffer 只保留最后 limit 个字节，可被 os/exec 的拷贝 goroutine 并发写入。
type tailBuffer struct {
	mu    sync.Mutex
	limit int
	buf   []byte
}

func newTailBuffer(limit int) *tailBuffer {
	return &tailBuffer{limit: limit}
}

func (b *tailBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.buf = append(b.buf, p...)
	if over := len(b.buf) - b.limit; over > 0 {
		b.buf = append(b.buf[:0], b.buf[over:]...)
	}
	return len(p), nil
}

func (b *tailBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return string(b.buf)
}

type worker struct {
	mu         sync.Mutex
	cmd        *exec.Cmd
	stdin      io.WriteCloser
	enc        *json.Encoder
	dec        *json.Decoder
	stderr     *tailBuffer
	workDir    string
	sampleRate int
	closed     bool
	// broken 表示通信已中断，进程已被回收
	broken  bool
	onClose func(*worker)

	waitOnce sync.Once
	waitErr  error
}

func startWorker(command string, args []string, workDir string) (*worker, error) {
	if err := os.MkdirAll(workDir, 0755); err != nil {
		return nil, fmt.Errorf("[runtime] 创建工作目录失败: %w", err)
	}

	// 工作进程的生命周期跟随模型句柄，不绑定到加载调用的 context
	cmd := exec.Command(command, args...)
	w := &worker{cmd: cmd, workDir: workDir, stderr: newTailBuffer(stderrLimit)}
	cmd.Stderr = w.stderr

	stdin, err := cmd.StdinPipe()
	if err != nil {
		return nil, fmt.Errorf("[runtime] 创建 stdin 管道失败: %w", err)
	}
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return nil, fmt.Errorf("[runtime] 创建 stdout 管道失败: %w", err)
	}
	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("[runtime] 启动推理进程 %s 失败: %w", command, err)
	}

	w.stdin = stdin
	w.enc = json.NewEncoder(stdin)
	w.dec = json.NewDecoder(stdout)
	logger.Debugf("[runtime] 推理进程已启动 (pid=%d)", cmd.Process.Pid)
	return w, nil
}

func (w *worker) call(req request) (response, error) {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.closed || w.broken {
		return response{}, fmt.Errorf("%w: 进程已关闭", ErrWorker)
	}
	if err := w.enc.Encode(req); err != nil {
		return response{}, fmt.Errorf("%w: 发送 %s 请求失败: %v", ErrWorker, req.Op, err)
	}

	var resp response
	if err := w.dec.Decode(&resp); err != nil {
		// 等进程退出后 stderr 才完整
		w.broken = true
		w.wait()
		return response{}, fmt.Errorf("%w: 读取 %s 响应失败: %v (stderr: %s)", ErrWorker, req.Op, err, w.stderr.String())
	}
	if !resp.OK {
		return resp, fmt.Errorf("%w: %s: %s", ErrWorker, req.Op, resp.Error)
	}
	return resp, nil
}

// render 发送一个产出 WAV 的请求并读回样本，临时文件读后即删。
func (w *worker) render(req request) ([]float32, error) {
	req.Output = filepath.Join(w.workDir, uuid.NewString()+".wav")
	defer os.Remove(req.Output)

	if _, err := w.call(req); err != nil {
		return nil, err
	}
	samples, rate, err := audio.ReadWAV(req.Output)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrWorker, err)
	}
	if w.sampleRate > 0 && rate != w.sampleRate {
		return nil, fmt.Errorf("%w: %s 输出采样率 %d 与模型采样率 %d 不一致", ErrWorker, req.Op, rate, w.sampleRate)
	}
	return samples, nil
}

func (w *worker) SampleRate() int {
	return w.sampleRate
}

// Close 关闭 stdin 并等待进程退出。
func (w *worker) Close() error {
	w.mu.Lock()
	if w.closed {
		w.mu.Unlock()
		return nil
	}
	w.closed = true
	w.mu.Unlock()

	if w.onClose != nil {
		w.onClose(w)
	}
	if err := w.wait(); err != nil {
		return fmt.Errorf("[runtime] 推理进程退出异常: %w", err)
	}
	return nil
}

// wait 关闭 stdin 并回收进程，只执行一次。
func (w *worker) wait() error {
	w.waitOnce.Do(func() {
		w.stdin.Close()
		w.waitErr = w.cmd.Wait()
	})
	return w.waitErr
}
