package ipc

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/exec"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"drift-gateway/pkg/logger"
)

// Caller 是 worker 调用能力的抽象。Bridge 是基于子进程管道的实现，
// 调用方不感知传输细节，便于替换为进程内或网络实现。
type Caller interface {
	Call(ctx context.Context, fn string, args any, timeout time.Duration) (json.RawMessage, error)
}

// State 表示桥当前的 worker 生命周期状态。
type State string

const (
	StateNoWorker State = "no_worker"
	StateStarting State = "starting"
	StateReady    State = "ready"
	StateCrashed  State = "crashed"
)

// WorkerOption 描述 worker 子进程的启动方式。
type WorkerOption struct {
	Command string   // 可执行文件，如 node
	Args    []string // 参数列表，最后一项通常是脚本路径
	Env     []string // 为空时继承父进程环境
}

type workerRequest struct {
	ID   string `json:"id"`
	Fn   string `json:"fn"`
	Args any    `json:"args"`
}

type workerErrorPayload struct {
	Message string `json:"message"`
}

type workerResponse struct {
	ID     string              `json:"id"`
	OK     bool                `json:"ok"`
	Result json.RawMessage     `json:"result,omitempty"`
	Error  *workerErrorPayload `json:"error,omitempty"`
}

type callResult struct {
	value json.RawMessage
	err   error
}

// worker 包装一个存活的子进程：stdin 写入端与后台读取任务。
// 整体换新、从不原地修补；stop 保证 kill+wait 只执行一次。
type worker struct {
	cmd     *exec.Cmd
	stdin   *bufio.Writer
	closer  func() error // stdin 管道关闭
	writeMu sync.Mutex   // 串行化 stdin 写入，不跨越等待响应阶段
	stop    sync.Once
}

func (w *worker) terminate() {
	w.stop.Do(func() {
		_ = w.closer()
		if w.cmd.Process != nil {
			_ = w.cmd.Process.Kill()
		}
		_ = w.cmd.Wait()
	})
}

// Bridge 管理唯一的 worker 子进程，在其 stdin/stdout 上复用并发逻辑调用。
// 请求/响应以换行分隔的 JSON 编码，按随机关联 id 配对。
type Bridge struct {
	opt WorkerOption

	mu     sync.Mutex // 保护 worker 句柄换入换出与 state
	worker *worker
	state  State
	closed bool

	pendingMu sync.Mutex
	pending   map[string]chan callResult

	spawns atomic.Int64
}

func NewBridge(opt WorkerOption) *Bridge {
	return &Bridge{
		opt:     opt,
		state:   StateNoWorker,
		pending: make(map[string]chan callResult),
	}
}

// Connect 立即拉起 worker，启动失败返回 Spawn 错误。
func (b *Bridge) Connect() error {
	_, err := b.ensureWorker()
	return err
}

// State 返回当前生命周期状态（观测用）。
func (b *Bridge) State() State {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.state
}

// SpawnCount 返回累计拉起 worker 的次数（观测用）。
func (b *Bridge) SpawnCount() int64 {
	return b.spawns.Load()
}

// Call 发起一次逻辑调用并等待响应。
// 若本次尝试因 worker 崩溃或写入失败而失败，重启 worker 后以同样的超时预算重试一次；
// 第二次失败原样返回。
func (b *Bridge) Call(ctx context.Context, fn string, args any, timeout time.Duration) (json.RawMessage, error) {
	result, err := b.callOnce(ctx, fn, args, timeout)
	if err != nil && retryable(err) {
		logger.Warnf("[IpcBridge] worker 调用失败，重启后重试一次: fn=%s, err=%v", fn, err)
		return b.callOnce(ctx, fn, args, timeout)
	}
	return result, err
}

// callOnce 是单次调用尝试：确保 worker 存活、注册 pending 槽位、写入一行请求、
// 等待响应与超时赛跑。超时方负责移除自己的 pending 条目，迟到的响应会被安全丢弃。
func (b *Bridge) callOnce(ctx context.Context, fn string, args any, timeout time.Duration) (json.RawMessage, error) {
	w, err := b.ensureWorker()
	if err != nil {
		return nil, err
	}

	id := uuid.NewString()
	line, err := json.Marshal(workerRequest{ID: id, Fn: fn, Args: args})
	if err != nil {
		return nil, newError(KindProtocol, fmt.Sprintf("marshal request: %v", err))
	}

	ch := make(chan callResult, 1)
	b.pendingMu.Lock()
	b.pending[id] = ch
	b.pendingMu.Unlock()

	w.writeMu.Lock()
	_, werr := w.stdin.Write(line)
	if werr == nil {
		werr = w.stdin.WriteByte('\n')
	}
	if werr == nil {
		werr = w.stdin.Flush()
	}
	w.writeMu.Unlock()
	if werr != nil {
		b.removePending(id)
		b.teardown(w)
		return nil, newError(KindWrite, werr.Error())
	}

	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case res := <-ch:
		return res.value, res.err
	case <-timer.C:
		b.removePending(id)
		// 与响应分发存在良性竞争：若对方已抢先完成，直接取用结果
		select {
		case res := <-ch:
			return res.value, res.err
		default:
		}
		return nil, newError(KindTimeout, fn)
	case <-ctx.Done():
		b.removePending(id)
		return nil, ctx.Err()
	}
}

// ensureWorker 返回当前存活的 worker，没有则拉起一个新的。
func (b *Bridge) ensureWorker() (*worker, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		return nil, newError(KindSpawn, "bridge closed")
	}
	if b.worker != nil {
		return b.worker, nil
	}

	b.state = StateStarting
	w, err := b.spawnLocked()
	if err != nil {
		b.state = StateNoWorker
		return nil, err
	}
	b.worker = w
	b.state = StateReady
	return w, nil
}

// spawnLocked 启动子进程并挂上后台读取任务，调用方需持有 b.mu。
func (b *Bridge) spawnLocked() (*worker, error) {
	cmd := exec.Command(b.opt.Command, b.opt.Args...)
	if len(b.opt.Env) > 0 {
		cmd.Env = b.opt.Env
	}
	cmd.Stderr = os.Stderr

	stdinPipe, err := cmd.StdinPipe()
	if err != nil {
		return nil, newError(KindSpawn, err.Error())
	}
	stdoutPipe, err := cmd.StdoutPipe()
	if err != nil {
		return nil, newError(KindSpawn, err.Error())
	}
	if err := cmd.Start(); err != nil {
		return nil, newError(KindSpawn, err.Error())
	}

	w := &worker{
		cmd:    cmd,
		stdin:  bufio.NewWriter(stdinPipe),
		closer: stdinPipe.Close,
	}

	go func() {
		scanner := bufio.NewScanner(stdoutPipe)
		scanner.Buffer(make([]byte, 0, 64*1024), 8*1024*1024)
		for scanner.Scan() {
			b.dispatchLine(scanner.Bytes())
		}
		if err := scanner.Err(); err != nil {
			logger.Errorf("[IpcBridge] worker stdout 读取异常退出: %v", err)
		}
		// 输出流结束意味着子进程已退出
		b.teardown(w)
	}()

	n := b.spawns.Add(1)
	logger.Infof("[IpcBridge] worker 已启动: command=%s, pid=%d, spawn=%d", b.opt.Command, cmd.Process.Pid, n)
	return w, nil
}

// dispatchLine 解析一行 worker 响应并完成对应的 pending 调用。
// 找不到 pending 条目不是错误（超时方可能已先移除），记日志后丢弃。
func (b *Bridge) dispatchLine(line []byte) {
	var resp workerResponse
	if err := json.Unmarshal(line, &resp); err != nil {
		logger.Warnf("[IpcBridge] worker 响应解析失败: %v, line=%q", err, string(line))
		return
	}

	ch, ok := b.removePending(resp.ID)
	if !ok {
		logger.Warnf("[IpcBridge] 响应没有匹配的 pending 调用，丢弃: id=%s", resp.ID)
		return
	}

	switch {
	case resp.OK && len(resp.Result) > 0:
		ch <- callResult{value: resp.Result}
	case resp.OK:
		ch <- callResult{err: newError(KindProtocol, "worker returned ok without result")}
	default:
		message := "worker error without message"
		if resp.Error != nil {
			message = resp.Error.Message
		}
		ch <- callResult{err: newError(KindRemote, message)}
	}
}

// teardown 下线指定的 worker 句柄并批量失败全部 pending 调用。
// 句柄比对避免旧 worker 的读取任务误杀重启后的新 worker：
// 只有当 w 仍是当前句柄时才清扫 pending，迟到的旧句柄 teardown
// 不得波及已注册到新 worker 上的在途调用。
func (b *Bridge) teardown(w *worker) {
	b.mu.Lock()
	current := b.worker == w
	if current {
		b.worker = nil
		if !b.closed {
			b.state = StateCrashed
			logger.Warnf("[IpcBridge] worker 已崩溃，清理句柄并失败全部 pending 调用")
		}
	}
	b.mu.Unlock()

	w.terminate()
	if current {
		b.failAllPending(newError(KindWorkerCrashed, ""))
	}
}

// failAllPending 以同一错误批量完成当前全部 pending 调用（顺序不保证）。
func (b *Bridge) failAllPending(err *Error) {
	b.pendingMu.Lock()
	channels := make([]chan callResult, 0, len(b.pending))
	for id, ch := range b.pending {
		channels = append(channels, ch)
		delete(b.pending, id)
	}
	b.pendingMu.Unlock()

	for _, ch := range channels {
		ch <- callResult{err: err}
	}
}

func (b *Bridge) removePending(id string) (chan callResult, bool) {
	b.pendingMu.Lock()
	defer b.pendingMu.Unlock()
	ch, ok := b.pending[id]
	if ok {
		delete(b.pending, id)
	}
	return ch, ok
}

// Close 关停桥：杀掉 worker、批量失败 pending 调用。之后的调用返回 Spawn 错误。
func (b *Bridge) Close() {
	b.mu.Lock()
	b.closed = true
	w := b.worker
	b.worker = nil
	b.state = StateNoWorker
	b.mu.Unlock()

	if w != nil {
		w.terminate()
	}
	b.failAllPending(newError(KindWorkerCrashed, ""))
}
