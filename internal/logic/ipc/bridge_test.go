package ipc

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// 测试 worker 通过 re-exec 本测试二进制实现：
// 设置了 GO_IPC_TEST_WORKER 的子进程不跑测试，而是进入 worker 循环。
func TestMain(m *testing.M) {
	if os.Getenv("GO_IPC_TEST_WORKER") == "1" {
		runTestWorker()
		os.Exit(0)
	}
	os.Exit(m.Run())
}

type testWorkerRequest struct {
	ID   string          `json:"id"`
	Fn   string          `json:"fn"`
	Args json.RawMessage `json:"args"`
}

// runTestWorker 实现协议对端：逐行读请求、按 fn 分派。
func runTestWorker() {
	scanner := bufio.NewScanner(os.Stdin)
	scanner.Buffer(make([]byte, 0, 64*1024), 8*1024*1024)
	for scanner.Scan() {
		var req testWorkerRequest
		if err := json.Unmarshal(scanner.Bytes(), &req); err != nil {
			continue
		}
		switch req.Fn {
		case "echo":
			workerReply(fmt.Sprintf(`{"id":%q,"ok":true,"result":%s}`, req.ID, string(req.Args)))
		case "delay":
			// 并发处理，慢请求不阻塞后续请求
			go func(req testWorkerRequest) {
				var args struct {
					Ms    int    `json:"ms"`
					Value string `json:"value"`
				}
				_ = json.Unmarshal(req.Args, &args)
				time.Sleep(time.Duration(args.Ms) * time.Millisecond)
				workerReply(fmt.Sprintf(`{"id":%q,"ok":true,"result":%q}`, req.ID, args.Value))
			}(req)
		case "fail":
			workerReply(fmt.Sprintf(`{"id":%q,"ok":false,"error":{"message":"boom"}}`, req.ID))
		case "noresult":
			workerReply(fmt.Sprintf(`{"id":%q,"ok":true}`, req.ID))
		case "garbage":
			workerReply("this is not json")
			workerReply(`{"id":"unknown-id","ok":true,"result":1}`)
			workerReply(fmt.Sprintf(`{"id":%q,"ok":true,"result":"after-garbage"}`, req.ID))
		case "exit":
			os.Exit(1)
		}
	}
}

var workerStdoutMu sync.Mutex

func workerReply(line string) {
	workerStdoutMu.Lock()
	defer workerStdoutMu.Unlock()
	fmt.Fprintln(os.Stdout, line)
}

func newTestBridge(t *testing.T) *Bridge {
	t.Helper()
	b := NewBridge(WorkerOption{
		Command: os.Args[0],
		Env:     append(os.Environ(), "GO_IPC_TEST_WORKER=1"),
	})
	t.Cleanup(b.Close)
	return b
}

func TestBridgeEcho(t *testing.T) {
	b := newTestBridge(t)
	require.NoError(t, b.Connect())
	assert.Equal(t, StateReady, b.State())
	assert.Equal(t, int64(1), b.SpawnCount())

	result, err := b.Call(context.Background(), "echo", map[string]any{"hello": "world"}, 5*time.Second)
	require.NoError(t, err)
	assert.JSONEq(t, `{"hello":"world"}`, string(result))
}

// 慢请求与快请求并发在途，各自拿到自己的结果（关联 id 配对，与完成顺序无关）。
func TestBridgeOutOfOrderCompletion(t *testing.T) {
	b := newTestBridge(t)
	require.NoError(t, b.Connect())

	var wg sync.WaitGroup
	wg.Add(2)
	var slowResult, fastResult json.RawMessage
	var slowErr, fastErr error
	go func() {
		defer wg.Done()
		slowResult, slowErr = b.Call(context.Background(), "delay",
			map[string]any{"ms": 300, "value": "slow"}, 5*time.Second)
	}()
	go func() {
		defer wg.Done()
		time.Sleep(50 * time.Millisecond) // 确保慢请求先写入
		fastResult, fastErr = b.Call(context.Background(), "echo", "fast", 5*time.Second)
	}()
	wg.Wait()

	require.NoError(t, slowErr)
	require.NoError(t, fastErr)
	assert.Equal(t, `"slow"`, string(slowResult))
	assert.Equal(t, `"fast"`, string(fastResult))
	assert.Equal(t, int64(1), b.SpawnCount())
}

func TestBridgeRemoteError(t *testing.T) {
	b := newTestBridge(t)
	_, err := b.Call(context.Background(), "fail", nil, 5*time.Second)
	require.Error(t, err)
	assert.Equal(t, KindRemote, KindOf(err))
	assert.Contains(t, err.Error(), "boom")
	// 业务错误不触发重启
	assert.Equal(t, int64(1), b.SpawnCount())
}

func TestBridgeProtocolError(t *testing.T) {
	b := newTestBridge(t)
	_, err := b.Call(context.Background(), "noresult", nil, 5*time.Second)
	require.Error(t, err)
	assert.Equal(t, KindProtocol, KindOf(err))
	assert.Equal(t, int64(1), b.SpawnCount())
}

// 畸形行与未知 id 的响应都被丢弃，不影响自身请求的结果。
func TestBridgeGarbageLinesDropped(t *testing.T) {
	b := newTestBridge(t)
	result, err := b.Call(context.Background(), "garbage", nil, 5*time.Second)
	require.NoError(t, err)
	assert.Equal(t, `"after-garbage"`, string(result))
}

// 超时后迟到的响应被安全丢弃：worker 不受影响，后续请求照常。
func TestBridgeTimeoutThenLateResponse(t *testing.T) {
	b := newTestBridge(t)
	_, err := b.Call(context.Background(), "delay",
		map[string]any{"ms": 500, "value": "late"}, 100*time.Millisecond)
	require.Error(t, err)
	assert.Equal(t, KindTimeout, KindOf(err))

	// 等迟到响应真正到达并被丢弃
	time.Sleep(600 * time.Millisecond)

	result, err := b.Call(context.Background(), "echo", "still-alive", 5*time.Second)
	require.NoError(t, err)
	assert.Equal(t, `"still-alive"`, string(result))
	// 超时不触发重启
	assert.Equal(t, int64(1), b.SpawnCount())
}

// worker 退出令调用以 WorkerCrashed 失败；Call 重启后重试一次，仍崩溃则原样返回。
func TestBridgeCrashRetryOnce(t *testing.T) {
	b := newTestBridge(t)
	require.NoError(t, b.Connect())

	_, err := b.Call(context.Background(), "exit", nil, 5*time.Second)
	require.Error(t, err)
	assert.Equal(t, KindWorkerCrashed, KindOf(err))
	// 初始 1 次 + 重试前重启 1 次
	assert.Equal(t, int64(2), b.SpawnCount())

	// 崩溃后桥可自愈
	result, err := b.Call(context.Background(), "echo", "recovered", 5*time.Second)
	require.NoError(t, err)
	assert.Equal(t, `"recovered"`, string(result))
	assert.Equal(t, int64(3), b.SpawnCount())
}

// 崩溃时全部在途调用一起失败（白盒用 callOnce，避开 Call 的自动重试）。
func TestBridgeCrashFailsAllPending(t *testing.T) {
	b := newTestBridge(t)
	require.NoError(t, b.Connect())

	const inflight = 4
	errs := make([]error, inflight)
	var wg sync.WaitGroup
	wg.Add(inflight)
	for i := 0; i < inflight; i++ {
		go func(i int) {
			defer wg.Done()
			_, errs[i] = b.callOnce(context.Background(), "delay",
				map[string]any{"ms": 5000, "value": "never"}, 10*time.Second)
		}(i)
	}

	time.Sleep(200 * time.Millisecond) // 等全部请求写入
	_, exitErr := b.callOnce(context.Background(), "exit", nil, 5*time.Second)
	wg.Wait()

	assert.Equal(t, KindWorkerCrashed, KindOf(exitErr))
	for i, err := range errs {
		assert.Equal(t, KindWorkerCrashed, KindOf(err), "call %d", i)
	}
}

// 旧 worker 句柄迟到的 teardown 不得清扫新 worker 的在途调用：
// 换代后对旧句柄重复 teardown，注册在新 worker 上的调用照常完成。
func TestBridgeStaleTeardownKeepsNewWorkerPending(t *testing.T) {
	b := newTestBridge(t)
	require.NoError(t, b.Connect())

	b.mu.Lock()
	w1 := b.worker
	b.mu.Unlock()
	require.NotNil(t, w1)

	// 第一代 worker 下线，拉起第二代
	b.teardown(w1)
	require.NoError(t, b.Connect())
	require.Equal(t, int64(2), b.SpawnCount())

	done := make(chan error, 1)
	go func() {
		_, err := b.callOnce(context.Background(), "delay",
			map[string]any{"ms": 300, "value": "survives"}, 5*time.Second)
		done <- err
	}()
	time.Sleep(100 * time.Millisecond) // 等请求写入第二代 worker

	// 旧读取任务的重复 teardown（如延迟到达的 EOF 回调）
	b.teardown(w1)

	require.NoError(t, <-done)
	assert.Equal(t, StateReady, b.State())
	assert.Equal(t, int64(2), b.SpawnCount())
}

func TestBridgeSpawnError(t *testing.T) {
	b := NewBridge(WorkerOption{Command: "/nonexistent/worker-binary"})
	defer b.Close()
	err := b.Connect()
	require.Error(t, err)
	assert.Equal(t, KindSpawn, KindOf(err))
	assert.Equal(t, StateNoWorker, b.State())
}

func TestBridgeClose(t *testing.T) {
	b := newTestBridge(t)
	require.NoError(t, b.Connect())
	b.Close()

	_, err := b.Call(context.Background(), "echo", "x", time.Second)
	require.Error(t, err)
	assert.Equal(t, KindSpawn, KindOf(err))
}

func TestBridgeContextCancel(t *testing.T) {
	b := newTestBridge(t)
	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(50 * time.Millisecond)
		cancel()
	}()
	_, err := b.Call(ctx, "delay", map[string]any{"ms": 5000}, 10*time.Second)
	assert.ErrorIs(t, err, context.Canceled)
}
