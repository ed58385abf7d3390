package ipc

import "errors"

// ErrorKind 对应 IPC 失败的六种分类。
// WorkerCrashed / Write 触发调用层的"重启后重试一次"策略，其余直接上抛。
type ErrorKind uint8

const (
	KindTimeout ErrorKind = iota + 1
	KindWorkerCrashed
	KindProtocol
	KindRemote
	KindSpawn
	KindWrite
)

// Error 是 IPC 桥对外的统一错误类型。
type Error struct {
	Kind    ErrorKind
	Message string
}

func (e *Error) Error() string {
	switch e.Kind {
	case KindTimeout:
		return "ipc timeout"
	case KindWorkerCrashed:
		return "worker crashed"
	case KindProtocol:
		return "ipc protocol error: " + e.Message
	case KindRemote:
		return "worker returned error: " + e.Message
	case KindSpawn:
		return "failed to spawn worker: " + e.Message
	case KindWrite:
		return "ipc write error: " + e.Message
	default:
		return "ipc error: " + e.Message
	}
}

func newError(kind ErrorKind, message string) *Error {
	return &Error{Kind: kind, Message: message}
}

// KindOf 提取错误的 IPC 分类，非 IPC 错误返回 0。
func KindOf(err error) ErrorKind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return 0
}

// retryable 判定该错误是否应触发 worker 重启并重试同一调用。
func retryable(err error) bool {
	kind := KindOf(err)
	return kind == KindWorkerCrashed || kind == KindWrite
}
