package executor

import "errors"

// ErrorKind 区分执行失败的四种分类：
// MissingKey / InvalidKey 为配置期错误（启动即失败）；
// Decode 为坏输入（调用方可修正）；Rpc 为链上/网络拒绝（原样上抛）。
type ErrorKind uint8

const (
	KindMissingKey ErrorKind = iota + 1
	KindInvalidKey
	KindDecode
	KindRpc
)

type Error struct {
	Kind    ErrorKind
	Message string
}

func (e *Error) Error() string {
	switch e.Kind {
	case KindMissingKey:
		return "missing signing key"
	case KindInvalidKey:
		return "invalid private key: " + e.Message
	case KindDecode:
		return "decode error: " + e.Message
	case KindRpc:
		return "rpc error: " + e.Message
	default:
		return "executor error: " + e.Message
	}
}

func newError(kind ErrorKind, message string) *Error {
	return &Error{Kind: kind, Message: message}
}

// KindOf 提取执行错误的分类，非执行错误返回 0。
func KindOf(err error) ErrorKind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return 0
}
