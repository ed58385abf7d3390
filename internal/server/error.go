package server

import (
	"net/http"

	"github.com/zeromicro/go-zero/rest/httpx"

	"drift-gateway/internal/logic/executor"
	"drift-gateway/internal/logic/ipc"
)

type apiError struct {
	status  int
	message string
}

func newApiError(status int, message string) *apiError {
	return &apiError{status: status, message: message}
}

func (e *apiError) Error() string {
	return e.message
}

// mapIpcError 把 worker 调用错误映射为 HTTP 状态：
// 超时 → 504；worker 不可用（崩溃/拉起失败/写失败）→ 502；
// 协议畸形与远端业务错误 → 400（消息原样返回给调用方）。
func mapIpcError(err error) *apiError {
	switch ipc.KindOf(err) {
	case ipc.KindTimeout:
		return newApiError(http.StatusGatewayTimeout, "worker timeout")
	case ipc.KindWorkerCrashed, ipc.KindSpawn, ipc.KindWrite:
		return newApiError(http.StatusBadGateway, "worker unavailable")
	case ipc.KindProtocol, ipc.KindRemote:
		return newApiError(http.StatusBadRequest, err.Error())
	default:
		return newApiError(http.StatusInternalServerError, err.Error())
	}
}

// mapExecutorError 配置类 key 错误归 500，坏交易归 400，链上拒绝归 502。
func mapExecutorError(err error) *apiError {
	switch executor.KindOf(err) {
	case executor.KindMissingKey:
		return newApiError(http.StatusInternalServerError, "server missing signing key")
	case executor.KindInvalidKey:
		return newApiError(http.StatusInternalServerError, err.Error())
	case executor.KindDecode:
		return newApiError(http.StatusBadRequest, err.Error())
	case executor.KindRpc:
		return newApiError(http.StatusBadGateway, err.Error())
	default:
		return newApiError(http.StatusInternalServerError, err.Error())
	}
}

func writeError(w http.ResponseWriter, err *apiError) {
	httpx.WriteJson(w, err.status, ApiErrorBody{Error: err.message})
}
