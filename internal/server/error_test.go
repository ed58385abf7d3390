package server

import (
	"errors"
	"math"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"

	"drift-gateway/internal/logic/executor"
	"drift-gateway/internal/logic/ipc"
)

func TestMapIpcError(t *testing.T) {
	cases := []struct {
		kind       ipc.ErrorKind
		wantStatus int
	}{
		{ipc.KindTimeout, http.StatusGatewayTimeout},
		{ipc.KindWorkerCrashed, http.StatusBadGateway},
		{ipc.KindSpawn, http.StatusBadGateway},
		{ipc.KindWrite, http.StatusBadGateway},
		{ipc.KindProtocol, http.StatusBadRequest},
		{ipc.KindRemote, http.StatusBadRequest},
	}
	for _, c := range cases {
		apiErr := mapIpcError(&ipc.Error{Kind: c.kind, Message: "msg"})
		assert.Equal(t, c.wantStatus, apiErr.status, "kind=%v", c.kind)
	}
	// 远端业务错误的消息原样透出
	apiErr := mapIpcError(&ipc.Error{Kind: ipc.KindRemote, Message: "insufficient margin"})
	assert.Contains(t, apiErr.message, "insufficient margin")
	// 非 ipc 错误兜底 500
	assert.Equal(t, http.StatusInternalServerError, mapIpcError(errors.New("other")).status)
}

func TestMapExecutorError(t *testing.T) {
	cases := []struct {
		kind       executor.ErrorKind
		wantStatus int
	}{
		{executor.KindMissingKey, http.StatusInternalServerError},
		{executor.KindInvalidKey, http.StatusInternalServerError},
		{executor.KindDecode, http.StatusBadRequest},
		{executor.KindRpc, http.StatusBadGateway},
	}
	for _, c := range cases {
		apiErr := mapExecutorError(&executor.Error{Kind: c.kind, Message: "msg"})
		assert.Equal(t, c.wantStatus, apiErr.status, "kind=%v", c.kind)
	}
}

func TestValidateWallet(t *testing.T) {
	assert.NotNil(t, validateWallet(""))
	assert.NotNil(t, validateWallet("tooShort"))
	assert.Nil(t, validateWallet("4Nd1mYQqLkn2vGZW6pWslnLrZDftHB8RnX3lMZZSUGvF"))
}

func TestEnsurePositive(t *testing.T) {
	assert.Nil(t, ensurePositive("margin", 1.5))
	for _, v := range []float64{0, -1, math.Inf(1), math.Inf(-1), math.NaN()} {
		assert.NotNil(t, ensurePositive("margin", v), "value=%v", v)
	}
}
