package server

import (
	"context"
	"encoding/json"
	"math"
	"net/http"
	"time"

	"github.com/zeromicro/go-zero/rest/httpx"

	"drift-gateway/internal/svc"
	"drift-gateway/pkg/logger"
)

const (
	defaultBuildTimeout = 10 * time.Second
	defaultQueryTimeout = 5 * time.Second
)

type handlers struct {
	svcCtx       *svc.ServiceContext
	buildTimeout time.Duration
	queryTimeout time.Duration
}

func newHandlers(svcCtx *svc.ServiceContext) *handlers {
	h := &handlers{
		svcCtx:       svcCtx,
		buildTimeout: defaultBuildTimeout,
		queryTimeout: defaultQueryTimeout,
	}
	if ms := svcCtx.Config.TimeConf.BuildTimeoutMs; ms > 0 {
		h.buildTimeout = time.Duration(ms) * time.Millisecond
	}
	if ms := svcCtx.Config.TimeConf.QueryTimeoutMs; ms > 0 {
		h.queryTimeout = time.Duration(ms) * time.Millisecond
	}
	return h
}

func validateWallet(wallet string) *apiError {
	if len(wallet) < 32 {
		return newApiError(http.StatusBadRequest, "wallet must be a valid public key")
	}
	return nil
}

func ensurePositive(name string, value float64) *apiError {
	if math.IsInf(value, 0) || math.IsNaN(value) || value <= 0 {
		return newApiError(http.StatusBadRequest, name+" must be positive")
	}
	return nil
}

// callWorker 透传 worker 返回的 JSON，错误统一走 mapIpcError。
func (h *handlers) callWorker(ctx context.Context, fn string, args any, timeout time.Duration) (json.RawMessage, *apiError) {
	result, err := h.svcCtx.Bridge.Call(ctx, fn, args, timeout)
	if err != nil {
		return nil, mapIpcError(err)
	}
	return result, nil
}

// ------- 构造类接口 -------

func (h *handlers) openIsolatedBuild(ctx context.Context, body *OpenIsolatedRequest) (json.RawMessage, *apiError) {
	if err := validateWallet(body.Wallet); err != nil {
		return nil, err
	}
	if err := ensurePositive("margin", body.Margin); err != nil {
		return nil, err
	}
	if math.IsInf(body.Size, 0) || math.IsNaN(body.Size) || body.Size == 0 {
		return nil, newApiError(http.StatusBadRequest, "size must be a non-zero number")
	}
	if math.IsInf(body.Leverage, 0) || math.IsNaN(body.Leverage) || body.Leverage <= 0 || body.Leverage > 100 {
		return nil, newApiError(http.StatusBadRequest, "leverage must be between 0 and 100")
	}
	logger.Infof("[Gateway] open isolated request -> %s", body.Market)
	return h.callWorker(ctx, "openIsolated", map[string]any{
		"wallet":   body.Wallet,
		"market":   body.Market,
		"size":     body.Size,
		"leverage": body.Leverage,
		"margin":   body.Margin,
	}, h.buildTimeout)
}

func (h *handlers) closePositionBuild(ctx context.Context, body *ClosePositionRequest) (json.RawMessage, *apiError) {
	if err := validateWallet(body.Wallet); err != nil {
		return nil, err
	}
	if body.Size != nil {
		if err := ensurePositive("size", *body.Size); err != nil {
			return nil, newApiError(http.StatusBadRequest, "size must be positive when provided")
		}
	}
	return h.callWorker(ctx, "closePosition", map[string]any{
		"wallet": body.Wallet,
		"market": body.Market,
		"size":   body.Size,
	}, h.buildTimeout)
}

func (h *handlers) transferMarginBuild(ctx context.Context, body *TransferMarginRequest) (json.RawMessage, *apiError) {
	if err := validateWallet(body.Wallet); err != nil {
		return nil, err
	}
	if math.IsInf(body.Delta, 0) || math.IsNaN(body.Delta) || body.Delta == 0 {
		return nil, newApiError(http.StatusBadRequest, "delta must be a non-zero number")
	}
	return h.callWorker(ctx, "transferMargin", map[string]any{
		"wallet": body.Wallet,
		"market": body.Market,
		"delta":  body.Delta,
	}, h.buildTimeout)
}

func (h *handlers) depositNativeBuild(ctx context.Context, body *DepositNativeRequest) (json.RawMessage, *apiError) {
	if err := validateWallet(body.Wallet); err != nil {
		return nil, err
	}
	if err := ensurePositive("amount", body.Amount); err != nil {
		return nil, err
	}
	return h.callWorker(ctx, "depositNativeSol", map[string]any{
		"wallet": body.Wallet,
		"amount": body.Amount,
		"market": body.Market,
	}, h.buildTimeout)
}

func (h *handlers) depositTokenBuild(ctx context.Context, body *DepositTokenRequest) (json.RawMessage, *apiError) {
	if err := validateWallet(body.Wallet); err != nil {
		return nil, err
	}
	if err := ensurePositive("amount", body.Amount); err != nil {
		return nil, err
	}
	return h.callWorker(ctx, "depositToken", map[string]any{
		"wallet": body.Wallet,
		"amount": body.Amount,
		"market": body.Market,
	}, h.buildTimeout)
}

// executeBuilt 从 worker 返回值中取 txBase64，签名提交后把 txSignature 回填进原响应。
func (h *handlers) executeBuilt(ctx context.Context, built json.RawMessage) (json.RawMessage, *apiError) {
	var value map[string]any
	if err := json.Unmarshal(built, &value); err != nil {
		return nil, newApiError(http.StatusInternalServerError, "worker response is not a JSON object")
	}
	txBase64, ok := value["txBase64"].(string)
	if !ok || txBase64 == "" {
		return nil, newApiError(http.StatusInternalServerError, "worker response missing txBase64")
	}

	signature, err := h.svcCtx.Executor.Execute(ctx, txBase64)
	if err != nil {
		return nil, mapExecutorError(err)
	}
	value["txSignature"] = signature

	out, err := json.Marshal(value)
	if err != nil {
		return nil, newApiError(http.StatusInternalServerError, err.Error())
	}
	return out, nil
}

// buildHandler 把构造函数包装为 go-zero 处理器；execute=true 时追加签名提交。
func buildHandler[T any](h *handlers, build func(context.Context, *T) (json.RawMessage, *apiError), execute bool) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req T
		if err := httpx.Parse(r, &req); err != nil {
			writeError(w, newApiError(http.StatusBadRequest, err.Error()))
			return
		}
		result, apiErr := build(r.Context(), &req)
		if apiErr == nil && execute {
			result, apiErr = h.executeBuilt(r.Context(), result)
		}
		if apiErr != nil {
			writeError(w, apiErr)
			return
		}
		httpx.OkJson(w, result)
	}
}

// ------- 查询类接口 -------

func (h *handlers) walletQueryHandler(fn string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var query WalletQuery
		if err := httpx.Parse(r, &query); err != nil {
			writeError(w, newApiError(http.StatusBadRequest, err.Error()))
			return
		}
		if apiErr := validateWallet(query.Wallet); apiErr != nil {
			writeError(w, apiErr)
			return
		}
		result, apiErr := h.callWorker(r.Context(), fn, map[string]any{"wallet": query.Wallet}, h.queryTimeout)
		if apiErr != nil {
			writeError(w, apiErr)
			return
		}
		httpx.OkJson(w, result)
	}
}

func (h *handlers) getMarket(w http.ResponseWriter, r *http.Request) {
	var path MarketPath
	if err := httpx.Parse(r, &path); err != nil {
		writeError(w, newApiError(http.StatusBadRequest, err.Error()))
		return
	}
	result, apiErr := h.callWorker(r.Context(), "getMarket", map[string]any{"symbol": path.Symbol}, h.queryTimeout)
	if apiErr != nil {
		writeError(w, apiErr)
		return
	}
	httpx.OkJson(w, result)
}

func (h *handlers) getIsolatedBalance(w http.ResponseWriter, r *http.Request) {
	var query IsolatedBalanceQuery
	if err := httpx.Parse(r, &query); err != nil {
		writeError(w, newApiError(http.StatusBadRequest, err.Error()))
		return
	}
	if apiErr := validateWallet(query.Wallet); apiErr != nil {
		writeError(w, apiErr)
		return
	}
	result, apiErr := h.callWorker(r.Context(), "getIsolatedBalance", map[string]any{
		"wallet": query.Wallet,
		"market": query.Market,
	}, h.queryTimeout)
	if apiErr != nil {
		writeError(w, apiErr)
		return
	}
	httpx.OkJson(w, result)
}

func (h *handlers) getServerPublicKey(w http.ResponseWriter, r *http.Request) {
	httpx.OkJson(w, map[string]any{"publicKey": h.svcCtx.Executor.PublicKeyBase58()})
}

// ------- 解码类接口 -------

// decodeSignature 解码单笔交易：返回指令级 dump，标准化动作记录落库并旁路发 Kafka。
func (h *handlers) decodeSignature(w http.ResponseWriter, r *http.Request) {
	var path DecodePath
	if err := httpx.Parse(r, &path); err != nil {
		writeError(w, newApiError(http.StatusBadRequest, err.Error()))
		return
	}
	ctx, cancel := context.WithTimeout(r.Context(), h.queryTimeout)
	defer cancel()

	dump, records, err := h.svcCtx.Decoder.DecodeSignature(ctx, path.Signature)
	if err != nil {
		writeError(w, newApiError(http.StatusBadGateway, err.Error()))
		return
	}
	if err := h.svcCtx.Actions.InsertActions(ctx, records); err != nil {
		logger.Errorf("[Gateway] 动作记录落库失败: signature=%s err=%v", path.Signature, err)
		writeError(w, newApiError(http.StatusInternalServerError, "failed to persist actions"))
		return
	}
	h.svcCtx.Publisher.PublishActions(ctx, records)

	httpx.OkJson(w, map[string]any{
		"dump":    dump,
		"actions": records,
	})
}

func (h *handlers) getActions(w http.ResponseWriter, r *http.Request) {
	var query ActionsQuery
	if err := httpx.Parse(r, &query); err != nil {
		writeError(w, newApiError(http.StatusBadRequest, err.Error()))
		return
	}
	ctx, cancel := context.WithTimeout(r.Context(), h.queryTimeout)
	defer cancel()

	records, err := h.svcCtx.Actions.FetchActions(ctx, query.Limit)
	if err != nil {
		writeError(w, newApiError(http.StatusInternalServerError, err.Error()))
		return
	}
	httpx.OkJson(w, map[string]any{"actions": records})
}
