package server

import (
	"net/http"

	"github.com/zeromicro/go-zero/rest"

	"drift-gateway/internal/svc"
)

// RegisterHandlers 挂载全部路由。
// /xxx 为仅构造（返回 worker 的构造结果），/xxx/execute 为构造 + 签名提交。
func RegisterHandlers(server *rest.Server, svcCtx *svc.ServiceContext) {
	h := newHandlers(svcCtx)

	server.AddRoutes([]rest.Route{
		// 查询
		{Method: http.MethodGet, Path: "/positions", Handler: h.walletQueryHandler("getPositions")},
		{Method: http.MethodGet, Path: "/positions/details", Handler: h.walletQueryHandler("getPositionDetails")},
		{Method: http.MethodGet, Path: "/positions/isolated-balance", Handler: h.getIsolatedBalance},
		{Method: http.MethodGet, Path: "/trade-history", Handler: h.walletQueryHandler("getTrades")},
		{Method: http.MethodGet, Path: "/markets/:symbol", Handler: h.getMarket},
		{Method: http.MethodGet, Path: "/server/public-key", Handler: h.getServerPublicKey},

		// 交易构造
		{Method: http.MethodPost, Path: "/orders/open-isolated", Handler: buildHandler(h, h.openIsolatedBuild, false)},
		{Method: http.MethodPost, Path: "/orders/open-isolated/execute", Handler: buildHandler(h, h.openIsolatedBuild, true)},
		{Method: http.MethodPost, Path: "/orders/close", Handler: buildHandler(h, h.closePositionBuild, false)},
		{Method: http.MethodPost, Path: "/orders/close/execute", Handler: buildHandler(h, h.closePositionBuild, true)},
		{Method: http.MethodPost, Path: "/margin/transfer", Handler: buildHandler(h, h.transferMarginBuild, false)},
		{Method: http.MethodPost, Path: "/margin/transfer/execute", Handler: buildHandler(h, h.transferMarginBuild, true)},
		{Method: http.MethodPost, Path: "/margin/deposit-native", Handler: buildHandler(h, h.depositNativeBuild, false)},
		{Method: http.MethodPost, Path: "/margin/deposit-native/execute", Handler: buildHandler(h, h.depositNativeBuild, true)},
		{Method: http.MethodPost, Path: "/margin/deposit-token", Handler: buildHandler(h, h.depositTokenBuild, false)},
		{Method: http.MethodPost, Path: "/margin/deposit-token/execute", Handler: buildHandler(h, h.depositTokenBuild, true)},

		// 链上解码
		{Method: http.MethodGet, Path: "/decode/:signature", Handler: h.decodeSignature},
		{Method: http.MethodGet, Path: "/actions", Handler: h.getActions},
	})
}
