package server

// 请求/响应结构与 worker 的函数签名一一对应，字段用 camelCase JSON。

type OpenIsolatedRequest struct {
	Wallet   string  `json:"wallet"`
	Market   string  `json:"market"`
	Size     float64 `json:"size"`
	Leverage float64 `json:"leverage"`
	Margin   float64 `json:"margin"`
}

type ClosePositionRequest struct {
	Wallet string   `json:"wallet"`
	Market string   `json:"market"`
	Size   *float64 `json:"size,optional"`
}

type TransferMarginRequest struct {
	Wallet string  `json:"wallet"`
	Market string  `json:"market"`
	Delta  float64 `json:"delta"`
}

type DepositNativeRequest struct {
	Wallet string  `json:"wallet"`
	Market string  `json:"market,optional"`
	Amount float64 `json:"amount"`
}

type DepositTokenRequest struct {
	Wallet string  `json:"wallet"`
	Market string  `json:"market,optional"`
	Amount float64 `json:"amount"`
}

type WalletQuery struct {
	Wallet string `form:"wallet"`
}

type IsolatedBalanceQuery struct {
	Wallet string `form:"wallet"`
	Market string `form:"market,optional"`
}

type MarketPath struct {
	Symbol string `path:"symbol"`
}

type DecodePath struct {
	Signature string `path:"signature"`
}

type ActionsQuery struct {
	Limit int `form:"limit,default=100"`
}

type ApiErrorBody struct {
	Error string `json:"error"`
}
