package decoder

// ActionRecord 是写入 drift_action_logs 的标准化动作记录。
// (signature, instruction_index) 为幂等键，重复解码同一签名走 upsert 覆盖。
type ActionRecord struct {
	Signature        string   `json:"signature"`
	Slot             uint64   `json:"slot"`
	BlockTime        *int64   `json:"block_time"`
	InstructionIndex int      `json:"instruction_index"`
	ActionType       string   `json:"action_type"`
	MarketIndex      *uint16  `json:"market_index"`
	PerpMarketIndex  *uint16  `json:"perp_market_index"`
	SpotMarketIndex  *uint16  `json:"spot_market_index"`
	Direction        *string  `json:"direction"`
	BaseAssetAmount  *uint64  `json:"base_asset_amount"`
	Price            *uint64  `json:"price"`
	ReduceOnly       *bool    `json:"reduce_only"`
	Leverage         *float64 `json:"leverage"` // 历史遗留列，解码不填充
	Amount           *uint64  `json:"amount"`
	TokenAccount     *string  `json:"token_account"`
	TokenMint        *string  `json:"token_mint"`
	TokenAmount      *uint64  `json:"token_amount"`
}

const roleUserTokenAccount = "userTokenAccount"

// buildActionRecord 将解码后的指令转为动作记录。
// 资金划转类（deposit/withdraw）从账户角色中定位 userTokenAccount，
// 并通过交易 token 余额元数据反查 mint；下单类按 MarketType 拆分市场索引。
func buildActionRecord(
	signature string,
	slot uint64,
	blockTime *int64,
	ixIndex int,
	decoded *DecodedInstruction,
	accounts []AccountDump,
	mintLookup map[int]string,
) *ActionRecord {
	record := &ActionRecord{
		Signature:        signature,
		Slot:             slot,
		BlockTime:        blockTime,
		InstructionIndex: ixIndex,
		ActionType:       string(decoded.Kind),
	}

	switch {
	case decoded.Movement != nil:
		args := decoded.Movement
		record.MarketIndex = ptr(args.PerpMarketIndex)
		record.PerpMarketIndex = ptr(args.PerpMarketIndex)
		record.SpotMarketIndex = ptr(args.SpotMarketIndex)
		record.Amount = ptr(args.Amount)
		record.TokenAmount = ptr(args.Amount)

		for i := range accounts {
			acc := &accounts[i]
			if acc.Role == nil || *acc.Role != roleUserTokenAccount {
				continue
			}
			record.TokenAccount = ptr(acc.Pubkey)
			if mint, ok := mintLookup[acc.MessageIndex]; ok {
				record.TokenMint = ptr(mint)
			}
			break
		}

	case decoded.Order != nil:
		params := decoded.Order
		record.MarketIndex = ptr(params.MarketIndex)
		if params.MarketType == MarketTypePerp {
			record.PerpMarketIndex = ptr(params.MarketIndex)
		}
		if params.MarketType == MarketTypeSpot {
			record.SpotMarketIndex = ptr(params.MarketIndex)
		}
		record.Direction = ptr(params.Direction.String())
		record.BaseAssetAmount = ptr(params.BaseAssetAmount)
		record.Price = ptr(params.Price)
		record.ReduceOnly = ptr(params.ReduceOnly)
	}

	return record
}

func ptr[T any](v T) *T {
	return &v
}
