package decoder

import (
	"fmt"

	"github.com/near/borsh-go"
)

// DecodeError 表示单条指令的硬解码失败（payload 过短、布局不符、枚举越界）。
// 只影响该条指令，不影响同交易内其余指令的解码。
type DecodeError struct {
	Reason string
}

func (e *DecodeError) Error() string {
	return "instruction decode error: " + e.Reason
}

func decodeErrorf(format string, args ...any) *DecodeError {
	return &DecodeError{Reason: fmt.Sprintf(format, args...)}
}

// DecodedInstruction 是已识别指令的解码结果（按 Kind 区分的 tagged union）。
// Movement 和 Order 二者只会有一个非 nil。
type DecodedInstruction struct {
	Kind     Kind
	Movement *IsolatedPerpMovementArgs // deposit / withdraw
	Order    *OrderParams              // placePerpOrder
}

// DecodeInstruction 解析一条指令的原始数据。
// 返回 (nil, nil) 表示判别前缀不属于已知的三种指令（调用方按"非本程序指令"跳过）；
// 返回 DecodeError 表示 payload 过短或已知指令的参数解码失败。
func DecodeInstruction(data []byte) (*DecodedInstruction, error) {
	if len(data) < 8 {
		return nil, decodeErrorf("instruction shorter than anchor discriminator: %d bytes", len(data))
	}

	var disc [8]byte
	copy(disc[:], data[:8])
	rest := data[8:]

	switch disc {
	case depositDisc, withdrawDisc:
		// 固定布局 u16+u16+u64，多一个字节都视为布局不符
		if len(rest) != movementArgsLen {
			return nil, decodeErrorf("isolated perp movement args: expect %d bytes, got %d", movementArgsLen, len(rest))
		}
		var args IsolatedPerpMovementArgs
		if err := borsh.Deserialize(&args, rest); err != nil {
			return nil, decodeErrorf("isolated perp movement args: %v", err)
		}
		kind := KindDepositIntoIsolatedPerpPosition
		if disc == withdrawDisc {
			kind = KindWithdrawFromIsolatedPerpPosition
		}
		return &DecodedInstruction{Kind: kind, Movement: &args}, nil

	case placePerpOrderDisc:
		var params OrderParams
		if err := borsh.Deserialize(&params, rest); err != nil {
			return nil, decodeErrorf("order params: %v", err)
		}
		if err := params.Validate(); err != nil {
			return nil, err
		}
		// Option 字段使布局变长，回序列化核对长度，拒绝尾部多余字节
		encoded, err := borsh.Serialize(params)
		if err != nil {
			return nil, decodeErrorf("order params: %v", err)
		}
		if len(encoded) != len(rest) {
			return nil, decodeErrorf("order params: %d trailing bytes after payload", len(rest)-len(encoded))
		}
		return &DecodedInstruction{Kind: KindPlacePerpOrder, Order: &params}, nil
	}

	return nil, nil
}

// ArgsView 返回用于 dump/JSON 输出的参数视图（枚举渲染为字符串，bit_flags 附标签）。
func (d *DecodedInstruction) ArgsView() any {
	switch {
	case d.Movement != nil:
		return movementArgsView{
			SpotMarketIndex: d.Movement.SpotMarketIndex,
			PerpMarketIndex: d.Movement.PerpMarketIndex,
			Amount:          d.Movement.Amount,
		}
	case d.Order != nil:
		p := d.Order
		return orderArgsView{
			OrderType:         p.OrderType.String(),
			MarketType:        p.MarketType.String(),
			Direction:         p.Direction.String(),
			UserOrderID:       p.UserOrderID,
			BaseAssetAmount:   p.BaseAssetAmount,
			Price:             p.Price,
			MarketIndex:       p.MarketIndex,
			ReduceOnly:        p.ReduceOnly,
			PostOnly:          p.PostOnly.String(),
			BitFlags:          bitFlagsView{Raw: p.BitFlags, Labels: OrderBitFlagLabels(p.BitFlags)},
			MaxTs:             p.MaxTs,
			TriggerPrice:      p.TriggerPrice,
			TriggerCondition:  p.TriggerCondition.String(),
			OraclePriceOffset: p.OraclePriceOffset,
			AuctionDuration:   p.AuctionDuration,
			AuctionStartPrice: p.AuctionStartPrice,
			AuctionEndPrice:   p.AuctionEndPrice,
		}
	default:
		return nil
	}
}

type movementArgsView struct {
	SpotMarketIndex uint16 `json:"spotMarketIndex"`
	PerpMarketIndex uint16 `json:"perpMarketIndex"`
	Amount          uint64 `json:"amount"`
}

type bitFlagsView struct {
	Raw    uint8    `json:"raw"`
	Labels []string `json:"labels"`
}

type orderArgsView struct {
	OrderType         string       `json:"orderType"`
	MarketType        string       `json:"marketType"`
	Direction         string       `json:"direction"`
	UserOrderID       uint8        `json:"userOrderId"`
	BaseAssetAmount   uint64       `json:"baseAssetAmount"`
	Price             uint64       `json:"price"`
	MarketIndex       uint16       `json:"marketIndex"`
	ReduceOnly        bool         `json:"reduceOnly"`
	PostOnly          string       `json:"postOnly"`
	BitFlags          bitFlagsView `json:"bitFlags"`
	MaxTs             *int64       `json:"maxTs"`
	TriggerPrice      *uint64      `json:"triggerPrice"`
	TriggerCondition  string       `json:"triggerCondition"`
	OraclePriceOffset *int32       `json:"oraclePriceOffset"`
	AuctionDuration   *uint8       `json:"auctionDuration"`
	AuctionStartPrice *int64       `json:"auctionStartPrice"`
	AuctionEndPrice   *int64       `json:"auctionEndPrice"`
}
