package decoder

import (
	"fmt"

	"github.com/near/borsh-go"
)

// Kind 表示三种已知 Drift 指令的动作类型标签（与持久化的 action_type 一致）。
type Kind string

const (
	KindDepositIntoIsolatedPerpPosition  Kind = "depositIntoIsolatedPerpPosition"
	KindWithdrawFromIsolatedPerpPosition Kind = "withdrawFromIsolatedPerpPosition"
	KindPlacePerpOrder                   Kind = "placePerpOrder"
)

// AccountRoles 返回该指令类型的账户角色名列表（按账户在指令中的位置对应）。
// 未知类型返回 nil，位置超出列表长度的账户没有角色。
func (k Kind) AccountRoles() []string {
	switch k {
	case KindDepositIntoIsolatedPerpPosition:
		return []string{
			"state",
			"user",
			"userStats",
			"authority",
			"spotMarketVault",
			"userTokenAccount",
			"tokenProgram",
		}
	case KindWithdrawFromIsolatedPerpPosition:
		return []string{
			"state",
			"user",
			"userStats",
			"authority",
			"spotMarketVault",
			"driftSigner",
			"userTokenAccount",
			"tokenProgram",
		}
	case KindPlacePerpOrder:
		return []string{"state", "user", "authority"}
	default:
		return nil
	}
}

// IsolatedPerpMovementArgs 是 deposit/withdraw 指令共用的参数布局。
// 字段顺序即链上 borsh 布局，不可调整。
type IsolatedPerpMovementArgs struct {
	SpotMarketIndex uint16
	PerpMarketIndex uint16
	Amount          uint64
}

// borsh 编码后的固定长度：u16 + u16 + u64
const movementArgsLen = 12

// OrderParams 对应链上 place_perp_order 的参数布局。
// 指针字段为 borsh Option 编码（1 字节存在标记 + 值）。
type OrderParams struct {
	OrderType         OrderType
	MarketType        MarketType
	Direction         PositionDirection
	UserOrderID       uint8
	BaseAssetAmount   uint64
	Price             uint64
	MarketIndex       uint16
	ReduceOnly        bool
	PostOnly          PostOnlyParam
	BitFlags          uint8
	MaxTs             *int64
	TriggerPrice      *uint64
	TriggerCondition  OrderTriggerCondition
	OraclePriceOffset *int32
	AuctionDuration   *uint8
	AuctionStartPrice *int64
	AuctionEndPrice   *int64
}

// Validate 校验所有枚举判别值均在声明范围内，越界视为硬解码错误。
func (p *OrderParams) Validate() error {
	if !p.OrderType.Valid() {
		return decodeErrorf("order_type discriminant out of range: %d", uint8(p.OrderType))
	}
	if !p.MarketType.Valid() {
		return decodeErrorf("market_type discriminant out of range: %d", uint8(p.MarketType))
	}
	if !p.Direction.Valid() {
		return decodeErrorf("direction discriminant out of range: %d", uint8(p.Direction))
	}
	if !p.PostOnly.Valid() {
		return decodeErrorf("post_only discriminant out of range: %d", uint8(p.PostOnly))
	}
	if !p.TriggerCondition.Valid() {
		return decodeErrorf("trigger_condition discriminant out of range: %d", uint8(p.TriggerCondition))
	}
	return nil
}

type OrderType borsh.Enum

const (
	OrderTypeMarket OrderType = iota
	OrderTypeLimit
	OrderTypeTriggerMarket
	OrderTypeTriggerLimit
	OrderTypeOracle
)

func (t OrderType) Valid() bool { return t <= OrderTypeOracle }

func (t OrderType) String() string {
	switch t {
	case OrderTypeMarket:
		return "Market"
	case OrderTypeLimit:
		return "Limit"
	case OrderTypeTriggerMarket:
		return "TriggerMarket"
	case OrderTypeTriggerLimit:
		return "TriggerLimit"
	case OrderTypeOracle:
		return "Oracle"
	default:
		return fmt.Sprintf("OrderType(%d)", uint8(t))
	}
}

type MarketType borsh.Enum

const (
	MarketTypeSpot MarketType = iota
	MarketTypePerp
)

func (t MarketType) Valid() bool { return t <= MarketTypePerp }

func (t MarketType) String() string {
	switch t {
	case MarketTypeSpot:
		return "Spot"
	case MarketTypePerp:
		return "Perp"
	default:
		return fmt.Sprintf("MarketType(%d)", uint8(t))
	}
}

type PositionDirection borsh.Enum

const (
	DirectionLong PositionDirection = iota
	DirectionShort
)

func (d PositionDirection) Valid() bool { return d <= DirectionShort }

func (d PositionDirection) String() string {
	switch d {
	case DirectionLong:
		return "Long"
	case DirectionShort:
		return "Short"
	default:
		return fmt.Sprintf("PositionDirection(%d)", uint8(d))
	}
}

type PostOnlyParam borsh.Enum

const (
	PostOnlyNone PostOnlyParam = iota
	PostOnlyMustPostOnly
	PostOnlyTryPostOnly
	PostOnlySlide
)

func (p PostOnlyParam) Valid() bool { return p <= PostOnlySlide }

func (p PostOnlyParam) String() string {
	switch p {
	case PostOnlyNone:
		return "None"
	case PostOnlyMustPostOnly:
		return "MustPostOnly"
	case PostOnlyTryPostOnly:
		return "TryPostOnly"
	case PostOnlySlide:
		return "Slide"
	default:
		return fmt.Sprintf("PostOnlyParam(%d)", uint8(p))
	}
}

type OrderTriggerCondition borsh.Enum

const (
	TriggerAbove OrderTriggerCondition = iota
	TriggerBelow
	TriggerTriggeredAbove
	TriggerTriggeredBelow
)

func (c OrderTriggerCondition) Valid() bool { return c <= TriggerTriggeredBelow }

func (c OrderTriggerCondition) String() string {
	switch c {
	case TriggerAbove:
		return "Above"
	case TriggerBelow:
		return "Below"
	case TriggerTriggeredAbove:
		return "TriggeredAbove"
	case TriggerTriggeredBelow:
		return "TriggeredBelow"
	default:
		return fmt.Sprintf("OrderTriggerCondition(%d)", uint8(c))
	}
}

// OrderBitFlagLabels 按位展开 bit_flags 标签：bit0=ImmediateOrCancel，bit1=UpdateHighLeverageMode。
func OrderBitFlagLabels(bitFlags uint8) []string {
	labels := make([]string, 0, 2)
	if bitFlags&0b01 != 0 {
		labels = append(labels, "ImmediateOrCancel")
	}
	if bitFlags&0b10 != 0 {
		labels = append(labels, "UpdateHighLeverageMode")
	}
	return labels
}
