package decoder

import (
	"context"

	"drift-gateway/internal/types"
)

// TxFetcher 是解码侧对远端交易查询的抽象，由 RPC 适配层实现。
// 按 confirmed 级别返回完整交易（含元数据），未找到/未确认时返回 error。
type TxFetcher interface {
	FetchTransaction(ctx context.Context, signature string) (*FetchedTransaction, error)
}

// FetchedTransaction 表示一笔已确认交易的解码侧视图。
type FetchedTransaction struct {
	Signature string
	Slot      uint64
	BlockTime *int64 // Unix 秒，链上未提供时为 nil
	Message   Message
	Meta      Meta
}

// Message 是交易消息的静态部分。
type Message struct {
	Header       MessageHeader
	AccountKeys  []types.Pubkey // 静态声明的账户，按消息内顺序
	Instructions []CompiledInstruction
}

type MessageHeader struct {
	NumRequiredSignatures uint8
	NumReadonlySigned     uint8
	NumReadonlyUnsigned   uint8
}

// CompiledInstruction 中的账户均为全局账户表索引（见 AccountKeyTable）。
type CompiledInstruction struct {
	ProgramIDIndex int
	Accounts       []int
	Data           []byte
}

// Meta 是交易执行元数据中解码所需的子集。
type Meta struct {
	LoadedWritable    []types.Pubkey // Address Lookup Table 加载的可写账户
	LoadedReadonly    []types.Pubkey // Address Lookup Table 加载的只读账户
	PreTokenBalances  []TokenBalance
	PostTokenBalances []TokenBalance
}

// TokenBalance 表示执行前/后某账户的 SPL Token 余额条目（解码只关心账户索引与 mint）。
type TokenBalance struct {
	AccountIndex int
	Mint         string
	Owner        string
	Amount       string
	Decimals     uint8
}

// AccountKeyTable 构造交易的完整账户表：
// 静态账户 ++ lookup table 可写账户 ++ lookup table 只读账户。
// 指令中的 accountIndex 均以该表为索引空间。
func (f *FetchedTransaction) AccountKeyTable() []types.Pubkey {
	total := len(f.Message.AccountKeys) + len(f.Meta.LoadedWritable) + len(f.Meta.LoadedReadonly)
	keys := make([]types.Pubkey, 0, total)
	keys = append(keys, f.Message.AccountKeys...)
	keys = append(keys, f.Meta.LoadedWritable...)
	keys = append(keys, f.Meta.LoadedReadonly...)
	return keys
}

// IsSigner 判定全局账户表索引 idx 是否为签名账户。
func (f *FetchedTransaction) IsSigner(idx int) bool {
	return idx < int(f.Message.Header.NumRequiredSignatures)
}

// IsWritable 判定全局账户表索引 idx 是否可写。
// 静态账户按消息头划分，lookup table 账户按 writable/readonly 段划分。
func (f *FetchedTransaction) IsWritable(idx int) bool {
	h := f.Message.Header
	staticLen := len(f.Message.AccountKeys)
	switch {
	case idx < int(h.NumRequiredSignatures):
		return idx < int(h.NumRequiredSignatures)-int(h.NumReadonlySigned)
	case idx < staticLen:
		return idx < staticLen-int(h.NumReadonlyUnsigned)
	default:
		return idx < staticLen+len(f.Meta.LoadedWritable)
	}
}

// TokenMintLookup 构造 accountIndex → mint 的查找表。
// 先取 pre 余额，再补 post；同一账户首个命中生效。
func (f *FetchedTransaction) TokenMintLookup() map[int]string {
	lookup := make(map[int]string, len(f.Meta.PreTokenBalances)+len(f.Meta.PostTokenBalances))
	for _, b := range f.Meta.PreTokenBalances {
		if _, ok := lookup[b.AccountIndex]; !ok {
			lookup[b.AccountIndex] = b.Mint
		}
	}
	for _, b := range f.Meta.PostTokenBalances {
		if _, ok := lookup[b.AccountIndex]; !ok {
			lookup[b.AccountIndex] = b.Mint
		}
	}
	return lookup
}
