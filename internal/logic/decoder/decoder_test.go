package decoder

import (
	"bytes"
	"context"
	"testing"

	"github.com/near/borsh-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"drift-gateway/internal/types"
)

// fakeFetcher 按签名返回预置交易，替代真实 RPC。
type fakeFetcher struct {
	txs map[string]*FetchedTransaction
}

func (f *fakeFetcher) FetchTransaction(_ context.Context, signature string) (*FetchedTransaction, error) {
	tx, ok := f.txs[signature]
	if !ok {
		return nil, assert.AnError
	}
	return tx, nil
}

func makeKey(t *testing.T, b byte) types.Pubkey {
	t.Helper()
	key, err := types.PubkeyFromBytes(bytes.Repeat([]byte{b}, 32))
	require.NoError(t, err)
	return key
}

// 完整的 withdraw 交易 fixture：
// 静态账户 7 个（后 2 个只读），lookup table 加载 1 可写 + 1 只读，
// userTokenAccount 的 mint 通过 post token balance 反查。
func TestDecodeSignature_Withdraw(t *testing.T) {
	var (
		authority   = makeKey(t, 1) // 唯一签名者，可写
		state       = makeKey(t, 2)
		user        = makeKey(t, 3)
		userStats   = makeKey(t, 4)
		vault       = makeKey(t, 5)
		tokenProg   = makeKey(t, 6) // 静态只读
		program     = makeKey(t, 7) // 静态只读
		userTokenAc = makeKey(t, 8) // lookup table 可写
		driftSigner = makeKey(t, 9) // lookup table 只读
	)
	const (
		sig      = "testWithdrawSignature"
		usdcMint = "EPjFWdd5AufqSSqeM2qN1xzybapC8G4wEGGkZwyTDt1v"
	)

	args := IsolatedPerpMovementArgs{SpotMarketIndex: 0, PerpMarketIndex: 2, Amount: 5_000_000}
	payload, err := borsh.Serialize(args)
	require.NoError(t, err)
	data := append(append([]byte{}, withdrawDisc[:]...), payload...)

	blockTime := int64(1_720_000_000)
	tx := &FetchedTransaction{
		Signature: sig,
		Slot:      345_678,
		BlockTime: &blockTime,
		Message: Message{
			Header: MessageHeader{
				NumRequiredSignatures: 1,
				NumReadonlySigned:     0,
				NumReadonlyUnsigned:   2,
			},
			AccountKeys: []types.Pubkey{authority, state, user, userStats, vault, tokenProg, program},
			Instructions: []CompiledInstruction{
				// 非 Drift 指令：不应出现在 dump 中
				{ProgramIDIndex: 5, Accounts: []int{0}, Data: []byte{1, 2, 3}},
				// withdraw 指令，账户顺序按角色表
				{ProgramIDIndex: 6, Accounts: []int{1, 2, 3, 0, 4, 8, 7, 5}, Data: data},
			},
		},
		Meta: Meta{
			LoadedWritable: []types.Pubkey{userTokenAc},
			LoadedReadonly: []types.Pubkey{driftSigner},
			PostTokenBalances: []TokenBalance{
				{AccountIndex: 7, Mint: usdcMint, Amount: "5000000", Decimals: 6},
			},
		},
	}

	dec := NewDecoder(&fakeFetcher{txs: map[string]*FetchedTransaction{sig: tx}}, program)
	dump, records, err := dec.DecodeSignature(context.Background(), sig)
	require.NoError(t, err)

	require.NotNil(t, dump)
	assert.Equal(t, sig, dump.Signature)
	assert.Equal(t, uint64(345_678), dump.Slot)
	require.Len(t, dump.Instructions, 1)

	ix := dump.Instructions[0]
	assert.Equal(t, 1, ix.Index)
	assert.Equal(t, "25:5c:b2:95:8c:4c:9f:87", ix.Discriminator)
	require.NotNil(t, ix.Kind)
	assert.Equal(t, string(KindWithdrawFromIsolatedPerpPosition), *ix.Kind)
	require.Len(t, ix.Accounts, 8)

	// 角色按位置对应
	wantRoles := KindWithdrawFromIsolatedPerpPosition.AccountRoles()
	for i, acc := range ix.Accounts {
		require.NotNil(t, acc.Role, "position %d", i)
		assert.Equal(t, wantRoles[i], *acc.Role)
	}

	// authority 是唯一签名者且可写
	auth := ix.Accounts[3]
	assert.Equal(t, authority.String(), auth.Pubkey)
	assert.True(t, auth.IsSigner)
	assert.True(t, auth.IsWritable)
	// lookup table 可写段
	tokenAcc := ix.Accounts[6]
	assert.Equal(t, userTokenAc.String(), tokenAcc.Pubkey)
	assert.False(t, tokenAcc.IsSigner)
	assert.True(t, tokenAcc.IsWritable)
	// lookup table 只读段
	signerAcc := ix.Accounts[5]
	assert.Equal(t, driftSigner.String(), signerAcc.Pubkey)
	assert.False(t, signerAcc.IsWritable)
	// 静态只读段
	assert.False(t, ix.Accounts[7].IsWritable)

	// 动作记录
	require.Len(t, records, 1)
	r := records[0]
	assert.Equal(t, string(KindWithdrawFromIsolatedPerpPosition), r.ActionType)
	assert.Equal(t, sig, r.Signature)
	assert.Equal(t, 1, r.InstructionIndex)
	require.NotNil(t, r.PerpMarketIndex)
	assert.Equal(t, uint16(2), *r.PerpMarketIndex)
	require.NotNil(t, r.MarketIndex)
	assert.Equal(t, uint16(2), *r.MarketIndex)
	require.NotNil(t, r.SpotMarketIndex)
	assert.Equal(t, uint16(0), *r.SpotMarketIndex)
	require.NotNil(t, r.Amount)
	assert.Equal(t, uint64(5_000_000), *r.Amount)
	require.NotNil(t, r.TokenAmount)
	assert.Equal(t, uint64(5_000_000), *r.TokenAmount)
	require.NotNil(t, r.TokenAccount)
	assert.Equal(t, userTokenAc.String(), *r.TokenAccount)
	require.NotNil(t, r.TokenMint)
	assert.Equal(t, usdcMint, *r.TokenMint)
	assert.Nil(t, r.Leverage)
	assert.Nil(t, r.Direction)
}

// 坏指令只影响自身：留在 dump 中（Kind 为空）但不产出动作记录。
func TestDecodeSignature_BadInstructionIsolated(t *testing.T) {
	var (
		authority = makeKey(t, 1)
		program   = makeKey(t, 2)
	)
	const sig = "testBadInstruction"

	goodArgs := IsolatedPerpMovementArgs{SpotMarketIndex: 1, PerpMarketIndex: 4, Amount: 777}
	payload, err := borsh.Serialize(goodArgs)
	require.NoError(t, err)
	good := append(append([]byte{}, depositDisc[:]...), payload...)
	bad := append(append([]byte{}, depositDisc[:]...), 0x01) // 参数截断

	tx := &FetchedTransaction{
		Signature: sig,
		Slot:      1000,
		Message: Message{
			Header:      MessageHeader{NumRequiredSignatures: 1, NumReadonlyUnsigned: 1},
			AccountKeys: []types.Pubkey{authority, program},
			Instructions: []CompiledInstruction{
				{ProgramIDIndex: 1, Accounts: []int{0}, Data: bad},
				{ProgramIDIndex: 1, Accounts: []int{0}, Data: good},
			},
		},
	}

	dec := NewDecoder(&fakeFetcher{txs: map[string]*FetchedTransaction{sig: tx}}, program)
	dump, records, err := dec.DecodeSignature(context.Background(), sig)
	require.NoError(t, err)

	require.Len(t, dump.Instructions, 2)
	assert.Nil(t, dump.Instructions[0].Kind)
	assert.Nil(t, dump.Instructions[0].Args)
	require.NotNil(t, dump.Instructions[1].Kind)

	require.Len(t, records, 1)
	assert.Equal(t, string(KindDepositIntoIsolatedPerpPosition), records[0].ActionType)
	assert.Equal(t, 1, records[0].InstructionIndex)
}

// 程序索引越界是整笔交易的硬错误。
func TestDecodeSignature_ProgramIndexOutOfBounds(t *testing.T) {
	const sig = "testOutOfBounds"
	tx := &FetchedTransaction{
		Signature: sig,
		Message: Message{
			Header:       MessageHeader{NumRequiredSignatures: 1},
			AccountKeys:  []types.Pubkey{makeKey(t, 1)},
			Instructions: []CompiledInstruction{{ProgramIDIndex: 5}},
		},
	}
	dec := NewDecoder(&fakeFetcher{txs: map[string]*FetchedTransaction{sig: tx}}, makeKey(t, 2))
	dump, records, err := dec.DecodeSignature(context.Background(), sig)
	assert.Nil(t, dump)
	assert.Nil(t, records)
	assert.Error(t, err)
}

// pre 余额优先于 post，同账户首个命中生效。
func TestTokenMintLookup(t *testing.T) {
	tx := &FetchedTransaction{
		Meta: Meta{
			PreTokenBalances: []TokenBalance{
				{AccountIndex: 3, Mint: "mintA"},
				{AccountIndex: 3, Mint: "mintB"},
			},
			PostTokenBalances: []TokenBalance{
				{AccountIndex: 3, Mint: "mintC"},
				{AccountIndex: 5, Mint: "mintD"},
			},
		},
	}
	lookup := tx.TokenMintLookup()
	assert.Equal(t, "mintA", lookup[3])
	assert.Equal(t, "mintD", lookup[5])
}
