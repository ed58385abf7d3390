package chain

import (
	"context"
	"fmt"
	"time"

	"github.com/blocto/solana-go-sdk/client"
	"github.com/blocto/solana-go-sdk/rpc"
	soltypes "github.com/blocto/solana-go-sdk/types"

	"drift-gateway/internal/logic/decoder"
	"drift-gateway/internal/types"
	"drift-gateway/pkg/logger"
)

// Client 封装 Solana RPC：对解码侧提供交易查询，对执行侧提供交易提交。
// SDK 的返回结构只在本包内出现，上层只见 decoder / executor 自己的类型。
type Client struct {
	rpc            *client.Client
	confirmTimeout time.Duration
}

// SignatureInfo 是历史回补用的签名分页条目。
type SignatureInfo struct {
	Signature string
	Slot      uint64
	BlockTime *int64
	Failed    bool
}

func NewClient(endpoint string, confirmTimeout time.Duration) *Client {
	if confirmTimeout <= 0 {
		confirmTimeout = 30 * time.Second
	}
	return &Client{
		rpc:            client.NewClient(endpoint),
		confirmTimeout: confirmTimeout,
	}
}

// FetchTransaction 实现 decoder.TxFetcher：
// 拉取已确认交易并转换为解码侧视图（含 lookup table 展开与 token 余额）。
func (c *Client) FetchTransaction(ctx context.Context, signature string) (*decoder.FetchedTransaction, error) {
	tx, err := c.rpc.GetTransaction(ctx, signature)
	if err != nil {
		return nil, fmt.Errorf("get transaction %s: %w", signature, err)
	}
	if tx == nil || tx.Meta == nil {
		return nil, fmt.Errorf("transaction %s not found or not confirmed", signature)
	}

	msg := tx.Transaction.Message
	fetched := &decoder.FetchedTransaction{
		Signature: signature,
		Slot:      tx.Slot,
		BlockTime: tx.BlockTime,
		Message: decoder.Message{
			Header: decoder.MessageHeader{
				NumRequiredSignatures: msg.Header.NumRequireSignatures,
				NumReadonlySigned:     msg.Header.NumReadonlySignedAccounts,
				NumReadonlyUnsigned:   msg.Header.NumReadonlyUnsignedAccounts,
			},
			AccountKeys:  make([]types.Pubkey, 0, len(msg.Accounts)),
			Instructions: make([]decoder.CompiledInstruction, 0, len(msg.Instructions)),
		},
	}
	for _, acc := range msg.Accounts {
		key, err := types.PubkeyFromBytes(acc.Bytes())
		if err != nil {
			return nil, fmt.Errorf("invalid account key in %s: %w", signature, err)
		}
		fetched.Message.AccountKeys = append(fetched.Message.AccountKeys, key)
	}
	for _, inst := range msg.Instructions {
		fetched.Message.Instructions = append(fetched.Message.Instructions, decoder.CompiledInstruction{
			ProgramIDIndex: inst.ProgramIDIndex,
			Accounts:       inst.Accounts,
			Data:           inst.Data,
		})
	}

	loaded := tx.Meta.LoadedAddresses
	fetched.Meta.LoadedWritable, err = parsePubkeys(loaded.Writable)
	if err != nil {
		return nil, fmt.Errorf("invalid loaded writable key in %s: %w", signature, err)
	}
	fetched.Meta.LoadedReadonly, err = parsePubkeys(loaded.Readonly)
	if err != nil {
		return nil, fmt.Errorf("invalid loaded readonly key in %s: %w", signature, err)
	}
	fetched.Meta.PreTokenBalances = convertTokenBalances(tx.Meta.PreTokenBalances)
	fetched.Meta.PostTokenBalances = convertTokenBalances(tx.Meta.PostTokenBalances)
	return fetched, nil
}

// SendTransaction 实现 executor.Submitter：
// 开启 preflight 提交交易，并轮询签名状态直到 confirmed。
func (c *Client) SendTransaction(ctx context.Context, tx soltypes.Transaction) (string, error) {
	signature, err := c.rpc.SendTransactionWithConfig(ctx, tx, client.SendTransactionConfig{
		SkipPreflight:       false,
		PreflightCommitment: rpc.CommitmentConfirmed,
	})
	if err != nil {
		return "", err
	}
	if err := c.waitConfirmed(ctx, signature); err != nil {
		return "", err
	}
	return signature, nil
}

func (c *Client) waitConfirmed(ctx context.Context, signature string) error {
	ctx, cancel := context.WithTimeout(ctx, c.confirmTimeout)
	defer cancel()

	ticker := time.NewTicker(500 * time.Millisecond)
	defer ticker.Stop()
	for {
		status, err := c.rpc.GetSignatureStatus(ctx, signature)
		if err != nil {
			logger.Warnf("[Chain] 查询签名状态失败: signature=%s err=%v", signature, err)
		} else if status != nil {
			if status.Err != nil {
				return fmt.Errorf("transaction %s failed on chain: %v", signature, status.Err)
			}
			if status.ConfirmationStatus != nil &&
				(*status.ConfirmationStatus == rpc.CommitmentConfirmed || *status.ConfirmationStatus == rpc.CommitmentFinalized) {
				return nil
			}
		}
		select {
		case <-ctx.Done():
			return fmt.Errorf("confirm %s: %w", signature, ctx.Err())
		case <-ticker.C:
		}
	}
}

// ListSignatures 按地址分页拉取历史签名，before 为空时从最新开始。
// 返回顺序与 RPC 一致（新到旧），供回补任务逐页向前推进。
func (c *Client) ListSignatures(ctx context.Context, address string, before string, limit int) ([]SignatureInfo, error) {
	resp, err := c.rpc.GetSignaturesForAddressWithConfig(ctx, address, client.GetSignaturesForAddressConfig{
		Limit:      limit,
		Before:     before,
		Commitment: rpc.CommitmentConfirmed,
	})
	if err != nil {
		return nil, fmt.Errorf("get signatures for %s: %w", address, err)
	}
	infos := make([]SignatureInfo, 0, len(resp))
	for _, item := range resp {
		infos = append(infos, SignatureInfo{
			Signature: item.Signature,
			Slot:      item.Slot,
			BlockTime: item.BlockTime,
			Failed:    item.Err != nil,
		})
	}
	return infos, nil
}

func parsePubkeys(raw []string) ([]types.Pubkey, error) {
	keys := make([]types.Pubkey, 0, len(raw))
	for _, s := range raw {
		key, err := types.TryPubkeyFromBase58(s)
		if err != nil {
			return nil, err
		}
		keys = append(keys, key)
	}
	return keys, nil
}

func convertTokenBalances(raw []rpc.TransactionMetaTokenBalance) []decoder.TokenBalance {
	balances := make([]decoder.TokenBalance, 0, len(raw))
	for _, b := range raw {
		balances = append(balances, decoder.TokenBalance{
			AccountIndex: int(b.AccountIndex),
			Mint:         b.Mint,
			Owner:        b.Owner,
			Amount:       b.UITokenAmount.Amount,
			Decimals:     b.UITokenAmount.Decimals,
		})
	}
	return balances
}
