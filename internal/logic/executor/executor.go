package executor

import (
	"context"
	"crypto/ed25519"
	"encoding/base64"
	"strings"
	"sync"

	soltypes "github.com/blocto/solana-go-sdk/types"

	"drift-gateway/pkg/logger"
)

// Submitter 是执行侧对链上提交能力的抽象，由 RPC 适配层实现。
// 实现方需开启 preflight 模拟并等待 confirmed 级别确认，返回交易签名。
type Submitter interface {
	SendTransaction(ctx context.Context, tx soltypes.Transaction) (string, error)
}

// Executor 持有服务端签名私钥，对 worker 构造的交易做签名并提交。
// 单把互斥锁覆盖整个 Execute 调用：同一实例上的签名+提交全程串行，
// 以吞吐换取"同一把钥匙绝不并发签名"的不变量。
type Executor struct {
	submitter Submitter
	account   soltypes.Account
	mu        sync.Mutex
}

// New 构造执行器。privateKey 为空返回 MissingKey，解析失败返回 InvalidKey。
func New(submitter Submitter, privateKey string) (*Executor, error) {
	if strings.TrimSpace(privateKey) == "" {
		return nil, newError(KindMissingKey, "")
	}
	account, err := loadAccount(privateKey)
	if err != nil {
		return nil, newError(KindInvalidKey, err.Error())
	}
	return &Executor{submitter: submitter, account: account}, nil
}

// PublicKeyBase58 返回签名公钥的 base58 形式。
func (e *Executor) PublicKeyBase58() string {
	return e.account.PublicKey.ToBase58()
}

// Execute 解码 base64 交易、以持有私钥签名第 0 个签名槽位并提交上链。
// worker 约定本进程公钥为 fee payer；消息首账户与持有公钥不一致时拒绝执行，
// 不做静默覆盖。成功返回链上交易签名。
func (e *Executor) Execute(ctx context.Context, txBase64 string) (string, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	raw, err := base64.StdEncoding.DecodeString(txBase64)
	if err != nil {
		return "", newError(KindDecode, err.Error())
	}
	tx, err := soltypes.TransactionDeserialize(raw)
	if err != nil {
		return "", newError(KindDecode, err.Error())
	}

	if len(tx.Message.Accounts) == 0 || tx.Message.Accounts[0] != e.account.PublicKey {
		return "", newError(KindDecode, "transaction fee payer does not match executor key "+e.account.PublicKey.ToBase58())
	}

	message, err := tx.Message.Serialize()
	if err != nil {
		return "", newError(KindDecode, "serialize message: "+err.Error())
	}
	signature := ed25519.Sign(e.account.PrivateKey, message)
	if len(tx.Signatures) == 0 {
		tx.Signatures = []soltypes.Signature{signature}
	} else {
		tx.Signatures[0] = signature
	}

	txSig, err := e.submitter.SendTransaction(ctx, tx)
	if err != nil {
		logRpcError(err)
		return "", newError(KindRpc, err.Error())
	}

	logger.Infof("[Executor] 交易已执行: signature=%s", txSig)
	return txSig, nil
}

// logRpcError 在日志中区分 preflight 模拟失败与普通 RPC 失败（仅日志层面区分）。
func logRpcError(err error) {
	if strings.Contains(err.Error(), "Preflight") {
		logger.Errorf("[Executor] 交易 preflight 模拟失败: %v", err)
		return
	}
	logger.Errorf("[Executor] RPC 提交失败: %v", err)
}
