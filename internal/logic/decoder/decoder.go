package decoder

import (
	"context"
	"encoding/base64"
	"fmt"

	"drift-gateway/internal/types"
	"drift-gateway/pkg/logger"
)

// DefaultDriftProgram 是 Drift 程序的默认地址（devnet 与 mainnet 相同）。
const DefaultDriftProgram = "dRiftyHA39MWEi3m9aunc5MzRF1JYuBsbn6VPcn33UH"

// Decoder 将链上交易中的 Drift 指令解码为审计 dump 与标准化动作记录。
// 自身无共享可变状态，可被任意并发调用。
type Decoder struct {
	fetcher TxFetcher
	program types.Pubkey
}

func NewDecoder(fetcher TxFetcher, program types.Pubkey) *Decoder {
	return &Decoder{fetcher: fetcher, program: program}
}

func (d *Decoder) Program() types.Pubkey {
	return d.program
}

// DecodeSignature 拉取指定签名的交易并解码其中全部 Drift 指令。
//
// 行为约定：
//   - 程序不匹配的指令直接跳过，不出现在 dump 中；
//   - 单条指令解码失败只记日志，该指令仍进入 dump（Kind=nil）但不产出动作记录；
//   - 交易内没有任何 Drift 指令不是错误，返回空 dump 并告警。
func (d *Decoder) DecodeSignature(ctx context.Context, signature string) (*SignatureDump, []*ActionRecord, error) {
	tx, err := d.fetcher.FetchTransaction(ctx, signature)
	if err != nil {
		return nil, nil, fmt.Errorf("fetching transaction %s: %w", signature, err)
	}

	accountKeys := tx.AccountKeyTable()
	mintLookup := tx.TokenMintLookup()

	var (
		instructionDumps []InstructionDump
		actionRecords    []*ActionRecord
		driftIxFound     bool
	)

	for ixIdx, ix := range tx.Message.Instructions {
		if ix.ProgramIDIndex < 0 || ix.ProgramIDIndex >= len(accountKeys) {
			return nil, nil, fmt.Errorf("program index %d out of bounds (tx=%s, ix=%d)", ix.ProgramIDIndex, signature, ixIdx)
		}
		programID := accountKeys[ix.ProgramIDIndex]
		if !programID.Equals(d.program) {
			continue
		}
		driftIxFound = true

		decoded, decodeErr := DecodeInstruction(ix.Data)
		if decodeErr != nil {
			logger.Errorf("[Decoder] 指令解码失败: tx=%s, ix=%d, err=%v", signature, ixIdx, decodeErr)
			decoded = nil
		}

		accounts, err := d.buildAccountDump(tx, ix, accountKeys, decoded)
		if err != nil {
			return nil, nil, fmt.Errorf("tx=%s, ix=%d: %w", signature, ixIdx, err)
		}

		var (
			kindLabel *string
			argsView  any
		)
		if decoded != nil {
			kindLabel = ptr(string(decoded.Kind))
			argsView = decoded.ArgsView()
			actionRecords = append(actionRecords,
				buildActionRecord(signature, tx.Slot, tx.BlockTime, ixIdx, decoded, accounts, mintLookup))
		}

		instructionDumps = append(instructionDumps, InstructionDump{
			Index:         ixIdx,
			Discriminator: FormatDiscriminator(ix.Data),
			RawDataB64:    base64.StdEncoding.EncodeToString(ix.Data),
			DataLen:       len(ix.Data),
			ProgramID:     programID.String(),
			Kind:          kindLabel,
			Args:          argsView,
			Accounts:      accounts,
		})
	}

	if !driftIxFound {
		logger.Warnf("[Decoder] 交易中没有 Drift 指令: tx=%s", signature)
	}

	dump := &SignatureDump{
		Signature:    signature,
		Slot:         tx.Slot,
		BlockTime:    tx.BlockTime,
		Instructions: instructionDumps,
	}
	return dump, actionRecords, nil
}

// buildAccountDump 构造一条指令的账户快照，角色按解码类型的角色表位置对应。
func (d *Decoder) buildAccountDump(
	tx *FetchedTransaction,
	ix CompiledInstruction,
	accountKeys []types.Pubkey,
	decoded *DecodedInstruction,
) ([]AccountDump, error) {
	var roles []string
	if decoded != nil {
		roles = decoded.Kind.AccountRoles()
	}

	accounts := make([]AccountDump, 0, len(ix.Accounts))
	for position, globalIdx := range ix.Accounts {
		if globalIdx < 0 || globalIdx >= len(accountKeys) {
			return nil, fmt.Errorf("account index %d out of bounds", globalIdx)
		}
		dump := AccountDump{
			Position:     position,
			MessageIndex: globalIdx,
			Pubkey:       accountKeys[globalIdx].String(),
			IsSigner:     tx.IsSigner(globalIdx),
			IsWritable:   tx.IsWritable(globalIdx),
		}
		if position < len(roles) {
			dump.Role = ptr(roles[position])
		}
		accounts = append(accounts, dump)
	}
	return accounts, nil
}
