package executor

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"

	soltypes "github.com/blocto/solana-go-sdk/types"
	"github.com/mr-tron/base58"
)

// loadAccount 按优先级解析私钥配置：
// 1. JSON 字节数组字符串（"[12,34,...]")；
// 2. 英文逗号分隔的字节列表；
// 3. base58 编码字符串。
// 空串由调用方先行拦截为 MissingKey。
func loadAccount(keyStr string) (soltypes.Account, error) {
	trimmed := strings.TrimSpace(keyStr)
	if trimmed == "" {
		return soltypes.Account{}, fmt.Errorf("empty private key")
	}

	if strings.HasPrefix(trimmed, "[") {
		var ints []int
		if err := json.Unmarshal([]byte(trimmed), &ints); err != nil {
			return soltypes.Account{}, fmt.Errorf("invalid json array: %w", err)
		}
		return accountFromInts(ints)
	}

	if strings.Contains(trimmed, ",") {
		parts := strings.Split(trimmed, ",")
		ints := make([]int, 0, len(parts))
		for _, part := range parts {
			v, err := strconv.Atoi(strings.TrimSpace(part))
			if err != nil {
				return soltypes.Account{}, fmt.Errorf("invalid byte %q: %w", part, err)
			}
			ints = append(ints, v)
		}
		return accountFromInts(ints)
	}

	raw, err := base58.Decode(trimmed)
	if err != nil {
		return soltypes.Account{}, fmt.Errorf("invalid base58: %w", err)
	}
	return soltypes.AccountFromBytes(raw)
}

func accountFromInts(ints []int) (soltypes.Account, error) {
	raw := make([]byte, len(ints))
	for i, v := range ints {
		if v < 0 || v > 255 {
			return soltypes.Account{}, fmt.Errorf("byte %d out of range at index %d", v, i)
		}
		raw[i] = byte(v)
	}
	return soltypes.AccountFromBytes(raw)
}
