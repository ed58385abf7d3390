package decoder

import (
	"crypto/sha256"
	"fmt"
	"strings"
)

// AnchorDiscriminator 计算 Anchor 指令判别前缀：
// sha256("global:<snake_case指令名>") 的前 8 字节。
func AnchorDiscriminator(name string) [8]byte {
	sum := sha256.Sum256([]byte("global:" + name))
	var disc [8]byte
	copy(disc[:], sum[:8])
	return disc
}

var (
	depositDisc        = AnchorDiscriminator("deposit_into_isolated_perp_position")
	withdrawDisc       = AnchorDiscriminator("withdraw_from_isolated_perp_position")
	placePerpOrderDisc = AnchorDiscriminator("place_perp_order")
)

// FormatDiscriminator 将指令数据前 8 字节渲染为十六进制、冒号分隔的调试形式。
// 数据不足 8 字节时按实际长度渲染。
func FormatDiscriminator(data []byte) string {
	take := len(data)
	if take > 8 {
		take = 8
	}
	parts := make([]string, 0, take)
	for _, b := range data[:take] {
		parts = append(parts, fmt.Sprintf("%02x", b))
	}
	return strings.Join(parts, ":")
}
