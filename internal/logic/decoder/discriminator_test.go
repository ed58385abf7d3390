package decoder

import (
	"encoding/hex"
	"testing"

	"github.com/stretchr/testify/assert"
)

// 判别前缀是 sha256("global:<name>") 的前 8 字节，
// 这里钉死十六进制值防止算法被误改。
func TestAnchorDiscriminator(t *testing.T) {
	cases := []struct {
		name string
		want string
	}{
		{"deposit_into_isolated_perp_position", "6530ff997f79aa1a"},
		{"withdraw_from_isolated_perp_position", "255cb2958c4c9f87"},
		{"place_perp_order", "45a15dca787e4cb9"},
	}
	for _, c := range cases {
		disc := AnchorDiscriminator(c.name)
		assert.Equal(t, c.want, hex.EncodeToString(disc[:]), c.name)
	}
}

func TestFormatDiscriminator(t *testing.T) {
	assert.Equal(t, "01:02:03", FormatDiscriminator([]byte{1, 2, 3}))
	// 超过 8 字节只取前缀
	assert.Equal(t, "00:01:02:03:04:05:06:07",
		FormatDiscriminator([]byte{0, 1, 2, 3, 4, 5, 6, 7, 8, 9}))
	assert.Equal(t, "", FormatDiscriminator(nil))
}
