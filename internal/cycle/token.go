package cycle

import (
	"strings"
)

const (
	tokenNameLength   = 10
	tokenNameAlphabet = "ABCDEFGHIJKLMNOPQRSTUVWXYZabcdefghijklmnopqrstuvwxyz0123456789"
	minTokenSupply    = 1_000_000
	maxTokenSupply    = 10_000_000
	tokenDecimals     = 18
)

func randomTokenName(intn func(int) int) string {
	var b strings.Builder
	b.Grow(tokenNameLength)
	for i := 0; i < tokenNameLength; i++ {
		b.WriteByte(tokenNameAlphabet[intn(len(tokenNameAlphabet))])
	}
	return b.String()
}

// TokenSymbol 去掉名称中的元音后取前四个字符，大写并加上 $ 前缀。
func TokenSymbol(name string) string {
	stripped := strings.Map(func(r rune) rune {
		if strings.ContainsRune("aeiouAEIOU", r) {
			return -1
		}
		return r
	}, name)
	if len(stripped) > 4 {
		stripped = stripped[:4]
	}
	return "$" + strings.ToUpper(stripped)
}

// randomSupply 返回 [1e6, 1e7) 内的整数供应量。
func randomSupply(intn func(int) int) int64 {
	return int64(minTokenSupply + intn(maxTokenSupply-minTokenSupply))
}
