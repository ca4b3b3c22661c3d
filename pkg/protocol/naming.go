package protocol

import (
	"strings"
	"unicode"
)

// UpperSnake 把 PascalCase 类型名转换为命令名，如 DanmuMsg → DANMU_MSG，
// LikeInfoV3Update → LIKE_INFO_V3_UPDATE
func UpperSnake(name string) string {
	return strings.ToUpper(splitPascal(name))
}

// Snake 把 PascalCase 转换为 snake_case，如 DanmuMsg → danmu_msg
func Snake(name string) string {
	return strings.ToLower(splitPascal(name))
}

func splitPascal(name string) string {
	var b strings.Builder
	b.Grow(len(name) + 4)
	for i, r := range name {
		if i > 0 && unicode.IsUpper(r) {
			b.WriteByte('_')
		}
		b.WriteRune(r)
	}
	return b.String()
}
