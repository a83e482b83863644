package imapfetch

import (
	"strings"

	"github.com/emersion/go-imap"
)

// FlagSet 是协议适配层归一化后的标志集合。
//
// 不同服务器和客户端库对邮件标志的表示并不一致（列表或集合），
// 所有业务逻辑只应消费这里产出的统一集合，而不是各自做形状判断。
type FlagSet map[string]struct{}

// NormalizeFlags 将任意库级标志表示归一化为 FlagSet。
//
// 支持列表形（[]string）与集合形（map[string]struct{} / map[string]bool）；
// 无法识别的形状返回空集合，等价于"未读"。
func NormalizeFlags(v interface{}) FlagSet {
	out := make(FlagSet)

	switch flags := v.(type) {
	case []string:
		for _, f := range flags {
			out[canonicalFlag(f)] = struct{}{}
		}
	case map[string]struct{}:
		for f := range flags {
			out[canonicalFlag(f)] = struct{}{}
		}
	case map[string]bool:
		for f, set := range flags {
			if set {
				out[canonicalFlag(f)] = struct{}{}
			}
		}
	}

	return out
}

// Has 判断集合中是否包含指定标志（大小写不敏感）。
func (s FlagSet) Has(flag string) bool {
	_, ok := s[canonicalFlag(flag)]
	return ok
}

// Seen 判断邮件是否已读。
func (s FlagSet) Seen() bool {
	return s.Has(imap.SeenFlag)
}

func canonicalFlag(flag string) string {
	return strings.ToLower(strings.TrimSpace(flag))
}
