package security

import (
	"html"
	"strings"

	"github.com/microcosm-cc/bluemonday"
)

// TextSanitizer は外部から取得した文字列からHTMLを除去し、
// ログやレポートのセルに出力できる1行のテキストにする。
type TextSanitizer struct {
	policy *bluemonday.Policy
	maxLen int
}

// NewTextSanitizer はTextSanitizerを生成する。maxLenが0以下の場合は長さを制限しない。
func NewTextSanitizer(maxLen int) *TextSanitizer {
	return &TextSanitizer{
		policy: bluemonday.StrictPolicy(),
		maxLen: maxLen,
	}
}

// Plain はタグを除去し、空白を1つにまとめた文字列を返す。
func (s *TextSanitizer) Plain(raw string) string {
	if raw == "" {
		return ""
	}
	text := html.UnescapeString(s.policy.Sanitize(raw))
	text = strings.Join(strings.Fields(text), " ")

	if s.maxLen > 0 {
		if r := []rune(text); len(r) > s.maxLen {
			text = string(r[:s.maxLen]) + "…"
		}
	}
	return text
}
