package orchestrator

import "strings"

const (
	// PauseToken 为句内显式停顿标记。
	PauseToken = "‡pause‡"
	// TrimSentinel 结尾的该字符表示需要裁剪首尾静音。
	TrimSentinel = "-"
	// periodDash 替换句号，引导部分引擎产生更长的停顿。
	periodDash = "— "
)

// Split 去掉裁剪标记后按停顿标记拆分句子。
// rewritePeriods 为 true 时每个片段中的 '.' 改写为长破折号。
// 返回片段、是否裁剪以及用于字幕的文本。
func Split(sentence string, rewritePeriods bool) (parts []string, trim bool, caption string) {
	if strings.HasSuffix(sentence, TrimSentinel) {
		sentence = strings.TrimSuffix(sentence, TrimSentinel)
		trim = true
	}
	parts = strings.Split(sentence, PauseToken)
	if rewritePeriods {
		for i, p := range parts {
			parts[i] = strings.ReplaceAll(p, ".", periodDash)
		}
	}
	caption = strings.ReplaceAll(sentence, PauseToken, " ")
	return parts, trim, caption
}
