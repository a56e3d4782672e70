// Package document 把纯文本文档拆成逐句的合成单元。
package document

import (
	"fmt"
	"os"
	"strings"
	"unicode"
	"unicode/utf8"

	"golang.org/x/text/unicode/norm"
)

// DefaultMaxChars 为单个合成分块的默认字符上限。
const DefaultMaxChars = 250

// 段落结束时追加的标记，与编排器约定一致。
const (
	pauseToken   = "‡pause‡"
	trimSentinel = "-"
)

var sentenceEnders = []rune{'。', '！', '？', '；', '.', '!', '?'}

// 长句在这些位置优先断开。
var softBreaks = []rune{'，', '、', ',', ';', ':', '：'}

// Sentence 是一个编号的句子，超长时拆成多个分块。
type Sentence struct {
	Number int
	Chunks []string
}

// Text 返回分块拼接后的原句。
func (s Sentence) Text() string {
	return strings.Join(s.Chunks, " ")
}

// Read 读取 UTF-8 文本文件，统一为 NFC 与 \n 换行。
func Read(path string) (string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return "", fmt.Errorf("读取文档 %s 失败: %w", path, err)
	}
	if !utf8.Valid(data) {
		return "", fmt.Errorf("文档 %s 不是有效的 UTF-8 文本", path)
	}
	return Normalize(string(data)), nil
}

// Normalize 做 NFC 规范化并统一换行符。
func Normalize(text string) string {
	text = norm.NFC.String(text)
	text = strings.ReplaceAll(text, "\r\n", "\n")
	return strings.ReplaceAll(text, "\r", "\n")
}

// Split 按段落与句末标点拆分文本。段落最后一句追加停顿与裁剪标记，
// 超过 maxChars 的句子在逗号等位置拆成多个分块。
func Split(text string, maxChars int) []Sentence {
	if maxChars <= 0 {
		maxChars = DefaultMaxChars
	}

	var out []Sentence
	for _, para := range paragraphs(text) {
		sentences := splitSentences(para)
		for i, s := range sentences {
			if i == len(sentences)-1 {
				s += pauseToken + trimSentinel
			}
			out = append(out, Sentence{Number: len(out), Chunks: chunk(s, maxChars)})
		}
	}
	return out
}

// paragraphs 以空行分段，段内换行视为空格。
func paragraphs(text string) []string {
	var out []string
	for _, block := range strings.Split(text, "\n\n") {
		words := strings.Fields(block)
		if len(words) == 0 {
			continue
		}
		out = append(out, strings.Join(words, " "))
	}
	return out
}

// ExtractSentence 尝试从文本中提取第一个完整句子。
// 连续的句末标点与紧随的右引号归入同一句。
func ExtractSentence(text string) (string, string, bool) {
	for i, r := range text {
		if !isEnder(r) {
			continue
		}
		splitAt := i + utf8.RuneLen(r)
		for splitAt < len(text) {
			next, size := utf8.DecodeRuneInString(text[splitAt:])
			if !isEnder(next) && !isClosing(next) {
				break
			}
			splitAt += size
		}
		return text[:splitAt], text[splitAt:], true
	}
	return "", text, false
}

func splitSentences(para string) []string {
	var out []string
	remaining := para
	for {
		sentence, rest, found := ExtractSentence(remaining)
		if !found {
			if r := strings.TrimSpace(remaining); r != "" {
				out = append(out, r)
			}
			return out
		}
		remaining = rest
		if s := strings.TrimSpace(sentence); s != "" && hasLetter(s) {
			out = append(out, s)
		} else if s != "" && len(out) > 0 {
			// 只有标点的残片并入上一句
			out[len(out)-1] += s
		}
	}
}

// chunk 把超长句子按软断点拆开，找不到断点时在空白处硬切。
func chunk(s string, maxChars int) []string {
	var out []string
	for utf8.RuneCountInString(s) > maxChars {
		cut := breakPoint(s, maxChars)
		head := strings.TrimSpace(s[:cut])
		if head != "" {
			out = append(out, head)
		}
		s = strings.TrimSpace(s[cut:])
	}
	if s != "" {
		out = append(out, s)
	}
	return out
}

// breakPoint 返回不超过 maxChars 个字符的最佳切分字节位置。
func breakPoint(s string, maxChars int) int {
	soft, space, limit := -1, -1, len(s)
	n := 0
	for i, r := range s {
		if n == maxChars {
			limit = i
			break
		}
		n++
		switch {
		case isSoftBreak(r):
			soft = i + utf8.RuneLen(r)
		case unicode.IsSpace(r):
			space = i
		}
	}
	switch {
	case soft > 0:
		return soft
	case space > 0:
		return space
	}
	return limit
}

func isEnder(r rune) bool {
	for _, e := range sentenceEnders {
		if r == e {
			return true
		}
	}
	return false
}

func isSoftBreak(r rune) bool {
	for _, b := range softBreaks {
		if r == b {
			return true
		}
	}
	return false
}

func isClosing(r rune) bool {
	switch r {
	case '"', '\'', '”', '’', ')', '）', '」', '』', '»':
		return true
	}
	return false
}

func hasLetter(s string) bool {
	for _, r := range s {
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			return true
		}
	}
	return false
}
