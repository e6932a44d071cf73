package whatsapp

import (
	"regexp"
	"strings"
)

var (
	// **text** -> *text*
	boldPattern = regexp.MustCompile(`\*\*(.+?)\*\*`)

	// ~~text~~ -> ~text~
	strikePattern = regexp.MustCompile(`~~(.+?)~~`)

	// ## text -> *text*
	headerPattern = regexp.MustCompile(`(?m)^#{1,6}\s+(.+)$`)

	// [text](url) -> text (url)
	linkPattern = regexp.MustCompile(`\[([^\]]+)\]\(([^)]+)\)`)

	// ![alt](url) -> url
	imagePattern = regexp.MustCompile(`!\[([^\]]*)\]\(([^)]+)\)`)

	htmlTagPattern = regexp.MustCompile(`<[^>]+>`)
)

// FormatMessage rewrites a markdown body into WhatsApp markup.
// WhatsApp understands *bold*, _italic_, ~strike~ and backtick code natively,
// so only the markdown-only constructs are rewritten.
func FormatMessage(markdown string) string {
	if markdown == "" {
		return ""
	}

	// Images go first, the link pattern would otherwise eat them.
	text := imagePattern.ReplaceAllString(markdown, "$2")
	text = linkPattern.ReplaceAllString(text, "$1 ($2)")
	text = headerPattern.ReplaceAllString(text, "*$1*")
	text = boldPattern.ReplaceAllString(text, "*$1*")
	text = strikePattern.ReplaceAllString(text, "~$1~")
	text = htmlTagPattern.ReplaceAllString(text, "")

	for strings.Contains(text, "\n\n\n") {
		text = strings.ReplaceAll(text, "\n\n\n", "\n\n")
	}

	return strings.TrimSpace(text)
}
