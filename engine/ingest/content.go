package ingest

import (
	"encoding/base64"
	"fmt"
	"html"
	"regexp"
	"strings"

	"github.com/swasthyasetu/corpus-engine/engine/domain"
)

// normalized is document content after decoding and markup stripping.
type normalized struct {
	Text        string
	HTML        string
	Placeholder bool
}

var (
	dataURIRe = regexp.MustCompile(`^data:([^;,]+)(;base64)?,`)

	scriptRe  = regexp.MustCompile(`(?is)<script\b.*?</script>`)
	styleRe   = regexp.MustCompile(`(?is)<style\b.*?</style>`)
	commentRe = regexp.MustCompile(`(?s)<!--.*?-->`)
	blockRe   = regexp.MustCompile(`(?i)</?(p|div|br|li|ul|ol|h[1-6]|tr|table|section|article|blockquote)[^>]*>`)
	tagRe     = regexp.MustCompile(`<[^>]+>`)
	spaceRe   = regexp.MustCompile(`[ \t\r\f]+`)
	blankRe   = regexp.MustCompile(`\n{3,}`)
)

// normalizeContent turns the raw content of an ingestion request into plain
// text. Data URIs are decoded by MIME type: text decodes directly, HTML is
// stripped to text, and opaque binaries without a wired-in extractor (PDF,
// images) become a descriptive placeholder rather than an error. The
// placeholder is a deliberate degraded mode; callers see it in the stored
// document content. Word-processor formats are rejected outright.
func normalizeContent(title, content string) (normalized, error) {
	m := dataURIRe.FindStringSubmatch(content)
	if m == nil {
		if looksLikeHTML(content) {
			return normalized{Text: htmlToText(content), HTML: content}, nil
		}
		return normalized{Text: strings.TrimSpace(content)}, nil
	}

	mime := strings.ToLower(strings.TrimSpace(m[1]))
	payload := content[len(m[0]):]

	var decoded string
	if m[2] == ";base64" {
		raw, err := base64.StdEncoding.DecodeString(payload)
		if err != nil {
			return normalized{}, domain.NewValidationError("content", mime, fmt.Errorf("decode base64 payload: %w", err))
		}
		decoded = string(raw)
	} else {
		decoded = payload
	}

	switch {
	case mime == "text/html":
		return normalized{Text: htmlToText(decoded), HTML: decoded}, nil
	case strings.HasPrefix(mime, "text/"):
		return normalized{Text: strings.TrimSpace(decoded)}, nil
	case mime == "application/pdf" || strings.HasPrefix(mime, "image/"):
		return normalized{Text: placeholderText(mime, title), Placeholder: true}, nil
	default:
		return normalized{}, domain.NewValidationError("content", mime, domain.ErrUnsupportedFormat)
	}
}

// placeholderText describes a binary upload that has no text extractor.
func placeholderText(mime, title string) string {
	return fmt.Sprintf("[%s attachment %q: text extraction not available]", mime, title)
}

func looksLikeHTML(content string) bool {
	head := strings.ToLower(content)
	if len(head) > 512 {
		head = head[:512]
	}
	return strings.Contains(head, "<html") || strings.Contains(head, "<!doctype html") || strings.Contains(head, "<body")
}

// htmlToText strips markup down to readable plain text. Scripts, styles, and
// comments are dropped, block-level tags become newlines, remaining tags are
// removed, entities are unescaped, and whitespace is collapsed.
func htmlToText(markup string) string {
	s := scriptRe.ReplaceAllString(markup, " ")
	s = styleRe.ReplaceAllString(s, " ")
	s = commentRe.ReplaceAllString(s, " ")
	s = blockRe.ReplaceAllString(s, "\n")
	s = tagRe.ReplaceAllString(s, " ")
	s = html.UnescapeString(s)
	s = strings.ReplaceAll(s, "\u00a0", " ")
	s = spaceRe.ReplaceAllString(s, " ")

	lines := strings.Split(s, "\n")
	for i, line := range lines {
		lines[i] = strings.TrimSpace(line)
	}
	s = strings.Join(lines, "\n")
	s = blankRe.ReplaceAllString(s, "\n\n")
	return strings.TrimSpace(s)
}
