package ingest

import (
	"encoding/base64"
	"errors"
	"strings"
	"testing"

	"github.com/swasthyasetu/corpus-engine/engine/domain"
)

func TestNormalizeContent_PlainText(t *testing.T) {
	n, err := normalizeContent("t", "  Every patient has the right to emergency care.  ")
	if err != nil {
		t.Fatalf("normalizeContent: %v", err)
	}
	if n.Text != "Every patient has the right to emergency care." {
		t.Errorf("text = %q", n.Text)
	}
	if n.Placeholder || n.HTML != "" {
		t.Errorf("unexpected placeholder or html: %+v", n)
	}
}

func TestNormalizeContent_HTML(t *testing.T) {
	markup := `<!DOCTYPE html><html><head><style>p{color:red}</style></head>` +
		`<body><p>Patients&nbsp;first.</p><script>alert(1)</script><p>Second line.</p></body></html>`
	n, err := normalizeContent("t", markup)
	if err != nil {
		t.Fatalf("normalizeContent: %v", err)
	}
	if strings.Contains(n.Text, "alert") || strings.Contains(n.Text, "color") {
		t.Errorf("script or style leaked into text: %q", n.Text)
	}
	if !strings.Contains(n.Text, "Patients first.") {
		t.Errorf("entity not unescaped: %q", n.Text)
	}
	if n.HTML != markup {
		t.Error("original markup should be preserved")
	}
}

func TestNormalizeContent_DataURIText(t *testing.T) {
	body := "Plain text inside a data URI payload."
	uri := "data:text/plain;base64," + base64.StdEncoding.EncodeToString([]byte(body))
	n, err := normalizeContent("t", uri)
	if err != nil {
		t.Fatalf("normalizeContent: %v", err)
	}
	if n.Text != body {
		t.Errorf("text = %q", n.Text)
	}
}

func TestNormalizeContent_PDFPlaceholder(t *testing.T) {
	uri := "data:application/pdf;base64," + base64.StdEncoding.EncodeToString([]byte("%PDF-1.4"))
	n, err := normalizeContent("consent form", uri)
	if err != nil {
		t.Fatalf("normalizeContent: %v", err)
	}
	if !n.Placeholder {
		t.Fatal("expected placeholder content for pdf")
	}
	if !strings.Contains(n.Text, "application/pdf") || !strings.Contains(n.Text, "consent form") {
		t.Errorf("placeholder should name type and title: %q", n.Text)
	}
}

func TestNormalizeContent_ImagePlaceholder(t *testing.T) {
	uri := "data:image/png;base64," + base64.StdEncoding.EncodeToString([]byte{0x89, 0x50})
	n, err := normalizeContent("scan", uri)
	if err != nil {
		t.Fatalf("normalizeContent: %v", err)
	}
	if !n.Placeholder {
		t.Fatal("expected placeholder content for image")
	}
}

func TestNormalizeContent_UnsupportedFormat(t *testing.T) {
	uri := "data:application/msword;base64," + base64.StdEncoding.EncodeToString([]byte("doc"))
	_, err := normalizeContent("t", uri)
	if !errors.Is(err, domain.ErrUnsupportedFormat) {
		t.Fatalf("expected ErrUnsupportedFormat, got %v", err)
	}
	var verr *domain.ValidationError
	if !errors.As(err, &verr) {
		t.Fatal("expected a validation error")
	}
}

func TestNormalizeContent_BadBase64(t *testing.T) {
	_, err := normalizeContent("t", "data:text/plain;base64,!!notbase64!!")
	var verr *domain.ValidationError
	if !errors.As(err, &verr) {
		t.Fatalf("expected a validation error, got %v", err)
	}
}

func TestHTMLToText_BlockTagsBecomeLines(t *testing.T) {
	text := htmlToText("<ul><li>one</li><li>two</li></ul>")
	if !strings.Contains(text, "one") || !strings.Contains(text, "two") {
		t.Fatalf("text = %q", text)
	}
	if strings.Contains(text, "<") {
		t.Errorf("tags leaked: %q", text)
	}
}
