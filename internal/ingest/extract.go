// Package ingest turns source documents into plain text for Phase 1.
//
// Extraction is best effort: any failure yields an empty string and a logged
// warning, never an error.
package ingest

import (
	"bytes"
	"context"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"time"
	"unicode/utf8"

	"golang.org/x/net/html"

	"skeptic/internal/logging"
)

// Extractor returns the plain text of the document at path, or "".
type Extractor interface {
	Extract(ctx context.Context, path string) string
}

// CommandRunner runs an external tool and returns its stdout.
type CommandRunner func(ctx context.Context, name string, args ...string) ([]byte, error)

// FileExtractor dispatches on file extension.
//   - .pdf goes through the pdftotext tool (poppler-utils)
//   - .html/.htm are parsed and their visible text kept
//   - anything else is read as UTF-8 text
type FileExtractor struct {
	PDFTool string
	Timeout time.Duration
	Run     CommandRunner
}

// NewFileExtractor returns an extractor using pdftotext from PATH.
func NewFileExtractor() *FileExtractor {
	return &FileExtractor{
		PDFTool: "pdftotext",
		Timeout: 2 * time.Minute,
		Run:     runCommand,
	}
}

func runCommand(ctx context.Context, name string, args ...string) ([]byte, error) {
	var stdout bytes.Buffer
	cmd := exec.CommandContext(ctx, name, args...)
	cmd.Stdout = &stdout
	if err := cmd.Run(); err != nil {
		return nil, err
	}
	return stdout.Bytes(), nil
}

// Extract implements Extractor.
func (e *FileExtractor) Extract(ctx context.Context, path string) string {
	if path == "" {
		return ""
	}
	timer := logging.StartTimer(logging.CategoryIngest, "extract "+filepath.Base(path))
	defer timer.Stop()

	if _, err := os.Stat(path); err != nil {
		logging.IngestWarn("cannot read %s: %v", path, err)
		return ""
	}

	var (
		text string
		err  error
	)
	switch strings.ToLower(filepath.Ext(path)) {
	case ".pdf":
		text, err = e.extractPDF(ctx, path)
	case ".html", ".htm":
		text, err = extractHTMLFile(path)
	default:
		text, err = extractPlain(path)
	}
	if err != nil {
		logging.IngestWarn("extraction failed for %s: %v", path, err)
		return ""
	}
	logging.Ingest("extracted %s (%d chars)", path, len(text))
	return text
}

func (e *FileExtractor) extractPDF(ctx context.Context, path string) (string, error) {
	if e.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, e.Timeout)
		defer cancel()
	}
	run := e.Run
	if run == nil {
		run = runCommand
	}
	out, err := run(ctx, e.PDFTool, "-layout", "-enc", "UTF-8", path, "-")
	if err != nil {
		return "", err
	}
	return normalize(string(out)), nil
}

func extractPlain(path string) (string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return "", err
	}
	if !utf8.Valid(data) {
		data = bytes.ToValidUTF8(data, []byte("�"))
	}
	return string(data), nil
}

func extractHTMLFile(path string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", err
	}
	defer f.Close()
	doc, err := html.Parse(f)
	if err != nil {
		return "", err
	}
	var sb strings.Builder
	visibleText(doc, &sb)
	return normalize(sb.String()), nil
}

// visibleText appends the text content of n, one block element per line.
func visibleText(n *html.Node, sb *strings.Builder) {
	switch n.Type {
	case html.TextNode:
		if text := strings.TrimSpace(n.Data); text != "" {
			sb.WriteString(text)
			sb.WriteString(" ")
		}
	case html.ElementNode:
		switch n.Data {
		case "script", "style", "noscript", "template", "svg":
			return
		case "p", "div", "br", "li", "tr", "h1", "h2", "h3", "h4", "h5", "h6", "section", "article":
			sb.WriteString("\n")
		}
	}
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		visibleText(c, sb)
	}
}

// normalize trims trailing spaces, drops form feeds and collapses runs of
// blank lines.
func normalize(s string) string {
	s = strings.ReplaceAll(s, "\f", "\n")
	lines := strings.Split(s, "\n")
	out := make([]string, 0, len(lines))
	blank := false
	for _, line := range lines {
		line = strings.TrimRight(line, " \t\r")
		if line == "" {
			if blank {
				continue
			}
			blank = true
		} else {
			blank = false
		}
		out = append(out, line)
	}
	return strings.TrimSpace(strings.Join(out, "\n"))
}

// Stats holds simple counts for an extracted text.
type Stats struct {
	Words int
	Lines int
	Chars int
}

// Measure counts words, lines and characters.
func Measure(text string) Stats {
	st := Stats{Words: len(strings.Fields(text)), Chars: utf8.RuneCountInString(text)}
	if text != "" {
		st.Lines = len(strings.Split(strings.TrimRight(text, "\n"), "\n"))
	}
	return st
}

// Preview returns the first n runes of text, with "..." when truncated.
func Preview(text string, n int) string {
	r := []rune(text)
	if len(r) <= n {
		return text
	}
	return string(r[:n]) + "..."
}
