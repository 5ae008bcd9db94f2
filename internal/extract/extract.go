// Package extract derives conversational context from a page: the
// readable main content when the page has one, the raw visible text
// when it does not. Extraction is delegated to go-readability; this
// package only decides fallbacks and shapes the result.
package extract

import (
	"fmt"
	"net/url"
	"strings"

	htmltomd "github.com/JohannesKaufmann/html-to-markdown/v2"
	"github.com/go-shiori/go-readability"
	"golang.org/x/net/html"

	"github.com/hbruyere/pagemate/internal/config"
	. "github.com/hbruyere/pagemate/internal/logging"
)

// PageContext is the extracted context for one page. Ephemeral, held in
// sidebar memory only.
type PageContext struct {
	Title    string `json:"title"`
	URL      string `json:"url"`
	Text     string `json:"text"`
	Preview  string `json:"preview"`
	Markdown string `json:"markdown,omitempty"` // readable content as markdown, when available
}

// Extractor shapes page HTML into a PageContext.
type Extractor struct {
	cfg config.ExtractConfig
}

// New creates an extractor with the given tuning.
func New(cfg config.ExtractConfig) *Extractor {
	return &Extractor{cfg: cfg}
}

// FromHTML extracts context from a page's HTML. Structured extraction
// is attempted first; on failure (or when the article text is too thin
// to be the page's real content) it falls back to the raw visible text.
// Returns an error only when both paths produce nothing.
func (e *Extractor) FromHTML(pageURL, title, rawHTML string) (*PageContext, error) {
	ctx := &PageContext{Title: title, URL: pageURL}

	parsedURL, _ := url.Parse(pageURL)
	article, err := readability.FromReader(strings.NewReader(rawHTML), parsedURL)
	if err == nil {
		text := strings.TrimSpace(article.TextContent)
		if len(text) >= e.cfg.MinArticleText {
			if article.Title != "" {
				ctx.Title = article.Title
			}
			ctx.Text = text
			if md, mdErr := htmltomd.ConvertString(article.Content); mdErr == nil {
				ctx.Markdown = strings.TrimSpace(md)
			} else {
				L_debug("extract: markdown conversion failed", "url", pageURL, "error", mdErr)
			}
			ctx.Preview = clampPreview(text, e.cfg.PreviewLength)
			L_debug("extract: readable content", "url", pageURL, "title", ctx.Title, "chars", len(text))
			return ctx, nil
		}
		L_debug("extract: article too thin, using raw text", "url", pageURL, "chars", len(text))
	} else {
		L_warn("extract: readability failed, using raw text", "url", pageURL, "error", err)
	}

	text := strings.TrimSpace(VisibleText(rawHTML))
	if text == "" {
		return nil, fmt.Errorf("no extractable text at %s", pageURL)
	}
	ctx.Text = text
	ctx.Preview = clampPreview(text, e.cfg.PreviewLength)
	L_debug("extract: raw text fallback", "url", pageURL, "chars", len(text))
	return ctx, nil
}

// VisibleText strips markup from HTML, skipping script/style/template
// subtrees, and returns the text nodes joined by single spaces.
func VisibleText(rawHTML string) string {
	tokenizer := html.NewTokenizer(strings.NewReader(rawHTML))

	var b strings.Builder
	skipDepth := 0
	for {
		tt := tokenizer.Next()
		switch tt {
		case html.ErrorToken:
			return b.String()
		case html.StartTagToken:
			name, _ := tokenizer.TagName()
			if skippedTag(string(name)) {
				skipDepth++
			}
		case html.EndTagToken:
			name, _ := tokenizer.TagName()
			if skippedTag(string(name)) && skipDepth > 0 {
				skipDepth--
			}
		case html.TextToken:
			if skipDepth > 0 {
				continue
			}
			text := strings.TrimSpace(string(tokenizer.Text()))
			if text == "" {
				continue
			}
			if b.Len() > 0 {
				b.WriteByte(' ')
			}
			b.WriteString(text)
		}
	}
}

func skippedTag(name string) bool {
	switch name {
	case "script", "style", "noscript", "template", "iframe":
		return true
	}
	return false
}

// clampPreview collapses runs of whitespace to single spaces and bounds
// the result to maxRunes runes.
func clampPreview(text string, maxRunes int) string {
	collapsed := strings.Join(strings.Fields(text), " ")
	runes := []rune(collapsed)
	if maxRunes > 0 && len(runes) > maxRunes {
		return string(runes[:maxRunes])
	}
	return collapsed
}
