package tools

import (
	"archive/zip"
	"bytes"
	"context"
	"encoding/xml"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"strings"
	"time"

	"codemother/internal/events"

	"github.com/cloudwego/eino/components/tool"
	"github.com/cloudwego/eino/components/tool/utils"
	"golang.org/x/net/html"
)

const (
	webAccessTimeout  = 10 * time.Second
	maxWebTextRunes   = 50000
	maxPageBytes      = 5 << 20
	maxDocumentBytes  = 10 << 20
	docxDocumentEntry = "word/document.xml"
)

type WebAccessInput struct {
	URL string `json:"url" jsonschema:"description=Full http or https address of the page or .docx document to read"`
}

// WebAccessTool fetches a web page or a .docx document and returns its text.
type WebAccessTool struct {
	// Client overrides the HTTP client; nil uses one with a ten second timeout.
	Client *http.Client
}

func (WebAccessTool) Name() string        { return "web_access" }
func (WebAccessTool) DisplayName() string { return "Access web page" }

func (t WebAccessTool) FormatAnnouncement() string {
	return announce(t.DisplayName())
}

func (t WebAccessTool) FormatResult(arguments string) string {
	return callHeader(t.DisplayName(), argString(decodeArguments(arguments), "url"))
}

func (t WebAccessTool) Bind(Workspace) (tool.BaseTool, error) {
	client := t.Client
	if client == nil {
		client = &http.Client{Timeout: webAccessTimeout}
	}
	return utils.InferTool(t.Name(), ToolDescription(t.Name(), "Read the text of a web page or .docx document"),
		func(ctx context.Context, in *WebAccessInput) (*Output, error) {
			return AccessWeb(ctx, client, in)
		})
}

// AccessWeb downloads in.URL and extracts readable text from HTML pages and .docx files.
// Problems with the address or the remote side are reported in the output.
func AccessWeb(ctx context.Context, client *http.Client, in *WebAccessInput) (*Output, error) {
	if in == nil || strings.TrimSpace(in.URL) == "" {
		return failure("format_error", "Format error: url is required"), nil
	}
	target, err := normalizeURL(in.URL)
	if err != nil {
		return failure("format_error", "Format error: invalid url %q", in.URL), nil
	}
	events.Emit(ctx, events.LLMEventTool, events.NewInfo("AccessWeb: fetching "+target.String()))

	docx := strings.HasSuffix(strings.ToLower(target.Path), ".docx")
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target.String(), nil)
	if err != nil {
		return failure("format_error", "Format error: %v", err), nil
	}
	req.Header.Set("User-Agent", "Mozilla/5.0 (compatible; codemother)")
	if docx {
		req.Header.Set("Accept", "*/*")
	} else {
		req.Header.Set("Accept", "text/html,application/xhtml+xml,application/xml;q=0.9,*/*;q=0.8")
	}

	resp, err := client.Do(req)
	if err != nil {
		var netErr net.Error
		if errors.As(err, &netErr) && netErr.Timeout() {
			events.Emit(ctx, events.LLMEventTool, events.NewWarn("AccessWeb: timeout"))
			return failure("timeout", "Error: request to %s timed out", target), nil
		}
		events.Emit(ctx, events.LLMEventTool, events.NewWarn(fmt.Sprintf("AccessWeb: %v", err)))
		return failure("fetch_error", "Error: request to %s failed: %v", target, err), nil
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return failure("http_status", "Error: request to %s returned HTTP %d", target, resp.StatusCode), nil
	}
	contentType := strings.ToLower(resp.Header.Get("Content-Type"))
	docx = docx || strings.Contains(contentType, "wordprocessingml")

	var text string
	if docx {
		data, err := io.ReadAll(io.LimitReader(resp.Body, maxDocumentBytes+1))
		if err != nil {
			return failure("fetch_error", "Error: reading %s failed: %v", target, err), nil
		}
		if len(data) > maxDocumentBytes {
			return failure("too_large", "Error: document is larger than %d MB", maxDocumentBytes>>20), nil
		}
		if text, err = docxText(data); err != nil {
			return failure("parse_error", "Error: cannot read .docx document: %v", err), nil
		}
	} else {
		doc, err := html.Parse(io.LimitReader(resp.Body, maxPageBytes))
		if err != nil {
			return failure("parse_error", "Error: cannot parse page: %v", err), nil
		}
		text = htmlText(doc)
	}

	if strings.TrimSpace(text) == "" {
		return failure("empty_content", "Warning: no text found at %s", target), nil
	}
	text = truncateRunes(text, maxWebTextRunes)
	events.Emit(ctx, events.LLMEventTool, events.NewSuccess(fmt.Sprintf("AccessWeb: read %d characters", len([]rune(text)))))
	return &Output{Title: target.String(), Output: text}, nil
}

// normalizeURL defaults to https when no scheme is given.
func normalizeURL(raw string) (*url.URL, error) {
	raw = strings.TrimSpace(raw)
	lower := strings.ToLower(raw)
	if !strings.HasPrefix(lower, "http://") && !strings.HasPrefix(lower, "https://") {
		raw = "https://" + raw
	}
	u, err := url.Parse(raw)
	if err != nil {
		return nil, err
	}
	if u.Host == "" {
		return nil, errors.New("missing host")
	}
	return u, nil
}

var skippedElements = map[string]bool{
	"script":   true,
	"style":    true,
	"noscript": true,
	"template": true,
}

// htmlText returns the visible text of doc with whitespace collapsed.
func htmlText(doc *html.Node) string {
	var parts []string
	var walk func(n *html.Node)
	walk = func(n *html.Node) {
		if n.Type == html.ElementNode && skippedElements[strings.ToLower(n.Data)] {
			return
		}
		if n.Type == html.TextNode {
			if s := strings.Join(strings.Fields(n.Data), " "); s != "" {
				parts = append(parts, s)
			}
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(doc)
	return strings.Join(parts, " ")
}

// docxText extracts the text runs of a .docx document, one line per paragraph.
func docxText(data []byte) (string, error) {
	zr, err := zip.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return "", err
	}
	var entry *zip.File
	for _, f := range zr.File {
		if f.Name == docxDocumentEntry {
			entry = f
			break
		}
	}
	if entry == nil {
		return "", fmt.Errorf("%s not found", docxDocumentEntry)
	}
	rc, err := entry.Open()
	if err != nil {
		return "", err
	}
	defer rc.Close()

	var lines []string
	var line []string
	inText := false
	dec := xml.NewDecoder(rc)
	for {
		tok, err := dec.Token()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return "", err
		}
		switch el := tok.(type) {
		case xml.StartElement:
			inText = el.Name.Local == "t"
		case xml.EndElement:
			switch el.Name.Local {
			case "t":
				inText = false
			case "p":
				if s := strings.Join(strings.Fields(strings.Join(line, "")), " "); s != "" {
					lines = append(lines, s)
				}
				line = line[:0]
			}
		case xml.CharData:
			if inText {
				line = append(line, string(el))
			}
		}
	}
	if s := strings.Join(strings.Fields(strings.Join(line, "")), " "); s != "" {
		lines = append(lines, s)
	}
	return strings.Join(lines, "\n"), nil
}

func truncateRunes(s string, limit int) string {
	r := []rune(s)
	if len(r) <= limit {
		return s
	}
	return string(r[:limit]) + fmt.Sprintf("\n\n[Content truncated at %d characters]", limit)
}
