package ingest

import (
	"bytes"
	"fmt"
	"strings"

	"github.com/ledongthuc/pdf"
	"golang.org/x/net/html"
)

// Metadata is what an upload reveals about a file before processing.
type Metadata struct {
	Pages int
	Title string
}

// Inspect extracts metadata for the file types that carry any. Unsupported
// types return the zero Metadata and no error.
func Inspect(fileType string, data []byte) (Metadata, error) {
	switch fileType {
	case "PDF":
		pages, err := PDFPages(data)
		if err != nil {
			return Metadata{}, err
		}
		return Metadata{Pages: pages}, nil
	case "HTML":
		title, err := HTMLTitle(data)
		if err != nil {
			return Metadata{}, err
		}
		return Metadata{Title: title}, nil
	}
	return Metadata{}, nil
}

// PDFPages returns the page count recorded in a PDF's page tree.
func PDFPages(data []byte) (pages int, err error) {
	// The pdf reader panics on some malformed input.
	defer func() {
		if r := recover(); r != nil {
			pages, err = 0, fmt.Errorf("reading pdf: %v", r)
		}
	}()

	r, err := pdf.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return 0, fmt.Errorf("reading pdf: %w", err)
	}
	return r.NumPage(), nil
}

// HTMLTitle returns the document's <title>, or its first <h1> when the
// title is missing. It returns "" when neither exists.
func HTMLTitle(data []byte) (string, error) {
	doc, err := html.Parse(bytes.NewReader(data))
	if err != nil {
		return "", fmt.Errorf("parsing html: %w", err)
	}
	if t := findText(doc, "title"); t != "" {
		return t, nil
	}
	return findText(doc, "h1"), nil
}

func findText(n *html.Node, tag string) string {
	if n.Type == html.ElementNode && n.Data == tag {
		var sb strings.Builder
		collectText(n, &sb)
		return strings.Join(strings.Fields(sb.String()), " ")
	}
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		if t := findText(c, tag); t != "" {
			return t
		}
	}
	return ""
}

func collectText(n *html.Node, sb *strings.Builder) {
	if n.Type == html.TextNode {
		sb.WriteString(n.Data)
		sb.WriteByte(' ')
	}
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		collectText(c, sb)
	}
}
