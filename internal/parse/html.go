package parse

import (
	"context"
	"errors"
	"io"
	"strings"

	"golang.org/x/net/html"
)

// HTMLParser extracts the title, author meta tag and visible text of HTML
// pages.
type HTMLParser struct{}

func (p *HTMLParser) Name() string { return "html" }

func (p *HTMLParser) Extensions() []string {
	return []string{"html", "htm", "xhtml", "shtml", "shtm"}
}

func (p *HTMLParser) Parse(ctx context.Context, path string) (*Document, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	data, err := readFile(path)
	if err != nil {
		return nil, err
	}
	text, err := decodeText(path, data)
	if err != nil {
		return nil, err
	}

	var (
		doc     Document
		title   strings.Builder
		content strings.Builder
		hidden  int
		inTitle bool
	)
	z := html.NewTokenizer(strings.NewReader(text))
	for {
		switch z.Next() {
		case html.ErrorToken:
			if err := z.Err(); !errors.Is(err, io.EOF) {
				return nil, newError(path, Corrupted, err)
			}
			doc.Title = collapseSpace(title.String())
			doc.Content = collapseSpace(content.String())
			return &doc, nil

		case html.StartTagToken:
			name, hasAttr := z.TagName()
			switch string(name) {
			case "script", "style", "noscript":
				hidden++
			case "title":
				inTitle = true
			case "meta":
				if author, ok := metaAuthor(z, hasAttr); ok {
					doc.Author = author
				}
			}
			content.WriteByte(' ')

		case html.SelfClosingTagToken:
			name, hasAttr := z.TagName()
			if string(name) == "meta" {
				if author, ok := metaAuthor(z, hasAttr); ok {
					doc.Author = author
				}
			}
			content.WriteByte(' ')

		case html.EndTagToken:
			name, _ := z.TagName()
			switch string(name) {
			case "script", "style", "noscript":
				if hidden > 0 {
					hidden--
				}
			case "title":
				inTitle = false
			}
			content.WriteByte(' ')

		case html.TextToken:
			if hidden > 0 {
				continue
			}
			if inTitle {
				title.Write(z.Text())
				continue
			}
			content.Write(z.Text())
		}
	}
}

func metaAuthor(z *html.Tokenizer, hasAttr bool) (string, bool) {
	var name, value string
	for hasAttr {
		var key, val []byte
		key, val, hasAttr = z.TagAttr()
		switch strings.ToLower(string(key)) {
		case "name":
			name = strings.ToLower(string(val))
		case "content":
			value = string(val)
		}
	}
	if name != "author" {
		return "", false
	}
	return strings.TrimSpace(value), true
}

func collapseSpace(s string) string {
	return strings.Join(strings.Fields(s), " ")
}
