package parse

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"strings"

	"github.com/ledongthuc/pdf"
)

// PDFParser extracts the text and document info of PDF files.
type PDFParser struct{}

func (p *PDFParser) Name() string { return "pdf" }

func (p *PDFParser) Extensions() []string {
	return []string{"pdf"}
}

func (p *PDFParser) Parse(ctx context.Context, path string) (doc *Document, err error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	// The decoder panics on some malformed input.
	defer func() {
		if r := recover(); r != nil {
			doc = nil
			err = newError(path, Corrupted, fmt.Errorf("%v", r))
		}
	}()

	f, r, err := pdf.Open(path)
	if err != nil {
		if errors.Is(err, pdf.ErrInvalidPassword) {
			return nil, newError(path, PasswordProtected, err)
		}
		if errors.Is(err, fs.ErrNotExist) {
			return nil, newError(path, NotFound, err)
		}
		return nil, newError(path, Corrupted, err)
	}
	defer f.Close()

	info := r.Trailer().Key("Info")
	doc = &Document{
		Title:  strings.TrimSpace(info.Key("Title").Text()),
		Author: strings.TrimSpace(info.Key("Author").Text()),
	}

	var sb strings.Builder
	for i := 1; i <= r.NumPage(); i++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		page := r.Page(i)
		if page.V.IsNull() {
			continue
		}
		fonts := make(map[string]*pdf.Font)
		for _, name := range page.Fonts() {
			font := page.Font(name)
			fonts[name] = &font
		}
		text, err := page.GetPlainText(fonts)
		if err != nil {
			return nil, newError(path, Corrupted, err)
		}
		sb.WriteString(text)
		sb.WriteByte('\n')
	}
	doc.Content = strings.TrimSpace(sb.String())
	return doc, nil
}
