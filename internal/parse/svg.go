package parse

import (
	"bytes"
	"context"
	"encoding/xml"
	"errors"
	"io"
	"strings"

	"golang.org/x/net/html/charset"
)

// SVGParser extracts the title, description and text elements of SVG
// images.
type SVGParser struct{}

func (p *SVGParser) Name() string { return "svg" }

func (p *SVGParser) Extensions() []string {
	return []string{"svg"}
}

func (p *SVGParser) Parse(ctx context.Context, path string) (*Document, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	data, err := readFile(path)
	if err != nil {
		return nil, err
	}

	var (
		doc     Document
		title   strings.Builder
		content strings.Builder
		stack   []string
	)
	d := xml.NewDecoder(bytes.NewReader(data))
	d.CharsetReader = charset.NewReaderLabel
	for {
		tok, err := d.Token()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, newError(path, Corrupted, err)
		}
		switch t := tok.(type) {
		case xml.StartElement:
			stack = append(stack, t.Name.Local)
		case xml.EndElement:
			if len(stack) > 0 {
				stack = stack[:len(stack)-1]
			}
			content.WriteByte(' ')
		case xml.CharData:
			if len(stack) == 0 {
				continue
			}
			switch stack[len(stack)-1] {
			case "title":
				if title.Len() == 0 {
					title.Write(t)
				}
				content.Write(t)
			case "desc", "text", "tspan", "textPath", "creator", "description":
				content.Write(t)
			}
		}
	}
	if len(stack) > 0 {
		return nil, newError(path, Corrupted, errors.New("unexpected end of document"))
	}

	doc.Title = collapseSpace(title.String())
	doc.Content = collapseSpace(content.String())
	return &doc, nil
}
