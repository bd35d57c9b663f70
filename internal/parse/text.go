package parse

import (
	"bytes"
	"context"
	"unicode/utf8"

	"golang.org/x/text/encoding/charmap"
	"golang.org/x/text/encoding/unicode"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

var (
	bomUTF8    = []byte{0xEF, 0xBB, 0xBF}
	bomUTF16LE = []byte{0xFF, 0xFE}
	bomUTF16BE = []byte{0xFE, 0xFF}
)

// TextParser handles plain text and source files.
type TextParser struct{}

func (p *TextParser) Name() string { return "text" }

func (p *TextParser) Extensions() []string {
	return []string{
		"txt", "text", "md", "markdown", "rst", "csv", "tsv", "log",
		"ini", "cfg", "conf", "properties", "json", "yaml", "yml", "toml",
		"xml", "tex", "bib", "c", "h", "cpp", "hpp", "java", "py", "go",
		"js", "ts", "css", "sh", "bat",
	}
}

func (p *TextParser) Parse(ctx context.Context, path string) (*Document, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	data, err := readFile(path)
	if err != nil {
		return nil, err
	}
	content, err := decodeText(path, data)
	if err != nil {
		return nil, err
	}
	return &Document{Content: content}, nil
}

// decodeText converts raw file bytes to NFC normalized UTF-8. A byte order
// mark selects the Unicode encoding; otherwise valid UTF-8 is kept as is and
// anything else is read as Windows-1252. Data with NUL bytes and no BOM is
// rejected.
func decodeText(path string, data []byte) (string, error) {
	var out []byte
	switch {
	case hasBOM(data):
		decoded, _, err := transform.Bytes(unicode.BOMOverride(unicode.UTF8.NewDecoder()), data)
		if err != nil {
			return "", newError(path, UnsupportedEncoding, err)
		}
		out = decoded
	case IsBinary(data):
		return "", newError(path, UnsupportedEncoding, nil)
	case utf8.Valid(data):
		out = data
	default:
		decoded, err := charmap.Windows1252.NewDecoder().Bytes(data)
		if err != nil {
			return "", newError(path, UnsupportedEncoding, err)
		}
		out = decoded
	}
	return norm.NFC.String(string(out)), nil
}

func hasBOM(data []byte) bool {
	return bytes.HasPrefix(data, bomUTF8) ||
		bytes.HasPrefix(data, bomUTF16LE) ||
		bytes.HasPrefix(data, bomUTF16BE)
}
