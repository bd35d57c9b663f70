package parse

import (
	"archive/zip"
	"context"
	"encoding/xml"
	"errors"
	"fmt"
	"io"
	"strings"
)

// ODFParser handles OpenDocument text, spreadsheet, presentation and drawing
// files.
type ODFParser struct{}

func (p *ODFParser) Name() string { return "opendocument" }

func (p *ODFParser) Extensions() []string {
	return []string{"odt", "ott", "ods", "ots", "odp", "otp", "odg", "otg"}
}

func (p *ODFParser) Parse(ctx context.Context, path string) (*Document, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	zr, err := zip.OpenReader(path)
	if err != nil {
		if errors.Is(err, zip.ErrFormat) {
			return nil, newError(path, Corrupted, err)
		}
		return nil, fileError(path, err)
	}
	defer zr.Close()

	entries := make(map[string]*zip.File, len(zr.File))
	for _, f := range zr.File {
		entries[f.Name] = f
	}
	manifest, meta, content := entries["META-INF/manifest.xml"], entries["meta.xml"], entries["content.xml"]
	if manifest == nil || meta == nil || content == nil {
		return nil, newError(path, Corrupted, errors.New("missing OpenDocument entries"))
	}

	encrypted, err := hasEncryptionData(manifest)
	if err != nil {
		return nil, newError(path, Corrupted, err)
	}
	if encrypted {
		return nil, newError(path, PasswordProtected, nil)
	}

	fields, err := readElements(meta, "title", "creator", "description", "subject", "keyword")
	if err != nil {
		return nil, newError(path, Corrupted, err)
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	body, err := readBodyText(content)
	if err != nil {
		return nil, newError(path, Corrupted, err)
	}

	var sb strings.Builder
	sb.WriteString(body)
	for _, key := range []string{"title", "creator", "description", "subject", "keyword"} {
		if v := fields[key]; v != "" {
			sb.WriteString(" ")
			sb.WriteString(v)
		}
	}
	return &Document{
		Title:   fields["title"],
		Author:  fields["creator"],
		Content: strings.TrimSpace(sb.String()),
	}, nil
}

func openEntry(f *zip.File) (*xml.Decoder, io.Closer, error) {
	rc, err := f.Open()
	if err != nil {
		return nil, nil, fmt.Errorf("failed to open %s: %w", f.Name, err)
	}
	return xml.NewDecoder(rc), rc, nil
}

func hasEncryptionData(f *zip.File) (bool, error) {
	d, closer, err := openEntry(f)
	if err != nil {
		return false, err
	}
	defer closer.Close()
	for {
		tok, err := d.Token()
		if errors.Is(err, io.EOF) {
			return false, nil
		}
		if err != nil {
			return false, err
		}
		if se, ok := tok.(xml.StartElement); ok && se.Name.Local == "encryption-data" {
			return true, nil
		}
	}
}

// readElements returns the text of the first element with each local name.
func readElements(f *zip.File, names ...string) (map[string]string, error) {
	d, closer, err := openEntry(f)
	if err != nil {
		return nil, err
	}
	defer closer.Close()

	wanted := make(map[string]bool, len(names))
	for _, n := range names {
		wanted[n] = true
	}
	out := make(map[string]string)
	var current string
	var sb strings.Builder
	for {
		tok, err := d.Token()
		if errors.Is(err, io.EOF) {
			return out, nil
		}
		if err != nil {
			return nil, err
		}
		switch t := tok.(type) {
		case xml.StartElement:
			if current == "" && wanted[t.Name.Local] {
				if _, seen := out[t.Name.Local]; !seen {
					current = t.Name.Local
					sb.Reset()
				}
			}
		case xml.EndElement:
			if current != "" && t.Name.Local == current {
				out[current] = collapseSpace(sb.String())
				current = ""
			}
		case xml.CharData:
			if current != "" {
				sb.Write(t)
			}
		}
	}
}

// paragraphElements end a line of body text.
var paragraphElements = map[string]bool{
	"p": true, "h": true, "list-item": true, "table-cell": true, "line-break": true,
}

func readBodyText(f *zip.File) (string, error) {
	d, closer, err := openEntry(f)
	if err != nil {
		return "", err
	}
	defer closer.Close()

	var sb strings.Builder
	inBody := false
	for {
		tok, err := d.Token()
		if errors.Is(err, io.EOF) {
			return sb.String(), nil
		}
		if err != nil {
			return "", err
		}
		switch t := tok.(type) {
		case xml.StartElement:
			switch {
			case t.Name.Local == "body":
				inBody = true
			case inBody && (t.Name.Local == "s" || t.Name.Local == "tab"):
				sb.WriteByte(' ')
			}
		case xml.EndElement:
			switch {
			case t.Name.Local == "body":
				inBody = false
			case inBody && paragraphElements[t.Name.Local]:
				sb.WriteByte('\n')
			}
		case xml.CharData:
			if inBody {
				sb.Write(t)
			}
		}
	}
}
