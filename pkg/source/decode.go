package source

import (
	"archive/zip"
	"bytes"
	"encoding/json"
	"encoding/xml"
	"fmt"
	"io"
	"net/url"
	"path"
	"strings"

	"codeberg.org/readeck/go-readability/v2"
)

const docXMLMax = 50 << 20

// Decode turns raw file content into a Document. The format is chosen by
// the extension of name: JSON documents are decoded as is, HTML is reduced
// to its readable article text, docx files to their paragraphs, and
// everything else is taken as plain text.
func Decode(id, name string, content []byte) (Document, error) {
	ext := strings.ToLower(strings.TrimPrefix(path.Ext(name), "."))

	doc := Document{ID: id, SourceType: sourceTypeOf(ext), Metadata: map[string]any{"file": name}}
	switch ext {
	case "json":
		var decoded Document
		if err := json.Unmarshal(content, &decoded); err != nil {
			return Document{}, fmt.Errorf("failed to decode document %s: %w", name, err)
		}
		if decoded.ID == "" {
			decoded.ID = id
		}
		return decoded, nil
	case "html", "htm":
		text, title, err := ReadableText(bytes.NewReader(content), &url.URL{Scheme: "file", Path: "/" + name})
		if err != nil {
			return Document{}, err
		}
		doc.Text = text
		if title != "" {
			doc.Metadata["title"] = title
		}
	case "docx":
		text, err := docxText(content)
		if err != nil {
			return Document{}, err
		}
		doc.Text = text
	default:
		doc.Text = string(content)
	}
	return doc, nil
}

func sourceTypeOf(ext string) string {
	switch ext {
	case "html", "htm":
		return "web"
	case "docx":
		return "document"
	default:
		return "text"
	}
}

// ReadableText extracts the main article text and title of an HTML page.
func ReadableText(r io.Reader, pageURL *url.URL) (string, string, error) {
	article, err := readability.FromReader(r, pageURL)
	if err != nil {
		return "", "", fmt.Errorf("failed to parse html: %w", err)
	}
	var builder strings.Builder
	if err := article.RenderText(&builder); err != nil {
		return "", "", fmt.Errorf("failed to render article text: %w", err)
	}
	return builder.String(), article.Title(), nil
}

// docxText extracts paragraph text from word/document.xml. Deleted runs are
// skipped and table cells are separated by " | " so that rows stay on one
// line.
func docxText(content []byte) (string, error) {
	zr, err := zip.NewReader(bytes.NewReader(content), int64(len(content)))
	if err != nil {
		return "", fmt.Errorf("failed to open docx: %w", err)
	}

	var docFile *zip.File
	for _, f := range zr.File {
		if f.Name == "word/document.xml" {
			docFile = f
			break
		}
	}
	if docFile == nil {
		return "", fmt.Errorf("document.xml not found in docx")
	}
	if docFile.UncompressedSize64 > docXMLMax {
		return "", fmt.Errorf("document.xml too large: %d bytes", docFile.UncompressedSize64)
	}

	rc, err := docFile.Open()
	if err != nil {
		return "", fmt.Errorf("failed to open document.xml: %w", err)
	}
	defer rc.Close()

	dec := xml.NewDecoder(io.LimitReader(rc, docXMLMax))
	var sb strings.Builder
	inText, delDepth, cell := false, 0, 0

	newline := func() {
		if sb.Len() > 0 && !strings.HasSuffix(sb.String(), "\n") {
			sb.WriteByte('\n')
		}
	}

	for {
		tok, err := dec.Token()
		if err == io.EOF {
			break
		}
		if err != nil {
			return "", fmt.Errorf("failed to parse XML: %w", err)
		}

		switch t := tok.(type) {
		case xml.StartElement:
			switch t.Name.Local {
			case "del":
				delDepth++
			case "t":
				inText = true
			case "tab":
				if delDepth == 0 {
					sb.WriteByte('\t')
				}
			case "br", "cr":
				if delDepth == 0 {
					sb.WriteByte('\n')
				}
			case "tr":
				cell = 0
			case "tc":
				if cell > 0 {
					sb.WriteString(" | ")
				}
				cell++
			}
		case xml.EndElement:
			switch t.Name.Local {
			case "del":
				delDepth--
			case "t":
				inText = false
			case "p":
				if cell == 0 {
					newline()
				}
			case "tr":
				cell = 0
				newline()
			}
		case xml.CharData:
			if inText && delDepth == 0 {
				sb.Write(t)
			}
		}
	}
	return strings.TrimSpace(sb.String()), nil
}
