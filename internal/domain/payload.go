package domain

import (
	"encoding/base64"
	"fmt"
	"mime"
	"net/url"
	"strings"

	"github.com/gabriel-vasile/mimetype"
)

// Payload is binary content (a cover image or a document) together with its
// declared media type. It is carried in JSON as a data: URL.
type Payload struct {
	MediaType string
	Data      []byte
}

// ParseDataURL decodes "data:[<mediatype>][;base64],<data>".
func ParseDataURL(s string) (*Payload, error) {
	rest, ok := strings.CutPrefix(s, "data:")
	if !ok {
		return nil, fmt.Errorf("not a data URL")
	}
	meta, data, ok := strings.Cut(rest, ",")
	if !ok {
		return nil, fmt.Errorf("data URL has no payload separator")
	}

	isBase64 := false
	if m, found := strings.CutSuffix(meta, ";base64"); found {
		meta, isBase64 = m, true
	}

	mediaType := ""
	if meta != "" {
		mt, params, err := mime.ParseMediaType(meta)
		if err != nil {
			return nil, fmt.Errorf("data URL media type: %w", err)
		}
		mediaType = mime.FormatMediaType(mt, params)
	}

	var raw []byte
	if isBase64 {
		decoded, err := base64.StdEncoding.DecodeString(data)
		if err != nil {
			// Some encoders drop the padding.
			decoded, err = base64.RawStdEncoding.DecodeString(strings.TrimRight(data, "="))
			if err != nil {
				return nil, fmt.Errorf("data URL base64 payload: %w", err)
			}
		}
		raw = decoded
	} else {
		unescaped, err := url.PathUnescape(data)
		if err != nil {
			return nil, fmt.Errorf("data URL payload: %w", err)
		}
		raw = []byte(unescaped)
	}

	return &Payload{MediaType: mediaType, Data: raw}, nil
}

// DataURL formats the payload as a base64 data: URL.
func (p *Payload) DataURL() string {
	var b strings.Builder
	b.Grow(len("data:;base64,") + len(p.MediaType) + base64.StdEncoding.EncodedLen(len(p.Data)))
	b.WriteString("data:")
	b.WriteString(p.MediaType)
	b.WriteString(";base64,")
	b.WriteString(base64.StdEncoding.EncodeToString(p.Data))
	return b.String()
}

// MarshalText implements encoding.TextMarshaler.
func (p Payload) MarshalText() ([]byte, error) {
	return []byte(p.DataURL()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (p *Payload) UnmarshalText(text []byte) error {
	parsed, err := ParseDataURL(string(text))
	if err != nil {
		return err
	}
	*p = *parsed
	return nil
}

// Size returns the decoded payload length in bytes.
func (p *Payload) Size() int {
	if p == nil {
		return 0
	}
	return len(p.Data)
}

// DocumentType is the kind of readable document attached to a book.
type DocumentType string

// Document types. TypeNone covers books without an attachment and
// attachments in formats the readers do not support.
const (
	TypeNone DocumentType = ""
	TypePDF  DocumentType = "pdf"
	TypeEPUB DocumentType = "epub"
)

// DetectDocumentType classifies an attachment by its declared media type.
// Attachments without a declared type are sniffed from their content.
func DetectDocumentType(p *Payload) DocumentType {
	if p == nil {
		return TypeNone
	}
	mediaType := strings.ToLower(p.MediaType)
	if mediaType == "" && len(p.Data) > 0 {
		mediaType = mimetype.Detect(p.Data).String()
	}
	switch {
	case strings.HasPrefix(mediaType, "application/pdf"):
		return TypePDF
	case strings.HasPrefix(mediaType, "application/epub"):
		return TypeEPUB
	default:
		return TypeNone
	}
}
