package llm

import (
	"bytes"
	"encoding/base64"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// Content part types.
const (
	PartTypeText     = "text"
	PartTypeImageURL = "image_url"
)

// Content is either a single text string or an ordered list of parts. On the
// wire it is a JSON string or a JSON array; callers must check IsParts before
// reading Text.
type Content struct {
	Text  string
	Parts []ContentPart // non-nil means multi-part content
}

// ContentPart is one element of multi-part content.
type ContentPart struct {
	Type     string    `json:"type"` // "text" | "image_url"
	Text     string    `json:"text,omitempty"`
	ImageURL *ImageURL `json:"image_url,omitempty"`
}

// ImageURL holds an image reference: an https URL or a base64 data URI.
type ImageURL struct {
	URL string `json:"url"`
}

// TextContent returns text content.
func TextContent(text string) *Content {
	return &Content{Text: text}
}

// PartsContent returns multi-part content holding parts in order.
func PartsContent(parts ...ContentPart) *Content {
	return &Content{Parts: append([]ContentPart{}, parts...)}
}

// ImageContent returns multi-part content holding a single image reference.
func ImageContent(url ImageURL) *Content {
	return PartsContent(ImagePart(url))
}

// TextPart returns a text content part.
func TextPart(text string) ContentPart {
	return ContentPart{Type: PartTypeText, Text: text}
}

// ImagePart returns an image content part.
func ImagePart(url ImageURL) ContentPart {
	return ContentPart{Type: PartTypeImageURL, ImageURL: &url}
}

// IsParts reports whether c holds multi-part content.
func (c *Content) IsParts() bool {
	return c.Parts != nil
}

// Merge folds rhs into c:
//
//	text  + text  -> concatenation
//	text  + parts -> c's text becomes the first part
//	parts + text  -> rhs becomes a trailing text part
//	parts + parts -> concatenation
func (c *Content) Merge(rhs Content) {
	switch {
	case !c.IsParts() && !rhs.IsParts():
		c.Text += rhs.Text
	case !c.IsParts():
		parts := make([]ContentPart, 0, len(rhs.Parts)+1)
		parts = append(parts, TextPart(c.Text))
		c.Parts = append(parts, rhs.Parts...)
		c.Text = ""
	case !rhs.IsParts():
		c.Parts = append(c.Parts, TextPart(rhs.Text))
	default:
		c.Parts = append(c.Parts, rhs.Parts...)
	}
}

// Append adds part to c, converting text content into multi-part content.
func (c *Content) Append(part ContentPart) {
	if !c.IsParts() {
		c.Parts = []ContentPart{TextPart(c.Text)}
		c.Text = ""
	}
	c.Parts = append(c.Parts, part)
}

// PlainText returns the text of c, joining text parts and skipping images.
func (c *Content) PlainText() string {
	if !c.IsParts() {
		return c.Text
	}
	var sb strings.Builder
	for _, p := range c.Parts {
		if p.Type == PartTypeText {
			sb.WriteString(p.Text)
		}
	}
	return sb.String()
}

// MarshalJSON encodes c as a JSON string or array.
func (c Content) MarshalJSON() ([]byte, error) {
	if c.IsParts() {
		return marshal(c.Parts)
	}
	return marshal(c.Text)
}

// UnmarshalJSON decodes a JSON string or array into c.
func (c *Content) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) == 0 {
		return fmt.Errorf("llm: empty content")
	}
	switch data[0] {
	case '"':
		var text string
		if err := unmarshal(data, &text); err != nil {
			return err
		}
		*c = Content{Text: text}
		return nil
	case '[':
		parts := []ContentPart{}
		if err := unmarshal(data, &parts); err != nil {
			return err
		}
		*c = Content{Parts: parts}
		return nil
	default:
		return fmt.Errorf("llm: content must be a string or an array, got %.20s", data)
	}
}

// NewImageURL references a remote image.
func NewImageURL(url string) ImageURL {
	return ImageURL{URL: url}
}

// ImageURLFromBinary embeds image bytes as a base64 data URI. suffix is the
// image subtype, e.g. "png" or "jpeg".
func ImageURLFromBinary(image []byte, suffix string) ImageURL {
	return ImageURL{
		URL: fmt.Sprintf("data:image/%s;base64,%s", suffix, base64.StdEncoding.EncodeToString(image)),
	}
}

// ImageURLFromFile reads a local image and embeds it as a data URI, using the
// file extension as the image subtype.
func ImageURLFromFile(path string) (ImageURL, error) {
	suffix := strings.TrimPrefix(filepath.Ext(path), ".")
	if suffix == "" {
		return ImageURL{}, fmt.Errorf("llm: %s: %w", path, ErrNoFileExtension)
	}
	image, err := os.ReadFile(path)
	if err != nil {
		return ImageURL{}, fmt.Errorf("llm: read image: %w", err)
	}
	return ImageURLFromBinary(image, suffix), nil
}
