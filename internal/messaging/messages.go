package messaging

import (
	"encoding/json"
	"net/url"
	"strings"
)

// Platform limits. A single reply or push call carries at most five
// messages; a carousel container holds at most ten bubbles.
const (
	MaxMessagesPerCall    = 5
	MaxBubblesPerCarousel = 10
)

// Message is one outgoing chat message. The concrete types mirror the
// platform wire format and marshal directly into the messages array.
type Message interface {
	message()
}

// Text is a plain text message.
type Text struct {
	Type string `json:"type"`
	Text string `json:"text"`
}

func (Text) message() {}

// NewText builds a text message.
func NewText(text string) Text {
	return Text{Type: "text", Text: text}
}

// Image is an image message. The platform requires HTTPS URLs for both
// the original content and the preview.
type Image struct {
	Type               string `json:"type"`
	OriginalContentURL string `json:"originalContentUrl"`
	PreviewImageURL    string `json:"previewImageUrl"`
}

func (Image) message() {}

// NewImage builds an image message using the same URL for content and
// preview.
func NewImage(url string) Image {
	return Image{Type: "image", OriginalContentURL: url, PreviewImageURL: url}
}

// Flex is a flex message. Contents carries the container JSON verbatim so
// builders can assemble bubbles and carousels without a full schema model.
type Flex struct {
	Type     string          `json:"type"`
	AltText  string          `json:"altText"`
	Contents json.RawMessage `json:"contents"`
}

func (Flex) message() {}

// NewFlex builds a flex message around a prebuilt container.
func NewFlex(altText string, contents json.RawMessage) Flex {
	return Flex{Type: "flex", AltText: altText, Contents: contents}
}

// IsValidHTTPSURL reports whether s parses as an absolute HTTPS URL. The
// platform rejects image and action URLs on any other scheme.
func IsValidHTTPSURL(s string) bool {
	if s == "" {
		return false
	}
	u, err := url.Parse(s)
	if err != nil {
		return false
	}
	return u.Scheme == "https" && u.Host != ""
}

// EncodeURLPath percent-encodes each path segment while preserving the
// slashes between them.
func EncodeURLPath(path string) string {
	parts := strings.Split(path, "/")
	for i, p := range parts {
		parts[i] = url.PathEscape(p)
	}
	return strings.Join(parts, "/")
}
