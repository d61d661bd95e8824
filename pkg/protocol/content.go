package protocol

// Content types
const (
	ContentTypeText     = "text"
	ContentTypeImage    = "image"
	ContentTypeResource = "resource"
)

// Content is a typed content blob carried by tool results and prompt messages.
type Content struct {
	Type     string            `json:"type"`
	Text     string            `json:"text,omitempty"`
	Data     string            `json:"data,omitempty"`
	MimeType string            `json:"mimeType,omitempty"`
	Resource *ResourceContents `json:"resource,omitempty"`
}

// TextContent returns a text content blob.
func TextContent(text string) Content {
	return Content{Type: ContentTypeText, Text: text}
}

// ImageContent returns a base64 image content blob.
func ImageContent(data, mimeType string) Content {
	return Content{Type: ContentTypeImage, Data: data, MimeType: mimeType}
}

// EmbeddedResource wraps resource contents as content.
func EmbeddedResource(rc ResourceContents) Content {
	return Content{Type: ContentTypeResource, Resource: &rc}
}
