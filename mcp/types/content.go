package types

import (
	"encoding/json"
	"fmt"
	"strings"
)

// Content block discriminator values.
const (
	ContentTypeText             = "text"
	ContentTypeImage            = "image"
	ContentTypeAudio            = "audio"
	ContentTypeResourceLink     = "resource_link"
	ContentTypeEmbeddedResource = "resource"
	ContentTypeToolUse          = "tool_use"
	ContentTypeToolResult       = "tool_result"
)

// ContentBlock is the closed variant type carried in sampling messages,
// prompt messages and tool results, discriminated on the wire by the `type`
// string. Only the fields of the active variant are populated.
type ContentBlock struct {
	Type string `json:"type"`

	// text
	Text string `json:"text,omitempty"`

	// image / audio
	Data     string `json:"data,omitempty"`
	MimeType string `json:"mimeType,omitempty"`

	// resource_link
	URI  string `json:"uri,omitempty"`
	Name string `json:"name,omitempty"`

	// resource (embedded)
	Resource map[string]any `json:"resource,omitempty"`

	// tool_use
	ID        string          `json:"id,omitempty"`
	ToolName  string          `json:"name,omitempty"` // shares wire key with resource_link name
	Arguments json.RawMessage `json:"arguments,omitempty"`

	// tool_result
	ToolUseID string         `json:"tool_use_id,omitempty"`
	Content   []ContentBlock `json:"content,omitempty"`
	IsError   bool           `json:"is_error,omitempty"`

	Annotations map[string]any `json:"annotations,omitempty"`
}

// contentBlockWire is the raw serialized shape. ContentBlock cannot use the
// default codec directly because `name` is shared between the resource_link
// and tool_use variants.
type contentBlockWire struct {
	Type        string          `json:"type"`
	Text        string          `json:"text,omitempty"`
	Data        string          `json:"data,omitempty"`
	MimeType    string          `json:"mimeType,omitempty"`
	URI         string          `json:"uri,omitempty"`
	Name        string          `json:"name,omitempty"`
	Resource    map[string]any  `json:"resource,omitempty"`
	ID          string          `json:"id,omitempty"`
	Arguments   json.RawMessage `json:"arguments,omitempty"`
	ToolUseID   string          `json:"tool_use_id,omitempty"`
	Content     []ContentBlock  `json:"content,omitempty"`
	IsError     bool            `json:"is_error,omitempty"`
	Annotations map[string]any  `json:"annotations,omitempty"`
}

// MarshalJSON serializes the active variant, omitting absent fields.
func (b ContentBlock) MarshalJSON() ([]byte, error) {
	wire := contentBlockWire{
		Type:        b.Type,
		Text:        b.Text,
		Data:        b.Data,
		MimeType:    b.MimeType,
		URI:         b.URI,
		Resource:    b.Resource,
		ID:          b.ID,
		Arguments:   b.Arguments,
		ToolUseID:   b.ToolUseID,
		Content:     b.Content,
		IsError:     b.IsError,
		Annotations: b.Annotations,
	}
	switch b.Type {
	case ContentTypeToolUse:
		wire.Name = b.ToolName
	default:
		wire.Name = b.Name
	}
	return json.Marshal(wire)
}

// UnmarshalJSON decodes a block and validates its discriminator.
func (b *ContentBlock) UnmarshalJSON(raw []byte) error {
	var wire contentBlockWire
	if err := json.Unmarshal(raw, &wire); err != nil {
		return err
	}
	if wire.Type == "" {
		return fmt.Errorf("content block missing type")
	}

	*b = ContentBlock{
		Type:        wire.Type,
		Text:        wire.Text,
		Data:        wire.Data,
		MimeType:    wire.MimeType,
		URI:         wire.URI,
		Resource:    wire.Resource,
		ID:          wire.ID,
		Arguments:   wire.Arguments,
		ToolUseID:   wire.ToolUseID,
		Content:     wire.Content,
		IsError:     wire.IsError,
		Annotations: wire.Annotations,
	}
	switch wire.Type {
	case ContentTypeToolUse:
		b.ToolName = wire.Name
	default:
		b.Name = wire.Name
	}
	return nil
}

// TextContent builds a text block.
func TextContent(text string) ContentBlock {
	return ContentBlock{Type: ContentTypeText, Text: text}
}

// ImageContent builds an image block from base64 data.
func ImageContent(data, mimeType string) ContentBlock {
	return ContentBlock{Type: ContentTypeImage, Data: data, MimeType: mimeType}
}

// AudioContent builds an audio block from base64 data.
func AudioContent(data, mimeType string) ContentBlock {
	return ContentBlock{Type: ContentTypeAudio, Data: data, MimeType: mimeType}
}

// ResourceLinkContent builds a resource_link block.
func ResourceLinkContent(uri, name string) ContentBlock {
	return ContentBlock{Type: ContentTypeResourceLink, URI: uri, Name: name}
}

// ToolUseContent builds a tool_use block.
func ToolUseContent(id, name string, arguments json.RawMessage) ContentBlock {
	return ContentBlock{Type: ContentTypeToolUse, ID: id, ToolName: name, Arguments: arguments}
}

// ToolResultContent builds a tool_result block answering the given tool use.
func ToolResultContent(toolUseID string, content []ContentBlock, isError bool) ContentBlock {
	return ContentBlock{Type: ContentTypeToolResult, ToolUseID: toolUseID, Content: content, IsError: isError}
}

// JoinedText collapses the text items of a block list into one
// newline-joined string.
func JoinedText(blocks []ContentBlock) string {
	var parts []string
	for _, block := range blocks {
		if block.Type == ContentTypeText && block.Text != "" {
			parts = append(parts, block.Text)
		}
	}
	return strings.Join(parts, "\n")
}
