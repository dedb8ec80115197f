package conversation

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"slices"
	"strings"
	"time"
)

var ErrNotFound = errors.New("conversation snapshot not found")

type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
	RoleSystem    Role = "system"
)

type PartType string

const (
	PartText     PartType = "text"
	PartImageURL PartType = "image_url"
)

type ImageURL struct {
	URL string `json:"url"`
}

// Part is one element of a multi-part message body.
type Part struct {
	Type     PartType  `json:"type"`
	Text     string    `json:"text,omitempty"`
	ImageURL *ImageURL `json:"image_url,omitempty"`
}

// Content is either plain text (a single text part) or a list of text and
// image parts. Plain text encodes as a JSON string, anything else as an array.
type Content struct {
	Parts []Part
}

func TextContent(text string) Content {
	return Content{Parts: []Part{{Type: PartText, Text: text}}}
}

// ImageContent pairs a caption with an image reference.
func ImageContent(text, url string) Content {
	return Content{Parts: []Part{
		{Type: PartText, Text: text},
		{Type: PartImageURL, ImageURL: &ImageURL{URL: url}},
	}}
}

// IsText reports whether the content is a single text part.
func (c Content) IsText() bool {
	return len(c.Parts) == 1 && c.Parts[0].Type == PartText
}

// Text joins the text parts.
func (c Content) Text() string {
	var texts []string
	for _, p := range c.Parts {
		if p.Type == PartText {
			texts = append(texts, p.Text)
		}
	}
	return strings.Join(texts, " ")
}

func (c Content) MarshalJSON() ([]byte, error) {
	if c.IsText() || len(c.Parts) == 0 {
		return json.Marshal(c.Text())
	}
	return json.Marshal(c.Parts)
}

func (c *Content) UnmarshalJSON(data []byte) error {
	var text string
	if err := json.Unmarshal(data, &text); err == nil {
		*c = TextContent(text)
		return nil
	}
	var parts []Part
	if err := json.Unmarshal(data, &parts); err != nil {
		return fmt.Errorf("content must be a string or a list of parts: %w", err)
	}
	*c = Content{Parts: parts}
	return nil
}

type Message struct {
	ID        string    `json:"id,omitempty"`
	Role      Role      `json:"role"`
	Content   Content   `json:"content"`
	CreatedAt time.Time `json:"created_at"`
}

// Conversation is a named persona with its own voice and history. The first
// message is always the seed context.
type Conversation struct {
	Name     string    `json:"name"`
	VoiceID  string    `json:"voice_id"`
	Context  string    `json:"context"`
	Messages []Message `json:"messages"`
}

func (c Conversation) clone() Conversation {
	out := c
	out.Messages = slices.Clone(c.Messages)
	for i := range out.Messages {
		out.Messages[i].Content.Parts = slices.Clone(c.Messages[i].Content.Parts)
	}
	return out
}

// Persister stores named conversation snapshots.
type Persister interface {
	SaveSnapshot(ctx context.Context, key string, conv Conversation) error
	LoadSnapshot(ctx context.Context, key string) (Conversation, error)
	Close() error
}
