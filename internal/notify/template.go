package notify

import (
	"fmt"
	"os"
	"strings"
)

// Placeholders recognized in the message template.
const (
	PlaceholderTitle       = "{{ title }}"
	PlaceholderPreviewText = "{{ previewText }}"
	PlaceholderText        = "{{ text }}"
	PlaceholderHeadline    = "{{ headline }}"
)

// TemplateFields is the named field set substituted into the template.
type TemplateFields struct {
	Title       string
	PreviewText string
	Text        string
	Headline    string
}

// Template is a message body with literal placeholder tokens.
type Template struct {
	raw string
}

// LoadTemplate reads the template file once.
func LoadTemplate(path string) (*Template, error) {
	if path == "" {
		return nil, fmt.Errorf("template path is required")
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read template: %w", err)
	}
	return ParseTemplate(string(data))
}

// ParseTemplate builds a Template from its text.
func ParseTemplate(text string) (*Template, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return nil, fmt.Errorf("template is empty")
	}
	return &Template{raw: text}, nil
}

// Render substitutes every placeholder occurrence with its field value.
func (t *Template) Render(fields TemplateFields) string {
	replacer := strings.NewReplacer(
		PlaceholderTitle, fields.Title,
		PlaceholderPreviewText, fields.PreviewText,
		PlaceholderText, fields.Text,
		PlaceholderHeadline, fields.Headline,
	)
	return replacer.Replace(t.raw)
}
