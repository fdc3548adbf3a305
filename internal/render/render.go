// Package render turns notification templates into channel-ready text.
package render

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strings"

	"github.com/alexnthnz/notification-relay/internal/notification"
)

// DefaultTemplateName is looked up when a notification type has no template of its own
const DefaultTemplateName = "default"

const fallbackBody = "Notification: {{content}}"

var placeholder = regexp.MustCompile(`{{\s*([a-zA-Z0-9_]+)\s*}}`)

// Renderer resolves templates from a store and fills in their placeholders
type Renderer struct {
	templates notification.TemplateStore
}

// NewRenderer creates a renderer backed by templates
func NewRenderer(templates notification.TemplateStore) *Renderer {
	return &Renderer{templates: templates}
}

// Render returns the subject and body for a notification type on a channel
func (r *Renderer) Render(ctx context.Context, notificationType string, channel notification.Channel, vars map[string]string) (string, string, error) {
	tmpl, err := r.lookup(ctx, notificationType, channel)
	if err != nil {
		return "", "", err
	}
	return Expand(tmpl.SubjectTemplate, vars), Expand(tmpl.BodyTemplate, vars), nil
}

func (r *Renderer) lookup(ctx context.Context, notificationType string, channel notification.Channel) (*notification.Template, error) {
	for _, name := range []string{notificationType, DefaultTemplateName} {
		tmpl, err := r.templates.GetTemplate(ctx, name, channel)
		if err == nil {
			return tmpl, nil
		}
		if !errors.Is(err, notification.ErrNotFound) {
			return nil, fmt.Errorf("failed to load template %s/%s: %w", name, channel, err)
		}
	}
	return &notification.Template{Name: DefaultTemplateName, Channel: channel, BodyTemplate: fallbackBody}, nil
}

// Expand replaces {{name}} placeholders with values from vars. Unknown names
// expand to the empty string.
func Expand(text string, vars map[string]string) string {
	if !strings.Contains(text, "{{") {
		return text
	}
	return placeholder.ReplaceAllStringFunc(text, func(match string) string {
		name := placeholder.FindStringSubmatch(match)[1]
		return vars[name]
	})
}
