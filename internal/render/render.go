// Package render turns chunk messages into view data: sanitized HTML bodies, author names,
// dates and attachment URLs. Rendering never fails; a body that cannot be converted is
// shown as escaped raw text.
package render

import (
	"bytes"
	"fmt"
	"html"
	"net/url"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/microcosm-cc/bluemonday"
	"github.com/sessionedit/internal/annotation"
	"github.com/sessionedit/internal/logger"
	"github.com/sessionedit/internal/model"
	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/extension"
	gmhtml "github.com/yuin/goldmark/renderer/html"
)

var attachmentRefRe = regexp.MustCompile(`db://attachments/([A-Za-z0-9_-]+)`)

// View holds the per-session display settings.
type View struct {
	ShowDisplayNames bool  `json:"show_display_names"`
	ImagesReloadKey  int64 `json:"images_reload_key"`
}

// Group is the group badge of a rendered message.
type Group struct {
	ID    int    `json:"id"`
	Name  string `json:"name,omitempty"`
	Color string `json:"color"`
}

// Message is one message ready for display.
type Message struct {
	Key         string   `json:"key"`
	Date        string   `json:"date"`
	Author      string   `json:"author"`
	HTML        string   `json:"html"`
	Attachments []string `json:"attachments,omitempty"`
	Marked      bool     `json:"marked"`
	Group       *Group   `json:"group,omitempty"`
}

type Renderer struct {
	md     goldmark.Markdown
	policy *bluemonday.Policy
}

func New() *Renderer {
	policy := bluemonday.UGCPolicy()
	policy.AddTargetBlankToFullyQualifiedLinks(true)
	return &Renderer{
		md: goldmark.New(
			goldmark.WithExtensions(extension.Linkify, extension.Strikethrough),
			goldmark.WithRendererOptions(gmhtml.WithHardWraps()),
		),
		policy: policy,
	}
}

// Body converts markdown content to sanitized HTML. Plain http(s) links become anchors
// and db://attachments/<id> references link to the attachment proxy.
func (r *Renderer) Body(content string) string {
	if content == "" {
		return ""
	}
	src := attachmentRefRe.ReplaceAllString(content, `[\[attachment\]](/attachment/$1)`)
	var buf bytes.Buffer
	if err := r.convert(src, &buf); err != nil {
		logger.Debugf("render: markdown fallback: %v", err)
		return "<p>" + html.EscapeString(content) + "</p>"
	}
	return r.policy.Sanitize(buf.String())
}

func (r *Renderer) convert(src string, buf *bytes.Buffer) (err error) {
	defer func() {
		if p := recover(); p != nil {
			err = fmt.Errorf("markdown panic: %v", p)
		}
	}()
	return r.md.Convert([]byte(src), buf)
}

// Chunk renders every message of chunk. Marked and Group are left for the caller,
// which owns the annotation state.
func (r *Renderer) Chunk(chunkIndex int, c *model.Chunk, v View) []Message {
	if c == nil {
		return []Message{}
	}
	out := make([]Message, len(c.Messages))
	for i, m := range c.Messages {
		msg := Message{
			Key:    annotation.KeyOf(chunkIndex, i).String(),
			Date:   FormatDate(m.Timestamp),
			Author: DisplayName(m.Author, v.ShowDisplayNames),
			HTML:   r.Body(m.Content),
		}
		for _, a := range m.Attachments {
			if u, ok := AttachmentURL(a, v.ImagesReloadKey); ok {
				msg.Attachments = append(msg.Attachments, u)
			}
		}
		out[i] = msg
	}
	return out
}

// DisplayName prefers the nickname when display names are shown, the account name otherwise.
func DisplayName(a model.Author, showDisplayNames bool) string {
	if showDisplayNames && a.Nickname != "" {
		return a.Nickname
	}
	if a.Name != "" {
		return a.Name
	}
	return a.Nickname
}

var dateLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05.999999999",
	"2006-01-02 15:04:05.999999999-07:00",
	"2006-01-02 15:04:05.999999999",
	"2006-01-02",
}

// FormatDate renders a timestamp as dd/mm/yyyy, or returns it unchanged when it does not parse.
func FormatDate(ts string) string {
	s := strings.TrimSpace(ts)
	for _, layout := range dateLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t.Format("02/01/2006")
		}
	}
	return ts
}

// AttachmentURL returns the proxy URL of an attachment with the images reload key appended.
func AttachmentURL(a model.AttachmentRef, reloadKey int64) (string, bool) {
	id, ok := a.ID()
	if !ok {
		return "", false
	}
	return "/attachment/" + url.PathEscape(id) + "?v=" + strconv.FormatInt(reloadKey, 10), true
}

// StatusLine is the bottom bar text: chunk position and count, then the active mode.
func StatusLine(loaded bool, chunkIndex, messageCount int, markMode, dividerMode bool) string {
	text := "No file loaded"
	if loaded {
		text = fmt.Sprintf("Chunk %d | messageCount: %d", chunkIndex, messageCount)
	}
	switch {
	case markMode:
		text += " | markmode enabled"
	case dividerMode:
		text += " | dividermode enabled"
	}
	return text
}
