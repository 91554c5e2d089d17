package render

import (
	"testing"

	"github.com/sessionedit/internal/model"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBody_MarkdownAndLinks(t *testing.T) {
	r := New()
	out := r.Body("**bold** see https://example.com/a")
	assert.Contains(t, out, "<strong>bold</strong>")
	assert.Contains(t, out, `href="https://example.com/a"`)
	assert.Contains(t, out, `target="_blank"`)
}

func TestBody_AttachmentReference(t *testing.T) {
	r := New()
	out := r.Body("look db://attachments/abc_12")
	assert.Contains(t, out, `href="/attachment/abc_12"`)
	assert.Contains(t, out, "[attachment]")
	assert.NotContains(t, out, "db://")
}

func TestBody_Sanitized(t *testing.T) {
	r := New()
	out := r.Body(`hi <script>alert(1)</script><img src=x onerror="alert(2)">`)
	assert.NotContains(t, out, "<script")
	assert.NotContains(t, out, "onerror")
	assert.Equal(t, "", r.Body(""))
}

func TestDisplayName(t *testing.T) {
	a := model.Author{Name: "ann", Nickname: "Annie"}
	assert.Equal(t, "ann", DisplayName(a, false))
	assert.Equal(t, "Annie", DisplayName(a, true))
	assert.Equal(t, "bob", DisplayName(model.Author{Name: "bob"}, true))
	assert.Equal(t, "Zed", DisplayName(model.Author{Nickname: "Zed"}, false))
}

func TestFormatDate(t *testing.T) {
	assert.Equal(t, "01/03/2024", FormatDate("2024-03-01T10:00:00"))
	assert.Equal(t, "09/12/2023", FormatDate("2023-12-09T23:10:00.123+02:00"))
	assert.Equal(t, "05/01/2022", FormatDate("2022-01-05"))
	assert.Equal(t, "yesterday", FormatDate("yesterday"))
	assert.Equal(t, "", FormatDate(""))
}

func TestAttachmentURL(t *testing.T) {
	u, ok := AttachmentURL(model.LiteralRef("db://attachments/41"), 7)
	require.True(t, ok)
	assert.Equal(t, "/attachment/41?v=7", u)

	u, ok = AttachmentURL(model.ObjectRef(model.AttachmentFields{ID: "a b"}), 1)
	require.True(t, ok)
	assert.Equal(t, "/attachment/a%20b?v=1", u)

	_, ok = AttachmentURL(model.ObjectRef(model.AttachmentFields{URL: "https://x.test/i.png"}), 1)
	assert.False(t, ok)
}

func TestChunk(t *testing.T) {
	r := New()
	c := &model.Chunk{Messages: []model.Message{
		{Content: "hello", Timestamp: "2024-03-01T10:00:00", Author: model.Author{Name: "ann", Nickname: "Annie"},
			Attachments: []model.AttachmentRef{model.LiteralRef("db://attachments/9"), {}}},
		{Content: "x", Timestamp: "garbage", Author: model.Author{Name: "bob"}},
	}}
	out := r.Chunk(3, c, View{ShowDisplayNames: true, ImagesReloadKey: 5})
	require.Len(t, out, 2)
	assert.Equal(t, "3:0", out[0].Key)
	assert.Equal(t, "Annie", out[0].Author)
	assert.Equal(t, "01/03/2024", out[0].Date)
	assert.Equal(t, []string{"/attachment/9?v=5"}, out[0].Attachments)
	assert.Equal(t, "3:1", out[1].Key)
	assert.Equal(t, "garbage", out[1].Date)

	assert.Empty(t, r.Chunk(0, nil, View{}))
}

func TestStatusLine(t *testing.T) {
	assert.Equal(t, "No file loaded", StatusLine(false, 0, 0, false, false))
	assert.Equal(t, "No file loaded | markmode enabled", StatusLine(false, 0, 0, true, false))
	assert.Equal(t, "Chunk 2 | messageCount: 40", StatusLine(true, 2, 40, false, false))
	assert.Equal(t, "Chunk 2 | messageCount: 40 | dividermode enabled", StatusLine(true, 2, 40, false, true))
}
