package model

// Author is the message author as exported by the chat archiver.
type Author struct {
	Name     string `json:"name"`
	Nickname string `json:"nickname,omitempty"`
}

// GroupEcho is a group annotation the server already knows for a message.
// Name and Color are optional on the wire.
type GroupEcho struct {
	ID    int     `json:"id"`
	Name  *string `json:"name,omitempty"`
	Color *string `json:"color,omitempty"`
}

// Message is one entry of a chunk. Marked and Group echo annotations saved earlier.
type Message struct {
	Content     string          `json:"content"`
	Timestamp   string          `json:"timestamp"`
	Author      Author          `json:"author"`
	Attachments []AttachmentRef `json:"attachments,omitempty"`
	Marked      bool            `json:"marked,omitempty"`
	Group       *GroupEcho      `json:"group,omitempty"`
}

// Chunk is one page of messages. Index is not part of the chunk file itself;
// it is filled from the chunk_index of the response that delivered it.
type Chunk struct {
	Index        int       `json:"-"`
	MessageCount int       `json:"messageCount"`
	Messages     []Message `json:"messages"`
}

// Count returns messageCount when the server sent it, else the number of messages.
func (c *Chunk) Count() int {
	if c == nil {
		return 0
	}
	if c.MessageCount > 0 {
		return c.MessageCount
	}
	return len(c.Messages)
}
