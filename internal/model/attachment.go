package model

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"
)

// AttachmentKind tells which variant an AttachmentRef holds.
type AttachmentKind int

const (
	// AttachmentLiteral is a bare string reference such as "db://attachments/123".
	AttachmentLiteral AttachmentKind = iota
	// AttachmentObject is an object reference {id, url, file}.
	AttachmentObject
)

// AttachmentFields is the object form of an attachment reference.
type AttachmentFields struct {
	ID   string `json:"id,omitempty"`
	URL  string `json:"url,omitempty"`
	File string `json:"file,omitempty"`
}

// AttachmentRef is a tagged union over the two reference shapes found in chunk files.
type AttachmentRef struct {
	Kind    AttachmentKind
	Literal string
	Object  AttachmentFields
}

// LiteralRef builds a literal reference.
func LiteralRef(s string) AttachmentRef {
	return AttachmentRef{Kind: AttachmentLiteral, Literal: s}
}

// ObjectRef builds an object reference.
func ObjectRef(f AttachmentFields) AttachmentRef {
	return AttachmentRef{Kind: AttachmentObject, Object: f}
}

// ID returns the canonical attachment id: "db://" and "attachments/" prefixes are stripped.
// The second result is false when the reference carries no usable id.
func (a AttachmentRef) ID() (string, bool) {
	var raw string
	switch a.Kind {
	case AttachmentLiteral:
		raw = a.Literal
	case AttachmentObject:
		raw = a.Object.ID
		if raw == "" && strings.HasPrefix(a.Object.URL, "db://") {
			raw = a.Object.URL
		}
	}
	id := normalizeAttachmentID(raw)
	return id, id != ""
}

func normalizeAttachmentID(s string) string {
	s = strings.TrimSpace(s)
	s = strings.TrimPrefix(s, "db://")
	s = strings.TrimPrefix(s, "attachments/")
	return s
}

func (a AttachmentRef) MarshalJSON() ([]byte, error) {
	if a.Kind == AttachmentObject {
		return json.Marshal(a.Object)
	}
	return json.Marshal(a.Literal)
}

func (a *AttachmentRef) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) == 0 || bytes.Equal(data, []byte("null")) {
		*a = AttachmentRef{}
		return nil
	}
	switch data[0] {
	case '"':
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		*a = LiteralRef(s)
	case '{':
		var f AttachmentFields
		if err := json.Unmarshal(data, &f); err != nil {
			return err
		}
		*a = ObjectRef(f)
	default:
		return fmt.Errorf("attachment ref: unsupported json %q", string(data))
	}
	return nil
}
