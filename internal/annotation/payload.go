package annotation

import "github.com/sessionedit/internal/model"

// Payload serializes marks and groups into the body of save and export requests.
// Spans of chunks with a known length are expanded into keys. Spans waiting for an unseen
// chunk cannot be; their number is returned so the caller can warn about them.
func (e *Engine) Payload() (model.AnnotationsPayload, int) {
	return model.AnnotationsPayload{
		Marks: e.marks.Serialize(),
		Groups: model.GroupsPayload{
			Assignments: e.groups.Serialize(),
		},
	}, len(e.groups.PendingSpans())
}

