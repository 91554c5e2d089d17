package model

// Direction is a navigation command understood by the chunk server.
type Direction string

const (
	DirectionFirst    Direction = "first"
	DirectionLast     Direction = "last"
	DirectionForward  Direction = "forward"
	DirectionBackward Direction = "backward"
)

// Valid reports whether d is one of the four navigation directions.
func (d Direction) Valid() bool {
	switch d {
	case DirectionFirst, DirectionLast, DirectionForward, DirectionBackward:
		return true
	}
	return false
}

// ChunkResponse is returned by upload, navigate, get_chunk and load_recent.
// FileCount is optional on navigate and get_chunk.
type ChunkResponse struct {
	Message    string   `json:"message,omitempty"`
	ChunkIndex int      `json:"chunk_index"`
	FileCount  *int     `json:"file_count,omitempty"`
	Data       *Chunk   `json:"data"`
	JSONFiles  []string `json:"json_files,omitempty"`
}

type NavigateRequest struct {
	Direction Direction `json:"direction"`
}

type LoadRecentRequest struct {
	Folder     string `json:"folder"`
	SaveFolder bool   `json:"save_folder,omitempty"`
}

// GroupAssignment is the persisted form of one key's group.
type GroupAssignment struct {
	ID    int    `json:"id"`
	Name  string `json:"name,omitempty"`
	Color string `json:"color,omitempty"`
}

type GroupsPayload struct {
	Assignments map[string]GroupAssignment `json:"assignments"`
}

// AnnotationsPayload is the body of save_marked and export_marked.
type AnnotationsPayload struct {
	Marks  map[string]bool `json:"marks"`
	Groups GroupsPayload   `json:"groups"`
}

// Ack is a plain acknowledgement from the chunk server.
type Ack struct {
	Message string `json:"message"`
}

// ErrorResponse is the failure body of every chunk server endpoint.
type ErrorResponse struct {
	Error string `json:"error"`
}
