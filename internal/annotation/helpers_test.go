package annotation

import (
	"math/rand/v2"

	"github.com/sessionedit/internal/model"
)

func testRand() *rand.Rand { return rand.New(rand.NewPCG(7, 11)) }

func strPtr(s string) *string { return &s }

// plainMessages returns n messages without annotation echoes.
func plainMessages(n int) []model.Message {
	out := make([]model.Message, n)
	for i := range out {
		out[i] = model.Message{Content: "msg", Author: model.Author{Name: "a"}}
	}
	return out
}

func chunkOf(index int, messages []model.Message) *model.Chunk {
	return &model.Chunk{Index: index, MessageCount: len(messages), Messages: messages}
}
