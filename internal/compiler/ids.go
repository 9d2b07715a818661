package compiler

import (
	"github.com/google/uuid"
)

// namespace seeds deterministic UUIDs.
var namespace = uuid.NewSHA1(uuid.NameSpaceURL, []byte("calmdsl"))

// idGenerator hands out one UUID per entity path. The same path always gets the
// same UUID within a compile, so forward references can be allocated early.
type idGenerator struct {
	deterministic bool
	issued        map[string]string
}

func newIDGenerator(deterministic bool) *idGenerator {
	return &idGenerator{
		deterministic: deterministic,
		issued:        make(map[string]string),
	}
}

func (g *idGenerator) get(path string) string {
	if id, ok := g.issued[path]; ok {
		return id
	}

	var id string
	if g.deterministic {
		id = uuid.NewSHA1(namespace, []byte(path)).String()
	} else {
		id = uuid.New().String()
	}
	g.issued[path] = id
	return id
}
