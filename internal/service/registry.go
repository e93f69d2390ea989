package service

import (
	"errors"
	"fmt"

	"timebased_cover/internal/cover"
)

var (
	ErrUnknownCover   = errors.New("unknown cover")
	ErrDuplicateCover = errors.New("duplicate cover id")
)

// Registry holds the configured controllers in configuration order.
type Registry struct {
	order []*cover.Controller
	byID  map[string]*cover.Controller
}

func NewRegistry(ctrls ...*cover.Controller) (*Registry, error) {
	r := &Registry{byID: make(map[string]*cover.Controller, len(ctrls))}
	for _, c := range ctrls {
		if _, dup := r.byID[c.ID()]; dup {
			return nil, fmt.Errorf("%w: %s", ErrDuplicateCover, c.ID())
		}
		r.byID[c.ID()] = c
		r.order = append(r.order, c)
	}
	return r, nil
}

func (r *Registry) Get(id string) (*cover.Controller, error) {
	c, ok := r.byID[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownCover, id)
	}
	return c, nil
}

func (r *Registry) All() []*cover.Controller {
	out := make([]*cover.Controller, len(r.order))
	copy(out, r.order)
	return out
}
