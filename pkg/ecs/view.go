package ecs

import (
	"github.com/solstice-phys/islands/pkg/component"
	"github.com/solstice-phys/islands/pkg/handle"
)

// View is a composable filter: the intersection of presence for Include,
// excluding any entity that has one of Exclude.
type View struct {
	Include []component.Index
	Exclude []component.Index
}

func NewView(include []component.Index, exclude ...component.Index) View {
	return View{Include: include, Exclude: exclude}
}

// Query returns every live entity matching v. The smallest include column
// is iterated and tested against the rest, so cost is proportional to the
// narrowest filter term rather than total entity count.
func (s *Store) Query(v View) []handle.Handle {
	if len(v.Include) == 0 {
		return nil
	}

	var smallest *column
	for _, idx := range v.Include {
		c, ok := s.columns[idx]
		if !ok {
			return nil
		}
		if smallest == nil || len(c.data) < len(smallest.data) {
			smallest = c
		}
	}

	out := make([]handle.Handle, 0, len(smallest.data))
outer:
	for h := range smallest.data {
		for _, idx := range v.Include {
			c := s.columns[idx]
			if _, ok := c.data[h]; !ok {
				continue outer
			}
		}
		for _, idx := range v.Exclude {
			if c, ok := s.columns[idx]; ok {
				if _, ok := c.data[h]; ok {
					continue outer
				}
			}
		}
		out = append(out, h)
	}
	return out
}
