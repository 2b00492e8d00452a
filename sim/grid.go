// Grid topology: intersections and the implicit road segments connecting
// orthogonal neighbours. Topology is immutable after NewGrid; only the
// TrafficSignal hanging off each intersection carries mutable state.

package sim

import (
	"fmt"
	"math/rand"
	"sort"
)

// Axis identifies the two signal-controlled approach groups of an intersection.
type Axis string

const (
	AxisNorthSouth Axis = "NS"
	AxisEastWest   Axis = "EW"
)

// Heading is a travel direction along a segment.
type Heading string

const (
	HeadingNorth Heading = "north"
	HeadingSouth Heading = "south"
	HeadingEast  Heading = "east"
	HeadingWest  Heading = "west"
)

// Axis returns the approach-group axis governing travel in this heading.
func (h Heading) Axis() Axis {
	if h == HeadingNorth || h == HeadingSouth {
		return AxisNorthSouth
	}
	return AxisEastWest
}

// Intersection is a node in the grid with one signal per approach group pair.
type Intersection struct {
	ID     string
	Row    int
	Col    int
	Signal *TrafficSignal
}

// Grid is the road network: GridSize x GridSize intersections spaced
// Spacing apart, with bidirectional segments between orthogonal neighbours.
type Grid struct {
	Size    int
	Spacing float64

	intersections map[string]*Intersection
	ordered       []string // sorted IDs for deterministic iteration
}

// IntersectionID maps (row, col) to the canonical "I-1xx" naming.
func IntersectionID(size, row, col int) string {
	return fmt.Sprintf("I-%d", 100+row*size+col+1)
}

// NewGrid builds the immutable topology and seeds initial signal phases from
// rng so that the grid does not start in lockstep.
func NewGrid(cfg *Config, rng *rand.Rand) *Grid {
	g := &Grid{
		Size:          cfg.GridSize,
		Spacing:       cfg.IntersectionSpacing,
		intersections: make(map[string]*Intersection),
	}
	minGreen := cfg.SecondsToTicks(cfg.Signals.MinGreenSeconds)
	yellow := cfg.SecondsToTicks(cfg.Signals.YellowSeconds)
	for row := 0; row < g.Size; row++ {
		for col := 0; col < g.Size; col++ {
			id := IntersectionID(g.Size, row, col)
			phase := PhaseNorthSouthGreen
			if rng.Intn(2) == 0 {
				phase = PhaseEastWestGreen
			}
			// Stagger initial timers across a green window.
			timer := minGreen/2 + rng.Int63n(minGreen/2+1)
			g.intersections[id] = &Intersection{
				ID:     id,
				Row:    row,
				Col:    col,
				Signal: NewTrafficSignal(id, phase, timer, minGreen, yellow),
			}
			g.ordered = append(g.ordered, id)
		}
	}
	sort.Strings(g.ordered)
	return g
}

// Intersection returns the intersection with the given ID, or nil.
func (g *Grid) Intersection(id string) *Intersection {
	return g.intersections[id]
}

// IntersectionIDs returns all IDs in sorted order.
func (g *Grid) IntersectionIDs() []string {
	return g.ordered
}

// Adjacent reports whether a and b are orthogonal neighbours.
func (g *Grid) Adjacent(a, b string) bool {
	ia, ib := g.intersections[a], g.intersections[b]
	if ia == nil || ib == nil {
		return false
	}
	dr, dc := ib.Row-ia.Row, ib.Col-ia.Col
	return (dr == 0 && (dc == 1 || dc == -1)) || (dc == 0 && (dr == 1 || dr == -1))
}

// HeadingBetween returns the travel heading from a to b. Both must exist and
// be adjacent; ValidateRoute guarantees this for vehicle routes.
func (g *Grid) HeadingBetween(a, b string) Heading {
	ia, ib := g.intersections[a], g.intersections[b]
	switch {
	case ib.Col > ia.Col:
		return HeadingEast
	case ib.Col < ia.Col:
		return HeadingWest
	case ib.Row > ia.Row:
		return HeadingSouth
	default:
		return HeadingNorth
	}
}

// ValidateRoute checks that a route is non-empty, visits known intersections,
// and only moves between orthogonal neighbours.
func (g *Grid) ValidateRoute(route []string) error {
	if len(route) == 0 {
		return validationErrorf("route", "route must not be empty")
	}
	for _, id := range route {
		if g.intersections[id] == nil {
			return validationErrorf("route", "unknown intersection %q", id)
		}
	}
	for i := 1; i < len(route); i++ {
		if !g.Adjacent(route[i-1], route[i]) {
			return validationErrorf("route", "%s and %s are not adjacent", route[i-1], route[i])
		}
	}
	return nil
}

// RandomRoute produces a straight route across the grid, matching the
// row/column lanes of the demo scenario: a full row west-to-east (or
// reversed), or a full column north-to-south (or reversed).
func (g *Grid) RandomRoute(rng *rand.Rand) []string {
	horizontal := rng.Intn(2) == 0
	idx := rng.Intn(g.Size)
	reversed := rng.Intn(2) == 1

	route := make([]string, 0, g.Size)
	for i := 0; i < g.Size; i++ {
		if horizontal {
			route = append(route, IntersectionID(g.Size, idx, i))
		} else {
			route = append(route, IntersectionID(g.Size, i, idx))
		}
	}
	if reversed {
		for i, j := 0, len(route)-1; i < j; i, j = i+1, j-1 {
			route[i], route[j] = route[j], route[i]
		}
	}
	return route
}
