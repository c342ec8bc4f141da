// Package render turns single-band NDVI rasters into styled RGBA images.
package render

import (
	"errors"
	"fmt"
	"image/color"
	"math"
	"sort"
	"sync"
)

// DefaultStyle is the profile used when the caller does not name one.
const DefaultStyle = "default"

// ErrUnknownStyle is returned by Lookup for unregistered style names.
var ErrUnknownStyle = errors.New("unknown style")

// Style maps an NDVI value to a color.
type Style interface {
	Name() string
	Color(v float64) color.NRGBA
}

// Stop is one control point of a color ramp.
type Stop struct {
	Value float64
	Color color.NRGBA
}

// Ramp is a Style that linearly interpolates between stops. Values outside
// the first and last stop are clamped.
type Ramp struct {
	name  string
	stops []Stop
}

// NewRamp builds a ramp from at least two stops. Stops are sorted by value.
func NewRamp(name string, stops ...Stop) (*Ramp, error) {
	if name == "" {
		return nil, fmt.Errorf("style name is required")
	}
	if len(stops) < 2 {
		return nil, fmt.Errorf("style %s needs at least two stops", name)
	}
	sorted := append([]Stop(nil), stops...)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].Value < sorted[j].Value })
	return &Ramp{name: name, stops: sorted}, nil
}

func mustRamp(name string, stops ...Stop) *Ramp {
	r, err := NewRamp(name, stops...)
	if err != nil {
		panic(err)
	}
	return r
}

func (r *Ramp) Name() string { return r.name }

func (r *Ramp) Color(v float64) color.NRGBA {
	first, last := r.stops[0], r.stops[len(r.stops)-1]
	if math.IsNaN(v) || v <= first.Value {
		return first.Color
	}
	if v >= last.Value {
		return last.Color
	}

	i := sort.Search(len(r.stops), func(i int) bool { return r.stops[i].Value >= v })
	lo, hi := r.stops[i-1], r.stops[i]
	t := (v - lo.Value) / (hi.Value - lo.Value)
	return color.NRGBA{
		R: lerp(lo.Color.R, hi.Color.R, t),
		G: lerp(lo.Color.G, hi.Color.G, t),
		B: lerp(lo.Color.B, hi.Color.B, t),
		A: lerp(lo.Color.A, hi.Color.A, t),
	}
}

func lerp(a, b uint8, t float64) uint8 {
	return uint8(math.Round(float64(a) + (float64(b)-float64(a))*t))
}

// Built-in profiles.
var (
	// Default runs red through yellow to green over the full NDVI range.
	Default = mustRamp(DefaultStyle,
		Stop{-1, color.NRGBA{R: 165, G: 0, B: 38, A: 255}},
		Stop{0, color.NRGBA{R: 255, G: 255, B: 191, A: 255}},
		Stop{1, color.NRGBA{R: 0, G: 104, B: 55, A: 255}},
	)

	Greyscale = mustRamp("greyscale",
		Stop{-1, color.NRGBA{A: 255}},
		Stop{1, color.NRGBA{R: 255, G: 255, B: 255, A: 255}},
	)

	// Vigor stretches the vegetated range from bare soil to dense canopy.
	Vigor = mustRamp("vigor",
		Stop{-0.2, color.NRGBA{R: 140, G: 81, B: 10, A: 255}},
		Stop{0.3, color.NRGBA{R: 223, G: 194, B: 125, A: 255}},
		Stop{0.6, color.NRGBA{R: 127, G: 188, B: 65, A: 255}},
		Stop{0.9, color.NRGBA{R: 0, G: 90, B: 50, A: 255}},
	)
)

// Registry holds the style profiles available to the renderer.
type Registry struct {
	mu     sync.RWMutex
	styles map[string]Style
}

// NewRegistry returns a registry holding the built-in profiles.
func NewRegistry() *Registry {
	reg := &Registry{styles: make(map[string]Style)}
	for _, s := range []Style{Default, Greyscale, Vigor} {
		reg.Register(s)
	}
	return reg
}

// Register adds s, replacing any profile with the same name.
func (r *Registry) Register(s Style) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.styles[s.Name()] = s
}

// Lookup returns the named profile.
func (r *Registry) Lookup(name string) (Style, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	s, ok := r.styles[name]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownStyle, name)
	}
	return s, nil
}

// Names returns the registered profile names in sorted order.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	names := make([]string, 0, len(r.styles))
	for name := range r.styles {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
