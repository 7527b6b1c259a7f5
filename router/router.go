// SPDX-License-Identifier: EPL-2.0

// Package router mixes sources into destinations.
//
// The graph is bipartite: routes connect a source to a destination and are
// addressed by integer handles. Mutations build a new immutable graph and
// publish it atomically; Process loads the current graph once per call and
// never takes a lock or allocates.
//
// Process is the single writer into every destination. Only one goroutine
// may call it.
package router

import (
	"fmt"
	"log/slog"
	"math"
	"runtime"
	"slices"
	"sync"
	"sync/atomic"

	"github.com/ik5/audengine/audio"
	"github.com/ik5/audengine/meter"
)

// DefaultMaxFrames bounds one Process chunk. Larger requests are split.
const DefaultMaxFrames = 4096

type (
	SourceID uint32
	DestID   uint32
	RouteID  uint32
)

// Source is pulled once per Process call. Fill must write frames frames of
// interleaved samples into out, zero padding when it has less, and report
// how many were real and whether it has ended.
type Source interface {
	Channels() int
	Fill(out []float32, frames int) (written int, finished bool)
}

// Destination receives one mixed block per Process call.
type Destination interface {
	Channels() int
	Write(in []float32, frames int)
}

// Effect processes a block in place.
type Effect interface {
	Process(buf []float32, frames int)
}

// Tap observes the post-effect block, for example an analyser.
type Tap interface {
	Write(buf []float32, frames int)
}

type sourceNode struct {
	id       SourceID
	src      Source
	channels int
	buf      []float32
	pulled   bool
	finished atomic.Bool
}

type destNode struct {
	id       DestID
	dst      Destination
	channels int
	mix      []float32
	effects  []Effect
	meter    *meter.Meter
	taps     []Tap
}

type route struct {
	id   RouteID
	src  SourceID
	dst  DestID
	post bool
	gain atomic.Uint32 // float32 bits
}

// edge is a route resolved against one graph.
type edge struct {
	route *route
	src   int // index into graph.sources
}

type plan struct {
	pre, post []edge
}

type graph struct {
	version uint64
	sources []*sourceNode
	dests   []*destNode
	routes  []*route
	plans   []plan // parallel to dests
}

type Option func(*Router)

func WithLogger(l *slog.Logger) Option { return func(r *Router) { r.logger = l } }

// WithMaxFrames sets the largest chunk Process handles at once.
func WithMaxFrames(n int) Option {
	return func(r *Router) {
		if n > 0 {
			r.maxFrames = n
		}
	}
}

type Router struct {
	logger    *slog.Logger
	maxFrames int

	mu     sync.Mutex // serialises mutations
	nextID uint32
	graph  atomic.Pointer[graph]
	active atomic.Bool // Process is running on a loaded graph
	cycles atomic.Uint64
}

func New(opts ...Option) *Router {
	r := &Router{
		logger:    slog.Default(),
		maxFrames: DefaultMaxFrames,
	}
	for _, opt := range opts {
		opt(r)
	}
	r.logger = r.logger.With("component", "router")
	r.graph.Store(&graph{})
	return r
}

// Version increases with every graph change.
func (r *Router) Version() uint64 { return r.graph.Load().version }

// Cycles counts Process calls.
func (r *Router) Cycles() uint64 { return r.cycles.Load() }

func (r *Router) MaxFrames() int { return r.maxFrames }

// mutate runs fn on a copy of the current graph and publishes the result.
// When wait is set it also returns only after no Process call still uses
// the previous graph, so removed nodes can be released.
func (r *Router) mutate(wait bool, fn func(g *graph) error) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	old := r.graph.Load()
	g := &graph{
		version: old.version + 1,
		sources: slices.Clone(old.sources),
		dests:   slices.Clone(old.dests),
		routes:  slices.Clone(old.routes),
	}
	if err := fn(g); err != nil {
		return err
	}
	g.plans = g.resolve()
	r.graph.Store(g)

	if wait {
		for r.active.Load() {
			runtime.Gosched()
		}
	}
	return nil
}

func (g *graph) resolve() []plan {
	plans := make([]plan, len(g.dests))
	for di, d := range g.dests {
		for _, rt := range g.routes {
			if rt.dst != d.id {
				continue
			}
			si := slices.IndexFunc(g.sources, func(s *sourceNode) bool { return s.id == rt.src })
			if si < 0 {
				continue
			}
			e := edge{route: rt, src: si}
			if rt.post {
				plans[di].post = append(plans[di].post, e)
			} else {
				plans[di].pre = append(plans[di].pre, e)
			}
		}
	}
	return plans
}

func (g *graph) source(id SourceID) int {
	return slices.IndexFunc(g.sources, func(s *sourceNode) bool { return s.id == id })
}

func (g *graph) dest(id DestID) int {
	return slices.IndexFunc(g.dests, func(d *destNode) bool { return d.id == id })
}

func (g *graph) route(id RouteID) int {
	return slices.IndexFunc(g.routes, func(rt *route) bool { return rt.id == id })
}

func (r *Router) newID() uint32 {
	r.nextID++
	return r.nextID
}

// AddSource registers src and returns its handle.
func (r *Router) AddSource(src Source) (SourceID, error) {
	ch := src.Channels()
	if ch <= 0 {
		return 0, audio.E(audio.OutOfRange, "add source", ErrChannels)
	}

	var id SourceID
	err := r.mutate(false, func(g *graph) error {
		id = SourceID(r.newID())
		g.sources = append(g.sources, &sourceNode{
			id:       id,
			src:      src,
			channels: ch,
			buf:      make([]float32, r.maxFrames*ch),
		})
		return nil
	})
	if err != nil {
		return 0, err
	}
	r.logger.Debug("source added", "source", id, "channels", ch)
	return id, nil
}

type DestOption func(*destNode)

// WithEffects sets the effect chain, run in order on the mix.
func WithEffects(fx ...Effect) DestOption {
	return func(d *destNode) { d.effects = append(d.effects, fx...) }
}

// WithMeter updates m from every post-effect block.
func WithMeter(m *meter.Meter) DestOption { return func(d *destNode) { d.meter = m } }

// WithTap publishes every post-effect block to t.
func WithTap(t Tap) DestOption { return func(d *destNode) { d.taps = append(d.taps, t) } }

// AddDestination registers dst and returns its handle.
func (r *Router) AddDestination(dst Destination, opts ...DestOption) (DestID, error) {
	ch := dst.Channels()
	if ch <= 0 {
		return 0, audio.E(audio.OutOfRange, "add destination", ErrChannels)
	}

	node := &destNode{
		dst:      dst,
		channels: ch,
		mix:      make([]float32, r.maxFrames*ch),
	}
	for _, opt := range opts {
		opt(node)
	}

	err := r.mutate(false, func(g *graph) error {
		node.id = DestID(r.newID())
		g.dests = append(g.dests, node)
		return nil
	})
	if err != nil {
		return 0, err
	}
	r.logger.Debug("destination added", "destination", node.id, "channels", ch, "effects", len(node.effects))
	return node.id, nil
}

func checkGain(op string, gain float64) error {
	if math.IsNaN(gain) || math.IsInf(gain, 0) || gain < 0 {
		return audio.E(audio.OutOfRange, op, fmt.Errorf("%w: %v", ErrInvalidGain, gain))
	}
	return nil
}

type RouteOption func(*route)

// PostEffects mixes the route in after the destination's effects, which is
// how direct monitoring skips the EQ.
func PostEffects() RouteOption { return func(rt *route) { rt.post = true } }

// CreateRoute connects src to dst at a linear gain.
func (r *Router) CreateRoute(src SourceID, dst DestID, gain float64, opts ...RouteOption) (RouteID, error) {
	const op = "create route"
	if err := checkGain(op, gain); err != nil {
		return 0, err
	}

	var id RouteID
	err := r.mutate(false, func(g *graph) error {
		if g.source(src) < 0 {
			return audio.E(audio.OutOfRange, op, fmt.Errorf("%w: %d", ErrUnknownSource, src))
		}
		if g.dest(dst) < 0 {
			return audio.E(audio.OutOfRange, op, fmt.Errorf("%w: %d", ErrUnknownDestination, dst))
		}

		rt := &route{src: src, dst: dst}
		for _, opt := range opts {
			opt(rt)
		}
		rt.gain.Store(math.Float32bits(float32(gain)))
		rt.id = RouteID(r.newID())
		id = rt.id
		g.routes = append(g.routes, rt)
		return nil
	})
	if err != nil {
		return 0, err
	}
	r.logger.Debug("route created", "route", id, "source", src, "destination", dst, "gain", gain)
	return id, nil
}

// SetRouteGain changes a route's gain without rebuilding the graph.
func (r *Router) SetRouteGain(id RouteID, gain float64) error {
	const op = "set route gain"
	if err := checkGain(op, gain); err != nil {
		return err
	}

	g := r.graph.Load()
	i := g.route(id)
	if i < 0 {
		return audio.E(audio.OutOfRange, op, fmt.Errorf("%w: %d", ErrUnknownRoute, id))
	}
	g.routes[i].gain.Store(math.Float32bits(float32(gain)))
	return nil
}

// RouteGain returns the current gain of a route.
func (r *Router) RouteGain(id RouteID) (float64, bool) {
	g := r.graph.Load()
	i := g.route(id)
	if i < 0 {
		return 0, false
	}
	return float64(math.Float32frombits(g.routes[i].gain.Load())), true
}

func (r *Router) RemoveRoute(id RouteID) error {
	return r.mutate(false, func(g *graph) error {
		i := g.route(id)
		if i < 0 {
			return audio.E(audio.OutOfRange, "remove route", fmt.Errorf("%w: %d", ErrUnknownRoute, id))
		}
		g.routes = slices.Delete(g.routes, i, i+1)
		return nil
	})
}

// RemoveSource detaches every route from src, then drops it. When it returns
// Process no longer touches src.
func (r *Router) RemoveSource(id SourceID) error {
	return r.mutate(true, func(g *graph) error {
		i := g.source(id)
		if i < 0 {
			return audio.E(audio.OutOfRange, "remove source", fmt.Errorf("%w: %d", ErrUnknownSource, id))
		}
		g.routes = slices.DeleteFunc(g.routes, func(rt *route) bool { return rt.src == id })
		g.sources = slices.Delete(g.sources, i, i+1)
		return nil
	})
}

// RemoveDestination detaches every route into dst, then drops it. When it
// returns Process no longer touches dst.
func (r *Router) RemoveDestination(id DestID) error {
	return r.mutate(true, func(g *graph) error {
		i := g.dest(id)
		if i < 0 {
			return audio.E(audio.OutOfRange, "remove destination", fmt.Errorf("%w: %d", ErrUnknownDestination, id))
		}
		g.routes = slices.DeleteFunc(g.routes, func(rt *route) bool { return rt.dst == id })
		g.dests = slices.Delete(g.dests, i, i+1)
		return nil
	})
}

// Finished reports whether a source has signalled its end. Unknown sources
// count as finished.
func (r *Router) Finished(id SourceID) bool {
	g := r.graph.Load()
	i := g.source(id)
	return i < 0 || g.sources[i].finished.Load()
}

// Counts returns the number of sources, destinations and routes.
func (r *Router) Counts() (sources, dests, routes int) {
	g := r.graph.Load()
	return len(g.sources), len(g.dests), len(g.routes)
}

// Process produces frames for every destination. For each destination the
// routed sources are summed with their gains, the effects run, the meter
// and taps see the result, and the block is written. Each source is pulled
// at most once per chunk however many routes it feeds.
func (r *Router) Process(frames int) {
	r.active.Store(true)
	defer r.active.Store(false)

	g := r.graph.Load()
	for frames > 0 {
		n := min(frames, r.maxFrames)
		g.process(n)
		frames -= n
	}
	r.cycles.Add(1)
}

func (g *graph) process(frames int) {
	for _, s := range g.sources {
		s.pulled = false
	}

	for di, d := range g.dests {
		mix := d.mix[:frames*d.channels]
		clear(mix)

		p := &g.plans[di]
		g.sum(mix, d.channels, p.pre, frames)
		for _, fx := range d.effects {
			fx.Process(mix, frames)
		}
		g.sum(mix, d.channels, p.post, frames)

		if d.meter != nil {
			d.meter.Update(mix, frames)
		}
		for _, t := range d.taps {
			t.Write(mix, frames)
		}
		d.dst.Write(mix, frames)
	}
}

func (g *graph) sum(mix []float32, channels int, edges []edge, frames int) {
	for _, e := range edges {
		s := g.sources[e.src]
		if !s.pulled {
			_, finished := s.src.Fill(s.buf[:frames*s.channels], frames)
			if finished {
				s.finished.Store(true)
			}
			s.pulled = true
		}
		gain := math.Float32frombits(e.route.gain.Load())
		if gain == 0 {
			continue
		}
		audio.MapChannels(mix, channels, s.buf, s.channels, frames, gain)
	}
}
