// Package playback drives time-based playback of interpolated ("3D")
// regions.
//
// Each 3D region gets one Engine. While playing, the engine ticks on a
// repeating task, asks the remote service for the frame at the current
// time and swaps the displayed frame region. Frame responses complete
// asynchronously and can arrive out of order, so every request carries a
// per-engine sequence number and responses superseded by a newer one are
// discarded.
//
// A Group coordinates play/stop across engines and can override their
// speed.
package playback

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/Mr-Dark-debug/regionplay/internal/eventloop"
	"github.com/Mr-Dark-debug/regionplay/internal/logger"
	"github.com/Mr-Dark-debug/regionplay/internal/region"
	"github.com/Mr-Dark-debug/regionplay/internal/registry"
)

// ErrNotEnvelope is returned when an engine is requested for a region that
// is missing or not 3D.
var ErrNotEnvelope = errors.New("region is not a 3D region")

// State is the playback state of a session.
type State int

const (
	Stopped State = iota
	Playing
	Paused
)

func (s State) String() string {
	switch s {
	case Stopped:
		return "stopped"
	case Playing:
		return "playing"
	case Paused:
		return "paused"
	default:
		return "unknown"
	}
}

// FrameSource fetches the frame of a 3D region at one time instant.
type FrameSource interface {
	FindRegionAtTime(ctx context.Context, regionID string, t int) (region.RingSet, error)
}

// FrameStore adds and removes frame regions. The controller implements it
// so that frames are registered and mirrored to the server like any other
// region. DeleteFrame must tolerate ids that are already gone.
type FrameStore interface {
	AddFrame(parentID string, geometry region.RingSet) (string, error)
	DeleteFrame(id string)
}

// FrameResult classifies what happened to a frame response.
type FrameResult int

const (
	FrameApplied FrameResult = iota
	FrameStale
	FrameFailed
)

func (r FrameResult) String() string {
	switch r {
	case FrameApplied:
		return "applied"
	case FrameStale:
		return "stale"
	case FrameFailed:
		return "failed"
	default:
		return "unknown"
	}
}

// FrameOutcome reports a completed frame request.
type FrameOutcome struct {
	RegionID string
	Seq      uint64
	Time     int
	Single   bool
	Result   FrameResult
	FrameID  string
	Latency  time.Duration
	Err      error
}

// Status is a snapshot of a playback session.
type Status struct {
	RegionID       string
	State          State
	StartTime      int
	EndTime        int
	CurrentTime    int // last value reflected to the time-position output
	NextTime       int // time the next tick will display
	Speed          float64
	EffectiveSpeed float64
	Interval       time.Duration
	Loop           bool
	SingleFrame    bool
	InFlight       int
	Disposed       bool
}

// Deps are the collaborators of an Engine.
type Deps struct {
	Registry *registry.Registry
	Loop     eventloop.Loop
	Source   FrameSource
	Frames   FrameStore
	Override *SpeedOverride

	// Context bounds every frame request; Timeout applies per request.
	Context context.Context
	Timeout time.Duration
	Logger  *slog.Logger

	OnStatus func(Status)
	OnFrame  func(FrameOutcome)
}

// Engine is the playback state machine of one 3D region.
type Engine struct {
	id         string
	start, end int

	state    State
	next     int // time displayed by the next tick
	position int // time-position input/output
	speed    float64
	loop     bool
	single   bool
	effSpeed float64

	task     eventloop.Task
	seq      uint64 // last issued request
	applied  uint64 // newest applied single-frame request
	epoch    uint64 // bumped when in-flight requests must be ignored
	inflight int
	disposed bool

	deps Deps
	log  *slog.Logger
}

// NewEngine creates a stopped engine for the 3D region regionID.
// Single-frame mode is on by default.
func NewEngine(regionID string, deps Deps) (*Engine, error) {
	parent, ok := deps.Registry.Get(regionID)
	if !ok || !parent.Is3D {
		return nil, fmt.Errorf("creating engine for %s: %w", regionID, ErrNotEnvelope)
	}
	if deps.Context == nil {
		deps.Context = context.Background()
	}
	if deps.Timeout <= 0 {
		deps.Timeout = 10 * time.Second
	}
	l := deps.Logger
	if l == nil {
		l = logger.L()
	}
	return &Engine{
		id:       regionID,
		start:    parent.StartTime,
		end:      parent.EndTime,
		next:     parent.StartTime,
		position: parent.StartTime,
		single:   true,
		deps:     deps,
		log:      l.With("region", regionID),
	}, nil
}

// ID returns the 3D region id.
func (e *Engine) ID() string { return e.id }

// State returns the current state.
func (e *Engine) State() State { return e.state }

// Status returns a snapshot.
func (e *Engine) Status() Status {
	eff := e.effSpeed
	if e.state != Playing {
		eff = ResolveSpeed(e.speed, e.deps.Override)
	}
	return Status{
		RegionID:       e.id,
		State:          e.state,
		StartTime:      e.start,
		EndTime:        e.end,
		CurrentTime:    e.position,
		NextTime:       e.next,
		Speed:          e.speed,
		EffectiveSpeed: eff,
		Interval:       Interval(eff),
		Loop:           e.loop,
		SingleFrame:    e.single,
		InFlight:       e.inflight,
		Disposed:       e.disposed,
	}
}

func (e *Engine) notify() {
	if e.deps.OnStatus != nil {
		e.deps.OnStatus(e.Status())
	}
}

func (e *Engine) clampTime(t int) int {
	if t < e.start {
		return e.start
	}
	if t > e.end {
		return e.end
	}
	return t
}

// SetPosition moves the time-position input without requesting a frame.
func (e *Engine) SetPosition(t int) {
	if e.disposed {
		return
	}
	e.position = e.clampTime(t)
	if e.state != Playing {
		e.next = e.position
	}
	e.notify()
}

// Scrub moves the time-position input and requests the frame at that time.
func (e *Engine) Scrub(t int) {
	if e.disposed {
		return
	}
	t = e.clampTime(t)
	e.position = t
	if e.state != Playing {
		e.next = t
	}
	e.requestFrame(t)
	e.notify()
}

// SetSpeed sets the session speed; 0 defers to the group or default speed.
// A playing session picks up the new speed immediately.
func (e *Engine) SetSpeed(s float64) {
	e.speed = s
	if e.state == Playing {
		e.reschedule()
	}
	e.notify()
}

// SetLoop toggles looping.
func (e *Engine) SetLoop(loop bool) {
	e.loop = loop
	e.notify()
}

// SetSingleFrame switches between replacing and accumulating frames.
// The linked frame is removed and requests issued under the old mode are
// ignored when they complete, so neither direction leaks frames.
func (e *Engine) SetSingleFrame(single bool) {
	if e.single == single {
		return
	}
	e.single = single
	e.epoch++
	e.dropLinkedFrame()
	e.notify()
}

// Play starts or resumes playback.
func (e *Engine) Play() {
	if e.disposed {
		return
	}
	switch e.state {
	case Playing:
		e.reschedule()
		e.notify()
		return
	case Stopped:
		e.next = e.clampTime(e.position)
	case Paused:
		e.next = e.clampTime(e.next)
	}
	e.effSpeed = ResolveSpeed(e.speed, e.deps.Override)
	e.task = e.deps.Loop.Every(Interval(e.effSpeed), e.tick)
	e.state = Playing
	e.log.Debug("playback_play", "from", e.next, "speed", e.effSpeed)
	e.notify()
}

// reschedule restarts the repeating task if the effective speed changed.
func (e *Engine) reschedule() {
	speed := ResolveSpeed(e.speed, e.deps.Override)
	if speed == e.effSpeed {
		return
	}
	e.cancelTask()
	e.effSpeed = speed
	e.task = e.deps.Loop.Every(Interval(speed), e.tick)
}

// Pause halts ticking and keeps the current time.
func (e *Engine) Pause() {
	if e.state != Playing {
		return
	}
	e.cancelTask()
	e.state = Paused
	e.notify()
}

// Stop halts ticking and rewinds to the start time.
func (e *Engine) Stop() {
	e.cancelTask()
	e.next = e.start
	e.position = e.start
	e.state = Stopped
	e.notify()
}

// Dispose stops the engine for good. Responses still in flight are
// discarded when they arrive.
func (e *Engine) Dispose() {
	e.cancelTask()
	e.state = Stopped
	e.disposed = true
	e.epoch++
	e.notify()
}

func (e *Engine) cancelTask() {
	if e.task != nil {
		e.task.Cancel()
		e.task = nil
	}
}

func (e *Engine) tick() {
	if e.state != Playing || e.disposed {
		return
	}
	if e.next > e.end {
		if !e.loop {
			e.Stop()
			return
		}
		e.next = e.start
	}
	if e.next < e.start {
		e.next = e.start
	}

	t := e.next
	e.requestFrame(t)
	e.position = t
	e.next++
	e.notify()
}

type frameRequest struct {
	seq    uint64
	epoch  uint64
	time   int
	single bool
	issued time.Time
}

// requestFrame issues the frame request for t. In single-frame mode the
// displayed frame is removed up front so stale frames never pile up.
func (e *Engine) requestFrame(t int) {
	e.seq++
	req := frameRequest{seq: e.seq, epoch: e.epoch, time: t, single: e.single, issued: time.Now()}
	if req.single {
		e.dropLinkedFrame()
	}
	e.inflight++

	ctx, source, timeout, id := e.deps.Context, e.deps.Source, e.deps.Timeout, e.id
	e.deps.Loop.Go(func() func() {
		cctx, cancel := context.WithTimeout(ctx, timeout)
		defer cancel()
		geometry, err := source.FindRegionAtTime(cctx, id, t)
		return func() { e.applyFrame(req, geometry, err) }
	})
}

// dropLinkedFrame deletes the displayed frame child, which unlinks it.
func (e *Engine) dropLinkedFrame() {
	parent, ok := e.deps.Registry.Get(e.id)
	if !ok || parent.InterpolatedRegionID == region.None {
		return
	}
	e.deps.Frames.DeleteFrame(parent.InterpolatedRegionID)
}

func (e *Engine) applyFrame(req frameRequest, geometry region.RingSet, err error) {
	e.inflight--
	out := FrameOutcome{
		RegionID: e.id,
		Seq:      req.seq,
		Time:     req.time,
		Single:   req.single,
		Latency:  time.Since(req.issued),
	}

	switch {
	case err != nil:
		e.log.Warn("frame_request_failed", "time", req.time, "seq", req.seq, "err", err)
		out.Result, out.Err = FrameFailed, err
	case e.disposed, req.epoch != e.epoch, !e.deps.Registry.Exists(e.id):
		out.Result = FrameStale
	case req.single && req.seq <= e.applied:
		out.Result = FrameStale
	default:
		id, aerr := e.placeFrame(req, geometry)
		if aerr != nil {
			e.log.Warn("frame_apply_failed", "time", req.time, "seq", req.seq, "err", aerr)
			out.Result, out.Err = FrameFailed, aerr
		} else {
			out.Result, out.FrameID = FrameApplied, id
		}
	}

	if out.Result == FrameStale {
		e.log.Debug("frame_discarded", "time", req.time, "seq", req.seq, "applied", e.applied)
	}
	if e.deps.OnFrame != nil {
		e.deps.OnFrame(out)
	}
	e.notify()
}

func (e *Engine) placeFrame(req frameRequest, geometry region.RingSet) (string, error) {
	if !req.single {
		return e.deps.Frames.AddFrame(e.id, geometry)
	}

	// The previous child goes before the link is reassigned.
	e.dropLinkedFrame()
	id, err := e.deps.Frames.AddFrame(e.id, geometry)
	if err != nil {
		return "", err
	}
	e.applied = req.seq
	if err := e.deps.Registry.LinkFrame(e.id, id); err != nil {
		e.deps.Frames.DeleteFrame(id)
		return "", err
	}
	return id, nil
}
