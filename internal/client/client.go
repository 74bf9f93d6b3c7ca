// Package client is the predicting side of a session: it renders its own entity from local
// prediction reconciled against snapshots and every other entity from an interpolation buffer.
package client

import (
	"errors"
	"fmt"
	"time"

	"driftpursuit/netsync/internal/clock"
	"driftpursuit/netsync/internal/config"
	"driftpursuit/netsync/internal/entity"
	"driftpursuit/netsync/internal/interp"
	"driftpursuit/netsync/internal/logging"
	"driftpursuit/netsync/internal/metrics"
	"driftpursuit/netsync/internal/prediction"
	"driftpursuit/netsync/internal/protocol"
	"driftpursuit/netsync/internal/transport"
)

// maxEventsPerFrame bounds how long one frame may spend draining the network.
const maxEventsPerFrame = 4096

// ErrUnknownControlled reports a SetControlledEntity for an entity never announced.
var ErrUnknownControlled = errors.New("client: controlled entity was never announced")

// EventSource is the part of transport.Host the frame loop reads from.
type EventSource interface {
	Poll(timeout time.Duration) (transport.Event, bool)
}

// InputSource samples the player's controls once per predicted tick.
type InputSource interface {
	Controls() entity.Controls
}

// InputFunc adapts a function to InputSource.
type InputFunc func() entity.Controls

// Controls calls f.
func (f InputFunc) Controls() entity.Controls { return f() }

// Options configure a Client.
type Options struct {
	Name          string
	Sync          config.SyncConfig
	Interpolation interp.Mode
	Tolerance     prediction.Tolerance
	PollTimeout   time.Duration
	Logger        *logging.Logger
	Metrics       *metrics.Metrics
}

// View is what a frame hands to rendering.
type View struct {
	// Own is the tail of the prediction; HasOwn is false until the server assigns an entity.
	Own     entity.State
	HasOwn  bool
	Remotes []entity.State
	// RenderMs is the time remote entities were sampled at.
	RenderMs float64
	Synced   bool
}

type remote struct {
	color  uint32
	latest entity.State
	shown  bool
	buffer *interp.Buffer
}

// Client holds the local view of a session. All methods must be called from the frame loop
// goroutine.
type Client struct {
	opts   Options
	events EventSource
	input  InputSource
	clock  *clock.Clock

	server   transport.Peer
	entities *entity.Registry[remote]
	own      entity.ID
	history  *prediction.History

	log       *logging.Logger
	throttled *logging.Throttled
}

// New creates a client reading events from src and sampling input from in.
func New(src EventSource, in InputSource, clk *clock.Clock, opts Options) *Client {
	if opts.Sync.FixedDt <= 0 {
		opts.Sync = config.DefaultSync()
	}
	if opts.Tolerance == (prediction.Tolerance{}) {
		opts.Tolerance = prediction.DefaultTolerance()
	}
	if opts.Logger == nil {
		opts.Logger = logging.L()
	}
	if in == nil {
		in = InputFunc(func() entity.Controls { return entity.Controls{} })
	}
	if clk == nil {
		clk = clock.New(nil)
	}
	log := opts.Logger.With(logging.String("component", "client"))
	return &Client{
		opts:      opts,
		events:    src,
		input:     in,
		clock:     clk,
		entities:  entity.NewRegistry[remote](),
		own:       entity.InvalidID,
		log:       log,
		throttled: logging.NewThrottled(log, 5*time.Second, 3),
	}
}

// Connected reports whether a server peer is attached.
func (c *Client) Connected() bool {
	return c.server != nil
}

// Controlled returns the entity the server assigned, or entity.InvalidID.
func (c *Client) Controlled() entity.ID {
	return c.own
}

// History exposes the prediction buffer, nil before an entity is assigned.
func (c *Client) History() *prediction.History {
	return c.history
}

// Clock returns the client clock.
func (c *Client) Clock() *clock.Clock {
	return c.clock
}

// Frame drains the network, predicts the own entity up to the synced clock and samples every
// remote entity at the render time.
func (c *Client) Frame(time.Time) View {
	//1.- Dispatch everything that arrived since the last frame.
	timeout := c.opts.PollTimeout
	for i := 0; i < maxEventsPerFrame; i++ {
		ev, ok := c.events.Poll(timeout)
		if !ok {
			break
		}
		timeout = 0
		c.handle(ev)
	}

	//2.- Predict the own entity and report each new tick's input.
	if c.clock.Synced() && c.history != nil {
		c.predict(c.clock.Tick(c.opts.Sync.FixedDt))
	}

	//3.- Sample remote entities behind the synced clock.
	return c.view()
}

func (c *Client) predict(target uint32) {
	for c.history.Tail().Tick < target {
		controls := protocol.QuantizeControls(c.input.Controls())
		next, err := c.history.Predict(controls)
		if err != nil {
			c.log.Error("prediction stopped", logging.Error(err))
			break
		}
		c.sendInput(protocol.Input{EID: c.own, Tick: next.Tick, Controls: controls})
	}
	if c.opts.Metrics != nil {
		c.opts.Metrics.HistoryLength.Set(float64(c.history.Len()))
	}
}

// RenderMs is the synced clock minus the clock offset and the interpolation delay.
func (c *Client) RenderMs() float64 {
	var rtt time.Duration
	if c.server != nil {
		rtt = c.server.RTT()
	}
	delay := interp.RenderDelay(c.opts.Sync.SnapshotInterval, c.opts.Sync.RenderSafetyMargin, rtt) + c.opts.Sync.ClockOffset
	render := float64(c.clock.NowMs()) - float64(delay)/float64(time.Millisecond)
	if render < 0 {
		return 0
	}
	return render
}

func (c *Client) view() View {
	v := View{Synced: c.clock.Synced()}
	if c.history != nil {
		v.Own = c.history.Tail()
		v.HasOwn = true
	}
	if !v.Synced {
		return v
	}
	v.RenderMs = c.RenderMs()
	v.Remotes = make([]entity.State, 0, c.entities.Len())
	c.entities.Each(func(id entity.ID, r *remote) {
		if id == c.own {
			return
		}
		r.buffer.Advance(v.RenderMs)
		if s, ok := r.buffer.Sample(v.RenderMs, c.opts.Interpolation); ok {
			s.EID = id
			s.Color = r.color
			r.latest = s
			r.shown = true
		}
		if r.shown {
			v.Remotes = append(v.Remotes, r.latest)
		}
	})
	return v
}

func (c *Client) handle(ev transport.Event) {
	switch ev.Type {
	case transport.EventConnect:
		c.server = ev.Peer
		c.log.Info("connected to server", logging.String("remote", ev.Peer.RemoteAddr()), logging.Duration("rtt", ev.Peer.RTT()))
		c.sendJoin()
	case transport.EventDisconnect:
		if c.server != nil && c.server.ID() == ev.Peer.ID() {
			c.server = nil
		}
		c.log.Warn("disconnected from server")
	case transport.EventReceive:
		if err := c.dispatch(ev.Payload); err != nil {
			c.desync(ev.Peer, err)
		}
	}
}

func (c *Client) dispatch(packet []byte) error {
	kind, err := protocol.KindOf(packet)
	if errors.Is(err, protocol.ErrUnknownKind) {
		c.log.Debug("ignoring unknown message kind", logging.Int("tag", int(packet[0])))
		return nil
	}
	if err != nil {
		return err
	}
	if c.opts.Metrics != nil {
		c.opts.Metrics.Packets.WithLabelValues(kind.String()).Inc()
	}
	switch kind {
	case protocol.KindNewEntity:
		msg, err := protocol.DecodeNewEntity(packet)
		if err != nil {
			return err
		}
		c.newEntity(msg.State)
	case protocol.KindSetControlledEntity:
		msg, err := protocol.DecodeSetControlledEntity(packet)
		if err != nil {
			return err
		}
		return c.setControlled(msg.EID)
	case protocol.KindSetTime:
		msg, err := protocol.DecodeSetTime(packet)
		if err != nil {
			return err
		}
		c.setTime(msg.ServerMs)
	case protocol.KindSnapshot:
		msg, err := protocol.DecodeSnapshot(packet)
		if err != nil {
			return err
		}
		c.snapshot(msg.State)
	default:
		c.log.Debug("ignoring client-bound message", logging.String("kind", kind.String()))
	}
	return nil
}

func (c *Client) newEntity(s entity.State) {
	//1.- Announcements are idempotent: a second NewEntity for a known id is ignored.
	if c.entities.Has(s.EID) {
		c.log.Debug("duplicate entity announcement ignored", logging.Uint32("eid", uint32(s.EID)))
		return
	}
	buffer := interp.NewBuffer(c.opts.Sync.FixedDt)
	buffer.Push(s)
	c.entities.Add(s.EID, remote{color: s.Color, latest: s, buffer: buffer})
	if c.opts.Metrics != nil {
		c.opts.Metrics.Entities.Set(float64(c.entities.Len()))
	}
	c.log.Debug("entity announced", logging.Uint32("eid", uint32(s.EID)), logging.Uint32("tick", s.Tick))
}

func (c *Client) setControlled(eid entity.ID) error {
	r, err := c.entities.Get(eid)
	if err != nil {
		return fmt.Errorf("%w: %d", ErrUnknownControlled, eid)
	}
	c.own = eid
	//1.- Spawn states carry no controls; use the neutral controls the server steps with.
	initial := r.latest.WithControls(protocol.QuantizeControls(entity.Controls{}))
	c.history = prediction.NewHistory(initial, c.opts.Sync.FixedDtSeconds(), c.opts.Tolerance)
	c.log.Info("controlling entity", logging.Uint32("eid", uint32(eid)), logging.Uint32("tick", r.latest.Tick))
	return nil
}

func (c *Client) setTime(serverMs uint32) {
	var rtt time.Duration
	if c.server != nil {
		rtt = c.server.RTT()
	}
	if !c.clock.Sync(serverMs, rtt, c.opts.Sync.ClockOffset) {
		c.log.Debug("repeated set time ignored", logging.Uint32("server_ms", serverMs))
		return
	}
	if c.opts.Metrics != nil {
		c.opts.Metrics.RTT.Set(rtt.Seconds())
	}
	c.log.Info("clock synchronised", logging.Uint32("server_ms", serverMs), logging.Duration("rtt", rtt), logging.Uint32("local_ms", c.clock.NowMs()))
}

func (c *Client) snapshot(s entity.State) {
	if s.EID == c.own && c.history != nil {
		res := c.history.Reconcile(s)
		if c.opts.Metrics != nil {
			c.opts.Metrics.Reconciliations.WithLabelValues(res.Outcome.String()).Inc()
			if res.Outcome == prediction.Corrected {
				c.opts.Metrics.Replayed.Observe(float64(res.Replayed))
			}
		}
		switch res.Outcome {
		case prediction.Corrected:
			c.log.Debug("prediction corrected", logging.Uint32("tick", s.Tick), logging.Int("replayed", res.Replayed))
		case prediction.SkipOutOfRange:
			c.throttled.Warn("snapshot outside prediction history", logging.Uint32("tick", s.Tick), logging.Uint32("tail", c.history.Tail().Tick))
		}
		return
	}
	r, err := c.entities.Get(s.EID)
	if err != nil {
		c.throttled.Debug("snapshot for unknown entity", logging.Uint32("eid", uint32(s.EID)))
		return
	}
	if !r.buffer.Push(s) {
		if c.opts.Metrics != nil {
			c.opts.Metrics.StaleSnapshots.Inc()
		}
		c.throttled.Debug("stale snapshot dropped", logging.Uint32("eid", uint32(s.EID)), logging.Uint32("tick", s.Tick))
	}
}

func (c *Client) sendJoin() {
	packet, err := protocol.Encode(protocol.Join{Name: c.opts.Name})
	if err != nil {
		c.log.Error("encode join", logging.Error(err))
		return
	}
	if err := c.server.SendReliable(packet); err != nil {
		c.log.Warn("join send failed", logging.Error(err))
	}
}

func (c *Client) sendInput(msg protocol.Input) {
	if c.server == nil {
		return
	}
	packet, err := protocol.Encode(msg)
	if err != nil {
		c.log.Error("encode input", logging.Error(err))
		return
	}
	if !c.server.SendUnreliable(packet) && c.opts.Metrics != nil {
		c.opts.Metrics.InputsDropped.Inc()
	}
}

func (c *Client) desync(peer transport.Peer, err error) {
	c.log.Error("protocol desync, disconnecting", logging.Error(err))
	if c.opts.Metrics != nil {
		c.opts.Metrics.Desyncs.Inc()
	}
	if peer != nil {
		_ = peer.Close()
	}
	c.server = nil
}
