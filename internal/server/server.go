// Package server is the authoritative side of a session: it admits players, owns every entity,
// applies their inputs in fixed ticks and broadcasts snapshots.
package server

import (
	"errors"
	"math/rand"
	"time"

	"driftpursuit/netsync/internal/clock"
	"driftpursuit/netsync/internal/config"
	"driftpursuit/netsync/internal/entity"
	"driftpursuit/netsync/internal/input"
	"driftpursuit/netsync/internal/logging"
	"driftpursuit/netsync/internal/metrics"
	"driftpursuit/netsync/internal/protocol"
	"driftpursuit/netsync/internal/replay"
	"driftpursuit/netsync/internal/simulation"
	"driftpursuit/netsync/internal/transport"
)

// maxEventsPerFrame bounds how long one frame may spend draining the network.
const maxEventsPerFrame = 4096

// EventSource is the part of transport.Host the frame loop reads from.
type EventSource interface {
	Poll(timeout time.Duration) (transport.Event, bool)
}

// Options configure a Server. Nil collaborators are replaced by inert defaults.
type Options struct {
	Sync        config.SyncConfig
	PollTimeout time.Duration
	// MaxInputLead bounds how far ahead of the simulation inputs are queued; zero uses the
	// default and a negative value disables the bound.
	MaxInputLead time.Duration
	Logger       *logging.Logger
	Metrics      *metrics.Metrics
	Recorder     *replay.Recorder
	// Rand returns a value in [0, n). Spawn position and colour are drawn from it.
	Rand func(n int) int
}

type player struct {
	peer   transport.Peer
	name   string
	eid    entity.ID
	joined bool
}

type record struct {
	state  entity.State
	inputs simulation.Inputs
	owner  uint64
}

// Server owns the authoritative entity registry. All methods must be called from the frame
// loop goroutine.
type Server struct {
	opts     Options
	events   EventSource
	clock    *clock.Clock
	entities *entity.Registry[record]
	players  map[uint64]*player
	order    []uint64
	gate     *input.Gate

	lastSnapshotMs uint32
	log            *logging.Logger
	throttled      *logging.Throttled
}

// New creates a server reading events from src and measuring time with clk.
func New(src EventSource, clk *clock.Clock, opts Options) *Server {
	if opts.Sync.FixedDt <= 0 {
		opts.Sync = config.DefaultSync()
	}
	if opts.Logger == nil {
		opts.Logger = logging.L()
	}
	if opts.Rand == nil {
		opts.Rand = rand.Intn
	}
	if clk == nil {
		clk = clock.NewServer(nil)
	}
	if opts.MaxInputLead == 0 {
		opts.MaxInputLead = config.DefaultMaxInputLead
	}
	var maxLead uint32
	if opts.MaxInputLead > 0 {
		maxLead = uint32(opts.MaxInputLead / opts.Sync.FixedDt)
	}
	log := opts.Logger.With(logging.String("component", "server"))
	return &Server{
		opts:      opts,
		events:    src,
		clock:     clk,
		entities:  entity.NewRegistry[record](),
		players:   make(map[uint64]*player),
		gate:      input.NewGate(input.Config{MaxLead: maxLead}, log),
		log:       log,
		throttled: logging.NewThrottled(log, 5*time.Second, 3),
	}
}

// Entities returns the number of live entities.
func (s *Server) Entities() int {
	return s.entities.Len()
}

// Players returns the number of connected peers.
func (s *Server) Players() int {
	return len(s.players)
}

// State returns the authoritative state of eid.
func (s *Server) State(eid entity.ID) (entity.State, bool) {
	rec, err := s.entities.Get(eid)
	if err != nil {
		return entity.State{}, false
	}
	return rec.state, true
}

// Frame runs one iteration of the server loop. It matches simulation.FrameFunc.
func (s *Server) Frame(time.Time) {
	//1.- Drain the network; the first poll may wait, the rest never block.
	timeout := s.opts.PollTimeout
	for i := 0; i < maxEventsPerFrame; i++ {
		ev, ok := s.events.Poll(timeout)
		if !ok {
			break
		}
		timeout = 0
		s.handle(ev)
	}

	//2.- Advance every entity to the current server time.
	nowMs := s.clock.NowMs()
	steps := 0
	for i := 0; i < s.entities.Len(); i++ {
		rec := s.entities.At(i)
		var n int
		rec.state, n = simulation.SimulateFixed(rec.state, &rec.inputs, nowMs, s.opts.Sync.FixedDt)
		steps += n
	}
	if s.opts.Metrics != nil && steps > 0 {
		s.opts.Metrics.TicksSimulated.Add(float64(steps))
	}

	//3.- Broadcast snapshots at the snapshot cadence.
	if nowMs-s.lastSnapshotMs >= uint32(s.opts.Sync.SnapshotInterval.Milliseconds()) {
		s.lastSnapshotMs = nowMs
		s.broadcastSnapshots(nowMs)
	}
}

func (s *Server) handle(ev transport.Event) {
	switch ev.Type {
	case transport.EventConnect:
		s.players[ev.Peer.ID()] = &player{peer: ev.Peer, eid: entity.InvalidID}
		s.order = append(s.order, ev.Peer.ID())
		s.log.Info("peer connected", logging.Uint64("peer", ev.Peer.ID()), logging.String("remote", ev.Peer.RemoteAddr()))
		s.gauges()
	case transport.EventDisconnect:
		s.drop(ev.Peer.ID())
		s.log.Info("peer disconnected", logging.Uint64("peer", ev.Peer.ID()))
	case transport.EventReceive:
		p, ok := s.players[ev.Peer.ID()]
		if !ok {
			return
		}
		if err := s.dispatch(p, ev.Payload); err != nil {
			s.desync(p, err)
		}
	}
}

func (s *Server) dispatch(p *player, packet []byte) error {
	kind, err := protocol.KindOf(packet)
	if errors.Is(err, protocol.ErrUnknownKind) {
		s.log.Debug("ignoring unknown message kind", logging.Uint64("peer", p.peer.ID()), logging.Int("tag", int(packet[0])))
		return nil
	}
	if err != nil {
		return err
	}
	if s.opts.Metrics != nil {
		s.opts.Metrics.Packets.WithLabelValues(kind.String()).Inc()
	}
	switch kind {
	case protocol.KindJoin:
		msg, err := protocol.DecodeJoin(packet)
		if err != nil {
			return err
		}
		s.join(p, msg.Name)
	case protocol.KindInput:
		msg, err := protocol.DecodeInput(packet)
		if err != nil {
			return err
		}
		s.input(p, msg)
	default:
		s.log.Debug("ignoring server-bound message", logging.Uint64("peer", p.peer.ID()), logging.String("kind", kind.String()))
	}
	return nil
}

// join admits a player: existing entities first, then the new entity to everyone, then control
// and time to the joiner.
func (s *Server) join(p *player, name string) {
	if p.joined {
		s.throttled.Warn("duplicate join ignored", logging.Uint64("peer", p.peer.ID()))
		return
	}
	eid, err := s.entities.NextID()
	if err != nil {
		s.log.Error("join refused", logging.Uint64("peer", p.peer.ID()), logging.String("name", name), logging.Error(err))
		return
	}
	nowMs := s.clock.NowMs()
	tick := simulation.TickOf(nowMs, s.opts.Sync.FixedDt)

	//1.- Catch the joiner up on every existing entity.
	for i := 0; i < s.entities.Len(); i++ {
		s.send(p, nowMs, tick, protocol.NewEntity{State: s.entities.At(i).state})
	}

	//2.- Spawn the new entity on the grid with a random colour.
	state := entity.State{
		EID:   eid,
		Color: s.color(),
		X:     float32(s.opts.Rand(4) * 5),
		Y:     float32(s.opts.Rand(4) * 5),
		Tick:  tick,
	}
	rec := record{state: state, owner: p.peer.ID()}
	//3.- Until the owner's first input arrives the entity steps with neutral controls as the
	// wire can express them.
	rec.inputs.Push(tick, protocol.QuantizeControls(entity.Controls{}))
	if !s.entities.Add(eid, rec) {
		s.log.Error("join refused: entity id already registered", logging.Uint64("peer", p.peer.ID()), logging.Uint32("eid", uint32(eid)))
		return
	}
	p.joined = true
	p.name = name
	p.eid = eid

	//4.- Announce it to every joined player, the joiner included.
	s.broadcast(nowMs, tick, protocol.NewEntity{State: state})
	s.send(p, nowMs, tick, protocol.SetControlledEntity{EID: eid})
	s.send(p, nowMs, tick, protocol.SetTime{ServerMs: nowMs})

	s.log.Info("player joined",
		logging.Uint64("peer", p.peer.ID()),
		logging.String("name", name),
		logging.Uint32("eid", uint32(eid)),
		logging.Uint32("tick", tick),
	)
	s.gauges()
}

func (s *Server) color() uint32 {
	return 0x00440000*uint32(s.opts.Rand(5)) + 0x00004400*uint32(s.opts.Rand(5)) + 0x00000044*uint32(s.opts.Rand(5))
}

func (s *Server) input(p *player, msg protocol.Input) {
	if !p.joined || msg.EID != p.eid {
		s.throttled.Warn("input for foreign entity ignored", logging.Uint64("peer", p.peer.ID()), logging.Uint32("eid", uint32(msg.EID)))
		return
	}
	rec, err := s.entities.Get(msg.EID)
	if err != nil {
		return
	}
	decision := s.gate.Evaluate(input.Frame{PeerID: p.peer.ID(), Tick: msg.Tick, Simulated: rec.state.Tick})
	if decision.Accepted && rec.inputs.Push(msg.Tick, protocol.QuantizeControls(msg.Controls)) {
		return
	}
	if s.opts.Metrics != nil {
		s.opts.Metrics.InputsDropped.Inc()
	}
	s.throttled.Debug("input dropped",
		logging.Uint32("eid", uint32(msg.EID)),
		logging.Uint32("tick", msg.Tick),
		logging.Uint32("simulated", rec.state.Tick),
		logging.String("reason", decision.Reason.String()),
	)
}

func (s *Server) broadcastSnapshots(nowMs uint32) {
	for i := 0; i < s.entities.Len(); i++ {
		state := s.entities.At(i).state
		packet, err := protocol.Encode(protocol.Snapshot{State: state})
		if err != nil {
			s.log.Error("encode snapshot", logging.Error(err), logging.Uint32("eid", uint32(state.EID)))
			continue
		}
		if err := s.opts.Recorder.Record(nowMs, state.Tick, packet); err != nil {
			s.throttled.Warn("replay record failed", logging.Error(err))
		}
		for _, id := range s.order {
			p := s.players[id]
			if !p.joined {
				continue
			}
			sent := p.peer.SendUnreliable(packet)
			if s.opts.Metrics == nil {
				continue
			}
			if sent {
				s.opts.Metrics.SnapshotsSent.Inc()
			} else {
				s.opts.Metrics.SnapshotsDrop.Inc()
			}
		}
	}
}

func (s *Server) broadcast(nowMs, tick uint32, m protocol.Message) {
	packet, ok := s.encode(nowMs, tick, m)
	if !ok {
		return
	}
	for _, id := range s.order {
		if p := s.players[id]; p.joined {
			s.reliable(p, packet)
		}
	}
}

func (s *Server) send(p *player, nowMs, tick uint32, m protocol.Message) {
	if packet, ok := s.encode(nowMs, tick, m); ok {
		s.reliable(p, packet)
	}
}

func (s *Server) encode(nowMs, tick uint32, m protocol.Message) ([]byte, bool) {
	packet, err := protocol.Encode(m)
	if err != nil {
		s.log.Error("encode message", logging.Error(err), logging.String("kind", m.Kind().String()))
		return nil, false
	}
	if err := s.opts.Recorder.Record(nowMs, tick, packet); err != nil {
		s.throttled.Warn("replay record failed", logging.Error(err))
	}
	return packet, true
}

func (s *Server) reliable(p *player, packet []byte) {
	if err := p.peer.SendReliable(packet); err != nil {
		s.log.Warn("reliable send failed", logging.Uint64("peer", p.peer.ID()), logging.Error(err))
	}
}

// desync drops a peer whose stream can no longer be trusted.
func (s *Server) desync(p *player, err error) {
	s.log.Error("protocol desync, disconnecting peer", logging.Uint64("peer", p.peer.ID()), logging.Error(err))
	if s.opts.Metrics != nil {
		s.opts.Metrics.Desyncs.Inc()
	}
	_ = p.peer.Close()
	s.drop(p.peer.ID())
}

// drop forgets a peer. Its entity keeps simulating with the last applied controls.
func (s *Server) drop(id uint64) {
	if _, ok := s.players[id]; !ok {
		return
	}
	delete(s.players, id)
	s.gate.Forget(id)
	for i, v := range s.order {
		if v == id {
			s.order = append(s.order[:i], s.order[i+1:]...)
			break
		}
	}
	s.gauges()
}

func (s *Server) gauges() {
	if s.opts.Metrics == nil {
		return
	}
	s.opts.Metrics.Peers.Set(float64(len(s.players)))
	s.opts.Metrics.Entities.Set(float64(s.entities.Len()))
}
