// radio/medium.go
// Copyright(c) 2026 atc contributors, licensed under the GNU Public License, Version 3.
// SPDX: GPL-3.0-only

// Package radio models VHF radio propagation between stations: which
// stations can hear one another, and how transmissions move their
// transceivers between silence, transmitting and receiving.
package radio

import (
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"time"

	"github.com/felix-b/atc/aviation"
	"github.com/felix-b/atc/log"
	"github.com/felix-b/atc/math"
	"github.com/felix-b/atc/sim"
	"github.com/felix-b/atc/util"

	lru "github.com/hashicorp/golang-lru/v2"
)

const (
	// DefaultQuietInterval is how long a station stays in DetectingSilence
	// after a transmission ends.
	DefaultQuietInterval = 10 * time.Second
	// DefaultMinRangeNM is the range at which stations always hear one
	// another, however low their antennas are.
	DefaultMinRangeNM = 20
	// DefaultMaxRangeNM caps the radio horizon of high-flying stations.
	DefaultMaxRangeNM = 250
)

// Station is a handle to a radio station actor.
type Station = sim.Handle[StationState]

// Medium carries transmissions between the stations of one domain.
// Propagation groups are derived from the stations' current states each
// time they are needed, so they never need to be persisted and are
// correct after a snapshot is restored.
type Medium struct {
	d  *sim.Domain
	lg *log.Logger

	quiet    time.Duration
	minRange float32
	maxRange float32

	cacheSize int
	reach     *lru.Cache[reachKey, bool]
}

type MediumOption func(*Medium)

func WithQuietInterval(d time.Duration) MediumOption {
	return func(m *Medium) { m.quiet = d }
}

// WithRange sets the minimum and maximum ranges in nautical miles between
// which the radio horizon is clamped.
func WithRange(minNM, maxNM float32) MediumOption {
	return func(m *Medium) { m.minRange, m.maxRange = minNM, maxNM }
}

func WithReachabilityCacheSize(n int) MediumOption {
	return func(m *Medium) { m.cacheSize = n }
}

// NewMedium registers the station actor type with d and returns the
// domain's medium.
func NewMedium(d *sim.Domain, opts ...MediumOption) (*Medium, error) {
	m := &Medium{
		d:         d,
		lg:        d.Logger(),
		quiet:     DefaultQuietInterval,
		minRange:  DefaultMinRangeNM,
		maxRange:  DefaultMaxRangeNM,
		cacheSize: 4096,
	}
	for _, opt := range opts {
		opt(m)
	}

	var err error
	if m.reach, err = lru.New[reachKey, bool](m.cacheSize); err != nil {
		return nil, err
	}
	if err := sim.Register(d, StationType()); err != nil {
		return nil, err
	}

	d.OnRestore(func() {
		m.lg.Debug("radio medium restored", slog.Int("stations", len(d.Actors(StationTag))))
	})
	return m, nil
}

func (m *Medium) QuietInterval() time.Duration {
	return m.quiet
}

// NewStation creates a station, initially powered off.
func (m *Medium) NewStation(cfg StationConfig) (Station, error) {
	return sim.Create[StationState](m.d, StationTag, cfg)
}

// Stations returns all stations in creation order.
func (m *Medium) Stations() []Station {
	return util.MapSlice(m.d.Actors(StationTag), func(r sim.Ref) Station { return Station{Ref: r} })
}

// RemoveStation powers the station off and destroys it.
func (m *Medium) RemoveStation(s Station) error {
	if err := m.PowerOff(s); err != nil {
		return err
	}
	return s.Destroy()
}

///////////////////////////////////////////////////////////////////////////
// Power, tuning and movement

// PowerOn moves the station from Off to Silence; it joins whatever group
// of same-frequency stations it can reach. Powering on a station that is
// already on does nothing.
func (m *Medium) PowerOn(s Station) error {
	st, err := s.State()
	if err != nil {
		return err
	}
	if st.Powered {
		return nil
	}

	if err := s.Dispatch(poweredOn{JoinedAt: m.d.NextSeq()}); err != nil {
		return err
	}
	m.lg.Debug("station powered on", slog.Any("station", s), slog.String("frequency", st.Frequency.String()))
	return m.notify(st.Listeners, StatusChanged{Station: s.ID(), Callsign: st.Callsign, Old: st.Status,
		New: StatusSilence})
}

// PowerOff aborts any transmission the station is making and turns it off.
func (m *Medium) PowerOff(s Station) error {
	st, err := s.State()
	if err != nil {
		return err
	}
	if !st.Powered {
		return nil
	}

	if st.Status == StatusTransmitting {
		if err := m.AbortTransmission(s); err != nil {
			return err
		}
		if st, err = s.State(); err != nil {
			return err
		}
	}

	st.Quiet.Cancel()
	if err := s.Dispatch(poweredOff{}); err != nil {
		return err
	}
	m.lg.Debug("station powered off", slog.Any("station", s))
	return m.notify(st.Listeners, StatusChanged{Station: s.ID(), Callsign: st.Callsign, Old: st.Status,
		New: StatusOff})
}

// Tune moves the station to another frequency, leaving its current group.
// A transmission in progress is aborted and reception is lost.
func (m *Medium) Tune(s Station, f aviation.Frequency) error {
	st, err := s.State()
	if err != nil {
		return err
	}
	if f == st.Frequency {
		return nil
	}

	if st.Status == StatusTransmitting {
		if err := m.AbortTransmission(s); err != nil {
			return err
		}
		if st, err = s.State(); err != nil {
			return err
		}
	}

	if err := s.Dispatch(tuned{Frequency: f, JoinedAt: m.d.NextSeq()}); err != nil {
		return err
	}
	m.lg.Debug("station tuned", slog.Any("station", s), slog.String("frequency", f.String()))

	if st.Powered && st.Status != StatusSilence {
		st.Quiet.Cancel()
		return m.setStatus(s, st, statusSet{Status: StatusSilence})
	}
	return nil
}

// Move updates the station's position; group membership follows.
func (m *Medium) Move(s Station, location math.Point2LL, altitude float32, airborne bool) error {
	return s.Dispatch(moved{Location: location, Altitude: altitude, Airborne: airborne})
}

func (m *Medium) AddListener(s Station, listener sim.Ref) error {
	return s.Dispatch(listenerAdded{Listener: listener})
}

func (m *Medium) RemoveListener(s Station, listener sim.Ref) error {
	return s.Dispatch(listenerRemoved{Listener: listener.ID()})
}

///////////////////////////////////////////////////////////////////////////
// Transmissions

// BeginTransmission puts the station on the air. Every other member of its
// group that is not itself transmitting starts receiving; members that
// were already receiving another transmission hear a collision. Listeners
// are notified for the sender first and then for the receivers in group
// order.
func (m *Medium) BeginTransmission(s Station) error {
	st, err := s.State()
	if err != nil {
		return err
	}
	if !st.Powered {
		return fmt.Errorf("%s: %w", s.ID(), ErrPoweredOff)
	}
	if st.Status == StatusTransmitting {
		return fmt.Errorf("%s: %w", s.ID(), ErrAlreadyTransmitting)
	}

	group, err := m.GroupOf(s)
	if err != nil {
		return err
	}

	type receiver struct {
		s  Station
		st StationState
	}
	var receivers []receiver
	var audience []sim.ActorID
	for _, r := range group {
		if r.ID() == s.ID() {
			continue
		}
		rs, err := r.State()
		if err != nil {
			return err
		}
		if rs.Status == StatusTransmitting {
			continue
		}
		receivers = append(receivers, receiver{s: r, st: rs})
		audience = append(audience, r.ID())
	}

	m.lg.Debug("transmission started", slog.Any("station", s), slog.Int("audience", len(audience)))

	st.Quiet.Cancel()
	if err := m.setStatus(s, st, statusSet{Status: StatusTransmitting, Audience: audience}); err != nil {
		return err
	}

	for _, r := range receivers {
		r.st.Quiet.Cancel()

		ev := statusSet{Status: StatusReceivingSingleTransmission, Senders: []sim.ActorID{s.ID()}}
		if r.st.Status.Receiving() {
			ev = statusSet{
				Status:  StatusReceivingMultipleTransmissions,
				Garbled: true,
				Senders: append(slices.Clip(r.st.Senders), s.ID()),
			}
		}
		if err := m.setStatus(r.s, r.st, ev); err != nil {
			return err
		}
	}
	return nil
}

// CompleteTransmission takes the station off the air and delivers msg to
// every station that heard the whole transmission without interference.
// Each receiver's listeners get the message before the receiver's status
// changes; the sender's own status changes last.
func (m *Medium) CompleteTransmission(s Station, msg aviation.Message) error {
	return m.endTransmission(s, msg, true)
}

// AbortTransmission is like CompleteTransmission but nothing is delivered.
func (m *Medium) AbortTransmission(s Station) error {
	return m.endTransmission(s, nil, false)
}

func (m *Medium) endTransmission(s Station, msg aviation.Message, deliver bool) error {
	st, err := s.State()
	if err != nil {
		return err
	}
	if st.Status != StatusTransmitting {
		return fmt.Errorf("%s is %s: %w", s.ID(), st.Status, ErrNotTransmitting)
	}

	m.lg.Debug("transmission ended", slog.Any("station", s), slog.Bool("delivered", deliver),
		slog.String("message", string(aviation.TypeOf(msg))))

	for _, id := range st.Audience {
		r := Station{Ref: m.d.Ref(id)}
		rs, err := r.State()
		if errors.Is(err, sim.ErrActorNotFound) {
			m.lg.Debug("receiver is gone", slog.String("receiver", string(id)))
			continue
		} else if err != nil {
			return err
		}
		if !slices.Contains(rs.Senders, s.ID()) {
			// Tuned away or started transmitting in the meantime.
			continue
		}

		if deliver && !rs.Garbled {
			if err := m.notify(rs.Listeners, MessageReceived{Station: id, From: s.ID(), Message: msg}); err != nil {
				return err
			}
		}

		remaining := slices.DeleteFunc(slices.Clone(rs.Senders), func(a sim.ActorID) bool { return a == s.ID() })
		if len(remaining) == 0 {
			if err := m.detectSilence(r, rs); err != nil {
				return err
			}
		} else if err := m.setStatus(r, rs, statusSet{Status: rs.Status, Garbled: true, Senders: remaining}); err != nil {
			return err
		}
	}

	return m.detectSilence(s, st)
}

// detectSilence moves the station to DetectingSilence and arms the timer
// that returns it to Silence.
func (m *Medium) detectSilence(s Station, st StationState) error {
	if err := m.setStatus(s, st, statusSet{Status: StatusDetectingSilence}); err != nil {
		return err
	}
	return m.armQuiet(s)
}

func (m *Medium) armQuiet(s Station) error {
	h := m.d.ScheduleDelay(m.quiet, func() error { return m.quietElapsed(s) })
	return s.Dispatch(quietArmed{Handle: h})
}

// quietElapsed returns the station to Silence unless someone in its group
// is still on the air. A station that was transmitting when another one
// keyed never heard it start, so it waits another quiet interval instead.
func (m *Medium) quietElapsed(s Station) error {
	st, err := s.State()
	if err != nil {
		return err
	}
	if st.Status != StatusDetectingSilence {
		return nil
	}
	busy, err := m.groupTransmitting(s)
	if err != nil {
		return err
	}
	if busy {
		return m.armQuiet(s)
	}
	return m.setStatus(s, st, statusSet{Status: StatusSilence})
}

func (m *Medium) groupTransmitting(s Station) (bool, error) {
	group, err := m.GroupOf(s)
	if err != nil {
		return false, err
	}
	for _, r := range group {
		if r.ID() == s.ID() {
			continue
		}
		rs, err := r.State()
		if err != nil {
			return false, err
		}
		if rs.Status == StatusTransmitting {
			return true, nil
		}
	}
	return false, nil
}

func (m *Medium) setStatus(s Station, old StationState, ev statusSet) error {
	if err := s.Dispatch(ev); err != nil {
		return err
	}
	if old.Status == ev.Status {
		return nil
	}
	return m.notify(old.Listeners, StatusChanged{Station: s.ID(), Callsign: old.Callsign, Old: old.Status,
		New: ev.Status})
}

// notify delivers n to each listener in turn. Listeners run synchronously
// and must not call back into the medium; they defer such work instead.
func (m *Medium) notify(listeners []sim.Ref, n any) error {
	for _, l := range listeners {
		if err := m.d.Send(l, n); err != nil {
			return fmt.Errorf("notifying %s: %w", l, err)
		}
	}
	return nil
}

///////////////////////////////////////////////////////////////////////////
// Propagation groups

// GroupOf returns the propagation group of a powered station: the stations
// on its frequency that it can reach directly or through other members.
// Members are ordered most recent joiner first. A station that is off
// belongs to no group.
func (m *Medium) GroupOf(s Station) ([]Station, error) {
	st, err := s.State()
	if err != nil {
		return nil, err
	}
	if !st.Powered {
		return nil, nil
	}

	type member struct {
		s     Station
		st    StationState
		order int
	}
	var self member
	var candidates []member
	for i, r := range m.Stations() {
		rs, err := r.State()
		if err != nil {
			return nil, err
		}
		if rs.Powered && rs.Frequency == st.Frequency {
			candidates = append(candidates, member{s: r, st: rs, order: i})
			if r.ID() == s.ID() {
				self = candidates[len(candidates)-1]
			}
		}
	}

	in := map[sim.ActorID]bool{s.ID(): true}
	group := []member{self}
	for i := 0; i < len(group); i++ {
		for _, c := range candidates {
			if !in[c.s.ID()] && m.Reachable(group[i].st, c.st) {
				in[c.s.ID()] = true
				group = append(group, c)
			}
		}
	}

	slices.SortFunc(group, func(a, b member) int {
		if a.st.JoinedAt != b.st.JoinedAt {
			if a.st.JoinedAt > b.st.JoinedAt {
				return -1
			}
			return 1
		}
		return a.order - b.order
	})

	stations := make([]Station, len(group))
	for i, g := range group {
		stations[i] = g.s
	}
	return stations, nil
}

type reachEnd struct {
	Location math.Point2LL
	Height   float32
}

type reachKey struct {
	a, b reachEnd
}

// Range returns the distance in nautical miles over which two stations at
// the given heights above ground can hear one another: the sum of their
// radio horizons, clamped to the medium's minimum and maximum.
func (m *Medium) Range(heightA, heightB float32) float32 {
	return math.Clamp(math.HorizonNM(heightA, heightB), m.minRange, m.maxRange)
}

// Reachable reports whether two stations are within radio range of one
// another, ignoring their frequencies.
func (m *Medium) Reachable(a, b StationState) bool {
	ea := reachEnd{Location: a.Location, Height: a.Height()}
	eb := reachEnd{Location: b.Location, Height: b.Height()}
	if less(eb, ea) {
		ea, eb = eb, ea
	}
	key := reachKey{a: ea, b: eb}

	if ok, hit := m.reach.Get(key); hit {
		return ok
	}
	ok := math.NMDistance2LL(ea.Location, eb.Location) <= m.Range(ea.Height, eb.Height)
	m.reach.Add(key, ok)
	return ok
}

func less(a, b reachEnd) bool {
	if a.Location[0] != b.Location[0] {
		return a.Location[0] < b.Location[0]
	}
	if a.Location[1] != b.Location[1] {
		return a.Location[1] < b.Location[1]
	}
	return a.Height < b.Height
}
