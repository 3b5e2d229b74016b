// world/scenario.go
// Copyright(c) 2026 atc contributors, licensed under the GNU Public License, Version 3.
// SPDX: GPL-3.0-only

package world

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/felix-b/atc/aviation"
	"github.com/felix-b/atc/log"
	"github.com/felix-b/atc/radio"
	"github.com/felix-b/atc/refdata"
	"github.com/felix-b/atc/sim"
	"github.com/felix-b/atc/util"

	"github.com/brunoga/deep"
	"gopkg.in/yaml.v3"
)

// Scenario describes one or more independent domains and what is in them.
type Scenario struct {
	Seed          uint64        `yaml:"seed"`
	Start         time.Time     `yaml:"start"`
	TimeScale     float64       `yaml:"time_scale"`
	QuietInterval time.Duration `yaml:"quiet_interval"`
	ReplyTimeout  time.Duration `yaml:"reply_timeout"`

	// Airports are reference data defined in the scenario itself; they
	// are used when no other provider is given.
	Airports []refdata.Airport `yaml:"airports"`
	// Templates are aircraft configurations that aircraft entries can
	// start from.
	Templates map[string]PilotConfig `yaml:"templates"`
	Domains   []DomainSpec           `yaml:"domains"`

	airports *refdata.MemoryProvider
}

type DomainSpec struct {
	Name        string             `yaml:"name"`
	Controllers []ControllerConfig `yaml:"controllers"`
	// Stations are radio stations with no one behind them.
	Stations []radio.StationConfig `yaml:"stations"`
	Aircraft []AircraftSpec        `yaml:"aircraft"`
}

// AircraftSpec is a pilot configuration, possibly based on a template:
// the fields given in the entry override the template's.
type AircraftSpec struct {
	Template string `yaml:"template"`
	// Delay is how long after the start of the scenario the aircraft
	// appears.
	Delay       time.Duration `yaml:"delay"`
	PilotConfig `yaml:",inline"`

	node *yaml.Node
}

func (a *AircraftSpec) UnmarshalYAML(n *yaml.Node) error {
	type plain AircraftSpec
	var p plain
	if err := n.Decode(&p); err != nil {
		return err
	}
	*a = AircraftSpec(p)
	a.node = n
	return nil
}

func (a AircraftSpec) resolve(templates map[string]PilotConfig) (PilotConfig, error) {
	if a.Template == "" {
		return a.PilotConfig, nil
	}
	t, ok := templates[a.Template]
	if !ok {
		return PilotConfig{}, fmt.Errorf("%s: %q: %w", a.Callsign, a.Template, ErrUnknownTemplate)
	}

	cfg := deep.MustCopy(t)
	if a.node != nil {
		if err := a.node.Decode(&cfg); err != nil {
			return PilotConfig{}, err
		}
	} else {
		cfg.Callsign = util.Select(a.Callsign != "", a.Callsign, cfg.Callsign)
		cfg.Airport = util.Select(a.Airport != "", a.Airport, cfg.Airport)
		cfg.Ramp = util.Select(a.Ramp != "", a.Ramp, cfg.Ramp)
	}
	return cfg, nil
}

// LoadScenario reads and validates a YAML scenario. Templates are resolved,
// so the aircraft entries of the result are complete.
func LoadScenario(r io.Reader) (*Scenario, error) {
	var s Scenario
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(&s); err != nil && err != io.EOF {
		return nil, fmt.Errorf("scenario: %w", err)
	}

	if err := s.resolve(); err != nil {
		return nil, err
	}
	if err := s.Validate(); err != nil {
		return nil, err
	}
	return &s, nil
}

func LoadScenarioFile(path string) (*Scenario, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	s, err := LoadScenario(f)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return s, nil
}

func (s *Scenario) resolve() error {
	for i := range s.Domains {
		for j, a := range s.Domains[i].Aircraft {
			cfg, err := a.resolve(s.Templates)
			if err != nil {
				return fmt.Errorf("domain %q: %w", s.Domains[i].Name, err)
			}
			s.Domains[i].Aircraft[j].PilotConfig = cfg
		}
	}

	if len(s.Airports) > 0 {
		p, err := refdata.NewMemoryProvider(s.Airports)
		if err != nil {
			return fmt.Errorf("scenario: %w", err)
		}
		s.airports = p
	}
	return nil
}

// Validate checks that callsigns and domain names are unique and, if the
// scenario defines its own airports, that every airport it refers to is
// one of them. All problems are reported together.
func (s *Scenario) Validate() error {
	var errs []error
	if len(s.Domains) == 0 {
		errs = append(errs, fmt.Errorf("no domains: %w", ErrInvalidScenario))
	}

	domains := make(map[string]bool)
	callsigns := make(map[aviation.Callsign]string)
	claim := func(cs aviation.Callsign, domain string) {
		if cs == "" {
			errs = append(errs, fmt.Errorf("domain %q: missing callsign: %w", domain, ErrInvalidScenario))
		} else if other, ok := callsigns[cs]; ok {
			errs = append(errs, fmt.Errorf("%s in %q and %q: %w", cs, other, domain, ErrDuplicateCallsign))
		} else {
			callsigns[cs] = domain
		}
	}
	checkAirport := func(icao, domain string) {
		if icao == "" {
			errs = append(errs, fmt.Errorf("domain %q: missing airport: %w", domain, ErrInvalidScenario))
		} else if s.airports != nil {
			if _, err := s.airports.Airport(icao); err != nil {
				errs = append(errs, fmt.Errorf("domain %q: %w", domain, err))
			}
		}
	}

	for _, ds := range s.Domains {
		if ds.Name == "" {
			errs = append(errs, fmt.Errorf("unnamed domain: %w", ErrInvalidScenario))
		} else if domains[ds.Name] {
			errs = append(errs, fmt.Errorf("domain %q: defined twice: %w", ds.Name, ErrInvalidScenario))
		}
		domains[ds.Name] = true

		positions := make(map[string]bool)
		for _, c := range ds.Controllers {
			checkAirport(c.Airport, ds.Name)
			key := strings.ToUpper(c.Airport) + " " + c.Facility.String()
			if positions[key] {
				errs = append(errs, fmt.Errorf("domain %q: %s staffed twice: %w", ds.Name, key, ErrDuplicateCallsign))
			}
			positions[key] = true
		}
		for _, st := range ds.Stations {
			claim(st.Callsign, ds.Name)
			if st.Frequency <= 0 {
				errs = append(errs, fmt.Errorf("domain %q: %s: %w", ds.Name, st.Callsign, aviation.ErrInvalidFrequency))
			}
		}
		for _, a := range ds.Aircraft {
			claim(a.Callsign, ds.Name)
			checkAirport(a.Airport, ds.Name)
			if a.Delay < 0 {
				errs = append(errs, fmt.Errorf("domain %q: %s: negative delay: %w", ds.Name, a.Callsign,
					ErrInvalidScenario))
			}
		}
	}
	return errors.Join(errs...)
}

// Provider returns the scenario's own reference data, or nil if it has
// none.
func (s *Scenario) Provider() refdata.Provider {
	if s.airports == nil {
		return nil
	}
	return s.airports
}

// Instantiate creates a domain and its world for each domain of the
// scenario and populates them. Airports are looked up in p, or in the
// scenario's own airports if p is nil. Aircraft with a delay appear when
// their domain's clock gets there.
func (s *Scenario) Instantiate(p refdata.Provider, lg *log.Logger, opts ...Option) ([]*World, error) {
	if p == nil {
		if p = s.Provider(); p == nil {
			return nil, fmt.Errorf("no reference data: %w", ErrInvalidScenario)
		}
	}

	var worlds []*World
	for _, ds := range s.Domains {
		w, err := s.instantiate(ds, p, lg, opts)
		if err != nil {
			for _, w := range worlds {
				w.Close()
			}
			return nil, fmt.Errorf("domain %q: %w", ds.Name, err)
		}
		worlds = append(worlds, w)
	}
	return worlds, nil
}

func (s *Scenario) instantiate(ds DomainSpec, p refdata.Provider, lg *log.Logger, opts []Option) (*World, error) {
	dopts := []sim.DomainOption{sim.WithLogger(lg)}
	if !s.Start.IsZero() {
		dopts = append(dopts, sim.WithStartTime(s.Start))
	}
	if s.TimeScale != 0 {
		dopts = append(dopts, sim.WithTimeScale(s.TimeScale))
	}
	d := sim.NewDomain(ds.Name, dopts...)

	wopts := []Option{WithSeed(s.Seed ^ util.HashString64(ds.Name))}
	if s.QuietInterval > 0 {
		wopts = append(wopts, WithMediumOptions(radio.WithQuietInterval(s.QuietInterval)))
	}
	if s.ReplyTimeout > 0 {
		wopts = append(wopts, WithReplyTimeout(s.ReplyTimeout))
	}
	w, err := New(d, p, append(wopts, opts...)...)
	if err != nil {
		return nil, err
	}

	for _, c := range ds.Controllers {
		if _, err := w.NewController(c); err != nil {
			w.Close()
			return nil, err
		}
	}

	for _, cfg := range ds.Stations {
		st, err := w.medium.NewStation(cfg)
		if err == nil {
			err = w.medium.PowerOn(st)
		}
		if err != nil {
			w.Close()
			return nil, fmt.Errorf("station %s: %w", cfg.Callsign, err)
		}
	}

	for _, a := range ds.Aircraft {
		cfg := a.PilotConfig
		if a.Delay == 0 {
			if _, err := w.NewPilot(cfg); err != nil {
				w.Close()
				return nil, err
			}
			continue
		}
		d.DeferBy(a.Delay, func() error {
			_, err := w.NewPilot(cfg)
			return err
		})
	}

	w.lg.Info("domain populated", slog.Int("controllers", len(ds.Controllers)),
		slog.Int("stations", len(ds.Stations)), slog.Int("aircraft", len(ds.Aircraft)))
	return w, nil
}
