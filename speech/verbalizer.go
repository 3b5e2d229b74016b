// speech/verbalizer.go
// Copyright(c) 2026 atc contributors, licensed under the GNU Public License, Version 3.
// SPDX: GPL-3.0-only

// Package speech turns conversational messages into utterances: the words
// a pilot or controller says, split into typed parts, with the time it
// takes to say them. Synthesizing audio from an utterance is an optional
// collaborator behind the Synthesizer interface.
package speech

import (
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/felix-b/atc/aviation"
	"github.com/felix-b/atc/log"
	"github.com/felix-b/atc/rand"
)

const (
	DefaultWordsPerMinute = 160
	// DefaultKeyingDelay is added to every utterance for the time between
	// keying the microphone and the first word.
	DefaultKeyingDelay = 400 * time.Millisecond
)

var (
	sayAirportMap = map[string]string{
		"KHWD": "hayward",
		"KNUQ": "moffett",
		"KOAK": "oakland",
		"KPAO": "palo alto",
		"KRHV": "reid hillview",
		"KSFO": "san francisco",
		"KSJC": "san jose",
		"KSQL": "san carlos",
	}
	sayAirlineMap = map[string]string{
		"AAL": "american",
		"ASA": "alaska",
		"DAL": "delta",
		"FDX": "fedex",
		"JBU": "jetblue",
		"SKW": "skywest",
		"SWA": "southwest",
		"UAL": "united",
		"UPS": "u p s",
	}
)

type PartKind uint8

const (
	PartGreeting PartKind = iota
	PartAffirmation
	PartData
	PartFarewell
)

func (k PartKind) String() string {
	switch k {
	case PartGreeting:
		return "Greeting"
	case PartAffirmation:
		return "Affirmation"
	case PartData:
		return "Data"
	case PartFarewell:
		return "Farewell"
	default:
		return fmt.Sprintf("PartKind(%d)", k)
	}
}

type Part struct {
	Kind   PartKind
	Text   string
	Spoken string
}

type Role uint8

const (
	RolePilot Role = iota
	RoleController
)

type Voice string

// Speaker describes who is talking.
type Speaker struct {
	Callsign aviation.Callsign
	Role     Role
	Voice    Voice
	// Rate scales the speaking speed; zero is treated as 1.
	Rate float32
}

type Utterance struct {
	Speaker Speaker
	Parts   []Part
	// Text is how the utterance is displayed; Spoken is what a synthesizer
	// should say.
	Text     string
	Spoken   string
	Duration time.Duration
}

func (u Utterance) LogValue() slog.Value {
	return slog.GroupValue(
		slog.String("speaker", string(u.Speaker.Callsign)),
		slog.String("text", u.Text),
		slog.Duration("duration", u.Duration))
}

///////////////////////////////////////////////////////////////////////////
// Verbalizer

type Verbalizer struct {
	wpm    int
	keying time.Duration
	lg     *log.Logger
}

type VerbalizerOption func(*Verbalizer)

func WithWordsPerMinute(wpm int) VerbalizerOption {
	return func(v *Verbalizer) {
		if wpm > 0 {
			v.wpm = wpm
		}
	}
}

func WithKeyingDelay(d time.Duration) VerbalizerOption {
	return func(v *Verbalizer) { v.keying = max(0, d) }
}

func WithVerbalizerLogger(lg *log.Logger) VerbalizerOption {
	return func(v *Verbalizer) { v.lg = lg }
}

func NewVerbalizer(opts ...VerbalizerOption) *Verbalizer {
	v := &Verbalizer{
		wpm:    DefaultWordsPerMinute,
		keying: DefaultKeyingDelay,
	}
	for _, opt := range opts {
		opt(v)
	}
	return v
}

// Verbalize returns the utterance for msg as said by speaker. Phrasing
// alternatives are drawn from r, so the same seed gives the same words.
func (v *Verbalizer) Verbalize(r *rand.Rand, speaker Speaker, msg aviation.Message) (Utterance, error) {
	phrases, err := phrasesOf(msg)
	if err != nil {
		return Utterance{}, err
	}

	u := Utterance{Speaker: speaker}
	var written, spoken []string
	for _, p := range phrases {
		if err := p.format.Validate(p.args); err != nil {
			return Utterance{}, fmt.Errorf("%s: %w", aviation.TypeOf(msg), err)
		}
		part := Part{
			Kind:   p.kind,
			Text:   p.format.Written(r, p.args),
			Spoken: p.format.Spoken(r, p.args),
		}
		u.Parts = append(u.Parts, part)
		written = append(written, part.Text)
		spoken = append(spoken, part.Spoken)
	}
	u.Text = strings.Join(written, ", ")
	u.Spoken = strings.Join(spoken, " ")
	u.Duration = v.Duration(speaker, u.Spoken)

	v.lg.Debug("verbalized", slog.String("type", string(aviation.TypeOf(msg))), slog.Any("utterance", u))
	return u, nil
}

// Duration returns how long speaker takes to say the given words.
func (v *Verbalizer) Duration(speaker Speaker, spoken string) time.Duration {
	rate := float64(speaker.Rate)
	if rate <= 0 {
		rate = 1
	}
	words := len(strings.Fields(spoken))
	talk := time.Duration(float64(words) * float64(time.Minute) / (float64(v.wpm) * rate))
	return (v.keying + talk).Round(time.Millisecond)
}

///////////////////////////////////////////////////////////////////////////
// Phrases

type phrase struct {
	kind   PartKind
	format PhraseFormatString
	args   []any
}

// call is the opening of a transmission that initiates an exchange:
// addressee then caller.
func call(h aviation.Header) phrase {
	if h.ToCallsign == "" {
		return phrase{PartGreeting, "{callsign}", []any{h.FromCallsign}}
	}
	return phrase{PartGreeting, "{callsign}, {callsign}", []any{h.ToCallsign, h.FromCallsign}}
}

// addressee opens a controller's instruction.
func addressee(h aviation.Header) phrase {
	return phrase{PartGreeting, "{callsign}", []any{h.ToCallsign}}
}

// signoff ends a readback with the reader's callsign.
func signoff(h aviation.Header) phrase {
	return phrase{PartFarewell, "{callsign}", []any{h.FromCallsign}}
}

func phrasesOf(msg aviation.Message) ([]phrase, error) {
	switch m := msg.(type) {
	case aviation.ClearanceRequest:
		ps := []phrase{call(m.Header)}
		if m.Rules == aviation.FlightRulesVFR {
			ps = append(ps, phrase{PartData, "[VFR|request VFR departure] to {airport}", []any{m.Destination}})
		} else {
			ps = append(ps, phrase{PartData, "IFR to {airport}", []any{m.Destination}})
		}
		if m.ATIS != "" {
			ps = append(ps, phrase{PartData, "with information {ch}", []any{m.ATIS}})
		}
		return ps, nil

	case aviation.IFRClearance:
		ps := []phrase{
			addressee(m.Header),
			phrase{PartAffirmation, "cleared to {airport}", []any{m.Destination}},
			phrase{PartData, "via {text}", []any{m.Route}},
			phrase{PartData, "climb and maintain {alt}", []any{m.InitialAltitude}},
		}
		if m.DepartureFrequency != 0 {
			ps = append(ps, phrase{PartData, "departure frequency {freq}", []any{m.DepartureFrequency}})
		}
		return append(ps, phrase{PartData, "squawk {beacon}", []any{m.Squawk}}), nil

	case aviation.ClearanceReadback:
		return []phrase{
			phrase{PartAffirmation, "[cleared as filed|roger]", nil},
			phrase{PartData, "squawk {beacon}", []any{m.Squawk}},
			signoff(m.Header),
		}, nil

	case aviation.TaxiRequest:
		ps := []phrase{call(m.Header)}
		if m.Location != "" {
			ps = append(ps, phrase{PartData, "at {text}", []any{m.Location}})
		}
		if m.ATIS != "" {
			ps = append(ps, phrase{PartData, "with {ch}", []any{m.ATIS}})
		}
		return append(ps, phrase{PartData, "ready to taxi", nil}), nil

	case aviation.TaxiClearance:
		ps := []phrase{addressee(m.Header), phrase{PartData, "runway {rwy}", []any{m.Runway}}}
		if len(m.Taxiways) > 0 {
			ps = append(ps, phrase{PartData, "taxi via {twys}", []any{m.Taxiways}})
		}
		if m.HoldShort != "" {
			ps = append(ps, phrase{PartData, "hold short of runway {rwy}", []any{m.HoldShort}})
		}
		if m.TowerFrequency != 0 {
			ps = append(ps, phrase{PartFarewell, "contact tower {freq} when ready", []any{m.TowerFrequency}})
		}
		return ps, nil

	case aviation.TaxiReadback:
		ps := []phrase{phrase{PartData, "runway {rwy}", []any{m.Runway}}}
		if m.HoldShort != "" {
			ps = append(ps, phrase{PartData, "hold short of {rwy}", []any{m.HoldShort}})
		}
		return append(ps, signoff(m.Header)), nil

	case aviation.ReadyForDeparture:
		return []phrase{
			call(m.Header),
			phrase{PartData, "[ready for departure|holding short] runway {rwy}", []any{m.Runway}},
		}, nil

	case aviation.TakeoffClearance:
		ps := []phrase{addressee(m.Header)}
		if m.Traffic != "" {
			ps = append(ps, phrase{PartData, "make {text} traffic", []any{m.Traffic}})
		}
		return append(ps, phrase{PartAffirmation, "runway {rwy}, cleared for takeoff", []any{m.Runway}}), nil

	case aviation.TakeoffReadback:
		return []phrase{
			phrase{PartAffirmation, "cleared for takeoff", nil},
			phrase{PartData, "runway {rwy}", []any{m.Runway}},
			signoff(m.Header),
		}, nil

	case aviation.PatternReport:
		return []phrase{
			call(m.Header),
			phrase{PartData, "{text} runway {rwy}", []any{m.Leg, m.Runway}},
		}, nil

	case aviation.LandingClearance:
		ps := []phrase{addressee(m.Header)}
		if m.Number > 0 {
			ps = append(ps, phrase{PartData, "number {gf}", []any{m.Number}})
		}
		return append(ps, phrase{PartAffirmation, "runway {rwy}, cleared to land", []any{m.Runway}}), nil

	case aviation.LandingReadback:
		return []phrase{
			phrase{PartAffirmation, "cleared to land", nil},
			phrase{PartData, "runway {rwy}", []any{m.Runway}},
			signoff(m.Header),
		}, nil

	case aviation.GoAround:
		ps := []phrase{addressee(m.Header), phrase{PartData, "go around", nil}}
		if m.Reason != "" {
			ps = append(ps, phrase{PartData, "{text}", []any{m.Reason}})
		}
		return ps, nil

	default:
		return nil, fmt.Errorf("%T: %w", msg, ErrUnsupportedMessageType)
	}
}
