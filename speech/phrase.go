// speech/phrase.go
// Copyright(c) 2022-2026 atc contributors, licensed under the GNU Public License, Version 3.
// SPDX: GPL-3.0-only

package speech

import (
	"bytes"
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"github.com/felix-b/atc/aviation"
	"github.com/felix-b/atc/rand"
)

///////////////////////////////////////////////////////////////////////////
// SnippetFormatter

// SnippetFormatter formats a single value of some aviation-related kind
// (altitude, frequency, runway...) both as text and as it should be
// spoken.
type SnippetFormatter interface {
	Written(arg any) string
	Spoken(r *rand.Rand, arg any) string
	Validate(arg any) error
}

var (
	// Formatting directives are enclosed in braces.
	fmtRE = regexp.MustCompile(`\{(.*?)\}`)

	phraseFormats = map[string]SnippetFormatter{
		"airport":  AirportSnippetFormatter{},
		"alt":      AltSnippetFormatter{},
		"beacon":   BeaconCodeSnippetFormatter{},
		"callsign": CallsignSnippetFormatter{},
		"ch":       LetterSnippetFormatter{},
		"freq":     FrequencySnippetFormatter{},
		"gf":       GroupFormSnippetFormatter{},
		"rwy":      RunwaySnippetFormatter{},
		"twys":     TaxiwaysSnippetFormatter{},
		"text":     TextSnippetFormatter{},
	}
)

///////////////////////////////////////////////////////////////////////////
// PhraseFormatString

// PhraseFormatString is a phrase template. Text in braces, e.g. {alt},
// names a SnippetFormatter that formats the next argument; text in
// brackets, e.g. "[roger|copy]", lists alternatives one of which is picked
// at random.
type PhraseFormatString string

func (s PhraseFormatString) Written(r *rand.Rand, args []any) string {
	sr := s.resolveOptions(r)

	var result bytes.Buffer
	sr.applyFormatting(args, func(f SnippetFormatter, arg any) {
		result.WriteString(f.Written(arg))
	}, func(ch rune) {
		result.WriteRune(ch)
	})
	return result.String()
}

func (s PhraseFormatString) Spoken(r *rand.Rand, args []any) string {
	sr := s.resolveOptions(r)

	var result bytes.Buffer
	sr.applyFormatting(args, func(f SnippetFormatter, arg any) {
		result.WriteString(f.Spoken(r, arg))
	}, func(ch rune) {
		result.WriteRune(ch)
	})
	return result.String()
}

// Validate checks every variant of the phrase against the arguments and
// returns the first problem found.
func (s PhraseFormatString) Validate(args []any) error {
	variants, err := s.allResolved()
	if err != nil {
		return err
	}
	for _, sr := range variants {
		directives := fmtRE.FindAllStringSubmatch(string(sr), -1)
		if len(directives) != len(args) {
			return fmt.Errorf("%q: %d directives but %d args: %w", sr, len(directives), len(args), ErrInvalidPhrase)
		}
		for i, m := range directives {
			f, ok := phraseFormats[m[1]]
			if !ok {
				return fmt.Errorf("%q: unknown directive {%s}: %w", sr, m[1], ErrInvalidPhrase)
			}
			if err := f.Validate(args[i]); err != nil {
				return fmt.Errorf("%q: {%s}: %v: %w", sr, m[1], err, ErrInvalidPhrase)
			}
		}
	}
	return nil
}

func (s PhraseFormatString) applyFormatting(args []any, fmt func(SnippetFormatter, any), c func(rune)) {
	braceIndex := 0
	argIndex := 0
	foundBrace := false

	// No error checking here: Verbalizer validates phrases before using them.
	for i, ch := range s {
		if ch == '{' {
			foundBrace = true
			braceIndex = i
		} else if ch == '}' {
			foundBrace = false
			match := string(s[braceIndex+1 : i])
			if f, ok := phraseFormats[match]; ok {
				if argIndex < len(args) {
					fmt(f, args[argIndex])
					argIndex++
				}
			}
		} else if !foundBrace {
			c(ch)
		}
	}
}

func (s PhraseFormatString) allResolved() ([]PhraseFormatString, error) {
	var err error
	resolved := allResolvedHelper("", string(s), func(msg string) {
		if err == nil {
			err = fmt.Errorf("%q: %s: %w", s, msg, ErrInvalidPhrase)
		}
	})
	return resolved, err
}

func allResolvedHelper(spre string, spost string, err func(string)) []PhraseFormatString {
	inBrackets := false
	var pre, options strings.Builder

	pre.WriteString(spre)

	for i, ch := range spost {
		if ch == '[' {
			if inBrackets {
				err("unclosed [")
			}
			inBrackets = true
		} else if ch == ']' {
			inBrackets = false
			var resolved []PhraseFormatString
			for _, opt := range strings.Split(options.String(), "|") {
				resolved = append(resolved, allResolvedHelper(pre.String()+opt, spost[i+1:], err)...)
			}
			return resolved
		} else if inBrackets {
			options.WriteRune(ch)
		} else {
			pre.WriteRune(ch)
		}
	}
	if inBrackets {
		err("unclosed [")
	}

	return []PhraseFormatString{PhraseFormatString(pre.String())}
}

// given a string of the form "hello [you|there] I'm [me|myself]", returns
// a randomly sampled variant of the string, e.g. "hello there I'm me".
func (s PhraseFormatString) resolveOptions(r *rand.Rand) PhraseFormatString {
	inBrackets := false
	var result, options strings.Builder

	for _, ch := range s {
		if ch == '[' {
			inBrackets = true
		} else if ch == ']' {
			inBrackets = false
			opts := strings.Split(options.String(), "|")
			result.WriteString(rand.SampleSlice(r, opts))
			options.Reset()
		} else if inBrackets {
			options.WriteRune(ch)
		} else {
			result.WriteRune(ch)
		}
	}
	return PhraseFormatString(result.String())
}

///////////////////////////////////////////////////////////////////////////
// General "saying things" utilities...

func sayDigit(n int) string {
	return []string{"zero", "one", "two", "three", "four", "five", "six",
		"seven", "eight", "niner"}[n]
}

// Returns a string that says the digits of v individually, with leading
// "zero"s as needed to ensure that n digits are spoken.
func sayDigits(v, n int) string {
	var d []string
	for v != 0 {
		d = append([]string{sayDigit(v % 10)}, d...)
		v /= 10
	}
	for len(d) < n {
		d = append([]string{"zero"}, d...)
	}
	return strings.Join(d, " ")
}

// Returns a string that corresponds to saying the given number in group form.
func groupForm(v int) string {
	if v < 10 {
		return sayDigit(v)
	} else if v < 100 {
		return strconv.Itoa(v)
	} else if (v%100) == 0 && v < 1000 {
		return sayDigit(v/100) + " hundred"
	} else {
		gf := groupForm(v / 100)
		v = v % 100
		if v < 10 {
			return gf + " zero " + sayDigit(v)
		} else {
			return gf + " " + strconv.Itoa(v)
		}
	}
}

func sayAltitude(alt int, r *rand.Rand) string {
	alt = 100 * (alt / 100) // round to 100s
	if alt >= 18000 {
		return "flight level " + sayDigits(alt/100, 0)
	} else if alt < 1000 {
		return sayDigit(alt/100) + " hundred"
	}

	th := alt / 1000
	hu := (alt % 1000) / 100
	if hu != 0 {
		if r.Bool() {
			return sayDigits(th, 0) + " thousand " + sayDigit(hu) + " hundred"
		}
		return fmt.Sprintf("%d thousand %d hundred", th, hu)
	}
	if r.Bool() {
		return sayDigits(th, 0) + " thousand"
	}
	return fmt.Sprintf("%d thousand", th)
}

var spokenLetters = map[string]string{
	"A": "alpha", "B": "bravo", "C": "charlie", "D": "delta",
	"E": "echo", "F": "foxtrot", "G": "golf", "H": "hotel", "I": "india",
	"J": "juliet", "K": "kilo", "L": "lima", "M": "mike", "N": "november",
	"O": "oscar", "P": "papa", "Q": "quebec", "R": "romeo", "S": "sierra",
	"T": "tango", "U": "uniform", "V": "victor", "W": "whiskey", "X": "x-ray",
	"Y": "yankee", "Z": "zulu",
}

// sayAlphanumeric spells out letters phonetically and digits one by one.
func sayAlphanumeric(s string) string {
	var result []string
	for _, ch := range strings.ToUpper(s) {
		if ch >= '0' && ch <= '9' {
			result = append(result, sayDigit(int(ch-'0')))
		} else if sp, ok := spokenLetters[string(ch)]; ok {
			result = append(result, sp)
		}
	}
	return strings.Join(result, " ")
}

///////////////////////////////////////////////////////////////////////////
// AltSnippetFormatter

type AltSnippetFormatter struct{}

func (AltSnippetFormatter) Written(arg any) string {
	return aviation.FormatAltitude(arg.(int))
}

func (AltSnippetFormatter) Spoken(r *rand.Rand, arg any) string {
	return sayAltitude(arg.(int), r)
}

func (AltSnippetFormatter) Validate(arg any) error {
	if _, ok := arg.(int); !ok {
		return fmt.Errorf("expected int arg, got %T", arg)
	}
	return nil
}

///////////////////////////////////////////////////////////////////////////
// AirportSnippetFormatter

type AirportSnippetFormatter struct{}

func (AirportSnippetFormatter) Written(arg any) string {
	return arg.(string)
}

// Airports are spoken by name when the Verbalizer knows one; otherwise the
// identifier is spelled out.
func (AirportSnippetFormatter) Spoken(r *rand.Rand, arg any) string {
	icao := arg.(string)
	if name, ok := sayAirportMap[icao]; ok {
		return name
	}
	return sayAlphanumeric(icao)
}

func (AirportSnippetFormatter) Validate(arg any) error {
	if _, ok := arg.(string); !ok {
		return fmt.Errorf("expected string arg, got %T", arg)
	}
	return nil
}

///////////////////////////////////////////////////////////////////////////
// CallsignSnippetFormatter

type CallsignSnippetFormatter struct{}

func (CallsignSnippetFormatter) Written(arg any) string {
	return string(arg.(aviation.Callsign))
}

func (CallsignSnippetFormatter) Spoken(r *rand.Rand, arg any) string {
	callsign := strings.ToUpper(string(arg.(aviation.Callsign)))

	idx := strings.IndexAny(callsign, "0123456789")
	if idx <= 0 || callsign[:idx] == "N" {
		// Facilities ("Palo Alto Tower") come through as written; general
		// aviation registrations are spelled out.
		if idx == -1 {
			return string(arg.(aviation.Callsign))
		}
		return sayAlphanumeric(callsign)
	}

	icao, fnum := callsign[:idx], callsign[idx:]

	// peel off any trailing letters
	var suffix string
	if idx = strings.IndexAny(fnum, "ABCDEFGHIJKLMNOPQRSTUVWXYZ"); idx != -1 {
		suffix = " " + sayAlphanumeric(fnum[idx:])
		fnum = fnum[:idx]
	}

	tel, ok := sayAirlineMap[icao]
	if !ok {
		tel = sayAlphanumeric(icao)
	}
	return tel + " " + sayFlightNumber(fnum) + suffix
}

func sayFlightNumber(id string) string {
	if id[0] != '0' {
		// No leading zeros, just do regular group form.
		n, _ := strconv.Atoi(id)
		return groupForm(n)
	}
	return sayAlphanumeric(id)
}

func (CallsignSnippetFormatter) Validate(arg any) error {
	if cs, ok := arg.(aviation.Callsign); !ok || cs == "" {
		return fmt.Errorf("expected non-empty Callsign arg, got %T", arg)
	}
	return nil
}

///////////////////////////////////////////////////////////////////////////
// LetterSnippetFormatter

type LetterSnippetFormatter struct{}

func (LetterSnippetFormatter) Written(arg any) string {
	return strings.ToUpper(arg.(string))
}

func (LetterSnippetFormatter) Spoken(r *rand.Rand, arg any) string {
	return spokenLetters[strings.ToUpper(arg.(string))]
}

func (LetterSnippetFormatter) Validate(arg any) error {
	s, ok := arg.(string)
	if !ok || len(s) != 1 {
		return fmt.Errorf("expected single-character string arg, got %T", arg)
	}
	if _, ok := spokenLetters[strings.ToUpper(s)]; !ok {
		return fmt.Errorf("%q: not a letter", s)
	}
	return nil
}

///////////////////////////////////////////////////////////////////////////
// FrequencySnippetFormatter

type FrequencySnippetFormatter struct{}

func (FrequencySnippetFormatter) Written(arg any) string {
	f := arg.(aviation.Frequency)
	return fmt.Sprintf("%03d.%02d", f/1000, (f%1000)/10)
}

func (FrequencySnippetFormatter) Spoken(r *rand.Rand, arg any) string {
	f := arg.(aviation.Frequency)
	whole := (f / 1000) % 100
	frac := (f % 1000) / 10
	point := ""
	if frac%10 == 0 { // e.g., 121.9 -> read as 21 point 9 not 21 90
		frac /= 10
		point = "point "
	}
	if r.Bool() {
		return fmt.Sprintf("%d ", whole) + point + fmt.Sprintf("%d", frac)
	}
	return fmt.Sprintf("one %d point %d", whole, frac)
}

func (FrequencySnippetFormatter) Validate(arg any) error {
	if _, ok := arg.(aviation.Frequency); !ok {
		return fmt.Errorf("expected Frequency arg, got %T", arg)
	}
	return nil
}

///////////////////////////////////////////////////////////////////////////
// GroupFormSnippetFormatter

type GroupFormSnippetFormatter struct{}

func (GroupFormSnippetFormatter) Written(arg any) string {
	return strconv.Itoa(arg.(int))
}

func (GroupFormSnippetFormatter) Spoken(r *rand.Rand, arg any) string {
	return groupForm(arg.(int))
}

func (GroupFormSnippetFormatter) Validate(arg any) error {
	if v, ok := arg.(int); !ok || v < 0 {
		return fmt.Errorf("expected non-negative int arg, got %T", arg)
	}
	return nil
}

///////////////////////////////////////////////////////////////////////////
// BeaconCodeSnippetFormatter

type BeaconCodeSnippetFormatter struct{}

func (BeaconCodeSnippetFormatter) Written(arg any) string {
	return arg.(aviation.Squawk).String()
}

func (BeaconCodeSnippetFormatter) Spoken(r *rand.Rand, arg any) string {
	return sayAlphanumeric(arg.(aviation.Squawk).String())
}

func (BeaconCodeSnippetFormatter) Validate(arg any) error {
	if _, ok := arg.(aviation.Squawk); !ok {
		return fmt.Errorf("expected Squawk arg, got %T", arg)
	}
	return nil
}

///////////////////////////////////////////////////////////////////////////
// RunwaySnippetFormatter

type RunwaySnippetFormatter struct{}

func (RunwaySnippetFormatter) Written(arg any) string {
	return arg.(string)
}

func (RunwaySnippetFormatter) Spoken(r *rand.Rand, arg any) string {
	var result []string
	for _, ch := range strings.ToUpper(arg.(string)) {
		switch ch {
		case 'L':
			result = append(result, "left")
		case 'R':
			result = append(result, "right")
		case 'C':
			result = append(result, "center")
		case '0', '1', '2', '3', '4', '5', '6', '7', '8', '9':
			result = append(result, sayDigit(int(ch-'0')))
		}
	}
	return strings.Join(result, " ")
}

func (RunwaySnippetFormatter) Validate(arg any) error {
	rwy, ok := arg.(string)
	if !ok {
		return fmt.Errorf("expected string arg, got %T", arg)
	}
	n := strings.TrimRight(strings.ToUpper(rwy), "LRC")
	if v, err := strconv.Atoi(n); err != nil || v < 1 || v > 36 {
		return fmt.Errorf("%q: not a runway", rwy)
	}
	return nil
}

///////////////////////////////////////////////////////////////////////////
// TaxiwaysSnippetFormatter

type TaxiwaysSnippetFormatter struct{}

func (TaxiwaysSnippetFormatter) Written(arg any) string {
	return strings.Join(arg.([]string), " ")
}

func (TaxiwaysSnippetFormatter) Spoken(r *rand.Rand, arg any) string {
	var result []string
	for _, twy := range arg.([]string) {
		result = append(result, sayAlphanumeric(twy))
	}
	return strings.Join(result, ", ")
}

func (TaxiwaysSnippetFormatter) Validate(arg any) error {
	if twys, ok := arg.([]string); !ok || len(twys) == 0 {
		return fmt.Errorf("expected non-empty []string arg, got %T", arg)
	}
	return nil
}

///////////////////////////////////////////////////////////////////////////
// TextSnippetFormatter

// TextSnippetFormatter passes free text through unchanged.
type TextSnippetFormatter struct{}

func (TextSnippetFormatter) Written(arg any) string {
	return arg.(string)
}

func (TextSnippetFormatter) Spoken(r *rand.Rand, arg any) string {
	return strings.ToLower(arg.(string))
}

func (TextSnippetFormatter) Validate(arg any) error {
	if _, ok := arg.(string); !ok {
		return fmt.Errorf("expected string arg, got %T", arg)
	}
	return nil
}
