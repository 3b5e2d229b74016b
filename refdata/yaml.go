// refdata/yaml.go
// Copyright(c) 2026 atc contributors, licensed under the GNU Public License, Version 3.
// SPDX: GPL-3.0-only

package refdata

import (
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/felix-b/atc/util"

	"github.com/brunoga/deep"
	"gopkg.in/yaml.v3"
)

// MemoryProvider serves airports held in memory, typically loaded from a
// YAML file or defined inline in a scenario.
type MemoryProvider struct {
	airports map[string]Airport
}

// NewMemoryProvider validates the airports and returns a provider for
// them. The provider keeps its own copies.
func NewMemoryProvider(airports []Airport) (*MemoryProvider, error) {
	p := &MemoryProvider{airports: make(map[string]Airport)}
	for _, ap := range airports {
		if err := ap.Validate(); err != nil {
			return nil, err
		}
		icao := strings.ToUpper(ap.ICAO)
		if _, ok := p.airports[icao]; ok {
			return nil, fmt.Errorf("%s: %w", icao, ErrDuplicateAirport)
		}
		ap.ICAO = icao
		if ap.Name == strings.ToUpper(ap.Name) {
			ap.Name = util.StopShouting(ap.Name)
		}
		p.airports[icao] = deep.MustCopy(ap)
	}
	return p, nil
}

type yamlFile struct {
	Airports []Airport `yaml:"airports"`
}

// NewYAMLProvider reads a document of the form
//
//	airports:
//	  - icao: KPAO
//	    ...
func NewYAMLProvider(r io.Reader) (*MemoryProvider, error) {
	var f yamlFile
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(&f); err != nil && err != io.EOF {
		return nil, fmt.Errorf("reference data: %w", err)
	}
	return NewMemoryProvider(f.Airports)
}

func LoadYAMLProvider(path string) (*MemoryProvider, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	p, err := NewYAMLProvider(f)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return p, nil
}

func (p *MemoryProvider) Airport(icao string) (Airport, error) {
	ap, ok := p.airports[strings.ToUpper(icao)]
	if !ok {
		return Airport{}, fmt.Errorf("%s: %w", icao, ErrUnknownAirport)
	}
	return deep.Copy(ap)
}

func (p *MemoryProvider) Airports() []string {
	return util.SortedMapKeys(p.airports)
}
