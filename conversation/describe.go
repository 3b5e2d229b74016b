// conversation/describe.go
// Copyright(c) 2026 atc contributors, licensed under the GNU Public License, Version 3.
// SPDX: GPL-3.0-only

package conversation

import (
	"encoding/json"

	"github.com/iancoleman/orderedmap"
)

// Describe renders the state table as JSON, with states in declaration
// order and each state's transitions in the order they were added.
func (d *Definition) Describe() ([]byte, error) {
	states := orderedmap.New()
	for _, name := range d.order {
		s := d.states[name]

		o := orderedmap.New()
		if s.parent != "" {
			o.Set("parent", s.parent)
		}
		if s.initial != "" {
			o.Set("initial", s.initial)
		}
		if s.inherit {
			o.Set("inherit", true)
		}

		if len(s.entry) > 0 {
			var entry []string
			for _, a := range s.entry {
				switch a.kind {
				case actionTune:
					entry = append(entry, "tune "+a.frequency.String())
				case actionTransmit:
					entry = append(entry, "transmit")
				case actionInvoke:
					entry = append(entry, "invoke")
				case actionDelay:
					entry = append(entry, "delay "+a.delay.String())
				}
			}
			o.Set("entry", entry)
		}

		if len(s.triggerOrder) > 0 {
			on := orderedmap.New()
			for _, t := range s.triggerOrder {
				on.Set(string(t), s.triggers[t])
			}
			o.Set("on", on)
		}

		if len(s.messageOrder) > 0 {
			msgs := orderedmap.New()
			for _, t := range s.messageOrder {
				mt := s.messages[t]
				m := orderedmap.New()
				m.Set("target", mt.target)
				if mt.memorize {
					m.Set("memorize", true)
				}
				msgs.Set(string(t), m)
			}
			o.Set("messages", msgs)
		}

		if s.auto != "" {
			o.Set("then", s.auto)
		}

		states.Set(name, o)
	}

	root := orderedmap.New()
	root.SetEscapeHTML(false)
	root.Set("name", d.name)
	root.Set("initial", d.initial)
	root.Set("states", states)

	return json.MarshalIndent(root, "", "  ")
}
