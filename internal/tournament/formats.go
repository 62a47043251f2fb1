package tournament

import (
	_ "embed"
	"fmt"
	"strings"

	yaml "gopkg.in/yaml.v3"
)

type Format string

const (
	FormatBlitz     Format = "blitz"
	FormatRapid     Format = "rapid"
	FormatClassical Format = "classical"
)

type TimeControl struct {
	Initial   int `json:"initial" yaml:"initial"`
	Increment int `json:"increment" yaml:"increment"`
}

//go:embed formats.yaml
var formatsYAML []byte

// Formats maps each format to its time control.
type Formats map[Format]TimeControl

func ParseFormats(raw []byte) (Formats, error) {
	var out Formats
	if err := yaml.Unmarshal(raw, &out); err != nil {
		return nil, fmt.Errorf("parse formats: %w", err)
	}
	for f, tc := range out {
		if tc.Initial <= 0 || tc.Increment < 0 {
			return nil, fmt.Errorf("format %s: invalid time control %+v", f, tc)
		}
	}
	return out, nil
}

func DefaultFormats() Formats {
	f, err := ParseFormats(formatsYAML)
	if err != nil {
		panic(err)
	}
	return f
}

// Resolve normalises name and returns its time control. Empty means rapid.
func (f Formats) Resolve(name string) (Format, TimeControl, bool) {
	key := Format(strings.ToLower(strings.TrimSpace(name)))
	if key == "" {
		key = FormatRapid
	}
	tc, ok := f[key]
	return key, tc, ok
}
