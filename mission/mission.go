// Package mission describes plans in JSON or YAML files and turns them into
// plan builders. It also carries the built-in tutorial missions.
package mission

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Format selects the file encoding.
type Format string

const (
	FormatJSON Format = "json"
	FormatYAML Format = "yaml"
)

// FormatFromPath picks the format from a file extension.
func FormatFromPath(path string) (Format, error) {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".json":
		return FormatJSON, nil
	case ".yaml", ".yml":
		return FormatYAML, nil
	default:
		return "", fmt.Errorf("mission: unsupported file extension %q", filepath.Ext(path))
	}
}

// Step types.
const (
	StepGoto           = "goto"
	StepLoiter         = "loiter"
	StepYoYo           = "yoyo"
	StepStationKeeping = "station_keeping"
	StepPopUp          = "popup"
	StepMove           = "move"
	StepSet            = "set"
)

// Mission is a plan description as stored on disk.
type Mission struct {
	ID          string    `json:"id" yaml:"id"`
	Description string    `json:"description,omitempty" yaml:"description,omitempty"`
	Start       *Position `json:"start,omitempty" yaml:"start,omitempty"`

	// Cursor defaults, as in a "set" step.
	Speed      *float64 `json:"speed,omitempty" yaml:"speed,omitempty"`
	SpeedUnits string   `json:"speed_units,omitempty" yaml:"speed_units,omitempty"`
	Z          *float64 `json:"z,omitempty" yaml:"z,omitempty"`
	ZUnits     string   `json:"z_units,omitempty" yaml:"z_units,omitempty"`

	Steps []Step `json:"steps" yaml:"steps"`
}

// Position is either a latitude/longitude pair in degrees or the name of a
// known location.
type Position struct {
	Lat   *float64 `json:"lat,omitempty" yaml:"lat,omitempty"`
	Lon   *float64 `json:"lon,omitempty" yaml:"lon,omitempty"`
	Known string   `json:"known,omitempty" yaml:"known,omitempty"`
}

// Step is one instruction of a mission. Only the fields relevant to Type
// are read.
type Step struct {
	Type string `json:"type" yaml:"type"`
	ID   string `json:"id,omitempty" yaml:"id,omitempty"`

	// move
	North float64   `json:"north,omitempty" yaml:"north,omitempty"`
	East  float64   `json:"east,omitempty" yaml:"east,omitempty"`
	To    *Position `json:"to,omitempty" yaml:"to,omitempty"`

	// set
	Speed      *float64 `json:"speed,omitempty" yaml:"speed,omitempty"`
	SpeedUnits string   `json:"speed_units,omitempty" yaml:"speed_units,omitempty"`
	Z          *float64 `json:"z,omitempty" yaml:"z,omitempty"`
	ZUnits     string   `json:"z_units,omitempty" yaml:"z_units,omitempty"`

	// maneuvers
	Radius   float64  `json:"radius,omitempty" yaml:"radius,omitempty"`
	Duration Duration `json:"duration,omitempty" yaml:"duration,omitempty"`
	MaxDepth float64  `json:"max_depth,omitempty" yaml:"max_depth,omitempty"`
	MinDepth float64  `json:"min_depth,omitempty" yaml:"min_depth,omitempty"`
	CurrPos  bool     `json:"current_position,omitempty" yaml:"current_position,omitempty"`
}

// Duration is a time.Duration written as a Go duration string ("3m", "90s").
type Duration time.Duration

func (d Duration) String() string { return time.Duration(d).String() }

func (d Duration) MarshalJSON() ([]byte, error) { return json.Marshal(d.String()) }

func (d *Duration) UnmarshalJSON(b []byte) error {
	var s string
	if err := json.Unmarshal(b, &s); err != nil {
		return fmt.Errorf("duration must be a string like \"3m\": %w", err)
	}
	return d.parse(s)
}

func (d Duration) MarshalYAML() (interface{}, error) { return d.String(), nil }

func (d *Duration) UnmarshalYAML(node *yaml.Node) error {
	var s string
	if err := node.Decode(&s); err != nil {
		return err
	}
	return d.parse(s)
}

func (d *Duration) parse(s string) error {
	v, err := time.ParseDuration(strings.TrimSpace(s))
	if err != nil {
		return err
	}
	if v < 0 {
		return fmt.Errorf("negative duration %q", s)
	}
	*d = Duration(v)
	return nil
}

// Load decodes a mission. Unknown fields are rejected.
func Load(r io.Reader, format Format) (*Mission, error) {
	var m Mission
	switch format {
	case FormatJSON:
		dec := json.NewDecoder(r)
		dec.DisallowUnknownFields()
		if err := dec.Decode(&m); err != nil {
			return nil, fmt.Errorf("mission: decode json: %w", err)
		}
	case FormatYAML:
		dec := yaml.NewDecoder(r)
		dec.KnownFields(true)
		if err := dec.Decode(&m); err != nil {
			if errors.Is(err, io.EOF) {
				return nil, errors.New("mission: empty document")
			}
			return nil, fmt.Errorf("mission: decode yaml: %w", err)
		}
	default:
		return nil, fmt.Errorf("mission: unknown format %q", format)
	}
	return &m, nil
}

// LoadFile reads a mission, choosing the format from the file extension.
func LoadFile(path string) (*Mission, error) {
	format, err := FormatFromPath(path)
	if err != nil {
		return nil, err
	}
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	m, err := Load(f, format)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	if m.ID == "" {
		m.ID = strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))
	}
	return m, nil
}

// Write encodes m in the given format.
func Write(w io.Writer, m *Mission, format Format) error {
	switch format {
	case FormatJSON:
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(m)
	case FormatYAML:
		enc := yaml.NewEncoder(w)
		enc.SetIndent(2)
		if err := enc.Encode(m); err != nil {
			return err
		}
		return enc.Close()
	default:
		return fmt.Errorf("mission: unknown format %q", format)
	}
}
