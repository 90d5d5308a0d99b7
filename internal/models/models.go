package models

import (
	"encoding/json"
	"fmt"
	"strings"
)

// Site is a configured cultivation site that can be sent for analysis.
type Site struct {
	SiteID    string  `json:"site_id" yaml:"id"`
	Name      string  `json:"name" yaml:"name"`
	Latitude  float64 `json:"latitude" yaml:"latitude"`
	Longitude float64 `json:"longitude" yaml:"longitude"`
	Active    bool    `json:"active" yaml:"active"`
}

// SiteMetrics holds the four environmental readings used across charts and reports.
// A value only exists when all four readings are finite.
type SiteMetrics struct {
	Temperature float64 `json:"temperature"` // °C
	PH          float64 `json:"ph"`
	Radiation   float64 `json:"radiation"` // MJ/m²/day
	Salinity    float64 `json:"salinity"`  // %
}

// IdealMetrics is the reference envelope for cultivation. Treat as read only.
var IdealMetrics = SiteMetrics{
	Temperature: 30,
	PH:          9.0,
	Radiation:   16,
	Salinity:    3,
}

type ProteinLevel int

const (
	ProteinLow ProteinLevel = iota
	ProteinMedium
	ProteinHigh
)

func (l ProteinLevel) String() string {
	switch l {
	case ProteinLow:
		return "Low"
	case ProteinMedium:
		return "Medium"
	case ProteinHigh:
		return "High"
	default:
		return fmt.Sprintf("ProteinLevel(%d)", int(l))
	}
}

func (l ProteinLevel) MarshalJSON() ([]byte, error) {
	return json.Marshal(l.String())
}

func (l *ProteinLevel) UnmarshalJSON(b []byte) error {
	var s string
	if err := json.Unmarshal(b, &s); err != nil {
		return err
	}
	level, err := ParseProteinLevel(s)
	if err != nil {
		return err
	}
	*l = level
	return nil
}

// ParseProteinLevel parses a level name, case-insensitively.
func ParseProteinLevel(s string) (ProteinLevel, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "low":
		return ProteinLow, nil
	case "medium":
		return ProteinMedium, nil
	case "high":
		return ProteinHigh, nil
	}
	return 0, fmt.Errorf("unknown protein level %q", s)
}

// ProteinPrediction is a protein band with a 0-100 strength score.
// The score is not a probability across levels.
type ProteinPrediction struct {
	Level ProteinLevel `json:"level"`
	Score float64      `json:"score"`
}

type GrowthPoint struct {
	Day          int     `json:"day"`
	DoublingTime float64 `json:"doubling_time"` // days, lower is better
}

// GrowthSeries always has GrowthDays points for days 1..GrowthDays.
type GrowthSeries []GrowthPoint

const GrowthDays = 14
