package config

import (
	"errors"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/lox/spirulinasite/internal/models"
)

// DefaultSites seeds the catalogue when no sites file is given.
var DefaultSites = []models.Site{
	{SiteID: "texcoco", Name: "Lake Texcoco, Mexico", Latitude: 19.483, Longitude: -98.994, Active: true},
	{SiteID: "chad", Name: "Lake Chad, Chad", Latitude: 13.0, Longitude: 14.5, Active: true},
	{SiteID: "bodou", Name: "Bodou Pond, Chad", Latitude: 13.7, Longitude: 14.05, Active: true},
	{SiteID: "lonar", Name: "Lonar Lake, India", Latitude: 19.976, Longitude: 76.508, Active: true},
	{SiteID: "aranguadi", Name: "Lake Arenguade, Ethiopia", Latitude: 8.695, Longitude: 38.978, Active: false},
}

type sitesFile struct {
	Sites []models.Site `yaml:"sites"`
}

// LoadSites reads a YAML site catalogue:
//
//	sites:
//	  - id: texcoco
//	    name: Lake Texcoco, Mexico
//	    latitude: 19.483
//	    longitude: -98.994
//	    active: true
//
// An empty path returns DefaultSites.
func LoadSites(path string) ([]models.Site, error) {
	if path == "" {
		return DefaultSites, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read sites file: %w", err)
	}
	return ParseSites(data)
}

// ParseSites decodes and validates a YAML site catalogue.
func ParseSites(data []byte) ([]models.Site, error) {
	var f sitesFile
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("parse sites: %w", err)
	}
	if len(f.Sites) == 0 {
		return nil, errors.New("parse sites: no sites defined")
	}

	seen := make(map[string]bool, len(f.Sites))
	for _, s := range f.Sites {
		if s.SiteID == "" {
			return nil, fmt.Errorf("parse sites: site %q has no id", s.Name)
		}
		if seen[s.SiteID] {
			return nil, fmt.Errorf("parse sites: duplicate site id %q", s.SiteID)
		}
		seen[s.SiteID] = true
		if s.Latitude < -90 || s.Latitude > 90 || s.Longitude < -180 || s.Longitude > 180 {
			return nil, fmt.Errorf("parse sites: site %q has out-of-range coordinates", s.SiteID)
		}
	}
	return f.Sites, nil
}
