// Package config reads process settings from the environment and an
// optional YAML file of zones, seed incidents and tuning knobs.
package config

import (
	"delivery-dispatch-service/internal/domain"
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Get returns the environment value for key, or fallback when unset or blank.
func Get(key, fallback string) string {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		return v
	}
	return fallback
}

func GetInt(key string, fallback int) int {
	v := Get(key, "")
	if v == "" {
		return fallback
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return fallback
	}
	return n
}

func GetFloat(key string, fallback float64) float64 {
	v := Get(key, "")
	if v == "" {
		return fallback
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return fallback
	}
	return f
}

type Tuning struct {
	ClusterRadiusKm   float64 `yaml:"cluster_radius_km"`
	ExcludeRestricted bool    `yaml:"exclude_restricted"`
	GeocodeWorkers    int     `yaml:"geocode_workers"`
	LedgerThreshold   int     `yaml:"ledger_threshold"`
	MonitorInterval   string  `yaml:"monitor_interval"`
	IncidentTTL       string  `yaml:"incident_ttl"`
}

// File is the shape of config.yaml.
type File struct {
	Depot     domain.GeoPoint   `yaml:"depot"`
	Zones     []domain.Zone     `yaml:"zones"`
	Incidents []domain.Incident `yaml:"incidents"`
	Tuning    Tuning            `yaml:"tuning"`
}

// Load parses path. A missing file yields an empty File. DEPOT_LAT and
// DEPOT_LNG override the depot from the file.
func Load(path string) (*File, error) {
	f := &File{}
	data, err := os.ReadFile(path)
	switch {
	case errors.Is(err, os.ErrNotExist):
	case err != nil:
		return nil, fmt.Errorf("config: read %q: %w", path, err)
	default:
		if err := yaml.Unmarshal(data, f); err != nil {
			return nil, fmt.Errorf("config: parse %q: %w", path, err)
		}
	}

	f.Depot.Lat = GetFloat("DEPOT_LAT", f.Depot.Lat)
	f.Depot.Lng = GetFloat("DEPOT_LNG", f.Depot.Lng)
	if !f.Depot.IsValid() {
		return nil, fmt.Errorf("config: depot %v out of range", f.Depot)
	}

	for i, inc := range f.Incidents {
		if inc.ID == "" {
			f.Incidents[i].ID = fmt.Sprintf("config-%d", i+1)
		}
		if _, err := domain.ParseSeverity(string(inc.Severity)); err != nil {
			return nil, fmt.Errorf("config: incident #%d: %w", i+1, err)
		}
	}

	if _, err := f.Tuning.monitorInterval(); err != nil {
		return nil, err
	}
	if _, err := f.Tuning.incidentTTL(); err != nil {
		return nil, err
	}
	return f, nil
}

func parseDuration(field, s string) (time.Duration, error) {
	if s == "" {
		return 0, nil
	}
	d, err := time.ParseDuration(s)
	if err != nil {
		return 0, fmt.Errorf("config: tuning.%s: %w", field, err)
	}
	return d, nil
}

func (t Tuning) monitorInterval() (time.Duration, error) {
	return parseDuration("monitor_interval", t.MonitorInterval)
}

func (t Tuning) incidentTTL() (time.Duration, error) {
	return parseDuration("incident_ttl", t.IncidentTTL)
}

// MonitorEvery returns the compliance monitor interval, zero when unset.
func (t Tuning) MonitorEvery() time.Duration {
	d, _ := t.monitorInterval()
	return d
}

func (t Tuning) IncidentLifetime() time.Duration {
	d, _ := t.incidentTTL()
	return d
}
