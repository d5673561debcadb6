// Package worker builds route profiles in the background from job messages
// delivered over Pub/Sub.
package worker

import (
	"time"
)

// Job types carried in the job_type field of a message.
const (
	JobTypeRouteProfile = "route_profile"
	JobTypeMatchProfile = "match_profile"
	JobTypeHealthCheck  = "health_check"
)

// BatchConfig holds configuration for the batch job.
type BatchConfig struct {
	// Concurrency is the number of profiles built at the same time.
	// Default: 3
	Concurrency int

	// Timeout bounds each profile build.
	// Default: 60 seconds
	Timeout time.Duration

	// HealthCheckQuery is geocoded by health_check jobs to prove the
	// provider is reachable.
	// Default: "Brandenburger Tor, Berlin"
	HealthCheckQuery string

	// ExportDir receives a <profile id>.gpx copy of every profile built.
	// Default: "" (no export)
	ExportDir string
}

// DefaultBatchConfig returns the default batch configuration.
func DefaultBatchConfig() BatchConfig {
	return BatchConfig{
		Concurrency:      3,
		Timeout:          60 * time.Second,
		HealthCheckQuery: "Brandenburger Tor, Berlin",
	}
}

func (c BatchConfig) withDefaults() BatchConfig {
	def := DefaultBatchConfig()
	if c.Concurrency <= 0 {
		c.Concurrency = def.Concurrency
	}
	if c.Timeout <= 0 {
		c.Timeout = def.Timeout
	}
	if c.HealthCheckQuery == "" {
		c.HealthCheckQuery = def.HealthCheckQuery
	}
	return c
}

// Point represents a geographic coordinate.
type Point struct {
	Lat float64 `json:"lat"`
	Lon float64 `json:"lon"`
}

// ProfileJob is one profile to build. Route jobs set Waypoints or Places;
// match jobs set GPX.
type ProfileJob struct {
	ID             string     `json:"id,omitempty"`
	Waypoints      []Point    `json:"waypoints,omitempty"`
	Places         []string   `json:"places,omitempty"`
	DepartureTime  *time.Time `json:"departure_time,omitempty"`
	TransportMode  string     `json:"transport_mode,omitempty"`
	DistanceSource string     `json:"distance_source,omitempty"`
	GPX            string     `json:"gpx,omitempty"`
	FullResolution bool       `json:"full_resolution,omitempty"`
}

// JobMessage is the Pub/Sub message body.
type JobMessage struct {
	JobType string       `json:"job_type"`
	Jobs    []ProfileJob `json:"jobs,omitempty"`
}
