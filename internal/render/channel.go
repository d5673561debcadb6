package render

import (
	"errors"
	"fmt"

	"github.com/routeprofile/routeprofile/internal/profile"
)

// ErrUnknownChannel indicates a channel name that is not a numeric profile column.
var ErrUnknownChannel = errors.New("unknown channel")

// Channel names a numeric profile column that can be rendered.
type Channel string

// Renderable channels. The names match the JSON field names of profile.Row.
const (
	ChannelVehicleSpeed    Channel = "vehicleSpeedKmh"
	ChannelSpeedLimit      Channel = "speedLimitKmh"
	ChannelMaxSpeed        Channel = "maxSpeedKmh"
	ChannelTrafficSpeed    Channel = "trafficSpeedKmh"
	ChannelBaseSpeed       Channel = "baseSpeedKmh"
	ChannelAltitude        Channel = "altitude"
	ChannelDeltaAltitude   Channel = "deltaAltitude"
	ChannelDeltaDistance   Channel = "deltaDistance"
	ChannelDeltaTime       Channel = "deltaTime"
	ChannelConfidence      Channel = "confidence"
	ChannelFunctionalClass Channel = "functionalClass"
)

var channelColumns = map[Channel]func(r *profile.Row) float64{
	ChannelVehicleSpeed:    func(r *profile.Row) float64 { return r.VehicleSpeedKmh },
	ChannelSpeedLimit:      func(r *profile.Row) float64 { return r.SpeedLimitKmh },
	ChannelMaxSpeed:        func(r *profile.Row) float64 { return r.MaxSpeedKmh },
	ChannelTrafficSpeed:    func(r *profile.Row) float64 { return r.TrafficSpeedKmh },
	ChannelBaseSpeed:       func(r *profile.Row) float64 { return r.BaseSpeedKmh },
	ChannelAltitude:        func(r *profile.Row) float64 { return r.Altitude },
	ChannelDeltaAltitude:   func(r *profile.Row) float64 { return r.DeltaAltitude },
	ChannelDeltaDistance:   func(r *profile.Row) float64 { return r.DeltaDistance },
	ChannelDeltaTime:       func(r *profile.Row) float64 { return r.DeltaTime },
	ChannelConfidence:      func(r *profile.Row) float64 { return r.Confidence },
	ChannelFunctionalClass: func(r *profile.Row) float64 { return float64(r.FunctionalClass) },
}

// ParseChannel validates a channel name. The empty string selects ChannelVehicleSpeed.
func ParseChannel(name string) (Channel, error) {
	if name == "" {
		return ChannelVehicleSpeed, nil
	}
	ch := Channel(name)
	if _, ok := channelColumns[ch]; !ok {
		return "", fmt.Errorf("%w: %q", ErrUnknownChannel, name)
	}
	return ch, nil
}

// Values extracts the channel column from rows.
func (c Channel) Values(rows []profile.Row) ([]float64, error) {
	column, ok := channelColumns[c]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownChannel, string(c))
	}
	values := make([]float64, len(rows))
	for i := range rows {
		values[i] = column(&rows[i])
	}
	return values, nil
}

func minMax(values []float64) (lo, hi float64) {
	for i, v := range values {
		if i == 0 || v < lo {
			lo = v
		}
		if i == 0 || v > hi {
			hi = v
		}
	}
	return lo, hi
}
