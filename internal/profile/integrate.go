package profile

import (
	"errors"
	"fmt"
	"time"

	"github.com/routeprofile/routeprofile/internal/units"
)

// ErrLengthMismatch indicates a delta distance sequence that does not align with the rows.
var ErrLengthMismatch = errors.New("delta distances do not match row count")

// Timing selects how the time between consecutive rows is derived.
type Timing int

const (
	// TimeFromTimestamps uses the whole-second difference of row timestamps.
	TimeFromTimestamps Timing = iota
	// TimeFromTrafficSpeed divides the delta distance by the row's traffic speed.
	TimeFromTrafficSpeed
)

func (t Timing) String() string {
	switch t {
	case TimeFromTimestamps:
		return "timestamps"
	case TimeFromTrafficSpeed:
		return "traffic_speed"
	default:
		return fmt.Sprintf("timing(%d)", int(t))
	}
}

const (
	distanceDecimals = 1
	timeDecimals     = 2
	speedDecimals    = 1
)

// Integrate fills the derived distance, time, altitude and speed columns of rows
// in place. deltaDistance[i] is the distance from row i to row i+1; the value
// for the last row is ignored and stored as 0.
//
// Delta distances are rounded to 0.1 m before accumulation. Speeds are rounded
// to 0.1 km/h and are 0 where the delta time is 0.
func Integrate(rows []Row, deltaDistance []float64, timing Timing) error {
	if len(rows) != len(deltaDistance) {
		return fmt.Errorf("%w: %d rows, %d distances", ErrLengthMismatch, len(rows), len(deltaDistance))
	}
	if timing != TimeFromTimestamps && timing != TimeFromTrafficSpeed {
		return fmt.Errorf("unknown timing %s", timing)
	}

	var trafficMps []float64
	if timing == TimeFromTrafficSpeed {
		kmh := make([]float64, len(rows))
		for i := range rows {
			kmh[i] = rows[i].TrafficSpeedKmh
		}
		trafficMps = units.KmhToMpsSlice(kmh)
	}

	last := len(rows) - 1
	var distance, elapsed float64
	for i := range rows {
		r := &rows[i]

		var dd, dt, da float64
		if i < last {
			dd = units.Round(deltaDistance[i], distanceDecimals)
			if timing == TimeFromTrafficSpeed {
				dt = travelTime(dd, trafficMps[i])
			} else {
				dt = elapsedBetween(rows[i], rows[i+1])
			}
			da = rows[i+1].Altitude - r.Altitude
		}

		r.DeltaDistance = dd
		r.DistanceI = distance
		r.DistanceF = distance + dd
		distance = r.DistanceF

		r.DeltaTime = dt
		r.TimeI = elapsed
		r.TimeF = elapsed + dt
		elapsed = r.TimeF

		r.DeltaAltitude = da
		r.AltitudeI = r.Altitude
		r.AltitudeF = r.Altitude + da

		r.VehicleSpeedKmh = 0
		if dt != 0 {
			r.VehicleSpeedKmh = units.Round(units.MpsToKmh(dd/dt), speedDecimals)
		}
	}
	return nil
}

// travelTime is the time to cover dd meters at mps, or 0 when the speed is 0.
func travelTime(dd, mps float64) float64 {
	if mps == 0 {
		return 0
	}
	return units.Round(dd/mps, timeDecimals)
}

func elapsedBetween(cur, next Row) float64 {
	return next.Timestamp.Truncate(time.Second).Sub(cur.Timestamp.Truncate(time.Second)).Seconds()
}
