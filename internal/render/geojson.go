package render

import (
	"github.com/paulmach/orb"
	"github.com/paulmach/orb/geojson"
)

// FeatureCollection returns the layer as GeoJSON: one LineString feature per
// segment carrying the channel value and colour, or a single Point feature
// for a one-row profile.
func (l *MapLayer) FeatureCollection() *geojson.FeatureCollection {
	fc := geojson.NewFeatureCollection()
	fc.BBox = geojson.BBox{l.Bounds.West, l.Bounds.South, l.Bounds.East, l.Bounds.North}

	if len(l.Segments) == 0 && len(l.Path) > 0 {
		p := l.Path[0]
		f := geojson.NewFeature(orb.Point{p.Lon, p.Lat})
		f.Properties["channel"] = string(l.Channel)
		fc.Append(f)
		return fc
	}

	for i, s := range l.Segments {
		f := geojson.NewFeature(orb.LineString{
			{s.From.Lon, s.From.Lat},
			{s.To.Lon, s.To.Lat},
		})
		f.Properties["index"] = i
		f.Properties["channel"] = string(l.Channel)
		f.Properties["value"] = s.Value
		f.Properties["stroke"] = s.Color
		fc.Append(f)
	}
	return fc
}

// GeoJSON encodes FeatureCollection.
func (l *MapLayer) GeoJSON() ([]byte, error) {
	return l.FeatureCollection().MarshalJSON()
}
