package here

import (
	"fmt"
	"strconv"
	"time"

	"github.com/routeprofile/routeprofile/internal/geo"
	"github.com/routeprofile/routeprofile/internal/routing"
)

// Routing v8 response.

type routesResponse struct {
	Routes  []hereRoute  `json:"routes"`
	Notices []hereNotice `json:"notices,omitempty"`
}

type hereNotice struct {
	Title string `json:"title"`
	Code  string `json:"code"`
}

type hereRoute struct {
	ID       string        `json:"id"`
	Sections []hereSection `json:"sections"`
}

type hereSection struct {
	ID        string     `json:"id"`
	Type      string     `json:"type"`
	Departure herePlace  `json:"departure"`
	Arrival   herePlace  `json:"arrival"`
	Polyline  string     `json:"polyline"`
	Spans     []hereSpan `json:"spans"`
}

type herePlace struct {
	Time string `json:"time"`
}

type hereSpan struct {
	Offset           *int              `json:"offset"`
	Names            []hereName        `json:"names,omitempty"`
	CountryCode      *string           `json:"countryCode"`
	FunctionalClass  *int              `json:"functionalClass"`
	Length           *float64          `json:"length"`
	Duration         *float64          `json:"duration"`
	BaseDuration     *float64          `json:"baseDuration"`
	SpeedLimit       *float64          `json:"speedLimit,omitempty"`
	MaxSpeed         *float64          `json:"maxSpeed,omitempty"`
	DynamicSpeedInfo *dynamicSpeedInfo `json:"dynamicSpeedInfo"`
}

type hereName struct {
	Value    string `json:"value"`
	Language string `json:"language,omitempty"`
}

type dynamicSpeedInfo struct {
	TrafficSpeed *float64 `json:"trafficSpeed"`
	BaseSpeed    *float64 `json:"baseSpeed"`
	TurnTime     float64  `json:"turnTime,omitempty"`
}

// Route matching response.

type matchResponse struct {
	RouteLinks  []hereRouteLink  `json:"RouteLinks"`
	TracePoints []hereTracePoint `json:"TracePoints"`
}

type hereRouteLink struct {
	LinkID          int64                `json:"linkId"`
	Confidence      float64              `json:"confidence"`
	FunctionalClass int                  `json:"functionalClass"`
	Attributes      *routeLinkAttributes `json:"attributes,omitempty"`
}

type routeLinkAttributes struct {
	SpeedLimits []speedLimitAttribute `json:"SPEED_LIMITS_FCN,omitempty"`
}

// speedLimitAttribute values are delivered as strings, in km/h.
type speedLimitAttribute struct {
	FromRefSpeedLimit string `json:"FROM_REF_SPEED_LIMIT,omitempty"`
	ToRefSpeedLimit   string `json:"TO_REF_SPEED_LIMIT,omitempty"`
}

type hereTracePoint struct {
	Lat                   *float64 `json:"lat"`
	Lon                   *float64 `json:"lon"`
	LatMatched            *float64 `json:"latMatched"`
	LonMatched            *float64 `json:"lonMatched"`
	Elevation             float64  `json:"elevation"`
	Timestamp             *int64   `json:"timestamp"`
	ConfidenceValue       float64  `json:"confidenceValue"`
	SpeedMps              float64  `json:"speedMps"`
	RouteLinkSeqNrMatched *int     `json:"routeLinkSeqNrMatched"`
}

// Geocoding v1 response.

type geocodeResponse struct {
	Items []geocodeItem `json:"items"`
}

type geocodeItem struct {
	Title    string           `json:"title"`
	Position *geocodePosition `json:"position"`
}

type geocodePosition struct {
	Lat float64 `json:"lat"`
	Lng float64 `json:"lng"`
}

// errorResponse is the problem body HERE services return on failure.
type errorResponse struct {
	Title  string `json:"title"`
	Status int    `json:"status"`
	Code   string `json:"code"`
	Cause  string `json:"cause"`
}

// toRouteResponse converts a routing response to the domain model, rejecting
// spans that lack a required field.
func toRouteResponse(resp *routesResponse, fetchedAt time.Time) (*routing.RouteResponse, error) {
	routes := make([]routing.Route, 0, len(resp.Routes))
	for ri := range resp.Routes {
		hr := &resp.Routes[ri]
		route := routing.Route{ID: hr.ID, Sections: make([]routing.Section, 0, len(hr.Sections))}

		for si := range hr.Sections {
			hs := &hr.Sections[si]
			field := fmt.Sprintf("routes[%d].sections[%d]", ri, si)

			if hs.Polyline == "" {
				return nil, routing.NewPayloadError(field + ".polyline")
			}
			departure, err := parseTime(hs.Departure.Time, field+".departure.time")
			if err != nil {
				return nil, err
			}
			var arrival time.Time
			if hs.Arrival.Time != "" {
				if arrival, err = parseTime(hs.Arrival.Time, field+".arrival.time"); err != nil {
					return nil, err
				}
			}

			spans := make([]routing.Span, 0, len(hs.Spans))
			for pi := range hs.Spans {
				span, err := toSpan(&hs.Spans[pi], fmt.Sprintf("%s.spans[%d]", field, pi))
				if err != nil {
					return nil, err
				}
				spans = append(spans, span)
			}

			route.Sections = append(route.Sections, routing.Section{
				ID:        hs.ID,
				Departure: departure,
				Arrival:   arrival,
				Polyline:  hs.Polyline,
				Spans:     spans,
			})
		}
		routes = append(routes, route)
	}

	return &routing.RouteResponse{
		Routes:    routes,
		Provider:  ProviderName,
		FetchedAt: fetchedAt,
	}, nil
}

func toSpan(hs *hereSpan, field string) (routing.Span, error) {
	switch {
	case hs.Offset == nil:
		return routing.Span{}, routing.NewPayloadError(field + ".offset")
	case hs.CountryCode == nil:
		return routing.Span{}, routing.NewPayloadError(field + ".countryCode")
	case hs.FunctionalClass == nil:
		return routing.Span{}, routing.NewPayloadError(field + ".functionalClass")
	case hs.Length == nil:
		return routing.Span{}, routing.NewPayloadError(field + ".length")
	case hs.Duration == nil:
		return routing.Span{}, routing.NewPayloadError(field + ".duration")
	case hs.BaseDuration == nil:
		return routing.Span{}, routing.NewPayloadError(field + ".baseDuration")
	case hs.DynamicSpeedInfo == nil:
		return routing.Span{}, routing.NewPayloadError(field + ".dynamicSpeedInfo")
	case hs.DynamicSpeedInfo.TrafficSpeed == nil:
		return routing.Span{}, routing.NewPayloadError(field + ".dynamicSpeedInfo.trafficSpeed")
	case hs.DynamicSpeedInfo.BaseSpeed == nil:
		return routing.Span{}, routing.NewPayloadError(field + ".dynamicSpeedInfo.baseSpeed")
	}

	var names []string
	for _, n := range hs.Names {
		names = append(names, n.Value)
	}

	return routing.Span{
		Offset:          *hs.Offset,
		Length:          *hs.Length,
		Duration:        *hs.Duration,
		BaseDuration:    *hs.BaseDuration,
		SpeedLimit:      hs.SpeedLimit,
		MaxSpeed:        hs.MaxSpeed,
		TrafficSpeed:    *hs.DynamicSpeedInfo.TrafficSpeed,
		BaseSpeed:       *hs.DynamicSpeedInfo.BaseSpeed,
		Names:           names,
		CountryCode:     *hs.CountryCode,
		FunctionalClass: *hs.FunctionalClass,
	}, nil
}

// toMatchResponse converts a route matching response to the domain model.
// A route link without a speed limit is passed on with a nil SpeedLimit.
func toMatchResponse(resp *matchResponse, fetchedAt time.Time) (*routing.MatchResponse, error) {
	links := make([]routing.RouteLink, 0, len(resp.RouteLinks))
	for i := range resp.RouteLinks {
		hl := &resp.RouteLinks[i]
		link := routing.RouteLink{
			LinkID:          hl.LinkID,
			Confidence:      hl.Confidence,
			FunctionalClass: hl.FunctionalClass,
		}
		if hl.Attributes != nil && len(hl.Attributes.SpeedLimits) > 0 && hl.Attributes.SpeedLimits[0].FromRefSpeedLimit != "" {
			v, err := strconv.ParseFloat(hl.Attributes.SpeedLimits[0].FromRefSpeedLimit, 64)
			if err != nil {
				return nil, &routing.PayloadError{
					Field:  fmt.Sprintf("RouteLinks[%d].attributes.SPEED_LIMITS_FCN[0].FROM_REF_SPEED_LIMIT", i),
					Reason: fmt.Sprintf("not a number: %q", hl.Attributes.SpeedLimits[0].FromRefSpeedLimit),
				}
			}
			link.SpeedLimit = &v
		}
		links = append(links, link)
	}

	points := make([]routing.TracePoint, 0, len(resp.TracePoints))
	for i := range resp.TracePoints {
		tp := &resp.TracePoints[i]
		field := fmt.Sprintf("TracePoints[%d]", i)
		switch {
		case tp.Lat == nil:
			return nil, routing.NewPayloadError(field + ".lat")
		case tp.Lon == nil:
			return nil, routing.NewPayloadError(field + ".lon")
		case tp.LatMatched == nil:
			return nil, routing.NewPayloadError(field + ".latMatched")
		case tp.LonMatched == nil:
			return nil, routing.NewPayloadError(field + ".lonMatched")
		case tp.Timestamp == nil:
			return nil, routing.NewPayloadError(field + ".timestamp")
		case tp.RouteLinkSeqNrMatched == nil:
			return nil, routing.NewPayloadError(field + ".routeLinkSeqNrMatched")
		}
		points = append(points, routing.TracePoint{
			Lat:                   *tp.Lat,
			Lon:                   *tp.Lon,
			LatMatched:            *tp.LatMatched,
			LonMatched:            *tp.LonMatched,
			Elevation:             tp.Elevation,
			Timestamp:             *tp.Timestamp,
			ConfidenceValue:       tp.ConfidenceValue,
			SpeedMps:              tp.SpeedMps,
			RouteLinkSeqNrMatched: *tp.RouteLinkSeqNrMatched,
		})
	}

	return &routing.MatchResponse{
		RouteLinks:  links,
		TracePoints: points,
		Provider:    ProviderName,
		FetchedAt:   fetchedAt,
	}, nil
}

// toGeocodeResult returns the first item of a geocoding response.
func toGeocodeResult(resp *geocodeResponse) (*routing.GeocodeResult, error) {
	if len(resp.Items) == 0 {
		return nil, &routing.Error{
			Provider: ProviderName,
			Code:     "NO_RESULTS",
			Message:  "no geocoding results",
			Err:      routing.ErrNoResults,
		}
	}
	item := resp.Items[0]
	if item.Position == nil {
		return nil, routing.NewPayloadError("items[0].position")
	}
	return &routing.GeocodeResult{
		Title:    item.Title,
		Position: geo.Coordinate{Lat: item.Position.Lat, Lon: item.Position.Lng},
	}, nil
}

func parseTime(value, field string) (time.Time, error) {
	if value == "" {
		return time.Time{}, routing.NewPayloadError(field)
	}
	t, err := time.Parse(time.RFC3339, value)
	if err != nil {
		return time.Time{}, &routing.PayloadError{Field: field, Reason: err.Error()}
	}
	return t, nil
}
