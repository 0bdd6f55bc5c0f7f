package domain

import (
	"context"
	"fmt"
	"math/rand/v2"
	"net/url"
	"strings"
)

// MarkerHandle addresses the marker owned by a MapSync implementation.
// The core never holds the marker itself.
type MarkerHandle string

// Popup is the user-facing affordance attached to a marker.
type Popup struct {
	Label   string `json:"label"`
	Href    string `json:"href"`
	Station string `json:"station,omitempty"`
}

// MapSync receives the visual side effects of the cascade.
type MapSync interface {
	FlyTo(ctx context.Context, center Coordinates, zoom int) error
	// PlaceMarker places the single active marker, replacing any previous one.
	PlaceMarker(ctx context.Context, at Coordinates, color string) (MarkerHandle, error)
	AttachPopup(ctx context.Context, marker MarkerHandle, popup Popup) error
}

// WeatherLabel is the popup label of the weather link.
const WeatherLabel = "Tiempo"

// WeatherLink builds the weather popup addressed by municipality name.
func WeatherLink(base, municipality string) Popup {
	return Popup{
		Label: WeatherLabel,
		Href:  strings.TrimRight(base, "/") + "/" + url.PathEscape(municipality),
	}
}

// RandomColor returns a random "#rrggbb" marker color.
func RandomColor() string {
	return fmt.Sprintf("#%06x", rand.IntN(1<<24))
}
