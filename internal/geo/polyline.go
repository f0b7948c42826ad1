package geo

import (
	"fmt"

	"github.com/twpayne/go-polyline"
)

// DecodeGeometry decodes a precision-5 encoded polyline into (lng,lat) pairs,
// the coordinate order used by the matcher. The admin backend stores the
// encoded string verbatim from the routing provider.
func DecodeGeometry(encoded string) ([][]float64, error) {
	if encoded == "" {
		return nil, fmt.Errorf("empty polyline geometry")
	}
	coords, rest, err := polyline.DecodeCoords([]byte(encoded))
	if err != nil {
		return nil, fmt.Errorf("failed to decode polyline: %w", err)
	}
	if len(rest) > 0 {
		return nil, fmt.Errorf("failed to decode polyline: %d trailing bytes", len(rest))
	}
	// DecodeCoords yields (lat,lng); copy into a new slice as (lng,lat).
	out := make([][]float64, len(coords))
	for i, c := range coords {
		out[i] = []float64{c[1], c[0]}
	}
	return out, nil
}

// EncodeGeometry encodes (lat,lng) pairs with precision-5, the input order of
// the admin-side encoder. Its output decodes back through DecodeGeometry,
// which returns the same points as (lng,lat) pairs. It exists so tests can
// validate codec parity with the admin-side encoder.
func EncodeGeometry(latLng [][]float64) string {
	return string(polyline.EncodeCoords(latLng))
}
