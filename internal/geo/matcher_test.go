package geo

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// Golden fixture: the Connaught Place -> Anand Vihar segment used across the
// tracking tests. Coordinates are (lng,lat).
var fixtureLine = [][]float64{
	{77.2197, 28.6328},
	{77.3649, 28.6280},
}

func TestHaversineKm(t *testing.T) {
	// One degree of longitude on the equator.
	d := HaversineKm(0, 0, 0, 1)
	assert.InDelta(t, 111.195, d, 0.01)

	// Zero distance.
	assert.Equal(t, 0.0, HaversineKm(28.6328, 77.2197, 28.6328, 77.2197))
}

func TestSnapToPolyline_VertexSnap(t *testing.T) {
	total := PolylineLengthKm(fixtureLine)

	m, err := SnapToPolyline(fixtureLine, fixtureLine[1][0], fixtureLine[1][1])
	require.NoError(t, err)

	assert.InDelta(t, fixtureLine[1][0], m.Lng, 1e-9)
	assert.InDelta(t, fixtureLine[1][1], m.Lat, 1e-9)
	assert.InDelta(t, total, m.OffsetKm, 1e-9)
}

func TestSnapToPolyline_OriginSnap(t *testing.T) {
	m, err := SnapToPolyline(fixtureLine, fixtureLine[0][0], fixtureLine[0][1])
	require.NoError(t, err)
	assert.Equal(t, 0.0, m.OffsetKm)
}

func TestSnapToPolyline_Midpoint(t *testing.T) {
	total := PolylineLengthKm(fixtureLine)

	// Query point roughly halfway along, slightly off the line.
	m, err := SnapToPolyline(fixtureLine, 77.2923, 28.6300)
	require.NoError(t, err)

	assert.InDelta(t, total/2, m.OffsetKm, 0.05)
	assert.Greater(t, m.OffsetKm, 0.0)
	assert.Less(t, m.OffsetKm, total)
}

func TestSnapToPolyline_ClampBeforeOrigin(t *testing.T) {
	// A point behind the origin snaps to the first vertex at offset zero.
	m, err := SnapToPolyline(fixtureLine, 77.1000, 28.6350)
	require.NoError(t, err)

	assert.Equal(t, 0.0, m.OffsetKm)
	assert.InDelta(t, fixtureLine[0][0], m.Lng, 1e-9)
	assert.InDelta(t, fixtureLine[0][1], m.Lat, 1e-9)
}

func TestSnapToPolyline_Idempotent(t *testing.T) {
	first, err := SnapToPolyline(fixtureLine, 77.2923, 28.6300)
	require.NoError(t, err)
	second, err := SnapToPolyline(fixtureLine, 77.2923, 28.6300)
	require.NoError(t, err)

	assert.Equal(t, first, second)
}

func TestSnapToPolyline_DegenerateSegment(t *testing.T) {
	// Duplicate vertex within a metre: projection must not divide by zero and
	// the cumulative length is unchanged.
	withDup := [][]float64{
		fixtureLine[0],
		fixtureLine[0],
		fixtureLine[1],
	}
	assert.InDelta(t, PolylineLengthKm(fixtureLine), PolylineLengthKm(withDup), 1e-9)

	m, err := SnapToPolyline(withDup, 77.2923, 28.6300)
	require.NoError(t, err)
	assert.False(t, math.IsNaN(m.OffsetKm))
	assert.False(t, math.IsNaN(m.Lng))
	assert.InDelta(t, PolylineLengthKm(fixtureLine)/2, m.OffsetKm, 0.05)
}

func TestSnapToPolyline_AllPointsCoincident(t *testing.T) {
	line := [][]float64{
		{77.2197, 28.6328},
		{77.2197, 28.6328},
	}
	m, err := SnapToPolyline(line, 77.2923, 28.6300)
	require.NoError(t, err)
	assert.Equal(t, 0.0, m.OffsetKm)
	assert.False(t, math.IsNaN(m.Lat))
}

func TestSnapToPolyline_TooShort(t *testing.T) {
	_, err := SnapToPolyline([][]float64{{77.2197, 28.6328}}, 77.2923, 28.6300)
	assert.ErrorIs(t, err, ErrPolylineTooShort)

	_, err = SnapToPolyline(nil, 77.2923, 28.6300)
	assert.ErrorIs(t, err, ErrPolylineTooShort)
}

func TestSnapToPolyline_EarliestSegmentTieBreak(t *testing.T) {
	// An out-and-back line passes the query point twice at the same distance;
	// the match must land on the outbound segment.
	line := [][]float64{
		{77.2000, 28.6300},
		{77.3000, 28.6300},
		{77.2000, 28.6300},
	}
	m, err := SnapToPolyline(line, 77.2500, 28.6300)
	require.NoError(t, err)

	assert.InDelta(t, PolylineLengthKm(line)/4, m.OffsetKm, 0.01)
}
