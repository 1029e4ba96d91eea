package nsxfile

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/mat"
)

func loadedForReference(channels []int, rows, cols int, values []float64) *LoadedData {
	return &LoadedData{
		Channels:     channels,
		Segments:     []*mat.Dense{mat.NewDense(rows, cols, values)},
		Stride:       1,
		SamplingRate: 30000,
	}
}

func TestCommonAverageReferenceGlobal(t *testing.T) {
	data := loadedForReference([]int{1, 2, 3}, 3, 2, []float64{
		1, 10,
		2, 20,
		6, 30,
	})

	require.NoError(t, CommonAverageReference(data, nil, GroupGlobal))

	m := data.Segments[0]
	// Column means were 3 and 20.
	assert.Equal(t, -2.0, m.At(0, 0))
	assert.Equal(t, -1.0, m.At(1, 0))
	assert.Equal(t, 3.0, m.At(2, 0))
	assert.Equal(t, -10.0, m.At(0, 1))
	assert.Equal(t, 0.0, m.At(1, 1))
	assert.Equal(t, 10.0, m.At(2, 1))

	for c := 0; c < 2; c++ {
		var sum float64
		for r := 0; r < 3; r++ {
			sum += m.At(r, c)
		}
		assert.InDelta(t, 0, sum, 1e-12)
	}
}

func TestCommonAverageReferenceByBank(t *testing.T) {
	electrodes := []ElectrodeDescriptor{
		{ConnectorBank: "A"},
		{ConnectorBank: "A"},
		{ConnectorBank: "B"},
	}
	data := loadedForReference([]int{1, 2, 3}, 3, 1, []float64{
		4,
		8,
		100,
	})

	require.NoError(t, CommonAverageReference(data, electrodes, GroupByBank))

	m := data.Segments[0]
	// Bank A recenters around its own mean of 6.
	assert.Equal(t, -2.0, m.At(0, 0))
	assert.Equal(t, 2.0, m.At(1, 0))
	// Bank B has a single channel and is left alone.
	assert.Equal(t, 100.0, m.At(2, 0))
}

func TestCommonAverageReferenceByBankMissingDescriptor(t *testing.T) {
	data := loadedForReference([]int{1, 2}, 2, 1, []float64{1, 2})
	err := CommonAverageReference(data, []ElectrodeDescriptor{{ConnectorBank: "A"}}, GroupByBank)
	assert.ErrorContains(t, err, "no electrode descriptor for channel 2")
}

func TestCommonAverageReferenceNoData(t *testing.T) {
	assert.ErrorIs(t, CommonAverageReference(nil, nil, GroupGlobal), ErrNoDataLoaded)
	assert.ErrorIs(t, CommonAverageReference(&LoadedData{}, nil, GroupGlobal), ErrNoDataLoaded)
}

func TestCommonAverageReferenceEndToEnd(t *testing.T) {
	raw := threeChannelFixture(t)
	s := openFixture(t, raw)
	require.NoError(t, s.Read(ReadOptions{End: 0.1}))

	require.NoError(t, CommonAverageReference(s.Data(), s.Electrodes(), GroupGlobal))

	m := s.Data().Segments[0]
	rows, cols := m.Dims()
	require.Equal(t, 3, rows)
	for c := 0; c < cols; c++ {
		var sum float64
		for r := 0; r < rows; r++ {
			sum += m.At(r, c)
		}
		assert.InDelta(t, 0, sum, 1e-9)
	}
}
