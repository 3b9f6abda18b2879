package planner

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"labelstitch/internal/models"
)

func TestComputeBySize(t *testing.T) {
	p, err := Compute(100, Options{Size: 40, Overlap: 0.25})
	require.NoError(t, err)

	// stride 30, ceil(60/30)+1 = 3 windows
	assert.Equal(t, []int{0, 30, 60}, p.Starts)
	assert.Equal(t, []int{40, 70, 100}, p.Ends)
	assert.Equal(t, 40, p.Size)
	assert.Equal(t, 0, p.Padding)
	assert.NoError(t, p.Validate())
}

func TestComputeByCount(t *testing.T) {
	p, err := Compute(100, Options{Count: 2, Overlap: 0.1})
	require.NoError(t, err)

	// 100 / 1.9 rounds up to 53, stride 47.7 rounds to 48
	assert.Equal(t, 53, p.Size)
	assert.Equal(t, []int{0, 48}, p.Starts)
	assert.Equal(t, []int{53, 101}, p.Ends)
	assert.Equal(t, 1, p.Padding)
	assert.NoError(t, p.Validate())
}

func TestComputeSingleTile(t *testing.T) {
	p, err := Compute(30, Options{Size: 50})
	require.NoError(t, err)
	assert.Equal(t, []int{0}, p.Starts)
	assert.Equal(t, 20, p.Padding)

	p, err = Compute(30, Options{Count: 1, Overlap: 0.5})
	require.NoError(t, err)
	assert.Equal(t, 30, p.Size)
	assert.Equal(t, 0, p.Padding)
}

func TestComputeNoOverlap(t *testing.T) {
	p, err := Compute(10, Options{Size: 5})
	require.NoError(t, err)
	assert.Equal(t, []int{0, 5}, p.Starts)
	assert.Equal(t, 0, p.Padding)

	// 10*(1-0.1) must not round up to an extra window
	p, err = Compute(19, Options{Size: 10, Overlap: 0.1})
	require.NoError(t, err)
	assert.Equal(t, []int{0, 9}, p.Starts)
	assert.Equal(t, 0, p.Padding)
}

func TestComputeCoversAxis(t *testing.T) {
	for _, length := range []int{1, 7, 64, 99, 100, 257, 1000} {
		for _, overlap := range []float64{0, 0.1, 0.2, 0.33, 0.5} {
			for _, opts := range []Options{
				{Size: 16, Overlap: overlap},
				{Size: 64, Overlap: overlap},
				{Count: 1, Overlap: overlap},
				{Count: 3, Overlap: overlap},
				{Count: 4, Overlap: overlap},
			} {
				p, err := Compute(length, opts)
				if err != nil {
					// small counts on tiny axes may legitimately give stride < 1
					var cfgErr *models.ConfigurationError
					require.True(t, errors.As(err, &cfgErr), "length %d %+v: %v", length, opts, err)
					continue
				}
				require.NoError(t, p.Validate(), "length %d %+v", length, opts)
				assert.GreaterOrEqual(t, p.Padding, 0)
				assert.Equal(t, length+p.Padding, p.Ends[len(p.Ends)-1])
				if opts.Count > 0 {
					assert.Equal(t, opts.Count, p.Count(), "length %d %+v", length, opts)
				}
			}
		}
	}
}

func TestComputeErrors(t *testing.T) {
	cases := map[string]struct {
		length int
		opts   Options
	}{
		"zero length":      {0, Options{Size: 4}},
		"neither":          {10, Options{Overlap: 0.1}},
		"both":             {10, Options{Size: 4, Count: 2}},
		"negative size":    {10, Options{Size: -4}},
		"negative count":   {10, Options{Count: -1}},
		"overlap one":      {10, Options{Size: 4, Overlap: 1}},
		"negative overlap": {10, Options{Size: 4, Overlap: -0.1}},
		"stride below one": {10, Options{Size: 1, Overlap: 0.5}},
	}
	for name, tc := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := Compute(tc.length, tc.opts)
			var cfgErr *models.ConfigurationError
			require.Error(t, err)
			assert.True(t, errors.As(err, &cfgErr), "got %T", err)
		})
	}
}

func TestComputeFrames(t *testing.T) {
	p, err := ComputeFrames(10, 4, 1)
	require.NoError(t, err)
	assert.Equal(t, []int{0, 3, 6}, p.Starts)
	assert.Equal(t, []int{4, 7, 10}, p.Ends)
	assert.Equal(t, 0, p.Padding)

	p, err = ComputeFrames(10, 4, 0)
	require.NoError(t, err)
	assert.Equal(t, []int{0, 4, 8}, p.Starts)
	assert.Equal(t, 2, p.Padding)

	p, err = ComputeFrames(3, 5, 2)
	require.NoError(t, err)
	assert.Equal(t, []int{0}, p.Starts)
	assert.Equal(t, 2, p.Padding)

	for _, bad := range [][3]int{{0, 4, 1}, {10, 0, 0}, {10, 4, 4}, {10, 4, -1}} {
		_, err := ComputeFrames(bad[0], bad[1], bad[2])
		var cfgErr *models.ConfigurationError
		assert.True(t, errors.As(err, &cfgErr), "%v: %v", bad, err)
	}
}
