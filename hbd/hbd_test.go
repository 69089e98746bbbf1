package hbd

import (
	"testing"

	"github.com/spknetwork/storage-coordinator/testing/assert"
	"github.com/spknetwork/storage-coordinator/testing/require"
)

func TestFormat3(t *testing.T) {
	tests := []struct {
		value float64
		want  string
	}{
		{0, "0.000"},
		{0.001, "0.001"},
		{0.017, "0.017"},
		{10 * BaseReward, "0.010"},
		{7 * BaseReward, "0.007"},
		{1.2345, "1.234"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, Format3(tt.value))
	}
}

func TestFormat4_QuarterReward(t *testing.T) {
	// The binary value of 0.001*0.25 sits just above 0.00025, so fixed
	// formatting rounds it up.
	assert.Equal(t, "0.0003", Format4(BaseReward*0.25))
	assert.Equal(t, "0.0010", Format4(BaseReward))
	assert.Equal(t, "0.0005", Format4(BaseReward*0.5))
}

func TestAmount4(t *testing.T) {
	assert.Equal(t, "0.001 HBD", Amount4(BaseReward))
	assert.Equal(t, "0.0003 HBD", Amount4(BaseReward*0.25))
	assert.Equal(t, "0.0005 HBD", Amount4(BaseReward*0.5))
}

func TestParse(t *testing.T) {
	v, err := Parse("0.017")
	require.NoError(t, err)
	assert.Equal(t, "0.017", Format3(v))

	_, err = Parse("not-a-number")
	assert.ErrorContains(t, "invalid HBD amount", err)
}

func TestAdd3(t *testing.T) {
	total := Add3(0, "0.010")
	total = Add3(total, "0.007")
	assert.Equal(t, "0.017", Format3(total))

	// Malformed inputs are ignored.
	assert.Equal(t, "0.017", Format3(Add3(total, "")))
}
