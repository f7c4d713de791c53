package descriptor

import (
	"math"
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func randomDescriptor(r *rand.Rand) Descriptor {
	d := make(Descriptor, Length)
	for i := range d {
		d[i] = float32(r.NormFloat64() * 0.1)
	}
	return d
}

func TestEncodeDecode_RoundTrip(t *testing.T) {
	r := rand.New(rand.NewSource(42))
	for n := 0; n < 50; n++ {
		want := randomDescriptor(r)
		got, err := DecodeStrict(Encode(want))
		require.NoError(t, err)
		require.Len(t, got, Length)
		for i := range want {
			assert.Equal(t, want[i], got[i], "component %d", i)
		}
	}
}

func TestEncode_ExtremeValues(t *testing.T) {
	d := make(Descriptor, Length)
	d[0] = math.SmallestNonzeroFloat32
	d[1] = math.MaxFloat32
	d[2] = -1e-7

	got := Decode(Encode(d))
	assert.Equal(t, d, got)
}

func TestDecode_FallsBackToZeroVector(t *testing.T) {
	tests := []struct {
		name  string
		input string
	}{
		{"empty", ""},
		{"whitespace", "   "},
		{"not json", "hello"},
		{"object", `{"a":1}`},
		{"too short", "[0.1,0.2,0.3]"},
		{"wrong type", `["a","b"]`},
		{"truncated", "[0.1,0.2"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			d := Decode(tt.input)
			assert.Len(t, d, Length)
			assert.True(t, d.IsZero())

			_, err := DecodeStrict(tt.input)
			assert.ErrorIs(t, err, ErrMalformed)
		})
	}
}

func TestDecode_NonFiniteIsMalformed(t *testing.T) {
	d := make(Descriptor, Length)
	d[5] = float32(math.NaN())

	_, err := DecodeStrict(Encode(d))
	assert.ErrorIs(t, err, ErrMalformed)
	assert.True(t, Decode(Encode(d)).IsZero())
}

func TestIsZero(t *testing.T) {
	assert.True(t, Descriptor(nil).IsZero())
	assert.True(t, make(Descriptor, Length).IsZero())
	assert.False(t, Descriptor{0, 0, 0.5}.IsZero())
}
