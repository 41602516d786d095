package field

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestScalarJSONRoundTrip(t *testing.T) {
	for _, v := range []uint64{0, 1, 42, 1 << 50} {
		s := S(FromUint64(v))
		data, err := json.Marshal(s)
		require.NoError(t, err)

		var back Scalar
		require.NoError(t, json.Unmarshal(data, &back))
		a, b := s.Fr(), back.Fr()
		require.True(t, a.Equal(&b))
	}
}

// Scalars must survive encoding from inside a non-addressable struct value,
// the path where fr.Element's own pointer-receiver marshaller is skipped.
func TestScalarJSONInsideValue(t *testing.T) {
	type wrapper struct {
		V Scalar `json:"v"`
	}
	r, err := Random()
	require.NoError(t, err)

	data, err := json.Marshal(wrapper{V: S(r)})
	require.NoError(t, err)

	var back wrapper
	require.NoError(t, json.Unmarshal(data, &back))
	got := back.V.Fr()
	require.True(t, got.Equal(&r))
}

func TestScalarJSONRejectsMalformed(t *testing.T) {
	for _, raw := range []string{`"1234"`, `"0xzz"`, `"0x123"`, `17`} {
		var s Scalar
		require.Error(t, json.Unmarshal([]byte(raw), &s), "input %s must be rejected", raw)
	}
}
