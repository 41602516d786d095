// scalar.go - JSON wire form for field elements.
//
// fr.Element only implements its JSON methods on the pointer receiver, so
// encoding/json falls back to raw limb output whenever an element sits inside
// a non-addressable value, and the result cannot be parsed back. Persisted
// formats therefore carry Scalar, which marshals as 0x-prefixed big-endian
// hex on the value receiver.

package field

import (
	"encoding/hex"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/consensys/gnark-crypto/ecc/bn254/fr"
)

// Scalar is an fr.Element with a stable JSON form.
type Scalar fr.Element

// S wraps v for serialization.
func S(v fr.Element) Scalar { return Scalar(v) }

// Fr unwraps the element.
func (s Scalar) Fr() fr.Element { return fr.Element(s) }

func (s Scalar) MarshalJSON() ([]byte, error) {
	return json.Marshal(ToHex(fr.Element(s)))
}

func (s *Scalar) UnmarshalJSON(data []byte) error {
	var str string
	if err := json.Unmarshal(data, &str); err != nil {
		return err
	}
	v, err := FromHex(str)
	if err != nil {
		return err
	}
	*s = Scalar(v)
	return nil
}

// ToHex renders v as 0x-prefixed big-endian hex.
func ToHex(v fr.Element) string {
	b := v.Bytes()
	return "0x" + hex.EncodeToString(b[:])
}

// FromHex parses a 0x-prefixed big-endian hex scalar.
func FromHex(s string) (fr.Element, error) {
	if !strings.HasPrefix(s, "0x") {
		return fr.Element{}, fmt.Errorf("scalar %q lacks 0x prefix", s)
	}
	b, err := hex.DecodeString(s[2:])
	if err != nil {
		return fr.Element{}, fmt.Errorf("scalar %q: %w", s, err)
	}
	if len(b) > fr.Bytes {
		return fr.Element{}, fmt.Errorf("scalar %q exceeds %d bytes", s, fr.Bytes)
	}
	var out fr.Element
	out.SetBytes(b)
	return out, nil
}
