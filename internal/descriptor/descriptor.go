// Package descriptor converts face descriptors to and from their stored text form.
package descriptor

import (
	"encoding/json"
	"errors"
	"strconv"
	"strings"
)

// Length is the number of components in every face descriptor.
const Length = 128

var ErrMalformed = errors.New("malformed descriptor")

// Descriptor is a fixed-length face embedding.
type Descriptor []float32

// IsZero reports whether every component is zero.
func (d Descriptor) IsZero() bool {
	for _, v := range d {
		if v != 0 {
			return false
		}
	}
	return true
}

// Encode serializes d as a JSON array. Components are written with the
// shortest representation that parses back to the same float32.
func Encode(d Descriptor) string {
	buf := make([]byte, 0, len(d)*12+2)
	buf = append(buf, '[')
	for i, v := range d {
		if i > 0 {
			buf = append(buf, ',')
		}
		buf = strconv.AppendFloat(buf, float64(v), 'g', -1, 32)
	}
	buf = append(buf, ']')
	return string(buf)
}

// DecodeStrict parses s and requires exactly Length components.
func DecodeStrict(s string) (Descriptor, error) {
	if strings.TrimSpace(s) == "" {
		return nil, ErrMalformed
	}
	var d Descriptor
	if err := json.Unmarshal([]byte(s), &d); err != nil {
		return nil, errors.Join(ErrMalformed, err)
	}
	if len(d) != Length {
		return nil, ErrMalformed
	}
	return d, nil
}

// Decode is the lenient form of DecodeStrict used for matching: anything
// that cannot be parsed yields a zero vector of Length components.
func Decode(s string) Descriptor {
	d, err := DecodeStrict(s)
	if err != nil {
		return make(Descriptor, Length)
	}
	return d
}
