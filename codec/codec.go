// Package codec centralizes encoding of persisted index state.
//
// Persisted blobs (partitions, scorers, index metadata) are self-describing:
// they record the codec name alongside the payload, and the reader selects
// the codec by that name. Changing the default codec therefore never breaks
// existing data.
package codec

// Codec encodes/decodes values.
// Implementations must be safe for concurrent use.
type Codec interface {
	Marshal(v any) ([]byte, error)
	Unmarshal(data []byte, v any) error
	Name() string
}

// ByName returns a built-in codec by its stable name.
func ByName(name string) (Codec, bool) {
	switch name {
	case "json":
		return JSON{}, true
	case "go-json":
		return GoJSON{}, true
	default:
		return nil, false
	}
}
