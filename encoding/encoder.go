// Package encoding selects the wire format for tool dispatch results.
package encoding

import (
	"github.com/cockroachdb/errors"
	jsonenc "github.com/stratumsec/toolgate/encoding/json"
	toonenc "github.com/stratumsec/toolgate/encoding/toon"
	yamlenc "github.com/stratumsec/toolgate/encoding/yaml"
)

// ResultEncoder serializes tool results for inclusion in model context.
// Implementations must round-trip objects, arrays, scalars and nested
// combinations without loss.
type ResultEncoder interface {
	Marshal(v any) ([]byte, error)
	Unmarshal([]byte, any) error
}

type Mode = string

const (
	// ModeJSON is the verbose, self-describing format.
	ModeJSON Mode = "json"
	// ModeTOON is a compact indentation-based format that folds homogeneous
	// object arrays into tabular rows. It trades readability for tokens.
	ModeTOON Mode = "toon"
	ModeYAML Mode = "yaml"
)

// ModeDefault is the default mode for the encoder.
// Allow to override in apps
var ModeDefault = ModeJSON

func PredefinedResultEncoder(mode Mode) (ResultEncoder, error) {
	switch mode {
	case ModeJSON:
		return jsonenc.NewEncoder(), nil
	case ModeTOON:
		return toonenc.NewEncoder(), nil
	case ModeYAML:
		return yamlenc.NewEncoder(), nil
	default:
		return nil, errors.Newf("no predefined encoder: %q", mode)
	}
}
