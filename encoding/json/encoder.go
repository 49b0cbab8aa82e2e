package json

import (
	"encoding/json"
)

type Encoder struct{}

func NewEncoder() *Encoder {
	return &Encoder{}
}

// Marshal produces indented JSON so results stay readable in transcripts.
func (e *Encoder) Marshal(v any) ([]byte, error) {
	return json.MarshalIndent(v, "", "  ")
}

func (e *Encoder) Unmarshal(bs []byte, ret any) error {
	return json.Unmarshal(bs, ret)
}
