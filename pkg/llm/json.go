package llm

import "github.com/bytedance/sonic"

// wire is the JSON codec for every request and response body. ConfigStd keeps
// encoding/json semantics (sorted map keys, HTML escaping, Marshaler support).
var wire = sonic.ConfigStd

func marshal(v any) ([]byte, error) { return wire.Marshal(v) }

func unmarshal(data []byte, v any) error { return wire.Unmarshal(data, v) }

func marshalIndent(v any) ([]byte, error) { return wire.MarshalIndent(v, "", "  ") }
