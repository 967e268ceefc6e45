package notifyexec

import "encoding/json"

// NoOpSerializer returns ctxt and rawPayload unchanged. It is the default
// Serializer when none is configured, matching the behavior of a transport
// whose context and payload are already in their final decoded form.
type NoOpSerializer struct{}

func (NoOpSerializer) DeserializeContext(raw any) (any, error) { return raw, nil }

func (NoOpSerializer) DeserializeEntity(_ any, rawPayload any) (any, error) {
	return rawPayload, nil
}

// JSONSerializer decodes ctxt and payloads that arrive as json.RawMessage (or
// []byte / string containing JSON) into generic Go values. Anything else is
// passed through unchanged, so a transport that already decodes JSON upstream
// can share the same Serializer without double-decoding.
//
// This is a system boundary: the payload shape is controlled by whatever
// published the notification, not by this module, so encoding/json (rather
// than one of this module's other dependencies) is the appropriate tool -
// see DESIGN.md.
type JSONSerializer struct{}

func (JSONSerializer) DeserializeContext(raw any) (any, error) {
	return decodeJSONish(raw)
}

func (JSONSerializer) DeserializeEntity(_ any, rawPayload any) (any, error) {
	return decodeJSONish(rawPayload)
}

func decodeJSONish(raw any) (any, error) {
	var data []byte
	switch v := raw.(type) {
	case nil:
		return nil, nil
	case json.RawMessage:
		data = v
	case []byte:
		data = v
	case string:
		data = []byte(v)
	default:
		return raw, nil
	}
	if len(data) == 0 {
		return nil, nil
	}
	var out any
	if err := json.Unmarshal(data, &out); err != nil {
		return nil, err
	}
	return out, nil
}
