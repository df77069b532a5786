package ir

// Raw carries a Value through encoding/json. A nil Value and a top-level
// null both marshal to null and decode back to a nil Value.
type Raw struct {
	Value Value
}

// MarshalJSON implements json.Marshaler.
func (r Raw) MarshalJSON() ([]byte, error) {
	return MarshalValue(r.Value)
}

// UnmarshalJSON implements json.Unmarshaler.
func (r *Raw) UnmarshalJSON(data []byte) error {
	v, err := unmarshalValue(data)
	if err != nil {
		return err
	}
	if _, ok := v.(Null); ok {
		v = nil
	}
	r.Value = v
	return nil
}
