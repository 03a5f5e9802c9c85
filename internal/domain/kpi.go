package domain

import (
	"bytes"
	"encoding/json"
)

// KPI is one named indicator. Value is a fraction in [0,1] (rendered as a
// percentage), another number, a string, or nil when it could not be computed.
type KPI struct {
	Name  string
	Value any
}

// KPIs keeps indicators in the order they were computed.
type KPIs []KPI

func (k KPIs) Get(name string) (any, bool) {
	for _, e := range k {
		if e.Name == name {
			return e.Value, true
		}
	}
	return nil, false
}

func (k KPIs) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte('{')
	for i, e := range k {
		if i > 0 {
			buf.WriteByte(',')
		}
		name, err := json.Marshal(e.Name)
		if err != nil {
			return nil, err
		}
		val, err := json.Marshal(e.Value)
		if err != nil {
			return nil, err
		}
		buf.Write(name)
		buf.WriteByte(':')
		buf.Write(val)
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}
