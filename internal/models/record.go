package models

// Field is one extracted key/value pair.
type Field struct {
	Key   string `json:"key"`
	Value string `json:"value"`
}

// Record is the structured result extracted for one card side. Fields keep the
// order in which the model returned them.
type Record struct {
	Side   Side    `json:"side"`
	Fields []Field `json:"fields"`
}

// Map returns the record as a key/value map.
func (r Record) Map() map[string]string {
	m := make(map[string]string, len(r.Fields))
	for _, f := range r.Fields {
		m[f.Key] = f.Value
	}
	return m
}

// Get returns the value for key and whether it was present.
func (r Record) Get(key string) (string, bool) {
	for _, f := range r.Fields {
		if f.Key == key {
			return f.Value, true
		}
	}
	return "", false
}

// Len returns the number of fields.
func (r Record) Len() int {
	return len(r.Fields)
}
