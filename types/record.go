package types

// Record is a single row/document from the external store, reduced to the
// fields the encryption core operates on. Values are field-sized text;
// absent fields are simply missing from the map (the store's NULL).
type Record struct {
	ID     string            `json:"id" bson:"_id"`
	Fields map[string]string `json:"fields" bson:"fields"`
}

// Clone returns a deep copy of the record. Encrypt/decrypt operations never
// mutate their input record.
func (r Record) Clone() Record {
	fields := make(map[string]string, len(r.Fields))
	for k, v := range r.Fields {
		fields[k] = v
	}
	return Record{ID: r.ID, Fields: fields}
}

// ScopeFilter restricts a migration run to records whose fields match all
// entries, e.g. {"organizationId": "..."} for a per-tenant run. A nil or
// empty filter matches every record.
type ScopeFilter map[string]string

// Matches reports whether the record satisfies the filter.
func (f ScopeFilter) Matches(r Record) bool {
	for k, v := range f {
		if r.Fields[k] != v {
			return false
		}
	}
	return true
}
