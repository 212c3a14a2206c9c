package model

import "encoding/json"

// Query is an equality filter over record fields, sent to the store as JSON.
type Query map[string]interface{}

// InputQuery selects every record stamped with the given input id.
func InputQuery(inputID string) Query {
	return Query{FieldInputID: inputID}
}

// Encode renders the query in the store's JSON query syntax.
func (q Query) Encode() (string, error) {
	b, err := json.Marshal(map[string]interface{}(q))
	if err != nil {
		return "", err
	}
	return string(b), nil
}

// Matches reports whether every query field equals the record value.
func (q Query) Matches(values map[string]interface{}) bool {
	for k, want := range q {
		got, ok := values[k]
		if !ok || ScalarString(got) != ScalarString(want) {
			return false
		}
	}
	return true
}
