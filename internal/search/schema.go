package search

import (
	"encoding/json"
	"fmt"
)

type schemaField struct {
	Name       string `json:"name"`
	Type       string `json:"type"`
	Key        bool   `json:"key,omitempty"`
	Searchable bool   `json:"searchable"`
}

type indexSchema struct {
	Name   string        `json:"name"`
	Fields []schemaField `json:"fields"`
}

// IndexSchema builds the schema document for the video-terms index: the
// content identifier as the key plus a searchable string collection of
// terms.
func IndexSchema(name string) (json.RawMessage, error) {
	schema := indexSchema{
		Name: name,
		Fields: []schemaField{
			{Name: "key", Type: "Edm.String", Key: true, Searchable: false},
			{Name: "terms", Type: "Collection(Edm.String)", Searchable: true},
		},
	}

	data, err := json.Marshal(schema)
	if err != nil {
		return nil, fmt.Errorf("marshal index schema: %w", err)
	}
	return data, nil
}
