package extract

import (
	"encoding/json"

	"github.com/pkg/errors"
	"gopkg.in/yaml.v3"
)

// renderRecipeJSON converts a meta.yaml(.rendered) document to the JSON form
// the recipe payload table stores. yaml.v3 decodes mappings as
// map[string]interface{}, so the result round-trips through encoding/json
// without the map[interface{}]interface{} coercion yaml.v2 would require.
func renderRecipeJSON(rawYAML []byte) ([]byte, error) {
	var doc any
	if err := yaml.Unmarshal(rawYAML, &doc); err != nil {
		return nil, errors.Wrap(err, "parsing recipe yaml")
	}
	out, err := json.Marshal(doc)
	if err != nil {
		return nil, errors.Wrap(err, "encoding recipe json")
	}
	return out, nil
}
