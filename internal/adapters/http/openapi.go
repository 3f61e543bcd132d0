package http

import (
	"embed"
	"encoding/json"
	"fmt"
	"sync"

	"gopkg.in/yaml.v3"
)

//go:embed openapi.yaml
var openAPIYAML embed.FS

var (
	openAPIDoc     map[string]interface{}
	openAPIDocOnce sync.Once
	openAPIDocErr  error
)

// getOpenAPIJSON returns the OpenAPI document as JSON. A non-empty version
// replaces info.version.
func getOpenAPIJSON(version string) ([]byte, error) {
	openAPIDocOnce.Do(func() {
		openAPIDoc, openAPIDocErr = loadOpenAPI()
	})
	if openAPIDocErr != nil {
		return nil, openAPIDocErr
	}

	doc := openAPIDoc
	if version != "" {
		doc = withVersion(openAPIDoc, version)
	}
	return json.MarshalIndent(doc, "", "  ")
}

// loadOpenAPI decodes the embedded YAML document.
func loadOpenAPI() (map[string]interface{}, error) {
	data, err := openAPIYAML.ReadFile("openapi.yaml")
	if err != nil {
		return nil, err
	}

	var doc map[string]interface{}
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("decoding openapi.yaml: %w", err)
	}
	if _, ok := doc["openapi"]; !ok {
		return nil, fmt.Errorf("openapi.yaml: missing openapi field")
	}

	converted, ok := convertYAMLToJSON(doc).(map[string]interface{})
	if !ok {
		return nil, fmt.Errorf("openapi.yaml: unexpected document type")
	}
	return converted, nil
}

// withVersion returns a shallow copy of doc with info.version set.
func withVersion(doc map[string]interface{}, version string) map[string]interface{} {
	out := make(map[string]interface{}, len(doc))
	for k, v := range doc {
		out[k] = v
	}

	info := map[string]interface{}{}
	if orig, ok := doc["info"].(map[string]interface{}); ok {
		for k, v := range orig {
			info[k] = v
		}
	}
	info["version"] = version
	out["info"] = info
	return out
}

// convertYAMLToJSON recursively converts YAML map keys to strings.
// Nested mappings with non-string keys cannot be encoded as JSON.
func convertYAMLToJSON(v interface{}) interface{} {
	switch v := v.(type) {
	case map[string]interface{}:
		result := make(map[string]interface{}, len(v))
		for key, value := range v {
			result[key] = convertYAMLToJSON(value)
		}
		return result
	case map[interface{}]interface{}:
		result := make(map[string]interface{}, len(v))
		for key, value := range v {
			result[fmt.Sprint(key)] = convertYAMLToJSON(value)
		}
		return result
	case []interface{}:
		result := make([]interface{}, len(v))
		for i, value := range v {
			result[i] = convertYAMLToJSON(value)
		}
		return result
	default:
		return v
	}
}
