// Copyright 2026 Teradata
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//	http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.
package palette

import (
	"fmt"

	"github.com/xeipuuv/gojsonschema"
)

// ValidateInput validates tool input against the tool's declared JSON Schema.
// A tool without a schema accepts any input.
func ValidateInput(tool Tool, input map[string]interface{}) error {
	schema := tool.InputSchema()
	if schema == nil {
		return nil
	}

	schemaLoader := gojsonschema.NewGoLoader(NormalizeSchema(schema))
	inputLoader := gojsonschema.NewGoLoader(input)

	result, err := gojsonschema.Validate(schemaLoader, inputLoader)
	if err != nil {
		return fmt.Errorf("schema validation failed: %w", err)
	}

	if !result.Valid() {
		errs := make([]string, len(result.Errors()))
		for i, verr := range result.Errors() {
			errs[i] = verr.String()
		}
		return fmt.Errorf("invalid arguments for %s: %v", tool.Name(), errs)
	}

	return nil
}

// NormalizeSchema ensures a JSON Schema complies with JSON Schema draft 2020-12.
// Some providers strictly validate tool schemas, so malformed ones are repaired
// rather than rejected.
//
// Common issues fixed:
// - Object types with nil properties -> empty map {}
// - Missing type fields -> inferred from structure
// - Nested objects with nil properties -> recursively normalized
func NormalizeSchema(schema *JSONSchema) *JSONSchema {
	if schema == nil {
		return nil
	}

	if schema.Type == "object" {
		if schema.Properties == nil {
			schema.Properties = make(map[string]*JSONSchema)
		}
		for key, prop := range schema.Properties {
			schema.Properties[key] = NormalizeSchema(prop)
		}
	}

	if schema.Type == "array" && schema.Items != nil {
		schema.Items = NormalizeSchema(schema.Items)
	}

	// Infer type if missing but structure is clear
	if schema.Type == "" {
		if schema.Properties != nil {
			schema.Type = "object"
			for key, prop := range schema.Properties {
				schema.Properties[key] = NormalizeSchema(prop)
			}
		} else if schema.Items != nil {
			schema.Type = "array"
			schema.Items = NormalizeSchema(schema.Items)
		} else if len(schema.Enum) > 0 {
			schema.Type = "string"
		}
	}

	return schema
}
