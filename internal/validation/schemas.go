package validation

import (
	"encoding/json"
	"fmt"

	"github.com/xeipuuv/gojsonschema"
)

// SchemaValidator handles JSON schema validation for API request bodies.
// Schemas are compiled from the inline definitions below at construction.
type SchemaValidator struct {
	schemas map[string]*gojsonschema.Schema
}

// Inline schema sources. Small enough that embedding files would only add
// indirection.
var schemaSources = map[string]string{
	"outfit-feedback": `{
		"$schema": "http://json-schema.org/draft-07/schema#",
		"type": "object",
		"properties": {
			"accepted": {"type": "boolean"},
			"rating": {"type": "integer", "minimum": 1, "maximum": 5},
			"comfort_rating": {"type": "integer", "minimum": 1, "maximum": 5},
			"style_rating": {"type": "integer", "minimum": 1, "maximum": 5},
			"comment": {"type": "string", "maxLength": 2000},
			"worn_at": {"type": "string"},
			"worn_with_modifications": {"type": "boolean"},
			"modification_notes": {"type": "string", "maxLength": 2000},
			"actually_worn": {"type": "boolean"},
			"wore_instead_items": {
				"type": "array",
				"items": {"type": "string", "format": "uuid"},
				"maxItems": 20
			}
		},
		"additionalProperties": false
	}`,
	"recommendation-request": `{
		"$schema": "http://json-schema.org/draft-07/schema#",
		"type": "object",
		"required": ["occasion"],
		"properties": {
			"occasion": {"type": "string", "minLength": 1, "maxLength": 100},
			"weather": {
				"type": "object",
				"required": ["temperature"],
				"properties": {
					"temperature": {"type": "number"},
					"feels_like": {"type": "number"},
					"condition": {"type": "string"},
					"precipitation_chance": {"type": "integer", "minimum": 0, "maximum": 100}
				},
				"additionalProperties": false
			},
			"exclude_items": {
				"type": "array",
				"items": {"type": "string", "format": "uuid"},
				"maxItems": 100
			},
			"include_items": {
				"type": "array",
				"items": {"type": "string", "format": "uuid"},
				"maxItems": 10
			}
		},
		"additionalProperties": false
	}`,
	"auth-request": `{
		"$schema": "http://json-schema.org/draft-07/schema#",
		"type": "object",
		"required": ["api_key"],
		"properties": {
			"api_key": {"type": "string", "minLength": 1},
			"user_id": {"type": "string", "format": "uuid"}
		},
		"additionalProperties": false
	}`,
}

// NewSchemaValidator compiles the inline schemas.
func NewSchemaValidator() (*SchemaValidator, error) {
	sv := &SchemaValidator{
		schemas: make(map[string]*gojsonschema.Schema, len(schemaSources)),
	}

	for name, source := range schemaSources {
		schema, err := gojsonschema.NewSchema(gojsonschema.NewStringLoader(source))
		if err != nil {
			return nil, fmt.Errorf("failed to compile schema %s: %w", name, err)
		}
		sv.schemas[name] = schema
	}

	return sv, nil
}

// ValidateFeedback validates an outfit feedback body.
func (sv *SchemaValidator) ValidateFeedback(data interface{}) *ValidationResult {
	return sv.validate("outfit-feedback", data)
}

// ValidateRecommendationRequest validates a recommendation request body.
func (sv *SchemaValidator) ValidateRecommendationRequest(data interface{}) *ValidationResult {
	return sv.validate("recommendation-request", data)
}

// ValidateAuthRequest validates a token request body.
func (sv *SchemaValidator) ValidateAuthRequest(data interface{}) *ValidationResult {
	return sv.validate("auth-request", data)
}

func (sv *SchemaValidator) validate(schemaName string, data interface{}) *ValidationResult {
	schema, exists := sv.schemas[schemaName]
	if !exists {
		return &ValidationResult{
			Valid: false,
			Errors: []ValidationError{{
				Field:   "schema",
				Message: fmt.Sprintf("Schema '%s' not found", schemaName),
				Code:    "SCHEMA_NOT_FOUND",
			}},
		}
	}

	var documentLoader gojsonschema.JSONLoader
	switch v := data.(type) {
	case string:
		documentLoader = gojsonschema.NewStringLoader(v)
	case []byte:
		documentLoader = gojsonschema.NewBytesLoader(v)
	default:
		jsonBytes, err := json.Marshal(data)
		if err != nil {
			return &ValidationResult{
				Valid: false,
				Errors: []ValidationError{{
					Field:   "data",
					Message: fmt.Sprintf("Failed to marshal data to JSON: %v", err),
					Code:    "JSON_MARSHAL_ERROR",
				}},
			}
		}
		documentLoader = gojsonschema.NewBytesLoader(jsonBytes)
	}

	result, err := schema.Validate(documentLoader)
	if err != nil {
		return &ValidationResult{
			Valid: false,
			Errors: []ValidationError{{
				Field:   "validation",
				Message: fmt.Sprintf("Validation error: %v", err),
				Code:    "VALIDATION_ERROR",
			}},
		}
	}

	validationResult := &ValidationResult{
		Valid:  result.Valid(),
		Errors: make([]ValidationError, 0),
	}

	if !result.Valid() {
		for _, err := range result.Errors() {
			validationResult.Errors = append(validationResult.Errors, ValidationError{
				Field:   err.Field(),
				Message: err.Description(),
				Code:    "VALIDATION_ERROR",
				Value:   err.Value(),
			})
		}
	}

	return validationResult
}

// ValidationResult represents the result of a validation operation
type ValidationResult struct {
	Valid  bool              `json:"valid"`
	Errors []ValidationError `json:"errors,omitempty"`
}

// ValidationError represents a single validation error
type ValidationError struct {
	Field   string      `json:"field"`
	Message string      `json:"message"`
	Code    string      `json:"code"`
	Value   interface{} `json:"value,omitempty"`
}

func (ve ValidationError) Error() string {
	return fmt.Sprintf("validation error in field '%s': %s", ve.Field, ve.Message)
}

// ToAPIError converts validation errors to the API error envelope.
func (vr *ValidationResult) ToAPIError() map[string]interface{} {
	if vr.Valid {
		return nil
	}

	errorDetails := make(map[string]interface{})
	errorDetails["validationErrors"] = vr.Errors

	fieldErrors := make(map[string][]string)
	for _, err := range vr.Errors {
		if err.Field != "" {
			fieldErrors[err.Field] = append(fieldErrors[err.Field], err.Message)
		}
	}
	if len(fieldErrors) > 0 {
		errorDetails["fieldErrors"] = fieldErrors
	}

	return map[string]interface{}{
		"error": map[string]interface{}{
			"code":    "VALIDATION_ERROR",
			"message": "Request validation failed",
			"details": errorDetails,
		},
	}
}

// ValidateJSONString validates a JSON string against a named schema.
func (sv *SchemaValidator) ValidateJSONString(schemaName, jsonString string) *ValidationResult {
	return sv.validate(schemaName, jsonString)
}

// SchemaExists checks if a schema with the given name is loaded.
func (sv *SchemaValidator) SchemaExists(name string) bool {
	_, exists := sv.schemas[name]
	return exists
}
