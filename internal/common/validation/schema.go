// Package validation checks notification metadata against per-type JSON
// schemas so the dispatcher only ever carries well-formed payloads.
package validation

import (
	"fmt"
	"strings"

	"github.com/xeipuuv/gojsonschema"
)

// typeSchemas maps a notification type to the JSON schema its metadata bag
// must satisfy. Metadata is optional everywhere, so the schemas constrain
// only the types of fields that are present; no field is required. Types
// without an entry accept any object.
var typeSchemas = map[string]map[string]interface{}{
	"health_alert": {
		"type": "object",
		"properties": map[string]interface{}{
			"metric":    map[string]interface{}{"type": "string"},
			"value":     map[string]interface{}{"type": "number"},
			"threshold": map[string]interface{}{"type": "number"},
			"unit":      map[string]interface{}{"type": "string"},
		},
	},
	"appointment_reminder": {
		"type": "object",
		"properties": map[string]interface{}{
			"appointmentId": map[string]interface{}{"type": "string"},
			"startsAt":      map[string]interface{}{"type": "string"},
			"location":      map[string]interface{}{"type": "string"},
		},
	},
	"medication_reminder": {
		"type": "object",
		"properties": map[string]interface{}{
			"medication": map[string]interface{}{"type": "string"},
			"dosage":     map[string]interface{}{"type": "string"},
		},
	},
	"report_ready": {
		"type": "object",
		"properties": map[string]interface{}{
			"reportId":   map[string]interface{}{"type": "string"},
			"reportName": map[string]interface{}{"type": "string"},
		},
	},
}

// ValidateMetadata validates a metadata bag against the schema registered
// for the notification type. A nil or empty bag is always valid; only
// fields that are present are checked.
func ValidateMetadata(notificationType string, metadata map[string]interface{}) error {
	schemaMap, ok := typeSchemas[notificationType]
	if !ok {
		return nil
	}
	if metadata == nil {
		metadata = map[string]interface{}{}
	}

	schemaLoader := gojsonschema.NewGoLoader(schemaMap)
	documentLoader := gojsonschema.NewGoLoader(metadata)

	result, err := gojsonschema.Validate(schemaLoader, documentLoader)
	if err != nil {
		return fmt.Errorf("schema validation: %w", err)
	}
	if !result.Valid() {
		msgs := make([]string, 0, len(result.Errors()))
		for _, e := range result.Errors() {
			msgs = append(msgs, e.String())
		}
		return fmt.Errorf("invalid metadata: %s", strings.Join(msgs, "; "))
	}
	return nil
}

// HasSchema reports whether a type carries a registered metadata schema.
func HasSchema(notificationType string) bool {
	_, ok := typeSchemas[notificationType]
	return ok
}
