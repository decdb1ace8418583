package httpapi

import (
	"github.com/xeipuuv/gojsonschema"
)

// startSettingsSchema validates the POST /api/start request body before it
// is decoded into domain.JobSettings: preset and language_hint must be
// strings if present, engine_options must be a flat string map.
var startSettingsSchema = gojsonschema.NewStringLoader(`{
	"type": "object",
	"additionalProperties": false,
	"properties": {
		"preset": {"type": "string"},
		"language_hint": {"type": "string"},
		"engine_options": {
			"type": "object",
			"additionalProperties": {"type": "string"}
		}
	}
}`)

// validateStartSettings checks raw against startSettingsSchema and returns
// the joined validation errors, if any.
func validateStartSettings(raw []byte) error {
	if len(raw) == 0 {
		return nil
	}
	result, err := gojsonschema.Validate(startSettingsSchema, gojsonschema.NewBytesLoader(raw))
	if err != nil {
		return err
	}
	if result.Valid() {
		return nil
	}
	msg := "invalid settings:"
	for _, e := range result.Errors() {
		msg += " " + e.String() + ";"
	}
	return schemaError(msg)
}

type schemaError string

func (e schemaError) Error() string { return string(e) }
