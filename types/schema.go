package types

import (
	"fmt"
	"strings"

	"github.com/xeipuuv/gojsonschema"
)

const (
	addressPattern = `^0x[0-9a-fA-F]{40}$`
	hexPattern     = `^0x([0-9a-fA-F]{2})*$`
	hashPattern    = `^0x[0-9a-fA-F]{64}$`
)

var verifyRequestSchema = `{
	"$schema": "http://json-schema.org/draft-07/schema#",
	"type": "object",
	"required": ["signer", "signature"],
	"properties": {
		"signer":    {"type": "string", "pattern": "` + addressPattern + `"},
		"signature": {"type": "string", "pattern": "` + hexPattern + `"},
		"hash":      {"type": "string", "pattern": "` + hashPattern + `"},
		"message":   {"type": "string"},
		"typedData": {
			"type": "object",
			"required": ["types", "primaryType", "domain", "message"],
			"properties": {
				"types":       {"type": "object"},
				"primaryType": {"type": "string", "minLength": 1},
				"domain":      {"type": "object"},
				"message":     {"type": "object"}
			}
		}
	},
	"oneOf": [
		{"required": ["hash"]},
		{"required": ["message"]},
		{"required": ["typedData"]}
	]
}`

var wrapRequestSchema = `{
	"$schema": "http://json-schema.org/draft-07/schema#",
	"type": "object",
	"required": ["factory", "factoryCalldata", "signature"],
	"properties": {
		"factory":         {"type": "string", "pattern": "` + addressPattern + `"},
		"factoryCalldata": {"type": "string", "pattern": "` + hexPattern + `"},
		"signature":       {"type": "string", "pattern": "` + hexPattern + `"}
	}
}`

var unwrapRequestSchema = `{
	"$schema": "http://json-schema.org/draft-07/schema#",
	"type": "object",
	"required": ["signature"],
	"properties": {
		"signature": {"type": "string", "pattern": "` + hexPattern + `"}
	}
}`

var (
	verifySchema = mustCompile("verify", verifyRequestSchema)
	wrapSchema   = mustCompile("wrap", wrapRequestSchema)
	unwrapSchema = mustCompile("unwrap", unwrapRequestSchema)
)

func mustCompile(name, schema string) *gojsonschema.Schema {
	compiled, err := gojsonschema.NewSchema(gojsonschema.NewStringLoader(schema))
	if err != nil {
		panic(fmt.Sprintf("types: compiling %s schema: %v", name, err))
	}
	return compiled
}

// SchemaError lists every violation found in a request body
type SchemaError struct {
	Details []string
}

func (e *SchemaError) Error() string {
	return "invalid request: " + strings.Join(e.Details, "; ")
}

func validate(schema *gojsonschema.Schema, body []byte) error {
	result, err := schema.Validate(gojsonschema.NewBytesLoader(body))
	if err != nil {
		return &SchemaError{Details: []string{err.Error()}}
	}
	if result.Valid() {
		return nil
	}

	details := make([]string, 0, len(result.Errors()))
	for _, desc := range result.Errors() {
		details = append(details, desc.String())
	}
	return &SchemaError{Details: details}
}

// ValidateVerifyRequest checks a raw /verify body against its schema
func ValidateVerifyRequest(body []byte) error {
	return validate(verifySchema, body)
}

// ValidateWrapRequest checks a raw /wrap body against its schema
func ValidateWrapRequest(body []byte) error {
	return validate(wrapSchema, body)
}

// ValidateUnwrapRequest checks a raw /unwrap body against its schema
func ValidateUnwrapRequest(body []byte) error {
	return validate(unwrapSchema, body)
}
