/*
validate.go - Request body validation

Every JSON body is checked against an embedded JSON Schema before it is
decoded. Schema failures become a finance.ValidationError keyed by field
name, so they reach the client through the same 400 path as domain
validation. Domain rules (two decimal places, positive amounts, valid
category refs) are still enforced by the finance package; schemas only
guard shape and types.

Schemas live in schemas/<name>.schema.json and are referenced by <name>.
*/
package api

import (
	"embed"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"net/http"
	"strings"

	"github.com/warp/finance-engine/finance"
	"github.com/xeipuuv/gojsonschema"
)

//go:embed schemas/*.schema.json
var schemaFiles embed.FS

const maxBodyBytes = 1 << 20

type schemaSet map[string]*gojsonschema.Schema

func loadSchemas() (schemaSet, error) {
	entries, err := fs.ReadDir(schemaFiles, "schemas")
	if err != nil {
		return nil, err
	}

	set := make(schemaSet, len(entries))
	for _, e := range entries {
		raw, err := schemaFiles.ReadFile("schemas/" + e.Name())
		if err != nil {
			return nil, err
		}
		s, err := gojsonschema.NewSchema(gojsonschema.NewBytesLoader(raw))
		if err != nil {
			return nil, fmt.Errorf("schema %s: %w", e.Name(), err)
		}
		set[strings.TrimSuffix(e.Name(), ".schema.json")] = s
	}
	return set, nil
}

// decode reads the request body, validates it against the named schema and
// unmarshals it into dst.
func (s schemaSet) decode(r *http.Request, name string, dst any) error {
	schema, ok := s[name]
	if !ok {
		return fmt.Errorf("unknown schema %q", name)
	}

	body, err := io.ReadAll(io.LimitReader(r.Body, maxBodyBytes+1))
	if err != nil {
		return (&finance.ValidationError{}).Add("body", "could not be read")
	}
	if len(body) > maxBodyBytes {
		return (&finance.ValidationError{}).Add("body", "is too large")
	}
	if len(strings.TrimSpace(string(body))) == 0 {
		return (&finance.ValidationError{}).Add("body", "is required")
	}

	res, err := schema.Validate(gojsonschema.NewBytesLoader(body))
	if err != nil {
		return (&finance.ValidationError{}).Add("body", "must be valid JSON")
	}
	if !res.Valid() {
		v := &finance.ValidationError{}
		for _, e := range res.Errors() {
			v.Add(fieldName(e), e.Description())
		}
		return v
	}

	if err := json.Unmarshal(body, dst); err != nil {
		return (&finance.ValidationError{}).Add("body", unmarshalMessage(err))
	}
	return nil
}

// fieldName names the offending property. Required-property errors are
// reported against the parent object, so the missing name is appended.
func fieldName(e gojsonschema.ResultError) string {
	field := e.Field()
	if field == "(root)" {
		field = ""
	}
	if e.Type() == "required" {
		if p, ok := e.Details()["property"].(string); ok && !strings.HasSuffix(field, p) {
			if field == "" {
				return p
			}
			return field + "." + p
		}
	}
	if field == "" {
		return "body"
	}
	return field
}

func unmarshalMessage(err error) string {
	var typeErr *json.UnmarshalTypeError
	if errors.As(err, &typeErr) && typeErr.Field != "" {
		return fmt.Sprintf("field %s has the wrong type", typeErr.Field)
	}
	return "is malformed"
}
