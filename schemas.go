package main

import (
	"bytes"
	"embed"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"path"

	"github.com/santhosh-tekuri/jsonschema/v5"

	"climb/internal/engine"
)

//go:embed schemas/*.json
var schemaFS embed.FS

const (
	schemaRegister   = "register.schema.json"
	schemaCredential = "credential.schema.json"
	schemaAdvance    = "advance.schema.json"
)

const maxBodyBytes = 16 << 10

// requestSchemas holds the compiled request body schemas by file name.
type requestSchemas map[string]*jsonschema.Schema

func compileSchemas() (requestSchemas, error) {
	c := jsonschema.NewCompiler()
	names := []string{schemaRegister, schemaCredential, schemaAdvance}
	for _, name := range names {
		b, err := schemaFS.ReadFile(path.Join("schemas", name))
		if err != nil {
			return nil, fmt.Errorf("read schema %s: %w", name, err)
		}
		if err := c.AddResource(path.Join("schemas", name), bytes.NewReader(b)); err != nil {
			return nil, fmt.Errorf("add schema %s: %w", name, err)
		}
	}
	out := requestSchemas{}
	for _, name := range names {
		s, err := c.Compile(path.Join("schemas", name))
		if err != nil {
			return nil, fmt.Errorf("compile %s: %w", name, err)
		}
		out[name] = s
	}
	return out, nil
}

// decode validates the request body against the named schema and then
// unmarshals it into dst. Failures are input errors.
func (rs requestSchemas) decode(r *http.Request, name string, dst any) error {
	body, err := io.ReadAll(io.LimitReader(r.Body, maxBodyBytes))
	if err != nil {
		return inputError("Could not read request body.")
	}
	var raw any
	if err := json.Unmarshal(body, &raw); err != nil {
		return inputError("Request body must be valid JSON.")
	}
	if err := rs[name].Validate(raw); err != nil {
		return inputError(fmt.Sprintf("Invalid request: %v", err))
	}
	if err := json.Unmarshal(body, dst); err != nil {
		return inputError("Request body does not match the expected shape.")
	}
	return nil
}

func inputError(msg string) error {
	return &engine.Error{Code: engine.CodeInvalidInput, Message: msg}
}
