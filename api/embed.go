// Package api holds the OpenAPI description of the JSON API.
package api

import _ "embed"

// OpenAPI is the api/openapi.yaml document served at /docs/openapi.yaml.
//
//go:embed openapi.yaml
var OpenAPI []byte
