// Package openapi embeds the OpenAPI description of the floracore HTTP
// API so the server can serve its own contract.
package openapi

import _ "embed"

// APISpec contains the OpenAPI YAML document for the HTTP API.
//
//go:embed openapi.yaml
var APISpec []byte

// Spec returns a defensive copy of the embedded OpenAPI YAML.
func Spec() []byte {
	return append([]byte(nil), APISpec...)
}
