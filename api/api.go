// Package api holds the OpenAPI contract served at /openapi.yml and enforced on requests.
package api

import _ "embed"

//go:embed openapi.yml
var OpenAPISpec []byte
