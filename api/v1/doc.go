// Package apiv1 embeds the OpenAPI specification of the admin HTTP API.
package apiv1

import _ "embed"

// Spec contains the OpenAPI 3 JSON document for the /v1 admin routes. It is
// embedded at compile time and served by ipcd at /v1/openapi.json.
//
//go:embed openapi.json
var Spec []byte
