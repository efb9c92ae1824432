// Package docs is generated by swag from the @Summary/@Router
// annotations in internal/transport/httpapi; it registers the
// swagger.json template that httpSwagger.WrapHandler serves under
// GET /swagger/, the same docs-package-imported-for-side-effects
// pattern the teacher wires in cmd/api/main.go.
package docs

import "github.com/swaggo/swag"

const docTemplate = `{
    "schemes": {{ marshal .Schemes }},
    "swagger": "2.0",
    "info": {
        "description": "{{escape .Description}}",
        "title": "{{.Title}}",
        "contact": {},
        "version": "{{.Version}}"
    },
    "host": "{{.Host}}",
    "basePath": "{{.BasePath}}",
    "paths": {
        "/keywords/hot": {
            "get": {
                "summary": "Ranked hot keywords",
                "parameters": [
                    {"type": "integer", "description": "result limit", "name": "n", "in": "query"}
                ],
                "responses": {"200": {"description": "OK"}}
            }
        },
        "/topics": {
            "get": {
                "summary": "Clustered topics",
                "parameters": [
                    {"type": "integer", "description": "result limit", "name": "n", "in": "query"}
                ],
                "responses": {"200": {"description": "OK"}}
            }
        },
        "/topics/{id}/hooks": {
            "get": {
                "summary": "Content hooks for a topic",
                "parameters": [
                    {"type": "string", "description": "topic id", "name": "id", "in": "path", "required": true}
                ],
                "responses": {"200": {"description": "OK"}, "404": {"description": "Not Found"}}
            }
        },
        "/keywords/details/{keyword}": {
            "get": {
                "summary": "Fused score, raw records, and history for one keyword",
                "parameters": [
                    {"type": "string", "description": "keyword", "name": "keyword", "in": "path", "required": true}
                ],
                "responses": {"200": {"description": "OK"}, "404": {"description": "Not Found"}}
            }
        },
        "/status": {
            "get": {
                "summary": "Controller health and last-refresh status",
                "responses": {"200": {"description": "OK"}}
            }
        },
        "/refresh": {
            "post": {
                "summary": "Trigger an immediate refresh",
                "description": "Coalesces with any in-flight run and returns the resulting snapshot's hot keywords, or 504 if the wait exceeds the server's refresh timeout.",
                "responses": {"200": {"description": "OK"}, "504": {"description": "Gateway Timeout"}}
            }
        }
    }
}`

// SwaggerInfo holds exported swagger info so clients can modify it.
var SwaggerInfo = &swag.Spec{
	Version:          "1.0",
	Host:             "localhost:8080",
	BasePath:         "/",
	Schemes:          []string{},
	Title:            "Trend Aggregator API",
	Description:      "Real-time multi-source trend aggregation and topic clustering.",
	InfoInstanceName: "swagger",
	SwaggerTemplate:  docTemplate,
	LeftDelim:        "{{",
	RightDelim:       "}}",
}

func init() {
	swag.Register(SwaggerInfo.InstanceName(), SwaggerInfo)
}
