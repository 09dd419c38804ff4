// Package docs registers the API description served at /swagger.
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
        "/boards": {
            "post": {
                "security": [{"BearerAuth": []}],
                "description": "The board starts with default settings and no columns; open a stream to edit it",
                "consumes": ["application/json"],
                "produces": ["application/json"],
                "tags": ["Boards"],
                "summary": "Create a board owned by the caller",
                "parameters": [
                    {"description": "Board", "name": "board", "in": "body", "required": true, "schema": {"$ref": "#/definitions/handler.CreateBoardRequest"}}
                ],
                "responses": {
                    "201": {"description": "Created", "schema": {"type": "object"}},
                    "400": {"description": "Bad Request"},
                    "422": {"description": "Unprocessable Entity", "schema": {"$ref": "#/definitions/handler.ValidationErrorResponse"}}
                }
            }
        },
        "/boards/{id}/stream": {
            "get": {
                "security": [{"BearerAuth": []}],
                "description": "Streams server-sent events: connected, view, presence, notice, terminated",
                "produces": ["text/event-stream"],
                "tags": ["Sessions"],
                "summary": "Open a live board session",
                "parameters": [
                    {"type": "string", "description": "Board ID", "name": "id", "in": "path", "required": true},
                    {"type": "string", "description": "Token for clients that cannot set headers", "name": "access_token", "in": "query"}
                ],
                "responses": {
                    "200": {"description": "OK"},
                    "400": {"description": "Bad Request"},
                    "403": {"description": "Forbidden"},
                    "404": {"description": "Not Found"}
                }
            }
        },
        "/boards/{id}/sessions/{conn}/intents": {
            "post": {
                "security": [{"BearerAuth": []}],
                "consumes": ["application/json"],
                "produces": ["application/json"],
                "tags": ["Sessions"],
                "summary": "Run an intent in a live session",
                "parameters": [
                    {"type": "string", "description": "Board ID", "name": "id", "in": "path", "required": true},
                    {"type": "string", "description": "Connection ID", "name": "conn", "in": "path", "required": true},
                    {"description": "Intent", "name": "intent", "in": "body", "required": true, "schema": {"$ref": "#/definitions/session.Intent"}}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/session.Reply"}},
                    "400": {"description": "Bad Request"},
                    "403": {"description": "Forbidden"},
                    "404": {"description": "Not Found"},
                    "409": {"description": "Conflict"},
                    "422": {"description": "Unprocessable Entity", "schema": {"$ref": "#/definitions/handler.ValidationErrorResponse"}},
                    "503": {"description": "Service Unavailable"}
                }
            }
        },
        "/users/suggest": {
            "get": {
                "security": [{"BearerAuth": []}],
                "produces": ["application/json"],
                "tags": ["Users"],
                "summary": "Suggest users by name or email prefix",
                "parameters": [
                    {"type": "string", "description": "Prefix", "name": "q", "in": "query", "required": true}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"type": "array", "items": {"$ref": "#/definitions/model.User"}}}
                }
            }
        }
    },
    "definitions": {
        "handler.CreateBoardRequest": {
            "type": "object",
            "properties": {
                "name": {"type": "string"}
            }
        },
        "session.Intent": {
            "type": "object",
            "properties": {
                "event": {"type": "string"},
                "payload": {"type": "object", "additionalProperties": {"type": "string"}}
            }
        },
        "session.Reply": {
            "type": "object",
            "properties": {
                "card": {"type": "object"},
                "users": {"type": "array", "items": {"$ref": "#/definitions/model.User"}}
            }
        },
        "handler.ValidationErrorResponse": {
            "type": "object",
            "properties": {
                "error": {"type": "string"},
                "fields": {"type": "object", "additionalProperties": {"type": "string"}}
            }
        },
        "model.User": {
            "type": "object",
            "properties": {
                "id": {"type": "string"},
                "email": {"type": "string"},
                "name": {"type": "string"}
            }
        }
    },
    "securityDefinitions": {
        "BearerAuth": {
            "description": "Type \"Bearer\" followed by a space and JWT token.",
            "type": "apiKey",
            "name": "Authorization",
            "in": "header"
        }
    }
}`

// SwaggerInfo holds exported Swagger Info so clients can modify it
var SwaggerInfo = &swag.Spec{
	Version:          "1.0",
	Host:             "localhost:8080",
	BasePath:         "/",
	Schemes:          []string{"http"},
	Title:            "Retro Board API",
	Description:      "Live collaborative retrospective boards.",
	InfoInstanceName: "swagger",
	SwaggerTemplate:  docTemplate,
	LeftDelim:        "{{",
	RightDelim:       "}}",
}

func init() {
	swag.Register(SwaggerInfo.InstanceName(), SwaggerInfo)
}
