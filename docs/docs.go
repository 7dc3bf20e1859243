// Package docs holds the OpenAPI description of the control API.
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
        "/connect": {
            "post": {
                "description": "Acquires microphone and speaker and opens the live channel",
                "produces": ["application/json"],
                "tags": ["session"],
                "summary": "Start a voice session",
                "responses": {
                    "202": {"description": "Accepted", "schema": {"$ref": "#/definitions/voicesession.Status"}},
                    "412": {"description": "No API key configured", "schema": {"$ref": "#/definitions/shared.APIError"}},
                    "502": {"description": "Bad Gateway", "schema": {"$ref": "#/definitions/shared.APIError"}},
                    "503": {"description": "Audio device unavailable", "schema": {"$ref": "#/definitions/shared.APIError"}}
                }
            }
        },
        "/disconnect": {
            "post": {
                "produces": ["application/json"],
                "tags": ["session"],
                "summary": "End the voice session",
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/voicesession.Status"}}
                }
            }
        },
        "/events": {
            "get": {
                "description": "Upgrades to a websocket carrying state and transcript messages; accepts connect, disconnect and clear_transcript commands",
                "tags": ["session"],
                "summary": "Live event feed",
                "responses": {
                    "101": {"description": "Switching Protocols", "schema": {"$ref": "#/definitions/gateway.FeedMessage"}}
                }
            }
        },
        "/state": {
            "get": {
                "produces": ["application/json"],
                "tags": ["session"],
                "summary": "Connection state",
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/voicesession.Status"}}
                }
            }
        },
        "/transcript": {
            "get": {
                "produces": ["application/json"],
                "tags": ["transcript"],
                "summary": "Conversation transcript",
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/gateway.TranscriptResponse"}}
                }
            },
            "delete": {
                "tags": ["transcript"],
                "summary": "Clear the transcript",
                "responses": {
                    "204": {"description": "No Content"}
                }
            }
        },
        "/visualizer/{stream}": {
            "get": {
                "produces": ["application/json"],
                "tags": ["visualizer"],
                "summary": "Frequency bins and volume",
                "parameters": [
                    {"type": "string", "description": "input or output", "name": "stream", "in": "path", "required": true}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/visualizer.Snapshot"}},
                    "404": {"description": "Not Found", "schema": {"$ref": "#/definitions/shared.APIError"}}
                }
            }
        }
    },
    "definitions": {
        "capture.Stats": {
            "type": "object",
            "properties": {
                "captured": {"type": "integer"},
                "dropped": {"type": "integer"},
                "sent": {"type": "integer"}
            }
        },
        "gateway.FeedMessage": {
            "type": "object",
            "properties": {
                "type": {"type": "string", "enum": ["state", "transcript", "error"]},
                "state": {"type": "string", "enum": ["disconnected", "connecting", "connected", "error"]},
                "error": {"type": "string"},
                "entries": {"type": "array", "items": {"$ref": "#/definitions/transcript.Entry"}},
                "timestamp": {"type": "string"}
            }
        },
        "gateway.TranscriptResponse": {
            "type": "object",
            "properties": {
                "entries": {"type": "array", "items": {"$ref": "#/definitions/transcript.Entry"}}
            }
        },
        "shared.APIError": {
            "type": "object",
            "properties": {
                "code": {"type": "string"},
                "message": {"type": "string"}
            }
        },
        "transcript.Entry": {
            "type": "object",
            "properties": {
                "id": {"type": "string"},
                "is_partial": {"type": "boolean"},
                "sender": {"type": "string", "enum": ["user", "model"]},
                "text": {"type": "string"}
            }
        },
        "visualizer.Snapshot": {
            "type": "object",
            "properties": {
                "bins": {"type": "string", "format": "byte"},
                "volume": {"type": "number"}
            }
        },
        "voicesession.Status": {
            "type": "object",
            "properties": {
                "active_playback": {"type": "integer"},
                "capture": {"$ref": "#/definitions/capture.Stats"},
                "connection_id": {"type": "string"},
                "error": {"type": "string"},
                "state": {"type": "string", "enum": ["disconnected", "connecting", "connected", "error"]}
            }
        }
    }
}`

var SwaggerInfo = &swag.Spec{
	Version:          "1.0.0",
	Host:             "",
	BasePath:         "/api/v1",
	Schemes:          []string{},
	Title:            "Voice Client API",
	Description:      "Control API for the live voice session",
	InfoInstanceName: "swagger",
	SwaggerTemplate:  docTemplate,
	LeftDelim:        "{{",
	RightDelim:       "}}",
}

func init() {
	swag.Register(SwaggerInfo.InstanceName(), SwaggerInfo)
}
