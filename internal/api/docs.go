package api

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

// OpenAPIJSON serves an OpenAPI v3 document describing the gateway API.
func OpenAPIJSON(c *gin.Context) {
	spec := map[string]any{
		"openapi": "3.0.3",
		"info": map[string]any{
			"title":       "Medgate API",
			"version":     Version,
			"description": "Medical document RAG gateway: uploads, retrieval-augmented chat, consultations and agent monitoring.",
		},
		"components": map[string]any{
			"securitySchemes": map[string]any{
				"bearerAuth": map[string]any{"type": "http", "scheme": "bearer", "bearerFormat": "JWT"},
				"apiKeyAuth": map[string]any{"type": "apiKey", "in": "header", "name": "X-API-Key"},
			},
			"parameters": map[string]any{
				"IdempotencyKey": map[string]any{
					"name": "Idempotency-Key", "in": "header", "required": false,
					"description": "Provide for POST mutations to safely retry. First successful response is cached for 24h.",
					"schema":      map[string]any{"type": "string", "example": "req_6a84c5e9e2a14d0a"},
				},
			},
			"schemas": map[string]any{
				"Error": map[string]any{"type": "object", "properties": map[string]any{
					"error":  map[string]any{"type": "string"},
					"detail": map[string]any{"type": "string"},
				}},
				"UploadAccepted": map[string]any{"type": "object", "properties": map[string]any{
					"document_id":    map[string]any{"type": "string", "format": "uuid"},
					"filename":       map[string]any{"type": "string"},
					"content_length": map[string]any{"type": "integer", "format": "int64"},
					"status":         map[string]any{"type": "string", "enum": []any{"pending"}},
				}},
				"DocumentStatus": map[string]any{"type": "object", "properties": map[string]any{
					"status": map[string]any{"type": "string", "enum": []any{"pending", "processing", "completed", "failed"}},
					"chunks": map[string]any{"type": "integer"},
					"error":  map[string]any{"type": "string", "nullable": true},
				}},
				"ChatRequest": map[string]any{"type": "object", "required": []string{"query"}, "properties": map[string]any{
					"query":       map[string]any{"type": "string"},
					"history":     map[string]any{"type": "array", "items": map[string]any{"$ref": "#/components/schemas/ChatMessage"}},
					"top_k":       map[string]any{"type": "integer", "default": 5},
					"temperature": map[string]any{"type": "number", "default": 0.7},
				}},
				"ChatMessage": map[string]any{"type": "object", "properties": map[string]any{
					"role":    map[string]any{"type": "string"},
					"content": map[string]any{"type": "string"},
				}},
				"ChatResponse": map[string]any{"type": "object", "properties": map[string]any{
					"response":        map[string]any{"type": "string"},
					"sources":         map[string]any{"type": "array", "items": map[string]any{"type": "object"}},
					"processing_time": map[string]any{"type": "number"},
					"model":           map[string]any{"type": "string"},
					"tokens_used":     map[string]any{"type": "integer"},
					"status":          map[string]any{"type": "string"},
				}},
				"AgentSnapshot": map[string]any{"type": "object", "properties": map[string]any{
					"status":       map[string]any{"type": "string", "enum": []any{"healthy", "degraded", "disconnected"}},
					"can_chat":     map[string]any{"type": "boolean"},
					"can_start":    map[string]any{"type": "boolean"},
					"model_loaded": map[string]any{"type": "boolean"},
					"last_checked": map[string]any{"type": "string", "format": "date-time"},
					"latency_ms":   map[string]any{"type": "integer", "format": "int64"},
					"detail":       map[string]any{"type": "string", "nullable": true},
				}},
				"Session": map[string]any{"type": "object", "properties": map[string]any{
					"id":         map[string]any{"type": "string", "format": "uuid"},
					"agent":      map[string]any{"type": "string", "enum": []any{"txagent", "openai"}},
					"status":     map[string]any{"type": "string", "enum": []any{"active", "ended"}},
					"started_at": map[string]any{"type": "string", "format": "date-time"},
					"ended_at":   map[string]any{"type": "string", "format": "date-time", "nullable": true},
				}},
				"ServiceKeyInfo": map[string]any{"type": "object", "properties": map[string]any{
					"id":           map[string]any{"type": "string", "format": "uuid"},
					"name":         map[string]any{"type": "string"},
					"key_prefix":   map[string]any{"type": "string"},
					"created_at":   map[string]any{"type": "string", "format": "date-time"},
					"last_used_at": map[string]any{"type": "string", "format": "date-time", "nullable": true},
					"revoked_at":   map[string]any{"type": "string", "format": "date-time", "nullable": true},
				}},
			},
		},
		"security": []any{
			map[string]any{"bearerAuth": []any{}},
			map[string]any{"apiKeyAuth": []any{}},
		},
		"paths": map[string]any{
			"/api/documents": map[string]any{
				"post": map[string]any{
					"summary":    "Upload a document (multipart, single 'file' field, max 50 MiB)",
					"parameters": []any{map[string]any{"$ref": "#/components/parameters/IdempotencyKey"}},
					"requestBody": map[string]any{"required": true, "content": map[string]any{
						"multipart/form-data": map[string]any{"schema": map[string]any{"type": "object", "properties": map[string]any{
							"file": map[string]any{"type": "string", "format": "binary"},
						}}},
					}},
					"responses": map[string]any{
						"202": map[string]any{"description": "Accepted for processing", "content": map[string]any{"application/json": map[string]any{"schema": map[string]any{"$ref": "#/components/schemas/UploadAccepted"}}}},
						"400": map[string]any{"description": "Type or extension not allowed", "content": map[string]any{"application/json": map[string]any{"schema": map[string]any{"$ref": "#/components/schemas/Error"}}}},
						"413": map[string]any{"description": "File exceeds the size limit"},
					},
				},
				"get": map[string]any{"summary": "List my documents, newest first", "responses": map[string]any{"200": map[string]any{"description": "OK"}}},
			},
			"/api/documents/{id}": map[string]any{
				"parameters": []any{map[string]any{"name": "id", "in": "path", "required": true, "schema": map[string]any{"type": "string", "format": "uuid"}}},
				"get":        map[string]any{"summary": "Get document metadata and processing state", "responses": map[string]any{"200": map[string]any{"description": "OK"}, "404": map[string]any{"description": "Not found"}}},
				"delete":     map[string]any{"summary": "Delete document, chunks and stored file", "responses": map[string]any{"200": map[string]any{"description": "Deleted"}, "404": map[string]any{"description": "Not found"}}},
			},
			"/api/documents/{id}/status": map[string]any{
				"parameters": []any{map[string]any{"name": "id", "in": "path", "required": true, "schema": map[string]any{"type": "string", "format": "uuid"}}},
				"get":        map[string]any{"summary": "Poll processing status", "responses": map[string]any{"200": map[string]any{"description": "OK", "content": map[string]any{"application/json": map[string]any{"schema": map[string]any{"$ref": "#/components/schemas/DocumentStatus"}}}}}},
			},
			"/api/chat": map[string]any{
				"post": map[string]any{
					"summary":     "Retrieval-augmented chat over my documents",
					"requestBody": map[string]any{"required": true, "content": map[string]any{"application/json": map[string]any{"schema": map[string]any{"$ref": "#/components/schemas/ChatRequest"}}}},
					"responses": map[string]any{
						"200": map[string]any{"description": "OK", "content": map[string]any{"application/json": map[string]any{"schema": map[string]any{"$ref": "#/components/schemas/ChatResponse"}}}},
						"503": map[string]any{"description": "Agent unavailable"},
					},
				},
			},
			"/api/medical-consultation": map[string]any{
				"post": map[string]any{"summary": "Structured medical consultation with safety screening", "responses": map[string]any{"200": map[string]any{"description": "OK"}, "422": map[string]any{"description": "Validation failed"}}},
			},
			"/api/voice": map[string]any{
				"post": map[string]any{"summary": "Synthesize speech for a reply (audio/mpeg, or mock JSON)", "responses": map[string]any{"200": map[string]any{"description": "OK"}, "503": map[string]any{"description": "Voice provider not configured"}}},
			},
			"/api/voices": map[string]any{
				"get": map[string]any{"summary": "List available voices", "responses": map[string]any{"200": map[string]any{"description": "OK"}}},
			},
			"/api/agent/status": map[string]any{
				"get": map[string]any{"summary": "Latest agent health snapshot (SPA polls every 30s)", "responses": map[string]any{"200": map[string]any{"description": "OK", "content": map[string]any{"application/json": map[string]any{"schema": map[string]any{"$ref": "#/components/schemas/AgentSnapshot"}}}}}},
			},
			"/api/agent/status/refresh": map[string]any{
				"post": map[string]any{"summary": "Force an immediate agent health poll", "responses": map[string]any{"200": map[string]any{"description": "OK"}}},
			},
			"/api/sessions": map[string]any{
				"post": map[string]any{"summary": "Start an agent session", "responses": map[string]any{"201": map[string]any{"description": "Created"}, "409": map[string]any{"description": "Agent not ready or session already active"}}},
				"get":  map[string]any{"summary": "List my sessions, newest first", "responses": map[string]any{"200": map[string]any{"description": "OK"}}},
			},
			"/api/sessions/{id}/end": map[string]any{
				"parameters": []any{map[string]any{"name": "id", "in": "path", "required": true, "schema": map[string]any{"type": "string", "format": "uuid"}}},
				"post":       map[string]any{"summary": "End a session (idempotent)", "responses": map[string]any{"200": map[string]any{"description": "OK"}, "404": map[string]any{"description": "Not found"}}},
			},
			"/api/keys": map[string]any{
				"post": map[string]any{"summary": "Create a service key (plaintext shown once)", "responses": map[string]any{"201": map[string]any{"description": "Created"}}},
				"get":  map[string]any{"summary": "List my service keys", "responses": map[string]any{"200": map[string]any{"description": "OK", "content": map[string]any{"application/json": map[string]any{"schema": map[string]any{"type": "object", "properties": map[string]any{"keys": map[string]any{"type": "array", "items": map[string]any{"$ref": "#/components/schemas/ServiceKeyInfo"}}}}}}}}},
			},
			"/api/keys/{id}": map[string]any{
				"parameters": []any{map[string]any{"name": "id", "in": "path", "required": true, "schema": map[string]any{"type": "string", "format": "uuid"}}},
				"delete":     map[string]any{"summary": "Revoke a service key", "responses": map[string]any{"200": map[string]any{"description": "Revoked"}, "404": map[string]any{"description": "Not found"}}},
			},
			"/healthz": map[string]any{"get": map[string]any{"summary": "Liveness", "security": []any{}}},
			"/readyz":  map[string]any{"get": map[string]any{"summary": "Readiness (database and queue)", "security": []any{}}},
		},
	}
	c.JSON(http.StatusOK, spec)
}

// SwaggerUI serves a lightweight Swagger UI page referencing /openapi.json.
func SwaggerUI(c *gin.Context) {
	html := `<!DOCTYPE html>
<html>
<head>
  <meta charset="utf-8" />
  <meta name="viewport" content="width=device-width, initial-scale=1" />
  <title>Medgate API Docs</title>
  <link rel="stylesheet" href="https://unpkg.com/swagger-ui-dist@5/swagger-ui.css" />
  <style>body { margin:0 } .swagger-ui .topbar { display:none }</style>
  </head>
<body>
  <div id="swagger-ui"></div>
  <script src="https://unpkg.com/swagger-ui-dist@5/swagger-ui-bundle.js"></script>
  <script>
    window.ui = SwaggerUIBundle({
      url: '/openapi.json',
      dom_id: '#swagger-ui',
      presets: [SwaggerUIBundle.presets.apis],
      layout: 'BaseLayout'
    });
  </script>
</body>
</html>`
	c.Data(http.StatusOK, "text/html; charset=utf-8", []byte(html))
}
