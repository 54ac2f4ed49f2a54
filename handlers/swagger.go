package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

// RegisterSwagger registers minimal Swagger/OpenAPI endpoints for the collaboration service.
// - GET /swagger/index.html  -> a small HTML page that loads the OpenAPI JSON
// - GET /swagger/doc.json    -> machine-readable OpenAPI JSON
func RegisterSwagger(rg *gin.Engine) {
	rg.GET("/swagger/index.html", func(c *gin.Context) {
		c.Header("Content-Type", "text/html; charset=utf-8")
		c.String(http.StatusOK, swaggerHTML)
	})

	rg.GET("/swagger/doc.json", func(c *gin.Context) {
		c.Data(http.StatusOK, "application/json; charset=utf-8", []byte(swaggerJSON))
	})
}

const swaggerHTML = `<!doctype html>
<html>
  <head>
    <meta charset="utf-8" />
    <title>collab-server API</title>
    <link rel="stylesheet" href="https://unpkg.com/swagger-ui-dist@4/swagger-ui.css" />
  </head>
  <body>
    <div id="swagger-ui"></div>
    <script src="https://unpkg.com/swagger-ui-dist@4/swagger-ui-bundle.js"></script>
    <script>
      window.ui = SwaggerUIBundle({
        url: '/swagger/doc.json',
        dom_id: '#swagger-ui',
      })
    </script>
  </body>
</html>`

const swaggerJSON = `{
  "openapi": "3.0.0",
  "info": { "title": "collab-server", "version": "v0.1.0" },
  "components": {
    "securitySchemes": { "bearer": { "type": "http", "scheme": "bearer" } },
    "schemas": {
      "Error": { "type": "object", "properties": { "error": { "type": "string" } } },
      "Identifier": { "type": "object", "required": ["identifier"], "properties": { "identifier": { "type": "string", "description": "username or email" } } }
    }
  },
  "security": [ { "bearer": [] } ],
  "paths": {
    "/api/documents": {
      "get": { "summary": "List documents owned by or shared with the caller", "responses": { "200": { "description": "documents" } } },
      "post": {
        "summary": "Create a document",
        "requestBody": { "content": { "application/json": { "schema": {"type":"object","required":["title"],"properties":{"title":{"type":"string"},"content":{"type":"string"},"language":{"type":"string"}}}}}},
        "responses": { "201": { "description": "created" }, "400": { "description": "invalid input" } }
      }
    },
    "/api/documents/{id}": {
      "get": { "summary": "Fetch a document", "responses": { "200": { "description": "document" }, "403": { "description": "no access" }, "404": { "description": "not found" } } },
      "put": {
        "summary": "Save content as a new version",
        "requestBody": { "content": { "application/json": { "schema": {"type":"object","required":["content"],"properties":{"content":{"type":"string"}}}}}},
        "responses": { "200": { "description": "saved" }, "403": { "description": "no access" } }
      }
    },
    "/api/documents/{id}/revert": {
      "post": {
        "summary": "Rewind content to a stored version",
        "requestBody": { "content": { "application/json": { "schema": {"type":"object","required":["versionIndex"],"properties":{"versionIndex":{"type":"integer"}}}}}},
        "responses": { "200": { "description": "reverted" }, "400": { "description": "invalid version index" } }
      }
    },
    "/api/documents/{id}/share": { "post": { "summary": "Generate a share token (owner only)", "responses": { "200": { "description": "shareUrl and token" }, "403": { "description": "not owner" } } } },
    "/api/documents/{id}/unshare": { "post": { "summary": "Revoke the share token (owner only)", "responses": { "200": { "description": "sharing disabled" } } } },
    "/api/documents/{id}/collaborators/add": { "post": { "summary": "Add a collaborator (owner only)", "requestBody": { "content": { "application/json": { "schema": { "$ref": "#/components/schemas/Identifier" } } } }, "responses": { "200": { "description": "collaborators" }, "404": { "description": "user not found" }, "409": { "description": "already a collaborator" } } } },
    "/api/documents/{id}/collaborators/remove": { "post": { "summary": "Remove a collaborator (owner only)", "requestBody": { "content": { "application/json": { "schema": { "$ref": "#/components/schemas/Identifier" } } } }, "responses": { "200": { "description": "collaborators" }, "404": { "description": "not a collaborator" } } } },
    "/api/documents/{id}/export": { "post": { "summary": "Export saved content to object storage", "responses": { "200": { "description": "key and presigned url" }, "503": { "description": "export storage unavailable" } } } },
    "/api/shared/{token}": { "get": { "summary": "Public read-only fetch", "security": [], "responses": { "200": { "description": "document" }, "404": { "description": "unknown or revoked token" } } } },
    "/api/chat/{documentId}": { "get": { "summary": "Chat history, oldest first", "responses": { "200": { "description": "messages" } } } },
    "/api/v1/me": { "get": { "summary": "Register and return the caller", "responses": { "200": { "description": "user" } } } },
    "/ws": { "get": { "summary": "Websocket endpoint; token via ?token= or bearer header", "responses": { "101": { "description": "switching protocols" }, "401": { "description": "unauthenticated" } } } },
    "/health": { "get": { "summary": "Liveness check", "security": [], "responses": { "200": { "description": "healthy" } } } },
    "/ready": { "get": { "summary": "Readiness check", "security": [], "responses": { "200": { "description": "ready" }, "503": { "description": "not ready" } } } }
  }
}`
