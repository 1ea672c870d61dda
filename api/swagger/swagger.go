package swagger

import "github.com/swaggo/swag"

const docTemplate = `{
    "swagger": "2.0",
    "info": {
        "title": "Document Archive API",
        "description": "Document ingestion with asynchronous PDF/A archive and thumbnail generation",
        "version": "1.0.0"
    },
    "basePath": "/api/v1",
    "schemes": [
        "http"
    ],
    "tags": [
        {"name": "Documents", "description": "Upload, metadata and derived artifacts"},
        {"name": "Notes", "description": "Document annotations"}
    ],
    "paths": {
        "/documents": {
            "post": {
                "tags": ["Documents"],
                "summary": "Upload a document",
                "consumes": ["multipart/form-data"],
                "parameters": [
                    {"name": "document", "in": "formData", "type": "file", "required": true},
                    {"name": "title", "in": "formData", "type": "string"},
                    {"name": "correspondent", "in": "formData", "type": "integer"},
                    {"name": "document_type", "in": "formData", "type": "integer"},
                    {"name": "project", "in": "formData", "type": "integer"},
                    {"name": "tags", "in": "formData", "type": "array", "items": {"type": "integer"}, "collectionFormat": "multi"},
                    {"name": "created", "in": "formData", "type": "string"}
                ],
                "responses": {
                    "201": {"description": "Stored and queued", "schema": {"$ref": "#/definitions/ResponseEnvelope"}},
                    "200": {"description": "Duplicate content", "schema": {"$ref": "#/definitions/ResponseEnvelope"}},
                    "400": {"description": "Validation failed or unsupported type", "schema": {"$ref": "#/definitions/ResponseEnvelope"}},
                    "503": {"description": "Concurrent upload of the same content, retry", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            }
        },
        "/documents/{id}": {
            "get": {
                "tags": ["Documents"],
                "summary": "Get document",
                "parameters": [{"name": "id", "in": "path", "type": "integer", "required": true}],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}},
                    "404": {"description": "Not found", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            },
            "patch": {
                "tags": ["Documents"],
                "summary": "Update document metadata",
                "parameters": [
                    {"name": "id", "in": "path", "type": "integer", "required": true},
                    {"name": "payload", "in": "body", "required": true, "schema": {"$ref": "#/definitions/UpdateDocumentRequest"}}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            },
            "delete": {
                "tags": ["Documents"],
                "summary": "Delete document",
                "parameters": [{"name": "id", "in": "path", "type": "integer", "required": true}],
                "responses": {"204": {"description": "Deleted"}}
            }
        },
        "/documents/{id}/download-original": {
            "get": {
                "tags": ["Documents"],
                "summary": "Download original",
                "produces": ["application/octet-stream"],
                "parameters": [{"name": "id", "in": "path", "type": "integer", "required": true}],
                "responses": {"200": {"description": "File", "schema": {"type": "file"}}}
            }
        },
        "/documents/{id}/download-archive": {
            "get": {
                "tags": ["Documents"],
                "summary": "Download PDF/A archive version",
                "produces": ["application/pdf"],
                "parameters": [{"name": "id", "in": "path", "type": "integer", "required": true}],
                "responses": {
                    "200": {"description": "File", "schema": {"type": "file"}},
                    "404": {"description": "ARCHIVE_NOT_AVAILABLE", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            }
        },
        "/documents/{id}/thumbnail": {
            "get": {
                "tags": ["Documents"],
                "summary": "First-page thumbnail",
                "produces": ["image/webp"],
                "parameters": [{"name": "id", "in": "path", "type": "integer", "required": true}],
                "responses": {
                    "200": {"description": "WebP image", "schema": {"type": "file"}},
                    "404": {"description": "THUMBNAIL_NOT_AVAILABLE", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            }
        },
        "/documents/{id}/reprocess": {
            "post": {
                "tags": ["Documents"],
                "summary": "Queue conversion again",
                "parameters": [{"name": "id", "in": "path", "type": "integer", "required": true}],
                "responses": {"202": {"description": "Queued", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}}
            }
        },
        "/documents/{id}/share": {
            "get": {
                "tags": ["Documents"],
                "summary": "Create a time-limited archive link",
                "parameters": [{"name": "id", "in": "path", "type": "integer", "required": true}],
                "responses": {"200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}}
            }
        },
        "/shared/{token}": {
            "get": {
                "tags": ["Documents"],
                "summary": "Download archive through a share link",
                "parameters": [{"name": "token", "in": "path", "type": "string", "required": true}],
                "responses": {
                    "200": {"description": "File", "schema": {"type": "file"}},
                    "403": {"description": "Invalid or expired link", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            }
        },
        "/documents/{id}/notes": {
            "get": {
                "tags": ["Notes"],
                "summary": "List notes",
                "parameters": [{"name": "id", "in": "path", "type": "integer", "required": true}],
                "responses": {"200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}}
            },
            "post": {
                "tags": ["Notes"],
                "summary": "Add note",
                "parameters": [
                    {"name": "id", "in": "path", "type": "integer", "required": true},
                    {"name": "payload", "in": "body", "required": true, "schema": {"$ref": "#/definitions/CreateNoteRequest"}}
                ],
                "responses": {"201": {"description": "Created", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}}
            }
        },
        "/documents/{id}/notes/{noteId}": {
            "delete": {
                "tags": ["Notes"],
                "summary": "Delete note",
                "parameters": [
                    {"name": "id", "in": "path", "type": "integer", "required": true},
                    {"name": "noteId", "in": "path", "type": "integer", "required": true}
                ],
                "responses": {"204": {"description": "Deleted"}}
            }
        }
    },
    "definitions": {
        "UpdateDocumentRequest": {
            "type": "object",
            "properties": {
                "title": {"type": "string"},
                "created": {"type": "string"},
                "page_count": {"type": "integer"},
                "correspondent": {"type": "integer", "description": "0 clears the reference"},
                "document_type": {"type": "integer", "description": "0 clears the reference"},
                "project": {"type": "integer", "description": "0 clears the reference"},
                "tags": {"type": "array", "items": {"type": "integer"}}
            }
        },
        "CreateNoteRequest": {
            "type": "object",
            "required": ["note"],
            "properties": {
                "note": {"type": "string"}
            }
        },
        "APIError": {
            "type": "object",
            "properties": {
                "code": {"type": "string"},
                "message": {"type": "string"},
                "status": {"type": "integer"}
            }
        },
        "ResponseEnvelope": {
            "type": "object",
            "properties": {
                "data": {"type": "object"},
                "error": {"$ref": "#/definitions/APIError"},
                "meta": {"type": "object"}
            }
        }
    }
}`

type swaggerDoc struct{}

// ReadDoc returns the Swagger document.
func (s *swaggerDoc) ReadDoc() string {
	return docTemplate
}

func init() {
	swag.Register(swag.Name, &swaggerDoc{})
}
