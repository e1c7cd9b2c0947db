// Package docs registers the swagger document served under /swagger.
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
        "/health": {
            "get": {
                "produces": ["application/json"],
                "tags": ["system"],
                "summary": "Health check",
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/dto.HealthResponse"}}
                }
            }
        },
        "/upload-document": {
            "post": {
                "consumes": ["multipart/form-data"],
                "produces": ["application/json"],
                "tags": ["documents"],
                "summary": "Upload an identity or address proof",
                "parameters": [
                    {"type": "file", "description": "Document (png, jpeg, gif, webp or pdf)", "name": "document", "in": "formData", "required": true},
                    {"type": "string", "description": "Session ID", "name": "session_id", "in": "formData", "required": true},
                    {"type": "string", "description": "Cookie ID", "name": "cookie_id", "in": "formData"},
                    {"type": "string", "description": "Device ID", "name": "device_id", "in": "formData"}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/dto.UploadDocumentResponse"}},
                    "400": {"description": "Bad Request", "schema": {"$ref": "#/definitions/dto.ErrorResponse"}},
                    "404": {"description": "Not Found", "schema": {"$ref": "#/definitions/dto.ErrorResponse"}}
                }
            }
        },
        "/check-payment/{payment_id}": {
            "get": {
                "produces": ["application/json"],
                "tags": ["payments"],
                "summary": "Check payment status",
                "parameters": [
                    {"type": "string", "description": "Payment ID", "name": "payment_id", "in": "path", "required": true},
                    {"type": "string", "description": "Session ID", "name": "session_id", "in": "query", "required": true},
                    {"type": "string", "description": "Cookie ID", "name": "cookie_id", "in": "query"},
                    {"type": "string", "description": "Device ID", "name": "device_id", "in": "query"}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/dto.CheckPaymentResponse"}},
                    "404": {"description": "Not Found", "schema": {"$ref": "#/definitions/dto.ErrorResponse"}},
                    "503": {"description": "Service Unavailable", "schema": {"$ref": "#/definitions/dto.ErrorResponse"}}
                }
            }
        },
        "/payment-details/{payment_id}": {
            "get": {
                "produces": ["application/json"],
                "tags": ["payments"],
                "summary": "Payment details",
                "parameters": [
                    {"type": "string", "description": "Payment ID", "name": "payment_id", "in": "path", "required": true},
                    {"type": "string", "description": "Session ID", "name": "session_id", "in": "query", "required": true}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/dto.PaymentDetailsResponse"}},
                    "404": {"description": "Not Found", "schema": {"$ref": "#/definitions/dto.ErrorResponse"}}
                }
            }
        },
        "/admin/login": {
            "post": {
                "consumes": ["application/json"],
                "produces": ["application/json"],
                "tags": ["admin"],
                "summary": "Operator login",
                "parameters": [
                    {"description": "Login request", "name": "request", "in": "body", "required": true, "schema": {"$ref": "#/definitions/dto.LoginRequest"}}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/dto.LoginResponse"}},
                    "401": {"description": "Unauthorized", "schema": {"$ref": "#/definitions/dto.ErrorResponse"}}
                }
            }
        },
        "/admin/users": {
            "get": {
                "security": [{"Bearer": []}],
                "produces": ["application/json"],
                "tags": ["admin"],
                "summary": "List users",
                "parameters": [
                    {"type": "integer", "description": "Page size (default 50)", "name": "limit", "in": "query"},
                    {"type": "integer", "description": "Offset", "name": "offset", "in": "query"}
                ],
                "responses": {
                    "200": {"description": "OK"}
                }
            }
        },
        "/admin/users/{id}": {
            "get": {
                "security": [{"Bearer": []}],
                "produces": ["application/json"],
                "tags": ["admin"],
                "summary": "Get user with conversation",
                "parameters": [
                    {"type": "string", "description": "User ID", "name": "id", "in": "path", "required": true}
                ],
                "responses": {
                    "200": {"description": "OK"},
                    "404": {"description": "Not Found", "schema": {"$ref": "#/definitions/dto.ErrorResponse"}}
                }
            },
            "delete": {
                "security": [{"Bearer": []}],
                "tags": ["admin"],
                "summary": "Purge a user",
                "parameters": [
                    {"type": "string", "description": "User ID", "name": "id", "in": "path", "required": true}
                ],
                "responses": {
                    "204": {"description": "No Content"},
                    "404": {"description": "Not Found", "schema": {"$ref": "#/definitions/dto.ErrorResponse"}}
                }
            }
        },
        "/admin/users/{id}/outcome": {
            "post": {
                "security": [{"Bearer": []}],
                "consumes": ["application/json"],
                "produces": ["application/json"],
                "tags": ["admin"],
                "summary": "Record case outcome",
                "parameters": [
                    {"type": "string", "description": "User ID", "name": "id", "in": "path", "required": true},
                    {"description": "Outcome", "name": "request", "in": "body", "required": true, "schema": {"$ref": "#/definitions/dto.OutcomeRequest"}}
                ],
                "responses": {
                    "200": {"description": "OK"},
                    "400": {"description": "Bad Request", "schema": {"$ref": "#/definitions/dto.ErrorResponse"}}
                }
            }
        }
    },
    "definitions": {
        "dto.HealthResponse": {
            "type": "object",
            "properties": {"status": {"type": "string"}, "version": {"type": "string"}}
        },
        "dto.ErrorResponse": {
            "type": "object",
            "properties": {"success": {"type": "boolean"}, "error": {"type": "string"}}
        },
        "dto.UploadDocumentResponse": {
            "type": "object",
            "properties": {
                "success": {"type": "boolean"},
                "is_valid": {"type": "boolean"},
                "document_id": {"type": "string"},
                "analysis": {"type": "string"},
                "superseded": {"type": "boolean"}
            }
        },
        "dto.CheckPaymentResponse": {
            "type": "object",
            "properties": {
                "success": {"type": "boolean"},
                "status": {"type": "string"},
                "payment_completed": {"type": "boolean"},
                "amount": {"type": "integer"},
                "currency": {"type": "string"}
            }
        },
        "dto.PaymentDetailsResponse": {
            "type": "object",
            "properties": {
                "amount": {"type": "integer"},
                "currency": {"type": "string"},
                "description": {"type": "string"},
                "status": {"type": "string"}
            }
        },
        "dto.LoginRequest": {
            "type": "object",
            "properties": {"username": {"type": "string"}, "password": {"type": "string"}}
        },
        "dto.LoginResponse": {
            "type": "object",
            "properties": {
                "access_token": {"type": "string"},
                "token_type": {"type": "string"},
                "expires_in": {"type": "integer"}
            }
        },
        "dto.OutcomeRequest": {
            "type": "object",
            "properties": {"is_win": {"type": "boolean"}, "reason": {"type": "string"}}
        }
    },
    "securityDefinitions": {
        "Bearer": {
            "description": "Type \"Bearer\" followed by a space and JWT token.",
            "type": "apiKey",
            "name": "Authorization",
            "in": "header"
        }
    }
}`

// SwaggerInfo holds exported Swagger Info so clients can modify it
var SwaggerInfo = &swag.Spec{
	Version:          "1.0.0",
	Host:             "localhost:8000",
	BasePath:         "/",
	Schemes:          []string{},
	Title:            "Sales Agent API",
	Description:      "Conversational sales funnel for company registration: chat, document verification and payment.",
	InfoInstanceName: "swagger",
	SwaggerTemplate:  docTemplate,
	LeftDelim:        "{{",
	RightDelim:       "}}",
}

func init() {
	swag.Register(SwaggerInfo.InstanceName(), SwaggerInfo)
}
