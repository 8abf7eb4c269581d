package swagger

import "github.com/swaggo/swag"

const docTemplate = `{
    "swagger": "2.0",
    "info": {
        "title": "SMA Results API",
        "description": "Result batch CSV import, grading and report cards",
        "version": "1.0.0"
    },
    "basePath": "/api/v1",
    "schemes": [
        "http"
    ],
    "securityDefinitions": {
        "BearerAuth": {"type": "apiKey", "name": "Authorization", "in": "header"}
    },
    "security": [{"BearerAuth": []}],
    "tags": [
        {"name": "Result Batches", "description": "Batch lifecycle, CSV import and artifacts"},
        {"name": "Results", "description": "Class listings and report cards"},
        {"name": "Subject Groups", "description": "Ordered subject lists used by batches"},
        {"name": "Grading Scales", "description": "Score bands mapped to grades and remarks"}
    ],
    "paths": {
        "/result-batches": {
            "get": {
                "tags": ["Result Batches"],
                "summary": "List result batches",
                "parameters": [
                    {"name": "classroomId", "in": "query", "type": "string"},
                    {"name": "academicYear", "in": "query", "type": "string"},
                    {"name": "term", "in": "query", "type": "string"},
                    {"name": "status", "in": "query", "type": "string", "enum": ["draft", "processing", "completed", "failed", "published"]},
                    {"name": "page", "in": "query", "type": "integer"},
                    {"name": "pageSize", "in": "query", "type": "integer"}
                ],
                "responses": {"200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}}
            },
            "post": {
                "tags": ["Result Batches"],
                "summary": "Create a draft result batch",
                "parameters": [
                    {"name": "payload", "in": "body", "required": true, "schema": {"$ref": "#/definitions/CreateResultBatchRequest"}}
                ],
                "responses": {
                    "201": {"description": "Created", "schema": {"$ref": "#/definitions/ResponseEnvelope"}},
                    "400": {"description": "Validation error", "schema": {"$ref": "#/definitions/ResponseEnvelope"}},
                    "409": {"description": "Batch code collision", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            }
        },
        "/result-batches/{id}": {
            "get": {
                "tags": ["Result Batches"],
                "summary": "Get a result batch with derived statistics",
                "parameters": [{"name": "id", "in": "path", "required": true, "type": "string"}],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}},
                    "404": {"description": "Not found", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            },
            "delete": {
                "tags": ["Result Batches"],
                "summary": "Delete a batch, its results and artifacts",
                "parameters": [{"name": "id", "in": "path", "required": true, "type": "string"}],
                "responses": {"204": {"description": "Deleted"}, "404": {"description": "Not found"}}
            }
        },
        "/result-batches/{id}/upload": {
            "post": {
                "tags": ["Result Batches"],
                "summary": "Import a result CSV",
                "consumes": ["multipart/form-data"],
                "parameters": [
                    {"name": "id", "in": "path", "required": true, "type": "string"},
                    {"name": "file", "in": "formData", "required": true, "type": "file"}
                ],
                "responses": {
                    "200": {"description": "Import summary", "schema": {"$ref": "#/definitions/ImportSummary"}},
                    "400": {"description": "Invalid file or header"},
                    "408": {"description": "Import timed out"},
                    "409": {"description": "Import already running or batch published"}
                }
            }
        },
        "/result-batches/{id}/publish": {
            "post": {
                "tags": ["Result Batches"],
                "summary": "Publish a completed batch",
                "parameters": [{"name": "id", "in": "path", "required": true, "type": "string"}],
                "responses": {"200": {"description": "OK"}, "409": {"description": "Batch not completed"}}
            }
        },
        "/result-batches/{id}/status": {
            "patch": {
                "tags": ["Result Batches"],
                "summary": "Override a batch status",
                "parameters": [
                    {"name": "id", "in": "path", "required": true, "type": "string"},
                    {"name": "payload", "in": "body", "required": true, "schema": {"$ref": "#/definitions/OverrideStatusRequest"}}
                ],
                "responses": {"200": {"description": "OK"}, "403": {"description": "Forbidden"}}
            }
        },
        "/result-batches/{id}/signatures": {
            "patch": {
                "tags": ["Result Batches"],
                "summary": "Set signature URLs",
                "parameters": [
                    {"name": "id", "in": "path", "required": true, "type": "string"},
                    {"name": "payload", "in": "body", "required": true, "schema": {"$ref": "#/definitions/SignaturesRequest"}}
                ],
                "responses": {"200": {"description": "OK"}}
            }
        },
        "/result-batches/{id}/signatures/{kind}": {
            "post": {
                "tags": ["Result Batches"],
                "summary": "Upload a signature image",
                "consumes": ["multipart/form-data"],
                "parameters": [
                    {"name": "id", "in": "path", "required": true, "type": "string"},
                    {"name": "kind", "in": "path", "required": true, "type": "string", "enum": ["teacher", "principal"]},
                    {"name": "file", "in": "formData", "required": true, "type": "file"}
                ],
                "responses": {"200": {"description": "OK"}, "400": {"description": "Not an image"}}
            }
        },
        "/result-batches/{id}/template": {
            "get": {
                "tags": ["Result Batches"],
                "summary": "Download the upload CSV template",
                "produces": ["text/csv"],
                "parameters": [{"name": "id", "in": "path", "required": true, "type": "string"}],
                "responses": {"200": {"description": "CSV file"}}
            }
        },
        "/results/classrooms/{classroomId}": {
            "get": {
                "tags": ["Results"],
                "summary": "List stored results of a classroom period",
                "parameters": [
                    {"name": "classroomId", "in": "path", "required": true, "type": "string"},
                    {"name": "academicYear", "in": "query", "type": "string"},
                    {"name": "term", "in": "query", "type": "string"}
                ],
                "responses": {"200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}}
            }
        },
        "/results/students/{studentId}/report-card": {
            "get": {
                "tags": ["Results"],
                "summary": "Get a student's report card",
                "parameters": [
                    {"name": "studentId", "in": "path", "required": true, "type": "string"},
                    {"name": "classroomId", "in": "query", "required": true, "type": "string"},
                    {"name": "academicYear", "in": "query", "type": "string"},
                    {"name": "term", "in": "query", "type": "string"}
                ],
                "responses": {"200": {"description": "OK"}, "403": {"description": "Not published or not own record"}}
            }
        },
        "/results/students/{studentId}/report-card.pdf": {
            "get": {
                "tags": ["Results"],
                "summary": "Download a student's report card as PDF",
                "produces": ["application/pdf"],
                "parameters": [
                    {"name": "studentId", "in": "path", "required": true, "type": "string"},
                    {"name": "classroomId", "in": "query", "required": true, "type": "string"}
                ],
                "responses": {"200": {"description": "PDF document"}}
            }
        },
        "/subject-groups": {
            "get": {"tags": ["Subject Groups"], "summary": "List subject groups", "responses": {"200": {"description": "OK"}}},
            "post": {
                "tags": ["Subject Groups"],
                "summary": "Create a subject group",
                "parameters": [{"name": "payload", "in": "body", "required": true, "schema": {"$ref": "#/definitions/SubjectGroupRequest"}}],
                "responses": {"201": {"description": "Created"}, "400": {"description": "Unknown subject ids"}}
            }
        },
        "/subject-groups/{id}": {
            "get": {"tags": ["Subject Groups"], "summary": "Get a subject group", "parameters": [{"name": "id", "in": "path", "required": true, "type": "string"}], "responses": {"200": {"description": "OK"}}},
            "put": {
                "tags": ["Subject Groups"],
                "summary": "Replace a subject group",
                "parameters": [
                    {"name": "id", "in": "path", "required": true, "type": "string"},
                    {"name": "payload", "in": "body", "required": true, "schema": {"$ref": "#/definitions/SubjectGroupRequest"}}
                ],
                "responses": {"200": {"description": "OK"}}
            },
            "delete": {"tags": ["Subject Groups"], "summary": "Delete an unused subject group", "parameters": [{"name": "id", "in": "path", "required": true, "type": "string"}], "responses": {"204": {"description": "Deleted"}, "409": {"description": "In use"}}}
        },
        "/grading-scales": {
            "get": {"tags": ["Grading Scales"], "summary": "List grading scales", "responses": {"200": {"description": "OK"}}},
            "post": {
                "tags": ["Grading Scales"],
                "summary": "Create a grading scale",
                "parameters": [{"name": "payload", "in": "body", "required": true, "schema": {"$ref": "#/definitions/GradingScaleRequest"}}],
                "responses": {"201": {"description": "Created"}, "400": {"description": "Overlapping bands"}}
            }
        },
        "/grading-scales/{id}": {
            "get": {"tags": ["Grading Scales"], "summary": "Get a grading scale", "parameters": [{"name": "id", "in": "path", "required": true, "type": "string"}], "responses": {"200": {"description": "OK"}}},
            "put": {
                "tags": ["Grading Scales"],
                "summary": "Replace a grading scale",
                "parameters": [
                    {"name": "id", "in": "path", "required": true, "type": "string"},
                    {"name": "payload", "in": "body", "required": true, "schema": {"$ref": "#/definitions/GradingScaleRequest"}}
                ],
                "responses": {"200": {"description": "OK"}}
            },
            "delete": {"tags": ["Grading Scales"], "summary": "Delete an unused grading scale", "parameters": [{"name": "id", "in": "path", "required": true, "type": "string"}], "responses": {"204": {"description": "Deleted"}, "409": {"description": "In use"}}}
        }
    },
    "definitions": {
        "CreateResultBatchRequest": {
            "type": "object",
            "required": ["batchName", "classroomId", "academicYear", "term", "subjectGroupId", "gradingScaleId"],
            "properties": {
                "batchName": {"type": "string"},
                "classroomId": {"type": "string"},
                "academicYear": {"type": "string", "example": "2024/2025"},
                "term": {"type": "string", "example": "1"},
                "subjectGroupId": {"type": "string"},
                "gradingScaleId": {"type": "string"},
                "teacherName": {"type": "string"},
                "principalName": {"type": "string"}
            }
        },
        "OverrideStatusRequest": {
            "type": "object",
            "required": ["status"],
            "properties": {
                "status": {"type": "string", "enum": ["draft", "processing", "completed", "failed", "published"]}
            }
        },
        "SignaturesRequest": {
            "type": "object",
            "properties": {
                "teacherName": {"type": "string"},
                "principalName": {"type": "string"},
                "teacherSignatureUrl": {"type": "string"},
                "principalSignatureUrl": {"type": "string"}
            }
        },
        "SubjectGroupRequest": {
            "type": "object",
            "required": ["name", "subjectIds"],
            "properties": {
                "name": {"type": "string"},
                "academicSession": {"type": "string"},
                "term": {"type": "string"},
                "subjectIds": {"type": "array", "items": {"type": "string"}}
            }
        },
        "GradingScaleRequest": {
            "type": "object",
            "required": ["name", "gradeConfig"],
            "properties": {
                "name": {"type": "string"},
                "isDefault": {"type": "boolean"},
                "gradeConfig": {"type": "array", "items": {"$ref": "#/definitions/GradeBand"}}
            }
        },
        "GradeBand": {
            "type": "object",
            "properties": {
                "min": {"type": "number"},
                "max": {"type": "number"},
                "grade": {"type": "string"},
                "remark": {"type": "string"}
            }
        },
        "ImportError": {
            "type": "object",
            "properties": {
                "line": {"type": "integer"},
                "subjectCode": {"type": "string"},
                "data": {"type": "object", "additionalProperties": {"type": "string"}},
                "error": {"type": "string"}
            }
        },
        "ImportSummary": {
            "type": "object",
            "properties": {
                "batchId": {"type": "string"},
                "status": {"type": "string"},
                "imported": {"type": "integer"},
                "failed": {"type": "integer"},
                "errors": {"type": "array", "items": {"$ref": "#/definitions/ImportError"}}
            }
        },
        "Pagination": {
            "type": "object",
            "properties": {
                "page": {"type": "integer"},
                "pageSize": {"type": "integer"},
                "totalCount": {"type": "integer"}
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
                "pagination": {"$ref": "#/definitions/Pagination"},
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
