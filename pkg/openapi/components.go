package openapi

import "maps"

// NewComponents creates Components with shared schemas and error responses.
func NewComponents() *Components {
	return &Components{
		Schemas: map[string]*Schema{
			"PageRequest": {
				Type: "object",
				Properties: map[string]*Schema{
					"page":     {Type: "integer", Description: "Page number (1-indexed)", Example: 1},
					"per_page": {Type: "integer", Description: "Results per page", Example: 20},
					"search":   {Type: "string", Description: "Search query"},
					"sort":     {Type: "string", Description: "Comma-separated sort fields. Prefix with - for descending. Example: name_en,-created_at"},
				},
			},
			"Error": {
				Type: "object",
				Properties: map[string]*Schema{
					"error": {Type: "string", Description: "Error message"},
				},
			},
			"Message": {
				Type: "object",
				Properties: map[string]*Schema{
					"message": {Type: "string"},
				},
			},
		},
		Responses: map[string]*Response{
			"BadRequest":         errorResponse("Invalid request"),
			"Unauthorized":       errorResponse("Missing or invalid credentials"),
			"Forbidden":          errorResponse("Access denied"),
			"NotFound":           errorResponse("Resource not found"),
			"Conflict":           errorResponse("Resource state conflict"),
			"PreconditionFailed": errorResponse("Version mismatch"),
			"Unprocessable":      errorResponse("Verification failed"),
			"TooManyRequests":    throttled(),
			"Unavailable":        errorResponse("Dependency unavailable, retry later"),
		},
		SecuritySchemes: map[string]*SecurityScheme{
			"bearerAuth": {Type: "http", Scheme: "bearer", BearerFormat: "JWT"},
		},
	}
}

func errorResponse(description string) *Response {
	return &Response{
		Description: description,
		Content: map[string]*MediaType{
			"application/json": {Schema: SchemaRef("Error")},
		},
	}
}

func throttled() *Response {
	r := errorResponse("Rate limit exceeded")
	r.Headers = map[string]*Header{
		"Retry-After": {
			Description: "Seconds until the limit resets",
			Schema:      &Schema{Type: "integer"},
		},
	}
	return r
}

// AddSchemas merges the given schemas into the component schemas.
func (c *Components) AddSchemas(schemas map[string]*Schema) {
	maps.Copy(c.Schemas, schemas)
}

// AddResponses merges the given responses into the component responses.
func (c *Components) AddResponses(responses map[string]*Response) {
	maps.Copy(c.Responses, responses)
}
