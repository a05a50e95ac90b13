package openapi

const jsonMedia = "application/json"

// BearerSecurity requires the bearerAuth scheme.
func BearerSecurity() []map[string][]string {
	return []map[string][]string{{"bearerAuth": {}}}
}

func SchemaRef(name string) *Schema {
	return &Schema{Ref: "#/components/schemas/" + name}
}

func ResponseRef(name string) *Response {
	return &Response{Ref: "#/components/responses/" + name}
}

// RequestBodyJSON is a JSON body of the named component schema.
func RequestBodyJSON(schemaName string, required bool) *RequestBody {
	return &RequestBody{
		Required: required,
		Content:  map[string]*MediaType{jsonMedia: {Schema: SchemaRef(schemaName)}},
	}
}

// ResponseJSON is a JSON response of the named component schema.
func ResponseJSON(description, schemaName string) *Response {
	return &Response{
		Description: description,
		Content:     map[string]*MediaType{jsonMedia: {Schema: SchemaRef(schemaName)}},
	}
}

// ResponseFile is a downloadable document served as an attachment.
func ResponseFile(description, contentType string) *Response {
	return &Response{
		Description: description,
		Headers: map[string]*Header{
			"Content-Disposition": {
				Description: "attachment with the stored file name",
				Schema:      &Schema{Type: "string"},
			},
		},
		Content: map[string]*MediaType{
			contentType: {Schema: &Schema{Type: "string", Format: "binary"}},
		},
	}
}

// PathParam is a required UUID path segment.
func PathParam(name, description string) *Parameter {
	return pathParam(name, description, &Schema{Type: "string", Format: "uuid"})
}

func StringPathParam(name, description string) *Parameter {
	return pathParam(name, description, &Schema{Type: "string"})
}

// PatternPathParam is a required path segment constrained by pattern.
func PatternPathParam(name, description, pattern string, example any) *Parameter {
	p := pathParam(name, description, &Schema{Type: "string", Pattern: pattern})
	p.Example = example
	return p
}

func QueryParam(name, typ, description string, required bool) *Parameter {
	return &Parameter{
		Name:        name,
		In:          "query",
		Required:    required,
		Description: description,
		Schema:      &Schema{Type: typ},
	}
}

func pathParam(name, description string, schema *Schema) *Parameter {
	return &Parameter{
		Name:        name,
		In:          "path",
		Required:    true,
		Description: description,
		Schema:      schema,
	}
}
