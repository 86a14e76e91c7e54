package core

// Endpoint is a framework-agnostic description of one bridge route.
// Adapters attach their own handler by OperationID.
type Endpoint struct {
	Path     string
	Method   string
	Metadata EndpointMetadata
}

type EndpointMetadata struct {
	OperationID string
	Description string

	// RequiresSession rejects the request when nobody is signed in.
	RequiresSession bool
}

// ErrorResponse is the body of every failed bridge request.
type ErrorResponse struct {
	Error string `json:"error"`
	Kind  string `json:"kind,omitempty"`
}
