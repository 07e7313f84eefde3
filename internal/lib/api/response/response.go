package response

// Response is the JSON envelope of every API reply.
type Response struct {
	Status  string `json:"status"`
	Message string `json:"message,omitempty"`
	Err     string `json:"error,omitempty"`
}

const (
	StatusOK    = "OK"
	StatusError = "Error"
)

// Ok builds a success envelope.
func Ok(message string) Response {
	return Response{
		Status:  StatusOK,
		Message: message,
	}
}

// Error builds an error envelope.
func Error(msg string) Response {
	return Response{
		Status: StatusError,
		Err:    msg,
	}
}
