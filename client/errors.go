package client

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
)

// ServerError is a non-success response. Message, Code and Type come from the error
// payload when the server sent one.
type ServerError struct {
	Code     int    `json:"code"`
	Type     string `json:"type"`
	Message  string `json:"message"`
	Response string `json:"-"`
}

func (e *ServerError) Error() string {
	if e.Type != "" {
		return fmt.Sprintf("HTTP %d (%s): %s", e.Code, e.Type, e.Message)
	}
	return fmt.Sprintf("HTTP %d: %s", e.Code, e.Message)
}

// Temporary reports whether the request may succeed when sent again.
func (e *ServerError) Temporary() bool {
	return e.Code >= http.StatusInternalServerError || e.Code == http.StatusTooManyRequests
}

// TransportError is a request that got no response.
type TransportError struct {
	Method string
	Path   string
	Err    error
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("%s %s: %s", e.Method, e.Path, e.Err)
}

func (e *TransportError) Unwrap() error {
	return e.Err
}

// Temporary is always true: the request can be sent again.
func (e *TransportError) Temporary() bool {
	return true
}

func unwrapError(resp *http.Response) error {
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return err
	}

	serverErr := ServerError{}
	if jsonErr := json.Unmarshal(body, &serverErr); jsonErr != nil || serverErr.Message == "" {
		serverErr = ServerError{Message: string(body)}
	}
	serverErr.Code = resp.StatusCode
	serverErr.Response = string(body)

	return &serverErr
}
