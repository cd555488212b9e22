package core

import (
	"context"
	"fmt"
)

// ScriptRequest carries the form values sent to the generation service.
type ScriptRequest struct {
	Topic       string
	Tone        string
	Format      string
	Temperature float64
	SearchTool  string
}

type ScriptService interface {
	GenerateScript(ctx context.Context, req ScriptRequest) (string, error)
}

// StatusError is returned when the service answered with a status other than 200.
type StatusError struct {
	Code int
	Body string
}

func (e *StatusError) Error() string {
	if e.Body == "" {
		return fmt.Sprintf("unexpected status %d", e.Code)
	}
	return fmt.Sprintf("unexpected status %d: %s", e.Code, e.Body)
}
