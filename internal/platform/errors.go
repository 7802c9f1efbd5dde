package platform

import (
	"errors"
	"fmt"

	"github.com/bwmarrin/discordgo"
)

// ErrUnknownMessage matches an *APIError raised because the target message
// no longer exists.
var ErrUnknownMessage = errors.New("discord: unknown message")

// APIError wraps every failed Discord REST call.
type APIError struct {
	Op  string
	Err error
}

func (e *APIError) Error() string {
	return fmt.Sprintf("discord %s: %v", e.Op, e.Err)
}

func (e *APIError) Unwrap() error {
	return e.Err
}

func (e *APIError) Is(target error) bool {
	return target == ErrUnknownMessage && Code(e.Err) == discordgo.ErrCodeUnknownMessage
}

// Code returns the Discord JSON error code carried by err, or 0.
func Code(err error) int {
	var restErr *discordgo.RESTError
	if errors.As(err, &restErr) && restErr.Message != nil {
		return restErr.Message.Code
	}
	return 0
}

func wrap(op string, err error) error {
	if err == nil {
		return nil
	}
	return &APIError{Op: op, Err: err}
}
