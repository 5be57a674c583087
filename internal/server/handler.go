// Package server provides the HTTP and WebSocket plumbing for the status API.
package server

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/oszuidwest/zwfm-alarmwatch/internal/types"
)

// validate reports field errors under their JSON names.
var validate = func() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name, _, _ := strings.Cut(f.Tag.Get("json"), ",")
		if name == "" || name == "-" {
			return f.Name
		}
		return name
	})
	return v
}()

// ValidateStruct checks a request decoded outside the WebSocket path.
func ValidateStruct(v any) error {
	return validate.Struct(v)
}

// HandleCommand decodes cmd.Data into T, validates it and runs process,
// answering with a "<type>_result" message either way.
func HandleCommand[T any](cmd WSCommand, send chan<- any, process func(*T) error) {
	HandleQuery(cmd, send, func(req *T) (any, error) {
		return nil, process(req)
	})
}

// HandleQuery is HandleCommand for commands that answer with data.
func HandleQuery[T any](cmd WSCommand, send chan<- any, query func(*T) (any, error)) {
	var req T
	if len(cmd.Data) > 0 {
		if err := json.Unmarshal(cmd.Data, &req); err != nil {
			SendError(send, cmd.Type, fmt.Errorf("invalid JSON: %w", err))
			return
		}
	}
	if err := validate.Struct(&req); err != nil {
		reply(send, cmd.Type, false, nil, ValidationErrors(err))
		return
	}
	data, err := query(&req)
	if err != nil {
		SendError(send, cmd.Type, err)
		return
	}
	SendSuccess(send, cmd.Type, data)
}

// SendSuccess answers cmdType with optional data.
func SendSuccess(send chan<- any, cmdType string, data any) {
	reply(send, cmdType, true, data, nil)
}

// SendError answers cmdType with a request-level error.
func SendError(send chan<- any, cmdType string, err error) {
	verr := &types.ValidationError{}
	verr.Add("", err.Error(), nil)
	reply(send, cmdType, false, nil, verr)
}

// reply never blocks the reader; a full send buffer drops the result.
func reply(send chan<- any, cmdType string, ok bool, data any, verr *types.ValidationError) {
	msg := types.WSCommandResult{Type: cmdType + "_result", Success: ok, Data: data, Error: verr}
	select {
	case send <- msg:
	default:
		slog.Warn("dropping command result, send buffer full", "type", cmdType)
	}
}

// ValidationErrors converts a validator error into the wire format. Any other
// error becomes a single request-level entry.
func ValidationErrors(err error) *types.ValidationError {
	verr := &types.ValidationError{}
	var fields validator.ValidationErrors
	if !errors.As(err, &fields) {
		verr.Add("", err.Error(), nil)
		return verr
	}
	for _, fe := range fields {
		verr.Add(fe.Field(), fieldMessage(fe), fe.Value())
	}
	return verr
}

var tagMessages = map[string]string{
	"min":    "must be at least %s",
	"max":    "must be at most %s",
	"gt":     "must be greater than %s",
	"lt":     "must be less than %s",
	"gte":    "must be at least %s",
	"lte":    "must be at most %s",
	"oneof":  "must be one of: %s",
	"unique": "must not repeat values",
}

func fieldMessage(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required":
		return "is required"
	case "printascii":
		return "must contain printable ASCII only"
	}
	if format, ok := tagMessages[fe.Tag()]; ok {
		if strings.Contains(format, "%s") {
			return fmt.Sprintf(format, fe.Param())
		}
		return format
	}
	return fmt.Sprintf("failed %q validation", fe.Tag())
}
