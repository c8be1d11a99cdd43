package usecase

import "errors"

var (
	errEmptyQuery   = errors.New("query is empty")
	errEmptyInput   = errors.New("message is empty")
	errEmptyOutput  = errors.New("generation returned empty output")
	errInvalidEmail = errors.New("email address is malformed")
)
