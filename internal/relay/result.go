package relay

import "strconv"

// Code is the stable numeric outcome reported to callers.
type Code int

const (
	CodeOK                  Code = 0
	CodeInvalidArgument     Code = 400000
	CodeNotAuthorized       Code = 401000
	CodeSendMessageDisabled Code = 403001
	CodeNotAllowedIPAddress Code = 403002
	CodeUserNotFound        Code = 404001
	CodeSendMessageFailed   Code = 500001
)

func (c Code) String() string {
	return strconv.Itoa(int(c))
}

// Result is the outcome of one relay request.
type Result struct {
	Message string `json:"message"`
	Code    Code   `json:"code"`
}

// OK reports whether the request succeeded.
func (r Result) OK() bool {
	return r.Code == CodeOK
}

func resultOK() Result {
	return Result{Message: "OK", Code: CodeOK}
}

func resultError(code Code, message string) Result {
	return Result{Message: message, Code: code}
}
