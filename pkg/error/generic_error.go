package error

import "net/http"

// GenericError is the fallback for failures that don't fit a more specific
// taxonomy entry but still need to carry an ErrCode/StatusCode pair.
type GenericError string

func (err GenericError) Error() string {
	return string(err)
}

func (err GenericError) ErrCode() string {
	return "GENERIC_ERROR"
}

func (err GenericError) StatusCode() int {
	return http.StatusInternalServerError
}
