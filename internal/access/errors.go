package access

import "errors"

var (
	ErrNotFound      = errors.New("access: not found")
	ErrNotAllowed    = errors.New("access: email not on allowed list")
	ErrAlreadyExists = errors.New("access: already exists")
	ErrInvalidInput  = errors.New("access: invalid input")
)

func isNotFound(err error) bool      { return errors.Is(err, ErrNotFound) }
func isAlreadyExists(err error) bool { return errors.Is(err, ErrAlreadyExists) }
