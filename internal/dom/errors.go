package dom

import "errors"

var (
	ErrEmptyMarkup = errors.New("markup is empty")
	ErrNoDocument  = errors.New("document has no root")
	ErrParseFailed = errors.New("failed to parse markup")
)
