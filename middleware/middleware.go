package middleware

import (
	"errors"

	"order-processing-service/internal/auth"
)

// Mid bundles the dependencies the middleware layer needs.
type Mid struct {
	keys *auth.Keys
}

func NewMid(keys *auth.Keys) (*Mid, error) {
	if keys == nil {
		return nil, errors.New("auth keys are nil")
	}
	return &Mid{keys: keys}, nil
}
