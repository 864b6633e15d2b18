package repository

import "errors"

var (
	ErrDuplicate = errors.New("record already exists")
	ErrNotExist  = errors.New("record does not exist")
)
