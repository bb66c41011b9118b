package domain

import "errors"

var ErrNotFound = errors.New("not found")
var ErrInvalidPath = errors.New("invalid path")
var ErrInvalidMagnet = errors.New("invalid magnet link")
