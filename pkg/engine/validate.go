package engine

import "github.com/go-playground/validator/v10"

// validate is shared because validator caches struct metadata.
var validate = validator.New()
