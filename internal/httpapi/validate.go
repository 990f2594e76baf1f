package httpapi

import "github.com/go-playground/validator/v10"

// requestValidator enforces struct-tag constraints on decoded request
// bodies (spec §6's size/shape limits on the chat and docgen wire shapes),
// matching internal/tools.DecodeAndValidate's use of the same library for
// tool input.
var requestValidator = validator.New()
