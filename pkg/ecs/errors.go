package ecs

import "errors"

var ErrContinuousTooLarge = errors.New("ecs: continuous set exceeds component.MaxContinuous")
