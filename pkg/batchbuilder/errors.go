// Copyright 2025 Certen Protocol

package batchbuilder

import "errors"

// ErrEmptyRequests is returned when BuildAndSubmit is called with no
// requests to build a batch from.
var ErrEmptyRequests = errors.New("batchbuilder: no requests to build")
