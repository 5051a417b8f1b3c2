//go:build tools

// Package tools pins the code generators used through go generate, mockgen
// for the mocks package, so go.mod and go.sum keep them.
package chat_router

import (
	_ "go.uber.org/mock/mockgen"
)
