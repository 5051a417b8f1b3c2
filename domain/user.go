// Package domain contains core concepts of the chat router.
// No runtime, network, or UI logic should be added here.
package domain

// User is an identity record owned by the Directory.
// It is created on registration and never mutated afterwards.
type User struct {
	ID          string
	DisplayName string
}
