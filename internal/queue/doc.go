// Package queue provides the growable ring buffer that decouples
// settlement from its slow consumers.
package queue
