// Package mock provides testify-backed mock implementations of the
// galley.Transport and galley.Connection interfaces.
//
// It is intended for testing lifecycle orchestration without real network
// connections.
package mock
