package mock

import (
	"context"

	"github.com/galleyhq/galley"
	"github.com/stretchr/testify/mock"
)

// Transport implements a mock galley.Transport using testify/mock.
type Transport struct {
	mock.Mock
}

var _ galley.Transport = (*Transport)(nil)

// NewTransport creates a new mock transport.
func NewTransport() *Transport {
	return &Transport{}
}

// Dial mocks preparing a connection.
func (m *Transport) Dial(ctx context.Context, p galley.Params) (galley.Connection, error) {
	args := m.Called(ctx, p)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}

	return args.Get(0).(galley.Connection), args.Error(1)
}

// LoginCommand mocks building the login descriptor.
func (m *Transport) LoginCommand(p galley.Params) *galley.LoginCommand {
	args := m.Called(p)
	if args.Get(0) == nil {
		return nil
	}

	return args.Get(0).(*galley.LoginCommand)
}

// Connection implements a mock galley.Connection using testify/mock.
type Connection struct {
	mock.Mock
}

var _ galley.Connection = (*Connection)(nil)

// NewConnection creates a new mock connection.
func NewConnection() *Connection {
	return &Connection{}
}

// Execute mocks running a remote command.
func (m *Connection) Execute(ctx context.Context, command string) error {
	args := m.Called(ctx, command)

	return args.Error(0)
}

// Upload mocks uploading a file to the instance.
func (m *Connection) Upload(ctx context.Context, localPath, remoteDir string) error {
	args := m.Called(ctx, localPath, remoteDir)

	return args.Error(0)
}

// WaitForPort mocks waiting for the instance's port.
func (m *Connection) WaitForPort(ctx context.Context) error {
	args := m.Called(ctx)

	return args.Error(0)
}

// Close mocks closing the connection.
func (m *Connection) Close() error {
	args := m.Called()

	return args.Error(0)
}
