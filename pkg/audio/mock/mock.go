// Package mock provides in-memory mock implementations of the [audio.Platform]
// and [audio.Connection] interfaces for use in unit tests.
//
// All mocks are safe for concurrent use. They record every method call so that
// tests can assert on call counts and arguments, and they expose exported fields
// that the test can set to control return values.
//
// Typical usage:
//
//	platform := &mock.Platform{}
//	conn, err := platform.Connect(ctx, "guild-1", "voice-42")
//	// ... later
//	platform.Connections()[0].Drop() // simulate a kick
package mock

import (
	"context"
	"sync"

	"github.com/davidcole1340/rovabot/pkg/audio"
)

// ─── Connection ───────────────────────────────────────────────────────────────

// Connection is a mock implementation of [audio.Connection].
// Set the exported Result fields before use; inspect the Call* fields after.
type Connection struct {
	mu sync.Mutex

	// OutputStreamResult is returned by [Connection.OutputStream]. When nil a
	// buffered channel is created on first use and exposed via [Connection.Output].
	OutputStreamResult chan audio.AudioFrame

	// ChannelIDResult is returned by [Connection.ChannelID].
	ChannelIDResult string

	// DisconnectError is returned by the first [Connection.Disconnect] call.
	DisconnectError error

	// CallCountDisconnect records how many times Disconnect was called.
	CallCountDisconnect int

	done     chan struct{}
	doneOnce sync.Once
}

func (c *Connection) doneCh() chan struct{} {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.done == nil {
		c.done = make(chan struct{})
	}
	return c.done
}

// Output returns the channel behind OutputStream so tests can read frames.
func (c *Connection) Output() chan audio.AudioFrame {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.OutputStreamResult == nil {
		c.OutputStreamResult = make(chan audio.AudioFrame, 64)
	}
	return c.OutputStreamResult
}

// OutputStream implements [audio.Connection].
func (c *Connection) OutputStream() chan<- audio.AudioFrame {
	return c.Output()
}

// ChannelID implements [audio.Connection]. Returns ChannelIDResult.
func (c *Connection) ChannelID() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.ChannelIDResult
}

// Done implements [audio.Connection]. It is closed by Disconnect or Drop.
func (c *Connection) Done() <-chan struct{} {
	return c.doneCh()
}

// Disconnect implements [audio.Connection]. Records the call, closes Done
// and returns DisconnectError on the first call only.
func (c *Connection) Disconnect() error {
	c.mu.Lock()
	c.CallCountDisconnect++
	first := c.CallCountDisconnect == 1
	err := c.DisconnectError
	c.mu.Unlock()

	c.close()
	if !first {
		return nil
	}
	return err
}

// Drop simulates the platform ending the connection (kick, move, network
// loss) without a call to Disconnect.
func (c *Connection) Drop() {
	c.close()
}

// Disconnects returns CallCountDisconnect under the lock.
func (c *Connection) Disconnects() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.CallCountDisconnect
}

func (c *Connection) close() {
	ch := c.doneCh()
	c.doneOnce.Do(func() { close(ch) })
}

// ─── Platform ─────────────────────────────────────────────────────────────────

// ConnectCall records the arguments of a single [Platform.Connect] invocation.
type ConnectCall struct {
	GuildID   string
	ChannelID string
}

// Platform is a mock implementation of [audio.Platform].
type Platform struct {
	mu sync.Mutex

	// ConnectFunc, when set, replaces the default behaviour entirely.
	ConnectFunc func(ctx context.Context, guildID, channelID string) (audio.Connection, error)

	// ConnectError is returned by Connect when ConnectFunc is nil.
	ConnectError error

	// ConnectCalls records all Connect invocations.
	ConnectCalls []ConnectCall

	connections []*Connection
}

// Connect implements [audio.Platform]. Records the call, then delegates to
// ConnectFunc or returns ConnectError, or else a fresh [Connection] whose
// ChannelIDResult is channelID.
func (p *Platform) Connect(ctx context.Context, guildID, channelID string) (audio.Connection, error) {
	p.mu.Lock()
	p.ConnectCalls = append(p.ConnectCalls, ConnectCall{GuildID: guildID, ChannelID: channelID})
	fn := p.ConnectFunc
	err := p.ConnectError
	p.mu.Unlock()

	if fn != nil {
		return fn(ctx, guildID, channelID)
	}
	if err != nil {
		return nil, err
	}

	conn := &Connection{ChannelIDResult: channelID}
	p.mu.Lock()
	p.connections = append(p.connections, conn)
	p.mu.Unlock()
	return conn, nil
}

// Calls returns a copy of ConnectCalls.
func (p *Platform) Calls() []ConnectCall {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]ConnectCall, len(p.ConnectCalls))
	copy(out, p.ConnectCalls)
	return out
}

// Connections returns the connections created by the default Connect path,
// in creation order.
func (p *Platform) Connections() []*Connection {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]*Connection, len(p.connections))
	copy(out, p.connections)
	return out
}
