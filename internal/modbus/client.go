// Package modbus provides the real Modbus TCP implementations of the
// kernel's collaborator interfaces: a HealthSource that decodes the
// health input block, and a CommandSink that writes the actuation
// block. Tests and the harness use in-memory mocks instead.
package modbus

import (
	"errors"
	"sync"
	"time"

	"github.com/goburrow/modbus"
)

// EndpointClient is a single TCP connection to one endpoint. It
// serializes requests because it mutates SlaveId per call.
type EndpointClient struct {
	mu      sync.Mutex
	handler *modbus.TCPClientHandler
	client  modbus.Client
}

// ClientConfig identifies one Modbus TCP endpoint.
type ClientConfig struct {
	Endpoint string
	Timeout  time.Duration
}

// NewEndpointClient connects to the endpoint. The connection is
// re-established transparently by the handler on subsequent calls after
// a drop.
func NewEndpointClient(cfg ClientConfig) (*EndpointClient, error) {
	if cfg.Endpoint == "" {
		return nil, errors.New("modbus: endpoint required")
	}

	h := modbus.NewTCPClientHandler(cfg.Endpoint)
	h.Timeout = cfg.Timeout

	if err := h.Connect(); err != nil {
		return nil, err
	}

	return &EndpointClient{
		handler: h,
		client:  modbus.NewClient(h),
	}, nil
}

// Close closes the TCP connection.
func (c *EndpointClient) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.handler.Close()
}

// ReadInputRegisters reads quantity registers starting at addr for one
// unit.
func (c *EndpointClient) ReadInputRegisters(unitID uint8, addr, quantity uint16) ([]uint16, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.handler.SlaveId = unitID

	raw, err := c.client.ReadInputRegisters(addr, quantity)
	if err != nil {
		return nil, err
	}
	return unpackRegisters(raw), nil
}

// WriteRegisters writes a register block for one unit.
func (c *EndpointClient) WriteRegisters(unitID uint8, addr uint16, regs []uint16) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.handler.SlaveId = unitID

	qty := uint16(len(regs))
	payload := packRegisters(regs)

	_, err := c.client.WriteMultipleRegisters(addr, qty, payload)
	return err
}

// WriteCoils writes a coil block for one unit.
func (c *EndpointClient) WriteCoils(unitID uint8, addr uint16, bits []bool) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.handler.SlaveId = unitID

	qty := uint16(len(bits))
	payload := packBits(bits)

	_, err := c.client.WriteMultipleCoils(addr, qty, payload)
	return err
}

func packBits(bits []bool) []byte {
	n := (len(bits) + 7) / 8
	out := make([]byte, n)
	for i, v := range bits {
		if v {
			out[i/8] |= 1 << uint(i%8)
		}
	}
	return out
}

func packRegisters(regs []uint16) []byte {
	out := make([]byte, len(regs)*2)
	for i, r := range regs {
		out[2*i] = byte(r >> 8)
		out[2*i+1] = byte(r)
	}
	return out
}

func unpackRegisters(raw []byte) []uint16 {
	out := make([]uint16, len(raw)/2)
	for i := range out {
		out[i] = uint16(raw[2*i])<<8 | uint16(raw[2*i+1])
	}
	return out
}
