package modbus

import (
	"fmt"

	"github.com/seastrand/vigil/internal/fault"
)

// RegisterWriter is the write side of EndpointClient the gateway needs.
type RegisterWriter interface {
	WriteRegisters(unitID uint8, addr uint16, regs []uint16) error
	WriteCoils(unitID uint8, addr uint16, bits []bool) error
}

// GatewayConfig addresses the actuation block on the wire.
type GatewayConfig struct {
	UnitID uint8
}

// Gateway writes actuation commands to the holding block and the
// contactor coil. Implements kernel.CommandSink; write errors propagate
// to the kernel, which reports them as a fault on the actuator channel.
type Gateway struct {
	writer RegisterWriter
	cfg    GatewayConfig
}

// NewGateway creates a gateway over a connected writer.
func NewGateway(writer RegisterWriter, cfg GatewayConfig) (*Gateway, error) {
	if writer == nil {
		return nil, fmt.Errorf("modbus gateway: writer required")
	}
	return &Gateway{writer: writer, cfg: cfg}, nil
}

// Deliver implements kernel.CommandSink. The register block is written
// before the contactor coil so a partial delivery that opens the
// contactor has already zeroed torque.
func (g *Gateway) Deliver(cmd fault.Command) error {
	regs := EncodeCommand(cmd)
	if err := g.writer.WriteRegisters(g.cfg.UnitID, RegTorqueCeiling, regs); err != nil {
		return fmt.Errorf("write actuation block: %w", err)
	}
	if err := g.writer.WriteCoils(g.cfg.UnitID, CoilContactor, []bool{cmd.ContactorEnable}); err != nil {
		return fmt.Errorf("write contactor coil: %w", err)
	}
	return nil
}

// EncodeCommand encodes a command as the actuation holding block. Pure;
// exported for encode/decode tests and the harness loopback.
func EncodeCommand(cmd fault.Command) []uint16 {
	regs := make([]uint16, ActuationBlockLen)
	regs[RegTorqueCeiling] = uint16(cmd.TorqueCeiling)
	regs[RegBrakingRequest] = uint16(cmd.BrakingRequest)
	if cmd.DegradedFlag {
		regs[RegCommandFlags] |= commandDegradedBit
	}
	return regs
}

// DecodeCommand is the inverse of EncodeCommand; the contactor state
// travels on a coil, not in the block, so the caller supplies it.
func DecodeCommand(regs []uint16, contactor bool) (fault.Command, error) {
	if len(regs) < ActuationBlockLen {
		return fault.Command{}, fmt.Errorf("short actuation block: got %d words, want %d", len(regs), ActuationBlockLen)
	}
	return fault.Command{
		TorqueCeiling:   uint32(regs[RegTorqueCeiling]),
		ContactorEnable: contactor,
		BrakingRequest:  uint32(regs[RegBrakingRequest]),
		DegradedFlag:    regs[RegCommandFlags]&commandDegradedBit != 0,
	}, nil
}
