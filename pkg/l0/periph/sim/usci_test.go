package sim

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/robotalks/relay.go/pkg/l0/irq"
	"github.com/robotalks/relay.go/pkg/l0/periph"
)

func newTestUSCI(t *testing.T, mode Mode) (*USCI, *irq.Controller, *[]irq.Vector) {
	ctl := irq.NewController()
	var raised []irq.Vector
	h := func(v irq.Vector) { raised = append(raised, v) }
	require.NoError(t, ctl.Register(periph.VectorTX, "tx", irq.PriorityNormal, h))
	require.NoError(t, ctl.Register(periph.VectorRX, "rx", irq.PriorityHigh, h))
	return New("uart", mode, ctl, periph.DefaultVectors), ctl, &raised
}

func TestResetState(t *testing.T) {
	u, _, _ := newTestUSCI(t, ModeAsync)
	require.True(t, u.TransmitReady())
	require.False(t, u.TransmitArmed())
	require.False(t, u.ReceivePending())
	require.Equal(t, RXIE, u.IE())
}

func TestArmWhenReadyRaises(t *testing.T) {
	u, _, raised := newTestUSCI(t, ModeAsync)
	u.ArmTransmitInterrupt()
	require.Equal(t, []irq.Vector{periph.VectorTX}, *raised)
	require.True(t, u.TransmitArmed())
	u.DisarmTransmitInterrupt()
	require.False(t, u.TransmitArmed())
}

func TestShiftOut(t *testing.T) {
	u, _, raised := newTestUSCI(t, ModeAsync)
	var wire []byte
	u.Wire = func(b byte) { wire = append(wire, b) }

	u.WriteTransmitRegister('a')
	require.False(t, u.TransmitReady())
	require.True(t, u.Busy())
	require.Empty(t, *raised, "not armed")

	b, ok := u.Tick()
	require.True(t, ok)
	require.Equal(t, byte('a'), b)
	require.True(t, u.TransmitReady())
	require.Equal(t, []byte("a"), wire)
	require.Empty(t, *raised, "completion without TXIE is silent")

	_, ok = u.Tick()
	require.False(t, ok)

	u.ArmTransmitInterrupt()
	*raised = nil
	u.WriteTransmitRegister('b')
	u.Tick()
	require.Equal(t, []irq.Vector{periph.VectorTX}, *raised)
}

func TestCollision(t *testing.T) {
	u, _, _ := newTestUSCI(t, ModeAsync)
	u.WriteTransmitRegister('a')
	u.WriteTransmitRegister('b')
	require.Equal(t, uint64(1), u.Counters().Collided)
	b, _ := u.Tick()
	require.Equal(t, byte('b'), b)
}

func TestReceive(t *testing.T) {
	u, _, raised := newTestUSCI(t, ModeAsync)
	u.Inject('x')
	require.True(t, u.ReceivePending())
	require.Equal(t, []irq.Vector{periph.VectorRX}, *raised)
	require.Equal(t, byte('x'), u.ReadReceiveRegister())
	require.False(t, u.ReceivePending(), "read clears RXIFG")

	u.Inject('y')
	u.Inject('z')
	require.Equal(t, uint64(1), u.Counters().Overruns)
	require.Equal(t, byte('z'), u.ReadReceiveRegister())
}

func TestSyncExchange(t *testing.T) {
	u, _, raised := newTestUSCI(t, ModeSync)
	u.Exchange = func(out byte) (byte, bool) { return ^out, true }
	u.WriteTransmitRegister(0x0f)
	u.Tick()
	require.True(t, u.ReceivePending())
	require.Equal(t, []irq.Vector{periph.VectorRX}, *raised)
	require.Equal(t, byte(0xf0), u.ReadReceiveRegister())
}

func TestClockStep(t *testing.T) {
	a, _, _ := newTestUSCI(t, ModeAsync)
	b, _, _ := newTestUSCI(t, ModeSync)
	clk := NewClock(a, b)
	a.WriteTransmitRegister(1)
	b.WriteTransmitRegister(2)
	require.Equal(t, 2, clk.Step(3))
	require.Equal(t, 0, clk.Step(1))
}
