package harness

import (
	"testing"
)

func TestZZProbeResolveProfile(t *testing.T) {
	window := uint64(20)
	attempts := 2
	spec := &ProfileSpec{
		Window:              &window,
		MaxRecoveryAttempts: &attempts,
		Thresholds:          map[string]int{"SensorImplausible": 2},
	}
	p, err := resolveProfile(spec, "")
	if err != nil {
		t.Fatal(err)
	}
	t.Logf("window=%d holdoff=%d attempts=%d thresholds=%v recoverable=%v",
		p.Window, p.Holdoff, p.MaxRecoveryAttempts, p.Thresholds, p.Recoverable)
}
