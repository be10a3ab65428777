package kernel

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/seastrand/vigil/internal/fault"
)

func newTestClassifier() *Classifier {
	return NewClassifier(testProfile())
}

func TestClassifier_Classify_TransientBelowThreshold(t *testing.T) {
	c := newTestClassifier()

	rec := c.Classify(event(fault.KindCommsTimeout, 1, 10))
	assert.Equal(t, fault.SeverityTransient, rec.Severity)
	assert.Equal(t, 1, rec.Occurrences)
	assert.Equal(t, uint64(10), rec.FirstSeen)

	rec = c.Classify(event(fault.KindCommsTimeout, 1, 11))
	assert.Equal(t, fault.SeverityTransient, rec.Severity)
	assert.Equal(t, 2, rec.Occurrences)
	assert.Equal(t, uint64(10), rec.FirstSeen)
	assert.Equal(t, uint64(11), rec.LastSeen)
}

func TestClassifier_Classify_PersistentAtThreshold(t *testing.T) {
	c := newTestClassifier()

	c.Classify(event(fault.KindCommsTimeout, 1, 10))
	c.Classify(event(fault.KindCommsTimeout, 1, 11))
	rec := c.Classify(event(fault.KindCommsTimeout, 1, 12))

	assert.Equal(t, fault.SeverityPersistent, rec.Severity)
	assert.Equal(t, 3, rec.Occurrences)
}

func TestClassifier_Classify_ChannelsTrackedIndependently(t *testing.T) {
	c := newTestClassifier()

	c.Classify(event(fault.KindCommsTimeout, 1, 10))
	c.Classify(event(fault.KindCommsTimeout, 1, 11))
	rec := c.Classify(event(fault.KindCommsTimeout, 2, 12))

	assert.Equal(t, fault.SeverityTransient, rec.Severity)
	assert.Equal(t, 1, rec.Occurrences)
}

func TestClassifier_Classify_NonRecoverableSkipsPersistent(t *testing.T) {
	c := newTestClassifier()

	// CoreMismatch and WatchdogTimeout carry threshold 1 and no
	// recovery action: the first occurrence is already Critical.
	rec := c.Classify(event(fault.KindCoreMismatch, 0, 5))
	assert.Equal(t, fault.SeverityCritical, rec.Severity)

	rec = c.Classify(event(fault.KindWatchdogTimeout, 0, 5))
	assert.Equal(t, fault.SeverityCritical, rec.Severity)
}

func TestClassifier_Classify_WindowExpiryResetsRecord(t *testing.T) {
	c := newTestClassifier()

	c.Classify(event(fault.KindCommsTimeout, 1, 10))
	c.Classify(event(fault.KindCommsTimeout, 1, 11))

	// Window 50, anchored at first occurrence. Tick 59 is the last
	// inside; tick 60 opens a fresh record.
	rec := c.Classify(event(fault.KindCommsTimeout, 1, 59))
	assert.Equal(t, fault.SeverityPersistent, rec.Severity)

	c.Reset(fault.KindCommsTimeout, 1)
	c.Classify(event(fault.KindCommsTimeout, 1, 10))
	rec = c.Classify(event(fault.KindCommsTimeout, 1, 60))
	assert.Equal(t, fault.SeverityTransient, rec.Severity)
	assert.Equal(t, 1, rec.Occurrences)
	assert.Equal(t, uint64(60), rec.FirstSeen)
}

func TestClassifier_Classify_CriticalIsSticky(t *testing.T) {
	c := newTestClassifier()

	c.Classify(event(fault.KindCommsTimeout, 1, 10))
	_, ok := c.Escalate(fault.KindCommsTimeout, 1)
	require.True(t, ok)

	// Further occurrences never downgrade a Critical record.
	rec := c.Classify(event(fault.KindCommsTimeout, 1, 11))
	assert.Equal(t, fault.SeverityCritical, rec.Severity)
}

func TestClassifier_Escalate_MissingRecord(t *testing.T) {
	c := newTestClassifier()

	_, ok := c.Escalate(fault.KindCommsTimeout, 9)
	assert.False(t, ok)

	c.Classify(event(fault.KindCommsTimeout, 9, 1))
	rec, ok := c.Escalate(fault.KindCommsTimeout, 9)
	require.True(t, ok)
	assert.Equal(t, fault.SeverityCritical, rec.Severity)
}

func TestClassifier_Reset_OpensFreshWindow(t *testing.T) {
	c := newTestClassifier()

	c.Classify(event(fault.KindCommsTimeout, 1, 10))
	c.Classify(event(fault.KindCommsTimeout, 1, 11))
	c.Reset(fault.KindCommsTimeout, 1)

	rec := c.Classify(event(fault.KindCommsTimeout, 1, 12))
	assert.Equal(t, 1, rec.Occurrences)
	assert.Equal(t, uint64(12), rec.FirstSeen)
}

func TestClassifier_AnyAtLeast(t *testing.T) {
	c := newTestClassifier()
	assert.False(t, c.AnyAtLeast(fault.SeverityTransient))

	c.Classify(event(fault.KindCommsTimeout, 1, 10))
	assert.True(t, c.AnyAtLeast(fault.SeverityTransient))
	assert.False(t, c.AnyAtLeast(fault.SeverityPersistent))

	c.Classify(event(fault.KindCommsTimeout, 1, 11))
	c.Classify(event(fault.KindCommsTimeout, 1, 12))
	assert.True(t, c.AnyAtLeast(fault.SeverityPersistent))
	assert.False(t, c.AnyAtLeast(fault.SeverityCritical))
}

func TestClassifier_Live_DeterministicOrder(t *testing.T) {
	c := newTestClassifier()

	c.Classify(event(fault.KindSensorImplausible, 2, 1))
	c.Classify(event(fault.KindCommsTimeout, 5, 2))
	c.Classify(event(fault.KindCommsTimeout, 1, 3))
	c.Classify(event(fault.KindCoreMismatch, 0, 4))

	live := c.Live()
	require.Len(t, live, 4)
	assert.Equal(t, fault.KindCoreMismatch, live[0].Kind)
	assert.Equal(t, fault.KindCommsTimeout, live[1].Kind)
	assert.Equal(t, 1, live[1].Channel)
	assert.Equal(t, fault.KindCommsTimeout, live[2].Kind)
	assert.Equal(t, 5, live[2].Channel)
	assert.Equal(t, fault.KindSensorImplausible, live[3].Kind)
}
