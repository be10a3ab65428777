package fault

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEventIDDeterminism(t *testing.T) {
	ev := Event{
		Kind:    KindCommsTimeout,
		Channel: 2,
		Tick:    17,
		Payload: Context{"expected_seq": 41},
	}

	// Same inputs must produce same ID
	id1, err := EventID(ev)
	require.NoError(t, err)

	id2, err := EventID(ev)
	require.NoError(t, err)

	assert.Equal(t, id1, id2, "EventID must be deterministic")
	assert.Len(t, id1, 64, "SHA-256 hex is 64 characters")
}

func TestEventIDChangesWithInput(t *testing.T) {
	base := Event{Kind: KindCommsTimeout, Channel: 2, Tick: 17}

	other := base
	other.Channel = 3
	shifted := base
	shifted.Tick = 18
	rekinded := base
	rekinded.Kind = KindCommsIntegrityFault

	id1 := MustEventID(base)
	id2 := MustEventID(other)
	id3 := MustEventID(shifted)
	id4 := MustEventID(rekinded)

	assert.NotEqual(t, id1, id2, "Different channels should produce different IDs")
	assert.NotEqual(t, id1, id3, "Different ticks should produce different IDs")
	assert.NotEqual(t, id1, id4, "Different kinds should produce different IDs")
}

func TestTransitionIDDeterminism(t *testing.T) {
	tr := Transition{
		From:     StateNormal,
		To:       StateEmergencyShutdown,
		Tick:     5,
		Deadline: 15,
		Episode:  "ep-1",
		Cause: &Record{
			Kind:        KindWatchdogTimeout,
			Severity:    SeverityCritical,
			FirstSeen:   5,
			LastSeen:    5,
			Occurrences: 1,
		},
	}

	id1, err := TransitionID(tr)
	require.NoError(t, err)

	id2, err := TransitionID(tr)
	require.NoError(t, err)

	assert.Equal(t, id1, id2, "TransitionID must be deterministic")
	assert.Len(t, id1, 64, "SHA-256 hex is 64 characters")
}

func TestTransitionIDChangesWithCause(t *testing.T) {
	tr := Transition{From: StateNormal, To: StateDegraded, Tick: 10, Deadline: 60}

	withCause := tr
	withCause.Cause = &Record{Kind: KindCommsTimeout, Severity: SeverityPersistent, Channel: 2}

	id1 := MustTransitionID(tr)
	id2 := MustTransitionID(withCause)

	assert.NotEqual(t, id1, id2, "Cause must participate in the ID")
}

func TestEntryIDDistinguishesSeq(t *testing.T) {
	rec := &Record{Kind: KindSensorImplausible, Severity: SeverityTransient, Channel: 7}

	e1 := LogEntry{Seq: 1, Tick: 3, Class: EntryFault, Record: rec}
	e2 := LogEntry{Seq: 2, Tick: 3, Class: EntryFault, Record: rec}

	id1 := MustEntryID(e1)
	id2 := MustEntryID(e2)

	assert.NotEqual(t, id1, id2, "Same content at different seq must remain distinct rows")
}

func TestDomainSeparationPreventsCrossTypeCollision(t *testing.T) {
	// Same data hashed with different domains must produce different hashes
	data := []byte(`{"id":"test","data":42}`)

	evHash := hashWithDomain(DomainEvent, data)
	trHash := hashWithDomain(DomainTransition, data)
	enHash := hashWithDomain(DomainEntry, data)

	assert.NotEqual(t, evHash, trHash, "Different domains must produce different hashes")
	assert.NotEqual(t, evHash, enHash, "Different domains must produce different hashes")
	assert.NotEqual(t, trHash, enHash, "Different domains must produce different hashes")
}

func TestHashWithDomainNullSeparator(t *testing.T) {
	// "foo" + 0x00 + "bar" ≠ "foob" + 0x00 + "ar"
	hash1 := hashWithDomain("foo", []byte("bar"))
	hash2 := hashWithDomain("foob", []byte("ar"))

	assert.NotEqual(t, hash1, hash2, "Null separator must prevent boundary confusion")
}

func TestEventIDPayloadKeyOrdering(t *testing.T) {
	// Key ordering is deterministic regardless of map insertion order
	ev1 := Event{Kind: KindCoreMismatch, Tick: 1, Payload: Context{
		"zebra": 1,
		"alpha": 2,
	}}
	ev2 := Event{Kind: KindCoreMismatch, Tick: 1, Payload: Context{
		"alpha": 2,
		"zebra": 1,
	}}

	assert.Equal(t, MustEventID(ev1), MustEventID(ev2),
		"Key ordering must be deterministic regardless of insertion order")
}

func TestDomainConstants(t *testing.T) {
	assert.Equal(t, "vigil/event/v1", DomainEvent)
	assert.Equal(t, "vigil/transition/v1", DomainTransition)
	assert.Equal(t, "vigil/entry/v1", DomainEntry)
}

func TestMustFunctionsDoNotPanicOnValidInput(t *testing.T) {
	assert.NotPanics(t, func() {
		MustEventID(Event{Kind: KindCoreMismatch, Tick: 1})
	})
	assert.NotPanics(t, func() {
		MustTransitionID(Transition{From: StateNormal, To: StateSafeStop, Tick: 1, Deadline: 2})
	})
	assert.NotPanics(t, func() {
		MustEntryID(LogEntry{Seq: 1, Tick: 1, Class: EntryFault})
	})
}

func TestMustEventIDPanicsOnFloatPayload(t *testing.T) {
	ev := Event{Kind: KindSensorImplausible, Tick: 1, Payload: Context{"ratio": 0.5}}

	assert.Panics(t, func() {
		MustEventID(ev)
	}, "floats in payloads must be rejected")
}

func TestHashHexEncoding(t *testing.T) {
	id := MustEventID(Event{Kind: KindCoreMismatch, Tick: 1})

	for _, c := range id {
		valid := (c >= '0' && c <= '9') || (c >= 'a' && c <= 'f')
		assert.True(t, valid, "Hash should only contain hex characters, got: %c", c)
	}
}
