package model

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDecodeModulesFormatsInstalledModules(t *testing.T) {
	cfg, err := DecodeModules("CcCcNc")
	require.NoError(t, err)
	assert.Equal(t, "P1=CC:ColdCathode; P2=A:ColdCathode; P4=B:NoModule", cfg.String())
	assert.Equal(t, []Channel{ChannelP2, ChannelP3}, cfg.A.Channels)
}

func TestDecodeModulesRejectsWrongModule(t *testing.T) {
	_, err := DecodeModules("WcCcNc")
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrWrongModuleConfiguration))

	_, err = DecodeModules("CcXx")
	assert.ErrorIs(t, err, ErrWrongModuleConfiguration)

	_, err = DecodeModules("CcQqNc")
	assert.ErrorIs(t, err, ErrWrongModuleConfiguration)
}

func TestPiraniChannels(t *testing.T) {
	assert.Equal(t, []Channel{ChannelP4, ChannelP5}, PiraniChannels("CcCcPr"))
	assert.Equal(t, []Channel{ChannelP2, ChannelP3, ChannelP4, ChannelP5}, PiraniChannels("HcCvPr"))
	assert.Empty(t, PiraniChannels("CcCcCc"))
	assert.Empty(t, PiraniChannels(""))
}

func TestParseChannel(t *testing.T) {
	ch, err := ParseChannel(" p3 ")
	require.NoError(t, err)
	assert.Equal(t, ChannelP3, ch)
	assert.Equal(t, 2, ch.Index())
	assert.False(t, ChannelRLY1.IsPressure())

	_, err = ParseChannel("P9")
	assert.Error(t, err)
}

func TestCommHealthFailed(t *testing.T) {
	now := mustTime(t)
	healthy := CommHealth{Errors: 1, Registers: 5, LastSuccess: now.Add(-StaleAfter / 2)}
	assert.False(t, healthy.Failed(now))

	tooMany := healthy
	tooMany.Errors = 5
	assert.True(t, tooMany.Failed(now))

	stale := healthy
	stale.LastSuccess = now.Add(-StaleAfter - 1)
	assert.True(t, stale.Failed(now))
}

func TestGaugeErrorKind(t *testing.T) {
	err := NewCommandError(ErrorKindCommandRejected, "ECC1", "PENDING", nil)
	kind, ok := KindOf(err)
	require.True(t, ok)
	assert.Equal(t, ErrorKindCommandRejected, kind)
	assert.Contains(t, err.Error(), "ECC1")
	assert.False(t, kind.Recoverable())
	assert.True(t, ErrorKindRangeAnomaly.Recoverable())
}

func mustTime(t *testing.T) time.Time {
	t.Helper()
	ts, err := time.Parse(time.RFC3339, "2024-03-01T10:00:00Z")
	require.NoError(t, err)
	return ts
}
