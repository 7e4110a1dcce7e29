package main

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/example/outreachbot/internal/config"
	"github.com/example/outreachbot/internal/orchestrator"
)

func TestLinkedIn_ImplementsBrowser(t *testing.T) {
	var br orchestrator.Browser = linkedIn{}
	assert.NotNil(t, br)
}

func TestLimits_FromConfig(t *testing.T) {
	cfg := config.Default()
	l := limits(&cfg)
	assert.Equal(t, 20, l.MaxConnectionsPerDay)
	assert.Equal(t, 15, l.MaxMessagesPerDay)
	assert.Equal(t, 10*time.Second, l.MinDelay)
	assert.Equal(t, 30*time.Second, l.MaxDelay)
	assert.Equal(t, 5, l.BreakAfterActions)
	assert.Equal(t, 2*time.Minute, l.BreakDuration)
	assert.Equal(t, "09:00", l.ActiveStart)
	assert.Equal(t, "18:00", l.ActiveEnd)
}
