package kitelog

import (
	"bytes"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDurationsAccumulate(t *testing.T) {
	var d Durations
	d.Record("load", time.Second)
	d.Record("forward+backward", 2*time.Second)
	d.Record("load", time.Second)

	require.Len(t, d, 2)
	assert.Equal(t, 2*time.Second, d.Total("load"))
	assert.Equal(t, 2, d[0].count)
	assert.Equal(t, time.Duration(0), d.Total("missing"))
}

func TestFlushResets(t *testing.T) {
	var buf bytes.Buffer
	l := NewForRunTo(&buf, "run-1", "train").WithDurations()
	l.Durations.Record("optimizer", 4*time.Millisecond)
	l.Durations.Record("optimizer", 2*time.Millisecond)
	l.Durations.Flush(l)

	assert.Empty(t, l.Durations)
	assert.Contains(t, buf.String(), "run=run-1 stage=train")
	assert.Contains(t, buf.String(), "optimizer")
	assert.Contains(t, buf.String(), "3ms/op")
}
