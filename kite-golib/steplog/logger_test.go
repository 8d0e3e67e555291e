package steplog

import (
	"bytes"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSplitOutput(t *testing.T) {
	var out, errOut bytes.Buffer
	l := New(&out, &errOut)

	Step(l, 1, 20, 0.5, 1e-4)
	l.Error("decode failed")
	require.NoError(t, l.Sync())

	var rec map[string]interface{}
	require.NoError(t, json.Unmarshal(out.Bytes(), &rec))
	assert.Equal(t, "train step", rec["msg"])
	assert.Equal(t, float64(20), rec["step"])
	assert.Equal(t, 0.5, rec["loss"])

	assert.Contains(t, errOut.String(), "decode failed")
	assert.NotContains(t, out.String(), "decode failed")
}
