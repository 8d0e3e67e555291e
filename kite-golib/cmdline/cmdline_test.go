package cmdline

import (
	"bytes"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// go-arg inspects every field of an args struct, so results are recorded here instead.
var handled []*echoArgs

type echoArgs struct {
	Config string `arg:"required"`
	Steps  int
}

func (a *echoArgs) Validate() error {
	if a.Steps < 0 {
		return errors.New("steps must be non-negative")
	}
	return nil
}

func (a *echoArgs) Handle() error {
	handled = append(handled, a)
	return nil
}

func TestDispatch(t *testing.T) {
	handled = nil
	var buf bytes.Buffer
	args := &echoArgs{}
	cmd := Command{Name: "train", Synopsis: "train a model", Args: args}

	err := Dispatch(&buf, []string{"train", "--config", "c.yaml", "--steps", "3"}, cmd)
	require.NoError(t, err)
	require.Len(t, handled, 1)
	assert.Equal(t, args, handled[0])
	assert.Equal(t, "c.yaml", args.Config)
	assert.Equal(t, 3, args.Steps)
}

func TestDispatchErrors(t *testing.T) {
	handled = nil
	var buf bytes.Buffer
	cmd := Command{Name: "train", Synopsis: "train a model", Args: &echoArgs{}}

	assert.Error(t, Dispatch(&buf, nil, cmd))
	assert.Contains(t, buf.String(), "train a model")

	assert.Error(t, Dispatch(&buf, []string{"bogus"}, cmd))
	assert.Equal(t, ErrHelp, Dispatch(&buf, []string{"help"}, cmd))
	assert.Equal(t, ErrHelp, Dispatch(&buf, []string{"help", "train"}, cmd))

	args := &echoArgs{}
	err := Dispatch(&buf, []string{"train", "--config", "c.yaml", "--steps=-1"}, Command{Name: "train", Args: args})
	assert.Error(t, err)
	assert.Empty(t, handled)
}
