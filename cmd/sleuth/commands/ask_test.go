package commands

import (
	"bytes"
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/moolen/sleuth/internal/dialogue"
	"github.com/moolen/sleuth/internal/models"
)

// scriptedDriver replays a fixed list of actions, one per call.
type scriptedDriver struct {
	actions  []models.Action
	received []string
	err      error
}

func (d *scriptedDriver) next(text string) (dialogue.TurnResult, error) {
	d.received = append(d.received, text)
	if d.err != nil {
		return dialogue.TurnResult{}, d.err
	}
	a := d.actions[0]
	d.actions = d.actions[1:]
	return dialogue.TurnResult{
		Session: models.SessionState{ID: "sess-1"},
		Action:  a,
		Message: dialogue.Format(a),
	}, nil
}

func (d *scriptedDriver) StartSession(_ context.Context, problem string) (dialogue.TurnResult, error) {
	return d.next(problem)
}

func (d *scriptedDriver) HandleTurn(_ context.Context, _ string, text string) (dialogue.TurnResult, error) {
	return d.next(text)
}

func TestConverse_StopsOnConfirmedRootCause(t *testing.T) {
	d := &scriptedDriver{actions: []models.Action{
		models.AskGeneral{},
		models.ConfirmRootCause{RootCause: "disk io saturation", Confidence: 0.8},
	}}
	in := strings.NewReader("\nreplica lag grows\nignored\n")
	var out bytes.Buffer

	require.NoError(t, converse(context.Background(), d, "replica is slow", in, &out, false, nil))

	assert.Equal(t, []string{"replica is slow", "replica lag grows"}, d.received)
	assert.Contains(t, out.String(), "Root cause identified: disk io saturation")
	assert.Contains(t, out.String(), "Session sess-1 saved.")
	assert.NotContains(t, out.String(), "> ")
}

func TestConverse_ReadsProblemFromInput(t *testing.T) {
	d := &scriptedDriver{actions: []models.Action{models.AskInitialInfo{}, models.AskGeneral{}}}
	in := strings.NewReader("\n  api returns 502  \nmore detail\nquit\nnever sent\n")
	var out bytes.Buffer

	require.NoError(t, converse(context.Background(), d, "", in, &out, true, nil))

	assert.Equal(t, []string{"api returns 502", "more detail"}, d.received)
	assert.Contains(t, out.String(), "Describe the problem")
	assert.Contains(t, out.String(), ">")
}

func TestConverse_UsesRenderer(t *testing.T) {
	d := &scriptedDriver{actions: []models.Action{models.ConfirmRootCause{RootCause: "x", Confidence: 0.9}}}
	var out bytes.Buffer
	render := func(msg string) string { return "[" + msg + "]" }

	require.NoError(t, converse(context.Background(), d, "p", strings.NewReader(""), &out, false, render))
	assert.True(t, strings.HasPrefix(out.String(), "[Root cause identified: x"))
}

func TestConverse_EOFBeforeProblem(t *testing.T) {
	d := &scriptedDriver{}
	require.NoError(t, converse(context.Background(), d, "", strings.NewReader(""), &bytes.Buffer{}, false, nil))
	assert.Empty(t, d.received)
}

func TestConverse_PropagatesErrors(t *testing.T) {
	d := &scriptedDriver{err: errors.New("store unavailable")}
	err := converse(context.Background(), d, "problem", strings.NewReader(""), &bytes.Buffer{}, false, nil)
	assert.EqualError(t, err, "store unavailable")
}
