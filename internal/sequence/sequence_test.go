package sequence

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRun_StepsExecuteInOrder(t *testing.T) {
	var order []string

	err := New().
		Then("open", func(context.Context) error {
			order = append(order, "open")
			return nil
		}).
		Then("copy", func(context.Context) error {
			order = append(order, "copy")
			return nil
		}).
		Then("close", func(context.Context) error {
			order = append(order, "close")
			return nil
		}).
		Run(context.Background())

	require.NoError(t, err)
	assert.Equal(t, []string{"open", "copy", "close"}, order)
}

func TestRun_FirstErrorStopsTheChain(t *testing.T) {
	boom := errors.New("boom")
	var ran []string

	err := New().
		Then("first", func(context.Context) error {
			ran = append(ran, "first")
			return nil
		}).
		Then("second", func(context.Context) error {
			ran = append(ran, "second")
			return boom
		}).
		Then("third", func(context.Context) error {
			ran = append(ran, "third")
			return nil
		}).
		Run(context.Background())

	require.Error(t, err)
	assert.ErrorIs(t, err, boom)
	assert.Contains(t, err.Error(), "second")
	assert.Equal(t, []string{"first", "second"}, ran)
}

func TestRun_CancelledContextAbortsBeforeNextStep(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())

	var ran []string
	err := New().
		Then("first", func(context.Context) error {
			ran = append(ran, "first")
			cancel()
			return nil
		}).
		Then("second", func(context.Context) error {
			ran = append(ran, "second")
			return nil
		}).
		Run(ctx)

	require.Error(t, err)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, []string{"first"}, ran)
}

func TestRun_EmptyChain(t *testing.T) {
	c := New()
	assert.Zero(t, c.Len())
	assert.NoError(t, c.Run(context.Background()))
}
