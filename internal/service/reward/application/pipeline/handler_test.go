package pipeline

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestCompensationsRunInReverseOrderOnce(t *testing.T) {
	pc := &ParticipationContext{UserID: 1}
	var order []string
	pc.AddCompensation(func(context.Context) { order = append(order, "quota") })
	pc.AddCompensation(func(context.Context) { order = append(order, "hold") })

	assert.Equal(t, 2, pc.TriggerCompensation(context.Background()))
	assert.Equal(t, []string{"hold", "quota"}, order)

	assert.Zero(t, pc.TriggerCompensation(context.Background()))
	assert.Len(t, order, 2)
}

func TestCongratulationMessage(t *testing.T) {
	assert.Equal(t, "Congratulations! You won 100 points.", CongratulationMessage("100 points"))
}
