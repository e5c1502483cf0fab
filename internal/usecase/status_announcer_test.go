package usecase_test

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"chat-orchestrator/internal/usecase"
)

func TestStatusAnnouncer_Enabled(t *testing.T) {
	a := usecase.NewStatusAnnouncer(true)

	assert.Equal(t, "Processing your request...", a.Announce(usecase.StageReceived))
	assert.Equal(t, "Building context...", a.Announce(usecase.StageBuildingContext))
	assert.Equal(t, "Generating response...", a.Announce(usecase.StageGenerating))
}

func TestStatusAnnouncer_Disabled(t *testing.T) {
	a := usecase.NewStatusAnnouncer(false)

	assert.Empty(t, a.Announce(usecase.StageReceived))
	assert.Empty(t, a.Announce(usecase.StageBuildingContext))
	assert.Empty(t, a.Announce(usecase.StageGenerating))
}

func TestStatusAnnouncer_UnknownStage(t *testing.T) {
	a := usecase.NewStatusAnnouncer(true)
	assert.Empty(t, a.Announce(usecase.Stage("warming_up")))
}
