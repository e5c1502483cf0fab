package usecase

// Stage identifies a point in the chat pipeline worth announcing.
type Stage string

const (
	StageReceived        Stage = "received"
	StageBuildingContext Stage = "building_context"
	StageGenerating      Stage = "generating"
)

var stageTexts = map[Stage]string{
	StageReceived:        "Processing your request...",
	StageBuildingContext: "Building context...",
	StageGenerating:      "Generating response...",
}

// StatusAnnouncer produces human-readable progress text for a stage.
// It is a pure function of configuration and stage: no state, no I/O.
type StatusAnnouncer struct {
	enabled bool
}

// NewStatusAnnouncer creates an announcer gated by the thinking toggle.
func NewStatusAnnouncer(enabled bool) *StatusAnnouncer {
	return &StatusAnnouncer{enabled: enabled}
}

// Announce returns the progress text for stage, or the empty string
// when announcements are disabled or the stage is unknown.
func (a *StatusAnnouncer) Announce(stage Stage) string {
	if !a.enabled {
		return ""
	}
	return stageTexts[stage]
}
