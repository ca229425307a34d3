package bus

import (
	"github.com/jaypipes/ghw/pkg/block"
	"github.com/mudler/go-pluggable"
)

const (
	// Provisioning lifecycle events.

	// EventInstallStart is emitted once the plan is validated, before the
	// first destructive stage runs.
	EventInstallStart pluggable.EventType = "install.start"

	// EventInstallStage is emitted before each pipeline stage.
	EventInstallStage pluggable.EventType = "install.stage"

	// EventInstallSuccess is emitted after the full pipeline completed.
	EventInstallSuccess pluggable.EventType = "install.success"

	// EventInstallError is emitted when the pipeline aborts, after cleanup.
	EventInstallError pluggable.EventType = "install.error"

	// EventDiscoveryPassphrase asks discovery plugins for the encryption
	// passphrase of a partition. The response data is the passphrase itself
	// and is never logged.
	EventDiscoveryPassphrase pluggable.EventType = "discovery.passphrase"
)

// EventResponseSuccess, EventResponseError and EventResponseNotApplicable are the possible responses to an event.
// You can use whatever you want as a response but we provide this constants so consumers can use the same values.
const (
	EventResponseSuccess       = "success"
	EventResponseError         = "error"
	EventResponseNotApplicable = "non-applicable"
)

// InstallPayload accompanies the start and success events.
type InstallPayload struct {
	Device string `json:"device"`
	Config string `json:"config"`
}

// StagePayload names the stage about to run.
type StagePayload struct {
	Stage  string `json:"stage"`
	Device string `json:"device"`
}

// ErrorPayload carries the abort reason.
type ErrorPayload struct {
	Stage string `json:"stage"`
	Error string `json:"error"`
}

// DiscoveryPassphrasePayload is sent to discovery plugins when a passphrase
// is requested. The partition is the runtime view of the container being
// encrypted or opened; Attempt counts re-requests after a rejected value.
type DiscoveryPassphrasePayload struct {
	Partition *block.Partition `json:"partition"`
	Attempt   int              `json:"attempt"`
}

// AllEvents is a convenience list of all the events streamed from the bus.
var AllEvents = []pluggable.EventType{
	EventInstallStart,
	EventInstallStage,
	EventInstallSuccess,
	EventInstallError,
	EventDiscoveryPassphrase,
}

// IsEventDefined checks wether an event is defined in the bus.
// It accepts strings or EventType, returns a boolean indicating that
// the event was defined among the events emitted by the bus.
func IsEventDefined(i interface{}, events ...pluggable.EventType) bool {
	checkEvent := func(e pluggable.EventType) bool {
		for _, ee := range append(AllEvents, events...) {
			if ee == e {
				return true
			}
		}

		return false
	}

	switch f := i.(type) {
	case string:
		return checkEvent(pluggable.EventType(f))
	case pluggable.EventType:
		return checkEvent(f)
	default:
		return false
	}
}

func EventError(err error) pluggable.EventResponse {
	return pluggable.EventResponse{Error: err.Error()}
}
