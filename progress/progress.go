// Package progress defines the typed event stream emitted while assets are
// being published. Events are transient: they are pushed to a listener and
// discarded, never stored.
package progress

import "github.com/input-output-hk/catalyst-forge-libs/assets/manifest"

// EventType classifies a single publishing event. The set is closed.
type EventType string

const (
	// EventStart is emitted when work on an asset begins.
	EventStart EventType = "start"

	// EventSuccess is emitted when an asset finishes successfully.
	EventSuccess EventType = "success"

	// EventFail is emitted when an asset fails.
	EventFail EventType = "fail"

	// EventCheck is emitted before probing whether an asset is already published.
	EventCheck EventType = "check"

	// EventFound is emitted when an asset turns out to be published already.
	EventFound EventType = "found"

	// EventCached is emitted when a locally cached package is reused.
	EventCached EventType = "cached"

	// EventBuild is emitted when an asset is about to be built or packaged.
	EventBuild EventType = "build"

	// EventUpload is emitted when an asset is about to be uploaded or pushed.
	EventUpload EventType = "upload"

	// EventDebug carries detail messages.
	EventDebug EventType = "debug"

	// EventShellOpen is emitted when a subprocess starts, when subprocess
	// output is configured to be published rather than written to stdio.
	EventShellOpen EventType = "shell_open"

	// EventShellData carries a chunk of subprocess output.
	EventShellData EventType = "shell_data"

	// EventShellClose is emitted when a subprocess exits.
	EventShellClose EventType = "shell_close"
)

// Event is a snapshot of publishing progress taken at emission time.
type Event struct {
	// Message is the human-readable description of what just happened
	Message string

	// CurrentAsset is the entry being worked on, if any
	CurrentAsset *manifest.Entry

	// PercentComplete is completed operations over total operations,
	// floored to a whole percentage; 100 for an empty manifest
	PercentComplete int
}

// Listener receives publishing events. Implementations that want to stop the
// publisher call its Abort method; the publisher checks its abort flag after
// every emission.
type Listener interface {
	// OnPublishEvent is called synchronously for every event
	OnPublishEvent(eventType EventType, event Event)
}

// OutputDestination selects where subprocess output of builds and pushes goes.
type OutputDestination string

const (
	// OutputStdio writes subprocess output to this process's stdout/stderr.
	OutputStdio OutputDestination = "stdio"

	// OutputIgnore discards subprocess output.
	OutputIgnore OutputDestination = "ignore"

	// OutputPublish forwards subprocess output as shell lifecycle events.
	OutputPublish OutputDestination = "publish"
)
