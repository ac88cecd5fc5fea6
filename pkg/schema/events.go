package schema

// Editor event types published by a designer session.
const (
	EventDefinitionLoaded = "editor.definition_loaded"
	EventDefinitionSaved  = "editor.definition_saved"
	EventSaveFailed       = "editor.save_failed"
	EventDraftSaved       = "editor.draft_saved"
	EventDraftRestored    = "editor.draft_restored"

	EventGraphChanged = "editor.graph_changed"

	EventConnectionCreated  = "editor.connection_created"
	EventConnectionRejected = "editor.connection_rejected"
)
