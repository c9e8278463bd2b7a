package config

// NSQ topics connecting the pipeline stages, in processing order. Every hop
// is at-least-once: a consumer that fails a message sees it again.
const (
	// TopicExtractText receives freshly uploaded documents.
	TopicExtractText = "doc.task.text"

	// TopicEmbed receives documents whose text has been extracted.
	TopicEmbed = "doc.task.embed"

	// TopicExtract receives documents ready for structured extraction.
	TopicExtract = "doc.task.extract"

	// TopicValidate receives documents with structured data attached.
	TopicValidate = "doc.task.validate"

	// TopicSave receives fully processed documents for persistence.
	TopicSave = "doc.task.save"
)

// Channel is the shared NSQ channel name for all stage consumers.
const Channel = "pipeline"
