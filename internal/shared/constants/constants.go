package constants

const (
	// Default pagination window for list endpoints.
	DefaultPage     = 1
	DefaultPageSize = 50
	MaxPageSize     = 200

	// Public key shape: 64 lowercase hex chars; indexed prefixes derived from it.
	PublicKeyLength = 64
	PrefixMinLength = 2
	Prefix2Length   = 2
	Prefix8Length   = 8
	MsgPrefixLength = 12 // contact messages carry a 12-char sender prefix

	// Table names, shared by models and the retention sweeper.
	TableNodes          = "nodes"
	TableNodeTags       = "node_tags"
	TableMessages       = "messages"
	TableAdvertisements = "advertisements"
	TableTracePaths     = "trace_paths"
	TableTelemetry      = "telemetry"
	TableEventLogs      = "event_logs"
)
