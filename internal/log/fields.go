package log

// Common field names for structured logging
const (
	FieldComponent   = "component"
	FieldRequestID   = "request_id"
	FieldClientIP    = "client_ip"
	FieldMethod      = "method"
	FieldPath        = "path"
	FieldQuery       = "query"
	FieldStatusCode  = "status_code"
	FieldDuration    = "duration_ms"
	FieldUserAgent   = "user_agent"
	FieldSuccess     = "success"
	FieldError       = "error"
	FieldOperation   = "operation"
	FieldBatchID     = "batch_id"
	FieldSource      = "source"
	FieldParsed      = "parsed"
	FieldInserted    = "inserted"
	FieldSkipped     = "skipped"
	FieldFailed      = "failed"
	FieldAudited     = "audited"
	FieldCategory    = "category"
	FieldTransaction = "transaction_id"
	FieldRawText     = "raw_text"
)

// Components defines standard component names
const (
	ComponentApp       = "app"
	ComponentHTTP      = "http"
	ComponentPipeline  = "pipeline"
	ComponentBackup    = "backup"
	ComponentClassify  = "classify"
	ComponentExtract   = "extract"
	ComponentStorage   = "storage"
	ComponentAMQP      = "amqp"
	ComponentWorker    = "worker"
	ComponentSheets    = "sheets"
	ComponentCache     = "cache"
	ComponentSecurity  = "security"
	ComponentRateLimit = "rate_limit"
	ComponentTrace     = "trace"
)

// Operations defines standard operation names
const (
	OpIngest   = "ingest"
	OpParse    = "parse"
	OpLoad     = "load"
	OpRead     = "read"
	OpList     = "list"
	OpAppend   = "append"
	OpSync     = "sync"
	OpScan     = "scan"
	OpMigrate  = "migrate"
	OpShutdown = "shutdown"
	OpStartup  = "startup"
)

// LogFields provides a builder pattern for structured log fields
type LogFields map[string]any

// NewFields creates a new LogFields instance
func NewFields() LogFields {
	return make(LogFields)
}

func (f LogFields) WithComponent(component string) LogFields {
	f[FieldComponent] = component
	return f
}

func (f LogFields) WithRequestID(requestID string) LogFields {
	f[FieldRequestID] = requestID
	return f
}

func (f LogFields) WithClientIP(ip string) LogFields {
	f[FieldClientIP] = ip
	return f
}

// WithError adds the error text, skipping nil errors
func (f LogFields) WithError(err error) LogFields {
	if err != nil {
		f[FieldError] = err.Error()
	}
	return f
}

func (f LogFields) WithOperation(op string) LogFields {
	f[FieldOperation] = op
	return f
}

// WithBatch adds the ingestion batch identity
func (f LogFields) WithBatch(batchID, source string) LogFields {
	f[FieldBatchID] = batchID
	f[FieldSource] = source
	return f
}

// WithCounts adds the outcome counters of an ingestion run
func (f LogFields) WithCounts(parsed, inserted, skipped, failed int) LogFields {
	f[FieldParsed] = parsed
	f[FieldInserted] = inserted
	f[FieldSkipped] = skipped
	f[FieldFailed] = failed
	return f
}

// WithHTTPRequest adds HTTP request fields
func (f LogFields) WithHTTPRequest(method, path, query, userAgent string) LogFields {
	f[FieldMethod] = method
	f[FieldPath] = path
	f[FieldQuery] = query
	if userAgent != "" {
		f[FieldUserAgent] = userAgent
	}
	return f
}

// WithHTTPResponse adds HTTP response fields
func (f LogFields) WithHTTPResponse(statusCode int, durationMs int64) LogFields {
	f[FieldStatusCode] = statusCode
	f[FieldDuration] = durationMs
	f[FieldSuccess] = statusCode < 400
	return f
}

// ToSlice converts LogFields to a slice for slog
func (f LogFields) ToSlice() []any {
	slice := make([]any, 0, len(f)*2)
	for k, v := range f {
		slice = append(slice, k, v)
	}
	return slice
}
