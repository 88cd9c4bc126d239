package observability

const (
	AttrServiceName      = "service.name"
	AttrServiceVersion   = "service.version"
	AttrAgentKey         = "agent.key"
	AttrFacultyName      = "faculty.name"
	AttrLLMModel         = "llm.model"
	AttrLLMRoute         = "llm.route"
	AttrLLMTokensInput   = "llm.tokens.input"
	AttrLLMTokensOutput  = "llm.tokens.output"
	AttrErrorType        = "error.type"
	AttrHTTPMethod       = "http.method"
	AttrHTTPPath         = "http.path"
	AttrHTTPStatusCode   = "http.status_code"
	AttrHTTPResponseSize = "http.response_size"

	SpanFacultyCall     = "faculty.call"
	SpanLLMRequest      = "llm.request"
	SpanOrchestrate     = "orchestrator.process_prompt"
	SpanBackgroundAudit = "orchestrator.background_audit"
	SpanHTTPRequest     = "http.request"

	DefaultServiceName  = "aegis"
	DefaultOTLPEndpoint = "localhost:4317"
	DefaultSamplingRate = 1.0
	DefaultMetricsPath  = "/metrics"
)
