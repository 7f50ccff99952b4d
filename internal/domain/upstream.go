package domain

// UpstreamCategory classifies a failure reported by a managed backend.
type UpstreamCategory string

const (
	UpstreamValidation       UpstreamCategory = "validation"
	UpstreamNotFound         UpstreamCategory = "not_found"
	UpstreamThrottling       UpstreamCategory = "throttling"
	UpstreamAccessDenied     UpstreamCategory = "access_denied"
	UpstreamConflict         UpstreamCategory = "conflict"
	UpstreamDependencyFailed UpstreamCategory = "dependency_failed"
	UpstreamQuotaExceeded    UpstreamCategory = "quota_exceeded"
	UpstreamBadGateway       UpstreamCategory = "bad_gateway"
	UpstreamInternal         UpstreamCategory = "internal"
	UpstreamUnknown          UpstreamCategory = "unknown"
)
