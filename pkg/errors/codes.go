package errors

import (
	"net/http"
	"strings"
)

// ErrorCode is a string representation of a specific error condition.
// Codes are "<MODULE>_<NNN>"; the module prefix groups codes per pipeline stage.
type ErrorCode string

func (c ErrorCode) String() string {
	return string(c)
}

// Common Error Codes
const (
	ErrCodeInternal           ErrorCode = "COMMON_001"
	ErrCodeBadRequest         ErrorCode = "COMMON_002"
	ErrCodeNotFound           ErrorCode = "COMMON_005"
	ErrCodeConflict           ErrorCode = "COMMON_006"
	ErrCodeServiceUnavailable ErrorCode = "COMMON_008"
	ErrCodeTimeout            ErrorCode = "COMMON_009"
	ErrCodeValidation         ErrorCode = "COMMON_010"
	ErrCodeSerialization      ErrorCode = "COMMON_011"
	ErrCodeDatabaseError      ErrorCode = "COMMON_012"
	ErrCodeCacheError         ErrorCode = "COMMON_013"
	ErrCodeExternalService    ErrorCode = "COMMON_014"
	ErrCodeMessagingError     ErrorCode = "COMMON_015"
)

// Aliases used at call sites that read better with the short form.
const (
	CodeUnknown      = ErrorCode("")
	CodeOK           = ErrorCode("OK")
	CodeInternal     = ErrCodeInternal
	CodeInvalidParam = ErrCodeBadRequest
	CodeNotFound     = ErrCodeNotFound
	CodeConflict     = ErrCodeConflict
)

// Source (bulk download) Error Codes
const (
	ErrCodeSourceDownload ErrorCode = "SRC_001"
	ErrCodeSourceExtract  ErrorCode = "SRC_002"
	ErrCodeSourceMissing  ErrorCode = "SRC_003"
)

// Parse Error Codes
const (
	ErrCodeParseFeeLine  ErrorCode = "PRS_001"
	ErrCodeParseFeeCodes ErrorCode = "PRS_002"
	ErrCodeParseCSV      ErrorCode = "PRS_003"
	ErrCodeParseXML      ErrorCode = "PRS_004"
)

// Assignment Error Codes
const (
	ErrCodeJoinUnresolved ErrorCode = "ASN_001"
)

// Enrichment Error Codes
const (
	ErrCodeEnrichmentFailed ErrorCode = "ENR_001"
	ErrCodeEnrichmentDecode ErrorCode = "ENR_002"
)

// Artifact Store Error Codes
const (
	ErrCodeArtifactNotFound       ErrorCode = "ART_001"
	ErrCodeArtifactSchemaMismatch ErrorCode = "ART_002"
	ErrCodeArtifactWriteFailed    ErrorCode = "ART_003"
)

// Patent Error Codes
const (
	ErrCodePatentNotFound      ErrorCode = "PAT_001"
	ErrCodePatentNumberInvalid ErrorCode = "PAT_003"
	ErrCodeReportingSetUnknown ErrorCode = "PAT_010"
)

// Pipeline Error Codes
const (
	ErrCodePipelineLocked     ErrorCode = "PIPE_001"
	ErrCodePipelineJobUnknown ErrorCode = "PIPE_002"
)

// ErrorCodeHTTPStatus maps ErrorCode to HTTP status code.
var ErrorCodeHTTPStatus = map[ErrorCode]int{
	ErrCodeInternal:           http.StatusInternalServerError,
	ErrCodeBadRequest:         http.StatusBadRequest,
	ErrCodeNotFound:           http.StatusNotFound,
	ErrCodeConflict:           http.StatusConflict,
	ErrCodeServiceUnavailable: http.StatusServiceUnavailable,
	ErrCodeTimeout:            http.StatusGatewayTimeout,
	ErrCodeValidation:         http.StatusBadRequest,
	ErrCodeSerialization:      http.StatusInternalServerError,
	ErrCodeDatabaseError:      http.StatusInternalServerError,
	ErrCodeCacheError:         http.StatusInternalServerError,
	ErrCodeExternalService:    http.StatusBadGateway,
	ErrCodeMessagingError:     http.StatusInternalServerError,

	ErrCodeSourceDownload: http.StatusBadGateway,
	ErrCodeSourceExtract:  http.StatusBadGateway,
	ErrCodeSourceMissing:  http.StatusNotFound,

	ErrCodeParseFeeLine:  http.StatusUnprocessableEntity,
	ErrCodeParseFeeCodes: http.StatusUnprocessableEntity,
	ErrCodeParseCSV:      http.StatusUnprocessableEntity,
	ErrCodeParseXML:      http.StatusUnprocessableEntity,

	ErrCodeJoinUnresolved: http.StatusNotFound,

	ErrCodeEnrichmentFailed: http.StatusBadGateway,
	ErrCodeEnrichmentDecode: http.StatusBadGateway,

	ErrCodeArtifactNotFound:       http.StatusNotFound,
	ErrCodeArtifactSchemaMismatch: http.StatusInternalServerError,
	ErrCodeArtifactWriteFailed:    http.StatusInternalServerError,

	ErrCodePatentNotFound:      http.StatusNotFound,
	ErrCodePatentNumberInvalid: http.StatusBadRequest,
	ErrCodeReportingSetUnknown: http.StatusBadRequest,

	ErrCodePipelineLocked:     http.StatusConflict,
	ErrCodePipelineJobUnknown: http.StatusBadRequest,
}

// ErrorCodeMessage maps ErrorCode to default human-readable message.
var ErrorCodeMessage = map[ErrorCode]string{
	ErrCodeInternal:           "internal server error",
	ErrCodeBadRequest:         "bad request",
	ErrCodeNotFound:           "resource not found",
	ErrCodeConflict:           "resource conflict",
	ErrCodeServiceUnavailable: "service unavailable",
	ErrCodeTimeout:            "request timeout",
	ErrCodeValidation:         "validation failed",
	ErrCodeSerialization:      "serialization error",
	ErrCodeDatabaseError:      "database error",
	ErrCodeCacheError:         "cache error",
	ErrCodeExternalService:    "external service error",
	ErrCodeMessagingError:     "messaging error",

	ErrCodeSourceDownload: "failed to download bulk archive",
	ErrCodeSourceExtract:  "failed to extract bulk archive",
	ErrCodeSourceMissing:  "expected archive entry missing",

	ErrCodeParseFeeLine:  "malformed maintenance fee line",
	ErrCodeParseFeeCodes: "malformed fee code table",
	ErrCodeParseCSV:      "malformed assignment csv",
	ErrCodeParseXML:      "malformed assignment xml",

	ErrCodeJoinUnresolved: "assignment record did not match a patent",

	ErrCodeEnrichmentFailed: "patent search api request failed",
	ErrCodeEnrichmentDecode: "patent search api returned an unreadable body",

	ErrCodeArtifactNotFound:       "artifact not found",
	ErrCodeArtifactSchemaMismatch: "artifact schema mismatch",
	ErrCodeArtifactWriteFailed:    "failed to write artifact",

	ErrCodePatentNotFound:      "patent not found",
	ErrCodePatentNumberInvalid: "invalid patent number",
	ErrCodeReportingSetUnknown: "unknown reporting set",

	ErrCodePipelineLocked:     "another pipeline run holds the lock",
	ErrCodePipelineJobUnknown: "unknown pipeline job",
}

// HTTPStatusForCode returns the HTTP status code for an ErrorCode.
func HTTPStatusForCode(code ErrorCode) int {
	if status, ok := ErrorCodeHTTPStatus[code]; ok {
		return status
	}
	return http.StatusInternalServerError
}

// DefaultMessageForCode returns the default message for an ErrorCode.
func DefaultMessageForCode(code ErrorCode) string {
	if msg, ok := ErrorCodeMessage[code]; ok {
		return msg
	}
	return "unknown error"
}

// IsClientError returns true if the ErrorCode corresponds to a 4xx HTTP status.
func IsClientError(code ErrorCode) bool {
	status := HTTPStatusForCode(code)
	return status >= 400 && status < 500
}

// IsServerError returns true if the ErrorCode corresponds to a 5xx HTTP status.
func IsServerError(code ErrorCode) bool {
	status := HTTPStatusForCode(code)
	return status >= 500 && status < 600
}

// ModuleForCode returns the module prefix of an ErrorCode.
func ModuleForCode(code ErrorCode) string {
	parts := strings.Split(string(code), "_")
	if len(parts) > 0 && parts[0] != "" {
		return parts[0]
	}
	return "UNKNOWN"
}
