package trenderr

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSeverity_String(t *testing.T) {
	assert.Equal(t, "WARNING", SeverityWarning.String())
	assert.Equal(t, "ERROR", SeverityError.String())
	assert.Equal(t, "CRITICAL", SeverityCritical.String())
	assert.Equal(t, "UNKNOWN", Severity(99).String())
}

func TestNetworkError_ErrorMessageVariesByStatusCode(t *testing.T) {
	withStatus := &NetworkError{URL: "http://x", StatusCode: 503, Cause: errors.New("boom")}
	assert.Contains(t, withStatus.Error(), "503")

	withoutStatus := &NetworkError{URL: "http://x", Cause: errors.New("boom")}
	assert.NotContains(t, withoutStatus.Error(), "returned status")
}

func TestNetworkError_Unwrap(t *testing.T) {
	cause := errors.New("boom")
	e := &NetworkError{URL: "http://x", Cause: cause}
	assert.ErrorIs(t, e, cause)
}

func TestSeverityOf_ClassifiesEachErrorKind(t *testing.T) {
	cases := []struct {
		name string
		err  error
		want Severity
	}{
		{"network", &NetworkError{}, SeverityError},
		{"parsing", &ParsingError{}, SeverityError},
		{"api", &ApiError{}, SeverityError},
		{"config", &ConfigError{}, SeverityCritical},
		{"cache", &CacheError{}, SeverityWarning},
		{"aggregation", &AggregationError{}, SeverityWarning},
		{"unclassified", errors.New("plain"), SeverityError},
	}
	for _, tt := range cases {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, SeverityOf(tt.err))
		})
	}
}

func TestErrorMessages_IncludeIdentifyingFields(t *testing.T) {
	assert.Contains(t, (&ParsingError{Source: "rss", Field: "title"}).Error(), "rss")
	assert.Contains(t, (&ApiError{APIName: "youtube", Code: "quotaExceeded"}).Error(), "quotaExceeded")
	assert.Contains(t, (&ConfigError{Key: "http.proxy"}).Error(), "http.proxy")
	assert.Contains(t, (&CacheError{Op: "get", Key: "k"}).Error(), "k")
	assert.Contains(t, (&AggregationError{Reason: "all adapters failed"}).Error(), "all adapters failed")
}
