package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
)

func TestMetricsRegistration(t *testing.T) {
	assert.NotNil(t, MessagesWritten)
	assert.NotNil(t, SendFailures)
	assert.NotNil(t, HTTPRequests)
	assert.NotNil(t, HTTPRequestDuration)
	assert.NotNil(t, RateLimited)
	assert.NotNil(t, GroupsLoaded)
	assert.NotNil(t, BuildInfo)
}

func TestSendFailuresByReason(t *testing.T) {
	before := testutil.ToFloat64(SendFailures.WithLabelValues(ReasonUnknownGroup))
	SendFailures.WithLabelValues(ReasonUnknownGroup).Inc()
	assert.Equal(t, before+1, testutil.ToFloat64(SendFailures.WithLabelValues(ReasonUnknownGroup)))
}
