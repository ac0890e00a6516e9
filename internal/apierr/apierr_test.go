package apierr

import (
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/draftboard/draftboard/internal/quota"
	"github.com/draftboard/draftboard/internal/spec"
	"github.com/draftboard/draftboard/internal/storage"
	"github.com/draftboard/draftboard/internal/storage/protected"
)

func TestStatusMapping(t *testing.T) {
	cases := map[string]int{
		CodeInvalidJSON:     http.StatusBadRequest,
		CodeValidationError: http.StatusBadRequest,
		CodeInvalidToken:    http.StatusUnauthorized,
		CodeForbidden:       http.StatusForbidden,
		CodeNotFound:        http.StatusNotFound,
		CodeVersionConflict: http.StatusConflict,
		CodeRateLimited:     http.StatusTooManyRequests,
		CodeUpstream:        http.StatusBadGateway,
		CodeCircuitOpen:     http.StatusServiceUnavailable,
		"QUOTA_NODES":       http.StatusInternalServerError,
	}
	for code, want := range cases {
		assert.Equal(t, want, Status(code), code)
	}
}

func TestClassify(t *testing.T) {
	code, _, details := Classify(&spec.ValidationError{Issues: []spec.Issue{{Path: "$.nodes[0].id", Message: "required"}}})
	assert.Equal(t, CodeValidationError, code)
	assert.NotNil(t, details)

	code, _, _ = Classify(&quota.ExceededError{Resource: "nodes", Limit: 500, Actual: 501, Code: "QUOTA_NODES"})
	assert.Equal(t, "QUOTA_NODES", code)

	code, _, _ = Classify(&protected.CircuitOpenError{RetryAfter: 10 * time.Second})
	assert.Equal(t, CodeCircuitOpen, code)

	code, _, _ = Classify(storage.ErrNotFound)
	assert.Equal(t, CodeNotFound, code)

	code, _, _ = Classify(&storage.RetryExhaustedError{Attempts: 3})
	assert.Equal(t, CodeVersionConflict, code)

	code, _, _ = Classify(errors.New("boom"))
	assert.Equal(t, CodeInternal, code)
}

func TestWriteElidesDetailsOutsideDevMode(t *testing.T) {
	err := &quota.ExceededError{Resource: "nodes", Limit: 500, Actual: 501, Code: "QUOTA_NODES"}

	rec := httptest.NewRecorder()
	Write(rec, err, false)
	var env Envelope
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &env))
	assert.Equal(t, "QUOTA_NODES", env.Error.Code)
	assert.Nil(t, env.Error.Details)

	rec = httptest.NewRecorder()
	Write(rec, err, true)
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &env))
	assert.NotNil(t, env.Error.Details)
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
}
