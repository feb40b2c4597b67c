package apierr

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mcoot/livequiz/internal/model"
)

func TestStatusMapping(t *testing.T) {
	tests := []struct {
		name   string
		err    error
		status int
		code   string
	}{
		{"quiz not found", model.ErrQuizNotFound, http.StatusNotFound, CodeQuizNotFound},
		{"wrapped session not found", fmt.Errorf("load: %w", model.ErrSessionNotFound), http.StatusNotFound, CodeSessionNotFound},
		{"topic required", model.ErrTopicRequired, http.StatusBadRequest, CodeTopicRequired},
		{"invalid option", model.ErrInvalidOption, http.StatusBadRequest, CodeInvalidOption},
		{"duplicate answer", model.ErrDuplicateAnswer, http.StatusConflict, CodeDuplicateAnswer},
		{"no questions", model.ErrNoQuestions, http.StatusConflict, CodeNoQuestions},
		{"quiz ended", model.ErrQuizEnded, http.StatusConflict, CodeQuizEnded},
		{"store failure", model.StoreFailure("get", errors.New("conn refused")), http.StatusServiceUnavailable, CodeStoreUnavailable},
		{"code exhaustion", model.ErrJoinCodeExhausted, http.StatusServiceUnavailable, CodeStoreUnavailable},
		{"explicit invalid request", NewInvalidRequestError("bad body"), http.StatusBadRequest, CodeInvalidRequest},
		{"unknown", errors.New("boom"), http.StatusInternalServerError, CodeInternalError},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := httptest.NewRecorder()
			WriteError(rec, tt.err)

			assert.Equal(t, tt.status, rec.Code)
			assert.Equal(t, tt.status, Status(tt.err))
			assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))

			var body ErrorResponse
			require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
			assert.Equal(t, tt.code, body.Error.Code)
			assert.NotEmpty(t, body.Error.Message)
		})
	}
}
