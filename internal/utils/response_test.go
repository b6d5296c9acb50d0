package utils

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"gauge-service/internal/model"
)

func TestStatusForError(t *testing.T) {
	tests := []struct {
		err  error
		want int
	}{
		{fmt.Errorf("%w: channel number 9", model.ErrInvalidArgument), http.StatusBadRequest},
		{model.NewCommandError(model.ErrorKindCommandRejected, "ECC1", "PENDING", nil), http.StatusConflict},
		{model.NewCommandError(model.ErrorKindTransportError, "PR1", "", errors.New("port closed")), http.StatusBadGateway},
		{model.NewReadingError(model.ErrorKindChannelFault, model.ChannelP4, "NOGAUGE"), http.StatusFailedDependency},
		{model.ErrWrongModuleConfiguration, http.StatusFailedDependency},
		{model.NewReadingError(model.ErrorKindCommFailure, model.ChannelP1, ""), http.StatusServiceUnavailable},
		{model.NewReadingError(model.ErrorKindRangeAnomaly, model.ChannelP1, "9.9E+09"), http.StatusUnprocessableEntity},
		{model.ErrProtocolViolation, http.StatusUnprocessableEntity},
		{errors.New("boom"), http.StatusInternalServerError},
	}

	for _, tt := range tests {
		t.Run(tt.err.Error(), func(t *testing.T) {
			assert.Equal(t, tt.want, StatusForError(tt.err))
		})
	}
}

func TestGaugeErrorResponse(t *testing.T) {
	gin.SetMode(gin.TestMode)
	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)
	c.Set(RequestIDKey, "req-1")

	GaugeErrorResponse(c, "Command Off failed",
		model.NewCommandError(model.ErrorKindCommandRejected, "XCC1", "PENDING", nil))

	require.Equal(t, http.StatusConflict, w.Code)
	var resp APIResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.False(t, resp.Success)
	assert.Equal(t, "req-1", resp.RequestID)
	require.NotNil(t, resp.Error)
	assert.Equal(t, "COMMAND_REJECTED", resp.Error.Code)
	assert.Equal(t, string(model.ErrorKindCommandRejected), resp.Error.Kind)
	assert.Contains(t, resp.Error.Details, "PENDING")
}
