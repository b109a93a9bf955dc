package handlers

import (
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"

	"github.com/Gopher0727/ProjectChat/internal/authz"
	"github.com/Gopher0727/ProjectChat/internal/services"
)

func TestStatusOf(t *testing.T) {
	cases := []struct {
		err  error
		want int
	}{
		{fmt.Errorf("%w: name is required", services.ErrValidation), http.StatusBadRequest},
		{fmt.Errorf("%w: %w", services.ErrPermission, authz.ErrForbidden), http.StatusForbidden},
		{fmt.Errorf("%w: channel", services.ErrNotFound), http.StatusNotFound},
		{fmt.Errorf("%w: duplicate name", services.ErrConflict), http.StatusConflict},
		{fmt.Errorf("%w: last admin", services.ErrInvariant), http.StatusUnprocessableEntity},
		{errors.New("connection reset"), http.StatusInternalServerError},
	}
	for _, tc := range cases {
		assert.Equal(t, tc.want, statusOf(tc.err), tc.err.Error())
	}
}

func TestServiceErrorHidesInternalDetails(t *testing.T) {
	gin.SetMode(gin.TestMode)
	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)
	c.Request = httptest.NewRequest(http.MethodGet, "/", nil)

	serviceError(c, namedLogger(nil, "test"), "op", errors.New("pq: password authentication failed"))
	assert.Equal(t, http.StatusInternalServerError, w.Code)
	assert.NotContains(t, w.Body.String(), "password")
}

func TestIDParam(t *testing.T) {
	gin.SetMode(gin.TestMode)
	for _, raw := range []string{"abc", "0", "-3"} {
		w := httptest.NewRecorder()
		c, _ := gin.CreateTestContext(w)
		c.Params = gin.Params{{Key: "channel_id", Value: raw}}
		_, ok := idParam(c, "channel_id")
		assert.False(t, ok, raw)
		assert.Equal(t, http.StatusBadRequest, w.Code, raw)
	}

	c, _ := gin.CreateTestContext(httptest.NewRecorder())
	c.Params = gin.Params{{Key: "channel_id", Value: "42"}}
	id, ok := idParam(c, "channel_id")
	assert.True(t, ok)
	assert.Equal(t, int64(42), id)
}
