package circulation

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"LIBRIS-backend/internal/platform/auth"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newApproverRouter(svc *Service) *gin.Engine {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	grp := r.Group("", func(c *gin.Context) {
		c.Set(auth.CtxUserIDKey, int64(7))
		c.Set(auth.CtxRoleKey, auth.RoleLibrarian)
	})
	RegisterApproverRoutes(grp, svc)
	return r
}

func postApprove(r *gin.Engine, issueID int64, body string, chunked bool) *httptest.ResponseRecorder {
	path := fmt.Sprintf("/circulation/requests/%d/approve", issueID)
	var req *http.Request
	if body == "" {
		req = httptest.NewRequest(http.MethodPost, path, nil)
	} else {
		req = httptest.NewRequest(http.MethodPost, path, strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
	}
	if chunked {
		// Length unknown, as with Transfer-Encoding: chunked.
		req.ContentLength = -1
	}
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func TestApproveHandlerDueDateBody(t *testing.T) {
	store := newFakeStore(testNow)
	store.addBook(1, "Wire Format", 3)
	svc := newTestService(store)
	r := newApproverRouter(svc)
	ctx := context.Background()

	t.Run("chunked body is still bound", func(t *testing.T) {
		req, err := svc.RequestIssue(ctx, 1, 42)
		require.NoError(t, err)

		w := postApprove(r, req.ID, `{"due_date":"2025-04-01"}`, true)
		assert.Equal(t, http.StatusOK, w.Code)
		row := store.find(req.ID)
		require.True(t, row.DueDate.Valid)
		assert.Equal(t, time.Date(2025, 4, 1, 0, 0, 0, 0, time.UTC), row.DueDate.Time)
	})

	t.Run("empty body falls back to the default term", func(t *testing.T) {
		req, err := svc.RequestIssue(ctx, 1, 43)
		require.NoError(t, err)

		w := postApprove(r, req.ID, "", false)
		assert.Equal(t, http.StatusOK, w.Code)
		row := store.find(req.ID)
		require.True(t, row.DueDate.Valid)
		assert.Equal(t, testNow.Truncate(24*time.Hour).AddDate(0, 0, 14), row.DueDate.Time)
	})

	t.Run("malformed body is rejected", func(t *testing.T) {
		req, err := svc.RequestIssue(ctx, 1, 44)
		require.NoError(t, err)

		w := postApprove(r, req.ID, `{"due_date":`, false)
		assert.Equal(t, http.StatusBadRequest, w.Code)
		assert.Equal(t, StatusRequested, store.find(req.ID).Status)
	})
}
