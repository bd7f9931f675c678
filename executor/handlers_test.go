package executor

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

type MockRunner struct {
	mock.Mock
}

func (m *MockRunner) Execute(ctx context.Context, code, language, input string) (Result, error) {
	args := m.Called(ctx, code, language, input)
	return args.Get(0).(Result), args.Error(1)
}

func performExecute(t *testing.T, runner Runner, body string) *httptest.ResponseRecorder {
	t.Helper()
	gin.SetMode(gin.TestMode)
	r := gin.New()
	RegisterRoute(r, NewHandler(runner))

	req := httptest.NewRequest(http.MethodPost, "/execute", strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func TestExecuteHandlerSuccess(t *testing.T) {
	runner := new(MockRunner)
	runner.On("Execute", mock.Anything, "print(1)", "python", "").
		Return(Result{Output: "1", Status: "Accepted", Time: "0.01", Memory: "512"}, nil)

	w := performExecute(t, runner, `{"code":"print(1)","language":"python"}`)

	assert.Equal(t, http.StatusOK, w.Code)
	var result Result
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &result))
	assert.Equal(t, "1", result.Output)
	assert.Equal(t, "Accepted", result.Status)
	runner.AssertExpectations(t)
}

func TestExecuteHandlerMissingFields(t *testing.T) {
	runner := new(MockRunner)

	w := performExecute(t, runner, `{"code":"","language":"python"}`)

	assert.Equal(t, http.StatusBadRequest, w.Code)
	runner.AssertNotCalled(t, "Execute")
}

func TestExecuteHandlerMalformedBody(t *testing.T) {
	runner := new(MockRunner)

	w := performExecute(t, runner, `{"code":`)

	assert.Equal(t, http.StatusBadRequest, w.Code)
	runner.AssertNotCalled(t, "Execute")
}

func TestExecuteHandlerUnsupportedLanguage(t *testing.T) {
	runner := new(MockRunner)
	runner.On("Execute", mock.Anything, "x", "cobol", "").
		Return(Result{}, ErrUnsupportedLanguage)

	w := performExecute(t, runner, `{"code":"x","language":"cobol"}`)

	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Contains(t, w.Body.String(), "unsupported-language")
}

func TestExecuteHandlerBackendFailureIsTerminalResult(t *testing.T) {
	runner := new(MockRunner)
	runner.On("Execute", mock.Anything, "x", "python", "").
		Return(Result{}, ErrExecutionFailed)

	w := performExecute(t, runner, `{"code":"x","language":"python"}`)

	assert.Equal(t, http.StatusOK, w.Code)
	var result Result
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &result))
	assert.Equal(t, "Failed", result.Status)
	assert.NotEmpty(t, result.Output)
}
