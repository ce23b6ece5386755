package importapi

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recordedRequest struct {
	Method string
	Step   string
	Path   string
	Body   []byte
	Header http.Header
}

// fakeService mimics the remote import service.
type fakeService struct {
	mu        sync.Mutex
	requests  []recordedRequest
	states    []State
	polls     int
	overrides map[string]func(w http.ResponseWriter)
}

func stepOf(path string) string {
	switch {
	case strings.HasSuffix(path, "/rdos-configurations"):
		return "rdo"
	case strings.HasSuffix(path, "/begin"):
		return "begin"
	case strings.HasSuffix(path, "/end"):
		return "end"
	case strings.HasSuffix(path, "/details"):
		return "details"
	case strings.HasSuffix(path, "/progress"):
		return "progress"
	case strings.Contains(path, "/sources/"):
		return "source"
	default:
		return "create"
	}
}

func (f *fakeService) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	body, _ := io.ReadAll(r.Body)
	step := stepOf(r.URL.Path)

	f.mu.Lock()
	f.requests = append(f.requests, recordedRequest{Method: r.Method, Step: step, Path: r.URL.Path, Body: body, Header: r.Header.Clone()})
	override := f.overrides[step]
	var state State
	if step == "details" && len(f.states) > 0 {
		idx := f.polls
		if idx >= len(f.states) {
			idx = len(f.states) - 1
		}
		state = f.states[idx]
		f.polls++
	}
	f.mu.Unlock()

	if override != nil {
		override(w)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	switch step {
	case "details":
		json.NewEncoder(w).Encode(map[string]interface{}{"IsSuccess": true, "Value": map[string]interface{}{"State": state}})
	case "progress":
		json.NewEncoder(w).Encode(map[string]interface{}{"IsSuccess": true, "Value": Progress{TotalRecords: 3, ImportedRecords: 2, ErroredRecords: 1}})
	default:
		w.Write([]byte(`{"IsSuccess":true,"ErrorCode":"","ErrorMessage":""}`))
	}
}

func (f *fakeService) steps() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]string, len(f.requests))
	for i, r := range f.requests {
		out[i] = r.Step
	}
	return out
}

func (f *fakeService) request(step string) *recordedRequest {
	f.mu.Lock()
	defer f.mu.Unlock()
	for i := range f.requests {
		if f.requests[i].Step == step {
			return &f.requests[i]
		}
	}
	return nil
}

type recorderFake struct {
	mu    sync.Mutex
	calls []uuid.UUID
	jobID int64
}

func (r *recorderFake) RecordRemoteIDs(_ context.Context, jobID int64, importID, sourceID uuid.UUID) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.jobID = jobID
	r.calls = append(r.calls, importID, sourceID)
}

func newTestOrchestrator(t *testing.T, svc *fakeService, cfg Config, rec RemoteIDRecorder) (*Orchestrator, *int) {
	t.Helper()
	srv := httptest.NewServer(svc)
	t.Cleanup(srv.Close)

	client, err := NewClient(srv.URL, StaticToken("test-token"))
	require.NoError(t, err)

	o := NewOrchestrator(client, cfg, rec, zerolog.Nop())
	sleeps := 0
	o.sleep = func(ctx context.Context, _ time.Duration) error {
		sleeps++
		return ctx.Err()
	}
	return o, &sleeps
}

func testRequest() Request {
	return Request{
		JobID:              42,
		WorkspaceID:        1017,
		TargetObjectTypeID: 1000052,
		FilePath:           `\\files\ws1017\export_with_identifiers.csv`,
		FieldMappings:      FieldMappingsFor([]string{"Rfc822MessageId", "Subject", "Identifier", "FileLinkedDocument"}),
	}
}

func TestRunFullSequence(t *testing.T) {
	svc := &fakeService{states: []State{"New", "Inserting", StateCompleted}}
	rec := &recorderFake{}
	o, sleeps := newTestOrchestrator(t, svc, Config{}, rec)

	res, err := o.Run(context.Background(), testRequest())
	require.NoError(t, err)

	assert.Equal(t, StateCompleted, res.State)
	assert.Equal(t, 3, res.PollAttempts)
	assert.Equal(t, 2, *sleeps)
	assert.Equal(t, []string{"create", "rdo", "source", "begin", "end", "details", "details", "details", "progress"}, svc.steps())
	require.NotNil(t, res.Progress)
	assert.Equal(t, int64(3), res.Progress.TotalRecords)
	assert.True(t, strings.HasPrefix(res.CorrelationID, "GmailMetadataImport-"))

	assert.Equal(t, int64(42), rec.jobID)
	assert.Equal(t, []uuid.UUID{res.ImportID, res.SourceID}, rec.calls)

	create := svc.request("create")
	assert.Equal(t, http.MethodPost, create.Method)
	assert.Equal(t, "/Relativity.REST/api/import-service/v1/workspaces/1017/import-jobs/"+res.ImportID.String(), create.Path)
	assert.Equal(t, "Bearer test-token", create.Header.Get("Authorization"))
	assert.Equal(t, "-", create.Header.Get("X-CSRF-Header"))
	assert.JSONEq(t, `{"applicationName":"GmailMetadata-Import","correlationID":"`+res.CorrelationID+`"}`, string(create.Body))

	rdo := svc.request("rdo")
	assert.JSONEq(t, `{"importSettings":{"Overlay":null,"Fields":{"FieldMappings":[
		{"Field":"Rfc822MessageId","ContainsID":false,"ColumnIndex":0,"ContainsFilePath":false},
		{"Field":"Subject","ContainsID":false,"ColumnIndex":1,"ContainsFilePath":false},
		{"Field":"Identifier","ContainsID":false,"ColumnIndex":2,"ContainsFilePath":false},
		{"Field":"File (Linked Document)","ContainsID":false,"ColumnIndex":3,"ContainsFilePath":false}]},
		"Rdo":{"ArtifactTypeID":1000052,"ParentColumnIndex":null}}}`, string(rdo.Body))

	source := svc.request("source")
	assert.True(t, strings.HasSuffix(source.Path, "/sources/"+res.SourceID.String()))
	var ds dataSourcePayload
	require.NoError(t, json.Unmarshal(source.Body, &ds))
	assert.Equal(t, LoadFileSettings(`\\files\ws1017\export_with_identifiers.csv`), ds.DataSourceSettings)

	begin := svc.request("begin")
	assert.Empty(t, begin.Body)
}

func TestRunTerminalStates(t *testing.T) {
	for _, state := range []State{StateCompleted, StateCompletedWithErrors, StateFailed} {
		t.Run(string(state), func(t *testing.T) {
			svc := &fakeService{states: []State{state}}
			o, sleeps := newTestOrchestrator(t, svc, Config{}, nil)

			res, err := o.Run(context.Background(), testRequest())
			require.NoError(t, err)
			assert.Equal(t, state, res.State)
			assert.Equal(t, 0, *sleeps)
		})
	}
}

func TestRunStepRejected(t *testing.T) {
	svc := &fakeService{overrides: map[string]func(w http.ResponseWriter){
		"rdo": func(w http.ResponseWriter) {
			w.Write([]byte(`{"IsSuccess":false,"ErrorCode":"J.RUN.001","ErrorMessage":"bad mapping"}`))
		},
	}}
	rec := &recorderFake{}
	o, _ := newTestOrchestrator(t, svc, Config{}, rec)

	res, err := o.Run(context.Background(), testRequest())
	require.Error(t, err)

	var apiErr *APIError
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, "J.RUN.001", apiErr.Code)
	assert.Equal(t, http.StatusOK, apiErr.StatusCode)
	assert.Equal(t, StateCreated, res.State)
	assert.Len(t, rec.calls, 2, "remote ids are recorded once the job exists")
	assert.Equal(t, []string{"create", "rdo"}, svc.steps())
}

func TestRunCreateFailsWithHTTPStatus(t *testing.T) {
	svc := &fakeService{overrides: map[string]func(w http.ResponseWriter){
		"create": func(w http.ResponseWriter) {
			w.WriteHeader(http.StatusUnauthorized)
			w.Write([]byte("denied"))
		},
	}}
	rec := &recorderFake{}
	o, _ := newTestOrchestrator(t, svc, Config{}, rec)

	_, err := o.Run(context.Background(), testRequest())
	var apiErr *APIError
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, http.StatusUnauthorized, apiErr.StatusCode)
	assert.Equal(t, "denied", apiErr.Message)
	assert.Empty(t, rec.calls)
	assert.Equal(t, []string{"create"}, svc.steps())
}

func TestRunAcceptsUndecodableSuccessBody(t *testing.T) {
	svc := &fakeService{
		states: []State{StateCompleted},
		overrides: map[string]func(w http.ResponseWriter){
			"begin": func(w http.ResponseWriter) { w.Write([]byte("<html>ok</html>")) },
			"end":   func(w http.ResponseWriter) { w.WriteHeader(http.StatusNoContent) },
		},
	}
	o, _ := newTestOrchestrator(t, svc, Config{}, nil)

	res, err := o.Run(context.Background(), testRequest())
	require.NoError(t, err)
	assert.Equal(t, StateCompleted, res.State)
}

func TestRunPollTimeoutIsNotAnError(t *testing.T) {
	svc := &fakeService{states: []State{"Inserting"}}
	o, sleeps := newTestOrchestrator(t, svc, Config{MaxPollAttempts: 4, ProgressLogEvery: 2}, nil)

	res, err := o.Run(context.Background(), testRequest())
	require.NoError(t, err)
	assert.Equal(t, StateTimedOut, res.State)
	assert.Equal(t, 4, res.PollAttempts)
	assert.Equal(t, 3, *sleeps)
	assert.Equal(t, []string{"create", "rdo", "source", "begin", "end",
		"details", "details", "progress", "details", "details", "progress"}, svc.steps())
}

func TestRunPollErrorsAreRetried(t *testing.T) {
	var mu sync.Mutex
	calls := 0
	svc := &fakeService{}
	svc.overrides = map[string]func(w http.ResponseWriter){
		"details": func(w http.ResponseWriter) {
			mu.Lock()
			calls++
			n := calls
			mu.Unlock()
			switch n {
			case 1:
				w.WriteHeader(http.StatusBadGateway)
			case 2:
				w.Write([]byte(`{"IsSuccess":false}`))
			default:
				w.Write([]byte(`{"IsSuccess":true,"Value":{"State":"Completed"}}`))
			}
		},
	}
	o, _ := newTestOrchestrator(t, svc, Config{}, nil)

	res, err := o.Run(context.Background(), testRequest())
	require.NoError(t, err)
	assert.Equal(t, StateCompleted, res.State)
	assert.Equal(t, 3, res.PollAttempts)
}

func TestRunStopsPollingOnCancel(t *testing.T) {
	svc := &fakeService{states: []State{"Inserting"}}
	o, _ := newTestOrchestrator(t, svc, Config{}, nil)

	ctx, cancel := context.WithCancel(context.Background())
	o.sleep = func(context.Context, time.Duration) error {
		cancel()
		return context.Canceled
	}

	res, err := o.Run(ctx, testRequest())
	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, StatePolling, res.State)
}

func TestRunRequiresMappings(t *testing.T) {
	o, _ := newTestOrchestrator(t, &fakeService{}, Config{}, nil)
	req := testRequest()
	req.FieldMappings = nil

	_, err := o.Run(context.Background(), req)
	assert.Error(t, err)
}

func TestCustomPathPrefixAndRateLimit(t *testing.T) {
	svc := &fakeService{}
	srv := httptest.NewServer(svc)
	defer srv.Close()

	client, err := NewClient(srv.URL+"/", StaticToken("t"), WithPathPrefix("/api/v2/"), WithRateLimit(1000))
	require.NoError(t, err)

	importID := uuid.New()
	require.NoError(t, client.Begin(context.Background(), 7, importID))
	assert.Equal(t, "/api/v2/workspaces/7/import-jobs/"+importID.String()+"/begin", svc.request("begin").Path)
}

func TestNewClientValidation(t *testing.T) {
	_, err := NewClient("not a url", StaticToken("t"))
	assert.Error(t, err)
	_, err = NewClient("https://example.com", nil)
	assert.Error(t, err)

	_, err = StaticToken("").Token(context.Background())
	assert.Error(t, err)
}

func TestClientCredentialsProvider(t *testing.T) {
	var form map[string][]string
	tokenSrv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, r.ParseForm())
		form = r.PostForm
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"access_token":"abc123","token_type":"Bearer","expires_in":3600}`))
	}))
	defer tokenSrv.Close()

	p, err := NewClientCredentialsProvider(CredentialsConfig{
		TokenURL:     TokenURLFor(tokenSrv.URL + "/"),
		ClientID:     "agent",
		ClientSecret: "s3cret",
	}, tokenSrv.Client())
	require.NoError(t, err)

	tok, err := p.Token(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "abc123", tok)
	assert.Equal(t, []string{"client_credentials"}, form["grant_type"])
	assert.Equal(t, []string{"SystemUserInfo"}, form["scope"])
	assert.Equal(t, []string{"agent"}, form["client_id"])

	_, err = NewClientCredentialsProvider(CredentialsConfig{TokenURL: "x"}, nil)
	assert.Error(t, err)
}

func TestStateTerminal(t *testing.T) {
	assert.True(t, StateCompleted.Terminal())
	assert.True(t, StateCompletedWithErrors.Terminal())
	assert.True(t, StateFailed.Terminal())
	assert.False(t, StateTimedOut.Terminal())
	assert.False(t, State("Inserting").Terminal())
}
