package api_test

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"numflow/internal/api"
	"numflow/internal/chunk"
	"numflow/internal/job"
	"numflow/internal/registry"
	"numflow/source"
)

type fakePipeline struct {
	err  error
	args []string
}

func (f *fakePipeline) Transform(_ context.Context, link string) (job.Result, error) {
	f.args = append(f.args, link)
	if f.err != nil {
		return job.Result{Operation: job.OpTransform, Status: job.StatusError, Message: f.err.Error()}, f.err
	}
	return job.Result{
		JobID: "j-1", Operation: job.OpTransform, Status: job.StatusSuccess,
		Message: "Transformation completed successfully", OutputPath: "downloads/transformed_data_a.csv",
		RowCount: 10, ChunkCount: 1, HandleID: "h1",
	}, nil
}

func (f *fakePipeline) Inverse(_ context.Context, path string) (job.Result, error) {
	f.args = append(f.args, path)
	if f.err != nil {
		return job.Result{Operation: job.OpInverse, Status: job.StatusError, Message: f.err.Error()}, f.err
	}
	return job.Result{Operation: job.OpInverse, Status: job.StatusSuccess, InverseOutputPath: "downloads/inverse_" + path}, nil
}

func do(t *testing.T, h http.Handler, method, path, body string) (*httptest.ResponseRecorder, map[string]any) {
	t.Helper()
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	var doc map[string]any
	if strings.HasPrefix(rec.Header().Get("Content-Type"), "application/json") {
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &doc))
	}
	return rec, doc
}

func TestTransformEndpoint(t *testing.T) {
	p := &fakePipeline{}
	h := api.NewServer(":0", p).Handler()

	rec, doc := do(t, h, http.MethodPost, "/api/v1/transform", `{"link":"https://drive.google.com/file/d/a/view"}`)
	require.Equal(t, http.StatusOK, rec.Code)
	require.Equal(t, "success", doc["status"])
	require.Equal(t, "downloads/transformed_data_a.csv", doc["outputPath"])
	require.EqualValues(t, 10, doc["rowCount"])
	require.Equal(t, "h1", doc["handleId"])

	rec, _ = do(t, h, http.MethodPost, "/api/v1/transform", `{"drive_link":"https://drive.google.com/file/d/b/view"}`)
	require.Equal(t, http.StatusOK, rec.Code)
	require.Equal(t, []string{
		"https://drive.google.com/file/d/a/view",
		"https://drive.google.com/file/d/b/view",
	}, p.args)
}

func TestInverseEndpoint(t *testing.T) {
	p := &fakePipeline{}
	h := api.NewServer(":0", p).Handler()

	rec, doc := do(t, h, http.MethodPost, "/api/v1/inverse_transform", `{"transformed_file_path":"transformed_data_a.csv"}`)
	require.Equal(t, http.StatusOK, rec.Code)
	require.Equal(t, "downloads/inverse_transformed_data_a.csv", doc["inverseOutputPath"])
}

func TestFaultStatusCodes(t *testing.T) {
	for name, tc := range map[string]struct {
		err  error
		want int
	}{
		"invalid link": {&source.InvalidLinkError{Link: "x", Reason: "no id"}, http.StatusBadRequest},
		"fetch":        {&source.FetchError{Link: "x", Attempts: 3, Cause: errors.New("503")}, http.StatusBadRequest},
		"not found":    {&registry.NotFoundError{HandleID: "h"}, http.StatusNotFound},
		"chunks":       {&chunk.ProcessingError{Failures: []chunk.Failure{{Err: errors.New("x")}}}, http.StatusInternalServerError},
		"unknown":      {errors.New("disk full"), http.StatusInternalServerError},
	} {
		t.Run(name, func(t *testing.T) {
			h := api.NewServer(":0", &fakePipeline{err: tc.err}).Handler()
			rec, doc := do(t, h, http.MethodPost, "/api/v1/transform", `{"link":"l"}`)
			require.Equal(t, tc.want, rec.Code)
			require.Equal(t, "error", doc["status"])
			require.Equal(t, tc.err.Error(), doc["message"])
		})
	}
}

func TestBadRequests(t *testing.T) {
	p := &fakePipeline{}
	h := api.NewServer(":0", p).Handler()

	for _, body := range []string{`{`, `{}`, `{"link":""}`} {
		rec, doc := do(t, h, http.MethodPost, "/api/v1/transform", body)
		require.Equal(t, http.StatusBadRequest, rec.Code, body)
		require.Equal(t, "error", doc["status"], body)
	}
	rec, _ := do(t, h, http.MethodPost, "/api/v1/inverse_transform", `{}`)
	require.Equal(t, http.StatusBadRequest, rec.Code)
	require.Empty(t, p.args)
}

func TestHealthAndMetrics(t *testing.T) {
	h := api.NewServer(":0", &fakePipeline{}).Handler()

	rec, doc := do(t, h, http.MethodGet, "/healthz", "")
	require.Equal(t, http.StatusOK, rec.Code)
	require.Equal(t, "ok", doc["status"])

	rec, _ = do(t, h, http.MethodGet, "/metrics", "")
	require.Equal(t, http.StatusOK, rec.Code)
	require.Contains(t, rec.Body.String(), "go_goroutines")
}
