package qdrant

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/yungbote/docchat-backend/internal/platform/apierr"
	"github.com/yungbote/docchat-backend/internal/platform/logger"
	"github.com/yungbote/docchat-backend/internal/platform/pinecone"
)

type roundTripFunc func(*http.Request) (*http.Response, error)

func (f roundTripFunc) RoundTrip(r *http.Request) (*http.Response, error) { return f(r) }

func testStore(t *testing.T, fn roundTripFunc) *vectorStore {
	t.Helper()
	return &vectorStore{
		log:      logger.NewNop(),
		rest:     &restClient{baseURL: "http://qdrant.local", http: &http.Client{Transport: fn}},
		cfg:      Config{Collection: "docchat", VectorDim: 3},
		nsPrefix: "docs",
		distance: "Cosine",
	}
}

func envelopeResponse(t *testing.T, result any) *http.Response {
	t.Helper()
	raw, err := json.Marshal(map[string]any{"result": result, "status": "ok", "time": 0.001})
	require.NoError(t, err)
	return &http.Response{StatusCode: http.StatusOK, Header: http.Header{}, Body: io.NopCloser(bytes.NewReader(raw))}
}

func rawResponse(status int, body string) *http.Response {
	return &http.Response{StatusCode: status, Header: http.Header{}, Body: io.NopCloser(strings.NewReader(body))}
}

func TestUpsertWritesNamespacedPoints(t *testing.T) {
	var got upsertRequest
	s := testStore(t, func(r *http.Request) (*http.Response, error) {
		require.Equal(t, http.MethodPut, r.Method)
		require.Equal(t, "/collections/docchat/points", r.URL.Path)
		require.Equal(t, "wait=true", r.URL.RawQuery)
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		return envelopeResponse(t, map[string]any{"status": "acknowledged"}), nil
	})

	meta := map[string]any{"source": "a.md"}
	err := s.Upsert(context.Background(), "kb", []pinecone.Vector{
		{ID: "c1", Values: []float32{1, 2, 3}, Metadata: meta},
		{ID: "c2", Values: []float32{4, 5, 6}, Metadata: map[string]any{"source": "b.pdf", "page": 0}},
	})
	require.NoError(t, err)
	require.Len(t, got.Points, 2)
	require.Equal(t, pointID("docs:kb", "c1"), got.Points[0].ID)
	require.Equal(t, "docs:kb", got.Points[0].Payload[nsPayloadKey])
	require.Equal(t, "c1", got.Points[0].Payload[idPayloadKey])
	require.Equal(t, "a.md", got.Points[0].Payload["source"])
	require.NotContains(t, meta, nsPayloadKey, "caller metadata must not be mutated")
}

func TestUpsertBatches(t *testing.T) {
	var sizes []int
	s := testStore(t, func(r *http.Request) (*http.Response, error) {
		var req upsertRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		sizes = append(sizes, len(req.Points))
		return envelopeResponse(t, nil), nil
	})
	vectors := make([]pinecone.Vector, upsertBatchSize+10)
	for i := range vectors {
		vectors[i] = pinecone.Vector{ID: fmt.Sprintf("c%d", i), Values: []float32{1, 0, 0}}
	}
	require.NoError(t, s.Upsert(context.Background(), "", vectors))
	require.Equal(t, []int{upsertBatchSize, 10}, sizes)
}

func TestUpsertRejectsWrongDimension(t *testing.T) {
	s := testStore(t, func(r *http.Request) (*http.Response, error) {
		t.Fatalf("no request expected")
		return nil, nil
	})
	err := s.Upsert(context.Background(), "kb", []pinecone.Vector{{ID: "c1", Values: []float32{1, 2}}})
	var opErrTyped *OperationError
	require.ErrorAs(t, err, &opErrTyped)
	require.Equal(t, OperationErrorValidation, opErrTyped.Code)
	require.False(t, errors.Is(err, apierr.ErrUpstream))
}

func TestQueryMatchesFiltersByNamespaceAndNormalizesScores(t *testing.T) {
	var got map[string]any
	s := testStore(t, func(r *http.Request) (*http.Response, error) {
		require.Equal(t, "/collections/docchat/points/search", r.URL.Path)
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		return envelopeResponse(t, []map[string]any{
			{"id": "p-b", "score": 0.9, "payload": map[string]any{idPayloadKey: "b", nsPayloadKey: "docs:kb", "source": "b.pdf"}},
			{"id": "p-a", "score": 0.1, "payload": map[string]any{idPayloadKey: "a"}},
		}), nil
	})
	s.distance = "Euclid"

	matches, err := s.QueryMatches(context.Background(), "kb", []float32{1, 2, 3}, 2, map[string]any{
		"source": map[string]any{"$in": []any{"a.md", "b.pdf"}},
	})
	require.NoError(t, err)
	require.Len(t, matches, 2)
	require.Equal(t, "a", matches[0].ID, "smaller distance ranks first")
	require.Greater(t, matches[0].Score, matches[1].Score)
	require.Equal(t, "b.pdf", matches[1].Metadata["source"])
	require.NotContains(t, matches[1].Metadata, nsPayloadKey)

	must := got["filter"].(map[string]any)["must"].([]any)
	require.Len(t, must, 2)
	ns := must[0].(map[string]any)
	require.Equal(t, nsPayloadKey, ns["key"])
	require.Equal(t, "docs:kb", ns["match"].(map[string]any)["value"])
	require.Equal(t, true, got["with_payload"])
}

func TestQueryIDsFallsBackToPointID(t *testing.T) {
	s := testStore(t, func(r *http.Request) (*http.Response, error) {
		return envelopeResponse(t, []map[string]any{
			{"id": 42, "score": 0.3, "payload": map[string]any{}},
			{"id": "p-1", "score": 0.2, "payload": map[string]any{idPayloadKey: "c1"}},
		}), nil
	})
	ids, err := s.QueryIDs(context.Background(), "kb", []float32{1, 2, 3}, 5, nil)
	require.NoError(t, err)
	require.Equal(t, []string{"42", "c1"}, ids)
}

func TestQueryRejectsUnsupportedFilter(t *testing.T) {
	s := testStore(t, func(r *http.Request) (*http.Response, error) {
		t.Fatalf("no request expected")
		return nil, nil
	})
	_, err := s.QueryMatches(context.Background(), "kb", []float32{1, 2, 3}, 3, map[string]any{"page": map[string]any{"$gt": 1}})
	var opErrTyped *OperationError
	require.ErrorAs(t, err, &opErrTyped)
	require.Equal(t, OperationErrorUnsupportedFilter, opErrTyped.Code)
}

func TestDeleteIDsDedupes(t *testing.T) {
	var got deleteRequest
	s := testStore(t, func(r *http.Request) (*http.Response, error) {
		require.Equal(t, http.MethodPost, r.Method)
		require.Equal(t, "/collections/docchat/points/delete", r.URL.Path)
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		return envelopeResponse(t, nil), nil
	})
	require.NoError(t, s.DeleteIDs(context.Background(), "kb", []string{"c1", "c1", " ", "c2"}))
	require.ElementsMatch(t, []string{pointID("docs:kb", "c1"), pointID("docs:kb", "c2")}, got.Points)
}

func TestDeleteIDsEmptyIsNoop(t *testing.T) {
	s := testStore(t, func(r *http.Request) (*http.Response, error) {
		t.Fatalf("no request expected")
		return nil, nil
	})
	require.NoError(t, s.DeleteIDs(context.Background(), "kb", []string{"", " "}))
}

func TestFailuresAreUpstream(t *testing.T) {
	cases := map[string]roundTripFunc{
		"http status": func(r *http.Request) (*http.Response, error) {
			return rawResponse(http.StatusServiceUnavailable, "down"), nil
		},
		"envelope status": func(r *http.Request) (*http.Response, error) {
			return rawResponse(http.StatusOK, `{"status":{"error":"wrong input"},"result":null}`), nil
		},
		"transport": func(r *http.Request) (*http.Response, error) {
			return nil, errors.New("connection refused")
		},
		"timeout": func(r *http.Request) (*http.Response, error) {
			return nil, context.DeadlineExceeded
		},
	}
	for name, fn := range cases {
		s := testStore(t, fn)
		_, err := s.QueryMatches(context.Background(), "kb", []float32{1, 2, 3}, 4, nil)
		if !errors.Is(err, apierr.ErrUpstream) {
			t.Fatalf("%s: expected ErrUpstream, got %v", name, err)
		}
	}
}

func TestStatusError(t *testing.T) {
	require.Empty(t, statusError(json.RawMessage(`"ok"`)))
	require.Empty(t, statusError(nil))
	require.Equal(t, "boom", statusError(json.RawMessage(`{"error":"boom"}`)))
	require.Contains(t, statusError(json.RawMessage(`"error"`)), "error")
}

func TestNewVectorStoreCreatesMissingCollection(t *testing.T) {
	var created map[string]vectorParams
	client := &http.Client{Transport: roundTripFunc(func(r *http.Request) (*http.Response, error) {
		require.Equal(t, "qd-key", r.Header.Get("api-key"))
		switch {
		case r.URL.Path == "/readyz":
			return rawResponse(http.StatusOK, "all shards are ready"), nil
		case r.Method == http.MethodGet && r.URL.Path == "/collections/docchat":
			return rawResponse(http.StatusNotFound, `{"status":{"error":"Not found: Collection docchat doesn't exist!"}}`), nil
		case r.Method == http.MethodPut && r.URL.Path == "/collections/docchat":
			require.NoError(t, json.NewDecoder(r.Body).Decode(&created))
			return envelopeResponse(t, true), nil
		}
		t.Fatalf("unexpected request %s %s", r.Method, r.URL.Path)
		return nil, nil
	})}

	s, err := newVectorStore(context.Background(), logger.NewNop(), Config{
		URL:              "http://qdrant.local",
		APIKey:           "qd-key",
		Collection:       "docchat",
		NamespacePrefix:  "docs",
		VectorDim:        3,
		CreateCollection: true,
	}, client)
	require.NoError(t, err)
	require.Equal(t, vectorParams{Size: 3, Distance: "Cosine"}, created["vectors"])
	require.Equal(t, "Cosine", s.distance)
}

func TestNewVectorStoreDimensionMismatch(t *testing.T) {
	client := &http.Client{Transport: roundTripFunc(func(r *http.Request) (*http.Response, error) {
		if r.URL.Path == "/readyz" {
			return rawResponse(http.StatusOK, ""), nil
		}
		return envelopeResponse(t, map[string]any{
			"config": map[string]any{"params": map[string]any{"vectors": map[string]any{"size": 1536, "distance": "Cosine"}}},
		}), nil
	})}

	_, err := newVectorStore(context.Background(), logger.NewNop(), Config{
		URL:        "http://qdrant.local",
		Collection: "docchat",
		VectorDim:  768,
	}, client)
	var opErrTyped *OperationError
	require.ErrorAs(t, err, &opErrTyped)
	require.Equal(t, OperationErrorValidation, opErrTyped.Code)
}

func TestNewVectorStoreNotReady(t *testing.T) {
	client := &http.Client{Transport: roundTripFunc(func(r *http.Request) (*http.Response, error) {
		return rawResponse(http.StatusServiceUnavailable, ""), nil
	})}
	_, err := newVectorStore(context.Background(), logger.NewNop(), Config{
		URL:        "http://qdrant.local",
		Collection: "docchat",
		VectorDim:  3,
	}, client)
	require.ErrorIs(t, err, apierr.ErrUpstream)
}
