package qdrant

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/yungbote/docchat-backend/internal/platform/logger"
	"github.com/yungbote/docchat-backend/internal/platform/pinecone"
)

// Payload keys owned by the store. They scope points to a namespace and
// keep the caller's id, since Qdrant point ids must be UUIDs or integers.
const (
	nsPayloadKey = "_docchat_ns"
	idPayloadKey = "_docchat_id"

	upsertBatchSize = 256
)

var pointIDSpace = uuid.MustParse("6f0d3c1e-8a55-4c47-9b8e-2d7f5e1a9c34")

type point struct {
	ID      string         `json:"id"`
	Vector  []float32      `json:"vector"`
	Payload map[string]any `json:"payload"`
}

type upsertRequest struct {
	Points []point `json:"points"`
}

type searchRequest struct {
	Vector      []float32      `json:"vector"`
	Limit       int            `json:"limit"`
	WithPayload bool           `json:"with_payload"`
	WithVector  bool           `json:"with_vector"`
	Filter      map[string]any `json:"filter,omitempty"`
}

type scoredPoint struct {
	ID      json.RawMessage `json:"id"`
	Score   float64         `json:"score"`
	Payload map[string]any  `json:"payload"`
}

type deleteRequest struct {
	Points []string `json:"points"`
}

type vectorParams struct {
	Size     int    `json:"size"`
	Distance string `json:"distance"`
}

type collectionInfo struct {
	Config struct {
		Params struct {
			Vectors vectorParams `json:"vectors"`
		} `json:"params"`
	} `json:"config"`
}

type vectorStore struct {
	log      *logger.Logger
	rest     *restClient
	cfg      Config
	nsPrefix string
	distance string
}

// NewVectorStore checks that Qdrant is reachable and that the collection
// matches the configured dimension, creating it when allowed.
func NewVectorStore(ctx context.Context, log *logger.Logger, cfg Config) (pinecone.VectorStore, error) {
	return newVectorStore(ctx, log, cfg, &http.Client{Timeout: 10 * time.Second})
}

func newVectorStore(ctx context.Context, log *logger.Logger, cfg Config, httpClient *http.Client) (*vectorStore, error) {
	if log == nil {
		return nil, fmt.Errorf("logger required")
	}
	if err := ValidateConfig(cfg, true); err != nil {
		return nil, err
	}
	rest := &restClient{
		baseURL: strings.TrimRight(cfg.URL, "/"),
		apiKey:  strings.TrimSpace(cfg.APIKey),
		http:    httpClient,
	}
	s := &vectorStore{
		log:      log.With("service", "QdrantVectorStore", "collection", cfg.Collection),
		rest:     rest,
		cfg:      cfg,
		nsPrefix: strings.TrimSpace(cfg.NamespacePrefix),
	}
	if err := s.bootstrap(ctx); err != nil {
		return nil, err
	}
	s.log.Info("Qdrant vector store ready", "url", s.rest.baseURL, "vector_dim", cfg.VectorDim, "distance", s.distance)
	return s, nil
}

func (s *vectorStore) bootstrap(ctx context.Context) error {
	const op = "bootstrap"
	if err := s.rest.ping(ctx, op); err != nil {
		return err
	}
	var info collectionInfo
	err := s.rest.call(ctx, op, http.MethodGet, s.path(""), nil, &info)
	var opErrTyped *OperationError
	if errors.As(err, &opErrTyped) && opErrTyped.StatusCode == http.StatusNotFound && s.cfg.CreateCollection {
		return s.createCollection(ctx)
	}
	if err != nil {
		return err
	}
	got := info.Config.Params.Vectors
	if got.Size != 0 && got.Size != s.cfg.VectorDim {
		return opErr(op, OperationErrorValidation,
			fmt.Sprintf("collection %q has vector size %d, embeddings have %d", s.cfg.Collection, got.Size, s.cfg.VectorDim), nil)
	}
	s.distance = strings.TrimSpace(got.Distance)
	return nil
}

func (s *vectorStore) createCollection(ctx context.Context) error {
	distance, _ := canonicalDistance(s.cfg.Distance)
	body := map[string]vectorParams{"vectors": {Size: s.cfg.VectorDim, Distance: distance}}
	if err := s.rest.call(ctx, "create_collection", http.MethodPut, s.path(""), body, nil); err != nil {
		return err
	}
	s.distance = distance
	s.log.Info("Qdrant collection created", "vector_dim", s.cfg.VectorDim, "distance", distance)
	return nil
}

// Upsert writes vectors in batches; a failed batch aborts the rest.
func (s *vectorStore) Upsert(ctx context.Context, namespace string, vectors []pinecone.Vector) error {
	const op = "upsert"
	if len(vectors) == 0 {
		return nil
	}
	ns := s.namespace(namespace)
	points := make([]point, 0, len(vectors))
	for _, v := range vectors {
		id := strings.TrimSpace(v.ID)
		if id == "" {
			return opErr(op, OperationErrorValidation, "vector id is required", nil)
		}
		if err := s.checkDim(op, id, v.Values); err != nil {
			return err
		}
		payload := make(map[string]any, len(v.Metadata)+2)
		for k, val := range v.Metadata {
			payload[k] = val
		}
		payload[nsPayloadKey] = ns
		payload[idPayloadKey] = id
		points = append(points, point{ID: pointID(ns, id), Vector: v.Values, Payload: payload})
	}
	for start := 0; start < len(points); start += upsertBatchSize {
		end := min(start+upsertBatchSize, len(points))
		if err := s.rest.call(ctx, op, http.MethodPut, s.path("/points?wait=true"), upsertRequest{Points: points[start:end]}, nil); err != nil {
			return err
		}
	}
	return nil
}

func (s *vectorStore) QueryMatches(ctx context.Context, namespace string, q []float32, topK int, filter map[string]any) ([]pinecone.VectorMatch, error) {
	const op = "query"
	if len(q) == 0 {
		return nil, opErr(op, OperationErrorValidation, "query vector required", nil)
	}
	if err := s.checkDim(op, "query", q); err != nil {
		return nil, err
	}
	if topK <= 0 {
		topK = 10
	}
	ns := s.namespace(namespace)
	extra, err := translateFilter(filter)
	if err != nil {
		s.log.Warn("qdrant filter rejected", "namespace", ns, "error", err)
		return nil, err
	}
	req := searchRequest{
		Vector:      q,
		Limit:       topK,
		WithPayload: true,
		Filter:      map[string]any{"must": append([]any{qdrantMatchCondition(nsPayloadKey, ns)}, extra...)},
	}
	var hits []scoredPoint
	if err := s.rest.call(ctx, op, http.MethodPost, s.path("/points/search"), req, &hits); err != nil {
		return nil, err
	}

	out := make([]pinecone.VectorMatch, 0, len(hits))
	for _, h := range hits {
		id := hitID(h)
		if id == "" {
			continue
		}
		out = append(out, pinecone.VectorMatch{ID: id, Score: s.similarity(h.Score), Metadata: stripInternal(h.Payload)})
	}
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].Score != out[j].Score {
			return out[i].Score > out[j].Score
		}
		return out[i].ID < out[j].ID
	})
	return out, nil
}

func (s *vectorStore) QueryIDs(ctx context.Context, namespace string, q []float32, topK int, filter map[string]any) ([]string, error) {
	matches, err := s.QueryMatches(ctx, namespace, q, topK, filter)
	if err != nil {
		return nil, err
	}
	ids := make([]string, len(matches))
	for i, m := range matches {
		ids[i] = m.ID
	}
	return ids, nil
}

func (s *vectorStore) DeleteIDs(ctx context.Context, namespace string, ids []string) error {
	ns := s.namespace(namespace)
	seen := make(map[string]bool, len(ids))
	req := deleteRequest{Points: make([]string, 0, len(ids))}
	for _, id := range ids {
		id = strings.TrimSpace(id)
		if id == "" {
			continue
		}
		pid := pointID(ns, id)
		if seen[pid] {
			continue
		}
		seen[pid] = true
		req.Points = append(req.Points, pid)
	}
	if len(req.Points) == 0 {
		return nil
	}
	return s.rest.call(ctx, "delete", http.MethodPost, s.path("/points/delete?wait=true"), req, nil)
}

func (s *vectorStore) checkDim(op, what string, values []float32) error {
	if len(values) == 0 {
		return opErr(op, OperationErrorValidation, fmt.Sprintf("%s has empty values", what), nil)
	}
	if s.cfg.VectorDim > 0 && len(values) != s.cfg.VectorDim {
		return opErr(op, OperationErrorValidation,
			fmt.Sprintf("%s has dimension %d, collection expects %d", what, len(values), s.cfg.VectorDim), nil)
	}
	return nil
}

func (s *vectorStore) namespace(ns string) string {
	ns = strings.TrimSpace(ns)
	if ns == "" {
		return s.nsPrefix
	}
	return s.nsPrefix + ":" + ns
}

func (s *vectorStore) path(suffix string) string {
	return "/collections/" + s.cfg.Collection + suffix
}

// similarity maps distance-based scores onto "higher is closer".
func (s *vectorStore) similarity(score float64) float64 {
	switch strings.ToLower(s.distance) {
	case "euclid", "manhattan":
		if score < 0 {
			score = -score
		}
		return 1 / (1 + score)
	default:
		return score
	}
}

func pointID(ns, id string) string {
	return uuid.NewSHA1(pointIDSpace, []byte(ns+"|"+id)).String()
}

// hitID prefers the stored caller id; points written by other tools only
// have their Qdrant id.
func hitID(h scoredPoint) string {
	if id, ok := h.Payload[idPayloadKey].(string); ok && strings.TrimSpace(id) != "" {
		return strings.TrimSpace(id)
	}
	if len(h.ID) == 0 {
		return ""
	}
	var str string
	if json.Unmarshal(h.ID, &str) == nil {
		return strings.TrimSpace(str)
	}
	var n int64
	if json.Unmarshal(h.ID, &n) == nil {
		return strconv.FormatInt(n, 10)
	}
	return strings.TrimSpace(string(h.ID))
}

func stripInternal(payload map[string]any) map[string]any {
	out := make(map[string]any, len(payload))
	for k, v := range payload {
		if k != nsPayloadKey && k != idPayloadKey {
			out[k] = v
		}
	}
	return out
}
