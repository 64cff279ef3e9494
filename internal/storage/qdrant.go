package storage

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/qdrant/go-client/qdrant"

	"github.com/aidefend/aidefend-mcp/internal/corpus"
)

// QdrantStore manages index generations as Qdrant collections.
type QdrantStore struct {
	client *qdrant.Client
	host   string
	port   int
}

// NewQdrantStore creates a Qdrant client and validates connectivity. It
// retries the health check with exponential backoff and fails fast if
// Qdrant stays unreachable.
func NewQdrantStore(host string, port int) (*QdrantStore, error) {
	client, err := qdrant.NewClient(&qdrant.Config{
		Host: host,
		Port: port,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create qdrant client: %w", err)
	}

	store := &QdrantStore{
		client: client,
		host:   host,
		port:   port,
	}

	ctx := context.Background()
	if err := store.healthCheckWithRetry(ctx); err != nil {
		client.Close()
		return nil, fmt.Errorf("%w: %v", ErrQdrantUnreachable, err)
	}

	return store, nil
}

// healthCheckWithRetry performs health checks with exponential backoff.
// Initial interval 500ms, max interval 10s, max elapsed 30s.
func (s *QdrantStore) healthCheckWithRetry(ctx context.Context) error {
	exponentialBackoff := backoff.NewExponentialBackOff()
	exponentialBackoff.InitialInterval = 500 * time.Millisecond
	exponentialBackoff.MaxInterval = 10 * time.Second
	exponentialBackoff.MaxElapsedTime = 30 * time.Second

	operation := func() error {
		return s.Health(ctx)
	}

	return backoff.Retry(operation, backoff.WithContext(exponentialBackoff, ctx))
}

// Health performs a single health check against Qdrant.
func (s *QdrantStore) Health(ctx context.Context) error {
	result, err := s.client.HealthCheck(ctx)
	if err != nil {
		return fmt.Errorf("health check failed: %w", err)
	}

	if result == nil || result.Title == "" {
		return fmt.Errorf("health check returned invalid response")
	}

	return nil
}

// CreateGeneration creates a fresh collection for a new index generation,
// with the embedding vector slot and payload indexes on the filterable
// fields. The name must carry GenerationPrefix.
func (s *QdrantStore) CreateGeneration(ctx context.Context, name string) error {
	if !strings.HasPrefix(name, GenerationPrefix) {
		return fmt.Errorf("generation name %q lacks prefix %q", name, GenerationPrefix)
	}

	err := s.client.CreateCollection(ctx, &qdrant.CreateCollection{
		CollectionName: name,
		VectorsConfig: qdrant.NewVectorsConfigMap(map[string]*qdrant.VectorParams{
			vectorName: {
				Size:     VectorDimension,
				Distance: qdrant.Distance_Cosine,
			},
		}),
	})
	if err != nil {
		return fmt.Errorf("failed to create generation %s: %w", name, err)
	}

	if err := s.createPayloadIndexes(ctx, name); err != nil {
		return fmt.Errorf("failed to create payload indexes for %s: %w", name, err)
	}

	return nil
}

// createPayloadIndexes indexes the fields structured queries filter on.
// Without these, filtering degrades to a full payload scan.
func (s *QdrantStore) createPayloadIndexes(ctx context.Context, name string) error {
	keywordFields := []string{
		"source_id", // exact-ID lookup
		"tactic",    // filter by tactic
		"type",      // technique vs subtechnique vs strategy
		"parent_id", // children of a technique
	}

	for _, field := range keywordFields {
		_, err := s.client.CreateFieldIndex(ctx, &qdrant.CreateFieldIndexCollection{
			CollectionName: name,
			FieldName:      field,
			FieldType:      qdrant.FieldType_FieldTypeKeyword.Enum(),
		})
		if err != nil {
			return fmt.Errorf("failed to create index for field %s: %w", field, err)
		}
	}

	_, err := s.client.CreateFieldIndex(ctx, &qdrant.CreateFieldIndexCollection{
		CollectionName: name,
		FieldName:      "has_code",
		FieldType:      qdrant.FieldType_FieldTypeBool.Enum(),
	})
	if err != nil {
		return fmt.Errorf("failed to create index for field has_code: %w", err)
	}

	return nil
}

// DropGeneration deletes a generation's collection. Dropping a generation
// that no longer exists is not an error.
func (s *QdrantStore) DropGeneration(ctx context.Context, name string) error {
	if err := s.client.DeleteCollection(ctx, name); err != nil {
		return fmt.Errorf("failed to drop generation %s: %w", name, err)
	}
	return nil
}

// ListGenerations returns the names of all collections owned by this
// service, for startup orphan cleanup.
func (s *QdrantStore) ListGenerations(ctx context.Context) ([]string, error) {
	collections, err := s.client.ListCollections(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list collections: %w", err)
	}

	var generations []string
	for _, name := range collections {
		if strings.HasPrefix(name, GenerationPrefix) {
			generations = append(generations, name)
		}
	}
	return generations, nil
}

// GenerationExists reports whether a generation's collection is present.
func (s *QdrantStore) GenerationExists(ctx context.Context, name string) (bool, error) {
	collections, err := s.client.ListCollections(ctx)
	if err != nil {
		return false, fmt.Errorf("failed to list collections: %w", err)
	}
	for _, existing := range collections {
		if existing == name {
			return true, nil
		}
	}
	return false, nil
}

// UpsertRecords writes records with their embeddings into a generation.
// Point IDs derive from source IDs, so the operation is idempotent.
// Records are batched in groups of 100.
func (s *QdrantStore) UpsertRecords(ctx context.Context, generation string, records []*corpus.Record) error {
	if len(records) == 0 {
		return nil
	}

	for i, rec := range records {
		if len(rec.Embedding) != VectorDimension {
			return fmt.Errorf("%w: record %d (%s) has %d dimensions, expected %d",
				ErrDimensionMismatch, i, rec.SourceID, len(rec.Embedding), VectorDimension)
		}
	}

	batchSize := 100
	for i := 0; i < len(records); i += batchSize {
		end := min(i+batchSize, len(records))
		batch := records[i:end]

		points := make([]*qdrant.PointStruct, len(batch))
		for j, rec := range batch {
			points[j] = &qdrant.PointStruct{
				Id: qdrant.NewIDUUID(PointID(rec.SourceID)),
				Vectors: qdrant.NewVectorsMap(map[string]*qdrant.Vector{
					vectorName: qdrant.NewVector(rec.Embedding...),
				}),
				Payload: qdrant.NewValueMap(recordPayload(rec)),
			}
		}

		if err := s.upsertWithRetry(ctx, generation, points); err != nil {
			return fmt.Errorf("failed to upsert batch %d-%d: %w", i, end, err)
		}
	}

	return nil
}

// upsertWithRetry performs one upsert with exponential backoff retry.
func (s *QdrantStore) upsertWithRetry(ctx context.Context, generation string, points []*qdrant.PointStruct) error {
	exponentialBackoff := backoff.NewExponentialBackOff()
	exponentialBackoff.InitialInterval = 500 * time.Millisecond
	exponentialBackoff.MaxInterval = 10 * time.Second
	exponentialBackoff.MaxElapsedTime = 30 * time.Second

	operation := func() error {
		_, err := s.client.Upsert(ctx, &qdrant.UpsertPoints{
			CollectionName: generation,
			Points:         points,
		})
		return err
	}

	return backoff.Retry(operation, backoff.WithContext(exponentialBackoff, ctx))
}

// Search performs vector similarity search within one generation. Results
// come back ordered by score descending.
func (s *QdrantStore) Search(ctx context.Context, generation string, embedding []float32, limit int, filters Filters) ([]*ScoredRecord, error) {
	if len(embedding) != VectorDimension {
		return nil, fmt.Errorf("%w: query has %d dimensions, expected %d",
			ErrDimensionMismatch, len(embedding), VectorDimension)
	}

	filter := buildFilter(filters)

	using := vectorName
	results, err := s.client.Query(ctx, &qdrant.QueryPoints{
		CollectionName: generation,
		Query:          qdrant.NewQuery(embedding...),
		Using:          &using,
		Filter:         filter,
		Limit:          qdrant.PtrOf(uint64(limit)),
		WithPayload:    qdrant.NewWithPayload(true),
		WithVectors:    qdrant.NewWithVectors(false),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to search generation %s: %w", generation, err)
	}

	scored := make([]*ScoredRecord, 0, len(results))
	for _, result := range results {
		scored = append(scored, &ScoredRecord{
			Record: recordFromPayload(result.Payload),
			Score:  float64(result.Score),
		})
	}

	return scored, nil
}

// buildFilter translates Filters into Qdrant match conditions.
func buildFilter(filters Filters) *qdrant.Filter {
	var must []*qdrant.Condition
	if filters.Tactic != "" {
		must = append(must, qdrant.NewMatch("tactic", filters.Tactic))
	}
	if filters.Type != "" {
		must = append(must, qdrant.NewMatch("type", string(filters.Type)))
	}
	if filters.HasCode != nil {
		must = append(must, qdrant.NewMatchBool("has_code", *filters.HasCode))
	}
	if len(must) == 0 {
		return nil
	}
	return &qdrant.Filter{Must: must}
}

// ScrollRecords streams every record out of a generation via paginated
// Scroll calls. The engine uses this to build its in-memory snapshot after
// a swap.
func (s *QdrantStore) ScrollRecords(ctx context.Context, generation string) ([]*corpus.Record, error) {
	var records []*corpus.Record
	var offset *qdrant.PointId

	batchSize := uint32(256)
	for {
		// The server's next-page offset is the first unreturned ID; paging
		// from the last returned ID instead would repeat the boundary point.
		results, next, err := s.client.ScrollAndOffset(ctx, &qdrant.ScrollPoints{
			CollectionName: generation,
			Limit:          qdrant.PtrOf(batchSize),
			Offset:         offset,
			WithPayload:    qdrant.NewWithPayload(true),
		})
		if err != nil {
			return nil, fmt.Errorf("failed to scroll generation %s: %w", generation, err)
		}

		for _, result := range results {
			records = append(records, recordFromPayload(result.Payload))
		}

		if next == nil {
			break
		}
		offset = next
	}

	return records, nil
}

// CountRecords reports the number of points in a generation, used to verify
// a build before swapping it live.
func (s *QdrantStore) CountRecords(ctx context.Context, generation string) (uint64, error) {
	info, err := s.client.GetCollectionInfo(ctx, generation)
	if err != nil {
		if exists, existsErr := s.GenerationExists(ctx, generation); existsErr == nil && !exists {
			return 0, fmt.Errorf("%w: %s", ErrGenerationNotFound, generation)
		}
		return 0, fmt.Errorf("failed to get generation %s: %w", generation, err)
	}
	return info.GetPointsCount(), nil
}

// Close closes the Qdrant client connection.
func (s *QdrantStore) Close() error {
	if s.client != nil {
		return s.client.Close()
	}
	return nil
}
