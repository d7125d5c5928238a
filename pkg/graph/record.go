package graph

import (
	"context"
	"fmt"

	"github.com/Gobusters/ectologger"
	"github.com/neo4j/neo4j-go-driver/v5/neo4j"

	"github.com/Ramsey-B/fern/internal/platform/tracing"
	"github.com/Ramsey-B/fern/pkg/models"
)

// RecordGraph stores reconciliation records and their relationships as a
// graph: one node per source record, MATCHED_WITH edges between matched
// pairs, and explicit relationship edges between records.
type RecordGraph struct {
	client *Client
	logger ectologger.Logger
}

// NewRecordGraph creates a new record graph store
func NewRecordGraph(client *Client, logger ectologger.Logger) *RecordGraph {
	return &RecordGraph{
		client: client,
		logger: logger,
	}
}

// StoreRun stores all records of a reconciliation run in a single transaction
func (g *RecordGraph) StoreRun(ctx context.Context, tenantID string, records []models.ReconciliationRecord) error {
	ctx, span := tracing.StartSpan(ctx, "graph.RecordGraph.StoreRun")
	defer span.End()

	if len(records) == 0 {
		return nil
	}

	log := g.logger.WithContext(ctx).WithFields(map[string]any{
		"tenant_id":    tenantID,
		"record_count": len(records),
		"batch_id":     records[0].BatchID,
	})

	nodes := make([]map[string]any, 0, len(records)*2)
	edges := make([]map[string]any, 0, len(records))
	for i := range records {
		rec := &records[i]
		for _, src := range rec.Sources {
			nodes = append(nodes, map[string]any{
				"id":          src.ID,
				"tenant_id":   tenantID,
				"record_id":   rec.ID,
				"batch_id":    rec.BatchID,
				"system_name": src.SystemName,
				"external_id": src.RecordID,
				"fingerprint": src.Fingerprint,
				"status":      string(rec.Status),
				"risk_level":  string(rec.RiskLevel),
			})
		}
		if rec.Status == models.RecordStatusMatched && len(rec.Sources) == 2 {
			edges = append(edges, map[string]any{
				"from":        rec.Sources[0].ID,
				"to":          rec.Sources[1].ID,
				"tenant_id":   tenantID,
				"record_id":   rec.ID,
				"confidence":  rec.Confidence,
				"match_score": rec.MatchScore,
			})
		}
	}

	_, err := g.client.ExecuteWrite(ctx, func(tx neo4j.ManagedTransaction) (any, error) {
		nodeCypher := `
			UNWIND $batch AS props
			MERGE (r:SourceRecord {id: props.id, tenant_id: props.tenant_id})
			SET r = props
		`
		if _, err := tx.Run(ctx, nodeCypher, map[string]any{"batch": nodes}); err != nil {
			return nil, err
		}

		if len(edges) > 0 {
			edgeCypher := `
				UNWIND $batch AS edge
				MATCH (a:SourceRecord {id: edge.from, tenant_id: edge.tenant_id})
				MATCH (b:SourceRecord {id: edge.to, tenant_id: edge.tenant_id})
				MERGE (a)-[m:MATCHED_WITH {record_id: edge.record_id}]->(b)
				SET m.confidence = edge.confidence, m.match_score = edge.match_score
			`
			if _, err := tx.Run(ctx, edgeCypher, map[string]any{"batch": edges}); err != nil {
				return nil, err
			}
		}
		return nil, nil
	})

	if err != nil {
		log.WithError(err).Error("Failed to store run in graph")
		return fmt.Errorf("failed to store run in graph: %w", err)
	}

	log.Debug("Stored run in graph")
	return nil
}

// LinkRecords creates an explicit relationship edge between two records
func (g *RecordGraph) LinkRecords(ctx context.Context, tenantID string, rel models.RecordRelationship, fromRecordID string) error {
	ctx, span := tracing.StartSpan(ctx, "graph.RecordGraph.LinkRecords")
	defer span.End()

	cypher := `
		MATCH (a:SourceRecord {record_id: $from_id, tenant_id: $tenant_id})
		MATCH (b:SourceRecord {record_id: $to_id, tenant_id: $tenant_id})
		MERGE (a)-[r:RELATED {id: $rel_id}]->(b)
		SET r.relationship = $relationship
	`

	_, err := g.client.ExecuteWrite(ctx, func(tx neo4j.ManagedTransaction) (any, error) {
		result, err := tx.Run(ctx, cypher, map[string]any{
			"from_id":      fromRecordID,
			"to_id":        rel.TargetID,
			"tenant_id":    tenantID,
			"rel_id":       rel.ID,
			"relationship": rel.Relationship,
		})
		if err != nil {
			return nil, err
		}
		return result.Consume(ctx)
	})

	if err != nil {
		g.logger.WithContext(ctx).WithError(err).Error("Failed to link records in graph")
		return fmt.Errorf("failed to link records in graph: %w", err)
	}

	return nil
}

// MatchedPartners returns the source nodes matched with the given source
// record, with edge confidence attached as _confidence.
func (g *RecordGraph) MatchedPartners(ctx context.Context, tenantID string, sourceID string) ([]map[string]any, error) {
	ctx, span := tracing.StartSpan(ctx, "graph.RecordGraph.MatchedPartners")
	defer span.End()

	cypher := `
		MATCH (a:SourceRecord {id: $id, tenant_id: $tenant_id})-[m:MATCHED_WITH]-(b:SourceRecord)
		RETURN b, m.confidence AS confidence
	`

	result, err := g.client.ExecuteRead(ctx, func(tx neo4j.ManagedTransaction) (any, error) {
		result, err := tx.Run(ctx, cypher, map[string]any{
			"id":        sourceID,
			"tenant_id": tenantID,
		})
		if err != nil {
			return nil, err
		}

		var partners []map[string]any
		for result.Next(ctx) {
			record := result.Record()
			node, ok := record.Get("b")
			if !ok {
				continue
			}
			n := node.(neo4j.Node)
			props := n.Props
			if conf, ok := record.Get("confidence"); ok {
				props["_confidence"] = conf
			}
			partners = append(partners, props)
		}
		return partners, result.Err()
	})

	if err != nil {
		return nil, fmt.Errorf("failed to query matched partners: %w", err)
	}

	if result == nil {
		return nil, nil
	}
	return result.([]map[string]any), nil
}

// DeleteBatch removes all graph state for a superseded run batch
func (g *RecordGraph) DeleteBatch(ctx context.Context, tenantID string, batchID string) error {
	ctx, span := tracing.StartSpan(ctx, "graph.RecordGraph.DeleteBatch")
	defer span.End()

	cypher := `
		MATCH (r:SourceRecord {tenant_id: $tenant_id, batch_id: $batch_id})
		DETACH DELETE r
	`

	_, err := g.client.ExecuteWrite(ctx, func(tx neo4j.ManagedTransaction) (any, error) {
		result, err := tx.Run(ctx, cypher, map[string]any{
			"tenant_id": tenantID,
			"batch_id":  batchID,
		})
		if err != nil {
			return nil, err
		}
		return result.Consume(ctx)
	})

	if err != nil {
		g.logger.WithContext(ctx).WithError(err).Error("Failed to delete batch from graph")
		return fmt.Errorf("failed to delete batch from graph: %w", err)
	}

	return nil
}
