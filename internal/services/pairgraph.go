package services

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/neo4j/neo4j-go-driver/v5/neo4j"
	"github.com/sirupsen/logrus"

	"github.com/vestra/vestra/internal/config"
)

// PairEdge is one pair score update destined for the graph mirror.
type PairEdge struct {
	UserID      uuid.UUID
	Item1ID     uuid.UUID
	Item2ID     uuid.UUID
	Score       float64
	TimesPaired int
}

// PairGraphMirror maintains PAIRS_WITH relationships in Neo4j as a read
// model over item_pair_scores. Postgres stays the source of truth; the
// mirror exists for neighborhood queries ("what pairs well with X, and what
// pairs well with those"). Updates are batched through a background worker
// so pair score transactions never wait on the graph.
type PairGraphMirror struct {
	driver     neo4j.DriverWithContext
	scoreFloor float64
	batchSize  int
	flushEvery time.Duration
	logger     *logrus.Logger

	updateChan chan PairEdge
	stopChan   chan struct{}
	wg         sync.WaitGroup
}

func NewPairGraphMirror(driver neo4j.DriverWithContext, cfg *config.Config, logger *logrus.Logger) *PairGraphMirror {
	m := &PairGraphMirror{
		driver:     driver,
		scoreFloor: cfg.Learning.PairGraphScoreFloor,
		batchSize:  cfg.Learning.PairGraphBatchSize,
		flushEvery: cfg.Learning.PairGraphFlushEvery,
		logger:     logger,
		updateChan: make(chan PairEdge, 1000),
		stopChan:   make(chan struct{}),
	}

	m.wg.Add(1)
	go m.batchWorker()

	return m
}

func (m *PairGraphMirror) Stop() {
	close(m.stopChan)
	m.wg.Wait()
}

// Enqueue queues a pair edge update. Drops the update when the buffer is
// full rather than blocking the caller's transaction.
func (m *PairGraphMirror) Enqueue(edge PairEdge) {
	select {
	case m.updateChan <- edge:
	default:
		m.logger.Warn("Pair graph update buffer full, dropping update")
	}
}

func (m *PairGraphMirror) batchWorker() {
	defer m.wg.Done()

	var batch []PairEdge
	ticker := time.NewTicker(m.flushEvery)
	defer ticker.Stop()

	for {
		select {
		case edge := <-m.updateChan:
			batch = append(batch, edge)
			if len(batch) >= m.batchSize {
				m.flush(batch)
				batch = nil
			}

		case <-ticker.C:
			if len(batch) > 0 {
				m.flush(batch)
				batch = nil
			}

		case <-m.stopChan:
			if len(batch) > 0 {
				m.flush(batch)
			}
			return
		}
	}
}

func (m *PairGraphMirror) flush(batch []PairEdge) {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	session := m.driver.NewSession(ctx, neo4j.SessionConfig{AccessMode: neo4j.AccessModeWrite})
	defer session.Close(ctx)

	cypher := `
		UNWIND $edges AS edge
		MERGE (a:WardrobeItem {id: edge.item1_id})
		MERGE (b:WardrobeItem {id: edge.item2_id})
		MERGE (a)-[r:PAIRS_WITH]-(b)
		SET r.user_id = edge.user_id,
		    r.score = edge.score,
		    r.times_paired = edge.times_paired,
		    r.updated_at = datetime()`

	edges := make([]map[string]interface{}, len(batch))
	for i, edge := range batch {
		edges[i] = map[string]interface{}{
			"user_id":      edge.UserID.String(),
			"item1_id":     edge.Item1ID.String(),
			"item2_id":     edge.Item2ID.String(),
			"score":        edge.Score,
			"times_paired": edge.TimesPaired,
		}
	}

	_, err := session.ExecuteWrite(ctx, func(tx neo4j.ManagedTransaction) (interface{}, error) {
		result, err := tx.Run(ctx, cypher, map[string]interface{}{"edges": edges})
		if err != nil {
			return nil, err
		}
		return result.Consume(ctx)
	})
	if err != nil {
		m.logger.WithError(err).WithField("batch_size", len(batch)).Error("Failed to flush pair graph batch")
		return
	}

	m.logger.WithField("batch_size", len(batch)).Debug("Flushed pair graph batch")
}

// PairSuggestion is one second-degree partner found through the graph.
type PairSuggestion struct {
	ItemID   uuid.UUID `json:"item_id"`
	ViaID    uuid.UUID `json:"via_item_id"`
	Score    float64   `json:"score"`
	ViaScore float64   `json:"via_score"`
}

// SuggestPartners finds items two hops away along strong PAIRS_WITH edges:
// partners of the item's proven partners that the item itself has not been
// paired with enough to score. Cheap in a graph, awkward in SQL.
func (m *PairGraphMirror) SuggestPartners(ctx context.Context, userID, itemID uuid.UUID, limit int) ([]PairSuggestion, error) {
	if limit <= 0 {
		limit = 10
	}

	session := m.driver.NewSession(ctx, neo4j.SessionConfig{AccessMode: neo4j.AccessModeRead})
	defer session.Close(ctx)

	cypher := `
		MATCH (item:WardrobeItem {id: $item_id})-[r1:PAIRS_WITH]-(via:WardrobeItem)
		      -[r2:PAIRS_WITH]-(candidate:WardrobeItem)
		WHERE r1.user_id = $user_id AND r2.user_id = $user_id
		  AND r1.score >= $score_floor AND r2.score >= $score_floor
		  AND candidate.id <> $item_id
		  AND NOT (item)-[:PAIRS_WITH]-(candidate)
		RETURN candidate.id AS item_id, via.id AS via_id,
		       r2.score AS score, r1.score AS via_score
		ORDER BY r2.score * r1.score DESC
		LIMIT $limit`

	result, err := session.ExecuteRead(ctx, func(tx neo4j.ManagedTransaction) (interface{}, error) {
		records, err := tx.Run(ctx, cypher, map[string]interface{}{
			"user_id":     userID.String(),
			"item_id":     itemID.String(),
			"score_floor": m.scoreFloor,
			"limit":       limit,
		})
		if err != nil {
			return nil, err
		}
		return records.Collect(ctx)
	})
	if err != nil {
		return nil, fmt.Errorf("failed to query pair suggestions: %w", err)
	}

	records, _ := result.([]*neo4j.Record)
	suggestions := make([]PairSuggestion, 0, len(records))
	for _, record := range records {
		itemStr, _ := record.Get("item_id")
		viaStr, _ := record.Get("via_id")
		score, _ := record.Get("score")
		viaScore, _ := record.Get("via_score")

		candidateID, err := uuid.Parse(fmt.Sprint(itemStr))
		if err != nil {
			continue
		}
		viaID, err := uuid.Parse(fmt.Sprint(viaStr))
		if err != nil {
			continue
		}

		suggestion := PairSuggestion{ItemID: candidateID, ViaID: viaID}
		if v, ok := score.(float64); ok {
			suggestion.Score = v
		}
		if v, ok := viaScore.(float64); ok {
			suggestion.ViaScore = v
		}
		suggestions = append(suggestions, suggestion)
	}

	return suggestions, nil
}
