// Package neo4j implements graph.Repository on Neo4j. Flows are stored as
// (:Flow)-[:HAS_BLOCK]->(:Block) with (:Block)-[:FLOWS_TO]->(:Block)
// relationships for connections.
package neo4j

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/neo4j/neo4j-go-driver/v5/neo4j"

	"github.com/efebarandurmaz/flowlens/internal/flow"
	"github.com/efebarandurmaz/flowlens/internal/graph"
)

// Repository implements graph.Repository using Neo4j.
type Repository struct {
	driver   neo4j.DriverWithContext
	database string
}

// New connects and verifies connectivity. An empty database uses the
// server default.
func New(ctx context.Context, uri, username, password, database string) (*Repository, error) {
	driver, err := neo4j.NewDriverWithContext(uri, neo4j.BasicAuth(username, password, ""))
	if err != nil {
		return nil, fmt.Errorf("neo4j driver: %w", err)
	}
	if err := driver.VerifyConnectivity(ctx); err != nil {
		_ = driver.Close(ctx)
		return nil, fmt.Errorf("neo4j connectivity: %w", err)
	}
	return &Repository{driver: driver, database: database}, nil
}

func (r *Repository) session(ctx context.Context, mode neo4j.AccessMode) neo4j.SessionWithContext {
	return r.driver.NewSession(ctx, neo4j.SessionConfig{AccessMode: mode, DatabaseName: r.database})
}

func (r *Repository) StoreFlow(ctx context.Context, f *flow.Flow) error {
	blocks, err := blockRows(f)
	if err != nil {
		return err
	}
	session := r.session(ctx, neo4j.AccessModeWrite)
	defer session.Close(ctx)

	_, err = session.ExecuteWrite(ctx, func(tx neo4j.ManagedTransaction) (any, error) {
		if _, err := tx.Run(ctx,
			"MATCH (:Flow {id: $id})-[:HAS_BLOCK]->(b:Block) DETACH DELETE b",
			map[string]any{"id": f.ID}); err != nil {
			return nil, err
		}
		if _, err := tx.Run(ctx,
			"MERGE (f:Flow {id: $id}) "+
				"SET f.name = $name, f.description = $description, f.language = $language, "+
				"f.version = $version, f.created_at = $created_at, f.updated_at = $updated_at",
			flowProps(f)); err != nil {
			return nil, err
		}
		if _, err := tx.Run(ctx,
			"MATCH (f:Flow {id: $id}) "+
				"UNWIND $blocks AS row "+
				"CREATE (f)-[:HAS_BLOCK]->(b:Block {flow_id: $id, id: row.id}) "+
				"SET b.kind = row.kind, b.label = row.label, b.ord = row.ord, "+
				"b.parameters = row.parameters, b.x = row.x, b.y = row.y",
			map[string]any{"id": f.ID, "blocks": blocks}); err != nil {
			return nil, err
		}
		if _, err := tx.Run(ctx,
			"UNWIND $conns AS c "+
				"MATCH (a:Block {flow_id: $id, id: c.source}), (b:Block {flow_id: $id, id: c.target}) "+
				"CREATE (a)-[:FLOWS_TO {id: c.id, ord: c.ord, source_port: c.source_port, "+
				"target_port: c.target_port, data_type: c.data_type}]->(b)",
			map[string]any{"id": f.ID, "conns": connectionRows(f)}); err != nil {
			return nil, err
		}
		return nil, nil
	})
	if err != nil {
		return fmt.Errorf("store flow %s: %w", f.ID, err)
	}
	return nil
}

func (r *Repository) LoadFlow(ctx context.Context, id string) (*flow.Flow, error) {
	session := r.session(ctx, neo4j.AccessModeRead)
	defer session.Close(ctx)

	result, err := session.ExecuteRead(ctx, func(tx neo4j.ManagedTransaction) (any, error) {
		res, err := tx.Run(ctx,
			"MATCH (f:Flow {id: $id}) RETURN f.name, f.description, f.language, f.version, f.created_at, f.updated_at",
			map[string]any{"id": id})
		if err != nil {
			return nil, err
		}
		if !res.Next(ctx) {
			return nil, &flow.NotFoundError{Entity: "flow", ID: id}
		}
		rec := res.Record()
		f := &flow.Flow{
			ID:          id,
			Name:        str(rec, "f.name"),
			Description: str(rec, "f.description"),
			Metadata: flow.Metadata{
				Language:  str(rec, "f.language"),
				Version:   int(num(rec, "f.version")),
				CreatedAt: unixTime(num(rec, "f.created_at")),
				UpdatedAt: unixTime(num(rec, "f.updated_at")),
			},
			Blocks:      []flow.Block{},
			Connections: []flow.Connection{},
		}

		res, err = tx.Run(ctx,
			"MATCH (:Flow {id: $id})-[:HAS_BLOCK]->(b:Block) "+
				"RETURN b.id, b.kind, b.label, b.parameters, b.x, b.y ORDER BY b.ord",
			map[string]any{"id": id})
		if err != nil {
			return nil, err
		}
		for res.Next(ctx) {
			rec := res.Record()
			b := flow.Block{
				ID:       str(rec, "b.id"),
				Kind:     flow.BlockKind(str(rec, "b.kind")),
				Label:    str(rec, "b.label"),
				Position: flow.Position{X: flt(rec, "b.x"), Y: flt(rec, "b.y")},
			}
			if b.Parameters, err = decodeParameters(str(rec, "b.parameters")); err != nil {
				return nil, fmt.Errorf("block %s: %w", b.ID, err)
			}
			f.Blocks = append(f.Blocks, b)
		}

		res, err = tx.Run(ctx,
			"MATCH (a:Block {flow_id: $id})-[c:FLOWS_TO]->(b:Block {flow_id: $id}) "+
				"RETURN c.id, a.id, c.source_port, b.id, c.target_port, c.data_type ORDER BY c.ord",
			map[string]any{"id": id})
		if err != nil {
			return nil, err
		}
		for res.Next(ctx) {
			rec := res.Record()
			f.Connections = append(f.Connections, flow.Connection{
				ID:       str(rec, "c.id"),
				Source:   flow.Endpoint{BlockID: str(rec, "a.id"), Port: str(rec, "c.source_port")},
				Target:   flow.Endpoint{BlockID: str(rec, "b.id"), Port: str(rec, "c.target_port")},
				DataType: str(rec, "c.data_type"),
			})
		}
		f.Relink()
		return f, nil
	})
	if err != nil {
		return nil, err
	}
	return result.(*flow.Flow), nil
}

func (r *Repository) ListFlows(ctx context.Context) ([]graph.FlowSummary, error) {
	session := r.session(ctx, neo4j.AccessModeRead)
	defer session.Close(ctx)

	result, err := session.ExecuteRead(ctx, func(tx neo4j.ManagedTransaction) (any, error) {
		res, err := tx.Run(ctx,
			"MATCH (f:Flow) OPTIONAL MATCH (f)-[:HAS_BLOCK]->(b:Block) "+
				"RETURN f.id, f.name, f.version, f.updated_at, count(b) AS blocks ORDER BY f.name, f.id",
			nil)
		if err != nil {
			return nil, err
		}
		var out []graph.FlowSummary
		for res.Next(ctx) {
			rec := res.Record()
			out = append(out, graph.FlowSummary{
				ID:        str(rec, "f.id"),
				Name:      str(rec, "f.name"),
				Version:   int(num(rec, "f.version")),
				UpdatedAt: unixTime(num(rec, "f.updated_at")),
				Blocks:    int(num(rec, "blocks")),
			})
		}
		return out, nil
	})
	if err != nil {
		return nil, err
	}
	return result.([]graph.FlowSummary), nil
}

func (r *Repository) Downstream(ctx context.Context, flowID, blockID string) ([]string, error) {
	session := r.session(ctx, neo4j.AccessModeRead)
	defer session.Close(ctx)

	result, err := session.ExecuteRead(ctx, func(tx neo4j.ManagedTransaction) (any, error) {
		res, err := tx.Run(ctx,
			"MATCH (:Block {flow_id: $flow, id: $id})-[:FLOWS_TO*1..]->(d:Block) "+
				"RETURN DISTINCT d.id AS id ORDER BY id",
			map[string]any{"flow": flowID, "id": blockID})
		if err != nil {
			return nil, err
		}
		var ids []string
		for res.Next(ctx) {
			ids = append(ids, str(res.Record(), "id"))
		}
		return ids, nil
	})
	if err != nil {
		return nil, err
	}
	return result.([]string), nil
}

// Ping checks that the server is reachable.
func (r *Repository) Ping(ctx context.Context) error {
	return r.driver.VerifyConnectivity(ctx)
}

func (r *Repository) Close(ctx context.Context) error {
	return r.driver.Close(ctx)
}

var _ graph.Repository = (*Repository)(nil)

func flowProps(f *flow.Flow) map[string]any {
	return map[string]any{
		"id":          f.ID,
		"name":        f.Name,
		"description": f.Description,
		"language":    f.Metadata.Language,
		"version":     int64(f.Metadata.Version),
		"created_at":  f.Metadata.CreatedAt.UnixMilli(),
		"updated_at":  f.Metadata.UpdatedAt.UnixMilli(),
	}
}

// blockRows flattens blocks into Cypher parameter maps. Parameters are
// stored as a JSON string because Neo4j properties cannot hold maps.
func blockRows(f *flow.Flow) ([]map[string]any, error) {
	rows := make([]map[string]any, 0, len(f.Blocks))
	for i, b := range f.Blocks {
		params, err := json.Marshal(b.Parameters)
		if err != nil {
			return nil, fmt.Errorf("encode parameters of %s: %w", b.ID, err)
		}
		rows = append(rows, map[string]any{
			"id":         b.ID,
			"kind":       string(b.Kind),
			"label":      b.Label,
			"ord":        int64(i),
			"parameters": string(params),
			"x":          b.Position.X,
			"y":          b.Position.Y,
		})
	}
	return rows, nil
}

func connectionRows(f *flow.Flow) []map[string]any {
	rows := make([]map[string]any, 0, len(f.Connections))
	for i, c := range f.Connections {
		rows = append(rows, map[string]any{
			"id":          c.ID,
			"ord":         int64(i),
			"source":      c.Source.BlockID,
			"source_port": c.Source.Port,
			"target":      c.Target.BlockID,
			"target_port": c.Target.Port,
			"data_type":   c.DataType,
		})
	}
	return rows
}

func decodeParameters(s string) ([]flow.Parameter, error) {
	if s == "" {
		return []flow.Parameter{}, nil
	}
	var params []flow.Parameter
	if err := json.Unmarshal([]byte(s), &params); err != nil {
		return nil, fmt.Errorf("decode parameters: %w", err)
	}
	return params, nil
}

type getter interface {
	Get(key string) (any, bool)
}

func str(rec getter, key string) string {
	v, _ := rec.Get(key)
	s, _ := v.(string)
	return s
}

func num(rec getter, key string) int64 {
	v, _ := rec.Get(key)
	switch n := v.(type) {
	case int64:
		return n
	case float64:
		return int64(n)
	}
	return 0
}

func flt(rec getter, key string) float64 {
	v, _ := rec.Get(key)
	switch n := v.(type) {
	case float64:
		return n
	case int64:
		return float64(n)
	}
	return 0
}

func unixTime(ms int64) time.Time {
	if ms == 0 {
		return time.Time{}
	}
	return time.UnixMilli(ms).UTC()
}
