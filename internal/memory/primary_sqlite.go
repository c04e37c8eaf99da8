package memory

import (
	"context"
	"crypto/sha256"
	"database/sql"
	_ "embed"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"time"

	"github.com/go-logr/logr"
	"github.com/selfmemory/memoryd/internal/memerr"

	_ "modernc.org/sqlite"
)

//go:embed schema_primary.sql
var schemaPrimary string

// SQLitePrimary implements Storage as the durable, authoritative tier,
// the way the teacher's SQLiteOperationalDB/SQLiteLearningDB wrap a
// single modernc.org/sqlite connection with WAL mode and a busy timeout.
type SQLitePrimary struct {
	db  *sql.DB
	log logr.Logger
}

// NewSQLitePrimary opens (and migrates) the primary database at path.
func NewSQLitePrimary(path string, poolSize int, log logr.Logger) (*SQLitePrimary, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open primary database: %w", err)
	}
	db.SetMaxOpenConns(1) // matches teacher: SQLite handles concurrency better single-conn

	pragmas := []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA synchronous=NORMAL",
		"PRAGMA busy_timeout=5000",
		"PRAGMA foreign_keys=ON",
		"PRAGMA cache_size=-64000",
	}
	for _, p := range pragmas {
		if _, err := db.Exec(p); err != nil {
			db.Close()
			return nil, fmt.Errorf("failed to set pragma %q: %w", p, err)
		}
	}

	if _, err := db.Exec(schemaPrimary); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}

	return &SQLitePrimary{db: db, log: log}, nil
}

func (s *SQLitePrimary) Close() error { return s.db.Close() }

func checksumOf(b []byte) string {
	sum := sha256.Sum256(b)
	return hex.EncodeToString(sum[:])
}

// PutEpisode upserts an episode, enforcing the bounded-size contract of
// §4.4 at serialization time.
func (s *SQLitePrimary) PutEpisode(ctx context.Context, ep *Episode) error {
	if len(ep.TaskDescription) > MaxTaskDescriptionBytes {
		return memerr.DataTooLarge("PutEpisode", fmt.Errorf("task description exceeds %d bytes", MaxTaskDescriptionBytes))
	}
	stepsJSON, err := json.Marshal(ep.Steps)
	if err != nil {
		return memerr.Unknown("PutEpisode", err)
	}
	if len(stepsJSON) > MaxEpisodeBytes {
		return memerr.DataTooLarge("PutEpisode", fmt.Errorf("episode record exceeds %d bytes", MaxEpisodeBytes))
	}
	tagsJSON, _ := json.Marshal(ep.Context.Tags)

	var outcomeVerdict string
	var outcomeJSON []byte
	if ep.Outcome != nil {
		outcomeVerdict = string(ep.Outcome.Verdict)
		outcomeJSON, _ = json.Marshal(ep.Outcome)
	}
	var salientJSON []byte
	if ep.Salient != nil {
		salientJSON, _ = json.Marshal(ep.Salient)
	}
	if ep.SchemaVersion == 0 {
		ep.SchemaVersion = SchemaVersion
	}
	checksum := checksumOf(append(stepsJSON, outcomeJSON...))

	query := `
		INSERT INTO episodes (
			id, task_description, domain, language, complexity, tags, task_type,
			created_at, status, steps, outcome_verdict, outcome_json, completed_at,
			reward, reflection, salient_json, quality_score, last_accessed_at,
			schema_version, checksum
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			status = excluded.status,
			steps = excluded.steps,
			outcome_verdict = excluded.outcome_verdict,
			outcome_json = excluded.outcome_json,
			completed_at = excluded.completed_at,
			reward = excluded.reward,
			reflection = excluded.reflection,
			salient_json = excluded.salient_json,
			quality_score = excluded.quality_score,
			last_accessed_at = excluded.last_accessed_at,
			checksum = excluded.checksum
	`
	_, err = s.db.ExecContext(ctx, query,
		ep.ID, ep.TaskDescription, ep.Context.Domain, ep.Context.Language, ep.Context.Complexity,
		string(tagsJSON), string(ep.TaskType), ep.CreatedAt, string(ep.Status), stepsJSON,
		outcomeVerdict, string(outcomeJSON), ep.CompletedAt, ep.Reward, ep.Reflection,
		string(salientJSON), ep.QualityScore, ep.LastAccessedAt, ep.SchemaVersion, checksum)
	if err != nil {
		return memerr.Unavailable("PutEpisode", err)
	}
	return nil
}

func (s *SQLitePrimary) scanEpisode(row interface {
	Scan(dest ...any) error
}) (*Episode, error) {
	var ep Episode
	var language, complexity, tags, outcomeVerdict, outcomeJSON, salientJSON, checksum sql.NullString
	var stepsJSON []byte
	var completedAt, lastAccessedAt sql.NullTime
	var reward sql.NullFloat64
	var reflection sql.NullString
	var status, domain, taskType string
	var schemaVersion int

	err := row.Scan(
		&ep.ID, &ep.TaskDescription, &domain, &language, &complexity, &tags, &taskType,
		&ep.CreatedAt, &status, &stepsJSON, &outcomeVerdict, &outcomeJSON, &completedAt,
		&reward, &reflection, &salientJSON, &ep.QualityScore, &lastAccessedAt,
		&schemaVersion, &checksum,
	)
	if err != nil {
		return nil, err
	}

	if schemaVersion > SchemaVersion {
		return nil, memerr.UnsupportedVersion("GetEpisode", schemaVersion, SchemaVersion)
	}

	ep.Context = Context{Domain: domain, Language: language.String, Complexity: complexity.String}
	if tags.Valid && tags.String != "" {
		json.Unmarshal([]byte(tags.String), &ep.Context.Tags)
	}
	ep.TaskType = TaskType(taskType)
	ep.Status = Status(status)
	ep.SchemaVersion = schemaVersion

	if len(stepsJSON) > 0 {
		if err := json.Unmarshal(stepsJSON, &ep.Steps); err != nil {
			return nil, memerr.Deserialize("GetEpisode", err)
		}
	}
	if outcomeJSON.Valid && outcomeJSON.String != "" {
		var o Outcome
		if err := json.Unmarshal([]byte(outcomeJSON.String), &o); err == nil {
			ep.Outcome = &o
		}
	}
	if completedAt.Valid {
		t := completedAt.Time
		ep.CompletedAt = &t
	}
	if reward.Valid {
		r := reward.Float64
		ep.Reward = &r
	}
	ep.Reflection = reflection.String
	if salientJSON.Valid && salientJSON.String != "" {
		var sf SalientFeatures
		if err := json.Unmarshal([]byte(salientJSON.String), &sf); err == nil {
			ep.Salient = &sf
		}
	}
	if lastAccessedAt.Valid {
		ep.LastAccessedAt = lastAccessedAt.Time
	}

	return &ep, nil
}

func (s *SQLitePrimary) GetEpisode(ctx context.Context, id string) (*Episode, error) {
	query := `
		SELECT id, task_description, domain, language, complexity, tags, task_type,
			   created_at, status, steps, outcome_verdict, outcome_json, completed_at,
			   reward, reflection, salient_json, quality_score, last_accessed_at,
			   schema_version, checksum
		FROM episodes WHERE id = ?
	`
	row := s.db.QueryRowContext(ctx, query, id)
	ep, err := s.scanEpisode(row)
	if err == sql.ErrNoRows {
		return nil, memerr.NotFound("GetEpisode", id)
	}
	if err != nil {
		if _, ok := memerr.KindOf(err); ok {
			return nil, err
		}
		return nil, memerr.Unknown("GetEpisode", err)
	}
	return ep, nil
}

func (s *SQLitePrimary) DeleteEpisode(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, "DELETE FROM episodes WHERE id = ?", id)
	if err != nil {
		return memerr.Unavailable("DeleteEpisode", err)
	}
	n, _ := res.RowsAffected()
	if n == 0 {
		return memerr.NotFound("DeleteEpisode", id)
	}
	return nil
}

func (s *SQLitePrimary) ListEpisodes(ctx context.Context, filter Filter) ([]*Episode, error) {
	query := `
		SELECT id, task_description, domain, language, complexity, tags, task_type,
			   created_at, status, steps, outcome_verdict, outcome_json, completed_at,
			   reward, reflection, salient_json, quality_score, last_accessed_at,
			   schema_version, checksum
		FROM episodes WHERE 1=1
	`
	var args []any
	if filter.Domain != "" {
		query += " AND domain = ?"
		args = append(args, filter.Domain)
	}
	if filter.TaskType != "" {
		query += " AND task_type = ?"
		args = append(args, string(filter.TaskType))
	}
	if filter.Status != "" {
		query += " AND status = ?"
		args = append(args, string(filter.Status))
	}
	if !filter.Since.IsZero() {
		query += " AND created_at >= ?"
		args = append(args, filter.Since)
	}
	if !filter.Until.IsZero() {
		query += " AND created_at <= ?"
		args = append(args, filter.Until)
	}
	query += " ORDER BY created_at DESC"
	if filter.Limit > 0 {
		query += " LIMIT ?"
		args = append(args, filter.Limit)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, memerr.Unavailable("ListEpisodes", err)
	}
	defer rows.Close()

	var out []*Episode
	for rows.Next() {
		ep, err := s.scanEpisode(rows)
		if err != nil {
			return nil, memerr.Unknown("ListEpisodes", err)
		}
		if len(filter.Tags) > 0 && !tagsIntersect(ep.Context.Tags, filter.Tags) {
			continue
		}
		out = append(out, ep)
	}
	return out, rows.Err()
}

func tagsIntersect(have, want []string) bool {
	set := make(map[string]struct{}, len(have))
	for _, t := range have {
		set[t] = struct{}{}
	}
	for _, w := range want {
		if _, ok := set[w]; ok {
			return true
		}
	}
	return false
}

func (s *SQLitePrimary) PutSummary(ctx context.Context, sm *Summary) error {
	text := sm.Text
	if len(text) > MaxSummaryBytes {
		return memerr.DataTooLarge("PutSummary", fmt.Errorf("summary exceeds %d bytes", MaxSummaryBytes))
	}
	if sm.SchemaVersion == 0 {
		sm.SchemaVersion = SchemaVersion
	}
	keyConcepts, _ := json.Marshal(sm.KeyConcepts)
	criticalSteps, _ := json.Marshal(sm.CriticalSteps)
	embBlob := encodeEmbedding(sm.Embedding)

	query := `
		INSERT INTO episode_summaries (episode_id, text, key_concepts, critical_steps, embedding, schema_version)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT(episode_id) DO UPDATE SET
			text = excluded.text, key_concepts = excluded.key_concepts,
			critical_steps = excluded.critical_steps, embedding = excluded.embedding
	`
	_, err := s.db.ExecContext(ctx, query, sm.EpisodeID, text, string(keyConcepts), string(criticalSteps), embBlob, sm.SchemaVersion)
	if err != nil {
		return memerr.Unavailable("PutSummary", err)
	}
	return nil
}

func (s *SQLitePrimary) GetSummary(ctx context.Context, episodeID string) (*Summary, error) {
	query := `SELECT episode_id, text, key_concepts, critical_steps, embedding, schema_version FROM episode_summaries WHERE episode_id = ?`
	var sm Summary
	var keyConcepts, criticalSteps sql.NullString
	var embBlob []byte
	err := s.db.QueryRowContext(ctx, query, episodeID).Scan(&sm.EpisodeID, &sm.Text, &keyConcepts, &criticalSteps, &embBlob, &sm.SchemaVersion)
	if err == sql.ErrNoRows {
		return nil, memerr.NotFound("GetSummary", episodeID)
	}
	if err != nil {
		return nil, memerr.Unknown("GetSummary", err)
	}
	if keyConcepts.Valid {
		json.Unmarshal([]byte(keyConcepts.String), &sm.KeyConcepts)
	}
	if criticalSteps.Valid {
		json.Unmarshal([]byte(criticalSteps.String), &sm.CriticalSteps)
	}
	sm.Embedding = decodeEmbedding(embBlob)
	return &sm, nil
}

func (s *SQLitePrimary) DeleteSummary(ctx context.Context, episodeID string) error {
	_, err := s.db.ExecContext(ctx, "DELETE FROM episode_summaries WHERE episode_id = ?", episodeID)
	if err != nil {
		return memerr.Unavailable("DeleteSummary", err)
	}
	return nil
}

func (s *SQLitePrimary) PutPattern(ctx context.Context, p *Pattern) error {
	if len(p.Payload) > MaxPatternBytes {
		return memerr.DataTooLarge("PutPattern", fmt.Errorf("pattern exceeds %d bytes", MaxPatternBytes))
	}
	if p.SchemaVersion == 0 {
		p.SchemaVersion = SchemaVersion
	}
	supporting, _ := json.Marshal(p.SupportingEpisodes)

	query := `
		INSERT INTO patterns (id, kind, payload, confidence, frequency, success_rate,
			supporting_episodes, first_seen, last_used, schema_version, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			kind = excluded.kind, payload = excluded.payload, confidence = excluded.confidence,
			frequency = excluded.frequency, success_rate = excluded.success_rate,
			supporting_episodes = excluded.supporting_episodes, last_used = excluded.last_used,
			updated_at = excluded.updated_at
	`
	_, err := s.db.ExecContext(ctx, query, p.ID, string(p.Kind), p.Payload, p.Confidence, p.Frequency,
		p.SuccessRate, string(supporting), p.FirstSeen, p.LastUsed, p.SchemaVersion, time.Now())
	if err != nil {
		return memerr.Unavailable("PutPattern", err)
	}
	return nil
}

func (s *SQLitePrimary) GetPattern(ctx context.Context, id string) (*Pattern, error) {
	query := `
		SELECT id, kind, payload, confidence, frequency, success_rate, supporting_episodes,
			   first_seen, last_used, schema_version
		FROM patterns WHERE id = ?
	`
	var p Pattern
	var kind string
	var supporting sql.NullString
	err := s.db.QueryRowContext(ctx, query, id).Scan(&p.ID, &kind, &p.Payload, &p.Confidence,
		&p.Frequency, &p.SuccessRate, &supporting, &p.FirstSeen, &p.LastUsed, &p.SchemaVersion)
	if err == sql.ErrNoRows {
		return nil, memerr.NotFound("GetPattern", id)
	}
	if err != nil {
		return nil, memerr.Unknown("GetPattern", err)
	}
	p.Kind = PatternKind(kind)
	if supporting.Valid {
		json.Unmarshal([]byte(supporting.String), &p.SupportingEpisodes)
	}
	return &p, nil
}

// PutHeuristic upserts a distilled condition-action rule (§C.1
// supplement). Heuristics are derived, Primary-only state: they are
// never read through the Cache tier, so they live outside the Storage
// interface both tiers share.
func (s *SQLitePrimary) PutHeuristic(ctx context.Context, h *Heuristic) error {
	sourceIDs, _ := json.Marshal(h.SourcePatternIDs)
	query := `
		INSERT INTO heuristics (id, condition, action, confidence, source_pattern_ids)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			condition = excluded.condition, action = excluded.action,
			confidence = excluded.confidence, source_pattern_ids = excluded.source_pattern_ids
	`
	_, err := s.db.ExecContext(ctx, query, h.ID, h.Condition, h.Action, h.Confidence, string(sourceIDs))
	if err != nil {
		return memerr.Unavailable("PutHeuristic", err)
	}
	return nil
}

// ListHeuristics returns every stored heuristic, consumed by retrieval's
// tie-break scoring (§C.1).
func (s *SQLitePrimary) ListHeuristics(ctx context.Context) ([]*Heuristic, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT id, condition, action, confidence, source_pattern_ids FROM heuristics`)
	if err != nil {
		return nil, memerr.Unavailable("ListHeuristics", err)
	}
	defer rows.Close()

	var out []*Heuristic
	for rows.Next() {
		var h Heuristic
		var sourceIDs sql.NullString
		if err := rows.Scan(&h.ID, &h.Condition, &h.Action, &h.Confidence, &sourceIDs); err != nil {
			return nil, memerr.Unknown("ListHeuristics", err)
		}
		if sourceIDs.Valid {
			json.Unmarshal([]byte(sourceIDs.String), &h.SourcePatternIDs)
		}
		out = append(out, &h)
	}
	return out, rows.Err()
}

// UpdatePatternAtomic runs f inside a single transaction so concurrent
// readers never observe a torn write, per §5's "serializable" guarantee.
func (s *SQLitePrimary) UpdatePatternAtomic(ctx context.Context, id string, f func(*Pattern) (*Pattern, error)) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return memerr.Unavailable("UpdatePatternAtomic", err)
	}
	defer tx.Rollback()

	var current *Pattern
	row := tx.QueryRowContext(ctx, `
		SELECT id, kind, payload, confidence, frequency, success_rate, supporting_episodes,
			   first_seen, last_used, schema_version
		FROM patterns WHERE id = ?`, id)
	var p Pattern
	var kind string
	var supporting sql.NullString
	err = row.Scan(&p.ID, &kind, &p.Payload, &p.Confidence, &p.Frequency, &p.SuccessRate,
		&supporting, &p.FirstSeen, &p.LastUsed, &p.SchemaVersion)
	if err == nil {
		p.Kind = PatternKind(kind)
		if supporting.Valid {
			json.Unmarshal([]byte(supporting.String), &p.SupportingEpisodes)
		}
		current = &p
	} else if err != sql.ErrNoRows {
		return memerr.Unknown("UpdatePatternAtomic", err)
	}

	updated, err := f(current)
	if err != nil {
		return err
	}
	if updated.SchemaVersion == 0 {
		updated.SchemaVersion = SchemaVersion
	}
	supportingJSON, _ := json.Marshal(updated.SupportingEpisodes)
	_, err = tx.ExecContext(ctx, `
		INSERT INTO patterns (id, kind, payload, confidence, frequency, success_rate,
			supporting_episodes, first_seen, last_used, schema_version, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			kind = excluded.kind, payload = excluded.payload, confidence = excluded.confidence,
			frequency = excluded.frequency, success_rate = excluded.success_rate,
			supporting_episodes = excluded.supporting_episodes, last_used = excluded.last_used,
			updated_at = excluded.updated_at
	`, updated.ID, string(updated.Kind), updated.Payload, updated.Confidence, updated.Frequency,
		updated.SuccessRate, string(supportingJSON), updated.FirstSeen, updated.LastUsed,
		updated.SchemaVersion, time.Now())
	if err != nil {
		return memerr.Unavailable("UpdatePatternAtomic", err)
	}
	return tx.Commit()
}

func (s *SQLitePrimary) PutEmbedding(ctx context.Context, e *EmbeddingRecord) error {
	blob := encodeEmbedding(e.Vector)
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO embeddings (episode_id, dimension, vector) VALUES (?, ?, ?)
		ON CONFLICT(episode_id, dimension) DO UPDATE SET vector = excluded.vector
	`, e.EpisodeID, e.Dimension, blob)
	if err != nil {
		return memerr.Unavailable("PutEmbedding", err)
	}
	return nil
}

func (s *SQLitePrimary) GetEmbedding(ctx context.Context, episodeID string, dimension int) (*EmbeddingRecord, error) {
	var blob []byte
	err := s.db.QueryRowContext(ctx, `SELECT vector FROM embeddings WHERE episode_id = ? AND dimension = ?`, episodeID, dimension).Scan(&blob)
	if err == sql.ErrNoRows {
		return nil, memerr.NotFound("GetEmbedding", episodeID)
	}
	if err != nil {
		return nil, memerr.Unknown("GetEmbedding", err)
	}
	return &EmbeddingRecord{EpisodeID: episodeID, Dimension: dimension, Vector: decodeEmbedding(blob)}, nil
}

func (s *SQLitePrimary) GetMeta(ctx context.Context, key string) (string, bool, error) {
	var v string
	err := s.db.QueryRowContext(ctx, "SELECT value FROM metadata WHERE key = ?", key).Scan(&v)
	if err == sql.ErrNoRows {
		return "", false, nil
	}
	if err != nil {
		return "", false, memerr.Unknown("GetMeta", err)
	}
	return v, true, nil
}

func (s *SQLitePrimary) PutMeta(ctx context.Context, key, value string) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO metadata (key, value) VALUES (?, ?)
		ON CONFLICT(key) DO UPDATE SET value = excluded.value
	`, key, value)
	if err != nil {
		return memerr.Unavailable("PutMeta", err)
	}
	return nil
}

func (s *SQLitePrimary) Count(ctx context.Context) (int, error) {
	v, ok, err := s.GetMeta(ctx, "episode_count")
	if err != nil {
		return 0, err
	}
	if !ok {
		var n int
		if err := s.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM episodes WHERE status = 'Completed'").Scan(&n); err != nil {
			return 0, memerr.Unknown("Count", err)
		}
		return n, nil
	}
	var n int
	fmt.Sscanf(v, "%d", &n)
	return n, nil
}

// SetCount persists the maintained count metadata. The Capacity Manager
// calls it after each admission only when max_episodes is set; until the
// key has been written, Count runs a COUNT(*) over completed episodes.
func (s *SQLitePrimary) SetCount(ctx context.Context, n int) error {
	return s.PutMeta(ctx, "episode_count", fmt.Sprintf("%d", n))
}

func (s *SQLitePrimary) Checksum(ctx context.Context, id string) (string, bool, error) {
	var v sql.NullString
	err := s.db.QueryRowContext(ctx, "SELECT checksum FROM episodes WHERE id = ?", id).Scan(&v)
	if err == sql.ErrNoRows {
		return "", false, nil
	}
	if err != nil {
		return "", false, memerr.Unknown("Checksum", err)
	}
	return v.String, true, nil
}

// QueueRepair records id as needing a cache-side write, per §4.5's
// write-through failure path (Primary succeeded, Cache failed).
func (s *SQLitePrimary) QueueRepair(ctx context.Context, kind, id string) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO repair_list (id, kind, queued_at) VALUES (?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET queued_at = excluded.queued_at
	`, id, kind, time.Now())
	if err != nil {
		return memerr.Unavailable("QueueRepair", err)
	}
	return nil
}

func (s *SQLitePrimary) DrainRepairList(ctx context.Context, limit int) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, "SELECT id FROM repair_list ORDER BY queued_at ASC LIMIT ?", limit)
	if err != nil {
		return nil, memerr.Unavailable("DrainRepairList", err)
	}
	defer rows.Close()
	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

func (s *SQLitePrimary) ClearRepair(ctx context.Context, id string) error {
	_, err := s.db.ExecContext(ctx, "DELETE FROM repair_list WHERE id = ?", id)
	return err
}

// ListEpisodeIDsInRange supports the Spatiotemporal Index's bounded
// rebuild-from-store streaming pass (§4.6).
func (s *SQLitePrimary) ListEpisodeIDsInRange(ctx context.Context, offset, limit int) ([]*Episode, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, task_description, domain, language, complexity, tags, task_type,
			   created_at, status, steps, outcome_verdict, outcome_json, completed_at,
			   reward, reflection, salient_json, quality_score, last_accessed_at,
			   schema_version, checksum
		FROM episodes WHERE status = 'Completed' ORDER BY id LIMIT ? OFFSET ?
	`, limit, offset)
	if err != nil {
		return nil, memerr.Unavailable("ListEpisodeIDsInRange", err)
	}
	defer rows.Close()
	var out []*Episode
	for rows.Next() {
		ep, err := s.scanEpisode(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, ep)
	}
	return out, rows.Err()
}
