package memory

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/dgraph-io/badger/v4"
	"github.com/go-logr/logr"

	"github.com/selfmemory/memoryd/internal/memerr"
)

// BadgerCache implements Storage as the fast embedded tier, the way
// QuantumFlow's ProceduralStore wraps BadgerDB as a key-value backend.
// Keys are namespaced by record kind so the single Badger instance
// mirrors the Primary's multiple logical key spaces (§6).
type BadgerCache struct {
	db  *badger.DB
	log logr.Logger
}

func NewBadgerCache(dir string, log logr.Logger) (*BadgerCache, error) {
	opts := badger.DefaultOptions(dir).WithLogger(nil)
	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("failed to open cache database: %w", err)
	}
	return &BadgerCache{db: db, log: log}, nil
}

func (c *BadgerCache) Close() error { return c.db.Close() }

func episodeKey(id string) []byte   { return []byte("episode:" + id) }
func summaryKey(id string) []byte   { return []byte("summary:" + id) }
func patternKey(id string) []byte   { return []byte("pattern:" + id) }
func metaKey(key string) []byte     { return []byte("meta:" + key) }
func checksumKey(id string) []byte  { return []byte("checksum:" + id) }
func embeddingKey(id string, dim int) []byte {
	return []byte(fmt.Sprintf("embedding:%s:%d", id, dim))
}

func (c *BadgerCache) PutEpisode(ctx context.Context, ep *Episode) error {
	if len(ep.TaskDescription) > MaxTaskDescriptionBytes {
		return memerr.DataTooLarge("PutEpisode", fmt.Errorf("task description exceeds %d bytes", MaxTaskDescriptionBytes))
	}
	blob, err := json.Marshal(ep)
	if err != nil {
		return memerr.Unknown("PutEpisode", err)
	}
	if len(blob) > MaxEpisodeBytes {
		return memerr.DataTooLarge("PutEpisode", fmt.Errorf("episode record exceeds %d bytes", MaxEpisodeBytes))
	}
	// Same checksum input as SQLitePrimary.PutEpisode (steps JSON followed
	// by outcome JSON), so the Synchronizer can compare the two tiers.
	stepsJSON, err := json.Marshal(ep.Steps)
	if err != nil {
		return memerr.Unknown("PutEpisode", err)
	}
	var outcomeJSON []byte
	if ep.Outcome != nil {
		outcomeJSON, _ = json.Marshal(ep.Outcome)
	}
	sum := checksumOf(append(stepsJSON, outcomeJSON...))
	err = c.db.Update(func(txn *badger.Txn) error {
		if err := txn.Set(episodeKey(ep.ID), blob); err != nil {
			return err
		}
		return txn.Set(checksumKey(ep.ID), []byte(sum))
	})
	if err != nil {
		return memerr.Unavailable("PutEpisode", err)
	}
	return nil
}

func (c *BadgerCache) GetEpisode(ctx context.Context, id string) (*Episode, error) {
	var ep Episode
	err := c.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get(episodeKey(id))
		if err != nil {
			return err
		}
		return item.Value(func(val []byte) error {
			if err := json.Unmarshal(val, &ep); err != nil {
				return err
			}
			if ep.SchemaVersion > SchemaVersion {
				return memerr.UnsupportedVersion("GetEpisode", ep.SchemaVersion, SchemaVersion)
			}
			return nil
		})
	})
	if err == badger.ErrKeyNotFound {
		return nil, memerr.NotFound("GetEpisode", id)
	}
	if err != nil {
		if _, ok := memerr.KindOf(err); ok {
			return nil, err
		}
		return nil, memerr.Deserialize("GetEpisode", err)
	}
	return &ep, nil
}

func (c *BadgerCache) DeleteEpisode(ctx context.Context, id string) error {
	err := c.db.Update(func(txn *badger.Txn) error {
		if _, err := txn.Get(episodeKey(id)); err != nil {
			return err
		}
		_ = txn.Delete(summaryKey(id))
		_ = txn.Delete(checksumKey(id))
		return txn.Delete(episodeKey(id))
	})
	if err == badger.ErrKeyNotFound {
		return memerr.NotFound("DeleteEpisode", id)
	}
	if err != nil {
		return memerr.Unavailable("DeleteEpisode", err)
	}
	return nil
}

// ListEpisodes scans the episode key space; acceptable for the Cache
// tier since it only ever holds the hot working set, not the full
// episode population (that's the Primary's job, via parameterized SQL).
func (c *BadgerCache) ListEpisodes(ctx context.Context, filter Filter) ([]*Episode, error) {
	var out []*Episode
	err := c.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.Prefix = []byte("episode:")
		it := txn.NewIterator(opts)
		defer it.Close()
		for it.Seek(opts.Prefix); it.ValidForPrefix(opts.Prefix); it.Next() {
			var ep Episode
			err := it.Item().Value(func(val []byte) error {
				return json.Unmarshal(val, &ep)
			})
			if err != nil {
				continue
			}
			if filter.Domain != "" && ep.Context.Domain != filter.Domain {
				continue
			}
			if filter.TaskType != "" && ep.TaskType != filter.TaskType {
				continue
			}
			if filter.Status != "" && ep.Status != filter.Status {
				continue
			}
			cp := ep
			out = append(out, &cp)
			if filter.Limit > 0 && len(out) >= filter.Limit {
				break
			}
		}
		return nil
	})
	if err != nil {
		return nil, memerr.Unavailable("ListEpisodes", err)
	}
	return out, nil
}

func (c *BadgerCache) PutSummary(ctx context.Context, sm *Summary) error {
	if len(sm.Text) > MaxSummaryBytes {
		return memerr.DataTooLarge("PutSummary", fmt.Errorf("summary exceeds %d bytes", MaxSummaryBytes))
	}
	blob, err := json.Marshal(sm)
	if err != nil {
		return memerr.Unknown("PutSummary", err)
	}
	if err := c.db.Update(func(txn *badger.Txn) error {
		return txn.Set(summaryKey(sm.EpisodeID), blob)
	}); err != nil {
		return memerr.Unavailable("PutSummary", err)
	}
	return nil
}

func (c *BadgerCache) GetSummary(ctx context.Context, episodeID string) (*Summary, error) {
	var sm Summary
	err := c.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get(summaryKey(episodeID))
		if err != nil {
			return err
		}
		return item.Value(func(val []byte) error { return json.Unmarshal(val, &sm) })
	})
	if err == badger.ErrKeyNotFound {
		return nil, memerr.NotFound("GetSummary", episodeID)
	}
	if err != nil {
		return nil, memerr.Deserialize("GetSummary", err)
	}
	return &sm, nil
}

func (c *BadgerCache) DeleteSummary(ctx context.Context, episodeID string) error {
	if err := c.db.Update(func(txn *badger.Txn) error {
		return txn.Delete(summaryKey(episodeID))
	}); err != nil {
		return memerr.Unavailable("DeleteSummary", err)
	}
	return nil
}

func (c *BadgerCache) PutPattern(ctx context.Context, p *Pattern) error {
	if len(p.Payload) > MaxPatternBytes {
		return memerr.DataTooLarge("PutPattern", fmt.Errorf("pattern exceeds %d bytes", MaxPatternBytes))
	}
	blob, err := json.Marshal(p)
	if err != nil {
		return memerr.Unknown("PutPattern", err)
	}
	if err := c.db.Update(func(txn *badger.Txn) error {
		return txn.Set(patternKey(p.ID), blob)
	}); err != nil {
		return memerr.Unavailable("PutPattern", err)
	}
	return nil
}

func (c *BadgerCache) GetPattern(ctx context.Context, id string) (*Pattern, error) {
	var p Pattern
	err := c.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get(patternKey(id))
		if err != nil {
			return err
		}
		return item.Value(func(val []byte) error { return json.Unmarshal(val, &p) })
	})
	if err == badger.ErrKeyNotFound {
		return nil, memerr.NotFound("GetPattern", id)
	}
	if err != nil {
		return nil, memerr.Deserialize("GetPattern", err)
	}
	return &p, nil
}

// UpdatePatternAtomic leans on Badger's transaction isolation: the
// read-modify-write happens inside a single txn so concurrent updates
// serialize rather than interleave.
func (c *BadgerCache) UpdatePatternAtomic(ctx context.Context, id string, f func(*Pattern) (*Pattern, error)) error {
	return c.db.Update(func(txn *badger.Txn) error {
		var current *Pattern
		item, err := txn.Get(patternKey(id))
		switch {
		case err == nil:
			var p Pattern
			if verr := item.Value(func(val []byte) error { return json.Unmarshal(val, &p) }); verr != nil {
				return verr
			}
			current = &p
		case err != badger.ErrKeyNotFound:
			return err
		}

		updated, ferr := f(current)
		if ferr != nil {
			return ferr
		}
		blob, merr := json.Marshal(updated)
		if merr != nil {
			return merr
		}
		return txn.Set(patternKey(updated.ID), blob)
	})
}

func (c *BadgerCache) PutEmbedding(ctx context.Context, e *EmbeddingRecord) error {
	blob, err := json.Marshal(e)
	if err != nil {
		return memerr.Unknown("PutEmbedding", err)
	}
	if err := c.db.Update(func(txn *badger.Txn) error {
		return txn.Set(embeddingKey(e.EpisodeID, e.Dimension), blob)
	}); err != nil {
		return memerr.Unavailable("PutEmbedding", err)
	}
	return nil
}

func (c *BadgerCache) GetEmbedding(ctx context.Context, episodeID string, dimension int) (*EmbeddingRecord, error) {
	var e EmbeddingRecord
	err := c.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get(embeddingKey(episodeID, dimension))
		if err != nil {
			return err
		}
		return item.Value(func(val []byte) error { return json.Unmarshal(val, &e) })
	})
	if err == badger.ErrKeyNotFound {
		return nil, memerr.NotFound("GetEmbedding", episodeID)
	}
	if err != nil {
		return nil, memerr.Deserialize("GetEmbedding", err)
	}
	return &e, nil
}

func (c *BadgerCache) GetMeta(ctx context.Context, key string) (string, bool, error) {
	var v string
	err := c.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get(metaKey(key))
		if err != nil {
			return err
		}
		return item.Value(func(val []byte) error { v = string(val); return nil })
	})
	if err == badger.ErrKeyNotFound {
		return "", false, nil
	}
	if err != nil {
		return "", false, memerr.Unavailable("GetMeta", err)
	}
	return v, true, nil
}

func (c *BadgerCache) PutMeta(ctx context.Context, key, value string) error {
	if err := c.db.Update(func(txn *badger.Txn) error {
		return txn.Set(metaKey(key), []byte(value))
	}); err != nil {
		return memerr.Unavailable("PutMeta", err)
	}
	return nil
}

func (c *BadgerCache) Count(ctx context.Context) (int, error) {
	v, ok, err := c.GetMeta(ctx, "episode_count")
	if err != nil || !ok {
		return 0, err
	}
	var n int
	fmt.Sscanf(v, "%d", &n)
	return n, nil
}

func (c *BadgerCache) Checksum(ctx context.Context, id string) (string, bool, error) {
	var v string
	err := c.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get(checksumKey(id))
		if err != nil {
			return err
		}
		return item.Value(func(val []byte) error { v = string(val); return nil })
	})
	if err == badger.ErrKeyNotFound {
		return "", false, nil
	}
	if err != nil {
		return "", false, memerr.Unavailable("Checksum", err)
	}
	return v, true, nil
}
