package internal

import (
	"context"
	"encoding/json"
	"sync"

	"github.com/cockroachdb/errors"
	"github.com/lychee-technology/formflow"
	"github.com/tidwall/buntdb"
)

// Keys of the two JSON documents that hold every form and every submission.
const (
	FormsKey       = "event_service_forms"
	SubmissionsKey = "event_service_form_submissions"
)

// MemoryPath opens a key-value store that lives only in process memory.
const MemoryPath = ":memory:"

// KVFormRepository stores forms and submissions as two JSON arrays in a
// buntdb database.
type KVFormRepository struct {
	db   *buntdb.DB
	once sync.Once
}

// OpenKVFormRepository opens (or creates) the database at path.
func OpenKVFormRepository(path string) (*KVFormRepository, error) {
	db, err := buntdb.Open(path)
	if err != nil {
		return nil, errors.Wrapf(err, "open kv store %q", path)
	}

	if path != MemoryPath {
		var dbcfg buntdb.Config
		if err := db.ReadConfig(&dbcfg); err != nil {
			db.Close()
			return nil, errors.Wrap(err, "read kv store config")
		}
		dbcfg.SyncPolicy = buntdb.EverySecond
		if err := db.SetConfig(dbcfg); err != nil {
			db.Close()
			return nil, errors.Wrap(err, "set kv store config")
		}
	}

	return NewKVFormRepository(db), nil
}

func NewKVFormRepository(db *buntdb.DB) *KVFormRepository {
	return &KVFormRepository{db: db}
}

func (r *KVFormRepository) Close() error {
	var err error
	r.once.Do(func() {
		err = r.db.Close()
	})
	return err
}

func (r *KVFormRepository) Ping(context.Context) error {
	return r.db.View(func(tx *buntdb.Tx) error {
		_, err := tx.Len()
		return err
	})
}

func readForms(tx *buntdb.Tx) ([]formflow.FormSchema, error) {
	forms := []formflow.FormSchema{}
	raw, err := tx.Get(FormsKey)
	if err != nil {
		if errors.Is(err, buntdb.ErrNotFound) {
			return forms, nil
		}
		return nil, errors.Wrap(err, "get forms")
	}
	if err := json.Unmarshal([]byte(raw), &forms); err != nil {
		return nil, errors.Wrap(err, "decode forms")
	}
	return forms, nil
}

func readSubmissions(tx *buntdb.Tx) ([]formflow.Submission, error) {
	submissions := []formflow.Submission{}
	raw, err := tx.Get(SubmissionsKey)
	if err != nil {
		if errors.Is(err, buntdb.ErrNotFound) {
			return submissions, nil
		}
		return nil, errors.Wrap(err, "get submissions")
	}
	if err := json.Unmarshal([]byte(raw), &submissions); err != nil {
		return nil, errors.Wrap(err, "decode submissions")
	}
	return submissions, nil
}

func writeJSON(tx *buntdb.Tx, key string, v any) error {
	buf, err := json.Marshal(v)
	if err != nil {
		return errors.Wrapf(err, "encode %s", key)
	}
	if _, _, err := tx.Set(key, string(buf), nil); err != nil {
		return errors.Wrapf(err, "set %s", key)
	}
	return nil
}

func (r *KVFormRepository) ListForms(ctx context.Context) ([]formflow.FormSchema, error) {
	var forms []formflow.FormSchema
	err := r.db.View(func(tx *buntdb.Tx) error {
		var err error
		forms, err = readForms(tx)
		return err
	})
	if err != nil {
		return nil, err
	}
	return forms, nil
}

func (r *KVFormRepository) GetForm(ctx context.Context, id string) (*formflow.FormSchema, error) {
	forms, err := r.ListForms(ctx)
	if err != nil {
		return nil, err
	}
	for i := range forms {
		if forms[i].ID == id {
			return &forms[i], nil
		}
	}
	return nil, nil
}

func (r *KVFormRepository) UpsertForm(ctx context.Context, form *formflow.FormSchema) error {
	if form == nil {
		return errors.New("form cannot be nil")
	}
	return r.db.Update(func(tx *buntdb.Tx) error {
		return upsertForm(tx, form)
	})
}

func upsertForm(tx *buntdb.Tx, form *formflow.FormSchema) error {
	forms, err := readForms(tx)
	if err != nil {
		return err
	}
	replaced := false
	for i := range forms {
		if forms[i].ID == form.ID {
			forms[i] = *form
			replaced = true
			break
		}
	}
	if !replaced {
		forms = append(forms, *form)
	}
	return writeJSON(tx, FormsKey, forms)
}

func (r *KVFormRepository) DeleteForm(ctx context.Context, id string) (bool, error) {
	deleted := false
	err := r.db.Update(func(tx *buntdb.Tx) error {
		forms, err := readForms(tx)
		if err != nil {
			return err
		}
		kept := forms[:0]
		for _, f := range forms {
			if f.ID == id {
				deleted = true
				continue
			}
			kept = append(kept, f)
		}
		if !deleted {
			return nil
		}

		submissions, err := readSubmissions(tx)
		if err != nil {
			return err
		}
		remaining := submissions[:0]
		for _, s := range submissions {
			if s.FormID != id {
				remaining = append(remaining, s)
			}
		}

		if err := writeJSON(tx, FormsKey, kept); err != nil {
			return err
		}
		return writeJSON(tx, SubmissionsKey, remaining)
	})
	if err != nil {
		return false, err
	}
	return deleted, nil
}

func (r *KVFormRepository) ListSubmissions(ctx context.Context, formID string) ([]formflow.Submission, error) {
	var all []formflow.Submission
	err := r.db.View(func(tx *buntdb.Tx) error {
		var err error
		all, err = readSubmissions(tx)
		return err
	})
	if err != nil {
		return nil, err
	}
	out := make([]formflow.Submission, 0, len(all))
	for _, s := range all {
		if s.FormID == formID {
			out = append(out, s)
		}
	}
	return out, nil
}

func (r *KVFormRepository) InsertSubmissions(ctx context.Context, submissions []formflow.Submission) (int, error) {
	inserted := 0
	err := r.db.Update(func(tx *buntdb.Tx) error {
		var err error
		inserted, err = appendSubmissions(tx, submissions)
		return err
	})
	if err != nil {
		return 0, err
	}
	return inserted, nil
}

func appendSubmissions(tx *buntdb.Tx, submissions []formflow.Submission) (int, error) {
	if len(submissions) == 0 {
		return 0, nil
	}
	stored, err := readSubmissions(tx)
	if err != nil {
		return 0, err
	}
	seen := make(map[string]struct{}, len(stored))
	for _, s := range stored {
		seen[s.ID] = struct{}{}
	}
	inserted := 0
	for _, s := range submissions {
		if _, ok := seen[s.ID]; ok {
			continue
		}
		seen[s.ID] = struct{}{}
		stored = append(stored, s)
		inserted++
	}
	if inserted == 0 {
		return 0, nil
	}
	return inserted, writeJSON(tx, SubmissionsKey, stored)
}

func (r *KVFormRepository) Import(ctx context.Context, form *formflow.FormSchema, submissions []formflow.Submission) (int, error) {
	if form == nil {
		return 0, errors.New("form cannot be nil")
	}
	inserted := 0
	err := r.db.Update(func(tx *buntdb.Tx) error {
		if err := upsertForm(tx, form); err != nil {
			return err
		}
		var err error
		inserted, err = appendSubmissions(tx, submissions)
		return err
	})
	if err != nil {
		return 0, err
	}
	return inserted, nil
}

// Clear removes both documents. It does not read them, so it also recovers
// a store whose documents no longer decode.
func (r *KVFormRepository) Clear(ctx context.Context) error {
	return r.db.Update(func(tx *buntdb.Tx) error {
		for _, key := range []string{FormsKey, SubmissionsKey} {
			if _, err := tx.Delete(key); err != nil && !errors.Is(err, buntdb.ErrNotFound) {
				return errors.Wrapf(err, "delete %s", key)
			}
		}
		return nil
	})
}
