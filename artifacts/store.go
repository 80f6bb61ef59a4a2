// Package artifacts persists churn bundles. Each bundle lives in its own
// directory under <dir>/bundles and <dir>/current is a symlink naming the
// active one:
//
//	<dir>/
//	  current -> bundles/<id>
//	  bundles/<id>/{model,scaler,reducer,encoder}.gob
//	  bundles/<id>/meta.json
//
// A bundle directory is complete before it is renamed into bundles/ and
// current is replaced with a rename, so a reader never sees a partial or
// mixed bundle.
package artifacts

import (
	"encoding/json"
	"os"
	"path/filepath"
	"sort"
	"time"

	"github.com/google/uuid"

	"github.com/ezoic/churn/churn"
	"github.com/ezoic/churn/core/model"
	scigoErrors "github.com/ezoic/churn/pkg/errors"
	"github.com/ezoic/churn/pkg/log"
	"github.com/ezoic/churn/preprocessing"
	"github.com/ezoic/churn/sklearn/tree"
)

// ErrNotFound reports a missing current pointer or artifact file; callers
// should train first.
var ErrNotFound = scigoErrors.New("artifacts: bundle not found, train first")

// File names inside a bundle directory.
const (
	ModelFile   = "model.gob"
	ScalerFile  = "scaler.gob"
	ReducerFile = "reducer.gob"
	EncoderFile = "encoder.gob"
	MetaFile    = "meta.json"

	currentLink = "current"
	bundlesDir  = "bundles"
)

// Store reads and writes bundles under a directory.
type Store struct {
	dir    string
	logger log.Logger
}

// NewStore opens dir, creating it if needed.
func NewStore(dir string) (*Store, error) {
	if err := os.MkdirAll(filepath.Join(dir, bundlesDir), 0o755); err != nil {
		return nil, scigoErrors.Wrapf(err, "create artifact dir %s", dir)
	}
	return &Store{dir: dir, logger: log.GetLoggerWithName("artifacts")}, nil
}

// Dir is the store root.
func (s *Store) Dir() string { return s.dir }

// CurrentPath is the path of the current pointer.
func (s *Store) CurrentPath() string { return filepath.Join(s.dir, currentLink) }

// BundlePath is the directory holding bundle id.
func (s *Store) BundlePath(id string) string { return filepath.Join(s.dir, bundlesDir, id) }

// Save writes b as a new bundle and makes it current. An empty
// b.Metadata.ID is replaced with a fresh UUID. It returns the bundle id.
func (s *Store) Save(b *churn.Bundle) (id string, err error) {
	if err := b.Validate(); err != nil {
		return "", scigoErrors.Wrap(err, "refusing to save incomplete bundle")
	}
	if b.Metadata.ID == "" {
		b.Metadata.ID = uuid.NewString()
	}
	id = b.Metadata.ID
	if b.Metadata.CreatedAt.IsZero() {
		b.Metadata.CreatedAt = time.Now().UTC()
	}

	staging, err := os.MkdirTemp(s.dir, ".staging-")
	if err != nil {
		return "", scigoErrors.Wrap(err, "create staging dir")
	}
	defer func() {
		if err != nil {
			_ = os.RemoveAll(staging)
		}
	}()

	parts := []struct {
		file string
		v    interface{}
	}{
		{EncoderFile, b.Encoder},
		{ScalerFile, b.Scaler},
		{ReducerFile, b.Reducer},
		{ModelFile, b.Model},
	}
	for _, p := range parts {
		if err = model.SaveModel(p.v, filepath.Join(staging, p.file)); err != nil {
			return "", scigoErrors.Wrapf(err, "write %s", p.file)
		}
	}
	if err = writeJSON(filepath.Join(staging, MetaFile), b.Metadata); err != nil {
		return "", err
	}
	if err = syncDir(staging); err != nil {
		return "", err
	}
	if err = os.Rename(staging, s.BundlePath(id)); err != nil {
		return "", scigoErrors.Wrapf(err, "publish bundle %s", id)
	}
	if err = s.point(id); err != nil {
		return "", err
	}

	s.logger.Info("Bundle saved",
		log.BundleIDKey, id,
		log.PathKey, s.BundlePath(id),
		log.ComponentsKey, b.Metadata.NComponents,
	)
	return id, nil
}

// point atomically replaces the current symlink with one naming id.
func (s *Store) point(id string) error {
	tmp := filepath.Join(s.dir, ".current-"+id)
	_ = os.Remove(tmp)
	if err := os.Symlink(filepath.Join(bundlesDir, id), tmp); err != nil {
		return scigoErrors.Wrap(err, "create current pointer")
	}
	if err := os.Rename(tmp, s.CurrentPath()); err != nil {
		_ = os.Remove(tmp)
		return scigoErrors.Wrap(err, "swap current pointer")
	}
	return syncDir(s.dir)
}

// CurrentID returns the id of the current bundle, or ErrNotFound.
func (s *Store) CurrentID() (string, error) {
	target, err := os.Readlink(s.CurrentPath())
	if err != nil {
		if os.IsNotExist(err) {
			return "", ErrNotFound
		}
		return "", scigoErrors.Wrap(err, "read current pointer")
	}
	return filepath.Base(target), nil
}

// Load returns the current bundle. A missing pointer or any missing
// artifact file yields an error matching ErrNotFound; no partial bundle is
// ever returned.
func (s *Store) Load() (*churn.Bundle, error) {
	id, err := s.CurrentID()
	if err != nil {
		return nil, err
	}
	return s.LoadID(id)
}

// LoadID loads the bundle with the given id.
func (s *Store) LoadID(id string) (*churn.Bundle, error) {
	dir := s.BundlePath(id)
	for _, f := range []string{EncoderFile, ScalerFile, ReducerFile, ModelFile, MetaFile} {
		if _, err := os.Stat(filepath.Join(dir, f)); err != nil {
			if os.IsNotExist(err) {
				return nil, scigoErrors.Wrapf(ErrNotFound, "bundle %s: %s missing", id, f)
			}
			return nil, scigoErrors.Wrapf(err, "stat %s", f)
		}
	}

	b := &churn.Bundle{
		Encoder: &churn.Encoder{},
		Scaler:  &preprocessing.StandardScaler{},
		Reducer: &preprocessing.PCA{},
		Model:   &tree.DecisionTreeClassifier{},
	}
	parts := []struct {
		file string
		v    interface{}
	}{
		{EncoderFile, b.Encoder},
		{ScalerFile, b.Scaler},
		{ReducerFile, b.Reducer},
		{ModelFile, b.Model},
	}
	for _, p := range parts {
		if err := model.LoadModel(p.v, filepath.Join(dir, p.file)); err != nil {
			if scigoErrors.Is(err, os.ErrNotExist) {
				return nil, scigoErrors.Wrapf(ErrNotFound, "bundle %s: %s missing", id, p.file)
			}
			return nil, scigoErrors.Wrapf(err, "load %s", p.file)
		}
	}
	meta, err := os.ReadFile(filepath.Join(dir, MetaFile))
	if err != nil {
		return nil, scigoErrors.Wrap(err, "read metadata")
	}
	if err := json.Unmarshal(meta, &b.Metadata); err != nil {
		return nil, scigoErrors.Wrap(err, "decode metadata")
	}
	if err := b.Validate(); err != nil {
		return nil, scigoErrors.Wrapf(err, "bundle %s", id)
	}

	s.logger.Debug("Bundle loaded", log.BundleIDKey, id)
	return b, nil
}

// List returns the ids of every published bundle, oldest first by
// creation time.
func (s *Store) List() ([]string, error) {
	entries, err := os.ReadDir(filepath.Join(s.dir, bundlesDir))
	if err != nil {
		return nil, scigoErrors.Wrap(err, "list bundles")
	}
	type item struct {
		id      string
		created time.Time
	}
	var items []item
	for _, e := range entries {
		if !e.IsDir() {
			continue
		}
		var meta churn.Metadata
		data, err := os.ReadFile(filepath.Join(s.BundlePath(e.Name()), MetaFile))
		if err == nil {
			err = json.Unmarshal(data, &meta)
		}
		if err != nil {
			s.logger.Warn("Skipping unreadable bundle", log.BundleIDKey, e.Name(), "error", err.Error())
			continue
		}
		items = append(items, item{e.Name(), meta.CreatedAt})
	}
	sort.SliceStable(items, func(i, j int) bool {
		if items[i].created.Equal(items[j].created) {
			return items[i].id < items[j].id
		}
		return items[i].created.Before(items[j].created)
	})
	ids := make([]string, len(items))
	for i, it := range items {
		ids[i] = it.id
	}
	return ids, nil
}

// Prune deletes all but the newest keep bundles. The current bundle is
// never deleted. It returns the removed ids.
func (s *Store) Prune(keep int) ([]string, error) {
	if keep < 1 {
		return nil, scigoErrors.NewValidationError("keep", "must be at least 1", keep)
	}
	ids, err := s.List()
	if err != nil {
		return nil, err
	}
	current, err := s.CurrentID()
	if err != nil && !scigoErrors.Is(err, ErrNotFound) {
		return nil, err
	}

	var removed []string
	for i, id := range ids {
		if len(ids)-i <= keep || id == current {
			continue
		}
		if err := os.RemoveAll(s.BundlePath(id)); err != nil {
			return removed, scigoErrors.Wrapf(err, "remove bundle %s", id)
		}
		removed = append(removed, id)
	}
	if len(removed) > 0 {
		s.logger.Info("Pruned bundles", "removed", removed, log.BundleIDKey, current)
	}
	return removed, nil
}

func writeJSON(path string, v interface{}) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return scigoErrors.Wrap(err, "encode metadata")
	}
	f, err := os.Create(path)
	if err != nil {
		return scigoErrors.Wrap(err, "create metadata")
	}
	if _, err := f.Write(data); err != nil {
		_ = f.Close()
		return scigoErrors.Wrap(err, "write metadata")
	}
	if err := f.Sync(); err != nil {
		_ = f.Close()
		return scigoErrors.Wrap(err, "sync metadata")
	}
	return f.Close()
}

func syncDir(dir string) error {
	d, err := os.Open(dir)
	if err != nil {
		return scigoErrors.Wrapf(err, "open %s", dir)
	}
	defer d.Close()
	if err := d.Sync(); err != nil {
		return scigoErrors.Wrapf(err, "sync %s", dir)
	}
	return nil
}
