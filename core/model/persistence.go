package model

import (
	"encoding/gob"
	"io"
	"os"
	"path/filepath"

	scigoErrors "github.com/ezoic/churn/pkg/errors"
)

// SaveModel gob-encodes model into filename. The file is written to a
// temporary sibling, synced and renamed, so readers never observe a
// partially written model.
//
//	err := model.SaveModel(clf, "model.gob")
func SaveModel(model interface{}, filename string) (err error) {
	dir := filepath.Dir(filename)
	tmp, err := os.CreateTemp(dir, "."+filepath.Base(filename)+".tmp-*")
	if err != nil {
		return scigoErrors.Wrapf(err, "failed to create file in %s", dir)
	}
	defer func() {
		if err != nil {
			_ = tmp.Close()
			_ = os.Remove(tmp.Name())
		}
	}()

	if err = SaveModelToWriter(model, tmp); err != nil {
		return err
	}
	if err = tmp.Sync(); err != nil {
		return scigoErrors.Wrap(err, "failed to sync model file")
	}
	if err = tmp.Close(); err != nil {
		return scigoErrors.Wrap(err, "failed to close model file")
	}
	if err = os.Rename(tmp.Name(), filename); err != nil {
		return scigoErrors.Wrapf(err, "failed to move model into %s", filename)
	}
	return nil
}

// LoadModel decodes a model previously written by SaveModel into model,
// which must be a pointer. A missing file is reported with an error
// satisfying errors.Is(err, os.ErrNotExist).
func LoadModel(model interface{}, filename string) error {
	file, err := os.Open(filename)
	if err != nil {
		return scigoErrors.Wrap(err, "failed to open file")
	}
	defer file.Close()

	return LoadModelFromReader(model, file)
}

// SaveModelToWriter gob-encodes model into w.
func SaveModelToWriter(model interface{}, w io.Writer) error {
	if err := gob.NewEncoder(w).Encode(model); err != nil {
		return scigoErrors.Wrap(err, "failed to encode model")
	}
	return nil
}

// LoadModelFromReader gob-decodes a model from r.
func LoadModelFromReader(model interface{}, r io.Reader) error {
	if err := gob.NewDecoder(r).Decode(model); err != nil {
		return scigoErrors.Wrap(err, "failed to decode model")
	}
	return nil
}
