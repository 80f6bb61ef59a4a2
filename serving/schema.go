package serving

import (
	"bytes"
	"embed"
	"encoding/json"

	"github.com/santhosh-tekuri/jsonschema/v6"

	scigoErrors "github.com/ezoic/churn/pkg/errors"
)

//go:embed schemas/*.json
var schemaFS embed.FS

// bodySchemas validates request bodies before they are decoded.
type bodySchemas struct {
	predict *jsonschema.Schema
	retrain *jsonschema.Schema
}

func compileSchemas() (*bodySchemas, error) {
	c := jsonschema.NewCompiler()
	compile := func(name string) (*jsonschema.Schema, error) {
		raw, err := schemaFS.ReadFile("schemas/" + name)
		if err != nil {
			return nil, scigoErrors.Wrapf(err, "read schema %s", name)
		}
		doc, err := jsonschema.UnmarshalJSON(bytes.NewReader(raw))
		if err != nil {
			return nil, scigoErrors.Wrapf(err, "parse schema %s", name)
		}
		url := "schema://churn/" + name
		if err := c.AddResource(url, doc); err != nil {
			return nil, scigoErrors.Wrapf(err, "add schema %s", name)
		}
		s, err := c.Compile(url)
		if err != nil {
			return nil, scigoErrors.Wrapf(err, "compile schema %s", name)
		}
		return s, nil
	}

	predict, err := compile("predict.json")
	if err != nil {
		return nil, err
	}
	retrain, err := compile("retrain.json")
	if err != nil {
		return nil, err
	}
	return &bodySchemas{predict: predict, retrain: retrain}, nil
}

// decode validates body against s and then decodes it into v.
func decode(s *jsonschema.Schema, body []byte, v any) error {
	inst, err := jsonschema.UnmarshalJSON(bytes.NewReader(body))
	if err != nil {
		return scigoErrors.NewValueError("decode", "invalid JSON: "+err.Error())
	}
	if err := s.Validate(inst); err != nil {
		return scigoErrors.NewValueError("validate", err.Error())
	}
	if err := json.Unmarshal(body, v); err != nil {
		return scigoErrors.NewValueError("decode", err.Error())
	}
	return nil
}
