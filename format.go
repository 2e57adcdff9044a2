package docdb

import (
	"bytes"
	"encoding/json"

	"github.com/vmihailenco/msgpack/v5"
	"gopkg.in/yaml.v3"
)

// Format turns collection contents into bytes and back. Each collection
// names its Format explicitly when it is registered.
type Format interface {
	Name() string
	Marshal(v any) ([]byte, error)
	Unmarshal(data []byte, v any) error
}

var (
	// MsgPack encodes with sorted map keys, so equal values always produce
	// equal bytes and unchanged documents are never rewritten.
	MsgPack Format = msgpackFormat{}
	JSON    Format = jsonFormat{}
	YAML    Format = yamlFormat{}
)

type msgpackFormat struct{}

func (msgpackFormat) Name() string { return "msgpack" }

func (msgpackFormat) Marshal(v any) ([]byte, error) {
	var buf bytes.Buffer
	enc := msgpack.GetEncoder()
	enc.Reset(&buf)
	enc.SetSortMapKeys(true)
	err := enc.Encode(v)
	msgpack.PutEncoder(enc)
	if err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func (msgpackFormat) Unmarshal(data []byte, v any) error {
	var r bytes.Reader
	r.Reset(data)
	dec := msgpack.GetDecoder()
	dec.Reset(&r)
	err := dec.Decode(v)
	msgpack.PutDecoder(dec)
	return err
}

type jsonFormat struct{}

func (jsonFormat) Name() string                       { return "json" }
func (jsonFormat) Marshal(v any) ([]byte, error)      { return json.Marshal(v) }
func (jsonFormat) Unmarshal(data []byte, v any) error { return json.Unmarshal(data, v) }

type yamlFormat struct{}

func (yamlFormat) Name() string                       { return "yaml" }
func (yamlFormat) Marshal(v any) ([]byte, error)      { return yaml.Marshal(v) }
func (yamlFormat) Unmarshal(data []byte, v any) error { return yaml.Unmarshal(data, v) }

func serialize[T any](format Format, v *T) ([]byte, error) {
	data, err := format.Marshal(v)
	if err != nil {
		return nil, serializationErrf(format, "encode", v, err)
	}
	return data, nil
}

func deserialize[T any](format Format, data []byte) (T, error) {
	var v T
	err := format.Unmarshal(data, &v)
	if err != nil {
		return v, serializationErrf(format, "decode", &v, err)
	}
	return v, nil
}

func decodeDocument[T any](format Format, doc *Document) (*CollectionDocument[T], error) {
	contents, err := deserialize[T](format, doc.Contents)
	if err != nil {
		return nil, err
	}
	return &CollectionDocument[T]{Header: doc.Header(), Contents: contents}, nil
}
