package storage

import (
	"bytes"
	"encoding/gob"

	"github.com/guildex/guildex/pkg/app/core/orderbook"
)

func encodeGob(v any) ([]byte, error) {
	var buf bytes.Buffer
	if err := gob.NewEncoder(&buf).Encode(v); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func decodeGob(b []byte, v any) error {
	return gob.NewDecoder(bytes.NewReader(b)).Decode(v)
}

// meta is the engine-wide part of the state.
type meta struct {
	NextOrderID orderbook.OrderID
	Halted      bool
}
