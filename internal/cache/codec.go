package cache

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/klauspost/compress/zstd"

	"horse.fit/chatsense/internal/analysis"
)

// Entry is the envelope persisted for each cached result.
type Entry struct {
	Key       string          `json:"key"`
	Result    analysis.Result `json:"result"`
	CreatedAt time.Time       `json:"created_at"`
	TTL       time.Duration   `json:"ttl"`
}

// Fresh reports whether the entry is still inside its TTL at now.
func (e Entry) Fresh(now time.Time) bool {
	return now.Before(e.CreatedAt.Add(e.TTL))
}

// codec turns entries into zstd-compressed JSON. EncodeAll and DecodeAll are
// safe for concurrent use on a shared encoder/decoder.
type codec struct {
	enc *zstd.Encoder
	dec *zstd.Decoder
}

func newCodec() (*codec, error) {
	enc, err := zstd.NewWriter(nil, zstd.WithEncoderLevel(zstd.SpeedFastest))
	if err != nil {
		return nil, fmt.Errorf("create zstd encoder: %w", err)
	}
	dec, err := zstd.NewReader(nil)
	if err != nil {
		_ = enc.Close()
		return nil, fmt.Errorf("create zstd decoder: %w", err)
	}
	return &codec{enc: enc, dec: dec}, nil
}

func (c *codec) encode(e Entry) ([]byte, error) {
	raw, err := json.Marshal(e)
	if err != nil {
		return nil, fmt.Errorf("marshal cache entry: %w", err)
	}
	return c.enc.EncodeAll(raw, make([]byte, 0, len(raw)/2)), nil
}

func (c *codec) decode(data []byte) (Entry, error) {
	raw, err := c.dec.DecodeAll(data, nil)
	if err != nil {
		return Entry{}, fmt.Errorf("decompress cache entry: %w", err)
	}
	var e Entry
	if err := json.Unmarshal(raw, &e); err != nil {
		return Entry{}, fmt.Errorf("unmarshal cache entry: %w", err)
	}
	return e, nil
}

func (c *codec) close() {
	_ = c.enc.Close()
	c.dec.Close()
}
