package transform

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"
)

// maxExpirationSecs is 9999-12-31T23:59:59Z; larger expirations are clamped.
const maxExpirationSecs = 253402300799

func parseUint(s string) (uint64, error) {
	if s == "" {
		return 0, fmt.Errorf("missing value")
	}
	return strconv.ParseUint(s, 10, 64)
}

// parseMicros parses a microsecond unix timestamp string.
func parseMicros(s string) (time.Time, error) {
	us, err := parseUint(s)
	if err != nil {
		return time.Time{}, err
	}
	return time.UnixMicro(int64(us)).UTC(), nil
}

func expirationTime(secs uint64) time.Time {
	if secs > maxExpirationSecs {
		secs = maxExpirationSecs
	}
	return time.Unix(int64(secs), 0).UTC()
}

// HexToBytes decodes a 0x-prefixed hex string.
func HexToBytes(s string) ([]byte, error) {
	return hex.DecodeString(strings.TrimPrefix(s, "0x"))
}

// HashKey returns the hex sha256 of a table key, used as the current table item key hash.
func HashKey(key string) string {
	sum := sha256.Sum256([]byte(key))
	return hex.EncodeToString(sum[:])
}

func jsonOrNull(raw json.RawMessage) json.RawMessage {
	if len(raw) == 0 {
		return json.RawMessage("null")
	}
	return raw
}

func jsonOrEmptyArray(raw json.RawMessage) json.RawMessage {
	if len(raw) == 0 || string(raw) == "null" {
		return json.RawMessage("[]")
	}
	return raw
}

func mustJSON(v any) json.RawMessage {
	b, err := json.Marshal(v)
	if err != nil {
		// Only called with strings and slices of ints/strings.
		panic(err)
	}
	return b
}
