package cache

import (
	"encoding/hex"
	"encoding/json"
	"fmt"
	"sort"
	"strings"

	"golang.org/x/crypto/blake2b"
)

// maxKeyLen keeps keys inside the memcached 250-byte key limit with
// headroom for namespacing.
const maxKeyLen = 200

// Key builds the deterministic fingerprint of one read:
// namespace:operation:path:hash(params). Params are canonicalized by
// sorted-key JSON so map ordering never changes the key.
func Key(namespace, operation, path string, params map[string]interface{}) string {
	digest := paramsDigest(params)
	key := fmt.Sprintf("%s:%s:%s:%s", namespace, operation, path, digest)
	if len(key) <= maxKeyLen {
		return sanitizeKey(key)
	}
	// Oversized keys (deep group paths) collapse to a hash of the
	// whole identity.
	sum := blake2b.Sum256([]byte(key))
	return fmt.Sprintf("%s:%s:%s", namespace, operation, hex.EncodeToString(sum[:]))
}

func paramsDigest(params map[string]interface{}) string {
	keys := make([]string, 0, len(params))
	for k := range params {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var b strings.Builder
	for _, k := range keys {
		v, err := json.Marshal(params[k])
		if err != nil {
			v = []byte(fmt.Sprintf("%v", params[k]))
		}
		fmt.Fprintf(&b, "%s=%s;", k, v)
	}
	sum := blake2b.Sum256([]byte(b.String()))
	return hex.EncodeToString(sum[:16])
}

// sanitizeKey strips bytes memcached keys cannot carry.
func sanitizeKey(key string) string {
	return strings.Map(func(r rune) rune {
		if r <= ' ' || r == 0x7f {
			return '_'
		}
		return r
	}, key)
}
