package gateway

import (
	"encoding/json"
	"fmt"

	"github.com/spaolacci/murmur3"
)

// Options describes one outbound request. Body is JSON-marshaled when
// non-nil; the zero Method means GET.
type Options struct {
	Method  string            `json:"method,omitempty"`
	Headers map[string]string `json:"headers,omitempty"`
	Body    any               `json:"body,omitempty"`
}

// Fingerprint hashes the absolute URL plus the serialized options into the
// cache/queue key. The same (url, options) pair always yields the same key,
// no matter when it is issued. The canonical options encoding is returned
// for durable queueing.
func Fingerprint(url string, opts Options) (uint32, []byte, error) {
	encoded, err := json.Marshal(opts)
	if err != nil {
		return 0, nil, fmt.Errorf("serialize request options: %w", err)
	}
	h := murmur3.New32()
	h.Write([]byte(url))
	h.Write(encoded)
	return h.Sum32(), encoded, nil
}
