package credstore

import "context"

// Pair is one key/value entry of a batch write.
type Pair struct {
	Key   string
	Value string
}

// KV is the asynchronous key/value storage the credential store runs on.
//
// MultiSet must apply the whole batch or nothing. MultiGet returns only keys that
// exist. MultiRemove of absent keys is not an error.
type KV interface {
	Get(ctx context.Context, key string) (string, bool, error)
	MultiSet(ctx context.Context, pairs []Pair) error
	MultiGet(ctx context.Context, keys []string) (map[string]string, error)
	MultiRemove(ctx context.Context, keys []string) error
}
