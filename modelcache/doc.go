// Package modelcache resolves model/IR artifact references to local
// filesystem paths, fetching from the model artifact registry on cache
// miss and caching the result on local disk keyed by owner and model
// reference.
//
// A Cache never returns a partially-written file: downloads land in a
// temp file beside the final path and are renamed into place only once
// complete, so concurrent Resolve calls racing on the same key either
// observe no file (and both attempt a download, the loser's rename
// simply overwriting an identical file) or a complete one.
package modelcache
