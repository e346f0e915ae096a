package util

import "sync"

// ChunkSize is the size of a single raw read from a telnet stream.
const ChunkSize = 4096

// ChunkPool hands out reusable ChunkSize scratch buffers for the raw
// read path, which runs once per chunk for every open session.
var ChunkPool = sync.Pool{
	New: func() interface{} {
		buf := make([]byte, ChunkSize)
		return &buf
	},
}

// GetChunk retrieves a buffer from the pool.  Callers must return it
// with [PutChunk] when finished.
func GetChunk() *[]byte {
	return ChunkPool.Get().(*[]byte)
}

// PutChunk returns a buffer to the pool for reuse.
func PutChunk(buf *[]byte) {
	if buf == nil || cap(*buf) < ChunkSize {
		return
	}
	*buf = (*buf)[:ChunkSize]
	ChunkPool.Put(buf)
}
