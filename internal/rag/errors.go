package rag

import "errors"

var (
	// ErrEmptyDocument means extraction produced no usable text.
	ErrEmptyDocument = errors.New("document contains no extractable text")

	// ErrNoChunksProduced means chunking yielded nothing to embed.
	ErrNoChunksProduced = errors.New("no chunks produced from document text")
)
