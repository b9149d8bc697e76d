// Package rag implements retrieval over the KMA regulation corpus:
// chunking, a BM25 lexical index, a cosine vector index, and the hybrid
// retriever that fuses both with optional reranking.
package rag
