// Package llm defines the provider-neutral chat types and the Provider
// interface injected into the agent orchestrator. Model selection and
// inference transport live behind Provider implementations; everything in
// this package is plain data.
package llm
