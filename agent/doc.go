// Package agent implements the conversation orchestrator for the KMA student
// assistant: a bounded decide/dispatch/grade/rewrite loop over an LLM with
// tools, query reformulation against chat history, document relevance grading
// and human-in-the-loop suspension when a student code is required but absent.
package agent
