// Package tools implements the tool registry and executor plus the concrete
// tools exposed to the agent: regulation retrieval, student score lookup,
// student info lookup and GPA calculation.
package tools
