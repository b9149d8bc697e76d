// Package score provides student score storage and GPA calculation for the
// KMA assistant. Scores are kept in a relational store keyed by student code
// and subject, with semesters identified as ki1-2024-2025 style labels.
package score
