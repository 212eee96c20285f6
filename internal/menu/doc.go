// Package menu defines the types shared by the fetch, parse, and ingestion
// subsystems, plus the collaborator interfaces the orchestrator depends on.
package menu
