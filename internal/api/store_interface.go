package api

import "github.com/soaringjerry/surveyhub/internal/services"

// Store is the full persistence surface the HTTP layer wires into services.
type Store interface {
	services.SubmissionStore
	services.CatalogStore
	services.AuthStore
	services.AssignmentStore
	services.ReportStore
}
