package http

import (
	"github.com/go-chi/chi/v5"

	"github.com/mind-engage/mindengage-qbank/internal/grading"
	"github.com/mind-engage/mindengage-qbank/internal/rbac"
	"github.com/mind-engage/mindengage-qbank/internal/storage"
)

// Mount registers the bank routes on r. Callers put authentication in
// front; permissions are checked here.
func Mount(r chi.Router, d Deps, g grading.Grader, bs storage.BlobStore) {
	r.Get("/formats", FormatsHandler())
	r.With(rbac.Require("bank:convert")).Post("/convert", ConvertHandler(d))
	r.With(rbac.RequireAny("bank:convert", "bank:grade")).Post("/render", RenderHandler(d))
	r.With(rbac.Require("bank:grade")).Post("/grade", GradeHandler(d, g))
	if bs != nil {
		r.Route("/attachments", func(r chi.Router) { MountAttachments(r, bs) })
	}
}
