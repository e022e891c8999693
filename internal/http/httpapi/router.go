package httpapi

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"

	"pictoria-server/internal/http/handlers"
	mw "pictoria-server/internal/middleware"
)

// NewRouter assembles the HTTP surface. Webhooks stay outside the session
// middleware: they authenticate with their own signatures.
func NewRouter(app *handlers.App, country mw.CountryLookup) http.Handler {
	r := chi.NewRouter()

	r.Use(
		chimw.RealIP,
		chimw.Recoverer,
		mw.RequestID,
		mw.Logger(app.Logger),
		mw.CORS(app.Config.AllowedOrigins),
		mw.I18N("en", country),
	)

	r.Get("/v1/healthz", app.Health)

	r.Route("/v1/auth", func(r chi.Router) {
		r.Use(mw.RateLimit(app.Config.RateLimitPerMin, time.Minute))
		r.Post("/signup", app.SignUp)
		r.Post("/login", app.SignIn)
		r.Post("/reset-password", app.ResetPassword)
	})

	r.Post("/api/webhooks/training", app.TrainingWebhook)
	r.Post("/api/webhooks/billing", app.BillingWebhook)

	r.Group(func(r chi.Router) {
		r.Use(mw.SessionAuth(app.Config.SupabaseJWTSecret))

		r.Post("/v1/auth/logout", app.SignOut)
		r.Get("/v1/me", app.Me)
		r.Get("/v1/credits", app.Credits)

		r.Post("/v1/uploads/signed-url", app.SignedUploadURL)
		r.Post("/v1/train", app.TrainModel)

		r.Route("/v1/models", func(r chi.Router) {
			r.Get("/", app.ListModels)
			r.Delete("/{id}", app.DeleteModel)
		})

		r.Route("/v1/images", func(r chi.Router) {
			r.Get("/", app.ListImages)
			r.Post("/generate", app.GenerateImages)
			r.Post("/", app.StoreImages)
			r.Delete("/{id}", app.DeleteImage)
		})

		r.Route("/v1/billing", func(r chi.Router) {
			r.Get("/products", app.Products)
			r.Get("/subscription", app.Subscription)
			r.Post("/checkout", app.Checkout)
			r.Post("/portal", app.Portal)
		})
	})

	return r
}
