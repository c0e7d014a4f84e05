package api

import (
	"net/http"
	"net/netip"
	"strconv"

	"github.com/go-playground/validator/v10"
	"github.com/gorilla/mux"

	"github.com/soaringjerry/surveyhub/internal/middleware"
	"github.com/soaringjerry/surveyhub/internal/platform/logger"
	"github.com/soaringjerry/surveyhub/internal/services"
)

type Deps struct {
	Auth        *services.AuthService
	Catalog     *services.CatalogService
	Submissions *services.SubmissionService
	Assignments *services.AssignmentService
	Reports     *services.ReportService
	Authn       *middleware.Authenticator
	Log         *logger.Logger

	MaxUploadBytes int64
	CORSOrigins    []string
	// TrustedProxies are the peers whose X-Forwarded-For / X-Real-IP
	// headers are believed.
	TrustedProxies []netip.Prefix
	// Metrics, when set, is mounted at /metrics and wraps every route.
	Metrics interface {
		Handler() http.Handler
		Middleware(http.Handler) http.Handler
	}
	// Uploads, when set, serves stored files under UploadPrefix.
	Uploads      http.Handler
	UploadPrefix string
}

type Router struct {
	Deps
	validate *validator.Validate
}

func NewRouter(d Deps) *Router {
	if d.Log == nil {
		d.Log = logger.Nop()
	}
	if d.MaxUploadBytes <= 0 {
		d.MaxUploadBytes = services.DefaultMaxUploadBytes
	}
	return &Router{Deps: d, validate: validator.New()}
}

// Handler builds the full middleware chain around the route table.
func (rt *Router) Handler() http.Handler {
	r := mux.NewRouter()
	if rt.Metrics != nil {
		r.Use(rt.Metrics.Middleware)
		r.Handle("/metrics", rt.Metrics.Handler()).Methods(http.MethodGet)
	}
	r.Use(middleware.RealIP(rt.TrustedProxies), middleware.RequestLogger(rt.Log), middleware.SecureHeaders, middleware.LocaleMiddleware, rt.Authn.WithAuth)
	r.HandleFunc("/health", rt.handleHealth).Methods(http.MethodGet)
	if rt.Uploads != nil && rt.UploadPrefix != "" {
		r.PathPrefix(rt.UploadPrefix + "/").Handler(middleware.RequireAuth(rt.Uploads)).Methods(http.MethodGet)
	}
	rt.Register(r.PathPrefix("/api").Subrouter())
	return middleware.CORS(rt.CORSOrigins)(r)
}

func (rt *Router) Register(api *mux.Router) {
	api.Use(middleware.NoStore)

	api.HandleFunc("/auth/register", rt.handleRegister).Methods(http.MethodPost)
	api.HandleFunc("/auth/login", rt.handleLogin).Methods(http.MethodPost)

	authed := api.NewRoute().Subrouter()
	authed.Use(middleware.RequireAuth)
	admin := func(h http.HandlerFunc) http.Handler { return middleware.RequireAdmin(h) }
	authed.HandleFunc("/me", rt.handleMe).Methods(http.MethodGet)
	authed.HandleFunc("/departments", rt.handleListDepartments).Methods(http.MethodGet)
	authed.Handle("/departments", admin(rt.handleCreateDepartment)).Methods(http.MethodPost)
	authed.Handle("/users", admin(rt.handleCreateUser)).Methods(http.MethodPost)
	authed.HandleFunc("/my/surveys", rt.handleMySurveys).Methods(http.MethodGet)

	authed.HandleFunc("/surveys", rt.handleListSurveys).Methods(http.MethodGet)
	authed.Handle("/surveys", admin(rt.handleCreateSurvey)).Methods(http.MethodPost)
	authed.HandleFunc("/surveys/{id:[0-9]+}", rt.handleSurveyDetail).Methods(http.MethodGet)
	authed.HandleFunc("/surveys/{id:[0-9]+}/status", rt.handleSetSurveyStatus).Methods(http.MethodPut)
	authed.HandleFunc("/surveys/{id:[0-9]+}/questions", rt.handleAddQuestion).Methods(http.MethodPost)
	authed.HandleFunc("/surveys/{id:[0-9]+}/questions.csv", rt.handleExportQuestions).Methods(http.MethodGet)
	authed.HandleFunc("/surveys/{id:[0-9]+}/questions/import", rt.handleImportQuestions).Methods(http.MethodPost)
	authed.HandleFunc("/questions/{id:[0-9]+}/options", rt.handleAddOption).Methods(http.MethodPost)
	authed.Handle("/questions/{id:[0-9]+}", admin(rt.handleUpdateQuestion)).Methods(http.MethodPut)
	authed.Handle("/questions/{id:[0-9]+}", admin(rt.handleDeleteQuestion)).Methods(http.MethodDelete)
	authed.Handle("/options/{id:[0-9]+}", admin(rt.handleUpdateOption)).Methods(http.MethodPut)
	authed.Handle("/options/{id:[0-9]+}", admin(rt.handleDeleteOption)).Methods(http.MethodDelete)

	authed.HandleFunc("/categories", rt.handleListCategories).Methods(http.MethodGet)
	authed.Handle("/categories", admin(rt.handleCreateCategory)).Methods(http.MethodPost)
	authed.HandleFunc("/categories/parents", rt.handleParentCategories).Methods(http.MethodGet)
	authed.HandleFunc("/categories/all", rt.handleAllCategories).Methods(http.MethodGet)
	authed.Handle("/categories/{id:[0-9]+}", admin(rt.handleUpdateCategory)).Methods(http.MethodPut)
	authed.Handle("/categories/{id:[0-9]+}", admin(rt.handleDeleteCategory)).Methods(http.MethodDelete)
	authed.HandleFunc("/categories/{id:[0-9]+}/surveys", rt.handleCategorySurveys).Methods(http.MethodGet)
	authed.Handle("/surveys/{id:[0-9]+}/category", admin(rt.handleSetSurveyCategory)).Methods(http.MethodPut)

	authed.HandleFunc("/surveys/{id:[0-9]+}/response", rt.handleOpen).Methods(http.MethodGet)
	authed.HandleFunc("/surveys/{id:[0-9]+}/response", rt.handleSubmit).Methods(http.MethodPost)
	authed.HandleFunc("/surveys/{id:[0-9]+}/details", rt.handleDetails).Methods(http.MethodGet)

	authed.Handle("/surveys/{id:[0-9]+}/assign", admin(rt.handleAssign)).Methods(http.MethodPost)
	authed.Handle("/surveys/{id:[0-9]+}/unfinished", admin(rt.handleUnfinished)).Methods(http.MethodGet)
	authed.Handle("/surveys/{id:[0-9]+}/unfinished.xlsx", admin(rt.handleUnfinishedXLSX)).Methods(http.MethodGet)
	authed.HandleFunc("/surveys/{id:[0-9]+}/users/{uid:[0-9]+}/status", rt.handleUserStatus).Methods(http.MethodGet)
	authed.HandleFunc("/surveys/{id:[0-9]+}/users/{uid:[0-9]+}/status", rt.handleUpdateUserStatus).Methods(http.MethodPut)
	authed.Handle("/surveys/{id:[0-9]+}/users/{uid:[0-9]+}/remake", admin(rt.handleRemake)).Methods(http.MethodPost)

	authed.HandleFunc("/surveys/{id:[0-9]+}/statistics", rt.handleStatistics).Methods(http.MethodGet)
	authed.HandleFunc("/surveys/{id:[0-9]+}/export", rt.handleExport).Methods(http.MethodGet)
}

func (rt *Router) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{"status": "ok"})
}

// actor resolves the authenticated caller. Routes under RequireAuth always
// carry claims.
func actor(r *http.Request) services.Actor {
	a := services.Actor{IP: middleware.ClientIP(r)}
	if c, ok := middleware.ClaimsFromContext(r.Context()); ok {
		a.UserID = c.UID
		a.Role = c.Role
	}
	return a
}

func pathID(r *http.Request, name string) int64 {
	id, _ := strconv.ParseInt(mux.Vars(r)[name], 10, 64)
	return id
}

// queryInt parses an optional integer query parameter.
func queryInt(r *http.Request, name string) (int64, error) {
	v := r.URL.Query().Get(name)
	if v == "" {
		return 0, nil
	}
	n, err := strconv.ParseInt(v, 10, 64)
	if err != nil || n < 0 {
		return 0, badRequest("invalid " + name)
	}
	return n, nil
}

func queryPage(r *http.Request) (services.Page, error) {
	num, err := queryInt(r, "page")
	if err != nil {
		return services.Page{}, err
	}
	size, err := queryInt(r, "size")
	if err != nil {
		return services.Page{}, err
	}
	return services.Page{Number: int(num), Size: int(size)}, nil
}
