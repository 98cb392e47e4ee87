package passes

import (
	"encoding/json"
	"errors"
	"fmt"
	"html"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/stampably/walletpass/internal/walleterr"
	"github.com/stampably/walletpass/passes/models"
)

const pkpassContentType = "application/vnd.apple.pkpass"

// API is the HTTP surface of the pass service.
type API struct {
	service *Service
}

func NewAPI(service *Service) *API {
	return &API{service: service}
}

func (a *API) AppendRoutes(r chi.Router) {
	r.Route("/passes/{cardID}", func(r chi.Router) {
		r.Get("/apple", a.applePass)
		r.Get("/google", a.googleSaveLink)
	})
}

func (a *API) applePass(w http.ResponseWriter, r *http.Request) {
	cardID := chi.URLParam(r, "cardID")

	bundle, filename, err := a.service.ApplePass(r.Context(), cardID)
	if err != nil {
		a.writeAppleError(w, err)
		return
	}

	w.Header().Set("Content-Type", pkpassContentType)
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%s", filename))
	if err := bundle.WriteZip(w); err != nil {
		// Headers are gone; nothing left to do but log via the server.
		return
	}
}

func (a *API) writeAppleError(w http.ResponseWriter, err error) {
	var cerr *walleterr.ConfigurationError
	if errors.As(err, &cerr) {
		// A deployment problem, not a request problem: serve guidance an
		// operator can act on instead of an opaque status code.
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		w.WriteHeader(http.StatusOK)
		fmt.Fprint(w, setupInstructionsHTML(cerr.Missing))
		return
	}

	var verr *walleterr.ValidationError
	if errors.As(err, &verr) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusBadRequest)
		json.NewEncoder(w).Encode(map[string]any{"invalid_fields": verr.Fields})
		return
	}

	var serr *walleterr.SigningError
	if errors.As(err, &serr) {
		http.Error(w, serr.Error(), http.StatusBadGateway)
		return
	}

	if errors.Is(err, ErrNotFound) {
		http.Error(w, err.Error(), http.StatusNotFound)
		return
	}

	http.Error(w, err.Error(), http.StatusInternalServerError)
}

func (a *API) googleSaveLink(w http.ResponseWriter, r *http.Request) {
	cardID := chi.URLParam(r, "cardID")
	cardType := models.CardType(r.URL.Query().Get("type"))
	debug := r.URL.Query().Get("debug") != ""

	link, err := a.service.GoogleSaveLink(r.Context(), cardID, cardType)
	if err != nil {
		a.writeGoogleError(w, err)
		return
	}

	if !debug {
		link.Token = ""
	}
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(link)
}

func (a *API) writeGoogleError(w http.ResponseWriter, err error) {
	var cerr *walleterr.ConfigurationError
	if errors.As(err, &cerr) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusServiceUnavailable)
		json.NewEncoder(w).Encode(map[string]any{"missing_configuration": cerr.Missing})
		return
	}

	var verr *walleterr.ValidationError
	if errors.As(err, &verr) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusBadRequest)
		json.NewEncoder(w).Encode(map[string]any{"invalid_fields": verr.Fields})
		return
	}

	var slerr *walleterr.SizeLimitError
	if errors.As(err, &slerr) {
		http.Error(w, slerr.Error(), http.StatusRequestEntityTooLarge)
		return
	}

	var nerr *walleterr.NetworkError
	if errors.As(err, &nerr) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusBadGateway)
		json.NewEncoder(w).Encode(map[string]any{
			"error":           "wallet api error",
			"upstream_status": nerr.StatusCode,
		})
		return
	}

	if errors.Is(err, ErrNotFound) {
		http.Error(w, err.Error(), http.StatusNotFound)
		return
	}

	http.Error(w, err.Error(), http.StatusInternalServerError)
}

func setupInstructionsHTML(missing []string) string {
	var items strings.Builder
	for _, m := range missing {
		items.WriteString("<li><code>")
		items.WriteString(html.EscapeString(m))
		items.WriteString("</code></li>")
	}
	return fmt.Sprintf(`<!DOCTYPE html>
<html>
<head><title>Wallet pass setup required</title></head>
<body>
<h1>Wallet passes are not configured yet</h1>
<p>This deployment cannot sign passes until the following configuration
values are supplied:</p>
<ul>%s</ul>
<p>Add them to the service config file (see <code>apple:</code> and
<code>google:</code> sections) or the environment, then retry. The
signing certificate, private key and authority certificate must be PEM
files readable by the service user.</p>
</body>
</html>`, items.String())
}
