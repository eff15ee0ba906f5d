package main

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/rs/zerolog/log"
	"github.com/shopspring/decimal"

	"github.com/HMB-research/fql"
	"github.com/HMB-research/fql/internal/apierror"
	"github.com/HMB-research/fql/internal/auth"
	"github.com/HMB-research/fql/internal/eval"
	fqlparser "github.com/HMB-research/fql/internal/fql"
	"github.com/HMB-research/fql/internal/ledger"
	"github.com/HMB-research/fql/internal/value"
)

// Handlers contains all HTTP handlers
type Handlers struct {
	db           *fql.DB
	keyStore     *auth.KeyStore
	tokenService *auth.TokenService
}

// JSON helper functions
func respondJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if data != nil {
		_ = json.NewEncoder(w).Encode(data)
	}
}

type errorResponse struct {
	Error string `json:"error"`
	Code  string `json:"code,omitempty"`
	Line  int    `json:"line,omitempty"`
	Col   int    `json:"col,omitempty"`
}

func respondError(w http.ResponseWriter, status int, resp errorResponse) {
	// Sanitize error messages for 5xx errors to prevent information leakage
	if status >= 500 {
		resp.Error = apierror.Sanitize(resp.Error)
	}
	respondJSON(w, status, resp)
}

// errorCode maps the core error taxonomy onto stable API codes and HTTP
// statuses.
func errorCode(err error) (string, int) {
	var parseErr *fqlparser.ParseError
	var accountErr *ledger.AccountNotFoundError
	var rateErr *ledger.RateNotFoundError
	var unbalancedErr *ledger.UnbalancedJournalError
	var identErr *eval.UnknownIdentifierError
	var funcErr *eval.UnknownFunctionError
	var argErr *eval.InvalidArgumentError
	var argCountErr *eval.InvalidArgumentCountError

	switch {
	case errors.As(err, &parseErr):
		return "PARSE_ERROR", http.StatusBadRequest
	case errors.As(err, &accountErr):
		return "ACCOUNT_NOT_FOUND", http.StatusUnprocessableEntity
	case errors.As(err, &rateErr):
		return "RATE_NOT_FOUND", http.StatusUnprocessableEntity
	case errors.As(err, &unbalancedErr):
		return "UNBALANCED_JOURNAL", http.StatusUnprocessableEntity
	case errors.As(err, &identErr):
		return "UNKNOWN_IDENTIFIER", http.StatusUnprocessableEntity
	case errors.As(err, &funcErr):
		return "UNKNOWN_FUNCTION", http.StatusUnprocessableEntity
	case errors.As(err, &argErr):
		return "INVALID_ARGUMENT", http.StatusUnprocessableEntity
	case errors.As(err, &argCountErr):
		return "INVALID_ARGUMENT_COUNT", http.StatusUnprocessableEntity
	case errors.Is(err, eval.ErrDivideByZero):
		return "DIVIDE_BY_ZERO", http.StatusUnprocessableEntity
	case errors.Is(err, eval.ErrInvalidType):
		return "INVALID_TYPE", http.StatusUnprocessableEntity
	case errors.Is(err, ledger.ErrNoRateFound):
		return "NO_RATE_FOUND", http.StatusUnprocessableEntity
	case errors.Is(err, ledger.ErrNoActiveTransaction):
		return "NO_ACTIVE_TRANSACTION", http.StatusUnprocessableEntity
	}
	return "INTERNAL", http.StatusInternalServerError
}

// tokenRequest is the body of POST /api/v1/auth/token; the API key may also
// arrive in the X-API-Key header.
type tokenRequest struct {
	APIKey string `json:"api_key"`
}

type tokenResponse struct {
	AccessToken string `json:"access_token"`
	Role        string `json:"role"`
}

// IssueToken exchanges a valid API key for a short-lived JWT.
func (h *Handlers) IssueToken(w http.ResponseWriter, r *http.Request) {
	if !h.keyStore.Enabled() {
		respondError(w, http.StatusNotFound, errorResponse{Error: "authentication is disabled"})
		return
	}

	key := r.Header.Get("X-API-Key")
	if key == "" {
		var req tokenRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err == nil {
			key = req.APIKey
		}
	}
	if key == "" {
		respondError(w, http.StatusUnauthorized, errorResponse{Error: "missing API key"})
		return
	}

	entry, ok := h.keyStore.Lookup(key)
	if !ok {
		respondError(w, http.StatusUnauthorized, errorResponse{Error: "invalid API key"})
		return
	}

	token, err := h.tokenService.GenerateAccessToken(entry.Name, entry.Role)
	if err != nil {
		log.Error().Err(err).Msg("generate access token")
		respondError(w, http.StatusInternalServerError, errorResponse{Error: err.Error()})
		return
	}
	log.Info().Str("caller", entry.Name).Str("role", entry.Role).Msg("issued access token")
	respondJSON(w, http.StatusOK, tokenResponse{AccessToken: token, Role: entry.Role})
}

// queryRequest is the body of POST /api/v1/query. Params become $parameter
// bindings; strings, booleans and numbers are accepted.
type queryRequest struct {
	Script string                     `json:"script"`
	Params map[string]json.RawMessage `json:"params,omitempty"`
}

type statementResult struct {
	Variables       map[string]json.RawMessage `json:"variables"`
	JournalsCreated int                        `json:"journals_created"`
}

type queryResponse struct {
	Results []statementResult `json:"results"`
}

// ExecuteQuery runs an FQL script and returns the ordered statement results.
func (h *Handlers) ExecuteQuery(w http.ResponseWriter, r *http.Request) {
	var req queryRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, errorResponse{Error: "invalid request body"})
		return
	}
	if req.Script == "" {
		respondError(w, http.StatusBadRequest, errorResponse{Error: "script is required"})
		return
	}

	if identity, ok := auth.GetIdentity(r.Context()); ok && !auth.CanWrite(identity.Role) {
		readOnly, err := fql.IsReadOnly(req.Script)
		if err != nil {
			h.respondQueryError(w, err)
			return
		}
		if !readOnly {
			respondError(w, http.StatusForbidden, errorResponse{Error: "role may not modify the ledger"})
			return
		}
	}

	params, err := decodeParams(req.Params)
	if err != nil {
		respondError(w, http.StatusBadRequest, errorResponse{Error: err.Error()})
		return
	}

	results, err := h.db.ExecuteWithParams(req.Script, params)
	if err != nil {
		h.respondQueryError(w, err)
		return
	}

	resp := queryResponse{Results: make([]statementResult, len(results))}
	for i, result := range results {
		variables := make(map[string]json.RawMessage, len(result.Variables))
		for name, v := range result.Variables {
			raw, err := value.MarshalJSON(v)
			if err != nil {
				log.Error().Err(err).Str("variable", name).Msg("encode result value")
				respondError(w, http.StatusInternalServerError, errorResponse{Error: err.Error()})
				return
			}
			variables[name] = raw
		}
		resp.Results[i] = statementResult{
			Variables:       variables,
			JournalsCreated: result.JournalsCreated,
		}
	}
	respondJSON(w, http.StatusOK, resp)
}

func (h *Handlers) respondQueryError(w http.ResponseWriter, err error) {
	code, status := errorCode(err)
	resp := errorResponse{Error: err.Error(), Code: code}
	var parseErr *fqlparser.ParseError
	if errors.As(err, &parseErr) {
		resp.Line = parseErr.Line
		resp.Col = parseErr.Col
	}
	if status >= 500 {
		log.Error().Err(err).Msg("query failed")
	}
	respondError(w, status, resp)
}

// decodeParams converts plain JSON parameter values into FQL values.
func decodeParams(raw map[string]json.RawMessage) (map[string]fql.Value, error) {
	if len(raw) == 0 {
		return nil, nil
	}
	params := make(map[string]fql.Value, len(raw))
	for name, data := range raw {
		text := string(data)
		switch {
		case text == "null":
			params[name] = value.Null{}
		case text == "true":
			params[name] = value.Bool(true)
		case text == "false":
			params[name] = value.Bool(false)
		case len(text) > 0 && text[0] == '"':
			var s string
			if err := json.Unmarshal(data, &s); err != nil {
				return nil, errors.New("invalid parameter " + name)
			}
			if d, err := value.ParseDate(s); err == nil {
				params[name] = d
			} else {
				params[name] = value.String(s)
			}
		default:
			if n, err := decimal.NewFromString(text); err == nil {
				if n.IsInteger() {
					params[name] = value.Int(n.IntPart())
				} else {
					params[name] = value.Money{Decimal: n}
				}
			} else {
				return nil, errors.New("unsupported parameter type for " + name)
			}
		}
	}
	return params, nil
}
