// Package resthandlers exposes queryapi.API over HTTP, matching spec §6's
// query surface JSON shapes. Grounded on this project's teacher's
// apiserver/server/routes.go (the makeHandler wrapper that turns a
// (routeParams, queryParams) -> (interface{}, *HandlerError) function into
// an http.HandlerFunc) and apiserver/utils/error.go's HandlerError.
package resthandlers

import (
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/gorilla/mux"

	"github.com/daglabs/sidetree-anchor-engine/errkind"
	"github.com/daglabs/sidetree-anchor-engine/queryapi"
)

const (
	routeParamHash  = "hash"
	routeParamBlock = "block"
)

const (
	queryParamSince = "since"
	queryParamHash  = "hash"
)

// HandlerError is the structured {status, code} error shape of spec §6.
type HandlerError struct {
	StatusCode int    `json:"-"`
	Code       string `json:"code"`
	Message    string `json:"message"`
}

func (e *HandlerError) Error() string {
	return e.Message
}

func newHandlerError(statusCode int, code, message string) *HandlerError {
	return &HandlerError{StatusCode: statusCode, Code: code, Message: message}
}

// classify maps an engine error (typically an *errkind.Error) onto a
// caller-facing kind: BadRequest for errkind.KindBadRequest, ServerError
// for anything else. NotFound is produced by the handlers themselves.
func classify(err error) *HandlerError {
	if errkind.Is(err, errkind.KindBadRequest) {
		return newHandlerError(http.StatusBadRequest, "BadRequest", err.Error())
	}
	return newHandlerError(http.StatusInternalServerError, "ServerError", err.Error())
}

type handlerFunc func(routeParams map[string]string, queryParams map[string][]string) (interface{}, *HandlerError)

func makeHandler(handler handlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		response, hErr := handler(mux.Vars(r), r.URL.Query())
		if hErr != nil {
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(hErr.StatusCode)
			sendJSONResponse(w, hErr)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		sendJSONResponse(w, response)
	}
}

func sendJSONResponse(w http.ResponseWriter, response interface{}) {
	b, err := json.Marshal(response)
	if err != nil {
		panic(err)
	}
	_, err = w.Write(b)
	if err != nil {
		panic(err)
	}
}

// Router builds the HTTP surface over a queryapi.API.
type Router struct {
	api *queryapi.API
}

// NewRouter constructs a Router.
func NewRouter(api *queryapi.API) *Router {
	return &Router{api: api}
}

// Register wires the routes onto router.
func (rt *Router) Register(router *mux.Router) {
	router.HandleFunc("/time", makeHandler(rt.timeHandler)).Methods("GET")
	router.HandleFunc("/transactions", makeHandler(rt.transactionsHandler)).Methods("GET")
	router.HandleFunc("/fee/{"+routeParamBlock+"}", makeHandler(rt.feeHandler)).Methods("GET")
}

type timeResponse struct {
	Time int    `json:"time"`
	Hash string `json:"hash"`
}

func (rt *Router) timeHandler(_ map[string]string, queryParams map[string][]string) (interface{}, *HandlerError) {
	hash := singleValue(queryParams, routeParamHash)
	height, resolvedHash, err := rt.api.Time(hash)
	if err != nil {
		return nil, classify(err)
	}
	return &timeResponse{Time: int(height), Hash: resolvedHash}, nil
}

type transactionView struct {
	TransactionNumber   uint64 `json:"transactionNumber"`
	TransactionTime     uint32 `json:"transactionTime"`
	TransactionTimeHash string `json:"transactionTimeHash"`
	AnchorString        string `json:"anchorString"`
	FeePaid             uint64 `json:"feePaid"`
}

type transactionsResponse struct {
	MoreTransactions bool              `json:"moreTransactions"`
	Transactions     []transactionView `json:"transactions"`
}

func (rt *Router) transactionsHandler(_ map[string]string, queryParams map[string][]string) (interface{}, *HandlerError) {
	sinceStr := singleValue(queryParams, queryParamSince)
	hashStr := singleValue(queryParams, queryParamHash)

	var since *uint64
	var hash *string
	if sinceStr != "" {
		v, err := strconv.ParseUint(sinceStr, 10, 64)
		if err != nil {
			return nil, newHandlerError(http.StatusBadRequest, "BadRequest", "invalid since parameter: "+err.Error())
		}
		since = &v
	}
	if hashStr != "" {
		hash = &hashStr
	}

	result, err := rt.api.Transactions(since, hash)
	if err != nil {
		return nil, classify(err)
	}

	views := make([]transactionView, 0, len(result.Transactions))
	for _, rec := range result.Transactions {
		views = append(views, transactionView{
			TransactionNumber:   rec.TransactionNumber,
			TransactionTime:     rec.BlockHeight,
			TransactionTimeHash: rec.BlockHash,
			AnchorString:        string(rec.AnchorPayload),
			FeePaid:             rec.FeePaid,
		})
	}
	return &transactionsResponse{MoreTransactions: result.MoreTransactions, Transactions: views}, nil
}

type feeResponse struct {
	NormalizedTransactionFee uint64 `json:"normalizedTransactionFee"`
}

func (rt *Router) feeHandler(routeParams map[string]string, _ map[string][]string) (interface{}, *HandlerError) {
	blockStr := routeParams[routeParamBlock]
	block, err := strconv.ParseUint(blockStr, 10, 32)
	if err != nil {
		return nil, newHandlerError(http.StatusBadRequest, "BadRequest", "invalid block parameter: "+err.Error())
	}

	fee, ok, ferr := rt.api.Fee(uint32(block))
	if ferr != nil {
		return nil, classify(ferr)
	}
	if !ok {
		return nil, newHandlerError(http.StatusNotFound, "NotFound", "no fee snapshot available for that block yet")
	}
	return &feeResponse{NormalizedTransactionFee: fee}, nil
}

func singleValue(queryParams map[string][]string, key string) string {
	values := queryParams[key]
	if len(values) == 0 {
		return ""
	}
	return values[0]
}
