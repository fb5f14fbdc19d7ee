// Package server implements the catalogue HTTP API behind the security gate.
package server

import (
	"bytes"
	"database/sql"
	"encoding/json"
	"net/http"
	"strconv"

	"go.uber.org/zap"

	"github.com/mgarrido/lumicat/internal/api"
	"github.com/mgarrido/lumicat/internal/config"
	"github.com/mgarrido/lumicat/internal/db"
	"github.com/mgarrido/lumicat/internal/security"
)

// Version is reported by the public info endpoint.
const Version = "1.0.0"

// Server handles the catalogue REST API. Every route passes through the
// security gate before reaching a handler.
type Server struct {
	DB     *sql.DB
	Config *config.Config
	Gate   *security.Gate
	Logger *zap.Logger
}

// Handler returns the full HTTP handler: the route mux wrapped in the
// request-defense pipeline.
//
// Data routes sit under an obscured prefix rather than a guessable
// /api/products; honeypot paths are handled inside the gate.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("GET /{$}", s.handleRoot)
	mux.HandleFunc("GET /health", s.handleHealth)
	mux.HandleFunc("GET /robots.txt", s.handleRobots)

	mux.HandleFunc("GET /v1/internal/products", s.handleListProducts)
	mux.HandleFunc("GET /v1/internal/products/{code}", s.handleGetProduct)
	mux.HandleFunc("GET /v1/internal/families", s.handleListFamilies)
	mux.HandleFunc("GET /v1/internal/families/stats", s.handleFamilyStatsAll)
	mux.HandleFunc("GET /v1/internal/families/{family}", s.handleFamilyStats)
	mux.HandleFunc("GET /v1/internal/bc3", s.handleBC3Stats)
	mux.HandleFunc("GET /v1/internal/bc3/type/{type}", s.handleBC3ByType)
	mux.HandleFunc("GET /v1/internal/bc3/{code}", s.handleGetBC3)

	mux.HandleFunc("GET /v1/admin/bans", s.handleListBans)
	mux.HandleFunc("DELETE /v1/admin/bans/{ip}", s.handleUnban)

	return s.Gate.Middleware(mux)
}

func (s *Server) handleRoot(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, api.InfoResponse{
		Name:        "lumicat",
		Version:     Version,
		Environment: s.Config.Environment,
		Status:      "operational",
	})
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, api.HealthResponse{
		Status:      "ok",
		Service:     "lumicat",
		Environment: s.Config.Environment,
	})
}

// handleRobots disallows all crawling so the API never gets indexed.
func (s *Server) handleRobots(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/plain")
	w.Header().Set("Cache-Control", "public, max-age=86400")
	w.Write([]byte("User-agent: *\nDisallow: /\n"))
}

func (s *Server) handleListProducts(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	filter := db.ProductFilter{
		Brand:     q.Get("brand"),
		Family:    q.Get("family"),
		Search:    q.Get("search"),
		WithBC3:   q.Get("with_bc3") == "true",
		WithImage: q.Get("with_image") == "true",
		Limit:     queryInt(q.Get("limit"), 100),
		Offset:    queryInt(q.Get("offset"), 0),
	}

	products, total, err := db.ListProducts(s.DB, filter)
	if err != nil {
		s.Logger.Error("list products failed", zap.Error(err))
		writeJSON(w, http.StatusInternalServerError, api.ErrorResponse{Detail: "database error"})
		return
	}

	resp := api.ListProductsResponse{
		Total:    total,
		Limit:    filter.Limit,
		Offset:   filter.Offset,
		Products: make([]api.Product, 0, len(products)),
	}
	for _, p := range products {
		resp.Products = append(resp.Products, toAPIProduct(p))
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleGetProduct(w http.ResponseWriter, r *http.Request) {
	code := r.PathValue("code")
	product, err := db.GetProduct(s.DB, code)
	if err != nil {
		s.Logger.Error("get product failed", zap.Error(err))
		writeJSON(w, http.StatusInternalServerError, api.ErrorResponse{Detail: "database error"})
		return
	}
	if product == nil {
		writeJSON(w, http.StatusNotFound, api.ErrorResponse{Detail: "product " + code + " not found"})
		return
	}
	writeJSON(w, http.StatusOK, toAPIProduct(*product))
}

func (s *Server) handleListFamilies(w http.ResponseWriter, r *http.Request) {
	families, err := db.ListFamilies(s.DB)
	if err != nil {
		s.Logger.Error("list families failed", zap.Error(err))
		writeJSON(w, http.StatusInternalServerError, api.ErrorResponse{Detail: "database error"})
		return
	}
	if families == nil {
		families = []string{}
	}
	writeJSON(w, http.StatusOK, api.ListFamiliesResponse{Families: families})
}

func (s *Server) handleFamilyStatsAll(w http.ResponseWriter, r *http.Request) {
	stats, err := db.ListFamilyStats(s.DB)
	if err != nil {
		s.Logger.Error("family stats failed", zap.Error(err))
		writeJSON(w, http.StatusInternalServerError, api.ErrorResponse{Detail: "database error"})
		return
	}
	resp := make([]api.FamilyStats, 0, len(stats))
	for _, st := range stats {
		resp = append(resp, api.FamilyStats(st))
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleFamilyStats(w http.ResponseWriter, r *http.Request) {
	family := r.PathValue("family")
	stats, err := db.GetFamilyStats(s.DB, family)
	if err != nil {
		s.Logger.Error("family stats failed", zap.Error(err))
		writeJSON(w, http.StatusInternalServerError, api.ErrorResponse{Detail: "database error"})
		return
	}
	if stats == nil {
		writeJSON(w, http.StatusNotFound, api.ErrorResponse{Detail: "family " + family + " not found"})
		return
	}
	writeJSON(w, http.StatusOK, api.FamilyStats(*stats))
}

func (s *Server) handleBC3Stats(w http.ResponseWriter, r *http.Request) {
	stats, err := db.GetBC3Stats(s.DB)
	if err != nil {
		s.Logger.Error("bc3 stats failed", zap.Error(err))
		writeJSON(w, http.StatusInternalServerError, api.ErrorResponse{Detail: "database error"})
		return
	}
	writeJSON(w, http.StatusOK, api.BC3Stats(stats))
}

func (s *Server) handleBC3ByType(w http.ResponseWriter, r *http.Request) {
	bc3Type := r.PathValue("type")
	products, err := db.ListProductsByBC3Type(s.DB, bc3Type)
	if err != nil {
		s.Logger.Error("bc3 by type failed", zap.Error(err))
		writeJSON(w, http.StatusInternalServerError, api.ErrorResponse{Detail: "database error"})
		return
	}
	resp := api.BC3TypeResponse{
		Type:     bc3Type,
		Total:    len(products),
		Products: make([]api.Product, 0, len(products)),
	}
	for _, p := range products {
		resp.Products = append(resp.Products, toAPIProduct(p))
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleGetBC3(w http.ResponseWriter, r *http.Request) {
	code := r.PathValue("code")
	desc, err := db.GetBC3(s.DB, code)
	if err != nil {
		s.Logger.Error("get bc3 failed", zap.Error(err))
		writeJSON(w, http.StatusInternalServerError, api.ErrorResponse{Detail: "database error"})
		return
	}
	if desc == nil {
		writeJSON(w, http.StatusNotFound, api.ErrorResponse{Detail: "product " + code + " not found"})
		return
	}
	writeJSON(w, http.StatusOK, api.BC3Description{
		Code:  desc.Code,
		Short: desc.Short,
		Long:  desc.Long,
		Type:  desc.Type,
	})
}

func toAPIProduct(p db.Product) api.Product {
	return api.Product{
		Code:             p.Code,
		Brand:            p.Brand,
		Reference:        p.Reference,
		Description:      p.Description,
		Price:            p.Price,
		ImageURL:         p.ImageURL,
		DatasheetURL:     p.DatasheetURL,
		Discontinued:     p.Discontinued,
		Family:           p.Family,
		ShortDescription: p.ShortDescription,
		BC3Short:         p.BC3Short,
		BC3Long:          p.BC3Long,
		BC3Type:          p.BC3Type,
	}
}

func queryInt(value string, defaultVal int) int {
	if value == "" {
		return defaultVal
	}
	i, err := strconv.Atoi(value)
	if err != nil {
		return defaultVal
	}
	return i
}

func writeJSON(w http.ResponseWriter, status int, data any) {
	buf := new(bytes.Buffer)
	if err := json.NewEncoder(buf).Encode(data); err != nil {
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	w.Write(buf.Bytes())
}
