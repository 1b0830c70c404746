package api

import (
	"context"
	"errors"
	"net/http"
	"regexp"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"bot-ofertas/internal/affiliate"
	"bot-ofertas/internal/database"
	"bot-ofertas/internal/logger"
	"bot-ofertas/internal/models"
)

const (
	defaultLimit = 20
	maxLimit     = 100
	checkTimeout = 5 * time.Second
)

// Store é a parte do repositório lida pela API
type Store interface {
	Ping(ctx context.Context) error
	ListDeals(ctx context.Context, limit int) ([]models.Deal, error)
	SelectPending(ctx context.Context, t models.Thresholds, window time.Duration, limit int) ([]models.Product, error)
	CountPending(ctx context.Context, t models.Thresholds, window time.Duration) (int, error)
	GetProductByASIN(ctx context.Context, asin string) (*models.Product, error)
}

// Pinger é qualquer dependência verificada no /health (ex.: Redis)
type Pinger interface {
	Ping(ctx context.Context) error
}

// PendingGauge recebe o total de pendentes a cada consulta
type PendingGauge interface {
	SetPending(n int)
}

// Distribution é o estado do coordenador exposto em /api/status
type Distribution interface {
	Running() bool
	Channels() []string
}

// Schedule informa o próximo disparo de uma tarefa agendada
type Schedule interface {
	Next(name string) time.Time
}

var asinPattern = regexp.MustCompile(`^[A-Z0-9]{10}$`)

// Handler atende as rotas da API
type Handler struct {
	store      Store
	thresholds models.Thresholds
	window     time.Duration
	checks     map[string]Pinger
	gauge      PendingGauge
	log        logger.Logger

	distribution Distribution
	schedule     Schedule
	jobs         []string
}

// NewHandler cria o Handler. checks e gauge podem ser nil.
func NewHandler(store Store, thresholds models.Thresholds, window time.Duration, checks map[string]Pinger, gauge PendingGauge, log logger.Logger) *Handler {
	return &Handler{
		store:      store,
		thresholds: thresholds,
		window:     window,
		checks:     checks,
		gauge:      gauge,
		log:        log,
	}
}

// WithStatus habilita o /api/status com o estado da distribuição e o próximo
// disparo de cada tarefa em jobs
func (h *Handler) WithStatus(d Distribution, s Schedule, jobs ...string) *Handler {
	h.distribution = d
	h.schedule = s
	h.jobs = jobs
	return h
}

// Health verifica o banco e as dependências opcionais
func (h *Handler) Health(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), checkTimeout)
	defer cancel()

	status := "ok"
	results := gin.H{"database": "ok"}
	if err := h.store.Ping(ctx); err != nil {
		status = "unhealthy"
		results["database"] = err.Error()
	}
	for name, p := range h.checks {
		results[name] = "ok"
		if err := p.Ping(ctx); err != nil {
			status = "unhealthy"
			results[name] = err.Error()
		}
	}

	code := http.StatusOK
	if status != "ok" {
		code = http.StatusServiceUnavailable
	}
	c.JSON(code, gin.H{
		"status":    status,
		"checks":    results,
		"timestamp": time.Now().UTC().Format(time.RFC3339),
	})
}

// ListDeals retorna as últimas ofertas distribuídas com o resultado por canal
func (h *Handler) ListDeals(c *gin.Context) {
	limit, ok := parseLimit(c)
	if !ok {
		return
	}
	deals, err := h.store.ListDeals(c.Request.Context(), limit)
	if err != nil {
		h.fail(c, "erro ao listar ofertas", err)
		return
	}
	if deals == nil {
		deals = []models.Deal{}
	}
	c.JSON(http.StatusOK, gin.H{"deals": deals, "count": len(deals)})
}

// PendingProduct é um produto aguardando distribuição com a comissão estimada
type PendingProduct struct {
	models.Product
	CommissionRate      float64 `json:"commission_rate"`
	EstimatedCommission float64 `json:"estimated_commission"`
}

// ListPending retorna os produtos que a próxima passada selecionaria
func (h *Handler) ListPending(c *gin.Context) {
	limit, ok := parseLimit(c)
	if !ok {
		return
	}
	ctx := c.Request.Context()

	total, err := h.store.CountPending(ctx, h.thresholds, h.window)
	if err != nil {
		h.fail(c, "erro ao contar pendentes", err)
		return
	}
	if h.gauge != nil {
		h.gauge.SetPending(total)
	}

	products, err := h.store.SelectPending(ctx, h.thresholds, h.window, limit)
	if err != nil {
		h.fail(c, "erro ao buscar pendentes", err)
		return
	}

	pending := make([]PendingProduct, 0, len(products))
	for _, p := range products {
		pending = append(pending, withCommission(p))
	}
	c.JSON(http.StatusOK, gin.H{"products": pending, "count": len(pending), "total": total})
}

// GetProduct retorna um produto pelo ASIN, distribuído ou não
func (h *Handler) GetProduct(c *gin.Context) {
	asin := c.Param("asin")
	if !asinPattern.MatchString(asin) {
		c.JSON(http.StatusBadRequest, gin.H{"error": "ASIN inválido"})
		return
	}
	p, err := h.store.GetProductByASIN(c.Request.Context(), asin)
	if errors.Is(err, database.ErrNotFound) {
		c.JSON(http.StatusNotFound, gin.H{"error": "produto não encontrado"})
		return
	}
	if err != nil {
		h.fail(c, "erro ao buscar produto", err)
		return
	}
	c.JSON(http.StatusOK, withCommission(*p))
}

// Status mostra se há uma passada em andamento, os canais e os próximos disparos
func (h *Handler) Status(c *gin.Context) {
	body := gin.H{}
	if h.distribution != nil {
		body["distribution"] = gin.H{
			"running":  h.distribution.Running(),
			"channels": h.distribution.Channels(),
		}
	}
	if h.schedule != nil {
		next := gin.H{}
		for _, job := range h.jobs {
			if t := h.schedule.Next(job); !t.IsZero() {
				next[job] = t.UTC().Format(time.RFC3339)
			}
		}
		body["schedule"] = next
	}
	c.JSON(http.StatusOK, body)
}

func withCommission(p models.Product) PendingProduct {
	category := ""
	if p.Category != nil {
		category = *p.Category
	}
	rate := affiliate.CommissionRate(category)
	return PendingProduct{
		Product:             p,
		CommissionRate:      rate,
		EstimatedCommission: round2(p.CurrentPrice * rate),
	}
}

func (h *Handler) fail(c *gin.Context, msg string, err error) {
	_ = c.Error(err)
	h.log.Error(msg, logger.Error(err))
	c.JSON(http.StatusInternalServerError, gin.H{"error": msg})
}

func parseLimit(c *gin.Context) (int, bool) {
	raw := c.Query("limit")
	if raw == "" {
		return defaultLimit, true
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n <= 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "limit deve ser um inteiro positivo"})
		return 0, false
	}
	return min(n, maxLimit), true
}

func round2(v float64) float64 {
	return float64(int64(v*100+0.5)) / 100
}
