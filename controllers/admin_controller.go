package controllers

import (
	"context"
	"net/http"

	"bankcore/apperrors"
	"bankcore/middleware"
	"bankcore/models"
	"bankcore/services"
	"bankcore/utils"

	"github.com/gin-gonic/gin"
	"github.com/gin-gonic/gin/binding"
	"github.com/go-playground/validator/v10"
)

// AdminController шлюз административных решений на gin
type AdminController struct {
	admin *services.AdminService
	users *services.UserService
}

func NewAdminController(admin *services.AdminService, users *services.UserService) *AdminController {
	return &AdminController{admin: admin, users: users}
}

// NewAdminEngine собирает gin-движок для маршрутов /api/admin
func NewAdminEngine(c *AdminController, verifier *middleware.TokenVerifier, limiter *utils.RateLimiter) *gin.Engine {
	if v, ok := binding.Validator.Engine().(*validator.Validate); ok {
		apperrors.UseJSONFieldNames(v)
	}

	engine := gin.New()
	engine.Use(middleware.Recovery(), middleware.Logger(), middleware.CORSMiddleware(), middleware.RateLimit(limiter))

	admin := engine.Group("/api/admin", middleware.RequireAdmin(verifier))
	{
		admin.GET("/cards/pending", c.PendingCards)
		admin.POST("/cards/:id/confirm", c.ConfirmCard)
		admin.POST("/cards/:id/reject", c.RejectCard)
		admin.POST("/cards/:id/renewal/approve", c.ApproveRenewal)
		admin.POST("/cards/:id/block", c.BlockCard)
		admin.POST("/cards/:id/unblock", c.UnblockCard)

		admin.GET("/loans/pending", c.PendingLoans)
		admin.POST("/loans/:id/decision", c.DecideLoan)

		admin.GET("/deposits/pending", c.PendingDeposits)
		admin.POST("/deposits/:id/decision", c.DecideDeposit)

		admin.PUT("/users/:id/role", c.SetRole)
		admin.GET("/metrics", c.Metrics)
	}
	return engine
}

func respondGinError(ctx *gin.Context, err error) {
	if apperrors.KindOf(err) == apperrors.KindInternal {
		utils.LogError("internal error: %v", err)
	}
	status, body := apperrors.Response(err)
	ctx.JSON(status, body)
}

// actorAndID достает личность администратора и числовой :id
func actorAndID(ctx *gin.Context) (services.Identity, uint, bool) {
	actor, ok := middleware.GinIdentity(ctx)
	if !ok {
		respondGinError(ctx, apperrors.Unauthenticated("требуется авторизация"))
		return services.Identity{}, 0, false
	}
	id, err := parseID(ctx.Param("id"))
	if err != nil {
		respondGinError(ctx, err)
		return services.Identity{}, 0, false
	}
	return actor, id, true
}

type cardTransition func(ctx context.Context, actor services.Identity, cardID uint) (*models.Card, error)

func (c *AdminController) cardAction(ctx *gin.Context, op cardTransition) {
	actor, cardID, ok := actorAndID(ctx)
	if !ok {
		return
	}
	card, err := op(ctx.Request.Context(), actor, cardID)
	if err != nil {
		respondGinError(ctx, err)
		return
	}
	ctx.JSON(http.StatusOK, toAdminCardResponse(card))
}

func (c *AdminController) ConfirmCard(ctx *gin.Context) {
	c.cardAction(ctx, c.admin.ConfirmCard)
}

func (c *AdminController) RejectCard(ctx *gin.Context) {
	c.cardAction(ctx, c.admin.RejectCard)
}

func (c *AdminController) ApproveRenewal(ctx *gin.Context) {
	c.cardAction(ctx, c.admin.ApproveRenewal)
}

func (c *AdminController) BlockCard(ctx *gin.Context) {
	c.cardAction(ctx, c.admin.BlockCard)
}

func (c *AdminController) UnblockCard(ctx *gin.Context) {
	c.cardAction(ctx, c.admin.UnblockCard)
}

func (c *AdminController) PendingCards(ctx *gin.Context) {
	actor, _ := middleware.GinIdentity(ctx)
	cards, err := c.admin.PendingCards(ctx.Request.Context(), actor)
	if err != nil {
		respondGinError(ctx, err)
		return
	}

	response := make([]AdminCardResponse, 0, len(cards))
	for i := range cards {
		response = append(response, toAdminCardResponse(&cards[i]))
	}
	ctx.JSON(http.StatusOK, response)
}

func (c *AdminController) PendingLoans(ctx *gin.Context) {
	actor, _ := middleware.GinIdentity(ctx)
	loans, err := c.admin.PendingLoans(ctx.Request.Context(), actor)
	if err != nil {
		respondGinError(ctx, err)
		return
	}

	response := make([]LoanResponse, 0, len(loans))
	for _, l := range loans {
		response = append(response, toLoanResponse(l))
	}
	ctx.JSON(http.StatusOK, response)
}

func (c *AdminController) PendingDeposits(ctx *gin.Context) {
	actor, _ := middleware.GinIdentity(ctx)
	deposits, err := c.admin.PendingDeposits(ctx.Request.Context(), actor)
	if err != nil {
		respondGinError(ctx, err)
		return
	}

	response := make([]DepositResponse, 0, len(deposits))
	for _, d := range deposits {
		response = append(response, toDepositResponse(depositView(d)))
	}
	ctx.JSON(http.StatusOK, response)
}

// DecideLoan одобряет или отклоняет заявку на кредит; ставку и срок можно переопределить
func (c *AdminController) DecideLoan(ctx *gin.Context) {
	actor, loanID, ok := actorAndID(ctx)
	if !ok {
		return
	}
	var req DecisionRequest
	if err := ctx.ShouldBindJSON(&req); err != nil {
		respondGinError(ctx, apperrors.ParseValidationErrors(err))
		return
	}

	loan, err := c.admin.DecideLoan(ctx.Request.Context(), actor, loanID, services.LoanDecision{
		Approve:      *req.Approve,
		InterestRate: req.InterestRate,
		TermMonths:   req.TermMonths,
	})
	if err != nil {
		respondGinError(ctx, err)
		return
	}
	ctx.JSON(http.StatusOK, toLoanResponse(*loan))
}

func (c *AdminController) DecideDeposit(ctx *gin.Context) {
	actor, depositID, ok := actorAndID(ctx)
	if !ok {
		return
	}
	var req DecisionRequest
	if err := ctx.ShouldBindJSON(&req); err != nil {
		respondGinError(ctx, apperrors.ParseValidationErrors(err))
		return
	}

	deposit, err := c.admin.DecideDeposit(ctx.Request.Context(), actor, depositID, *req.Approve)
	if err != nil {
		respondGinError(ctx, err)
		return
	}
	ctx.JSON(http.StatusOK, toDepositResponse(depositView(*deposit)))
}

// SetRole назначает роль пользователю
func (c *AdminController) SetRole(ctx *gin.Context) {
	_, userID, ok := actorAndID(ctx)
	if !ok {
		return
	}
	var req RoleRequest
	if err := ctx.ShouldBindJSON(&req); err != nil {
		respondGinError(ctx, apperrors.ParseValidationErrors(err))
		return
	}

	if err := c.users.SetRole(ctx.Request.Context(), userID, req.Role); err != nil {
		respondGinError(ctx, err)
		return
	}
	user, err := c.users.GetByID(ctx.Request.Context(), userID)
	if err != nil {
		respondGinError(ctx, err)
		return
	}
	ctx.JSON(http.StatusOK, services.ToUserResponse(user))
}

// Metrics отдает снимок внутренних метрик
func (c *AdminController) Metrics(ctx *gin.Context) {
	ctx.JSON(http.StatusOK, utils.GetMetrics().GetMetricsSnapshot())
}
