package handler

import (
	"net/http"
	"strconv"

	"github.com/labstack/echo/v4"

	"vendora/internal/domain/entity"
	"vendora/internal/domain/repository"
	"vendora/internal/usecase"
	"vendora/pkg/response"
	"vendora/pkg/utils"
)

// AdminHandler exposes the operator surface: transaction inspection,
// out-of-band reconciliation, dispute resolution, and tier management.
type AdminHandler struct {
	purchaseUC *usecase.PurchaseUseCase
	trustUC    *usecase.TrustEscrowUseCase
	txRepo     repository.TransactionRepository
	vendorRepo repository.VendorRepository
}

func NewAdminHandler(
	purchaseUC *usecase.PurchaseUseCase,
	trustUC *usecase.TrustEscrowUseCase,
	txRepo repository.TransactionRepository,
	vendorRepo repository.VendorRepository,
) *AdminHandler {
	return &AdminHandler{
		purchaseUC: purchaseUC,
		trustUC:    trustUC,
		txRepo:     txRepo,
		vendorRepo: vendorRepo,
	}
}

func (h *AdminHandler) ListTransactions(c echo.Context) error {
	page, _ := strconv.Atoi(c.QueryParam("page"))
	pageSize, _ := strconv.Atoi(c.QueryParam("pageSize"))
	params := utils.NewPaginationParams(page, pageSize)

	filter := map[string]interface{}{}
	if status := c.QueryParam("status"); status != "" {
		filter["status"] = status
	}
	if vendorID := c.QueryParam("vendorId"); vendorID != "" {
		filter["vendorId"] = vendorID
	}
	if buyerID := c.QueryParam("buyerId"); buyerID != "" {
		filter["buyerId"] = buyerID
	}

	txs, total, err := h.txRepo.List(c.Request().Context(), filter, params.PageSize, params.Offset)
	if err != nil {
		return response.Error(c, err)
	}

	return response.Paginated(c, txs, total, params.Page, params.PageSize)
}

func (h *AdminHandler) GetTransaction(c echo.Context) error {
	tx, err := h.txRepo.GetByReference(c.Request().Context(), c.Param("reference"))
	if err != nil {
		return response.Error(c, err)
	}
	return response.Success(c, tx)
}

// VerifyTransaction reconciles a reference against the gateway out of band
// and settles it if the gateway reports success.
func (h *AdminHandler) VerifyTransaction(c echo.Context) error {
	reference := c.Param("reference")
	if err := h.purchaseUC.VerifyAndSettle(c.Request().Context(), reference); err != nil {
		return response.Error(c, err)
	}

	tx, err := h.txRepo.GetByReference(c.Request().Context(), reference)
	if err != nil {
		return response.Error(c, err)
	}
	return response.Success(c, tx)
}

func (h *AdminHandler) ReleaseEscrow(c echo.Context) error {
	reference := c.Param("reference")
	if err := h.purchaseUC.ReleaseEscrowNow(c.Request().Context(), reference); err != nil {
		return response.Error(c, err)
	}
	return response.Success(c, map[string]string{"reference": reference, "result": "released"})
}

type refundRequest struct {
	Reason string `json:"reason" validate:"required"`
}

func (h *AdminHandler) RefundTransaction(c echo.Context) error {
	var req refundRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "Invalid request body")
	}
	if err := c.Validate(&req); err != nil {
		return response.Error(c, err)
	}

	reference := c.Param("reference")
	if err := h.purchaseUC.RefundTransaction(c.Request().Context(), reference, req.Reason); err != nil {
		return response.Error(c, err)
	}
	return response.Success(c, map[string]string{"reference": reference, "result": "refunded"})
}

func (h *AdminHandler) GetVendor(c echo.Context) error {
	vendor, err := h.vendorRepo.GetByID(c.Request().Context(), c.Param("id"))
	if err != nil {
		return response.Error(c, err)
	}
	return response.Success(c, vendor)
}

type updateTierRequest struct {
	Tier string `json:"tier" validate:"required,oneof=none rising verified trusted elite"`
}

func (h *AdminHandler) UpdateVendorTier(c echo.Context) error {
	var req updateTierRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "Invalid request body")
	}
	if err := c.Validate(&req); err != nil {
		return response.Error(c, err)
	}

	ctx := c.Request().Context()
	vendor, err := h.vendorRepo.GetByID(ctx, c.Param("id"))
	if err != nil {
		return response.Error(c, err)
	}

	vendor.Tier = entity.VendorTier(req.Tier)
	if err := h.vendorRepo.Save(ctx, vendor); err != nil {
		return response.Error(c, err)
	}
	return response.Success(c, vendor)
}

// RunPromotions triggers the batch tier evaluation on demand.
func (h *AdminHandler) RunPromotions(c echo.Context) error {
	if err := h.trustUC.EvaluatePromotions(c.Request().Context()); err != nil {
		return response.Error(c, err)
	}
	return response.Success(c, map[string]string{"result": "evaluated"})
}
