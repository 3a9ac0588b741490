// Package api exposes the local control surface of the delivery layer:
// connection control, preferences, and status for the dashboard process.
package api

import (
	"errors"
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/tadams95/4ex.ninja-sub006/internal/client"
	"github.com/tadams95/4ex.ninja-sub006/internal/domain/models"
	"github.com/tadams95/4ex.ninja-sub006/internal/router"
	xhttp "github.com/tadams95/4ex.ninja-sub006/pkg/http"
	xlogger "github.com/tadams95/4ex.ninja-sub006/pkg/logger"
)

// DeliveryEchoHandler implements the Echo-based control API.
type DeliveryEchoHandler struct {
	logger *xlogger.Logger
	client *client.Client
}

func NewDeliveryEchoHandler(logger *xlogger.Logger, c *client.Client) *DeliveryEchoHandler {
	return &DeliveryEchoHandler{logger: logger, client: c}
}

func (h *DeliveryEchoHandler) RegisterRoutes(e *echo.Echo) {
	e.GET("/healthz", h.Health)

	g := e.Group("/api")
	g.GET("/status", h.Status)
	g.GET("/channels", h.Channels)
	g.GET("/wallets", h.Wallets)
	g.GET("/preferences", h.GetPreferences)
	g.PUT("/preferences", h.UpdatePreferences)
	g.POST("/connect", h.Connect)
	g.POST("/subscribe", h.Subscribe)
	g.POST("/disconnect", h.Disconnect)
}

func (h *DeliveryEchoHandler) Health(c echo.Context) error {
	return c.JSON(http.StatusOK, map[string]string{"status": "ok"})
}

// Status reports the router and transport state in one payload.
func (h *DeliveryEchoHandler) Status(c echo.Context) error {
	type statusPayload struct {
		models.RouterStatus
		Connection *models.ConnectionStatus `json:"connection,omitempty"`
	}
	payload := statusPayload{RouterStatus: h.client.Status()}
	if cs, ok := h.client.GetConnectionStatus(); ok {
		payload.Connection = &cs
	}
	return xhttp.SuccessResponse(c, payload)
}

func (h *DeliveryEchoHandler) Channels(c echo.Context) error {
	return xhttp.SuccessResponse(c, h.client.AvailableChannels())
}

func (h *DeliveryEchoHandler) Wallets(c echo.Context) error {
	return xhttp.SuccessResponse(c, h.client.AvailableWallets())
}

func (h *DeliveryEchoHandler) GetPreferences(c echo.Context) error {
	return xhttp.SuccessResponse(c, h.client.Preferences(c.Request().Context()))
}

func (h *DeliveryEchoHandler) UpdatePreferences(c echo.Context) error {
	req := &models.PreferenceUpdate{}
	if verr := xhttp.ReadAndValidateRequest(c, req); verr != nil {
		return xhttp.BadRequestResponse(c, verr)
	}
	merged, err := h.client.UpdatePreferences(c.Request().Context(), *req)
	if err != nil {
		if errors.Is(err, router.ErrPermissionDenied) {
			return xhttp.ForbiddenResponse(c, merged)
		}
		h.logger.Error("preference update failed", xlogger.Error(err))
		return xhttp.InternalServerErrorResponse(c)
	}
	return xhttp.SuccessResponse(c, merged)
}

// ConnectRequest selects the auth mode of a new session. Exactly one of
// the credential fields applies per mode.
type ConnectRequest struct {
	AuthType      string `json:"authType" validate:"required,oneof=wallet session anonymous"`
	WalletAddress string `json:"walletAddress,omitempty"`
	Proof         string `json:"proof,omitempty"`
	SessionToken  string `json:"sessionToken,omitempty"`
	UserID        string `json:"userId,omitempty"`
	AnonymousID   string `json:"anonymousId,omitempty"`
}

func (h *DeliveryEchoHandler) Connect(c echo.Context) error {
	req := &ConnectRequest{}
	if verr := xhttp.ReadAndValidateRequest(c, req); verr != nil {
		return xhttp.BadRequestResponse(c, verr)
	}

	ctx := c.Request().Context()
	var (
		sess models.RouterSession
		err  error
	)
	switch req.AuthType {
	case "wallet":
		if req.WalletAddress == "" {
			return xhttp.BadRequestResponse(c, xhttp.BadRequestError("walletAddress is required for wallet auth"))
		}
		sess, err = h.client.ConnectWithWallet(ctx, req.WalletAddress, req.Proof)
	case "session":
		if req.SessionToken == "" {
			return xhttp.BadRequestResponse(c, xhttp.BadRequestError("sessionToken is required for session auth"))
		}
		sess, err = h.client.ConnectWithSession(ctx, req.SessionToken, req.UserID)
	default:
		sess, err = h.client.ConnectAnonymous(ctx, req.AnonymousID)
	}
	if err != nil {
		if errors.Is(err, router.ErrProviderFailed) {
			return xhttp.AppErrorResponse(c, xhttp.NewAppError("balance_unavailable", "walletAddress",
				"token balance lookup failed", http.StatusBadGateway))
		}
		h.logger.Error("connect failed",
			xlogger.String("auth_type", req.AuthType), xlogger.Error(err))
		return xhttp.AppErrorResponse(c, xhttp.NewAppError("connect_failed", "",
			"could not reach the signal server", http.StatusBadGateway))
	}
	return xhttp.SuccessResponse(c, sess)
}

// SubscribeRequest names the channel to add to the active session.
type SubscribeRequest struct {
	Channel string `json:"channel" validate:"required"`
}

func (h *DeliveryEchoHandler) Subscribe(c echo.Context) error {
	req := &SubscribeRequest{}
	if verr := xhttp.ReadAndValidateRequest(c, req); verr != nil {
		return xhttp.BadRequestResponse(c, verr)
	}
	if err := h.client.SubscribeToChannel(req.Channel); err != nil {
		switch {
		case errors.Is(err, router.ErrPermissionDenied):
			return xhttp.ForbiddenResponse(c, xhttp.ForbiddenError(err.Error()))
		case errors.Is(err, router.ErrNoActiveSession):
			return xhttp.AppErrorResponse(c, xhttp.ConflictError("no active session"))
		case errors.Is(err, router.ErrRateLimited):
			return xhttp.DataResponse(c, http.StatusTooManyRequests, "subscribe rate limited")
		default:
			h.logger.Error("subscribe failed", xlogger.String("channel", req.Channel), xlogger.Error(err))
			return xhttp.InternalServerErrorResponse(c)
		}
	}
	return xhttp.NoContentResponse(c)
}

func (h *DeliveryEchoHandler) Disconnect(c echo.Context) error {
	h.client.Disconnect()
	return xhttp.NoContentResponse(c)
}
