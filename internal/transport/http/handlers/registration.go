package handlers

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/RASA-RCS/userauth-service/internal/usecase"
)

var (
	registrationErrorCases = []ErrorCase{
		{Err: usecase.ErrEmailTaken, Status: http.StatusBadRequest, Message: "User already exists"},
	}

	verifyEmailErrorCases = []ErrorCase{
		{Err: usecase.ErrLinkExpired, Status: http.StatusBadRequest, Message: "Link Expired"},
		{Err: usecase.ErrUserNotFound, Status: http.StatusBadRequest, Message: "Invalid URL"},
	}
)

// RegistrationHandler exposes sign-up and email verification.
type RegistrationHandler struct {
	signup SignupService
}

// NewRegistrationHandler constructs a registration handler.
func NewRegistrationHandler(signup SignupService) *RegistrationHandler {
	return &RegistrationHandler{signup: signup}
}

// RegisterRoutes binds the registration routes.
func (h *RegistrationHandler) RegisterRoutes(r *gin.RouterGroup) {
	r.POST("/users/register", h.Register)
	r.GET("/verify/:token", h.VerifyEmail)
}

// Register godoc
// @Summary Register a new user account
// @Description Creates an unverified account and mails the verification link.
// @Tags Registration
// @Accept json
// @Produce json
// @Param request body RegisterRequest true "Registration request payload"
// @Success 201 {object} RegisterResponse
// @Failure 400 {object} ErrorResponse
// @Failure 500 {object} ErrorResponse
// @Router /api/auth/users/register [post]
func (h *RegistrationHandler) Register(c *gin.Context) {
	var req RegisterRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, NewErrorResponse(c, "invalid registration payload"))
		return
	}
	for _, v := range []string{req.FirstName, req.LastName, req.Phone, req.Email, req.Password} {
		if strings.TrimSpace(v) == "" {
			c.JSON(http.StatusBadRequest, NewErrorResponse(c, "All required fields are mandatory"))
			return
		}
	}

	user, err := h.signup.Register(c.Request.Context(), usecase.RegisterInput{
		FirstName:  req.FirstName,
		MiddleName: req.MiddleName,
		LastName:   req.LastName,
		Phone:      req.Phone,
		Email:      req.Email,
		Password:   req.Password,
	})
	if err != nil {
		RespondWithMappedError(c, err, registrationErrorCases, http.StatusInternalServerError, "registration failed")
		return
	}

	c.JSON(http.StatusCreated, RegisterResponse{
		Message: "Registered Successfully. Please verify your email",
		User:    newUserResponse(*user),
	})
}

// VerifyEmail godoc
// @Summary Verify email address
// @Description Confirms the address named by a verification link. Each link works once.
// @Tags Registration
// @Produce json
// @Param token path string true "Verification token"
// @Success 200 {object} MessageResponse
// @Failure 400 {object} ErrorResponse
// @Router /api/auth/verify/{token} [get]
func (h *RegistrationHandler) VerifyEmail(c *gin.Context) {
	token := strings.TrimSpace(c.Param("token"))
	if token == "" {
		c.JSON(http.StatusBadRequest, NewErrorResponse(c, "Invalid URL"))
		return
	}

	if _, err := h.signup.VerifyEmail(c.Request.Context(), token); err != nil {
		RespondWithMappedError(c, err, verifyEmailErrorCases, http.StatusInternalServerError, "email verification failed")
		return
	}
	c.JSON(http.StatusOK, MessageResponse{Message: "Email Verification Success"})
}
