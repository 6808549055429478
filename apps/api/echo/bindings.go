package echoapi

import (
	"github.com/go-playground/validator/v10"

	"github.com/shuleapp/shule/core"
)

type (
	LoginRequest struct {
		Username string `json:"username" validate:"required"`
		Password string `json:"password" validate:"required"`
	}

	LoginResponse struct {
		Token       string `json:"token"`
		OTPRequired bool   `json:"otp_required,omitempty"`
	}

	OTPVerifyRequest struct {
		Code string `json:"code" validate:"required,len=6,number"`
	}

	PasswordResetRequest struct {
		Email string `json:"email" validate:"required,email"`
	}

	SuccessResponse struct {
		Success string `json:"success"`
	}

	DestroyMultipleRequest struct {
		IDs []string `query:"id"`
	}
)

func (lr *LoginRequest) Validate(validate *validator.Validate) error {
	lr.Username = core.CleanString(lr.Username, true /* lower */)
	return validate.Struct(lr)
}

func (ov *OTPVerifyRequest) Validate(validate *validator.Validate) error {
	ov.Code = core.CleanString(ov.Code)
	return validate.Struct(ov)
}

func (pr *PasswordResetRequest) Validate(validate *validator.Validate) error {
	pr.Email = core.CleanString(pr.Email, true /* lower */)
	return validate.Struct(pr)
}
