package handlers

import (
	"github.com/go-playground/validator/v10"
)

// CustomValidator wraps the go-playground/validator library to implement
// Echo's Validator interface.
type CustomValidator struct {
	validator *validator.Validate
}

// NewValidator creates a new CustomValidator.
func NewValidator() *CustomValidator {
	return &CustomValidator{validator: validator.New()}
}

// Validate implements the echo.Validator interface.
func (cv *CustomValidator) Validate(i interface{}) error {
	return cv.validator.Struct(i)
}

// LoginRequest is the DTO for the login endpoint.
type LoginRequest struct {
	Username string `json:"username" validate:"required"`
	Password string `json:"password" validate:"required"`
}

// SendMessageRequest covers the non-file fields of the multipart send form.
// The media file itself is read straight off the form; TempID is the client
// correlation id echoed back in the response and the broadcast.
type SendMessageRequest struct {
	Text    string `form:"text" validate:"omitempty,max=4096"`
	Sticker string `form:"sticker" validate:"omitempty,url"`
	Gif     string `form:"gif" validate:"omitempty,url"`
	TempID  string `form:"tempId" validate:"omitempty,max=64"`
}

// ReactRequest is the DTO for the reaction endpoint.
type ReactRequest struct {
	Emoji string `json:"emoji" validate:"required,max=16"`
}
