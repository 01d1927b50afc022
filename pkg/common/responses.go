package common

import "net/http"

type SuccessResponse struct {
	Status  int         `json:"status"`
	Success bool        `json:"success"`
	Message string      `json:"message"`
	Data    interface{} `json:"data"`
}

// ErrorResponse carries a stable machine code next to the human message.
// MoneyMoved tells an admin whether balances may have changed.
type ErrorResponse struct {
	Status     int         `json:"status"`
	Message    string      `json:"message"`
	Success    bool        `json:"success"`
	Code       string      `json:"code"`
	MoneyMoved string      `json:"moneyMoved,omitempty"`
	Data       interface{} `json:"data,omitempty"`
}

func NewSuccessResponse(data interface{}, message string) SuccessResponse {
	return SuccessResponse{
		Status:  http.StatusOK,
		Success: true,
		Message: message,
		Data:    data,
	}
}

func NewErrorResponse(message string, code string, status int) ErrorResponse {
	return ErrorResponse{
		Status:  status,
		Success: false,
		Message: message,
		Code:    code,
	}
}
