package serverutils

type Response struct {
	Code    int         `json:"code"`
	Message string      `json:"message"`
	Data    interface{} `json:"data,omitempty"`
}

func SuccessResponse(message string, data interface{}) Response {
	return Response{Code: 200, Message: message, Data: data}
}

func ErrorResponse(code int, message string) Response {
	return Response{Code: code, Message: message}
}
