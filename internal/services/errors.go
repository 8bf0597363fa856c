package services

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"

	"wholesale-market/internal/models"
)

var (
	ErrNoSession          = errors.New("no session")
	ErrNotLoggedIn        = errors.New("login required")
	ErrNotApproved        = errors.New("account awaiting approval")
	ErrEmptyCart          = errors.New("cart is empty")
	ErrInvalidQuantity    = errors.New("quantity must be positive")
	ErrProductNotFound    = errors.New("product not found")
	ErrProductUnavailable = errors.New("product unavailable")
	ErrOrderNotFound      = errors.New("order not found")
	ErrForbidden          = errors.New("not allowed")
	ErrInvalidTransition  = errors.New("invalid status transition")
	ErrInvalidPhone       = errors.New("invalid phone number")
	ErrAccountNotFound    = errors.New("no account for phone number")
	ErrQueueClosed        = errors.New("cart queue closed")
	ErrInvalidOTP         = errors.New("otp rejected")
)

// ProductError names the cart product that blocked a checkout.
type ProductError struct {
	ProductID uuid.UUID
	Name      string
	Err       error
}

func (e *ProductError) Error() string {
	if e.Name != "" {
		return fmt.Sprintf("%s: %v", e.Name, e.Err)
	}
	return fmt.Sprintf("product %s: %v", e.ProductID, e.Err)
}

func (e *ProductError) Unwrap() error { return e.Err }

// UserMessage turns an error into the text shown to the user. Unknown errors
// get a generic message; the detail stays in the logs.
func UserMessage(err error) string {
	var pe *ProductError
	switch {
	case err == nil:
		return ""
	case errors.As(err, &pe):
		name := pe.Name
		if name == "" {
			name = "أحد المنتجات"
		}
		if errors.Is(pe.Err, ErrProductNotFound) {
			return fmt.Sprintf("المنتج \"%s\" لم يعد موجوداً، يرجى إزالته من السلة", name)
		}
		return fmt.Sprintf("المنتج \"%s\" غير متوفر حالياً", name)
	case errors.Is(err, ErrNoSession), errors.Is(err, ErrNotLoggedIn):
		return "يجب تسجيل الدخول أولاً"
	case errors.Is(err, ErrNotApproved):
		return "حسابك قيد المراجعة ولم تتم الموافقة عليه بعد"
	case errors.Is(err, ErrEmptyCart):
		return "السلة فارغة"
	case errors.Is(err, ErrInvalidQuantity):
		return "الكمية غير صحيحة"
	case errors.Is(err, ErrProductNotFound), errors.Is(err, models.ErrNotFound):
		return "العنصر المطلوب غير موجود"
	case errors.Is(err, ErrOrderNotFound):
		return "الطلب غير موجود"
	case errors.Is(err, ErrForbidden):
		return "غير مسموح بهذا الإجراء"
	case errors.Is(err, ErrInvalidTransition), errors.Is(err, models.ErrInvalidOrderStatus):
		return "لا يمكن تغيير حالة الطلب بهذا الشكل"
	case errors.Is(err, ErrInvalidPhone):
		return "رقم الهاتف غير صحيح"
	case errors.Is(err, ErrInvalidOTP):
		return "رمز التحقق غير صحيح أو منتهي الصلاحية"
	case errors.Is(err, ErrAccountNotFound):
		return "لا يوجد حساب مرتبط بهذا الرقم"
	case errors.Is(err, models.ErrInsufficientStock):
		return "الكمية المطلوبة غير متوفرة في المخزون"
	case errors.Is(err, context.DeadlineExceeded), isNetworkError(err):
		return "تعذر الاتصال بالخادم، يرجى المحاولة مرة أخرى"
	default:
		return "حدث خطأ غير متوقع، يرجى المحاولة لاحقاً"
	}
}
