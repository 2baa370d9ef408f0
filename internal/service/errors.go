package service

import (
	"errors"
	"fmt"
	"sort"
	"strings"
)

// Error codes.
const (
	EINVALID  = "invalid"
	ENOTFOUND = "not_found"
	ECONFLICT = "conflict"
	EBUSY     = "busy"
	EFATAL    = "fatal"
)

// Error is a domain failure the api layer can render. Field, when set, names
// the request field the message belongs to.
type Error struct {
	Code    string
	Message string
	Field   string
}

func (e *Error) Error() string {
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

var (
	ErrCartNotFound     = &Error{Code: ENOTFOUND, Message: "Cart not found"}
	ErrEmptyCart        = &Error{Code: EINVALID, Message: "Cart is empty"}
	ErrCartItemNotFound = &Error{Code: ENOTFOUND, Message: "Cart item not found"}
	ErrProductNotFound  = &Error{Code: ENOTFOUND, Message: "Product not found"}
	ErrCategoryNotFound = &Error{Code: ENOTFOUND, Message: "Category not found"}
	ErrOrderNotFound    = &Error{Code: ENOTFOUND, Message: "Order not found"}

	ErrInsufficientStock = &Error{Code: ECONFLICT, Field: "quantity", Message: "Requested quantity exceeds available stock"}
	ErrOutOfStock        = &Error{Code: ECONFLICT, Field: "quantity", Message: "Product is out of stock; the item was removed from the cart"}
	ErrInvalidTransition = &Error{Code: ECONFLICT, Message: "Payment status cannot change from its current value"}
	ErrProductInUse      = &Error{Code: ECONFLICT, Message: "Product is referenced by existing orders"}
	ErrCategoryExists    = &Error{Code: ECONFLICT, Field: "name", Message: "Category with this name already exists"}

	ErrCheckoutBusy = &Error{Code: EBUSY, Message: "Cart is being checked out, retry later"}
	ErrCartBusy     = &Error{Code: EBUSY, Message: "Cart is locked by another request, retry later"}

	ErrTrackingCodeExhausted = &Error{Code: EFATAL, Message: "Could not allocate a unique tracking code"}
)

// ValidationError maps request fields to their messages.
type ValidationError map[string][]string

func (v ValidationError) Error() string {
	fields := make([]string, 0, len(v))
	for field, msgs := range v {
		fields = append(fields, field+": "+strings.Join(msgs, ", "))
	}
	sort.Strings(fields)
	return "invalid: " + strings.Join(fields, "; ")
}

func (v ValidationError) Add(field, msg string) {
	v[field] = append(v[field], msg)
}

// QuantityClampedError reports that a cart item was stored with less than the
// requested quantity because stock ran short. Quantity is the stored value.
type QuantityClampedError struct {
	Quantity int
}

func (e *QuantityClampedError) Error() string {
	return fmt.Sprintf("Only %d items available; quantity set to %d", e.Quantity, e.Quantity)
}

// ErrorCode returns the code of err, EFATAL for anything that is not a domain error.
func ErrorCode(err error) string {
	var domainErr *Error
	var clampErr *QuantityClampedError
	var validationErr ValidationError
	switch {
	case err == nil:
		return ""
	case errors.As(err, &domainErr):
		return domainErr.Code
	case errors.As(err, &clampErr):
		return ECONFLICT
	case errors.As(err, &validationErr):
		return EINVALID
	}
	return EFATAL
}
