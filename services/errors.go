package services

import (
	"errors"
	"net/http"
)

// Stable failure codes surfaced to API clients and logs.
const (
	CodeNoUserID                    = "NO_USER_ID"
	CodeEmptyLineItems              = "EMPTY_LINE_ITEMS"
	CodeInvalidQuantity             = "INVALID_QUANTITY"
	CodeMissingPriceID              = "MISSING_PRICE_ID"
	CodeShippingRateNotConfigured   = "SHIPPING_RATE_NOT_CONFIGURED"
	CodePriceFetchFailed            = "PRICE_FETCH_FAILED"
	CodePriceProductMismatch        = "PRICE_PRODUCT_MISMATCH"
	CodeOutOfStock                  = "OUT_OF_STOCK"
	CodeCheckoutSessionCreateFailed = "CHECKOUT_SESSION_CREATE_FAILED"
	CodeAmountTotalMismatch         = "AMOUNT_TOTAL_MISMATCH"
	CodeCheckoutSessionFetchFailed  = "CHECKOUT_SESSION_FETCH_FAILED"
	CodeCheckoutProductCreateFailed = "CHECKOUT_PRODUCT_CREATE_FAILED"
	CodeOrderCreateFailed           = "ORDER_CREATE_FAILED"
	CodeOrderStripeCreateFailed     = "ORDER_STRIPE_CREATE_FAILED"
	CodeOrderItemCreateFailed       = "ORDER_ITEM_CREATE_FAILED"
	CodeOrderItemStripeCreateFailed = "ORDER_ITEM_STRIPE_CREATE_FAILED"
	CodeOrderItemSubscriptionFailed = "ORDER_ITEM_SUBSCRIPTION_CREATE_FAILED"
	CodeShippingAddressCreateFailed = "SHIPPING_ADDRESS_CREATE_FAILED"
	CodeCustomerUpdateFailed        = "CUSTOMER_UPDATE_FAILED"
	CodeEmailSendFailed             = "EMAIL_SEND_FAILED"
	CodePaymentLinkDeactivateFailed = "PAYMENT_LINK_DEACTIVATE_FAILED"
	CodeNoSubscriptionID            = "NO_SUBSCRIPTION_ID"
	CodeSubscriptionFetchFailed     = "SUBSCRIPTION_FETCH_FAILED"
	CodeSubscriptionPaymentCreate   = "SUBSCRIPTION_PAYMENT_CREATE_FAILED"
	CodeSubscriptionPaymentUpdate   = "SUBSCRIPTION_PAYMENT_UPDATE_FAILED"
	CodeProductCreateFailed         = "PRODUCT_CREATE_FAILED"
	CodePriceCreateFailed           = "PRICE_CREATE_FAILED"
	CodeInvalidWebhook              = "INVALID_WEBHOOK"
	CodeSagaTimeout                 = "SAGA_TIMEOUT"
	CodeProductNotFound             = "PRODUCT_NOT_FOUND"
)

// messages are what end users see. Gateway error text never goes here.
var messages = map[string]string{
	CodeNoUserID:                    "Please sign in to continue.",
	CodeEmptyLineItems:              "Your cart is empty.",
	CodeInvalidQuantity:             "Please check the item quantities.",
	CodeMissingPriceID:              "One of the items is no longer available for purchase.",
	CodeShippingRateNotConfigured:   "Checkout is temporarily unavailable. Please try again later.",
	CodePriceFetchFailed:            "We could not confirm the current price of an item.",
	CodePriceProductMismatch:        "One of the items in your cart has changed. Please refresh your cart.",
	CodeOutOfStock:                  "One of the items in your cart is out of stock.",
	CodeCheckoutSessionCreateFailed: "We could not start checkout. Please try again.",
	CodeAmountTotalMismatch:         "The order total has changed. Please review your cart and try again.",
	CodeCheckoutSessionFetchFailed:  "We could not load the checkout details.",
	CodeCheckoutProductCreateFailed: "We could not resolve the purchased products.",
	CodeOrderCreateFailed:           "We could not record your order.",
	CodeOrderStripeCreateFailed:     "We could not record your order.",
	CodeOrderItemCreateFailed:       "We could not record your order.",
	CodeOrderItemStripeCreateFailed: "We could not record your order.",
	CodeOrderItemSubscriptionFailed: "We could not record your subscription.",
	CodeShippingAddressCreateFailed: "Your order was placed, but we could not save your shipping address.",
	CodeCustomerUpdateFailed:        "Your order was placed, but we could not update your customer profile.",
	CodeEmailSendFailed:             "Your order was placed, but we could not send the confirmation email.",
	CodePaymentLinkDeactivateFailed: "Your order was placed, but a follow-up action is required.",
	CodeNoSubscriptionID:            "The invoice is not linked to a subscription.",
	CodeSubscriptionFetchFailed:     "We could not load the subscription.",
	CodeSubscriptionPaymentCreate:   "We could not record the subscription payment.",
	CodeSubscriptionPaymentUpdate:   "We could not update the subscription payment.",
	CodeProductCreateFailed:         "We could not register the product with the payment provider.",
	CodePriceCreateFailed:           "We could not register the product price with the payment provider.",
	CodeInvalidWebhook:              "Invalid webhook payload.",
	CodeSagaTimeout:                 "The request took too long. Please try again.",
	CodeProductNotFound:             "Product not found.",
}

// ServiceError is a typed error with an HTTP status code and a stable code.
// OrderPlaced is set when the order was durably recorded before the failure.
type ServiceError struct {
	StatusCode  int
	Code        string
	Message     string
	Err         error
	OrderPlaced bool
}

func (e *ServiceError) Error() string {
	if e.Err != nil {
		return e.Code + ": " + e.Err.Error()
	}
	return e.Code
}

func (e *ServiceError) Unwrap() error { return e.Err }

func newServiceError(status int, code string, err error) *ServiceError {
	return &ServiceError{StatusCode: status, Code: code, Message: messages[code], Err: err}
}

func badRequest(code string) *ServiceError {
	return newServiceError(http.StatusBadRequest, code, nil)
}

func upstream(code string, err error) *ServiceError {
	return newServiceError(http.StatusBadGateway, code, err)
}

func internal(code string, err error) *ServiceError {
	return newServiceError(http.StatusInternalServerError, code, err)
}

// followUp marks a failure that happened after the order was recorded.
func followUp(code string, err error) *ServiceError {
	se := internal(code, err)
	se.OrderPlaced = true
	return se
}

// stepError tags a failure inside a saga with the code for that step.
type stepError struct {
	code string
	err  error
}

func (e *stepError) Error() string { return e.code + ": " + e.err.Error() }
func (e *stepError) Unwrap() error { return e.err }

func withCode(code string, err error) error {
	return &stepError{code: code, err: err}
}

// AsServiceError converts any error returned inside the pipeline into the
// public ServiceError shape. fallback is used for untagged errors.
func AsServiceError(err error, fallback string) *ServiceError {
	if err == nil {
		return nil
	}
	var se *ServiceError
	if errors.As(err, &se) {
		return se
	}
	var step *stepError
	if errors.As(err, &step) {
		return internal(step.code, step.err)
	}
	return internal(fallback, err)
}

// CodeOf returns the stable code carried by err, or "".
func CodeOf(err error) string {
	var se *ServiceError
	if errors.As(err, &se) {
		return se.Code
	}
	var step *stepError
	if errors.As(err, &step) {
		return step.code
	}
	return ""
}
