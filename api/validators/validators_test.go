package validators

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	pkgerrors "github.com/angelmondragon/orderledger/pkg/errors"
)

type sampleBody struct {
	Code     string `json:"code" validate:"required"`
	Quantity int    `json:"quantity" validate:"gt=0"`
}

func TestDecodeJSONBody(t *testing.T) {
	req := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(`{"code":"SAVE10","quantity":2}`))
	var body sampleBody
	require.NoError(t, DecodeJSONBody(req, &body))
	require.Equal(t, "SAVE10", body.Code)
	require.Equal(t, 2, body.Quantity)
}

func TestDecodeJSONBodyRejectsUnknownFieldsAndInvalidValues(t *testing.T) {
	req := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(`{"code":"X","quantity":1,"price":5}`))
	var body sampleBody
	err := DecodeJSONBody(req, &body)
	require.Equal(t, pkgerrors.CodeValidation, pkgerrors.CodeOf(err))

	req = httptest.NewRequest(http.MethodPost, "/", strings.NewReader(`{"code":"","quantity":0}`))
	err = DecodeJSONBody(req, &body)
	require.Equal(t, pkgerrors.CodeValidation, pkgerrors.CodeOf(err))
	details, ok := pkgerrors.As(err).Details().(map[string]string)
	require.True(t, ok)
	require.Equal(t, "is required", details["code"])
	require.Equal(t, "must be greater than 0", details["quantity"])
}

func TestDecodeJSONBodyRejectsEmptyAndTrailingData(t *testing.T) {
	var body sampleBody
	err := DecodeJSONBody(httptest.NewRequest(http.MethodPost, "/", nil), &body)
	require.Equal(t, pkgerrors.CodeValidation, pkgerrors.CodeOf(err))
	require.Equal(t, "request body required", pkgerrors.As(err).Message())

	req := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(`{"code":"A","quantity":1}{"code":"B","quantity":1}`))
	err = DecodeJSONBody(req, &body)
	require.Equal(t, pkgerrors.CodeValidation, pkgerrors.CodeOf(err))

	huge := `{"code":"` + strings.Repeat("x", MaxBodyBytes) + `","quantity":1}`
	err = DecodeJSONBody(httptest.NewRequest(http.MethodPost, "/", strings.NewReader(huge)), &body)
	require.Equal(t, pkgerrors.CodeValidation, pkgerrors.CodeOf(err))
}

func TestParseQueryInt(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/?limit=30", nil)
	v, err := ParseQueryInt(req, "limit", 25, 1, 100)
	require.NoError(t, err)
	require.Equal(t, 30, v)

	v, err = ParseQueryInt(httptest.NewRequest(http.MethodGet, "/", nil), "limit", 25, 1, 100)
	require.NoError(t, err)
	require.Equal(t, 25, v)

	_, err = ParseQueryInt(httptest.NewRequest(http.MethodGet, "/?limit=500", nil), "limit", 25, 1, 100)
	require.Error(t, err)
	_, err = ParseQueryInt(httptest.NewRequest(http.MethodGet, "/?limit=abc", nil), "limit", 25, 1, 100)
	require.Error(t, err)
}

func TestParseUUIDs(t *testing.T) {
	id := uuid.New()
	got, err := ParseQueryUUID(httptest.NewRequest(http.MethodGet, "/?store_id="+id.String(), nil), "store_id")
	require.NoError(t, err)
	require.Equal(t, id, *got)

	got, err = ParseQueryUUID(httptest.NewRequest(http.MethodGet, "/", nil), "store_id")
	require.NoError(t, err)
	require.Nil(t, got)

	_, err = ParseQueryUUID(httptest.NewRequest(http.MethodGet, "/?store_id=nope", nil), "store_id")
	require.Error(t, err)

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	rctx := chi.NewRouteContext()
	rctx.URLParams.Add("orderId", id.String())
	req = req.WithContext(context.WithValue(req.Context(), chi.RouteCtxKey, rctx))
	parsed, err := ParseURLUUID(req, "orderId")
	require.NoError(t, err)
	require.Equal(t, id, parsed)

	_, err = ParseURLUUID(httptest.NewRequest(http.MethodGet, "/", nil), "orderId")
	require.Equal(t, pkgerrors.CodeValidation, pkgerrors.CodeOf(err))
}

func TestSanitizeString(t *testing.T) {
	require.Equal(t, "abc", SanitizeString("  abcdef ", 3))
	require.Equal(t, "abc", SanitizeString("abc", 0))
}

func TestSanitizeStringKeepsRunesWhole(t *testing.T) {
	require.Equal(t, "caf", SanitizeString("café", 4))
	require.Equal(t, "ab", SanitizeString("a\x00b\x07", 0))
}

func TestNormalizeCode(t *testing.T) {
	require.Equal(t, "SAVE10", NormalizeCode("  save 10 "))
	require.Equal(t, "", NormalizeCode("   "))
}
