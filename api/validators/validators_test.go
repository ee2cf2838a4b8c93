package validators

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	pkgerrors "github.com/medimart/storefront/pkg/errors"
)

type signup struct {
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required,min=6"`
}

func TestDecodeJSONBody(t *testing.T) {
	var ok signup
	req := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(`{"email":"a@b.co","password":"secret1"}`))
	require.NoError(t, DecodeJSONBody(req, &ok))
	assert.Equal(t, "a@b.co", ok.Email)

	var unknown signup
	req = httptest.NewRequest(http.MethodPost, "/", strings.NewReader(`{"email":"a@b.co","password":"secret1","admin":true}`))
	assert.True(t, pkgerrors.IsCode(DecodeJSONBody(req, &unknown), pkgerrors.CodeValidation))

	var invalid signup
	req = httptest.NewRequest(http.MethodPost, "/", strings.NewReader(`{"email":"nope","password":"123"}`))
	err := DecodeJSONBody(req, &invalid)
	typed := pkgerrors.As(err)
	require.NotNil(t, typed)
	details, _ := typed.Details().(map[string]string)
	assert.Equal(t, "must be a valid email", details["email"])
	assert.Equal(t, "must be at least 6", details["password"])
}

func TestParseQueryInt(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/?limit=10", nil)
	v, err := ParseQueryInt(req, "limit", 25, 1, 100)
	require.NoError(t, err)
	assert.Equal(t, 10, v)

	v, err = ParseQueryInt(httptest.NewRequest(http.MethodGet, "/", nil), "limit", 25, 1, 100)
	require.NoError(t, err)
	assert.Equal(t, 25, v)

	_, err = ParseQueryInt(httptest.NewRequest(http.MethodGet, "/?limit=500", nil), "limit", 25, 1, 100)
	assert.Error(t, err)
}

func TestParseUUIDParam(t *testing.T) {
	id := uuid.New()
	rc := chi.NewRouteContext()
	rc.URLParams.Add("id", id.String())
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req = req.WithContext(context.WithValue(req.Context(), chi.RouteCtxKey, rc))

	got, err := ParseUUIDParam(req, "id")
	require.NoError(t, err)
	assert.Equal(t, id, got)

	_, err = ParseUUIDParam(req, "missing")
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeValidation))
}
